//go:build !unix

package pager

import "os"

func fsyncFile(f *os.File) error {
	return f.Sync()
}
