//go:build unix

package pager

import (
	"os"

	"golang.org/x/sys/unix"
)

func fsyncFile(f *os.File) error {
	return unix.Fsync(int(f.Fd()))
}
