package pager

import "encoding/binary"

// ───────────────────────────────────────────────────────────────────────────
// Free list
// ───────────────────────────────────────────────────────────────────────────
//
// A threaded singly-linked list: the file header's FreeListHead field holds
// the id of the first free page, and every free page stores the id of the
// next free page (or InvalidPageID for the end of the list) in its own
// first 4 bytes. This is deliberately simpler than a dedicated free-list
// page format — deallocating a page costs one write, allocating costs one
// read, and the list never needs its own page to live in.

// readFreeListLink reads the "next free page" pointer threaded through a
// freed page's first 4 bytes.
func readFreeListLink(buf []byte) PageID {
	return PageID(binary.LittleEndian.Uint32(buf))
}

// writeFreeListLink overwrites a freed page's first 4 bytes with the next
// free page's id, discarding whatever page contents used to be there —
// correct only for pages already being deallocated.
func writeFreeListLink(buf []byte, next PageID) {
	binary.LittleEndian.PutUint32(buf, uint32(next))
}
