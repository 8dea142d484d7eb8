package pager

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
)

// ───────────────────────────────────────────────────────────────────────────
// File header
// ───────────────────────────────────────────────────────────────────────────
//
//   [0:8]   Magic           0x42545245_53544F52
//   [8:12]  Version         1
//   [12:16] PageSize
//   [16:20] PageCount
//   [20:24] FreeListHead
//   [24:28] RootPageID
//   [28:32] TreeHeight
//   [32:60] Reserved
//   [60:64] CRC32 (Castagnoli, over bytes [0:60))
//
// The header always lives in page 0 of the file, regardless of the
// configured page size (fileHeaderSize is fixed and far smaller than
// MinPageSize).

const (
	fileHeaderSize = 64
	fileMagic      = 0x4254524553544F52
	fileVersion    = 1

	fhMagicOff        = 0
	fhVersionOff      = 8
	fhPageSizeOff     = 12
	fhPageCountOff    = 16
	fhFreeListHeadOff = 20
	fhRootPageIDOff   = 24
	fhTreeHeightOff   = 28
	fhCRCOff          = fileHeaderSize - 4
)

func computeHeaderCRC(hdr []byte) uint32 {
	return pageCRC(hdr[:fhCRCOff])
}

// DiskManager owns the backing file: the header, page allocation, and
// durable reads/writes. It has no notion of caching — that is the
// buffer pool's job (bufferpool.go); the disk manager is the thing the
// buffer pool falls through to on a miss or an eviction.
//
// Every page occupies exactly pageSize bytes at id*pageSize, page 0
// included — this keeps `pageCount == fileLength / pageSize` exactly.
// There is deliberately no per-page checksum trailer: it would either
// break that invariant (by growing each page's on-disk stride) or
// require reserving header bytes that leaf/interior pages have no room
// for. The header's own CRC32 is the only checksum this file keeps.
type DiskManager struct {
	mu   sync.Mutex
	file *os.File

	pageSize int

	pageCount    uint32
	freeListHead PageID
	rootPageID   PageID
	treeHeight   uint32

	headerDirty bool
}

// OpenDiskManager opens path, creating and formatting it with a fresh
// header if it does not already exist. pageSize is only used for a new
// file; an existing file's own header page size always wins.
func OpenDiskManager(path string, pageSize int) (*DiskManager, error) {
	if pageSize < MinPageSize || pageSize > MaxPageSize {
		return nil, &InvalidArgumentError{Detail: fmt.Sprintf("page size %d outside [%d,%d]", pageSize, MinPageSize, MaxPageSize)}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("pager: open %s: %w", path, err)
	}

	dm := &DiskManager{file: f}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pager: stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		if err := dm.formatNew(pageSize); err != nil {
			f.Close()
			return nil, err
		}
		return dm, nil
	}
	if err := dm.loadHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return dm, nil
}

func (dm *DiskManager) formatNew(pageSize int) error {
	dm.pageSize = pageSize
	dm.pageCount = 1 // page 0 is the header
	dm.freeListHead = InvalidPageID
	dm.rootPageID = InvalidPageID
	dm.treeHeight = 0
	dm.headerDirty = true
	if err := dm.file.Truncate(int64(pageSize)); err != nil {
		return fmt.Errorf("pager: size header page: %w", err)
	}
	return dm.flushHeader()
}

func (dm *DiskManager) loadHeader() error {
	raw := make([]byte, fileHeaderSize)
	if _, err := dm.file.ReadAt(raw, 0); err != nil {
		return fmt.Errorf("pager: read file header: %w", err)
	}
	if binary.BigEndian.Uint64(raw[fhMagicOff:]) != fileMagic {
		return &CorruptionError{Detail: "bad file magic"}
	}
	if binary.LittleEndian.Uint32(raw[fhVersionOff:]) != fileVersion {
		return &CorruptionError{Detail: "unsupported file format version"}
	}
	wantCRC := binary.LittleEndian.Uint32(raw[fhCRCOff:])
	if gotCRC := computeHeaderCRC(raw); gotCRC != wantCRC {
		return &CorruptionError{Detail: "file header checksum mismatch"}
	}

	pageSize := int(binary.LittleEndian.Uint32(raw[fhPageSizeOff:]))
	if pageSize < MinPageSize || pageSize > MaxPageSize {
		return &CorruptionError{Detail: fmt.Sprintf("file header page size %d out of range", pageSize)}
	}
	dm.pageSize = pageSize
	dm.pageCount = binary.LittleEndian.Uint32(raw[fhPageCountOff:])
	dm.freeListHead = PageID(binary.LittleEndian.Uint32(raw[fhFreeListHeadOff:]))
	dm.rootPageID = PageID(binary.LittleEndian.Uint32(raw[fhRootPageIDOff:]))
	dm.treeHeight = binary.LittleEndian.Uint32(raw[fhTreeHeightOff:])
	return nil
}

func (dm *DiskManager) flushHeader() error {
	raw := make([]byte, fileHeaderSize)
	binary.BigEndian.PutUint64(raw[fhMagicOff:], uint64(fileMagic))
	binary.LittleEndian.PutUint32(raw[fhVersionOff:], fileVersion)
	binary.LittleEndian.PutUint32(raw[fhPageSizeOff:], uint32(dm.pageSize))
	binary.LittleEndian.PutUint32(raw[fhPageCountOff:], dm.pageCount)
	binary.LittleEndian.PutUint32(raw[fhFreeListHeadOff:], uint32(dm.freeListHead))
	binary.LittleEndian.PutUint32(raw[fhRootPageIDOff:], uint32(dm.rootPageID))
	binary.LittleEndian.PutUint32(raw[fhTreeHeightOff:], dm.treeHeight)
	binary.LittleEndian.PutUint32(raw[fhCRCOff:], computeHeaderCRC(raw))

	if _, err := dm.file.WriteAt(raw, 0); err != nil {
		return fmt.Errorf("pager: write file header: %w", err)
	}
	dm.headerDirty = false
	return nil
}

// PageSize returns the configured page size for this file.
func (dm *DiskManager) PageSize() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.pageSize
}

// PageCount returns the number of pages ever allocated in the file,
// including page 0 and any pages now sitting on the free list.
func (dm *DiskManager) PageCount() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return int(dm.pageCount)
}

// RootPageID returns the current B-tree root, or InvalidPageID for an
// empty tree.
func (dm *DiskManager) RootPageID() PageID {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.rootPageID
}

// SetRootPageID records a new B-tree root. The change is only durable
// once Sync is called.
func (dm *DiskManager) SetRootPageID(id PageID) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.rootPageID = id
	dm.headerDirty = true
}

// TreeHeight returns the current tree height (0 for an empty tree, 1
// for a tree whose root is a leaf).
func (dm *DiskManager) TreeHeight() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return int(dm.treeHeight)
}

// SetTreeHeight records a new tree height.
func (dm *DiskManager) SetTreeHeight(h int) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.treeHeight = uint32(h)
	dm.headerDirty = true
}

// ── Page I/O ───────────────────────────────────────────────────────────

func (dm *DiskManager) offsetOf(id PageID) int64 {
	return int64(id) * int64(dm.pageSize)
}

// readRaw reads id's pageSize bytes without asserting anything about
// their meaning — used both for ordinary pages and for free-list
// pages, which do not carry a valid page-type tag.
func (dm *DiskManager) readRaw(id PageID) ([]byte, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if id == InvalidPageID || uint32(id) >= dm.pageCount {
		return nil, &PageNotFoundError{ID: id}
	}
	buf := make([]byte, dm.pageSize)
	if _, err := dm.file.ReadAt(buf, dm.offsetOf(id)); err != nil {
		return nil, fmt.Errorf("pager: read page %d: %w", id, err)
	}
	return buf, nil
}

func (dm *DiskManager) writeRaw(id PageID, buf []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if len(buf) != dm.pageSize {
		return &InvalidArgumentError{Detail: fmt.Sprintf("page buffer is %d bytes, want %d", len(buf), dm.pageSize)}
	}
	if _, err := dm.file.WriteAt(buf, dm.offsetOf(id)); err != nil {
		return fmt.Errorf("pager: write page %d: %w", id, err)
	}
	return nil
}

// ReadPage reads and validates a logical page, confirming it carries a
// recognised page-type tag. Free-list pages are read via readRaw
// instead, since they never hold a valid tag.
func (dm *DiskManager) ReadPage(id PageID) ([]byte, error) {
	buf, err := dm.readRaw(id)
	if err != nil {
		return nil, err
	}
	if _, err := pageTypeOf(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WritePage durably stages a logical page for writing (the actual fsync
// happens in Sync).
func (dm *DiskManager) WritePage(id PageID, buf []byte) error {
	return dm.writeRaw(id, buf)
}

// AllocatePage returns the id of a fresh page: either the head of the
// free list, or a brand new page grown at the end of the file.
func (dm *DiskManager) AllocatePage() (PageID, error) {
	dm.mu.Lock()
	head := dm.freeListHead
	dm.mu.Unlock()

	if head != InvalidPageID {
		buf, err := dm.readRaw(head)
		if err != nil {
			return 0, fmt.Errorf("pager: read free list head %d: %w", head, err)
		}
		next := readFreeListLink(buf)
		dm.mu.Lock()
		dm.freeListHead = next
		dm.headerDirty = true
		dm.mu.Unlock()
		return head, nil
	}

	dm.mu.Lock()
	id := PageID(dm.pageCount)
	dm.pageCount++
	dm.headerDirty = true
	dm.mu.Unlock()

	zero := make([]byte, dm.pageSize)
	if err := dm.writeRaw(id, zero); err != nil {
		return 0, err
	}
	return id, nil
}

// DeallocatePage threads id onto the head of the free list.
func (dm *DiskManager) DeallocatePage(id PageID) error {
	dm.mu.Lock()
	head := dm.freeListHead
	dm.mu.Unlock()

	buf := make([]byte, dm.pageSize)
	writeFreeListLink(buf, head)
	if err := dm.writeRaw(id, buf); err != nil {
		return err
	}

	dm.mu.Lock()
	dm.freeListHead = id
	dm.headerDirty = true
	dm.mu.Unlock()
	return nil
}

// FreePageCount walks the free list and returns its length. Cost is
// linear in the number of free pages; intended for Stats(), not hot
// paths.
func (dm *DiskManager) FreePageCount() (int, error) {
	dm.mu.Lock()
	id := dm.freeListHead
	dm.mu.Unlock()

	n := 0
	for id != InvalidPageID {
		buf, err := dm.readRaw(id)
		if err != nil {
			return 0, fmt.Errorf("pager: walk free list at %d: %w", id, err)
		}
		n++
		id = readFreeListLink(buf)
	}
	return n, nil
}

// Sync flushes the header (if dirty) and fsyncs the underlying file.
func (dm *DiskManager) Sync() error {
	dm.mu.Lock()
	dirty := dm.headerDirty
	dm.mu.Unlock()

	if dirty {
		dm.mu.Lock()
		err := dm.flushHeader()
		dm.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return fsyncFile(dm.file)
}

// Close syncs and closes the underlying file.
func (dm *DiskManager) Close() error {
	if err := dm.Sync(); err != nil {
		dm.file.Close()
		return err
	}
	return dm.file.Close()
}
