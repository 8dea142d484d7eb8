// Package btreekv is a single-file, disk-resident ordered key/value
// store backed by a B-tree (internal/pager). It exposes Put, Get,
// Delete, Contains, and ordered range iteration over one on-disk file,
// gated by a single-writer/multi-reader lock.
package btreekv

import (
	"fmt"
	"sync"

	"github.com/bishopmate/btreekv/internal/pager"
)

// Config controls how a store is opened. The zero value is a valid
// configuration — Open fills in every unset field with its default.
type Config struct {
	// PageSize is the on-disk page size in bytes. Defaults to
	// pager.DefaultPageSize (4096). Ignored when reopening an existing
	// file, whose own header page size always wins.
	PageSize int

	// BufferPoolCapacity is the number of pages the in-memory LRU
	// cache may hold at once. Defaults to 256.
	BufferPoolCapacity int

	// MaxLeafKeys / MaxInteriorKeys force a page to split once it
	// holds more than this many cells, even if there is still byte
	// space free. 0 disables the check, leaving the byte-level page
	// capacity as the only split trigger. This exists to make small,
	// easy-to-reason-about trees in tests — production callers should
	// normally leave both at 0.
	MaxLeafKeys     int
	MaxInteriorKeys int

	// SyncOnWrite makes every Put/Delete flush its dirty pages and the
	// file header through to the OS and fsync before returning,
	// trading throughput for the guarantee that a committed write
	// survives a crash immediately after it returns. Defaults to
	// false (async writes, batched by a later Flush or Close).
	SyncOnWrite bool
}

func (c Config) withDefaults() Config {
	if c.PageSize == 0 {
		c.PageSize = pager.DefaultPageSize
	}
	if c.BufferPoolCapacity == 0 {
		c.BufferPoolCapacity = 256
	}
	return c
}

// computeEffectiveMaxValue resolves the apparent contradiction between
// the global 1 MiB value-size ceiling and a page size that, at its
// default of 4 KiB, can never hold a 1 MiB cell: the real limit for a
// given page size is whichever is smaller. cellOverhead generously
// covers the leaf header, one slot pointer, both varint length
// prefixes, and a worst-case key.
func computeEffectiveMaxValue(pageSize int) int {
	const cellOverhead = 4 /*slot+header slack*/ + 10 /*keySize varint*/ + 10 /*valSize varint*/ + pager.MaxKeySize
	cap := pageSize - cellOverhead
	if cap > pager.MaxValueSize {
		cap = pager.MaxValueSize
	}
	if cap < 0 {
		cap = 0
	}
	return cap
}

// DB is an open key/value store.
type DB struct {
	mu sync.RWMutex // single-writer/multi-reader gate

	disk *pager.DiskManager
	bp   *pager.BufferPool
	tree *pager.BTree

	maxValueSize int
	syncOnWrite  bool
}

// Open opens path, creating and formatting it if it does not already
// exist.
func Open(path string, cfg Config) (*DB, error) {
	cfg = cfg.withDefaults()

	disk, err := pager.OpenDiskManager(path, cfg.PageSize)
	if err != nil {
		return nil, translateErr(err)
	}
	bp := pager.NewBufferPool(disk, cfg.BufferPoolCapacity)
	tree := pager.NewBTree(bp, disk, cfg.MaxLeafKeys, cfg.MaxInteriorKeys)

	return &DB{
		disk:         disk,
		bp:           bp,
		tree:         tree,
		maxValueSize: computeEffectiveMaxValue(disk.PageSize()),
		syncOnWrite:  cfg.SyncOnWrite,
	}, nil
}

// flushLocked writes every dirty page and the file header through to
// disk and fsyncs. Callers must already hold db.mu for writing.
func (db *DB) flushLocked() error {
	if err := db.bp.Flush(); err != nil {
		return translateErr(err)
	}
	return translateErr(db.disk.Sync())
}

// Put inserts key/value, overwriting any existing value for key.
func (db *DB) Put(key, value []byte) error {
	if len(key) > pager.MaxKeySize {
		return &KeyTooLargeError{Size: len(key), Max: pager.MaxKeySize}
	}
	if len(value) > db.maxValueSize {
		return &ValueTooLargeError{Size: len(value), Max: db.maxValueSize}
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if err := translateErr(db.tree.Insert(key, value)); err != nil {
		return err
	}
	if db.syncOnWrite {
		return db.flushLocked()
	}
	return nil
}

// Get returns key's value, or found=false if it is absent.
func (db *DB) Get(key []byte) (value []byte, found bool, err error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, found, err = db.tree.Get(key)
	return value, found, translateErr(err)
}

// Contains reports whether key is present.
func (db *DB) Contains(key []byte) (bool, error) {
	_, found, err := db.Get(key)
	return found, err
}

// Delete removes key if present, reporting whether it existed.
func (db *DB) Delete(key []byte) (existed bool, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	existed, err = db.tree.Delete(key)
	if err = translateErr(err); err != nil {
		return existed, err
	}
	if db.syncOnWrite {
		if err := db.flushLocked(); err != nil {
			return existed, err
		}
	}
	return existed, nil
}

// Range calls fn for every key/value pair with start <= key < end, in
// ascending key order, stopping early if fn returns false. A nil start
// begins at the first key; a nil end has no upper bound.
func (db *DB) Range(start, end []byte, fn func(key, value []byte) (bool, error)) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return translateErr(db.tree.Range(start, end, fn))
}

// All calls fn for every key/value pair in ascending key order.
func (db *DB) All(fn func(key, value []byte) (bool, error)) error {
	return db.Range(nil, nil, fn)
}

// Flush writes every dirty page back to the file and fsyncs it. Put and
// Delete are visible to other handles on the same *DB immediately; Flush
// is only about durability against a crash or process exit.
func (db *DB) Flush() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.flushLocked()
}

// Close flushes and closes the underlying file. The DB must not be used
// afterwards.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.bp.Flush(); err != nil {
		return translateErr(err)
	}
	return translateErr(db.disk.Close())
}

// Stats reports point-in-time diagnostics.
type Stats struct {
	PageCount     int
	CachedPages   int
	CacheHits     uint64
	CacheMisses   uint64
	TreeHeight    int
	RootPageID    uint32
	MaxValueSize  int
	FreePageCount int
}

// Stats returns a snapshot of the store's current size and cache
// behavior.
func (db *DB) Stats() (Stats, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	bps := db.bp.Stats()
	free, err := db.disk.FreePageCount()
	if err != nil {
		return Stats{}, translateErr(err)
	}
	return Stats{
		PageCount:     db.disk.PageCount(),
		CachedPages:   bps.CachedPages,
		CacheHits:     bps.Hits,
		CacheMisses:   bps.Misses,
		TreeHeight:    db.disk.TreeHeight(),
		RootPageID:    uint32(db.disk.RootPageID()),
		MaxValueSize:  db.maxValueSize,
		FreePageCount: free,
	}, nil
}

func (s Stats) String() string {
	return fmt.Sprintf("pages=%d cached=%d hits=%d misses=%d height=%d root=%d free=%d",
		s.PageCount, s.CachedPages, s.CacheHits, s.CacheMisses, s.TreeHeight, s.RootPageID, s.FreePageCount)
}
