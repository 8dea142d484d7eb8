package pager

import (
	"container/list"
	"fmt"
	"sync"
)

// ───────────────────────────────────────────────────────────────────────────
// Buffer pool
// ───────────────────────────────────────────────────────────────────────────
//
// A fixed-capacity LRU cache of page frames sitting in front of the disk
// manager. Pages are handed out through scoped guards (ReadGuard /
// WriteGuard) rather than raw buffers, so a caller can never forget to
// release a page or to mark it dirty: releasing a WriteGuard is what
// marks the frame dirty for the next eviction or Flush.

type frame struct {
	id       PageID
	buf      []byte
	contentMu sync.RWMutex
	dirty    bool
	pinCount int
	elem     *list.Element
}

// BufferPool is a fixed-capacity, dirty-tracking LRU cache of pages.
type BufferPool struct {
	disk     *DiskManager
	capacity int

	mu     sync.Mutex
	frames map[PageID]*frame
	lru    *list.List // front = most recently used

	hits, misses uint64
}

// NewBufferPool creates a pool of the given capacity (in pages) backed
// by disk.
func NewBufferPool(disk *DiskManager, capacity int) *BufferPool {
	if capacity < 1 {
		capacity = 1
	}
	return &BufferPool{
		disk:     disk,
		capacity: capacity,
		frames:   make(map[PageID]*frame, capacity),
		lru:      list.New(),
	}
}

// Stats reports cache hit/miss counters.
type Stats struct {
	Hits, Misses uint64
	CachedPages  int
}

// Stats returns a snapshot of the pool's hit/miss counters.
func (bp *BufferPool) Stats() Stats {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return Stats{Hits: bp.hits, Misses: bp.misses, CachedPages: len(bp.frames)}
}

// acquire returns the frame for id, fetching it from disk on a miss and
// evicting an unpinned frame if the pool is already at capacity. The
// frame is pinned before acquire returns.
func (bp *BufferPool) acquire(id PageID) (*frame, error) {
	bp.mu.Lock()
	if fr, ok := bp.frames[id]; ok {
		fr.pinCount++
		bp.lru.MoveToFront(fr.elem)
		bp.hits++
		bp.mu.Unlock()
		return fr, nil
	}
	bp.misses++

	if len(bp.frames) >= bp.capacity {
		if err := bp.evictLocked(); err != nil {
			bp.mu.Unlock()
			return nil, err
		}
	}

	buf, err := bp.disk.ReadPage(id)
	if err != nil {
		bp.mu.Unlock()
		return nil, err
	}
	fr := &frame{id: id, buf: buf, pinCount: 1}
	fr.elem = bp.lru.PushFront(fr)
	bp.frames[id] = fr
	bp.mu.Unlock()
	return fr, nil
}

// evictLocked removes the least-recently-used unpinned frame, writing
// it back first if dirty. Callers must hold bp.mu.
func (bp *BufferPool) evictLocked() error {
	for e := bp.lru.Back(); e != nil; e = e.Prev() {
		fr := e.Value.(*frame)
		if fr.pinCount > 0 {
			continue
		}
		if fr.dirty {
			if err := bp.disk.WritePage(fr.id, fr.buf); err != nil {
				return fmt.Errorf("pager: evict page %d: %w", fr.id, err)
			}
		}
		bp.lru.Remove(e)
		delete(bp.frames, fr.id)
		return nil
	}
	return fmt.Errorf("pager: buffer pool exhausted: all %d frames pinned", bp.capacity)
}

func (bp *BufferPool) release(fr *frame) {
	bp.mu.Lock()
	fr.pinCount--
	bp.mu.Unlock()
}

// ── Guards ───────────────────────────────────────────────────────────────

// ReadGuard is a pinned, read-locked view of a page. Call Release when
// done with it.
type ReadGuard struct {
	bp *BufferPool
	fr *frame
}

// FetchRead pins id for reading, fetching it from disk on a miss.
func (bp *BufferPool) FetchRead(id PageID) (*ReadGuard, error) {
	fr, err := bp.acquire(id)
	if err != nil {
		return nil, err
	}
	fr.contentMu.RLock()
	return &ReadGuard{bp: bp, fr: fr}, nil
}

// Bytes returns the page's raw buffer. Valid until Release.
func (g *ReadGuard) Bytes() []byte { return g.fr.buf }

// Page loads the buffer as a SlottedPage view.
func (g *ReadGuard) Page() (*SlottedPage, error) { return LoadPage(g.fr.buf) }

// ID returns the page identifier this guard covers.
func (g *ReadGuard) ID() PageID { return g.fr.id }

// Release unlocks and unpins the page.
func (g *ReadGuard) Release() {
	g.fr.contentMu.RUnlock()
	g.bp.release(g.fr)
}

// WriteGuard is a pinned, write-locked view of a page. Releasing it
// marks the frame dirty, so the buffer is written back on the next
// eviction or Flush.
type WriteGuard struct {
	bp *BufferPool
	fr *frame
}

// FetchWrite pins id for writing, fetching it from disk on a miss.
func (bp *BufferPool) FetchWrite(id PageID) (*WriteGuard, error) {
	fr, err := bp.acquire(id)
	if err != nil {
		return nil, err
	}
	fr.contentMu.Lock()
	return &WriteGuard{bp: bp, fr: fr}, nil
}

// NewPage allocates a fresh page from the disk manager and returns it
// pinned for writing, with a zeroed buffer ready for NewLeafPage or
// NewInteriorPage to initialise.
func (bp *BufferPool) NewPage() (*WriteGuard, error) {
	id, err := bp.disk.AllocatePage()
	if err != nil {
		return nil, err
	}

	bp.mu.Lock()
	if len(bp.frames) >= bp.capacity {
		if err := bp.evictLocked(); err != nil {
			bp.mu.Unlock()
			return nil, err
		}
	}
	fr := &frame{id: id, buf: make([]byte, bp.disk.PageSize()), pinCount: 1, dirty: true}
	fr.elem = bp.lru.PushFront(fr)
	bp.frames[id] = fr
	bp.mu.Unlock()

	fr.contentMu.Lock()
	return &WriteGuard{bp: bp, fr: fr}, nil
}

// DeletePage evicts id from the cache (discarding its contents, no
// writeback) and returns it to the disk manager's free list.
func (bp *BufferPool) DeletePage(id PageID) error {
	bp.mu.Lock()
	if fr, ok := bp.frames[id]; ok {
		if fr.pinCount > 0 {
			bp.mu.Unlock()
			return fmt.Errorf("pager: cannot delete pinned page %d", id)
		}
		bp.lru.Remove(fr.elem)
		delete(bp.frames, id)
	}
	bp.mu.Unlock()
	return bp.disk.DeallocatePage(id)
}

// Bytes returns the page's raw buffer. Valid until Release.
func (g *WriteGuard) Bytes() []byte { return g.fr.buf }

// Page loads the buffer as a SlottedPage view.
func (g *WriteGuard) Page() (*SlottedPage, error) { return LoadPage(g.fr.buf) }

// ID returns the page identifier this guard covers.
func (g *WriteGuard) ID() PageID { return g.fr.id }

// Release marks the page dirty, unlocks, and unpins it.
func (g *WriteGuard) Release() {
	g.fr.dirty = true
	g.fr.contentMu.Unlock()
	g.bp.release(g.fr)
}

// Flush writes every dirty frame back to the disk manager without
// evicting them. The caller is still responsible for calling the disk
// manager's Sync to make the writes durable.
func (bp *BufferPool) Flush() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	for e := bp.lru.Front(); e != nil; e = e.Next() {
		fr := e.Value.(*frame)
		if !fr.dirty {
			continue
		}
		if err := bp.disk.WritePage(fr.id, fr.buf); err != nil {
			return fmt.Errorf("pager: flush page %d: %w", fr.id, err)
		}
		fr.dirty = false
	}
	return nil
}
