package pager

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ───────────────────────────────────────────────────────────────────────────
// Slotted page
// ───────────────────────────────────────────────────────────────────────────
//
// Layout of a page buffer:
//
//   [0 .. headerSize)                 fixed-size header (page.go)
//   [headerSize .. headerSize+2*n)    slot directory, n = cell count,
//                                      2-byte LE offsets in ascending
//                                      key order
//   ... free gap ...
//   [contentStart .. pageSize)        cells, packed from the high end,
//                                      in arbitrary physical order
//
// Cells are self-describing (they carry their own varint-encoded key/value
// lengths), so the slot directory only needs to store an offset — there is
// no separate length field to keep in sync.
//
//   leaf cell:     varint(keySize) | varint(valueSize) | key | value
//   interior cell: varint(keySize) | leftChild:u32      | key

// SlottedPage wraps a single fixed-size page buffer and mutates it in
// place.
type SlottedPage struct {
	buf []byte
	typ PageType
}

// NewLeafPage initialises buf as an empty leaf page.
func NewLeafPage(buf []byte) *SlottedPage {
	sp := &SlottedPage{buf: buf, typ: PageTypeLeaf}
	sp.initHeader()
	return sp
}

// NewInteriorPage initialises buf as an empty interior page.
func NewInteriorPage(buf []byte) *SlottedPage {
	sp := &SlottedPage{buf: buf, typ: PageTypeInterior}
	sp.initHeader()
	sp.SetRightmostChild(InvalidPageID)
	return sp
}

func (sp *SlottedPage) initHeader() {
	sp.buf[hdrTypeOff] = byte(sp.typ)
	binary.LittleEndian.PutUint16(sp.buf[hdrFirstFreeBlockOff:], 0)
	binary.LittleEndian.PutUint16(sp.buf[hdrCellCountOff:], 0)
	binary.LittleEndian.PutUint16(sp.buf[hdrContentStartOff:], uint16(len(sp.buf)))
	sp.buf[hdrFragmentedBytesOff] = 0
}

// LoadPage wraps an existing page buffer, validating its header.
func LoadPage(buf []byte) (*SlottedPage, error) {
	typ, err := pageTypeOf(buf)
	if err != nil {
		return nil, err
	}
	sp := &SlottedPage{buf: buf, typ: typ}
	if sp.contentStart() < headerSize(typ)+sp.CellCount()*slotPointerSize {
		return nil, &CorruptionError{Detail: "content start overlaps slot directory"}
	}
	if sp.contentStart() > len(buf) {
		return nil, &CorruptionError{Detail: "content start beyond page bounds"}
	}
	return sp, nil
}

// Bytes returns the underlying page buffer. Slotted pages are mutated
// in place, so this is the same buffer handed to NewLeafPage/LoadPage.
func (sp *SlottedPage) Bytes() []byte { return sp.buf }

// IsLeaf reports whether this page holds key/value cells (true) or
// key/child-pointer cells (false).
func (sp *SlottedPage) IsLeaf() bool { return sp.typ == PageTypeLeaf }

// CellCount returns the number of slots in the directory.
func (sp *SlottedPage) CellCount() int {
	return int(binary.LittleEndian.Uint16(sp.buf[hdrCellCountOff:]))
}

func (sp *SlottedPage) setCellCount(n int) {
	binary.LittleEndian.PutUint16(sp.buf[hdrCellCountOff:], uint16(n))
}

func (sp *SlottedPage) contentStart() int {
	return int(binary.LittleEndian.Uint16(sp.buf[hdrContentStartOff:]))
}

func (sp *SlottedPage) setContentStart(off int) {
	binary.LittleEndian.PutUint16(sp.buf[hdrContentStartOff:], uint16(off))
}

func (sp *SlottedPage) fragmentedBytes() int {
	return int(sp.buf[hdrFragmentedBytesOff])
}

func (sp *SlottedPage) addFragmentedBytes(n int) {
	cur := sp.fragmentedBytes() + n
	if cur > 255 {
		cur = 255 // saturating: this counter is advisory, not authoritative
	}
	sp.buf[hdrFragmentedBytesOff] = byte(cur)
}

// RightmostChild returns the interior page's "rightmost child" pointer.
// Despite the name, this is the subtree for keys below the page's first
// separator — see btree.go for the full pointer-convention writeup.
// Panics on a leaf page, matching the other *-only accessors in this
// file.
func (sp *SlottedPage) RightmostChild() PageID {
	if sp.typ != PageTypeInterior {
		panic("pager: RightmostChild on a leaf page")
	}
	return PageID(binary.LittleEndian.Uint32(sp.buf[hdrRightmostChildOff:]))
}

// SetRightmostChild sets the interior page's rightmost-child pointer.
func (sp *SlottedPage) SetRightmostChild(id PageID) {
	if sp.typ != PageTypeInterior {
		panic("pager: SetRightmostChild on a leaf page")
	}
	binary.LittleEndian.PutUint32(sp.buf[hdrRightmostChildOff:], uint32(id))
}

// ── Slot directory ──────────────────────────────────────────────────────

func (sp *SlottedPage) slotOffset(i int) int {
	return headerSize(sp.typ) + i*slotPointerSize
}

func (sp *SlottedPage) getSlot(i int) int {
	return int(binary.LittleEndian.Uint16(sp.buf[sp.slotOffset(i):]))
}

func (sp *SlottedPage) setSlot(i int, cellOffset int) {
	binary.LittleEndian.PutUint16(sp.buf[sp.slotOffset(i):], uint16(cellOffset))
}

// freeGap returns the contiguous free region between the end of the slot
// directory and the start of the cell content area.
func (sp *SlottedPage) freeGap() int {
	return sp.contentStart() - (headerSize(sp.typ) + sp.CellCount()*slotPointerSize)
}

// FreeSpace is the public free-space estimate: the room available for
// one more cell plus its 2-byte slot pointer, before any
// defragmentation.
func (sp *SlottedPage) FreeSpace() int { return sp.freeGap() }

// ── Cell codec ───────────────────────────────────────────────────────────

// encodeLeafCell builds the wire format for a leaf cell.
func encodeLeafCell(key, value []byte) []byte {
	buf := make([]byte, 0, SizeUvarint(uint64(len(key)))+SizeUvarint(uint64(len(value)))+len(key)+len(value))
	buf = PutUvarint(buf, uint64(len(key)))
	buf = PutUvarint(buf, uint64(len(value)))
	buf = append(buf, key...)
	buf = append(buf, value...)
	return buf
}

// encodeInteriorCell builds the wire format for an interior cell.
func encodeInteriorCell(key []byte, leftChild PageID) []byte {
	buf := make([]byte, 0, SizeUvarint(uint64(len(key)))+4+len(key))
	buf = PutUvarint(buf, uint64(len(key)))
	var lc [4]byte
	binary.LittleEndian.PutUint32(lc[:], uint32(leftChild))
	buf = append(buf, lc[:]...)
	buf = append(buf, key...)
	return buf
}

// cellLen returns the total length of the cell starting at buf[0], and
// the key it encodes, without requiring the caller to know the cell's
// boundary up front — cells are self-describing.
func cellLen(typ PageType, buf []byte) (length int, key []byte, err error) {
	keySize, n1, err := GetUvarint(buf, MaxKeySize)
	if err != nil {
		return 0, nil, &CorruptionError{Detail: fmt.Sprintf("bad cell key-length varint: %v", err)}
	}
	if typ == PageTypeLeaf {
		valSize, n2, err := GetUvarint(buf[n1:], MaxValueSize)
		if err != nil {
			return 0, nil, &CorruptionError{Detail: fmt.Sprintf("bad cell value-length varint: %v", err)}
		}
		total := n1 + n2 + int(keySize) + int(valSize)
		if total > len(buf) {
			return 0, nil, &CorruptionError{Detail: "truncated leaf cell"}
		}
		return total, buf[n1+n2 : n1+n2+int(keySize)], nil
	}
	total := n1 + 4 + int(keySize)
	if total > len(buf) {
		return 0, nil, &CorruptionError{Detail: "truncated interior cell"}
	}
	return total, buf[n1+4 : n1+4+int(keySize)], nil
}

// cellAt returns the full raw bytes of the cell referenced by slot i.
func (sp *SlottedPage) cellAt(i int) ([]byte, error) {
	off := sp.getSlot(i)
	if off < headerSize(sp.typ) || off >= len(sp.buf) {
		return nil, &CorruptionError{Detail: fmt.Sprintf("slot %d offset %d out of range", i, off)}
	}
	n, _, err := cellLen(sp.typ, sp.buf[off:])
	if err != nil {
		return nil, err
	}
	return sp.buf[off : off+n], nil
}

// KeyAt returns the key stored at slot i.
func (sp *SlottedPage) KeyAt(i int) ([]byte, error) {
	off := sp.getSlot(i)
	if off < headerSize(sp.typ) || off >= len(sp.buf) {
		return nil, &CorruptionError{Detail: fmt.Sprintf("slot %d offset %d out of range", i, off)}
	}
	_, key, err := cellLen(sp.typ, sp.buf[off:])
	return key, err
}

// LeafEntryAt decodes the key/value pair stored at slot i. Leaf pages only.
func (sp *SlottedPage) LeafEntryAt(i int) (key, value []byte, err error) {
	if sp.typ != PageTypeLeaf {
		panic("pager: LeafEntryAt on an interior page")
	}
	cell, err := sp.cellAt(i)
	if err != nil {
		return nil, nil, err
	}
	keySize, n1, err := GetUvarint(cell, MaxKeySize)
	if err != nil {
		return nil, nil, &CorruptionError{Detail: err.Error()}
	}
	valSize, n2, err := GetUvarint(cell[n1:], MaxValueSize)
	if err != nil {
		return nil, nil, &CorruptionError{Detail: err.Error()}
	}
	key = cell[n1+n2 : n1+n2+int(keySize)]
	value = cell[n1+n2+int(keySize) : n1+n2+int(keySize)+int(valSize)]
	return key, value, nil
}

// InteriorEntryAt decodes the key/left-child pair stored at slot i.
// Interior pages only.
func (sp *SlottedPage) InteriorEntryAt(i int) (key []byte, leftChild PageID, err error) {
	if sp.typ != PageTypeInterior {
		panic("pager: InteriorEntryAt on a leaf page")
	}
	cell, err := sp.cellAt(i)
	if err != nil {
		return nil, 0, err
	}
	keySize, n1, err := GetUvarint(cell, MaxKeySize)
	if err != nil {
		return nil, 0, &CorruptionError{Detail: err.Error()}
	}
	leftChild = PageID(binary.LittleEndian.Uint32(cell[n1:]))
	key = cell[n1+4 : n1+4+int(keySize)]
	return key, leftChild, nil
}

// ── Search ───────────────────────────────────────────────────────────────

// Search performs a binary search over the slot directory. It returns the
// lower-bound slot index (the position at which key belongs, or the index
// of an exact match) and whether the key at that position is an exact
// match.
func (sp *SlottedPage) Search(key []byte) (pos int, found bool, err error) {
	lo, hi := 0, sp.CellCount()
	for lo < hi {
		mid := (lo + hi) / 2
		k, kerr := sp.KeyAt(mid)
		if kerr != nil {
			return 0, false, kerr
		}
		if bytes.Compare(k, key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < sp.CellCount() {
		k, kerr := sp.KeyAt(lo)
		if kerr != nil {
			return 0, false, kerr
		}
		if bytes.Equal(k, key) {
			return lo, true, nil
		}
	}
	return lo, false, nil
}

// ── Insert / delete / defragment ─────────────────────────────────────────

// insertSorted is the shared machinery behind InsertLeaf/InsertInterior:
// find key's sorted position, and either overwrite the existing cell in
// place, replace it via delete-then-insert, or insert a brand new slot.
func (sp *SlottedPage) insertSorted(key []byte, raw []byte) (slot int, err error) {
	pos, found, err := sp.Search(key)
	if err != nil {
		return 0, err
	}
	if found {
		old, err := sp.cellAt(pos)
		if err != nil {
			return 0, err
		}
		if len(raw) <= len(old) {
			// In-place overwrite — cheaper than delete+insert and never
			// changes the directory.
			copy(sp.buf[sp.getSlot(pos):], raw)
			return pos, nil
		}
		if err := sp.deleteCellLocked(pos); err != nil {
			return 0, err
		}
		return sp.insertAt(pos, raw)
	}
	return sp.insertAt(pos, raw)
}

// insertAt places raw at slot index pos, defragmenting first if the
// contiguous free gap is too small, and signals ErrPageFull if there is
// still not enough room afterwards.
func (sp *SlottedPage) insertAt(pos int, raw []byte) (int, error) {
	needed := len(raw) + slotPointerSize
	if sp.freeGap() < needed {
		sp.Defragment()
		if sp.freeGap() < needed {
			return 0, ErrPageFull
		}
	}
	newStart := sp.contentStart() - len(raw)
	copy(sp.buf[newStart:], raw)
	sp.setContentStart(newStart)

	n := sp.CellCount()
	for i := n; i > pos; i-- {
		sp.setSlot(i, sp.getSlot(i-1))
	}
	sp.setSlot(pos, newStart)
	sp.setCellCount(n + 1)
	return pos, nil
}

// InsertLeaf inserts or overwrites a key/value pair, keeping the
// directory sorted. Leaf pages only.
func (sp *SlottedPage) InsertLeaf(key, value []byte) (int, error) {
	if sp.typ != PageTypeLeaf {
		panic("pager: InsertLeaf on an interior page")
	}
	return sp.insertSorted(key, encodeLeafCell(key, value))
}

// InsertInterior inserts a separator key and its associated child
// pointer, keeping the directory sorted. Interior pages only.
func (sp *SlottedPage) InsertInterior(key []byte, leftChild PageID) (int, error) {
	if sp.typ != PageTypeInterior {
		panic("pager: InsertInterior on a leaf page")
	}
	return sp.insertSorted(key, encodeInteriorCell(key, leftChild))
}

// DeleteCell removes the pointer entry at slot index i and credits the
// removed cell's size to the fragmented-bytes counter; the cell's bytes
// stay in the content area until the next Defragment.
func (sp *SlottedPage) DeleteCell(i int) error {
	return sp.deleteCellLocked(i)
}

func (sp *SlottedPage) deleteCellLocked(i int) error {
	n := sp.CellCount()
	if i < 0 || i >= n {
		return fmt.Errorf("pager: slot %d out of range [0,%d)", i, n)
	}
	cell, err := sp.cellAt(i)
	if err != nil {
		return err
	}
	sp.addFragmentedBytes(len(cell))
	for j := i; j < n-1; j++ {
		sp.setSlot(j, sp.getSlot(j+1))
	}
	sp.setCellCount(n - 1)
	return nil
}

// Defragment repacks every live cell against the high end of the page in
// slot order, reclaiming space left by deletions and oversized
// overwrites.
func (sp *SlottedPage) Defragment() {
	n := sp.CellCount()
	type live struct {
		data []byte
	}
	cells := make([]live, n)
	for i := 0; i < n; i++ {
		// Copy out before we start overwriting the buffer in place.
		c, err := sp.cellAt(i)
		if err != nil {
			// A page that fails to decode here was already corrupt
			// before defragmentation was attempted; there is nothing
			// safe to do but stop rewriting and leave it as-is.
			return
		}
		cells[i] = live{data: append([]byte(nil), c...)}
	}
	end := len(sp.buf)
	for i := n - 1; i >= 0; i-- {
		end -= len(cells[i].data)
		copy(sp.buf[end:], cells[i].data)
		sp.setSlot(i, end)
	}
	sp.setContentStart(end)
	sp.buf[hdrFragmentedBytesOff] = 0
	binary.LittleEndian.PutUint16(sp.buf[hdrFirstFreeBlockOff:], 0)
}

// ── Split ─────────────────────────────────────────────────────────────────

// SplitInto moves the upper half of sp's cells into empty (a freshly
// initialised page of the same kind) and returns the separator key to
// propagate to the parent. See btree.go for how the separator and the
// promoted child pointer (interior case) are wired into the parent.
func (sp *SlottedPage) SplitInto(empty *SlottedPage) (separatorKey []byte, err error) {
	if sp.typ != empty.typ {
		return nil, fmt.Errorf("pager: split into a page of a different kind")
	}
	n := sp.CellCount()
	mid := n / 2

	if sp.typ == PageTypeLeaf {
		for i := mid; i < n; i++ {
			key, value, err := sp.LeafEntryAt(i)
			if err != nil {
				return nil, err
			}
			if _, err := empty.InsertLeaf(append([]byte(nil), key...), append([]byte(nil), value...)); err != nil {
				return nil, fmt.Errorf("pager: split leaf insert: %w", err)
			}
		}
		sep, _, err := sp.LeafEntryAt(mid)
		if err != nil {
			return nil, err
		}
		sep = append([]byte(nil), sep...)
		for i := n - 1; i >= mid; i-- {
			if err := sp.DeleteCell(i); err != nil {
				return nil, err
			}
		}
		return sep, nil
	}

	// Interior: the first moved cell is promoted out of the cell array —
	// its key becomes the separator and its leftChild becomes the new
	// page's rightmost child.
	promotedKey, promotedChild, err := sp.InteriorEntryAt(mid)
	if err != nil {
		return nil, err
	}
	promotedKey = append([]byte(nil), promotedKey...)
	empty.SetRightmostChild(promotedChild)
	for i := mid + 1; i < n; i++ {
		key, child, err := sp.InteriorEntryAt(i)
		if err != nil {
			return nil, err
		}
		if _, err := empty.InsertInterior(append([]byte(nil), key...), child); err != nil {
			return nil, fmt.Errorf("pager: split interior insert: %w", err)
		}
	}
	for i := n - 1; i >= mid; i-- {
		if err := sp.DeleteCell(i); err != nil {
			return nil, err
		}
	}
	return promotedKey, nil
}
