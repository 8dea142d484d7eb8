package pager

import "bytes"

// ───────────────────────────────────────────────────────────────────────────
// Ordered iteration
// ───────────────────────────────────────────────────────────────────────────
//
// Leaf pages carry no sibling pointers (there is no room for one in the
// 8-byte leaf header), so "find the next leaf" cannot be a single
// pointer hop. Instead Cursor keeps an explicit stack of frames
// recording, for every ancestor on the current path, which child to
// descend into next. Advancing off the end of a leaf pops back to the
// nearest ancestor with an untried child and re-descends that child's
// leftmost path — a re-descent rather than a sibling-linked walk.
//
// Child index i of an interior page with n cells means:
//   i == 0          → RightmostChild() (the leftmost subtree)
//   1 <= i <= n      → cell[i-1].leftChild

type cursorFrame struct {
	id     PageID
	isLeaf bool
	idx    int // leaf: next slot to read; interior: next child index to try
}

// Cursor walks the tree's entries in ascending key order.
type Cursor struct {
	t     *BTree
	stack []cursorFrame
}

// NewCursor returns a cursor positioned at the first entry in the tree.
func (t *BTree) NewCursor() (*Cursor, error) {
	c := &Cursor{t: t}
	if err := c.pushLeftmostPath(t.disk.RootPageID()); err != nil {
		return nil, err
	}
	return c, nil
}

// NewCursorFrom returns a cursor positioned at the first entry whose key
// is >= startKey.
func (t *BTree) NewCursorFrom(startKey []byte) (*Cursor, error) {
	c := &Cursor{t: t}
	root := t.disk.RootPageID()
	if root == InvalidPageID {
		return c, nil
	}
	id := root
	for {
		rg, err := t.bp.FetchRead(id)
		if err != nil {
			return nil, err
		}
		page, err := rg.Page()
		if err != nil {
			rg.Release()
			return nil, err
		}
		if page.IsLeaf() {
			pos, _, err := page.Search(startKey)
			rg.Release()
			if err != nil {
				return nil, err
			}
			c.stack = append(c.stack, cursorFrame{id: id, isLeaf: true, idx: pos})
			return c, nil
		}

		pos, found, err := page.Search(startKey)
		if err != nil {
			rg.Release()
			return nil, err
		}
		var childIdx int
		var childID PageID
		switch {
		case found:
			childIdx = pos + 1
			_, childID, err = page.InteriorEntryAt(pos)
		case pos == 0:
			childIdx = 0
			childID = page.RightmostChild()
		default:
			childIdx = pos
			_, childID, err = page.InteriorEntryAt(pos - 1)
		}
		rg.Release()
		if err != nil {
			return nil, err
		}
		c.stack = append(c.stack, cursorFrame{id: id, isLeaf: false, idx: childIdx + 1})
		id = childID
	}
}

// pushLeftmostPath pushes frames for id and every leftmost descendant
// down to (and including) a leaf.
func (c *Cursor) pushLeftmostPath(id PageID) error {
	if id == InvalidPageID {
		return nil
	}
	for {
		rg, err := c.t.bp.FetchRead(id)
		if err != nil {
			return err
		}
		page, err := rg.Page()
		if err != nil {
			rg.Release()
			return err
		}
		if page.IsLeaf() {
			rg.Release()
			c.stack = append(c.stack, cursorFrame{id: id, isLeaf: true, idx: 0})
			return nil
		}
		child := page.RightmostChild()
		rg.Release()
		c.stack = append(c.stack, cursorFrame{id: id, isLeaf: false, idx: 1})
		id = child
	}
}

// Next returns the next key/value pair in ascending order, or ok=false
// once the tree is exhausted.
func (c *Cursor) Next() (key, value []byte, ok bool, err error) {
	for len(c.stack) > 0 {
		top := &c.stack[len(c.stack)-1]

		if top.isLeaf {
			rg, err := c.t.bp.FetchRead(top.id)
			if err != nil {
				return nil, nil, false, err
			}
			page, err := rg.Page()
			if err != nil {
				rg.Release()
				return nil, nil, false, err
			}
			if top.idx >= page.CellCount() {
				rg.Release()
				c.stack = c.stack[:len(c.stack)-1]
				continue
			}
			k, v, err := page.LeafEntryAt(top.idx)
			if err != nil {
				rg.Release()
				return nil, nil, false, err
			}
			top.idx++
			outK := append([]byte(nil), k...)
			outV := append([]byte(nil), v...)
			rg.Release()
			return outK, outV, true, nil
		}

		rg, err := c.t.bp.FetchRead(top.id)
		if err != nil {
			return nil, nil, false, err
		}
		page, err := rg.Page()
		if err != nil {
			rg.Release()
			return nil, nil, false, err
		}
		n := page.CellCount()
		if top.idx > n {
			rg.Release()
			c.stack = c.stack[:len(c.stack)-1]
			continue
		}
		var childID PageID
		if top.idx == 0 {
			childID = page.RightmostChild()
		} else {
			_, childID, err = page.InteriorEntryAt(top.idx - 1)
		}
		top.idx++
		rg.Release()
		if err != nil {
			return nil, nil, false, err
		}
		if err := c.pushLeftmostPath(childID); err != nil {
			return nil, nil, false, err
		}
	}
	return nil, nil, false, nil
}

// Range calls fn for every key/value pair with start <= key < end, in
// ascending order, stopping early if fn returns false. A nil end means
// "no upper bound".
func (t *BTree) Range(start, end []byte, fn func(key, value []byte) (bool, error)) error {
	c, err := t.NewCursorFrom(start)
	if err != nil {
		return err
	}
	for {
		k, v, ok, err := c.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if end != nil && bytes.Compare(k, end) >= 0 {
			return nil
		}
		cont, err := fn(k, v)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
}
