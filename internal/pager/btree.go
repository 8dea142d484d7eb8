package pager

import (
	"bytes"
	"fmt"
)

// ───────────────────────────────────────────────────────────────────────────
// B-tree
// ───────────────────────────────────────────────────────────────────────────
//
// Pointer convention: an interior page's "rightmost child" field (R)
// holds the LEFTMOST subtree — the
// one for keys below the page's first separator — while each cell's
// leftChild field holds the subtree for keys at-or-above that cell's
// own separator. Given cells sorted ascending with cell[i].Key = s_i+1:
//
//   R            → keys <  s_1
//   cell[0].left → keys >= s_1, < s_2
//   cell[1].left → keys >= s_2, < s_3
//   ...
//   cell[n-1].left → keys >= s_n
//
// The payoff of this inversion: after a child split, propagating the
// split to the parent is a single sorted insert of one new cell
// (separator, newRightHandChildID) — no existing cell's child pointer
// is ever touched, because the split always keeps the ORIGINAL page id
// for the lower half and only allocates a fresh id for the upper half.
// Every pointer that referenced the original id before the split still
// correctly refers to a (now smaller) range after it.

// BTree implements the on-disk ordered map: Get, Insert, Delete, and
// the split/root-growth machinery that keeps it balanced on the way in.
type BTree struct {
	bp   *BufferPool
	disk *DiskManager

	// maxLeafKeys / maxInteriorKeys are optional key-count ceilings on
	// top of the byte-level ErrPageFull signal, letting callers force
	// small, easy-to-reason-about splits in tests. 0 disables the
	// check (byte size is the only limit).
	maxLeafKeys     int
	maxInteriorKeys int
}

// NewBTree builds a B-tree over an already-open buffer pool and disk
// manager.
func NewBTree(bp *BufferPool, disk *DiskManager, maxLeafKeys, maxInteriorKeys int) *BTree {
	return &BTree{bp: bp, disk: disk, maxLeafKeys: maxLeafKeys, maxInteriorKeys: maxInteriorKeys}
}

// childFor returns which child of an interior page holds key, per the
// pointer convention described above.
func childFor(page *SlottedPage, key []byte) (PageID, error) {
	pos, found, err := page.Search(key)
	if err != nil {
		return 0, err
	}
	if found {
		_, child, err := page.InteriorEntryAt(pos)
		return child, err
	}
	if pos == 0 {
		return page.RightmostChild(), nil
	}
	_, child, err := page.InteriorEntryAt(pos - 1)
	return child, err
}

// Get looks up key, descending from the root one page guard at a time:
// at most one page guard is held at once during traversal.
func (t *BTree) Get(key []byte) (value []byte, found bool, err error) {
	root := t.disk.RootPageID()
	if root == InvalidPageID {
		return nil, false, nil
	}
	id := root
	for {
		rg, err := t.bp.FetchRead(id)
		if err != nil {
			return nil, false, err
		}
		page, err := rg.Page()
		if err != nil {
			rg.Release()
			return nil, false, err
		}
		if page.IsLeaf() {
			pos, found, err := page.Search(key)
			if err != nil || !found {
				rg.Release()
				return nil, false, err
			}
			_, v, err := page.LeafEntryAt(pos)
			if err != nil {
				rg.Release()
				return nil, false, err
			}
			out := append([]byte(nil), v...)
			rg.Release()
			return out, true, nil
		}
		child, err := childFor(page, key)
		rg.Release()
		if err != nil {
			return nil, false, err
		}
		id = child
	}
}

// Insert adds or overwrites key/value, splitting leaves and interior
// pages and growing the root as needed.
func (t *BTree) Insert(key, value []byte) error {
	root := t.disk.RootPageID()
	if root == InvalidPageID {
		wg, err := t.bp.NewPage()
		if err != nil {
			return err
		}
		sp := NewLeafPage(wg.Bytes())
		if _, err := sp.InsertLeaf(key, value); err != nil {
			wg.Release()
			return fmt.Errorf("pager: insert into empty tree: %w", err)
		}
		id := wg.ID()
		wg.Release()
		t.disk.SetRootPageID(id)
		t.disk.SetTreeHeight(1)
		return nil
	}

	var path []PageID
	id := root
	for {
		rg, err := t.bp.FetchRead(id)
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
			break
		}
		child, err := childFor(page, key)
		rg.Release()
		if err != nil {
			return err
		}
		path = append(path, id)
		id = child
	}

	leafID := id
	wg, err := t.bp.FetchWrite(leafID)
	if err != nil {
		return err
	}
	sp, err := wg.Page()
	if err != nil {
		wg.Release()
		return err
	}

	_, insErr := sp.InsertLeaf(key, value)
	inserted := insErr == nil
	if insErr != nil && insErr != ErrPageFull {
		wg.Release()
		return insErr
	}
	if inserted && !t.leafOverflows(sp) {
		wg.Release()
		return nil
	}

	newWg, err := t.bp.NewPage()
	if err != nil {
		wg.Release()
		return err
	}
	newSp := NewLeafPage(newWg.Bytes())
	sep, err := sp.SplitInto(newSp)
	if err != nil {
		wg.Release()
		newWg.Release()
		return fmt.Errorf("pager: split leaf: %w", err)
	}
	if !inserted {
		if bytes.Compare(key, sep) < 0 {
			_, err = sp.InsertLeaf(key, value)
		} else {
			_, err = newSp.InsertLeaf(key, value)
		}
		if err != nil {
			wg.Release()
			newWg.Release()
			return fmt.Errorf("pager: insert after leaf split: %w", err)
		}
	}
	newID := newWg.ID()
	wg.Release()
	newWg.Release()

	return t.insertIntoParent(path, leafID, sep, newID)
}

func (t *BTree) leafOverflows(sp *SlottedPage) bool {
	return t.maxLeafKeys > 0 && sp.CellCount() > t.maxLeafKeys
}

func (t *BTree) interiorOverflows(sp *SlottedPage) bool {
	return t.maxInteriorKeys > 0 && sp.CellCount() > t.maxInteriorKeys
}

// insertIntoParent propagates a split upward. lowerID is the original,
// unmoved page id that the (possibly still-to-be-created) new root must
// reference explicitly; every other ancestor pointer to it is already
// correct and untouched.
func (t *BTree) insertIntoParent(path []PageID, lowerID PageID, sep []byte, upperID PageID) error {
	if len(path) == 0 {
		wg, err := t.bp.NewPage()
		if err != nil {
			return err
		}
		root := NewInteriorPage(wg.Bytes())
		root.SetRightmostChild(lowerID)
		if _, err := root.InsertInterior(sep, upperID); err != nil {
			wg.Release()
			return fmt.Errorf("pager: insert into new root: %w", err)
		}
		newRootID := wg.ID()
		wg.Release()
		t.disk.SetRootPageID(newRootID)
		t.disk.SetTreeHeight(t.disk.TreeHeight() + 1)
		return nil
	}

	parentID := path[len(path)-1]
	wg, err := t.bp.FetchWrite(parentID)
	if err != nil {
		return err
	}
	sp, err := wg.Page()
	if err != nil {
		wg.Release()
		return err
	}

	_, insErr := sp.InsertInterior(sep, upperID)
	inserted := insErr == nil
	if insErr != nil && insErr != ErrPageFull {
		wg.Release()
		return insErr
	}
	if inserted && !t.interiorOverflows(sp) {
		wg.Release()
		return nil
	}

	newWg, err := t.bp.NewPage()
	if err != nil {
		wg.Release()
		return err
	}
	newSp := NewInteriorPage(newWg.Bytes())
	parentSep, err := sp.SplitInto(newSp)
	if err != nil {
		wg.Release()
		newWg.Release()
		return fmt.Errorf("pager: split interior: %w", err)
	}
	if !inserted {
		if bytes.Compare(sep, parentSep) < 0 {
			_, err = sp.InsertInterior(sep, upperID)
		} else {
			_, err = newSp.InsertInterior(sep, upperID)
		}
		if err != nil {
			wg.Release()
			newWg.Release()
			return fmt.Errorf("pager: insert after interior split: %w", err)
		}
	}
	newParentID := newWg.ID()
	wg.Release()
	newWg.Release()

	return t.insertIntoParent(path[:len(path)-1], parentID, parentSep, newParentID)
}

// Delete removes key if present. There is no underflow rebalancing:
// removing a key never merges or borrows from sibling pages, it only
// ever shrinks the one leaf it lives on. The single exception is a root
// leaf going empty: that page is freed and the tree reset to empty below.
// Leaves under an interior root are never freed, so a multi-level tree
// keeps its root and height even after its last key is deleted.
func (t *BTree) Delete(key []byte) (existed bool, err error) {
	root := t.disk.RootPageID()
	if root == InvalidPageID {
		return false, nil
	}
	id := root
	for {
		rg, err := t.bp.FetchRead(id)
		if err != nil {
			return false, err
		}
		page, err := rg.Page()
		if err != nil {
			rg.Release()
			return false, err
		}
		if page.IsLeaf() {
			rg.Release()
			break
		}
		child, err := childFor(page, key)
		rg.Release()
		if err != nil {
			return false, err
		}
		id = child
	}

	wg, err := t.bp.FetchWrite(id)
	if err != nil {
		return false, err
	}
	sp, err := wg.Page()
	if err != nil {
		wg.Release()
		return false, err
	}
	pos, found, err := sp.Search(key)
	if err != nil {
		wg.Release()
		return false, err
	}
	if !found {
		wg.Release()
		return false, nil
	}
	if err := sp.DeleteCell(pos); err != nil {
		wg.Release()
		return false, err
	}
	empty := id == root && sp.CellCount() == 0
	wg.Release()

	if empty {
		if err := t.bp.DeletePage(id); err != nil {
			return true, err
		}
		t.disk.SetRootPageID(InvalidPageID)
		t.disk.SetTreeHeight(0)
	}
	return true, nil
}
