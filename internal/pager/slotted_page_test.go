package pager

import (
	"bytes"
	"fmt"
	"testing"
)

func TestSlottedPage_LeafInsertSortedAndSearch(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	sp := NewLeafPage(buf)

	keys := []string{"mango", "apple", "zebra", "grape", "apple"} // apple inserted twice
	for _, k := range keys {
		if _, err := sp.InsertLeaf([]byte(k), []byte("v-"+k)); err != nil {
			t.Fatalf("InsertLeaf(%q): %v", k, err)
		}
	}

	if got := sp.CellCount(); got != 4 {
		t.Fatalf("CellCount() = %d, want 4 (duplicate key must overwrite)", got)
	}

	want := []string{"apple", "grape", "mango", "zebra"}
	for i, w := range want {
		k, v, err := sp.LeafEntryAt(i)
		if err != nil {
			t.Fatalf("LeafEntryAt(%d): %v", i, err)
		}
		if string(k) != w {
			t.Fatalf("slot %d key = %q, want %q", i, k, w)
		}
		if string(v) != "v-"+w {
			t.Fatalf("slot %d value = %q, want %q", i, v, "v-"+w)
		}
	}

	for _, w := range want {
		pos, found, err := sp.Search([]byte(w))
		if err != nil || !found {
			t.Fatalf("Search(%q) = %d,%v,%v want found", w, pos, found, err)
		}
	}
	pos, found, err := sp.Search([]byte("kiwi"))
	if err != nil {
		t.Fatalf("Search(kiwi): %v", err)
	}
	if found {
		t.Fatalf("Search(kiwi) unexpectedly found")
	}
	if pos != 2 { // between grape and mango
		t.Fatalf("Search(kiwi) lower bound = %d, want 2", pos)
	}
}

func TestSlottedPage_OverwriteLargerValueReplacesCell(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	sp := NewLeafPage(buf)

	if _, err := sp.InsertLeaf([]byte("k"), []byte("short")); err != nil {
		t.Fatalf("initial insert: %v", err)
	}
	bigger := bytes.Repeat([]byte("x"), 200)
	if _, err := sp.InsertLeaf([]byte("k"), bigger); err != nil {
		t.Fatalf("overwrite with larger value: %v", err)
	}
	if sp.CellCount() != 1 {
		t.Fatalf("CellCount() = %d, want 1", sp.CellCount())
	}
	_, v, err := sp.LeafEntryAt(0)
	if err != nil {
		t.Fatalf("LeafEntryAt: %v", err)
	}
	if !bytes.Equal(v, bigger) {
		t.Fatalf("value not replaced correctly")
	}
}

func TestSlottedPage_DeleteThenDefragmentReclaimsSpace(t *testing.T) {
	buf := make([]byte, 256)
	sp := NewLeafPage(buf)

	for i := 0; i < 8; i++ {
		k := []byte(fmt.Sprintf("k%02d", i))
		if _, err := sp.InsertLeaf(k, bytes.Repeat([]byte{'v'}, 10)); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	before := sp.FreeSpace()

	// Delete half the cells; physical bytes remain until defrag.
	for i := 7; i >= 4; i-- {
		if err := sp.DeleteCell(i); err != nil {
			t.Fatalf("DeleteCell(%d): %v", i, err)
		}
	}
	if sp.FreeSpace() <= before {
		t.Fatalf("FreeSpace() after delete = %d, want > %d (freed slot pointers)", sp.FreeSpace(), before)
	}
	afterDelete := sp.FreeSpace()

	sp.Defragment()
	if sp.FreeSpace() <= afterDelete {
		t.Fatalf("Defragment() did not reclaim additional space: before=%d after=%d", afterDelete, sp.FreeSpace())
	}
	if sp.CellCount() != 4 {
		t.Fatalf("CellCount() after delete = %d, want 4", sp.CellCount())
	}
	for i := 0; i < 4; i++ {
		k, _, err := sp.LeafEntryAt(i)
		if err != nil {
			t.Fatalf("LeafEntryAt(%d) after defrag: %v", i, err)
		}
		want := fmt.Sprintf("k%02d", i)
		if string(k) != want {
			t.Fatalf("slot %d key = %q, want %q", i, k, want)
		}
	}
}

func TestSlottedPage_InsertReturnsPageFullWhenExhausted(t *testing.T) {
	buf := make([]byte, 64) // tiny page, header(8) + little content
	sp := NewLeafPage(buf)

	var lastErr error
	for i := 0; i < 100; i++ {
		k := []byte(fmt.Sprintf("key-%03d", i))
		_, lastErr = sp.InsertLeaf(k, []byte("0123456789"))
		if lastErr != nil {
			break
		}
	}
	if lastErr != ErrPageFull {
		t.Fatalf("expected ErrPageFull once page exhausted, got %v", lastErr)
	}
}

func TestSlottedPage_InteriorEntriesAndRightmostChild(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	sp := NewInteriorPage(buf)
	sp.SetRightmostChild(PageID(7))

	if _, err := sp.InsertInterior([]byte("m"), PageID(2)); err != nil {
		t.Fatalf("InsertInterior: %v", err)
	}
	if _, err := sp.InsertInterior([]byte("b"), PageID(3)); err != nil {
		t.Fatalf("InsertInterior: %v", err)
	}

	if sp.RightmostChild() != PageID(7) {
		t.Fatalf("RightmostChild() = %d, want 7", sp.RightmostChild())
	}
	k0, c0, err := sp.InteriorEntryAt(0)
	if err != nil || string(k0) != "b" || c0 != PageID(3) {
		t.Fatalf("slot 0 = %q,%d,%v want b,3,nil", k0, c0, err)
	}
	k1, c1, err := sp.InteriorEntryAt(1)
	if err != nil || string(k1) != "m" || c1 != PageID(2) {
		t.Fatalf("slot 1 = %q,%d,%v want m,2,nil", k1, c1, err)
	}
}

func TestSlottedPage_SplitLeafPreservesOrderAndSeparator(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	sp := NewLeafPage(buf)
	keys := []string{"a", "b", "c", "d", "e", "f", "g"}
	for _, k := range keys {
		if _, err := sp.InsertLeaf([]byte(k), []byte("v"+k)); err != nil {
			t.Fatalf("insert %q: %v", k, err)
		}
	}

	newBuf := make([]byte, DefaultPageSize)
	newPage := NewLeafPage(newBuf)
	sep, err := sp.SplitInto(newPage)
	if err != nil {
		t.Fatalf("SplitInto: %v", err)
	}

	mid := len(keys) / 2
	if string(sep) != keys[mid] {
		t.Fatalf("separator = %q, want %q", sep, keys[mid])
	}
	if sp.CellCount() != mid {
		t.Fatalf("original CellCount() = %d, want %d", sp.CellCount(), mid)
	}
	if newPage.CellCount() != len(keys)-mid {
		t.Fatalf("new page CellCount() = %d, want %d", newPage.CellCount(), len(keys)-mid)
	}
	for i := 0; i < mid; i++ {
		k, _, _ := sp.LeafEntryAt(i)
		if string(k) != keys[i] {
			t.Fatalf("original slot %d = %q, want %q", i, k, keys[i])
		}
	}
	for i := 0; i < len(keys)-mid; i++ {
		k, _, _ := newPage.LeafEntryAt(i)
		if string(k) != keys[mid+i] {
			t.Fatalf("new page slot %d = %q, want %q", i, k, keys[mid+i])
		}
	}
}

func TestSlottedPage_SplitInteriorPromotesFirstMovedCell(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	sp := NewInteriorPage(buf)
	sp.SetRightmostChild(PageID(100))

	seps := []struct {
		key   string
		child PageID
	}{
		{"b", 1}, {"d", 2}, {"f", 3}, {"h", 4}, {"j", 5},
	}
	for _, s := range seps {
		if _, err := sp.InsertInterior([]byte(s.key), s.child); err != nil {
			t.Fatalf("insert %q: %v", s.key, err)
		}
	}

	newBuf := make([]byte, DefaultPageSize)
	newPage := NewInteriorPage(newBuf)
	sep, err := sp.SplitInto(newPage)
	if err != nil {
		t.Fatalf("SplitInto: %v", err)
	}

	mid := len(seps) / 2 // index 2 -> "f"
	if string(sep) != seps[mid].key {
		t.Fatalf("separator = %q, want %q", sep, seps[mid].key)
	}
	if newPage.RightmostChild() != seps[mid].child {
		t.Fatalf("new page rightmost child = %d, want %d", newPage.RightmostChild(), seps[mid].child)
	}
	if sp.CellCount() != mid {
		t.Fatalf("original CellCount() = %d, want %d", sp.CellCount(), mid)
	}
	if newPage.CellCount() != len(seps)-mid-1 {
		t.Fatalf("new page CellCount() = %d, want %d", newPage.CellCount(), len(seps)-mid-1)
	}
	for i := 0; i < newPage.CellCount(); i++ {
		k, c, _ := newPage.InteriorEntryAt(i)
		want := seps[mid+1+i]
		if string(k) != want.key || c != want.child {
			t.Fatalf("new page slot %d = %q,%d want %q,%d", i, k, c, want.key, want.child)
		}
	}
}

func TestSlottedPage_LoadPageValidatesHeader(t *testing.T) {
	buf := make([]byte, DefaultPageSize)
	NewLeafPage(buf)
	if _, err := LoadPage(buf); err != nil {
		t.Fatalf("LoadPage of a freshly initialised page: %v", err)
	}

	bad := make([]byte, DefaultPageSize)
	bad[0] = 0xFF
	if _, err := LoadPage(bad); err == nil {
		t.Fatalf("expected error loading a page with an unknown type tag")
	}
}
