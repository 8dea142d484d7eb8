package btreekv

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T, cfg Config) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.db")
	db, err := Open(path, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDB_EmptyStoreRoundTrip(t *testing.T) {
	db := openTestDB(t, Config{})
	_, found, err := db.Get([]byte("missing"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Fatalf("Get on an empty store unexpectedly found a key")
	}
	if ok, err := db.Contains([]byte("missing")); err != nil || ok {
		t.Fatalf("Contains on empty store = %v,%v, want false,nil", ok, err)
	}
}

func TestDB_SingleInsertAndGet(t *testing.T) {
	db := openTestDB(t, Config{})
	if err := db.Put([]byte("name"), []byte("btreekv")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, found, err := db.Get([]byte("name"))
	if err != nil || !found || string(v) != "btreekv" {
		t.Fatalf("Get = %q,%v,%v want btreekv,true,nil", v, found, err)
	}
}

func TestDB_OverwriteExistingKey(t *testing.T) {
	db := openTestDB(t, Config{})
	if err := db.Put([]byte("k"), []byte("first")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := db.Put([]byte("k"), []byte("second")); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	v, found, err := db.Get([]byte("k"))
	if err != nil || !found || string(v) != "second" {
		t.Fatalf("Get after overwrite = %q,%v,%v want second,true,nil", v, found, err)
	}
}

func TestDB_ForceSplitWithSmallMaxLeafKeys(t *testing.T) {
	db := openTestDB(t, Config{MaxLeafKeys: 4, MaxInteriorKeys: 4})
	for c := byte('A'); c <= 'Z'; c++ {
		if err := db.Put([]byte{c}, []byte{c, c}); err != nil {
			t.Fatalf("Put(%c): %v", c, err)
		}
	}
	st, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TreeHeight < 2 {
		t.Fatalf("TreeHeight() = %d, want >= 2 once leaves are forced to split at 4 keys", st.TreeHeight)
	}
	for c := byte('A'); c <= 'Z'; c++ {
		v, found, err := db.Get([]byte{c})
		if err != nil || !found || !bytes.Equal(v, []byte{c, c}) {
			t.Fatalf("Get(%c) = %q,%v,%v", c, v, found, err)
		}
	}
}

func TestDB_BulkInsertPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	db, err := Open(path, Config{MaxLeafKeys: 8, MaxInteriorKeys: 8})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	const n = 1000
	for i := 0; i < n; i++ {
		k := []byte(fmt.Sprintf("key-%05d", i))
		v := []byte(fmt.Sprintf("value-%05d", i))
		if err := db.Put(k, v); err != nil {
			t.Fatalf("Put(%q): %v", k, err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db2, err := Open(path, Config{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()
	for i := 0; i < n; i++ {
		k := []byte(fmt.Sprintf("key-%05d", i))
		want := fmt.Sprintf("value-%05d", i)
		v, found, err := db2.Get(k)
		if err != nil || !found || string(v) != want {
			t.Fatalf("Get(%q) after reopen = %q,%v,%v want %q,true,nil", k, v, found, err, want)
		}
	}
}

func TestDB_RangeScanOrderedAndBounded(t *testing.T) {
	db := openTestDB(t, Config{MaxLeafKeys: 4})
	for _, k := range []string{"apple", "banana", "cherry", "date", "elderberry", "fig", "grape"} {
		if err := db.Put([]byte(k), []byte(k)); err != nil {
			t.Fatalf("Put(%q): %v", k, err)
		}
	}
	var got []string
	err := db.Range([]byte("banana"), []byte("fig"), func(k, v []byte) (bool, error) {
		got = append(got, string(k))
		return true, nil
	})
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	want := []string{"banana", "cherry", "date", "elderberry"}
	if len(got) != len(want) {
		t.Fatalf("Range got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Range got %v, want %v", got, want)
		}
	}
}

func TestDB_AllVisitsEveryKeyInOrder(t *testing.T) {
	db := openTestDB(t, Config{MaxLeafKeys: 4})
	keys := []string{"d", "b", "a", "c"}
	for _, k := range keys {
		if err := db.Put([]byte(k), []byte(k)); err != nil {
			t.Fatalf("Put(%q): %v", k, err)
		}
	}
	var got []string
	if err := db.All(func(k, v []byte) (bool, error) {
		got = append(got, string(k))
		return true, nil
	}); err != nil {
		t.Fatalf("All: %v", err)
	}
	want := []string{"a", "b", "c", "d"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("All() order = %v, want %v", got, want)
		}
	}
}

func TestDB_DeletePresentAndAbsentKeys(t *testing.T) {
	db := openTestDB(t, Config{})
	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	existed, err := db.Delete([]byte("k"))
	if err != nil || !existed {
		t.Fatalf("Delete = %v,%v want true,nil", existed, err)
	}
	if ok, _ := db.Contains([]byte("k")); ok {
		t.Fatalf("key still present after delete")
	}
	existed, err = db.Delete([]byte("k"))
	if err != nil || existed {
		t.Fatalf("second Delete = %v,%v want false,nil", existed, err)
	}
}

func TestDB_PutRejectsOversizedKeyAndValue(t *testing.T) {
	db := openTestDB(t, Config{})
	bigKey := bytes.Repeat([]byte("k"), 2000)
	err := db.Put(bigKey, []byte("v"))
	if _, ok := err.(*KeyTooLargeError); !ok {
		t.Fatalf("Put with oversized key: got %v (%T), want *KeyTooLargeError", err, err)
	}

	bigValue := bytes.Repeat([]byte("v"), db.maxValueSize+1)
	err = db.Put([]byte("k"), bigValue)
	if _, ok := err.(*ValueTooLargeError); !ok {
		t.Fatalf("Put with oversized value: got %v (%T), want *ValueTooLargeError", err, err)
	}
}

func TestDB_SyncOnWritePersistsWithoutExplicitFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	db, err := Open(path, Config{SyncOnWrite: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// A second handle over the same file, opened without ever calling
	// Flush or Close on the first, must already see the write: with
	// SyncOnWrite every Put is durable (and thus readable from disk)
	// the moment it returns.
	db2, err := Open(path, Config{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()
	v, found, err := db2.Get([]byte("k"))
	if err != nil || !found || string(v) != "v" {
		t.Fatalf("Get after sync-on-write Put = %q,%v,%v want v,true,nil", v, found, err)
	}
}

func TestDB_StatsReflectsActivity(t *testing.T) {
	db := openTestDB(t, Config{})
	if err := db.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, _, err := db.Get([]byte("a")); err != nil {
		t.Fatalf("Get: %v", err)
	}
	st, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.PageCount < 2 { // header page + at least one data page
		t.Fatalf("Stats().PageCount = %d, want >= 2", st.PageCount)
	}
	if st.TreeHeight < 1 {
		t.Fatalf("Stats().TreeHeight = %d, want >= 1", st.TreeHeight)
	}
}
