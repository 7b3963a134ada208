package hashtable

import "testing"

func TestSetGetDel(t *testing.T) {
	tbl := Mk[uint32, string](4, Uint64Key[uint32])
	if _, ok := tbl.Get(1); ok {
		t.Fatalf("Get on empty table should miss")
	}
	tbl.Set(1, "one")
	tbl.Set(2, "two")
	v, ok := tbl.Get(1)
	if !ok || v != "one" {
		t.Fatalf("Get(1) = (%q, %v), want (\"one\", true)", v, ok)
	}
	if tbl.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tbl.Len())
	}
	tbl.Del(1)
	if _, ok := tbl.Get(1); ok {
		t.Fatalf("Get(1) after Del should miss")
	}
	if tbl.Len() != 1 {
		t.Fatalf("Len() after Del = %d, want 1", tbl.Len())
	}
}

func TestSetOverwritesAndReturnsPrevious(t *testing.T) {
	tbl := Mk[uint32, int](4, Uint64Key[uint32])
	tbl.Set(5, 100)
	old, existed := tbl.Set(5, 200)
	if !existed || old != 100 {
		t.Fatalf("Set overwrite returned (%d, %v), want (100, true)", old, existed)
	}
	v, _ := tbl.Get(5)
	if v != 200 {
		t.Fatalf("Get(5) = %d, want 200", v)
	}
}

func TestFNV64KeyIsStable(t *testing.T) {
	a := FNV64Key([]byte("same"))
	b := FNV64Key([]byte("same"))
	if a != b {
		t.Fatalf("FNV64Key is not deterministic for identical input")
	}
	if FNV64Key([]byte("x")) == FNV64Key([]byte("y")) {
		t.Fatalf("FNV64Key collided on trivially different inputs (possible but exceedingly unlikely)")
	}
}

func TestUint32KeyedTableSupportsInodeCacheShape(t *testing.T) {
	// guards the earlier Uint64Key constraint bug: it must accept ~uint32.
	tbl := Mk[uint32, *int](16, Uint64Key[uint32])
	val := 42
	tbl.Set(uint32(7), &val)
	got, ok := tbl.Get(uint32(7))
	if !ok || *got != 42 {
		t.Fatalf("uint32-keyed table round trip failed")
	}
}
