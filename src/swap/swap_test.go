package swap

import (
	"bytes"
	"testing"

	"blockdev"
	"defs"
)

func TestAllocFreeRoundTrip(t *testing.T) {
	d := blockdev.MkMemDisk(64) // 64 sectors / 8 per slot = 8 slots
	st := Mk(d)
	total := st.FreeSlots()

	s1 := st.Alloc()
	s2 := st.Alloc()
	if s1 == s2 {
		t.Fatalf("Alloc returned the same slot twice: %d", s1)
	}
	if st.FreeSlots() != total-2 {
		t.Fatalf("FreeSlots = %d, want %d", st.FreeSlots(), total-2)
	}

	st.Free(s1)
	if st.FreeSlots() != total-1 {
		t.Fatalf("FreeSlots after one Free = %d, want %d", st.FreeSlots(), total-1)
	}
}

func TestWriteOutReadInRoundTrip(t *testing.T) {
	d := blockdev.MkMemDisk(defs.SectorsPerPage * 4)
	st := Mk(d)
	slot := st.Alloc()

	var page [4096]byte
	for i := range page {
		page[i] = byte(i % 256)
	}
	if err := st.WriteOut(slot, &page); err != nil {
		t.Fatalf("WriteOut: %v", err)
	}

	var back [4096]byte
	if err := st.ReadIn(slot, &back); err != nil {
		t.Fatalf("ReadIn: %v", err)
	}
	if !bytes.Equal(page[:], back[:]) {
		t.Fatalf("ReadIn did not round-trip WriteOut's bytes")
	}
}

func TestAllocPanicsWhenSwapDiskIsFull(t *testing.T) {
	d := blockdev.MkMemDisk(defs.SectorsPerPage) // exactly one slot
	st := Mk(d)
	st.Alloc()

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("Alloc on a full swap disk should panic")
		}
	}()
	st.Alloc()
}
