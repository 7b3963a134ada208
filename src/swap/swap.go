// Package swap implements the swap-disk slot allocator of spec.md
// §4.8: a page-sized (8-sector) slot bitmap over a dedicated swap
// block device. Ported from original_source/vm/anon.c's
// swap_table/anon_swap_in/anon_swap_out (bitmap_create sized in
// 8-sector slots, bitmap_scan for the first free slot, fatal if
// none).
package swap

import (
	"math/bits"
	"sync"

	"blockdev"
	"defs"
)

const sectorsPerSlot = defs.SectorsPerPage // 8

// Table_t is the swap slot allocator bound to one swap disk.
type Table_t struct {
	mu    sync.Mutex
	disk  blockdev.Disk_i
	words []uint64 // bitmap, one bit per slot; 1 == in use
	nslot uint32
}

// Mk builds a swap table over d, sizing the bitmap to d's capacity in
// page-sized slots, per vm_anon_init's swap_table = bitmap_create
// (disk_size / 8).
func Mk(d blockdev.Disk_i) *Table_t {
	nslot := d.Size() / sectorsPerSlot
	nwords := (nslot + 63) / 64
	return &Table_t{disk: d, words: make([]uint64, nwords), nslot: nslot}
}

// Alloc claims the first free slot, marks it used, and returns it.
// Fatal (panic) if the swap disk is full, matching anon_swap_out's
// ASSERT(0) on BITMAP_ERROR — spec.md §7 treats resource exhaustion
// during a mandatory eviction as unrecoverable.
func (t *Table_t) Alloc() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, w := range t.words {
		if w == ^uint64(0) {
			continue
		}
		bit := bits.TrailingZeros64(^w)
		slot := uint32(i)*64 + uint32(bit)
		if slot >= t.nslot {
			break
		}
		t.words[i] |= 1 << uint(bit)
		return slot
	}
	panic("swap: no free swap slots")
}

// Free clears slot's bit, making it available for reuse.
func (t *Table_t) Free(slot uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.words[slot/64] &^= 1 << (slot % 64)
}

// WriteOut writes an 8-sector page to slot.
func (t *Table_t) WriteOut(slot uint32, page *[4096]byte) error {
	base := slot * sectorsPerSlot
	for i := uint32(0); i < sectorsPerSlot; i++ {
		off := i * defs.SectorSize
		if err := t.disk.WriteSector(base+i, page[off:off+defs.SectorSize]); err != nil {
			return err
		}
	}
	return nil
}

// ReadIn reads slot's 8 sectors back into page.
func (t *Table_t) ReadIn(slot uint32, page *[4096]byte) error {
	base := slot * sectorsPerSlot
	for i := uint32(0); i < sectorsPerSlot; i++ {
		off := i * defs.SectorSize
		if err := t.disk.ReadSector(base+i, page[off:off+defs.SectorSize]); err != nil {
			return err
		}
	}
	return nil
}

// FreeSlots returns the number of unused slots, for tests and
// introspection.
func (t *Table_t) FreeSlots() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	used := uint32(0)
	for _, w := range t.words {
		used += uint32(bits.OnesCount64(w))
	}
	return t.nslot - used
}
