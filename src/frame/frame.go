// Package frame implements the physical frame table of spec.md §4.6:
// a fixed-capacity pool of frames with FIFO eviction. Grounded on
// original_source/vm/vm.c's frame_table/vm_get_victim/vm_get_frame
// (a plain FIFO queue, evict-the-oldest with no second-chance bit),
// with the FIFO queue itself built over container/list the way the
// teacher's fs/blk.go BlkList_t batches work, and capacity tracked
// with golang.org/x/sync/semaphore instead of a hand-rolled counter.
package frame

import (
	"container/list"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Owner_i is whatever a page-table layer needs in order to evict a
// frame: write its contents out (if dirty/swap-backed) and clear the
// mapping that pointed at it. Kept minimal and decoupled from
// src/page/src/vmspace to avoid an import cycle — frame only needs to
// ask its current occupant to give up the frame.
type Owner_i interface {
	SwapOut() error
}

// Frame_t is one physical frame: backing storage and the page
// currently occupying it, if any.
type Frame_t struct {
	Data  [4096]byte
	owner Owner_i
	elem  *list.Element
}

// Table_t is the frame table: a capacity-bounded FIFO pool.
type Table_t struct {
	mu    sync.Mutex
	fifo  *list.List // of *Frame_t, oldest at front
	cap   *semaphore.Weighted
	n     int64
	limit int64
}

// Mk allocates a frame table able to hold up to capacity frames.
func Mk(capacity int) *Table_t {
	return &Table_t{
		fifo:  list.New(),
		cap:   semaphore.NewWeighted(int64(capacity)),
		limit: int64(capacity),
	}
}

// GetFrame returns a fresh frame if capacity remains, evicting the
// oldest occupied frame (via its owner's SwapOut) otherwise. Ported
// from vm_get_frame's "allocate; on failure, evict" shape, collapsed
// into one capacity-tracked call.
func (t *Table_t) GetFrame() (*Frame_t, error) {
	if t.cap.TryAcquire(1) {
		f := &Frame_t{}
		t.mu.Lock()
		f.elem = t.fifo.PushBack(f)
		t.mu.Unlock()
		return f, nil
	}
	return t.evict()
}

// evict pops the oldest frame, asks its owner to write it out, and
// recycles it as a fresh frame at the back of the FIFO.
func (t *Table_t) evict() (*Frame_t, error) {
	t.mu.Lock()
	e := t.fifo.Front()
	if e == nil {
		t.mu.Unlock()
		panic("frame: evict called on an empty table, capacity accounting is broken")
	}
	t.fifo.Remove(e)
	victim := e.Value.(*Frame_t)
	t.mu.Unlock()

	if victim.owner != nil {
		if err := victim.owner.SwapOut(); err != nil {
			return nil, err
		}
	}
	victim.owner = nil
	victim.Data = [4096]byte{}

	t.mu.Lock()
	victim.elem = t.fifo.PushBack(victim)
	t.mu.Unlock()
	return victim, nil
}

// Bind records f's current occupant, used to decide who to notify on
// eviction.
func (t *Table_t) Bind(f *Frame_t, owner Owner_i) {
	f.owner = owner
}

// Free releases f back to the pool, dropping it from the FIFO and
// returning its capacity slot.
func (t *Table_t) Free(f *Frame_t) {
	t.mu.Lock()
	t.fifo.Remove(f.elem)
	t.mu.Unlock()
	f.owner = nil
	t.cap.Release(1)
}

// TryReserve reports whether n frames are currently available without
// eviction, without consuming them.
func (t *Table_t) TryReserve(n int) bool {
	if t.cap.TryAcquire(int64(n)) {
		t.cap.Release(int64(n))
		return true
	}
	return false
}
