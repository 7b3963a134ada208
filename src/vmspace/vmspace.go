// Package vmspace implements the per-process address space of spec.md
// §4.9 (fault handling), §4.10 (fork), and §4.8's mmap/munmap: a
// supplemental page table plus a software page map standing in for
// real hardware PTEs (see SPEC_FULL.md §0 — this repo runs on a
// hosted Go runtime with no direct-mapped physical memory to map).
// Grounded on original_source/vm/vm.c's vm_try_handle_fault/
// vm_do_claim_page/supplemental_page_table_copy and vm/file.c's
// do_mmap/do_munmap; the held-lock assertion pattern
// (Lock_pmap/Unlock_pmap/Lockassert_pmap) is kept verbatim from the
// teacher's vm/as.go Vm_t because it encodes a genuine invariant the
// fault path depends on.
package vmspace

import (
	"sync"

	"defs"
	"frame"
	"inode"
	"page"
	"spt"
	"util"
)

const pageSize = defs.PageSize

// userStackTop and stackGrowthLimit bound automatic stack growth, per
// original_source's USER_STACK - (1<<20) < addr < USER_STACK window
// and the "rsp - 32" slack.
const (
	userStackTop     = uintptr(0x47480000) // arbitrary but fixed simulated top, mirrors PintOS's USER_STACK
	stackGrowthLimit = uintptr(1 << 20)
	stackSlack       = uintptr(32)
)

// AddrSpace_t is one process's virtual address space.
type AddrSpace_t struct {
	sync.Mutex
	pgfltaken bool

	Spt    *spt.Table_t
	Frames *frame.Table_t
	Deps   *page.Deps

	// pmap is the software stand-in for a hardware page table: the set
	// of VAs currently mapped to a resident frame.
	pmap map[uintptr]*frame.Frame_t

	// order records page-aligned VAs in insertion order. The generic
	// hashtable backing Spt has no iteration primitive, so Fork walks
	// this instead; Spt.Find still governs whether an entry is live.
	order []uintptr
}

// insert adds d to the SPT and records its VA for later enumeration
// by Fork.
func (as *AddrSpace_t) insert(d *page.Descriptor_t) bool {
	if !as.Spt.Insert(d) {
		return false
	}
	as.order = append(as.order, align(d.VA))
	return true
}

// Mk returns a fresh, empty address space sharing the given frame
// table and page dependencies (swap table, inode cache).
func Mk(frames *frame.Table_t, deps *page.Deps) *AddrSpace_t {
	return &AddrSpace_t{
		Spt:    spt.Mk(),
		Frames: frames,
		Deps:   deps,
		pmap:   make(map[uintptr]*frame.Frame_t),
	}
}

// Lock_pmap acquires the address space mutex and marks that a page
// fault is being handled, matching the teacher's Vm_t.Lock_pmap.
func (as *AddrSpace_t) Lock_pmap() {
	as.Lock()
	as.pgfltaken = true
}

// Unlock_pmap releases the address space mutex after page table
// manipulation completes.
func (as *AddrSpace_t) Unlock_pmap() {
	as.pgfltaken = false
	as.Unlock()
}

// Lockassert_pmap panics if the address space mutex is not held.
func (as *AddrSpace_t) Lockassert_pmap() {
	if !as.pgfltaken {
		panic("vmspace: pgfl lock must be held")
	}
}

func align(va uintptr) uintptr {
	return util.Rounddown(va, pageSize)
}

// claim brings d's page into a frame and records the mapping,
// grounded on vm_do_claim_page. Caller must hold the pmap lock.
func (as *AddrSpace_t) claim(d *page.Descriptor_t) defs.Err_t {
	as.Lockassert_pmap()
	if d.Resident() {
		return 0
	}
	f, err := as.Frames.GetFrame()
	if err != nil {
		return defs.ENOMEM
	}
	as.Frames.Bind(f, d)
	if err := d.SwapIn(&f.Data); err != nil {
		as.Frames.Free(f)
		return defs.ENOSWAP
	}
	as.pmap[align(d.VA)] = f
	return 0
}

// HandleFault services a page fault at addr, growing the stack if
// addr falls in the automatic-growth window, matching
// vm_try_handle_fault. write indicates a write access; a write to a
// read-only-mapped page is rejected (EINVAL, the caller's process
// then exits per spec.md's userprog convention — scheduling/exit
// itself is out of this package's scope).
func (as *AddrSpace_t) HandleFault(addr uintptr, rsp uintptr, write bool) defs.Err_t {
	as.Lock_pmap()
	defer as.Unlock_pmap()

	d, ok := as.Spt.Find(addr)
	if !ok {
		if addr < userStackTop && addr+stackGrowthLimit > userStackTop && addr+stackSlack > rsp {
			d = page.NewAnon(as.Deps, align(addr), true, true)
			if !as.insert(d) {
				return defs.EINVAL
			}
		} else {
			return defs.EFAULT
		}
	} else if write && !d.Writable {
		return defs.EINVAL
	}
	return as.claim(d)
}

// Mmap maps length bytes of in starting at fileOfs into the address
// space at addr (page-aligned), lazily: the data is read in on first
// fault, per do_mmap/load_segment__. Each page gets a FILE descriptor
// that stays non-resident until then (no UNINIT stage). Rejects addr == 0, a misaligned addr or fileOfs, an addr
// inside kernel space, a zero length, and an empty backing file, per
// do_mmap's own argument checks.
func (as *AddrSpace_t) Mmap(addr uintptr, length uint32, writable bool, in *inode.Inode_t, fileOfs uint32) defs.Err_t {
	if addr == 0 || addr%pageSize != 0 || addr >= defs.KernelBase {
		return defs.EINVAL
	}
	if length == 0 || fileOfs%uint32(pageSize) != 0 {
		return defs.EINVAL
	}
	if in.Length == 0 {
		return defs.EINVAL
	}
	as.Lock_pmap()
	defer as.Unlock_pmap()

	for off := uint32(0); off < length; off += uint32(pageSize) {
		va := addr + uintptr(off)
		pageBytes := util.Min(uint32(pageSize), length-off)
		d := page.NewFile(as.Deps, va, writable, in, fileOfs+off, pageBytes)
		if !as.insert(d) {
			as.unmapRange(addr, off)
			return defs.EINVAL
		}
	}
	return 0
}

// Munmap removes every page of the mapping starting at addr, matching
// do_munmap. No dirty bit is tracked, so every resident FILE page is
// written back before removal.
func (as *AddrSpace_t) Munmap(addr uintptr, length uint32) {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	as.unmapRange(addr, length)
}

func (as *AddrSpace_t) unmapRange(addr uintptr, length uint32) {
	for off := uint32(0); off < length; off += uint32(pageSize) {
		va := align(addr + uintptr(off))
		d, ok := as.Spt.Find(va)
		if !ok {
			continue
		}
		if f, resident := as.pmap[va]; resident {
			d.Dirty = true // conservative: assume written while mapped
			d.SwapOut()
			as.Frames.Free(f)
			delete(as.pmap, va)
		}
		d.Destroy()
		as.Spt.Remove(va)
	}
}

// Fork duplicates as into a fresh child address space, per spec.md
// §4.10: ANON pages are copied eagerly (fresh frame, bytes
// duplicated); FILE pages are shared read-only in the child. Grounded
// on supplemental_page_table_copy's per-entry dispatch.
func (as *AddrSpace_t) Fork() (*AddrSpace_t, defs.Err_t) {
	as.Lock_pmap()
	defer as.Unlock_pmap()

	child := Mk(as.Frames, as.Deps)
	var fault defs.Err_t
	as.forEach(func(va uintptr, d *page.Descriptor_t) bool {
		var childFrame [4096]byte
		cd := d.CopyForFork(&childFrame)
		if !child.insert(cd) {
			fault = defs.ENOMEM
			return false
		}
		if cd.Resident() {
			f, err := child.Frames.GetFrame()
			if err != nil {
				fault = defs.ENOMEM
				return false
			}
			f.Data = *cd.Frame
			cd.Frame = &f.Data
			child.Frames.Bind(f, cd)
			child.pmap[align(va)] = f
		}
		return true
	})
	if fault != 0 {
		return nil, fault
	}
	return child, 0
}

// forEach walks every live page in insertion order, via the order
// slice recorded by insert (the generic hashtable backing Spt has no
// iteration primitive of its own).
func (as *AddrSpace_t) forEach(f func(va uintptr, d *page.Descriptor_t) bool) {
	for _, va := range as.order {
		d, ok := as.Spt.Find(va)
		if !ok {
			continue
		}
		if !f(va, d) {
			return
		}
	}
}
