// Package page implements the page descriptor classes of spec.md
// §4.8/§9: a single Descriptor_t carrying an explicit Kind
// discriminant, with vtable-like SwapIn/SwapOut/Destroy dispatch, per
// spec.md §9's REDESIGN directive replacing the source's
// union-plus-function-pointer-table style
// (original_source/vm/uninit.c's page_operations, vm/anon.c's
// anon_ops, vm/file.c's file_ops).
package page

import (
	"inode"
	"swap"
)

// Kind discriminates a Descriptor_t's storage class.
type Kind int

const (
	Uninit Kind = iota
	Anon
	File
)

// Deps bundles the collaborators a descriptor needs to swap itself in
// or out, shared by every descriptor in one address space.
type Deps struct {
	Swap   *swap.Table_t
	Inodes *inode.Cache_t
}

// LazyLoader produces a page's initial bytes the first time it is
// faulted in, grounded on original_source/vm/uninit.c's
// page->uninit.init callback (lazy_load_segment__ for file-backed
// segments).
type LazyLoader func(dst *[4096]byte) error

// Descriptor_t is one supplemental-page-table entry: spec.md's
// per-page state plus enough to swap in/out without further
// arguments. VA is always page-aligned.
type Descriptor_t struct {
	VA       uintptr
	Writable bool
	Kind     Kind
	Frame    *[4096]byte // resident bytes, nil if not mapped
	deps     *Deps

	// UNINIT
	loader    LazyLoader
	afterKind Kind // Anon or File, the type this page becomes once loaded

	// ANON
	SwapSlot uint32
	HasSlot  bool
	Stack    bool // subtype bit: stack pages grow instead of faulting

	// FILE
	Inode     *inode.Inode_t
	FileOfs   uint32
	FileBytes uint32 // bytes to read from the file; rest of the page is zero
	Dirty     bool
}

// NewUninit builds a lazily-initialized descriptor that becomes kind
// `after` (Anon or File) the first time it is faulted in, grounded on
// vm_alloc_page_with_initializer.
func NewUninit(deps *Deps, va uintptr, writable bool, after Kind, loader LazyLoader) *Descriptor_t {
	return &Descriptor_t{VA: va, Writable: writable, Kind: Uninit, deps: deps, loader: loader, afterKind: after}
}

// NewAnon builds an already-resident anonymous page (used by fork's
// eager ANON copy and by stack growth).
func NewAnon(deps *Deps, va uintptr, writable, stack bool) *Descriptor_t {
	return &Descriptor_t{VA: va, Writable: writable, Kind: Anon, deps: deps, Stack: stack}
}

// NewFile builds a file-backed descriptor mapping [ofs, ofs+bytes) of
// in, the rest of the page zero-filled, grounded on do_mmap/
// load_segment__.
func NewFile(deps *Deps, va uintptr, writable bool, in *inode.Inode_t, ofs, bytes uint32) *Descriptor_t {
	return &Descriptor_t{VA: va, Writable: writable, Kind: File, deps: deps, Inode: in, FileOfs: ofs, FileBytes: bytes}
}

// Resident reports whether the page currently occupies a frame.
func (d *Descriptor_t) Resident() bool { return d.Frame != nil }

// SwapIn brings the page's bytes into a newly attached frame. For
// UNINIT pages this runs the lazy loader and promotes Kind to
// afterKind, matching uninit_initialize's "run init, then swap in
// once for real" two-step.
func (d *Descriptor_t) SwapIn(f *[4096]byte) error {
	d.Frame = f
	switch d.Kind {
	case Uninit:
		if d.loader != nil {
			if err := d.loader(f); err != nil {
				return err
			}
		}
		d.Kind = d.afterKind
		return nil
	case Anon:
		if !d.HasSlot {
			// never swapped out: a freshly allocated anonymous page is
			// zero-filled, matching palloc_get_page(PAL_ZERO) semantics.
			*f = [4096]byte{}
			return nil
		}
		if err := d.deps.Swap.ReadIn(d.SwapSlot, f); err != nil {
			return err
		}
		d.deps.Swap.Free(d.SwapSlot)
		d.HasSlot = false
		return nil
	case File:
		*f = [4096]byte{}
		n := d.deps.Inodes.ReadAt(d.Inode, f[:d.FileBytes], d.FileOfs)
		_ = n
		d.Dirty = false
		return nil
	}
	panic("page: SwapIn: unknown kind")
}

// SwapOut evicts the page's frame, preserving its contents according
// to its kind, and drops the in-memory frame pointer. Satisfies
// frame.Owner_i.
func (d *Descriptor_t) SwapOut() error {
	if d.Frame == nil {
		return nil
	}
	switch d.Kind {
	case Anon:
		slot := d.deps.Swap.Alloc()
		if err := d.deps.Swap.WriteOut(slot, d.Frame); err != nil {
			d.deps.Swap.Free(slot)
			return err
		}
		d.SwapSlot = slot
		d.HasSlot = true
	case File:
		if d.Dirty {
			d.deps.Inodes.WriteAt(d.Inode, d.Frame[:d.FileBytes], d.FileOfs)
			d.Dirty = false
		}
	case Uninit:
		panic("page: SwapOut: an UNINIT page cannot be resident")
	}
	d.Frame = nil
	return nil
}

// Destroy releases any resources the page holds beyond its frame
// (ANON's swap slot, if still swapped out). FILE pages write back
// first if dirty, matching write_if_dirty before do_munmap drops a
// page.
func (d *Descriptor_t) Destroy() {
	switch d.Kind {
	case Anon:
		if d.HasSlot {
			d.deps.Swap.Free(d.SwapSlot)
			d.HasSlot = false
		}
	case File:
		if d.Dirty && d.Frame != nil {
			d.deps.Inodes.WriteAt(d.Inode, d.Frame[:d.FileBytes], d.FileOfs)
		}
	}
}

// CopyForFork produces the child's descriptor for this page per
// spec.md §4.10: ANON pages are copied eagerly (fresh frame, bytes
// duplicated); FILE pages are shared read-only in the child
// regardless of the parent's writability, per DESIGN.md's resolution
// of the corresponding Open Question.
func (d *Descriptor_t) CopyForFork(childFrame *[4096]byte) *Descriptor_t {
	switch d.Kind {
	case Anon:
		child := NewAnon(d.deps, d.VA, d.Writable, d.Stack)
		if d.Frame != nil {
			*childFrame = *d.Frame
			child.Frame = childFrame
		}
		return child
	case File:
		return &Descriptor_t{
			VA: d.VA, Writable: false, Kind: File, deps: d.deps,
			Inode: d.Inode, FileOfs: d.FileOfs, FileBytes: d.FileBytes,
		}
	case Uninit:
		return &Descriptor_t{
			VA: d.VA, Writable: d.Writable, Kind: Uninit, deps: d.deps,
			loader: d.loader, afterKind: d.afterKind,
		}
	}
	panic("page: CopyForFork: unknown kind")
}
