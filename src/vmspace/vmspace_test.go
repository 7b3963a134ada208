package vmspace

import (
	"testing"

	"blockdev"
	"defs"
	"fat"
	"frame"
	"inode"
	"page"
	"swap"
)

func mkAddrSpace(t *testing.T, frameCapacity int) (*AddrSpace_t, *fat.Table_t) {
	t.Helper()
	d := blockdev.MkMemDisk(4096)
	ft, err := fat.Format(d)
	if err != nil {
		t.Fatalf("fat.Format: %v", err)
	}
	deps := &page.Deps{Swap: swap.Mk(d), Inodes: inode.MkCache(ft, d)}
	as := Mk(frame.Mk(frameCapacity), deps)
	return as, ft
}

func TestHandleFaultOnUnmappedAddressFails(t *testing.T) {
	as, _ := mkAddrSpace(t, 4)
	if errv := as.HandleFault(0x1000, 0x1000, false); errv != defs.EFAULT {
		t.Fatalf("HandleFault on an unmapped, non-stack address = %v, want EFAULT", errv)
	}
}

func TestHandleFaultGrowsStack(t *testing.T) {
	as, _ := mkAddrSpace(t, 4)
	addr := userStackTop - pageSize
	rsp := addr // access at rsp itself is always within slack
	if errv := as.HandleFault(addr, rsp, true); errv != 0 {
		t.Fatalf("HandleFault (stack growth) = %v, want 0", errv)
	}
	if _, ok := as.Spt.Find(addr); !ok {
		t.Fatalf("stack growth should have inserted a page at %x", addr)
	}
}

func TestHandleFaultWriteToReadOnlyPageFails(t *testing.T) {
	as, ft := mkAddrSpace(t, 4)
	clst, _ := ft.CreateChain(0)
	sector := ft.SectorOf(clst)
	as.Deps.Inodes.Create(sector, uint32(pageSize), defs.FileType, "")
	in := as.Deps.Inodes.Open(sector)
	defer as.Deps.Inodes.Close(in)

	const va = uintptr(0x40000000)
	if errv := as.Mmap(va, pageSize, false, in, 0); errv != 0 {
		t.Fatalf("Mmap: %v", errv)
	}
	if errv := as.HandleFault(va, va, true); errv != defs.EINVAL {
		t.Fatalf("write fault on a read-only mmap'd page = %v, want EINVAL", errv)
	}
	// a read fault on the same page must still succeed.
	if errv := as.HandleFault(va, va, false); errv != 0 {
		t.Fatalf("read fault on the same page = %v, want 0", errv)
	}
}

func TestMmapThenMunmapRemovesPages(t *testing.T) {
	as, ft := mkAddrSpace(t, 8)
	clst, _ := ft.CreateChain(0)
	sector := ft.SectorOf(clst)
	as.Deps.Inodes.Create(sector, uint32(pageSize*2), defs.FileType, "")
	in := as.Deps.Inodes.Open(sector)
	defer as.Deps.Inodes.Close(in)

	const va = uintptr(0x50000000)
	length := uint32(pageSize * 2)
	if errv := as.Mmap(va, length, true, in, 0); errv != 0 {
		t.Fatalf("Mmap: %v", errv)
	}
	if errv := as.HandleFault(va, va, false); errv != 0 {
		t.Fatalf("HandleFault on mmap'd page: %v", errv)
	}
	if as.Spt.Len() != 2 {
		t.Fatalf("Spt.Len() after Mmap(2 pages) = %d, want 2", as.Spt.Len())
	}

	as.Munmap(va, length)
	if as.Spt.Len() != 0 {
		t.Fatalf("Spt.Len() after Munmap = %d, want 0", as.Spt.Len())
	}
}

func TestForkCopiesAnonEagerlyAndFileReadOnly(t *testing.T) {
	as, ft := mkAddrSpace(t, 8)

	// an anon stack page, made resident via a fault.
	stackVA := userStackTop - pageSize
	if errv := as.HandleFault(stackVA, stackVA, true); errv != 0 {
		t.Fatalf("HandleFault (stack): %v", errv)
	}

	clst, _ := ft.CreateChain(0)
	sector := ft.SectorOf(clst)
	as.Deps.Inodes.Create(sector, uint32(pageSize), defs.FileType, "")
	in := as.Deps.Inodes.Open(sector)
	defer as.Deps.Inodes.Close(in)
	const fileVA = uintptr(0x60000000)
	if errv := as.Mmap(fileVA, pageSize, true, in, 0); errv != 0 {
		t.Fatalf("Mmap: %v", errv)
	}

	child, errv := as.Fork()
	if errv != 0 {
		t.Fatalf("Fork: %v", errv)
	}
	if child.Spt.Len() != as.Spt.Len() {
		t.Fatalf("child Spt.Len() = %d, want %d", child.Spt.Len(), as.Spt.Len())
	}

	cd, ok := child.Spt.Find(stackVA)
	if !ok {
		t.Fatalf("child missing the stack page")
	}
	pd, _ := as.Spt.Find(stackVA)
	if cd == pd {
		t.Fatalf("child's ANON descriptor must be a distinct object from the parent's")
	}
	if !cd.Resident() {
		t.Fatalf("child's eagerly-copied ANON page should be resident")
	}

	fd, ok := child.Spt.Find(fileVA)
	if !ok {
		t.Fatalf("child missing the file page")
	}
	if fd.Writable {
		t.Fatalf("child's FILE page must be non-writable even though the parent mapped it writable")
	}
}

func TestMmapRejectsInvalidArguments(t *testing.T) {
	as, ft := mkAddrSpace(t, 4)
	clst, _ := ft.CreateChain(0)
	sector := ft.SectorOf(clst)
	as.Deps.Inodes.Create(sector, uint32(pageSize), defs.FileType, "")
	in := as.Deps.Inodes.Open(sector)
	defer as.Deps.Inodes.Close(in)

	emptyClst, _ := ft.CreateChain(0)
	emptySector := ft.SectorOf(emptyClst)
	as.Deps.Inodes.Create(emptySector, 0, defs.FileType, "")
	empty := as.Deps.Inodes.Open(emptySector)
	defer as.Deps.Inodes.Close(empty)

	cases := []struct {
		name   string
		addr   uintptr
		length uint32
		in     *inode.Inode_t
		offset uint32
	}{
		{"zero addr", 0, pageSize, in, 0},
		{"misaligned addr", 0x40000001, pageSize, in, 0},
		{"kernel-space addr", defs.KernelBase, pageSize, in, 0},
		{"zero length", 0x40000000, 0, in, 0},
		{"misaligned offset", 0x40000000, pageSize, in, 1},
		{"empty backing file", 0x40000000, pageSize, empty, 0},
	}
	for _, c := range cases {
		if errv := as.Mmap(c.addr, c.length, false, c.in, c.offset); errv != defs.EINVAL {
			t.Fatalf("%s: Mmap = %v, want EINVAL", c.name, errv)
		}
	}
}

func TestClaimIsIdempotentOnAlreadyResidentPage(t *testing.T) {
	as, _ := mkAddrSpace(t, 4)
	stackVA := userStackTop - pageSize
	if errv := as.HandleFault(stackVA, stackVA, true); errv != 0 {
		t.Fatalf("HandleFault: %v", errv)
	}
	// faulting again on the same address should be a cheap no-op, not
	// an error or a second frame allocation.
	if errv := as.HandleFault(stackVA, stackVA, true); errv != 0 {
		t.Fatalf("second HandleFault on a resident page = %v, want 0", errv)
	}
}
