package filesys

import (
	"bytes"
	"testing"

	"blockdev"
	"defs"
)

func mkFs(t *testing.T) *Fs_t {
	t.Helper()
	d := blockdev.MkMemDisk(4096)
	fs, err := Format(d)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	return fs
}

func TestCreateWriteReadRoundTrip(t *testing.T) {
	fs := mkFs(t)
	cwd := fs.RootCwd()

	if errv := fs.Create(cwd, "/hello.txt", 0); errv != 0 {
		t.Fatalf("Create: %v", errv)
	}
	in, errv := fs.Lookup(cwd, "/hello.txt")
	if errv != 0 {
		t.Fatalf("Lookup: %v", errv)
	}
	payload := []byte("hello, filesystem")
	fs.Inodes.WriteAt(in, payload, 0)
	buf := make([]byte, len(payload))
	n := fs.Inodes.ReadAt(in, buf, 0)
	fs.Inodes.Close(in)

	if n != len(payload) || !bytes.Equal(buf, payload) {
		t.Fatalf("round trip mismatch: got %q, want %q", buf[:n], payload)
	}
}

func TestCreateRejectsDuplicatePath(t *testing.T) {
	fs := mkFs(t)
	cwd := fs.RootCwd()

	if errv := fs.Create(cwd, "/dup", 0); errv != 0 {
		t.Fatalf("Create: %v", errv)
	}
	if errv := fs.Create(cwd, "/dup", 0); errv != defs.EEXIST {
		t.Fatalf("second Create(/dup) = %v, want EEXIST", errv)
	}
}

func TestMkdirRemoveNonEmptyThenEmpty(t *testing.T) {
	fs := mkFs(t)
	cwd := fs.RootCwd()

	if errv := fs.Mkdir(cwd, "/sub"); errv != 0 {
		t.Fatalf("Mkdir: %v", errv)
	}
	if errv := fs.Create(cwd, "/sub/leaf", 0); errv != 0 {
		t.Fatalf("Create(/sub/leaf): %v", errv)
	}
	if errv := fs.Remove(cwd, "/sub"); errv != defs.ENOTEMPTY {
		t.Fatalf("Remove(/sub) while non-empty = %v, want ENOTEMPTY", errv)
	}
	if errv := fs.Remove(cwd, "/sub/leaf"); errv != 0 {
		t.Fatalf("Remove(/sub/leaf): %v", errv)
	}
	if errv := fs.Remove(cwd, "/sub"); errv != 0 {
		t.Fatalf("Remove(/sub) once empty: %v", errv)
	}
	if _, errv := fs.Lookup(cwd, "/sub"); errv != defs.ENOENT {
		t.Fatalf("Lookup(/sub) after removal = %v, want ENOENT", errv)
	}
}

func TestChdirAffectsRelativeResolution(t *testing.T) {
	fs := mkFs(t)
	cwd := fs.RootCwd()

	fs.Mkdir(cwd, "/a")
	fs.Create(cwd, "/a/f", 0)

	if errv := fs.Chdir(cwd, "/a"); errv != 0 {
		t.Fatalf("Chdir(/a): %v", errv)
	}
	in, errv := fs.Lookup(cwd, "f")
	if errv != 0 {
		t.Fatalf("Lookup(f) relative to /a: %v", errv)
	}
	fs.Inodes.Close(in)
}

func TestSymlinkChasedByLookup(t *testing.T) {
	fs := mkFs(t)
	cwd := fs.RootCwd()

	fs.Create(cwd, "/target", 0)
	if errv := fs.Symlink(cwd, "/target", "/link"); errv != 0 {
		t.Fatalf("Symlink: %v", errv)
	}
	targetIn, errv := fs.Lookup(cwd, "/target")
	if errv != 0 {
		t.Fatalf("Lookup(/target): %v", errv)
	}
	linkIn, errv := fs.Lookup(cwd, "/link")
	if errv != 0 {
		t.Fatalf("Lookup(/link): %v", errv)
	}
	if linkIn.Sector != targetIn.Sector {
		t.Fatalf("Lookup(/link) resolved to a different inode than /target")
	}
	fs.Inodes.Close(targetIn)
	fs.Inodes.Close(linkIn)
}

func TestSymlinkLoopReturnsELOOP(t *testing.T) {
	fs := mkFs(t)
	cwd := fs.RootCwd()

	fs.Symlink(cwd, "/b", "/a")
	fs.Symlink(cwd, "/a", "/b")

	if _, errv := fs.Lookup(cwd, "/a"); errv != defs.ELOOP {
		t.Fatalf("Lookup(/a) on a symlink cycle = %v, want ELOOP", errv)
	}
}

func TestCreateUnderRemovedParentFails(t *testing.T) {
	fs := mkFs(t)
	cwd := fs.RootCwd()

	if errv := fs.Mkdir(cwd, "/gone"); errv != 0 {
		t.Fatalf("Mkdir(/gone): %v", errv)
	}
	if errv := fs.Chdir(cwd, "/gone"); errv != 0 {
		t.Fatalf("Chdir(/gone): %v", errv)
	}
	root := fs.RootCwd()
	if errv := fs.Remove(root, "/gone"); errv != 0 {
		t.Fatalf("Remove(/gone): %v", errv)
	}

	if errv := fs.Create(cwd, "leaf", 0); errv != defs.ENOENT {
		t.Fatalf("Create(leaf) under a removed parent = %v, want ENOENT", errv)
	}
	if errv := fs.Mkdir(cwd, "subdir"); errv != defs.ENOENT {
		t.Fatalf("Mkdir(subdir) under a removed parent = %v, want ENOENT", errv)
	}
	if errv := fs.Symlink(cwd, "/hello.txt", "link"); errv != defs.ENOENT {
		t.Fatalf("Symlink(link) under a removed parent = %v, want ENOENT", errv)
	}
}

func TestStatisticsTracksFreeAndAllocatedClusters(t *testing.T) {
	fs := mkFs(t)
	cwd := fs.RootCwd()

	before := fs.Statistics()
	if before.FreeClusters+before.AllocatedClusters != int(fs.Fat.FATLength)-1 {
		t.Fatalf("free + allocated = %d, want fat_length-1 = %d",
			before.FreeClusters+before.AllocatedClusters, fs.Fat.FATLength-1)
	}

	if errv := fs.Create(cwd, "/counted", 4096); errv != 0 {
		t.Fatalf("Create: %v", errv)
	}
	after := fs.Statistics()
	if after.AllocatedClusters <= before.AllocatedClusters {
		t.Fatalf("AllocatedClusters did not increase after Create: before=%d after=%d",
			before.AllocatedClusters, after.AllocatedClusters)
	}
	if after.FreeClusters+after.AllocatedClusters != before.FreeClusters+before.AllocatedClusters {
		t.Fatalf("free+allocated conservation broke across Create: before=%d after=%d",
			before.FreeClusters+before.AllocatedClusters, after.FreeClusters+after.AllocatedClusters)
	}

	in, errv := fs.Lookup(cwd, "/counted")
	if errv != 0 {
		t.Fatalf("Lookup: %v", errv)
	}
	opened := fs.Statistics()
	if opened.OpenInodes != after.OpenInodes+1 {
		t.Fatalf("OpenInodes should reflect the inode opened by Lookup")
	}
	fs.Inodes.Close(in)
}

func TestMountPersistsAcrossUnmount(t *testing.T) {
	d := blockdev.MkMemDisk(4096)
	fs, err := Format(d)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	cwd := fs.RootCwd()
	fs.Create(cwd, "/persisted", 0)
	in, _ := fs.Lookup(cwd, "/persisted")
	fs.Inodes.WriteAt(in, []byte("data"), 0)
	fs.Inodes.Close(in)
	if err := fs.Unmount(); err != nil {
		t.Fatalf("Unmount: %v", err)
	}

	remounted, err := Mount(d)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	rcwd := remounted.RootCwd()
	in2, errv := remounted.Lookup(rcwd, "/persisted")
	if errv != 0 {
		t.Fatalf("Lookup(/persisted) after remount: %v", errv)
	}
	buf := make([]byte, 4)
	remounted.Inodes.ReadAt(in2, buf, 0)
	remounted.Inodes.Close(in2)
	if string(buf) != "data" {
		t.Fatalf("remounted content = %q, want %q", buf, "data")
	}
}
