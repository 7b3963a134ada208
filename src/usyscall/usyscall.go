// Package usyscall implements the filesystem/VM rows of spec.md §6's
// syscall table as a per-process file descriptor table bound to one
// filesys.Fs_t and one vmspace.AddrSpace_t. Process-control rows
// (halt/exit/fork/exec/wait) are represented only through the minimal
// ProcessControl_i a fork needs for fd duplication; full dispatch,
// argument marshalling, and scheduling are out of scope per spec.md
// §1. Grounded on original_source/userprog/syscall.c's open/read/
// write/seek/tell/close argument shapes and the teacher's fd/fd.go
// Copyfd idiom, generalized into dup2's circular-linked shared-handle
// scheme per spec.md §6.
package usyscall

import (
	"sync"

	"defs"
	"directory"
	"filehandle"
	"filesys"
	"kstat"
	"vmspace"
)

// kind discriminates what an fd slot currently holds.
type kind int

const (
	kindFree kind = iota
	kindStdin
	kindStdout
	kindFile
	kindDir
)

// fdnode is one entry in a process's fd table. Duplicated fds
// (dup2) are linked into a ring via next/prev: closing one node
// unlinks it from the ring, and only the last node standing actually
// closes the underlying handle, matching spec.md §6's "circular
// singly-linked copied_fd list".
type fdnode struct {
	kind kind
	file *filehandle.Ofile_t
	dir  *filehandle.Odir_t
	next *fdnode
	prev *fdnode
}

func (n *fdnode) unlinkRing() (soleSurvivor bool) {
	if n.next == n {
		return true
	}
	n.prev.next = n.next
	n.next.prev = n.prev
	n.next, n.prev = nil, nil
	return false
}

func ring1(n *fdnode) {
	n.next, n.prev = n, n
}

// Fdtable_t is one process's open file descriptor table.
type Fdtable_t struct {
	sync.Mutex
	Fs  *filesys.Fs_t
	Cwd *filesys.Cwd_t
	Vm  *vmspace.AddrSpace_t

	fds [defs.MAXFD]*fdnode
}

// Mk returns a fresh table with fds 0 and 1 wired to stdin/stdout.
func Mk(fs *filesys.Fs_t, cwd *filesys.Cwd_t, vm *vmspace.AddrSpace_t) *Fdtable_t {
	t := &Fdtable_t{Fs: fs, Cwd: cwd, Vm: vm}
	t.fds[0] = &fdnode{kind: kindStdin}
	ring1(t.fds[0])
	t.fds[1] = &fdnode{kind: kindStdout}
	ring1(t.fds[1])
	return t
}

func (t *Fdtable_t) alloc() (int, defs.Err_t) {
	for i := 2; i < defs.MAXFD; i++ {
		if t.fds[i] == nil {
			return i, 0
		}
	}
	return -1, defs.EMFILE
}

// Create implements spec.md §6's create(path, size): false on bad
// name length, matching createe's NAME_MAX check.
func (t *Fdtable_t) Create(path string, size uint32) bool {
	t.Lock()
	defer t.Unlock()
	return t.Fs.Create(t.Cwd, path, size) == 0
}

// Remove implements remove(path).
func (t *Fdtable_t) Remove(path string) bool {
	t.Lock()
	defer t.Unlock()
	return t.Fs.Remove(t.Cwd, path) == 0
}

// Mkdir implements mkdir(path).
func (t *Fdtable_t) Mkdir(path string) bool {
	t.Lock()
	defer t.Unlock()
	return t.Fs.Mkdir(t.Cwd, path) == 0
}

// Chdir implements chdir(path).
func (t *Fdtable_t) Chdir(path string) bool {
	t.Lock()
	defer t.Unlock()
	return t.Fs.Chdir(t.Cwd, path) == 0
}

// Symlink implements symlink(target, linkpath): 0 on success, -1
// otherwise.
func (t *Fdtable_t) Symlink(target, linkpath string) int {
	t.Lock()
	defer t.Unlock()
	if t.Fs.Symlink(t.Cwd, target, linkpath) != 0 {
		return -1
	}
	return 0
}

// Open implements open(path): fd >= 2 on success, -1 on empty path,
// missing file, or exhausted fd table, matching openn's contract.
func (t *Fdtable_t) Open(path string) int {
	t.Lock()
	defer t.Unlock()
	if path == "" {
		return -1
	}
	in, err := t.Fs.Lookup(t.Cwd, path)
	if err != 0 {
		return -1
	}
	fd, aerr := t.alloc()
	if aerr != 0 {
		t.Fs.Inodes.Close(in)
		return -1
	}
	if in.Type == defs.DirType {
		n := &fdnode{kind: kindDir, dir: &filehandle.Odir_t{Dir: directory.Open(in)}}
		ring1(n)
		t.fds[fd] = n
	} else {
		n := &fdnode{kind: kindFile, file: &filehandle.Ofile_t{Inode: in}}
		ring1(n)
		t.fds[fd] = n
	}
	return fd
}

func (t *Fdtable_t) node(fd int) *fdnode {
	if fd < 0 || fd >= defs.MAXFD {
		return nil
	}
	return t.fds[fd]
}

// Filesize implements filesize(fd).
func (t *Fdtable_t) Filesize(fd int) int {
	t.Lock()
	defer t.Unlock()
	n := t.node(fd)
	if n == nil || n.kind != kindFile {
		return -1
	}
	return int(n.file.Inode.Length)
}

// Read implements read(fd, buf, size): -1 when fd is stdout or
// invalid, matching spec.md's "read from stdout ... -> -1".
func (t *Fdtable_t) Read(fd int, buf []byte) int {
	t.Lock()
	defer t.Unlock()
	n := t.node(fd)
	if n == nil {
		return -1
	}
	switch n.kind {
	case kindStdin:
		return 0 // no console collaborator wired in this repo; EOF
	case kindStdout:
		return -1
	case kindFile:
		n.file.Lock()
		defer n.file.Unlock()
		got := t.Fs.Inodes.ReadAt(n.file.Inode, buf, n.file.Pos)
		n.file.Pos += uint32(got)
		return got
	default:
		return -1
	}
}

// Write implements write(fd, buf, size): -1 when fd is stdin or
// invalid.
func (t *Fdtable_t) Write(fd int, buf []byte) int {
	t.Lock()
	defer t.Unlock()
	n := t.node(fd)
	if n == nil {
		return -1
	}
	switch n.kind {
	case kindStdout:
		return len(buf) // console collaborator out of scope; report success
	case kindStdin:
		return -1
	case kindFile:
		n.file.Lock()
		defer n.file.Unlock()
		got := t.Fs.Inodes.WriteAt(n.file.Inode, buf, n.file.Pos)
		n.file.Pos += uint32(got)
		return got
	default:
		return -1
	}
}

// Seek implements seek(fd, position).
func (t *Fdtable_t) Seek(fd int, pos uint32) {
	t.Lock()
	defer t.Unlock()
	n := t.node(fd)
	if n == nil || n.kind != kindFile {
		return
	}
	n.file.Lock()
	n.file.Pos = pos
	n.file.Unlock()
}

// Tell implements tell(fd).
func (t *Fdtable_t) Tell(fd int) uint32 {
	t.Lock()
	defer t.Unlock()
	n := t.node(fd)
	if n == nil || n.kind != kindFile {
		return 0
	}
	n.file.Lock()
	defer n.file.Unlock()
	return n.file.Pos
}

// Isdir implements isdir(fd).
func (t *Fdtable_t) Isdir(fd int) bool {
	t.Lock()
	defer t.Unlock()
	n := t.node(fd)
	return n != nil && n.kind == kindDir
}

// Inumber implements inumber(fd): the inode's header sector.
func (t *Fdtable_t) Inumber(fd int) uint32 {
	t.Lock()
	defer t.Unlock()
	n := t.node(fd)
	if n == nil {
		return 0
	}
	switch n.kind {
	case kindFile:
		return n.file.Inode.Sector
	case kindDir:
		return n.dir.Dir.Inode.Sector
	}
	return 0
}

// Stat fills in a kstat.Stat_t for fd, supplementing spec.md's bare
// inumber/isdir calls with one combined introspection call.
func (t *Fdtable_t) Stat(fd int) (kstat.Stat_t, bool) {
	t.Lock()
	defer t.Unlock()
	n := t.node(fd)
	var st kstat.Stat_t
	switch {
	case n == nil:
		return st, false
	case n.kind == kindFile:
		st.Fill(n.file.Inode.Sector, n.file.Inode.Length, n.file.Inode.Type)
	case n.kind == kindDir:
		st.Fill(n.dir.Dir.Inode.Sector, n.dir.Dir.Inode.Length, n.dir.Dir.Inode.Type)
	default:
		return st, false
	}
	return st, true
}

// Readdir implements readdir(fd, name): fd must be a directory.
func (t *Fdtable_t) Readdir(fd int) (string, bool) {
	t.Lock()
	defer t.Unlock()
	n := t.node(fd)
	if n == nil || n.kind != kindDir {
		return "", false
	}
	n.dir.Lock()
	defer n.dir.Unlock()
	dirs := directory.Table_t{Inodes: t.Fs.Inodes, RootSector: t.Cwd.Dir.Inode.Sector}
	return n.dir.Dir.Readdir(&dirs)
}

// Close implements close(fd): closing 0 or 1 disables that stream for
// this process (spec.md §6); closing a ring member unlinks it,
// closing the underlying inode only when the ring collapses to
// nothing.
func (t *Fdtable_t) Close(fd int) {
	t.Lock()
	defer t.Unlock()
	n := t.node(fd)
	if n == nil {
		return
	}
	t.fds[fd] = nil
	switch n.kind {
	case kindStdin, kindStdout:
		return
	case kindFile:
		if n.unlinkRing() {
			t.Fs.Inodes.Close(n.file.Inode)
		}
	case kindDir:
		if n.unlinkRing() {
			t.Fs.Inodes.Close(n.dir.Dir.Inode)
		}
	}
}

// Dup2 clones old's fd-map entry into new, closing any previous
// holder of new, and links the two into old's ring so they keep
// sharing one underlying handle, per spec.md §6.
func (t *Fdtable_t) Dup2(old, new int) bool {
	t.Lock()
	defer t.Unlock()
	src := t.node(old)
	if src == nil || old == new {
		return src != nil
	}
	if dst := t.node(new); dst != nil {
		t.fds[new] = nil
		switch dst.kind {
		case kindFile:
			if dst.unlinkRing() {
				t.Fs.Inodes.Close(dst.file.Inode)
			}
		case kindDir:
			if dst.unlinkRing() {
				t.Fs.Inodes.Close(dst.dir.Dir.Inode)
			}
		}
	}
	clone := &fdnode{kind: src.kind, file: src.file, dir: src.dir}
	clone.next = src.next
	clone.prev = src
	src.next.prev = clone
	src.next = clone
	t.fds[new] = clone
	return true
}

// Mmap implements mmap(addr, len, writable, fd, offset), returning
// false on validation failure (spec.md's MAP_FAILED).
func (t *Fdtable_t) Mmap(addr uintptr, length uint32, writable bool, fd int, offset uint32) bool {
	t.Lock()
	defer t.Unlock()
	n := t.node(fd)
	if n == nil || n.kind != kindFile || length == 0 {
		return false
	}
	return t.Vm.Mmap(addr, length, writable, n.file.Inode, offset) == 0
}

// Munmap implements munmap(addr, len).
func (t *Fdtable_t) Munmap(addr uintptr, length uint32) {
	t.Lock()
	defer t.Unlock()
	t.Vm.Munmap(addr, length)
}

// ProcessControl_i is the minimal process-control surface the fd
// table needs for fork to duplicate a parent's descriptors into a
// child table; halt/exit/exec/wait dispatch itself is out of scope.
type ProcessControl_i interface {
	ForkChild() *Fdtable_t
}

// ForkCopy builds a child fd table in which every parent fd (2 and
// up) gets its own handle on the same inode, reopened with the
// parent's position copied and placed in a one-member ring; parent
// and child positions move independently afterwards.
func (t *Fdtable_t) ForkCopy(childFs *filesys.Fs_t, childCwd *filesys.Cwd_t, childVm *vmspace.AddrSpace_t) *Fdtable_t {
	t.Lock()
	defer t.Unlock()
	child := Mk(childFs, childCwd, childVm)
	for i := 2; i < defs.MAXFD; i++ {
		n := t.fds[i]
		if n == nil {
			continue
		}
		switch n.kind {
		case kindFile:
			nf := n.file.Copy(t.Fs.Inodes)
			nn := &fdnode{kind: kindFile, file: nf}
			ring1(nn)
			child.fds[i] = nn
		case kindDir:
			nd := n.dir.Copy(t.Fs.Inodes)
			nn := &fdnode{kind: kindDir, dir: nd}
			ring1(nn)
			child.fds[i] = nn
		}
	}
	return child
}
