// Package directory implements spec.md §4.3: fixed-size directory
// entries stored as ordinary inode data, name lookup, add/remove, and
// iterative path resolution. Ported from
// original_source/filesys/directory.c, with its mutually recursive
// dir_parse/dir_lookup collapsed into one iterative slash-split loop
// per spec.md §9's REDESIGN directive.
package directory

import (
	"encoding/binary"
	"strings"

	"defs"
	"inode"
)

// entrySize is name (NAME_MAX+1, NUL-terminated) + inode sector
// (uint32) + in_use (1 byte), matching original_source's dir_entry.
const entrySize = defs.NAME_MAX + 1 + 4 + 1

type entry_t struct {
	name   string
	sector uint32
	inUse  bool
}

func encodeEntry(e entry_t) []byte {
	buf := make([]byte, entrySize)
	name := []byte(e.name)
	if len(name) > defs.NAME_MAX {
		panic("directory: name exceeds NAME_MAX")
	}
	copy(buf[0:defs.NAME_MAX+1], name) // remaining bytes stay NUL
	binary.LittleEndian.PutUint32(buf[defs.NAME_MAX+1:defs.NAME_MAX+5], e.sector)
	if e.inUse {
		buf[entrySize-1] = 1
	}
	return buf
}

func decodeEntry(buf []byte) entry_t {
	nameEnd := 0
	for nameEnd < defs.NAME_MAX+1 && buf[nameEnd] != 0 {
		nameEnd++
	}
	return entry_t{
		name:   string(buf[0:nameEnd]),
		sector: binary.LittleEndian.Uint32(buf[defs.NAME_MAX+1 : defs.NAME_MAX+5]),
		inUse:  buf[entrySize-1] != 0,
	}
}

// Dir_t is an open directory: its backing inode plus a readdir
// cursor, grounded on original_source's struct dir.
type Dir_t struct {
	Inode *inode.Inode_t
	pos   uint32
}

// Table_t bundles the inode cache and FAT/root context a directory
// layer needs to open inodes by sector and locate the root.
type Table_t struct {
	Inodes     *inode.Cache_t
	RootSector uint32
}

// Open wraps an already-open inode as a directory handle.
func Open(in *inode.Inode_t) *Dir_t {
	return &Dir_t{Inode: in}
}

// OpenRoot opens the root directory.
func (t *Table_t) OpenRoot() *Dir_t {
	return Open(t.Inodes.Open(t.RootSector))
}

func readEntry(t *Table_t, d *Dir_t, ofs uint32) (entry_t, bool) {
	buf := make([]byte, entrySize)
	n := t.Inodes.ReadAt(d.Inode, buf, ofs)
	if n != entrySize {
		return entry_t{}, false
	}
	return decodeEntry(buf), true
}

// lookup scans d for name, returning its entry and byte offset.
func lookup(t *Table_t, d *Dir_t, name string) (entry_t, uint32, bool) {
	for ofs := uint32(0); ; ofs += entrySize {
		e, ok := readEntry(t, d, ofs)
		if !ok {
			return entry_t{}, 0, false
		}
		if e.inUse && e.name == name {
			return e, ofs, true
		}
	}
}

// Lookup searches d for a single path component (not a slash-joined
// path) and opens its inode. The empty name resolves to d itself.
func (t *Table_t) Lookup(d *Dir_t, name string) (*inode.Inode_t, bool) {
	if name == "" {
		return d.Inode, true
	}
	e, _, ok := lookup(t, d, name)
	if !ok {
		return nil, false
	}
	return t.Inodes.Open(e.sector), true
}

// Add inserts a new entry for name pointing at sector. It fails if
// name is invalid, already present, or too long.
func (t *Table_t) Add(d *Dir_t, name string, sector uint32) bool {
	if name == "" || len(name) > defs.NAME_MAX {
		return false
	}
	if _, _, ok := lookup(t, d, name); ok {
		return false
	}
	// find first free slot, or end of file.
	ofs := uint32(0)
	for {
		e, ok := readEntry(t, d, ofs)
		if !ok || !e.inUse {
			break
		}
		ofs += entrySize
	}
	buf := encodeEntry(entry_t{name: name, sector: sector, inUse: true})
	return t.Inodes.WriteAt(d.Inode, buf, ofs) == entrySize
}

// Remove erases name's entry in d and removes its inode. It fails if
// name does not exist, or names a non-empty directory.
func (t *Table_t) Remove(d *Dir_t, name string) bool {
	e, ofs, ok := lookup(t, d, name)
	if !ok {
		return false
	}
	target := t.Inodes.Open(e.sector)
	defer t.Inodes.Close(target)

	if target.Type == defs.DirType {
		sub := Open(t.Inodes.Open(e.sector))
		_, hasEntry := sub.Readdir(t)
		t.Inodes.Close(sub.Inode)
		if hasEntry {
			return false
		}
	}

	cleared := encodeEntry(entry_t{inUse: false})
	if t.Inodes.WriteAt(d.Inode, cleared, ofs) != entrySize {
		return false
	}
	t.Inodes.Remove(target)
	return true
}

// Readdir returns the next live, non-"."/".." entry name, advancing
// d's cursor. It returns false once no more entries remain.
func (d *Dir_t) Readdir(t *Table_t) (string, bool) {
	for {
		e, ok := readEntry(t, d, d.pos)
		if !ok {
			return "", false
		}
		d.pos += entrySize
		if e.inUse && e.name != "." && e.name != ".." {
			return e.name, true
		}
	}
}

// Parse resolves a slash-joined path rooted at cur into (parent dir,
// final component), the way original_source's dir_parse does but
// iteratively: walk every component but the last, opening each as a
// directory, then hand back the last component unresolved for the
// caller to Lookup/Add/Remove itself.
// Parse takes ownership of cur: it closes it (directly, or indirectly
// by advancing past it) unless it is itself the returned parent.
func (t *Table_t) Parse(cur *Dir_t, path string) (*Dir_t, string, bool) {
	if path == "" {
		t.Inodes.Close(cur.Inode)
		return nil, "", false
	}
	if path[0] == '/' {
		t.Inodes.Close(cur.Inode)
		cur = t.OpenRoot()
	}
	parts := splitClean(path)
	if len(parts) == 0 {
		t.Inodes.Close(cur.Inode)
		return nil, "", false
	}
	for i := 0; i < len(parts)-1; i++ {
		next, ok := t.Lookup(cur, parts[i])
		if !ok {
			t.Inodes.Close(cur.Inode)
			return nil, "", false
		}
		if next.Type != defs.DirType {
			t.Inodes.Close(next)
			t.Inodes.Close(cur.Inode)
			return nil, "", false
		}
		t.Inodes.Close(cur.Inode)
		cur = Open(next)
	}
	return cur, parts[len(parts)-1], true
}

func splitClean(path string) []string {
	raw := strings.Split(path, "/")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Removed reports whether d, or any ancestor up to the root, has been
// unlinked from its parent. Ported from original_source's dir_removed:
// walk toward the root via "..", checking at each step that the
// child's own entry is still present (in_use) in the parent.
func (t *Table_t) Removed(d *Dir_t) bool {
	child := d
	for child.Inode.Sector != t.RootSector {
		parentInode, ok := t.Lookup(child, "..")
		if !ok {
			panic("directory: Removed: \"..\" missing, filesystem corruption")
		}
		parent := Open(parentInode)
		found := false
		stillLinked := false
		for ofs := uint32(0); ; ofs += entrySize {
			e, ok := readEntry(t, parent, ofs)
			if !ok {
				break
			}
			if e.sector == child.Inode.Sector {
				found = true
				stillLinked = e.inUse
				break
			}
		}
		if child != d {
			t.Inodes.Close(child.Inode)
		}
		// Remove overwrites the whole entry (sector included), so an
		// unlinked child normally leaves no matching entry at all.
		if !found || !stillLinked {
			t.Inodes.Close(parent.Inode)
			return true
		}
		child = parent
	}
	if child != d {
		t.Inodes.Close(child.Inode)
	}
	return false
}
