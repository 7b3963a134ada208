// Package spt implements the supplemental page table of spec.md
// §4.7: a per-address-space map from page-aligned virtual address to
// page descriptor. Grounded on original_source/vm/vm.c's
// spt_find_page/spt_insert_page (a hash table keyed by page number)
// and the teacher's hashtable/hashtable.go sharded design,
// genericized the same way src/inode's open-inode cache is.
package spt

import (
	"hashtable"
	"util"

	"defs"
	"page"
)

// Table_t is one address space's supplemental page table.
type Table_t struct {
	t *hashtable.Table_t[uintptr, *page.Descriptor_t]
}

// Mk returns an empty supplemental page table.
func Mk() *Table_t {
	return &Table_t{t: hashtable.Mk[uintptr, *page.Descriptor_t](64, hashtable.Uint64Key[uintptr])}
}

func align(va uintptr) uintptr {
	return util.Rounddown(va, uintptr(defs.PageSize))
}

// Find returns the descriptor covering va, if any. va need not be
// page-aligned; it is rounded down before lookup, matching
// spt_find_page's pg_round_down(va).
func (t *Table_t) Find(va uintptr) (*page.Descriptor_t, bool) {
	return t.t.Get(align(va))
}

// Insert adds d at its own page-aligned VA. It fails (returns false)
// if a descriptor already occupies that address, matching
// spt_insert_page's hash_insert-returns-non-NULL failure path.
func (t *Table_t) Insert(d *page.Descriptor_t) bool {
	key := align(d.VA)
	if _, exists := t.t.Get(key); exists {
		return false
	}
	t.t.Set(key, d)
	return true
}

// Remove deletes the descriptor at va (rounded down) from the table.
func (t *Table_t) Remove(va uintptr) {
	t.t.Del(align(va))
}

// Len reports how many pages are tracked, for tests.
func (t *Table_t) Len() int {
	return t.t.Len()
}
