// Package fat implements the cluster allocator of spec.md §4.1: a
// boot record, an in-memory FAT table kept while mounted, and
// cluster-chain allocate/free/traverse primitives. Ported from
// original_source/filesys/fat.c, including the boot-record layout of
// spec.md §6.
package fat

import (
	"encoding/binary"
	"fmt"

	"blockdev"
	"defs"
)

// BootRecord_t mirrors spec.md §3's boot record, stored at sector 0.
type BootRecord_t struct {
	Magic              uint32
	SectorsPerCluster  uint32
	TotalSectors       uint32
	FATStart           uint32
	FATSectors         uint32
	RootDirCluster     uint32
}

const bootRecordSize = 4 * 6 // six uint32 fields

func (b *BootRecord_t) encode() []byte {
	buf := make([]byte, defs.SectorSize)
	binary.LittleEndian.PutUint32(buf[0:4], b.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], b.SectorsPerCluster)
	binary.LittleEndian.PutUint32(buf[8:12], b.TotalSectors)
	binary.LittleEndian.PutUint32(buf[12:16], b.FATStart)
	binary.LittleEndian.PutUint32(buf[16:20], b.FATSectors)
	binary.LittleEndian.PutUint32(buf[20:24], b.RootDirCluster)
	return buf
}

func decodeBootRecord(buf []byte) *BootRecord_t {
	return &BootRecord_t{
		Magic:             binary.LittleEndian.Uint32(buf[0:4]),
		SectorsPerCluster: binary.LittleEndian.Uint32(buf[4:8]),
		TotalSectors:      binary.LittleEndian.Uint32(buf[8:12]),
		FATStart:          binary.LittleEndian.Uint32(buf[12:16]),
		FATSectors:        binary.LittleEndian.Uint32(buf[16:20]),
		RootDirCluster:    binary.LittleEndian.Uint32(buf[20:24]),
	}
}

// entriesPerSector is how many packed uint32 FAT entries fit in one
// sector.
const entriesPerSector = defs.SectorSize / 4

// Table_t is the mounted FAT: the boot record plus the in-memory
// cluster array, written back on Unmount. Grounded on
// original_source/filesys/fat.c's struct fat.
type Table_t struct {
	Disk       blockdev.Disk_i
	Boot       BootRecord_t
	fat        []uint32 // length == FATLength
	DataStart  uint32
	FATLength  uint32 // number of addressable clusters
}

// FATLengthFor computes the number of clusters addressable by a FAT
// of fatSectors sectors spanning a disk of totalSectors, per
// original_source/filesys/fat.c's fat_fs_init.
func FATLengthFor(totalSectors, fatSectors, sectorsPerCluster uint32) uint32 {
	return (totalSectors - fatSectors) / sectorsPerCluster
}

// FATSectorsFor computes the FAT size in sectors for a disk of the
// given size, per spec.md §8's literal scenario (a 2048-sector,
// cluster_size=1 disk must yield data_start = 1 + ceil((2048-1)/513)):
// fatSectors = ceil((totalSectors-1) / (SectorSize*sectorsPerCluster+1)).
func FATSectorsFor(totalSectors, sectorsPerCluster uint32) uint32 {
	denom := defs.SectorSize*sectorsPerCluster + 1
	return (totalSectors-1+denom-1)/denom
}

// Format creates a fresh FAT on disk: a boot record, a zeroed FAT
// table with cluster 1 (root) marked end-of-chain, and returns the
// mounted Table_t. Grounded on original_source/filesys/fat.c's
// fat_create/fat_boot_create.
func Format(d blockdev.Disk_i) (*Table_t, error) {
	total := d.Size()
	fatSectors := FATSectorsFor(total, defs.SectorsPerCluster)
	boot := BootRecord_t{
		Magic:             defs.FATMagic,
		SectorsPerCluster: defs.SectorsPerCluster,
		TotalSectors:      total,
		FATStart:          defs.FATStartSector,
		FATSectors:        fatSectors,
		RootDirCluster:    defs.RootDirCluster,
	}
	if err := d.WriteSector(0, boot.encode()); err != nil {
		return nil, err
	}
	length := FATLengthFor(total, fatSectors, defs.SectorsPerCluster)
	t := &Table_t{
		Disk:      d,
		Boot:      boot,
		fat:       make([]uint32, length),
		DataStart: boot.FATStart + boot.FATSectors,
		FATLength: length,
	}
	t.fat[defs.RootDirCluster] = defs.EOChain
	if err := t.writeBack(); err != nil {
		return nil, err
	}
	return t, nil
}

// Mount reads the boot record and loads the full FAT table into
// memory, grounded on original_source/filesys/fat.c's fat_init/fat_open.
func Mount(d blockdev.Disk_i) (*Table_t, error) {
	buf := make([]byte, defs.SectorSize)
	if err := d.ReadSector(0, buf); err != nil {
		return nil, err
	}
	boot := decodeBootRecord(buf)
	if boot.Magic != defs.FATMagic {
		return nil, fmt.Errorf("fat: bad magic %#x", boot.Magic)
	}
	length := FATLengthFor(boot.TotalSectors, boot.FATSectors, boot.SectorsPerCluster)
	t := &Table_t{
		Disk:      d,
		Boot:      *boot,
		fat:       make([]uint32, length),
		DataStart: boot.FATStart + boot.FATSectors,
		FATLength: length,
	}
	sec := make([]byte, defs.SectorSize)
	idx := uint32(0)
	for s := uint32(0); s < boot.FATSectors && idx < length; s++ {
		if err := d.ReadSector(boot.FATStart+s, sec); err != nil {
			return nil, err
		}
		for off := 0; off < entriesPerSector && idx < length; off++ {
			t.fat[idx] = binary.LittleEndian.Uint32(sec[off*4 : off*4+4])
			idx++
		}
	}
	return t, nil
}

// Unmount writes the FAT table and boot record back to disk.
func (t *Table_t) Unmount() error {
	return t.writeBack()
}

func (t *Table_t) writeBack() error {
	if err := t.Disk.WriteSector(0, t.Boot.encode()); err != nil {
		return err
	}
	sec := make([]byte, defs.SectorSize)
	idx := uint32(0)
	for s := uint32(0); s < t.Boot.FATSectors; s++ {
		for off := 0; off < entriesPerSector; off++ {
			var v uint32
			if idx < t.FATLength {
				v = t.fat[idx]
			}
			binary.LittleEndian.PutUint32(sec[off*4:off*4+4], v)
			idx++
		}
		if err := t.Disk.WriteSector(t.Boot.FATStart+s, sec); err != nil {
			return err
		}
	}
	return nil
}

// SectorOf converts a cluster number to its first sector, per
// original_source/filesys/fat.c's cluster_to_sector.
func (t *Table_t) SectorOf(c uint32) uint32 {
	return t.DataStart + c*t.Boot.SectorsPerCluster
}

// Get returns the FAT entry for cluster c.
func (t *Table_t) Get(c uint32) uint32 {
	return t.fat[c]
}

// Put sets the FAT entry for cluster c.
func (t *Table_t) Put(c uint32, v uint32) {
	t.fat[c] = v
}

// FindEmpty scans the FAT starting at cluster 1 for the first free
// entry, per original_source/filesys/fat.c's fat_find_empty. Returns
// (0, false) if none.
func (t *Table_t) FindEmpty() (uint32, bool) {
	for c := uint32(1); c < t.FATLength; c++ {
		if t.fat[c] == defs.FreeCluster {
			return c, true
		}
	}
	return 0, false
}

// HasSpace reports whether at least need free clusters exist, per
// original_source/filesys/fat.c's fat_enough_space.
func (t *Table_t) HasSpace(need int) bool {
	if need <= 0 {
		return true
	}
	n := 0
	for c := uint32(1); c < t.FATLength; c++ {
		if n >= need {
			return true
		}
		if t.fat[c] == defs.FreeCluster {
			n++
		}
	}
	return n >= need
}

// CreateChain allocates a fresh cluster and, if prev != 0, splices it
// onto the end of prev's chain. Ported from
// original_source/filesys/fat.c's fat_create_chain.
func (t *Table_t) CreateChain(prev uint32) (uint32, bool) {
	nc, ok := t.FindEmpty()
	if !ok {
		return 0, false
	}
	t.Put(nc, defs.EOChain)
	if prev != 0 {
		if t.Get(prev) != defs.EOChain {
			panic("fat: CreateChain: prev is not end-of-chain")
		}
		t.Put(prev, nc)
	}
	return nc, true
}

// RemoveChain truncates prev's chain (if prev != 0) and frees every
// cluster from start to end-of-chain. Ported from
// original_source/filesys/fat.c's fat_remove_chain. A zero FAT entry
// encountered before EOChain indicates on-disk corruption and is
// fatal, per spec.md §4.1's edge policy.
func (t *Table_t) RemoveChain(start uint32, prevLink uint32) {
	if prevLink != 0 {
		t.Put(prevLink, defs.EOChain)
	}
	c := start
	for {
		next := t.Get(c)
		t.Put(c, defs.FreeCluster)
		if next == defs.EOChain {
			return
		}
		if next == defs.FreeCluster {
			panic("fat: RemoveChain: chain corruption, followed a free cluster")
		}
		c = next
	}
}

// FreeCount returns the number of unallocated clusters (cluster 0 is
// never counted, matching spec.md §8's round-trip law "total free +
// total allocated = fat_length - 1").
func (t *Table_t) FreeCount() int {
	n := 0
	for c := uint32(1); c < t.FATLength; c++ {
		if t.fat[c] == defs.FreeCluster {
			n++
		}
	}
	return n
}
