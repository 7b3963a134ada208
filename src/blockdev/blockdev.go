// Package blockdev models the raw 512-byte sector read/write
// collaborator described in spec.md §6 as external to this repo's
// scope. It is grounded on the teacher's fs/blk.go Disk_i and
// BlkList_t (the latter built on container/list, reused here for
// batching multi-sector transfers; the swap device's page-sized slot
// I/O does not use it and issues its 8 sector transfers one by one).
package blockdev

import (
	"container/list"
	"fmt"
	"os"
	"sync"

	"defs"
)

// Disk_i is the block device collaborator: synchronous sector
// read/write plus a sector count, matching spec.md §6.
type Disk_i interface {
	ReadSector(sector uint32, buf []byte) error
	WriteSector(sector uint32, buf []byte) error
	Size() uint32 // total sectors
}

// SectorList_t batches several sectors for one transfer, grounded on
// the teacher's BlkList_t (itself built on container/list).
type SectorList_t struct {
	l *list.List
}

type sectorReq struct {
	sector uint32
	buf    []byte
}

// MkSectorList returns an empty batch.
func MkSectorList() *SectorList_t {
	return &SectorList_t{l: list.New()}
}

// PushBack appends one more (sector, buf) pair to the batch.
func (sl *SectorList_t) PushBack(sector uint32, buf []byte) {
	sl.l.PushBack(&sectorReq{sector: sector, buf: buf})
}

// Apply calls f for every (sector, buf) pair in order.
func (sl *SectorList_t) Apply(f func(sector uint32, buf []byte)) {
	for e := sl.l.Front(); e != nil; e = e.Next() {
		r := e.Value.(*sectorReq)
		f(r.sector, r.buf)
	}
}

// ReadBatch reads every sector in sl from d, in order.
func ReadBatch(d Disk_i, sl *SectorList_t) error {
	var ferr error
	sl.Apply(func(sector uint32, buf []byte) {
		if ferr != nil {
			return
		}
		ferr = d.ReadSector(sector, buf)
	})
	return ferr
}

// WriteBatch writes every sector in sl to d, in order.
func WriteBatch(d Disk_i, sl *SectorList_t) error {
	var ferr error
	sl.Apply(func(sector uint32, buf []byte) {
		if ferr != nil {
			return
		}
		ferr = d.WriteSector(sector, buf)
	})
	return ferr
}

// MemDisk_t is an in-memory disk, used by tests and by in-process
// mounts that do not need to survive a process restart.
type MemDisk_t struct {
	mu      sync.Mutex
	sectors [][defs.SectorSize]byte
}

// MkMemDisk allocates a zeroed in-memory disk of the given sector
// count.
func MkMemDisk(nsectors uint32) *MemDisk_t {
	return &MemDisk_t{sectors: make([][defs.SectorSize]byte, nsectors)}
}

func (m *MemDisk_t) ReadSector(sector uint32, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sector >= uint32(len(m.sectors)) {
		return fmt.Errorf("blockdev: read sector %d out of range (%d sectors)", sector, len(m.sectors))
	}
	if len(buf) != defs.SectorSize {
		return fmt.Errorf("blockdev: buffer must be %d bytes, got %d", defs.SectorSize, len(buf))
	}
	copy(buf, m.sectors[sector][:])
	return nil
}

func (m *MemDisk_t) WriteSector(sector uint32, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sector >= uint32(len(m.sectors)) {
		return fmt.Errorf("blockdev: write sector %d out of range (%d sectors)", sector, len(m.sectors))
	}
	if len(buf) != defs.SectorSize {
		return fmt.Errorf("blockdev: buffer must be %d bytes, got %d", defs.SectorSize, len(buf))
	}
	copy(m.sectors[sector][:], buf)
	return nil
}

func (m *MemDisk_t) Size() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint32(len(m.sectors))
}

// FileDisk_t is a disk backed by a host file, grounded on the
// teacher's ufs/driver.go ahci_disk_t (seek-then-read/write under a
// mutex to keep the pair atomic).
type FileDisk_t struct {
	mu   sync.Mutex
	f    *os.File
	nsec uint32
}

// OpenFileDisk opens an existing disk image file of the given sector
// count.
func OpenFileDisk(path string, nsectors uint32) (*FileDisk_t, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	return &FileDisk_t{f: f, nsec: nsectors}, nil
}

// CreateFileDisk creates a new zeroed disk image of the given sector
// count.
func CreateFileDisk(path string, nsectors uint32) (*FileDisk_t, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(nsectors) * defs.SectorSize); err != nil {
		f.Close()
		return nil, err
	}
	return &FileDisk_t{f: f, nsec: nsectors}, nil
}

func (fd *FileDisk_t) ReadSector(sector uint32, buf []byte) error {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if sector >= fd.nsec {
		return fmt.Errorf("blockdev: read sector %d out of range (%d sectors)", sector, fd.nsec)
	}
	if len(buf) != defs.SectorSize {
		return fmt.Errorf("blockdev: buffer must be %d bytes, got %d", defs.SectorSize, len(buf))
	}
	_, err := fd.f.ReadAt(buf, int64(sector)*defs.SectorSize)
	return err
}

func (fd *FileDisk_t) WriteSector(sector uint32, buf []byte) error {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if sector >= fd.nsec {
		return fmt.Errorf("blockdev: write sector %d out of range (%d sectors)", sector, fd.nsec)
	}
	if len(buf) != defs.SectorSize {
		return fmt.Errorf("blockdev: buffer must be %d bytes, got %d", defs.SectorSize, len(buf))
	}
	_, err := fd.f.WriteAt(buf, int64(sector)*defs.SectorSize)
	return err
}

func (fd *FileDisk_t) Size() uint32 { return fd.nsec }

// Close releases the backing host file.
func (fd *FileDisk_t) Close() error {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return fd.f.Close()
}

// Sync forces pending writes to the host file system, mirroring the
// teacher's ahci_disk_t.close()'s use of f.Sync.
func (fd *FileDisk_t) Sync() error {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return fd.f.Sync()
}
