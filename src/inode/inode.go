// Package inode implements spec.md §4.2: the persistent inode header,
// an open-inode cache that keeps concurrent handles to the same inode
// consistent, and offset-based read/write with automatic extension.
//
// An inode occupies the first (and, since the default cluster holds
// one sector, only) sector of its own dedicated cluster; its Start
// field names a *separate* cluster chain (allocated lazily) holding
// the inode's data. This mirrors spec.md §4.4's filesys_create, which
// allocates one cluster for the inode header before creating the
// FILE inode there.
package inode

import (
	"encoding/binary"

	"blockdev"
	"defs"
	"fat"
	"hashtable"
)

const headerLinkCap = defs.PATH_MAX

// Inode_t is the in-memory, refcounted view of a persistent inode
// header. Disk I/O errors are fatal (panic), per spec.md §4.2 and the
// teacher's fs/blk.go Read/Write, which panic on a failed transfer.
type Inode_t struct {
	Sector  uint32 // this inode's own header sector
	Start   uint32 // first cluster of the data chain, 0 if empty
	Length  uint32 // bytes of live data
	Type    defs.InodeType
	Link    string // target path, TYPE==LinkType only

	refcount int
	removed  bool
}

func encodeHeader(in *Inode_t) []byte {
	buf := make([]byte, defs.SectorSize)
	binary.LittleEndian.PutUint32(buf[0:4], in.Start)
	binary.LittleEndian.PutUint32(buf[4:8], in.Length)
	buf[8] = byte(in.Type)
	link := []byte(in.Link)
	if len(link) > headerLinkCap {
		panic("inode: link target exceeds PATH_MAX")
	}
	binary.LittleEndian.PutUint16(buf[9:11], uint16(len(link)))
	copy(buf[11:11+len(link)], link)
	return buf
}

func decodeHeader(sector uint32, buf []byte) *Inode_t {
	linklen := binary.LittleEndian.Uint16(buf[9:11])
	in := &Inode_t{
		Sector: sector,
		Start:  binary.LittleEndian.Uint32(buf[0:4]),
		Length: binary.LittleEndian.Uint32(buf[4:8]),
		Type:   defs.InodeType(buf[8]),
	}
	if linklen > 0 {
		in.Link = string(buf[11 : 11+linklen])
	}
	return in
}

// Cache_t is the open-inode cache: a mounted filesystem has exactly
// one, keyed by header sector. Grounded on the teacher's
// hashtable.Hashtable_t, genericized.
type Cache_t struct {
	fat   *fat.Table_t
	disk  blockdev.Disk_i
	table *hashtable.Table_t[uint32, *Inode_t]
}

// MkCache returns a fresh, empty open-inode cache bound to the given
// mounted FAT table and disk.
func MkCache(f *fat.Table_t, d blockdev.Disk_i) *Cache_t {
	return &Cache_t{
		fat:   f,
		disk:  d,
		table: hashtable.Mk[uint32, *Inode_t](64, hashtable.Uint64Key[uint32]),
	}
}

// OpenCount returns the number of distinct inodes currently resident
// in the open-inode cache, for filesystem-level introspection.
func (c *Cache_t) OpenCount() int {
	return c.table.Len()
}

// Create writes a fresh inode header at sector and returns true on
// success. If length is nonzero it also allocates and zeroes the data
// chain backing those bytes, so a caller-declared initial size is
// always actually readable/writable (ReadAt/WriteAt assume every byte
// below Length is chain-backed). It does not touch the open-inode
// cache; callers typically Open the inode immediately afterward.
func (c *Cache_t) Create(sector uint32, length uint32, typ defs.InodeType, link string) bool {
	in := &Inode_t{Sector: sector, Start: 0, Length: length, Type: typ, Link: link}
	if length > 0 {
		clusterBytes := defs.SectorSize * c.fat.Boot.SectorsPerCluster
		want := clustersFor(length, clusterBytes)
		if !c.extend(in, 0, want) {
			return false
		}
		c.zeroChain(in, clusterBytes)
	}
	if err := c.disk.WriteSector(sector, encodeHeader(in)); err != nil {
		panic("inode: disk I/O error in Create: " + err.Error())
	}
	return true
}

// zeroChain overwrites every sector of in's data chain with zeros, so
// bytes declared live by Length but never explicitly written read back
// as zero rather than stale disk content from a previous occupant of
// the same clusters.
func (c *Cache_t) zeroChain(in *Inode_t, clusterBytes uint32) {
	zero := make([]byte, defs.SectorSize)
	sectorsPerCluster := clusterBytes / defs.SectorSize
	cl := in.Start
	for cl != 0 && cl != defs.EOChain {
		base := c.fat.SectorOf(cl)
		for s := uint32(0); s < sectorsPerCluster; s++ {
			if err := c.disk.WriteSector(base+s, zero); err != nil {
				panic("inode: disk I/O error in zeroChain: " + err.Error())
			}
		}
		cl = c.fat.Get(cl)
	}
}

// Open returns the cached Inode_t for sector, reading it from disk
// and inserting it into the cache on a miss. Every Open increments
// the refcount; callers must pair it with Close.
func (c *Cache_t) Open(sector uint32) *Inode_t {
	if in, ok := c.table.Get(sector); ok {
		in.refcount++
		return in
	}
	buf := make([]byte, defs.SectorSize)
	if err := c.disk.ReadSector(sector, buf); err != nil {
		panic("inode: disk I/O error in Open: " + err.Error())
	}
	in := decodeHeader(sector, buf)
	in.refcount = 1
	c.table.Set(sector, in)
	return in
}

// persist writes the in-memory header back to disk.
func (c *Cache_t) persist(in *Inode_t) {
	if err := c.disk.WriteSector(in.Sector, encodeHeader(in)); err != nil {
		panic("inode: disk I/O error persisting header: " + err.Error())
	}
}

// Remove marks the inode for deletion. Actual disk reclamation is
// deferred to the last Close, per spec.md §3's inode lifecycle text
// and DESIGN.md's resolution of the corresponding Open Question.
func (c *Cache_t) Remove(in *Inode_t) {
	in.removed = true
}

// Close decrements the refcount; at zero, if the inode was removed,
// frees its data chain and its own header cluster.
func (c *Cache_t) Close(in *Inode_t) {
	in.refcount--
	if in.refcount < 0 {
		panic("inode: refcount underflow")
	}
	if in.refcount > 0 {
		return
	}
	c.table.Del(in.Sector)
	if in.removed {
		if in.Start != 0 {
			c.fat.RemoveChain(in.Start, 0)
		}
		// the inode's own header cluster is addressed by the same
		// cluster index as its sector (SectorsPerCluster==1 in the
		// default geometry this repo targets).
		c.fat.RemoveChain(in.Sector-c.fat.DataStart, 0)
	}
}

// clustersFor returns how many clusters are needed to hold n bytes.
func clustersFor(n uint32, clusterBytes uint32) uint32 {
	if n == 0 {
		return 0
	}
	return (n + clusterBytes - 1) / clusterBytes
}

// ReadAt reads up to len(buf) bytes starting at offset, walking the
// data cluster chain. A short read occurs only at EOF, per spec.md
// §4.2.
func (c *Cache_t) ReadAt(in *Inode_t, buf []byte, offset uint32) int {
	if offset >= in.Length {
		return 0
	}
	n := uint32(len(buf))
	if offset+n > in.Length {
		n = in.Length - offset
	}
	clusterBytes := defs.SectorSize * c.fat.Boot.SectorsPerCluster
	got := uint32(0)
	cl := in.Start
	clIdx := uint32(0)
	startCl := offset / clusterBytes
	for clIdx < startCl {
		if cl == 0 || cl == defs.EOChain {
			panic("inode: ReadAt walked off a chain shorter than length")
		}
		cl = c.fat.Get(cl)
		clIdx++
	}
	within := offset % clusterBytes
	sec := make([]byte, defs.SectorSize)
	for got < n {
		if cl == 0 || cl == defs.EOChain {
			panic("inode: ReadAt walked off a chain shorter than length")
		}
		secIdx := within / defs.SectorSize
		secOff := within % defs.SectorSize
		absSector := c.fat.SectorOf(cl) + secIdx
		if err := c.disk.ReadSector(absSector, sec); err != nil {
			panic("inode: disk I/O error in ReadAt: " + err.Error())
		}
		avail := defs.SectorSize - secOff
		want := n - got
		take := avail
		if want < take {
			take = want
		}
		copy(buf[got:got+take], sec[secOff:secOff+take])
		got += take
		within += take
		if within >= clusterBytes {
			within = 0
			cl = c.fat.Get(cl)
			clIdx++
		}
	}
	return int(got)
}

// WriteAt writes buf starting at offset, extending the data chain if
// offset+len(buf) exceeds the current length. If allocation fails
// partway through the extension, the newly added clusters are
// released and a short write is returned, per spec.md §4.2's extend
// rule.
func (c *Cache_t) WriteAt(in *Inode_t, buf []byte, offset uint32) int {
	clusterBytes := defs.SectorSize * c.fat.Boot.SectorsPerCluster
	need := offset + uint32(len(buf))
	if need > in.Length {
		wantClusters := clustersFor(need, clusterBytes)
		haveClusters := clustersFor(in.Length, clusterBytes)
		if !c.extend(in, haveClusters, wantClusters) {
			// extend() already rolled back partial allocation and left
			// in.Start/length describing the pre-extension chain; fall
			// back to whatever fits in the existing chain.
			capacity := haveClusters * clusterBytes
			if offset >= capacity {
				return 0
			}
			if need > capacity {
				buf = buf[:capacity-offset]
			}
		} else {
			in.Length = need
		}
	}
	c.persist(in)
	got := uint32(0)
	n := uint32(len(buf))
	cl := in.Start
	clIdx := uint32(0)
	startCl := offset / clusterBytes
	for clIdx < startCl {
		cl = c.fat.Get(cl)
		clIdx++
	}
	within := offset % clusterBytes
	sec := make([]byte, defs.SectorSize)
	for got < n {
		if cl == 0 || cl == defs.EOChain {
			panic("inode: WriteAt walked off the data chain unexpectedly")
		}
		secIdx := within / defs.SectorSize
		secOff := within % defs.SectorSize
		absSector := c.fat.SectorOf(cl) + secIdx
		avail := defs.SectorSize - secOff
		want := n - got
		take := avail
		if want < take {
			take = want
		}
		if take < defs.SectorSize {
			// partial-sector write: read-modify-write to preserve the
			// untouched bytes in this sector.
			if err := c.disk.ReadSector(absSector, sec); err != nil {
				panic("inode: disk I/O error in WriteAt: " + err.Error())
			}
		}
		copy(sec[secOff:secOff+take], buf[got:got+take])
		if err := c.disk.WriteSector(absSector, sec); err != nil {
			panic("inode: disk I/O error in WriteAt: " + err.Error())
		}
		got += take
		within += take
		if within >= clusterBytes {
			within = 0
			cl = c.fat.Get(cl)
			clIdx++
		}
	}
	return int(got)
}

// extend grows the data chain from have to want clusters. On partial
// failure it releases the clusters it added and returns false,
// leaving in.Start pointing at the (unchanged) original chain.
func (c *Cache_t) extend(in *Inode_t, have, want uint32) bool {
	if want <= have {
		return true
	}
	added := make([]uint32, 0, want-have)
	prev := uint32(0)
	if have > 0 {
		prev = lastCluster(c.fat, in.Start)
	}
	ok := true
	for i := have; i < want; i++ {
		nc, got := c.fat.CreateChain(prev)
		if !got {
			ok = false
			break
		}
		added = append(added, nc)
		if in.Start == 0 {
			in.Start = nc
		}
		prev = nc
	}
	if !ok {
		if len(added) > 0 {
			// added[0] already chains through to added[len(added)-1]
			// (each CreateChain linked onto the previous), so freeing
			// added[0] walks and frees the rest in one pass.
			c.fat.RemoveChain(added[0], 0)
		}
		// detach the rollback: if we had appended onto an existing
		// chain, its tail must go back to being EOChain.
		if have > 0 {
			c.fat.Put(lastClusterBefore(c.fat, in.Start, have), defs.EOChain)
		} else {
			in.Start = 0
		}
		return false
	}
	return true
}

func lastCluster(f *fat.Table_t, start uint32) uint32 {
	c := start
	for f.Get(c) != defs.EOChain {
		c = f.Get(c)
	}
	return c
}

// lastClusterBefore walks n clusters from start and returns the nth
// one (0-indexed count of n-1 hops), used to find the old tail when
// rolling back a failed extension.
func lastClusterBefore(f *fat.Table_t, start uint32, n uint32) uint32 {
	c := start
	for i := uint32(1); i < n; i++ {
		c = f.Get(c)
	}
	return c
}
