// Package bcache presents the disk as one contiguous window of memory.
//
// Block b of the disk lives at addr.MkAddr(b, 0). Nothing is read until it is
// touched: the first access to a block's page faults, and the fault handler
// loads the block from disk and maps it clean. Writes set the page's dirty
// bit, and Flush writes a dirty block back and maps it clean again.
//
// The cache has no locking. It assumes one serialized caller, the file
// system service. Every error in this package is fatal: the functions panic
// with an error naming the operation, the block or address, and the cause.
package bcache

import (
	"github.com/zeebo/errs"

	"github.com/mit-pdos/go-bcache/addr"
	"github.com/mit-pdos/go-bcache/common"
	"github.com/mit-pdos/go-bcache/disk"
	"github.com/mit-pdos/go-bcache/mmu"
	"github.com/mit-pdos/go-bcache/util"
)

var Error = errs.Class("bcache")

// Checker answers whether a block is free in the file system's allocation
// metadata. The cache asks after every load.
type Checker interface {
	IsFree(bn common.Bnum) bool
}

type Config struct {
	// Eviction enables the clock policy. Dirty and pinned blocks are never
	// reclaimed, so enabling it alongside the log is safe.
	Eviction bool
	// Tracked is how many recently loaded blocks the policy remembers.
	Tracked int
}

func DefaultConfig() Config {
	return Config{Eviction: false, Tracked: 50}
}

type Cache struct {
	d       disk.Disk
	m       *mmu.MMU
	nblocks uint64 // device size
	bound   uint64 // block count from the super block, 0 until known
	checker Checker
	evict   *clock
	pinned  map[common.Bnum]bool
}

func MkCache(d disk.Disk, cfg Config) *Cache {
	n, err := disk.Blocks(d)
	if err != nil {
		panic(Error.New("disk size: %v", err))
	}
	if n > addr.MaxBlocks {
		n = addr.MaxBlocks
	}
	c := &Cache{
		d:       d,
		m:       mmu.MkMMU(n),
		nblocks: n,
		pinned:  make(map[common.Bnum]bool),
	}
	if cfg.Eviction {
		c.evict = mkClock(cfg.Tracked)
	}
	c.m.SetFaultHandler(c.pgfault)
	util.DPrintf(1, "bcache: %d blocks, eviction %v\n", n, cfg.Eviction)
	return c
}

// SetBound restricts valid block numbers to [1, nblocks), normally from the
// super block.
func (c *Cache) SetBound(nblocks uint64) {
	if nblocks > c.nblocks {
		panic(Error.New("super block claims %d blocks, disk has %d", nblocks, c.nblocks))
	}
	c.bound = nblocks
}

// SetChecker installs the post-load allocation check.
func (c *Cache) SetChecker(ch Checker) {
	c.checker = ch
}

func (c *Cache) limit() uint64 {
	if c.bound != 0 {
		return c.bound
	}
	return c.nblocks
}

// AddrOf returns the address of block bn in the window.
func (c *Cache) AddrOf(bn common.Bnum) addr.Addr {
	if bn == common.NULLBNUM || bn >= c.limit() {
		panic(Error.New("bad block number %08x in diskaddr", bn))
	}
	return addr.MkAddr(bn, 0)
}

// BlockOf is the inverse of AddrOf.
func (c *Cache) BlockOf(a addr.Addr) common.Bnum {
	if !a.InWindow() || a.Blkno() >= c.nblocks {
		panic(Error.New("blocknum: bad addr %#x", uint64(a)))
	}
	return a.Blkno()
}

func (c *Cache) IsMapped(a addr.Addr) bool {
	return c.m.IsMapped(a.RoundDown())
}

func (c *Cache) IsDirty(a addr.Addr) bool {
	return c.m.IsDirty(a.RoundDown())
}

func (c *Cache) IsAccessed(a addr.Addr) bool {
	return c.m.IsAccessed(a.RoundDown())
}

func (c *Cache) read(bn common.Bnum, frame []byte) {
	if err := c.d.ReadTo(bn*common.BlockSectors, frame); err != nil {
		panic(Error.New("read block %d: %v", bn, err))
	}
}

func (c *Cache) write(bn common.Bnum, frame []byte) {
	if err := c.d.Write(bn*common.BlockSectors, frame); err != nil {
		panic(Error.New("write block %d: %v", bn, err))
	}
}

// remap maps a's page again with the syscall bits only, clearing accessed
// and dirty.
func (c *Cache) remap(a addr.Addr) {
	if err := c.m.PageMap(a, c.m.Perm(a)&mmu.PTE_SYSCALL); err != nil {
		panic(Error.New("remap %#x: %v", uint64(a), err))
	}
}

// pgfault loads the block containing va from disk.
func (c *Cache) pgfault(va addr.Addr, kind mmu.Kind) {
	bn := c.BlockOf(va)
	if c.bound != 0 && bn >= c.bound {
		panic(Error.New("reading non-existent block %08x", bn))
	}
	if bn == common.NULLBNUM {
		panic(Error.New("%s fault on block 0 at %#x", kind, uint64(va)))
	}

	va = va.RoundDown()
	if err := c.m.PageAlloc(va, mmu.PTE_U|mmu.PTE_W); err != nil {
		panic(Error.New("page fault failed to allocate page %#x: %v", uint64(va), err))
	}
	c.read(bn, c.m.Frame(va))
	// the page must come up clean so the first write is visible as dirty
	c.remap(va)

	// Only now check the allocation bitmap: checking first could fault on
	// the bitmap block, whose own check would fault on it again.
	if c.checker != nil && c.checker.IsFree(bn) {
		panic(Error.New("reading free block %08x", bn))
	}
	util.DPrintf(5, "bcache: loaded block %d (%s)\n", bn, kind)

	if c.evict != nil {
		c.evict.admit(c, bn)
	}
}

// Flush writes the block containing a to disk if it is resident and dirty,
// then maps it clean. Otherwise it does nothing.
func (c *Cache) Flush(a addr.Addr) {
	if !a.InWindow() {
		panic(Error.New("flush_block of bad va %#x", uint64(a)))
	}
	a = a.RoundDown()
	bn := c.BlockOf(a)
	if !c.m.IsMapped(a) || !c.m.IsDirty(a) {
		return
	}
	util.DPrintf(5, "bcache: flush block %d\n", bn)
	c.write(bn, c.m.Frame(a))
	c.remap(a)
}

// FlushAll flushes every dirty block that is not pinned by a pending
// transaction.
func (c *Cache) FlushAll() {
	for _, a := range c.m.Mapped() {
		if c.pinned[a.Blkno()] {
			continue
		}
		c.Flush(a)
	}
}

// Unmap drops the clean block containing a from the cache. The next access
// reloads it from disk.
func (c *Cache) Unmap(a addr.Addr) {
	a = a.RoundDown()
	bn := c.BlockOf(a)
	if c.m.IsDirty(a) {
		panic(Error.New("unmap of dirty block %d", bn))
	}
	if err := c.m.PageUnmap(a); err != nil {
		panic(Error.New("unmap block %d: %v", bn, err))
	}
}

// Block returns the block containing a, loading it if needed. The caller
// must only read it; use WritableBlock to modify a block.
func (c *Cache) Block(a addr.Addr) []byte {
	c.BlockOf(a)
	return c.m.Access(a, mmu.Read)
}

// WritableBlock returns the block containing a for modification and marks
// it dirty.
func (c *Cache) WritableBlock(a addr.Addr) []byte {
	c.BlockOf(a)
	return c.m.Access(a, mmu.Write)
}

// ReadAt copies len(p) bytes starting at a into p.
func (c *Cache) ReadAt(a addr.Addr, p []byte) {
	for len(p) > 0 {
		n := copy(p, c.Block(a)[a.Off():])
		p = p[n:]
		a = a.Add(uint64(n))
	}
}

// WriteAt copies p into the window starting at a, dirtying every block it
// touches.
func (c *Cache) WriteAt(a addr.Addr, p []byte) {
	for len(p) > 0 {
		n := copy(c.WritableBlock(a)[a.Off():], p)
		p = p[n:]
		a = a.Add(uint64(n))
	}
}

// Pin marks bn as part of a pending transaction. Pinned blocks are never
// evicted and FlushAll skips them.
func (c *Cache) Pin(bn common.Bnum) {
	c.pinned[bn] = true
}

func (c *Cache) Unpin(bn common.Bnum) {
	delete(c.pinned, bn)
}

func (c *Cache) IsPinned(bn common.Bnum) bool {
	return c.pinned[bn]
}

// Resident returns the number of blocks in memory.
func (c *Cache) Resident() uint64 {
	return c.m.Resident()
}

// Faults returns the number of blocks loaded so far.
func (c *Cache) Faults() uint64 {
	return c.m.Faults()
}

func (c *Cache) Disk() disk.Disk {
	return c.d
}
