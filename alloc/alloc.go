// Package alloc manages the free-block bitmap of a volume.
//
// Bit n of the bitmap, counting from the first bitmap block, describes block
// n of the disk; a set bit means the block is in use. Reads go through the
// block cache. Changes go through a journal operation so they commit
// atomically with the blocks they describe.
package alloc

import (
	"github.com/boljen/go-bitmap"
	"github.com/zeebo/errs"

	"github.com/mit-pdos/go-bcache/bcache"
	"github.com/mit-pdos/go-bcache/common"
	"github.com/mit-pdos/go-bcache/jrnl"
	"github.com/mit-pdos/go-bcache/util"
)

var Error = errs.Class("alloc")

const NBITBLOCK = common.NBITBLOCK

// Alloc uses a bit map to allocate and free block numbers.
type Alloc struct {
	c     *bcache.Cache
	start common.Bnum // first bitmap block
	nbits uint64      // number of blocks described
	next  uint64      // first number to try
}

var _ bcache.Checker = (*Alloc)(nil)

func MkAlloc(c *bcache.Cache, start common.Bnum, nbits uint64) *Alloc {
	return &Alloc{
		c:     c,
		start: start,
		nbits: nbits,
		next:  0,
	}
}

// Blocks is the number of bitmap blocks.
func (a *Alloc) Blocks() uint64 {
	return util.RoundUp(a.nbits, NBITBLOCK)
}

func (a *Alloc) bitBlock(n uint64) common.Bnum {
	return a.start + n/NBITBLOCK
}

func bit(n uint64) int {
	return int(n % NBITBLOCK)
}

func (a *Alloc) checkNum(op string, n uint64) {
	if n == 0 || n >= a.nbits {
		panic(Error.New("%s: block %d out of range [1, %d)", op, n, a.nbits))
	}
}

// IsFree reports whether bn is free in the bitmap as it is in the cache.
// Block numbers the bitmap does not describe are never free.
//
// The cache calls this after loading any block, including the bitmap
// blocks themselves; by then the block is mapped, so reading it here does
// not fault again.
func (a *Alloc) IsFree(bn common.Bnum) bool {
	if bn >= a.nbits {
		return false
	}
	blk := a.c.Block(a.c.AddrOf(a.bitBlock(bn)))
	return !bitmap.Get(blk, bit(bn))
}

func (a *Alloc) incNext() uint64 {
	a.next = a.next + 1
	if a.next >= a.nbits {
		a.next = 1
	}
	return a.next
}

// AllocNum marks a free block used in op and returns it, or returns 0 if
// every block is in use. The block is in use only once op commits. Use
// op.Init, not a read, to start writing it.
func (a *Alloc) AllocNum(op *jrnl.Op) uint64 {
	var blk []byte
	var cur common.Bnum
	for i := uint64(1); i < a.nbits; i++ {
		num := a.incNext()
		if bn := a.bitBlock(num); blk == nil || bn != cur {
			cur = bn
			blk = op.ReadBlock(bn)
		}
		util.DPrintf(10, "AllocNum: num %d byte 0x%x\n", num, blk[bit(num)/8])
		if !bitmap.Get(blk, bit(num)) {
			bitmap.Set(op.Modify(cur), bit(num), true)
			util.DPrintf(5, "alloc: block %d\n", num)
			return num
		}
	}
	return 0
}

// FreeNum marks num free in op. Freeing a free block is fatal.
func (a *Alloc) FreeNum(op *jrnl.Op, num uint64) {
	a.checkNum("FreeNum", num)
	blk := op.Modify(a.bitBlock(num))
	if !bitmap.Get(blk, bit(num)) {
		panic(Error.New("FreeNum: block %d is already free", num))
	}
	bitmap.Set(blk, bit(num), false)
	util.DPrintf(5, "alloc: free block %d\n", num)
}

// MarkUsed marks num in use in op, whether or not it was free.
func (a *Alloc) MarkUsed(op *jrnl.Op, num uint64) {
	a.checkNum("MarkUsed", num)
	bitmap.Set(op.Modify(a.bitBlock(num)), bit(num), true)
}

func popCnt(b byte) uint64 {
	var count uint64
	for b != 0 {
		count += uint64(b & 1)
		b = b >> 1
	}
	return count
}

// NumFree counts the free blocks in the committed bitmap.
func (a *Alloc) NumFree() uint64 {
	var used uint64
	for i := uint64(0); i < a.Blocks(); i++ {
		blk := a.c.Block(a.c.AddrOf(a.start + i))
		nbytes := util.Min(common.BlockSize, util.RoundUp(a.nbits-i*NBITBLOCK, 8))
		for j := uint64(0); j < nbytes; j++ {
			used += popCnt(blk[j])
		}
	}
	// bits past nbits in the last byte are never set
	return a.nbits - used
}

// CheckReserved verifies that blocks [0, end) are all marked in use. Mount
// runs it to catch a bitmap that does not cover the metadata.
func (a *Alloc) CheckReserved(end common.Bnum) error {
	for bn := uint64(0); bn < end && bn < a.nbits; bn++ {
		if a.IsFree(bn) {
			return Error.New("reserved block %d is marked free", bn)
		}
	}
	return nil
}
