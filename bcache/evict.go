package bcache

import (
	"github.com/mit-pdos/go-bcache/common"
	"github.com/mit-pdos/go-bcache/util"
)

// clock remembers recently loaded blocks and reclaims some of them once too
// many are resident.
//
// A block is reclaimed only if it is clean, unpinned and was not accessed
// since the last sweep. Accessed blocks get a second chance: their accessed
// bit is cleared and they are reconsidered on the next pass. Dirty blocks
// are never written back here; under the log a dirty block may belong to an
// uncommitted transaction, and writing it home early breaks write-ahead
// ordering.
type clock struct {
	blocks []common.Bnum
	high   int // sweep once this many blocks are tracked
	low    int // stop reclaiming at this many
}

func mkClock(tracked int) *clock {
	if tracked < 4 {
		tracked = 4
	}
	high := tracked * 9 / 10
	return &clock{
		blocks: make([]common.Bnum, 0, tracked),
		high:   high,
		low:    high / 2,
	}
}

// admit records a freshly loaded block and sweeps if needed. newest is never
// reclaimed: its faulting access has not completed yet.
func (e *clock) admit(c *Cache, newest common.Bnum) {
	e.blocks = append(e.blocks, newest)
	for pass := 0; pass < 2 && len(e.blocks) >= e.high; pass++ {
		e.sweep(c, newest)
	}
}

func (e *clock) sweep(c *Cache, newest common.Bnum) {
	n := len(e.blocks)
	kept := e.blocks[:0]
	var evicted int
	for i, bn := range e.blocks {
		a := c.AddrOf(bn)
		switch {
		case !c.m.IsMapped(a):
			// unmapped behind our back
		case len(kept)+(n-i) <= e.low:
			kept = append(kept, bn)
		case bn == newest || c.IsPinned(bn) || c.m.IsDirty(a):
			kept = append(kept, bn)
		case c.m.IsAccessed(a):
			c.remap(a)
			kept = append(kept, bn)
		default:
			c.Unmap(a)
			evicted++
		}
	}
	e.blocks = kept
	util.DPrintf(5, "bcache: evicted %d blocks, %d tracked\n", evicted, len(e.blocks))
}
