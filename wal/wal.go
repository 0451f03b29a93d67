package wal

import (
	"github.com/mit-pdos/go-bcache/addr"
	"github.com/mit-pdos/go-bcache/bcache"
	"github.com/mit-pdos/go-bcache/common"
	"github.com/mit-pdos/go-bcache/util"
)

// Walog is the log of one mounted volume. Like the cache underneath it, it
// expects a single serialized caller.
type Walog struct {
	c        *bcache.Cache
	start    common.Bnum // header block
	capacity uint64
	hdr      *hdr
}

// MkLog opens the log whose header is at block start, recovering an
// interrupted commit if the header shows buffered blocks.
func MkLog(c *bcache.Cache, start common.Bnum, capacity uint64) *Walog {
	if capacity == 0 || capacity > HDRADDRS {
		panic(Error.New("log capacity %d not in [1, %d]", capacity, HDRADDRS))
	}
	l := &Walog{
		c:        c,
		start:    start,
		capacity: capacity,
	}
	// validates that the whole region is addressable
	l.entryAddr(capacity - 1)

	l.hdr = decodeHdr(c.Block(l.hdrAddr()))
	if l.hdr.n > capacity {
		panic(Error.New("corrupt log header: %d blocks in a log of %d", l.hdr.n, capacity))
	}
	util.DPrintf(1, "log: initial number of blocks: %d\n", l.hdr.n)

	if l.hdr.n > 0 {
		util.DPrintf(1, "log: recovering %d blocks\n", l.hdr.n)
		l.c.Pin(l.start)
		for i := uint64(0); i < l.hdr.n; i++ {
			l.c.Pin(l.hdr.blocknos[i])
			l.c.Pin(l.start + 1 + i)
		}
		l.Commit()
	}
	return l
}

// PeekHeader decodes the log header at start without replaying it.
func PeekHeader(c *bcache.Cache, start common.Bnum) (uint64, []common.Bnum) {
	h := decodeHdr(c.Block(c.AddrOf(start)))
	if h.n > HDRADDRS {
		panic(Error.New("corrupt log header: %d blocks", h.n))
	}
	return h.n, util.CloneBnums(h.blocknos[:h.n])
}

func (l *Walog) hdrAddr() addr.Addr {
	return l.c.AddrOf(l.start)
}

func (l *Walog) entryAddr(i uint64) addr.Addr {
	return l.c.AddrOf(l.start + 1 + i)
}

// writeHdr stores the in-memory header into the header block in the cache,
// leaving it dirty. It reaches the disk only when Commit flushes it.
func (l *Walog) writeHdr() {
	copy(l.c.WritableBlock(l.hdrAddr()), l.hdr.encode())
}

// inUse reports whether bn is the header or an entry that holds, or is
// about to hold, a buffered block.
func (l *Walog) inUse(bn common.Bnum, n uint64) bool {
	return bn >= l.start && bn <= l.start+n
}

// Write buffers the current contents of the block containing a. A block
// already in the log is overwritten in place; otherwise it takes the next
// entry. Running out of entries is fatal.
func (l *Walog) Write(a addr.Addr) {
	if !a.InWindow() {
		panic(Error.New("log writing to address %#x out of range", uint64(a)))
	}
	a = a.RoundDown()
	bn := l.c.BlockOf(a)
	l.c.AddrOf(bn)

	if i, ok := l.hdr.find(bn); ok {
		util.DPrintf(5, "log: block %d already in the log at index %d\n", bn, i)
		copy(l.c.WritableBlock(l.entryAddr(i)), l.c.Block(a))
		return
	}

	n := l.hdr.n
	if n >= l.capacity {
		panic(Error.New("out of log space (%d >= %d) writing block %d", n, l.capacity, bn))
	}
	if l.inUse(bn, n+1) {
		panic(Error.New("block %d is inside the active log region", bn))
	}
	if _, ok := l.hdr.find(l.start + 1 + n); ok {
		panic(Error.New("entry %d would overwrite buffered home block %d", n, l.start+1+n))
	}
	util.DPrintf(5, "log: block %d at the end of the log, index %d\n", bn, n)

	l.c.Pin(l.start)
	l.c.Pin(bn)
	l.c.Pin(l.start + 1 + n)

	l.hdr.blocknos[n] = bn
	copy(l.c.WritableBlock(l.entryAddr(n)), l.c.Block(a))
	l.hdr.n = n + 1
	l.writeHdr()
}

// barrier waits until every write issued so far is on stable storage.
func (l *Walog) barrier() {
	if err := l.c.Disk().Barrier(); err != nil {
		panic(Error.New("barrier: %v", err))
	}
}

// flushLog makes the buffered entries and then the header describing them
// durable.
func (l *Walog) flushLog() {
	for i := uint64(0); i < l.hdr.n; i++ {
		l.c.Flush(l.entryAddr(i))
	}
	l.barrier()
	l.c.Flush(l.hdrAddr())
	l.barrier()
}

// install copies each entry to its home block and flushes it.
func (l *Walog) install() {
	for i := uint64(0); i < l.hdr.n; i++ {
		home := l.c.AddrOf(l.hdr.blocknos[i])
		util.DPrintf(5, "log: install entry %d to block %d\n", i, l.hdr.blocknos[i])
		copy(l.c.WritableBlock(home), l.c.Block(l.entryAddr(i)))
		l.c.Flush(home)
	}
	l.barrier()
}

// Commit makes the buffered blocks durable at their home locations. The
// order of the steps is what makes it crash safe, and each step is behind a
// disk barrier before the next starts:
//
//  1. entries, then the header, reach the log on disk; before the header
//     write the old header (n = 0) hides the partial entries
//  2. entries are installed at their home blocks; a crash here leaves a
//     complete log that the next mount installs again
//  3. the header is reset to n = 0
func (l *Walog) Commit() {
	n := l.hdr.n
	if n == 0 {
		return
	}
	util.DPrintf(1, "log: committing %d blocks\n", n)

	l.flushLog()
	l.install()

	l.hdr.n = 0
	l.writeHdr()
	l.c.Flush(l.hdrAddr())
	l.barrier()

	for i := uint64(0); i < n; i++ {
		l.c.Unpin(l.hdr.blocknos[i])
		l.c.Unpin(l.start + 1 + i)
	}
	l.c.Unpin(l.start)
}

// Len returns the number of buffered blocks.
func (l *Walog) Len() uint64 {
	return l.hdr.n
}

// Cap returns the log capacity in blocks.
func (l *Walog) Cap() uint64 {
	return l.capacity
}

// Blocknos returns the home blocks of the buffered entries, in entry order.
func (l *Walog) Blocknos() []common.Bnum {
	return util.CloneBnums(l.hdr.blocknos[:l.hdr.n])
}

func (l *Walog) Cache() *bcache.Cache {
	return l.c
}
