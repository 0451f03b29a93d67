// Package jrnl is the consumer-side API over the write-ahead log.
//
// A caller begins an operation Op, reads and writes blocks within it, and
// finally commits it. Writes are buffered in the operation and reach the
// cache only at Commit, which hands every modified block to the log and
// commits the log, so the whole operation becomes durable atomically.
//
// Reads see the operation's own writes; other blocks are read through the
// cache. There is no isolation between operations: the file system runs one
// operation at a time per volume.
package jrnl

import (
	"github.com/zeebo/errs"

	"github.com/mit-pdos/go-bcache/addr"
	"github.com/mit-pdos/go-bcache/common"
	"github.com/mit-pdos/go-bcache/util"
	"github.com/mit-pdos/go-bcache/wal"
)

var Error = errs.Class("jrnl")

// LogBlocks is the maximum number of blocks that can be written in one
// operation
const LogBlocks uint64 = wal.HDRADDRS

// LogBytes is the maximum size of an operation, in bytes
const LogBytes uint64 = common.BlockSize * LogBlocks

// Op is an in-progress journal operation.
//
// Call Commit to persist the operation's writes.
// To abort the operation simply stop using it.
type Op struct {
	log   *wal.Walog
	bufs  map[common.Bnum][]byte // new contents of written blocks
	order []common.Bnum          // written blocks, first write first
}

// Begin starts an operation with no writes.
func Begin(log *wal.Walog) *Op {
	op := &Op{
		log:  log,
		bufs: make(map[common.Bnum][]byte),
	}
	util.DPrintf(3, "Begin: %p\n", op)
	return op
}

// ReadBlock returns the contents of block bn as of this operation. The
// result is a copy the caller may keep.
func (op *Op) ReadBlock(bn common.Bnum) []byte {
	if b, ok := op.bufs[bn]; ok {
		return util.CloneByteSlice(b)
	}
	c := op.log.Cache()
	return util.CloneByteSlice(c.Block(c.AddrOf(bn)))
}

// Modify returns the operation's buffer for block bn, loading it first if
// the operation has not written it yet. Changes to the buffer are part of
// the operation.
func (op *Op) Modify(bn common.Bnum) []byte {
	if b, ok := op.bufs[bn]; ok {
		return b
	}
	b := op.ReadBlock(bn)
	op.bufs[bn] = b
	op.order = append(op.order, bn)
	return b
}

// Init starts block bn from zeros without reading it, for a block the
// operation has just allocated. Earlier writes to bn in op are discarded.
func (op *Op) Init(bn common.Bnum) []byte {
	op.log.Cache().AddrOf(bn)
	if _, ok := op.bufs[bn]; !ok {
		op.order = append(op.order, bn)
	}
	b := make([]byte, common.BlockSize)
	op.bufs[bn] = b
	return b
}

// OverWrite writes data at a. The write must stay within a's block.
func (op *Op) OverWrite(a addr.Addr, data []byte) {
	if a.Off()+uint64(len(data)) > common.BlockSize {
		panic(Error.New("overwrite of %d bytes at %#x crosses block %d",
			len(data), uint64(a), a.Blkno()))
	}
	bn := op.log.Cache().BlockOf(a)
	copy(op.Modify(bn)[a.Off():], data)
}

// NDirty reports the number of blocks this operation has written.
func (op *Op) NDirty() uint64 {
	return uint64(len(op.order))
}

// Commit applies the operation's writes to the cache, logs them, and
// commits the log.
//
// If Commit returns false, the operation failed and had no logical effect.
// This happens if the operation does not fit in the free log entries.
func (op *Op) Commit() bool {
	util.DPrintf(3, "Commit %p: %d blocks\n", op, len(op.order))
	if op.NDirty() > op.log.Cap()-op.log.Len() {
		util.DPrintf(1, "Commit %p: %d blocks do not fit in the log\n", op, len(op.order))
		return false
	}
	c := op.log.Cache()
	for _, bn := range op.order {
		a := c.AddrOf(bn)
		copy(c.WritableBlock(a), op.bufs[bn])
		op.log.Write(a)
	}
	op.log.Commit()
	return true
}
