// Package replicated_block keeps one block of data in two disk blocks that
// are always updated in the same journal operation, so after any crash both
// copies agree.
package replicated_block

import (
	"sync"

	"github.com/zeebo/errs"

	"github.com/mit-pdos/go-bcache/common"
	"github.com/mit-pdos/go-bcache/jrnl"
	"github.com/mit-pdos/go-bcache/wal"
)

var Error = errs.Class("replicated block")

type RepBlock struct {
	log *wal.Walog

	m  *sync.Mutex
	b0 common.Bnum
	b1 common.Bnum
}

// Open uses blocks a and a+1.
func Open(log *wal.Walog, a common.Bnum) *RepBlock {
	return &RepBlock{
		log: log,
		m:   new(sync.Mutex),
		b0:  a,
		b1:  a + 1,
	}
}

func (rb *RepBlock) Read() []byte {
	rb.m.Lock()
	defer rb.m.Unlock()
	return jrnl.Begin(rb.log).ReadBlock(rb.b0)
}

// ReadBoth returns both copies, for checking that they agree.
func (rb *RepBlock) ReadBoth() ([]byte, []byte) {
	rb.m.Lock()
	defer rb.m.Unlock()
	op := jrnl.Begin(rb.log)
	return op.ReadBlock(rb.b0), op.ReadBlock(rb.b1)
}

func (rb *RepBlock) Write(b []byte) error {
	if uint64(len(b)) != common.BlockSize {
		return Error.New("write of %d bytes, want a whole block", len(b))
	}
	rb.m.Lock()
	defer rb.m.Unlock()
	op := jrnl.Begin(rb.log)
	copy(op.Modify(rb.b0), b)
	copy(op.Modify(rb.b1), b)
	if !op.Commit() {
		return Error.New("operation does not fit in the log")
	}
	return nil
}
