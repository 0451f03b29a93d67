// Package addr describes addresses in the block cache window.
//
// The window maps block b of the device at Base + b*BlockSize, so the whole
// disk looks like one contiguous region of memory. An Addr may point into
// the middle of a block; Blkno and Off split it back apart.
package addr

import (
	"github.com/mit-pdos/go-bcache/common"
	"github.com/mit-pdos/go-bcache/util"
)

type Addr uint64

const (
	Base       Addr   = 0x10000000
	WindowSize uint64 = 0xC0000000

	// MaxBlocks is the largest device the window can map.
	MaxBlocks = WindowSize / common.BlockSize
)

func MkAddr(blkno common.Bnum, off uint64) Addr {
	return Base + Addr(blkno*common.BlockSize+off)
}

// InWindow reports whether a falls inside [Base, Base+WindowSize).
func (a Addr) InWindow() bool {
	return a >= Base && uint64(a-Base) < WindowSize
}

// Blkno is the block containing a. Only meaningful when a.InWindow().
func (a Addr) Blkno() common.Bnum {
	return uint64(a-Base) / common.BlockSize
}

// Off is the byte offset of a within its block.
func (a Addr) Off() uint64 {
	return uint64(a-Base) % common.BlockSize
}

// RoundDown returns the address of the first byte of a's block.
func (a Addr) RoundDown() Addr {
	return Base + Addr(util.RoundDown(uint64(a-Base), common.BlockSize))
}

func (a Addr) Add(n uint64) Addr {
	return a + Addr(n)
}
