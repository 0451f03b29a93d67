// Package wal implements write-ahead logging on top of the block cache.
//
// The layout of the log region, starting at the super block's log start:
//
//	[ header | entry 0 | entry 1 | ... | entry capacity-1 ]
//
// The header holds n, the number of buffered blocks, followed by the home
// block number of each entry. Write copies a modified block into the next
// entry (or the entry already holding that block); Commit makes the
// buffered blocks durable in the log, installs them at their home
// locations, and empties the log. A crash at any point is repaired at the
// next mount by running Commit again, which is harmless to repeat.
package wal

import (
	"github.com/zeebo/errs"

	"github.com/mit-pdos/go-bcache/common"
)

var Error = errs.Class("wal")

const (
	HDRMETA  = common.HDRMETA
	HDRADDRS = common.MaxLogBlocks
)
