// Package volume ties the pieces of a mounted device together: the block
// cache, the super block, the log and the allocation bitmap.
//
// Mount is where crash recovery happens. Opening the log replays an
// interrupted commit before anything else reads the disk through the cache.
package volume

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/zeebo/errs"

	"github.com/mit-pdos/go-bcache/alloc"
	"github.com/mit-pdos/go-bcache/bcache"
	"github.com/mit-pdos/go-bcache/common"
	"github.com/mit-pdos/go-bcache/disk"
	"github.com/mit-pdos/go-bcache/jrnl"
	"github.com/mit-pdos/go-bcache/super"
	"github.com/mit-pdos/go-bcache/util"
	"github.com/mit-pdos/go-bcache/wal"
)

var Error = errs.Class("volume")

type Config struct {
	Cache bcache.Config
	// CheckAllocated installs the bitmap as the cache's post-load check,
	// so loading a free block is fatal. Ignored without a bitmap.
	CheckAllocated bool
	// SelfTest runs the cache self test before reading the super block.
	SelfTest bool
}

func DefaultConfig() Config {
	return Config{
		Cache:          bcache.DefaultConfig(),
		CheckAllocated: true,
		SelfTest:       false,
	}
}

type Volume struct {
	d     disk.Disk
	c     *bcache.Cache
	sb    *super.FsSuper
	log   *wal.Walog
	alloc *alloc.Alloc
}

// Mount opens a formatted device. A super block that does not validate, or
// a bitmap that leaves metadata free, is reported as an error; failures
// inside the cache or the log panic as usual.
func Mount(d disk.Disk, cfg Config) (*Volume, error) {
	n, err := disk.Blocks(d)
	if err != nil {
		return nil, errors.Wrap(err, "mount")
	}
	if n <= common.SUPERBLK {
		return nil, Error.New("disk of %d blocks has no super block", n)
	}

	c := bcache.MkCache(d, cfg.Cache)
	if cfg.SelfTest {
		c.Check()
	}

	sb, err := super.Decode(c.Block(c.AddrOf(common.SUPERBLK)))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if sb.Nblocks > n {
		return nil, Error.New("super block claims %d blocks, disk has %d", sb.Nblocks, n)
	}
	c.SetBound(sb.Nblocks)
	util.DPrintf(1, "mount: %d blocks, log at %d (%d entries), bitmap at %d\n",
		sb.Nblocks, sb.LogStart, sb.LogNblocks, sb.BitmapStart)

	// recovery installs blocks whose allocation is part of the same
	// commit, so the bitmap check starts only afterwards
	log := wal.MkLog(c, sb.LogStart, sb.LogNblocks)

	v := &Volume{d: d, c: c, sb: sb, log: log}
	if sb.BitmapStart != 0 {
		v.alloc = alloc.MkAlloc(c, sb.BitmapStart, sb.Nblocks)
		if err := v.alloc.CheckReserved(sb.DataStart()); err != nil {
			return nil, Error.Wrap(err)
		}
		if cfg.CheckAllocated {
			c.SetChecker(v.alloc)
		}
	}
	return v, nil
}

func (v *Volume) Super() *super.FsSuper {
	return v.sb
}

func (v *Volume) Cache() *bcache.Cache {
	return v.c
}

func (v *Volume) Log() *wal.Walog {
	return v.log
}

// Alloc returns the block allocator, or nil if the volume has no bitmap.
func (v *Volume) Alloc() *alloc.Alloc {
	return v.alloc
}

// Begin starts a journal operation on the volume.
func (v *Volume) Begin() *jrnl.Op {
	return jrnl.Begin(v.log)
}

// Unmount writes back the dirty blocks that are not part of an uncommitted
// log, then makes the device durable and closes it.
func (v *Volume) Unmount() error {
	v.c.FlushAll()
	if n := v.log.Len(); n != 0 {
		util.DPrintf(1, "unmount: dropping %d uncommitted log blocks\n", n)
	}
	var result error
	if err := v.d.Barrier(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "barrier"))
	}
	if err := v.d.Close(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "close"))
	}
	return result
}
