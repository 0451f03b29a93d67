// Package super encodes the super block, block 1 of every volume.
package super

import (
	"github.com/tchajed/marshal"
	"github.com/zeebo/errs"

	"github.com/mit-pdos/go-bcache/addr"
	"github.com/mit-pdos/go-bcache/common"
	"github.com/mit-pdos/go-bcache/util"
)

var Error = errs.Class("super")

// FsSuper is read once at mount and never changes afterwards.
type FsSuper struct {
	Magic       uint64
	Nblocks     uint64 // total blocks on the device
	LogStart    common.Bnum
	LogNblocks  uint64      // log capacity, not counting the header block
	BitmapStart common.Bnum // 0 if the volume has no allocation bitmap
}

func MkFsSuper(nblocks uint64, logStart common.Bnum, logNblocks uint64, bitmap bool) *FsSuper {
	sb := &FsSuper{
		Magic:      common.FS_MAGIC,
		Nblocks:    nblocks,
		LogStart:   logStart,
		LogNblocks: logNblocks,
	}
	if bitmap {
		sb.BitmapStart = sb.LogEnd()
	}
	return sb
}

// Decode parses and validates a super block.
func Decode(blk []byte) (*FsSuper, error) {
	if uint64(len(blk)) < common.BlockSize {
		return nil, Error.New("short super block (%d bytes)", len(blk))
	}
	dec := marshal.NewDec(blk)
	sb := new(FsSuper)
	sb.Magic = dec.GetInt()
	sb.Nblocks = dec.GetInt()
	sb.LogStart = dec.GetInt()
	sb.LogNblocks = dec.GetInt()
	sb.BitmapStart = dec.GetInt()
	if err := sb.Validate(); err != nil {
		return nil, err
	}
	return sb, nil
}

func (sb *FsSuper) Encode() []byte {
	enc := marshal.NewEnc(common.BlockSize)
	enc.PutInt(sb.Magic)
	enc.PutInt(sb.Nblocks)
	enc.PutInt(sb.LogStart)
	enc.PutInt(sb.LogNblocks)
	enc.PutInt(sb.BitmapStart)
	return enc.Finish()
}

// LogEnd is the first block past the log header and its entries.
func (sb *FsSuper) LogEnd() common.Bnum {
	return sb.LogStart + 1 + sb.LogNblocks
}

func (sb *FsSuper) BitmapBlocks() uint64 {
	if sb.BitmapStart == 0 {
		return 0
	}
	return util.RoundUp(sb.Nblocks, common.NBITBLOCK)
}

// DataStart is the first block not used by metadata.
func (sb *FsSuper) DataStart() common.Bnum {
	end := sb.LogEnd()
	if sb.BitmapStart != 0 && sb.BitmapStart+sb.BitmapBlocks() > end {
		end = sb.BitmapStart + sb.BitmapBlocks()
	}
	return end
}

func (sb *FsSuper) Validate() error {
	if sb.Magic != common.FS_MAGIC {
		return Error.New("bad magic %#x", sb.Magic)
	}
	if sb.Nblocks <= common.SUPERBLK+1 || sb.Nblocks > addr.MaxBlocks {
		return Error.New("bad block count %d", sb.Nblocks)
	}
	if sb.LogStart <= common.SUPERBLK || sb.LogStart >= sb.Nblocks {
		return Error.New("log start %d not in [%d, %d)", sb.LogStart, common.SUPERBLK+1, sb.Nblocks)
	}
	if sb.LogNblocks == 0 || sb.LogNblocks > common.MaxLogBlocks {
		return Error.New("log capacity %d not in [1, %d]", sb.LogNblocks, common.MaxLogBlocks)
	}
	if util.SumOverflows(sb.LogStart+1, sb.LogNblocks) || sb.LogEnd() > sb.Nblocks {
		return Error.New("log [%d, %d) past end of disk (%d blocks)",
			sb.LogStart, sb.LogEnd(), sb.Nblocks)
	}
	if sb.BitmapStart != 0 {
		if sb.BitmapStart <= common.SUPERBLK || sb.BitmapStart >= sb.Nblocks ||
			util.SumOverflows(sb.BitmapStart, sb.BitmapBlocks()) {
			return Error.New("bitmap start %d out of range", sb.BitmapStart)
		}
		bend := sb.BitmapStart + sb.BitmapBlocks()
		if bend > sb.Nblocks {
			return Error.New("bitmap [%d, %d) out of range", sb.BitmapStart, bend)
		}
		if sb.BitmapStart < sb.LogEnd() && bend > sb.LogStart {
			return Error.New("bitmap [%d, %d) overlaps log [%d, %d)",
				sb.BitmapStart, bend, sb.LogStart, sb.LogEnd())
		}
	}
	return nil
}
