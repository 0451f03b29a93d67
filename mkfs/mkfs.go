// Package mkfs lays out a fresh volume: the super block, an empty log and,
// optionally, an allocation bitmap with the metadata blocks marked in use.
package mkfs

import (
	"github.com/boljen/go-bitmap"
	"github.com/noxer/bytewriter"
	"github.com/pkg/errors"

	"github.com/mit-pdos/go-bcache/common"
	"github.com/mit-pdos/go-bcache/disk"
	"github.com/mit-pdos/go-bcache/super"
	"github.com/mit-pdos/go-bcache/util"
	"github.com/mit-pdos/go-bcache/wal"
)

const DefaultLogBlocks uint64 = 64

type Params struct {
	Nblocks    uint64
	LogStart   common.Bnum
	LogNblocks uint64 // log capacity, not counting the header
	Bitmap     bool
}

func DefaultParams(nblocks uint64) Params {
	return Params{
		Nblocks:    nblocks,
		LogStart:   common.LOGSTART,
		LogNblocks: DefaultLogBlocks,
		Bitmap:     true,
	}
}

// Super returns the validated super block p describes.
func (p Params) Super() (*super.FsSuper, error) {
	sb := super.MkFsSuper(p.Nblocks, p.LogStart, p.LogNblocks, p.Bitmap)
	if err := sb.Validate(); err != nil {
		return nil, err
	}
	return sb, nil
}

// bitmapBlocks encodes the bitmap of a fresh volume: every block before the
// first data block is in use.
func bitmapBlocks(sb *super.FsSuper) []byte {
	nbits := sb.BitmapBlocks() * common.NBITBLOCK
	bm := bitmap.New(int(nbits))
	for bn := uint64(0); bn < sb.DataStart(); bn++ {
		bm.Set(int(bn), true)
	}
	return bm.Data(false)
}

// Image returns the metadata blocks of a fresh volume, [0, DataStart).
func Image(p Params) ([]byte, error) {
	sb, err := p.Super()
	if err != nil {
		return nil, err
	}
	img := make([]byte, sb.DataStart()*common.BlockSize)
	w := bytewriter.New(img)
	zero := make([]byte, common.BlockSize)

	blocks := make([][]byte, sb.DataStart())
	blocks[common.SUPERBLK] = sb.Encode()
	blocks[sb.LogStart] = wal.EmptyHeader()
	if sb.BitmapStart != 0 {
		bm := bitmapBlocks(sb)
		for i := uint64(0); i < sb.BitmapBlocks(); i++ {
			blocks[sb.BitmapStart+i] = bm[i*common.BlockSize : (i+1)*common.BlockSize]
		}
	}
	for bn, blk := range blocks {
		if blk == nil {
			blk = zero
		}
		if _, err := w.Write(blk); err != nil {
			return nil, errors.Wrapf(err, "image block %d", bn)
		}
	}
	return img, nil
}

// Format writes a fresh volume's metadata to d. Data blocks are left as
// they are.
func Format(d disk.Disk, p Params) error {
	n, err := disk.Blocks(d)
	if err != nil {
		return err
	}
	if n < p.Nblocks {
		return errors.Errorf("mkfs: %d blocks requested, disk has %d", p.Nblocks, n)
	}
	img, err := Image(p)
	if err != nil {
		return err
	}
	nmeta := uint64(len(img)) / common.BlockSize
	util.DPrintf(1, "mkfs: %d blocks, log at %d (%d entries), %d metadata blocks\n",
		p.Nblocks, p.LogStart, p.LogNblocks, nmeta)
	// block 0 is reserved and never written
	for bn := common.SUPERBLK; bn < nmeta; bn++ {
		blk := img[bn*common.BlockSize : (bn+1)*common.BlockSize]
		if err := d.Write(bn*common.BlockSectors, blk); err != nil {
			return errors.Wrapf(err, "mkfs: write block %d", bn)
		}
	}
	return d.Barrier()
}
