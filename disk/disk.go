// Package disk is the sector-addressed backing device underneath the block
// cache. The cache always transfers exactly one block's worth of sectors per
// call.
package disk

import (
	"github.com/pkg/errors"

	"github.com/mit-pdos/go-bcache/common"
)

const (
	SectorSize   = common.SectorSize
	BlockSectors = common.BlockSectors
)

// Disk provides access to a sector-addressed device
type Disk interface {
	// ReadTo fills buf from consecutive sectors starting at sector.
	//
	// Expects len(buf) to be a multiple of SectorSize.
	ReadTo(sector uint64, buf []byte) error

	// Write stores buf to consecutive sectors starting at sector.
	//
	// Expects len(buf) to be a multiple of SectorSize.
	Write(sector uint64, buf []byte) error

	// Size reports how big the disk is, in sectors
	Size() (uint64, error)

	// Barrier ensures data is persisted.
	//
	// When it returns, all outstanding writes are guaranteed to be durably on
	// disk
	Barrier() error

	// Close releases any resources used by the disk and makes it unusable.
	Close() error
}

// checkRange validates a transfer of len(buf) bytes at sector against a
// device of size sectors.
func checkRange(op string, sector uint64, buf []byte, size uint64) error {
	n := uint64(len(buf))
	if n == 0 || n%SectorSize != 0 {
		return errors.Errorf("%s: buffer of %d bytes is not sector-sized", op, n)
	}
	nsect := n / SectorSize
	if sector >= size || nsect > size-sector {
		return errors.Errorf("%s: sectors [%d, %d) out of range [0, %d)",
			op, sector, sector+nsect, size)
	}
	return nil
}

// Blocks converts a device size in sectors to whole blocks.
func Blocks(d Disk) (uint64, error) {
	sz, err := d.Size()
	if err != nil {
		return 0, err
	}
	return sz / BlockSectors, nil
}
