package disk

import (
	gdisk "github.com/tchajed/goose/machine/disk"

	"github.com/pkg/errors"
)

var _ Disk = (*gooseDisk)(nil)

// gooseDisk exposes a goose block disk through sector ranges. Transfers
// must be block aligned, which is all the cache ever issues.
type gooseDisk struct {
	d gdisk.Disk
}

// FromGoose adapts a goose machine disk. The caller keeps ownership of d;
// Close on the adapter does not close it.
func FromGoose(d gdisk.Disk) Disk {
	return &gooseDisk{d: d}
}

func (g *gooseDisk) blocks(op string, sector uint64, buf []byte) (uint64, uint64, error) {
	if err := checkRange(op, sector, buf, g.d.Size()*BlockSectors); err != nil {
		return 0, 0, err
	}
	if sector%BlockSectors != 0 || uint64(len(buf))%gdisk.BlockSize != 0 {
		return 0, 0, errors.Errorf("%s: sector %d len %d not block aligned",
			op, sector, len(buf))
	}
	return sector / BlockSectors, uint64(len(buf)) / gdisk.BlockSize, nil
}

func (g *gooseDisk) ReadTo(sector uint64, buf []byte) error {
	a, n, err := g.blocks("read", sector, buf)
	if err != nil {
		return err
	}
	for i := uint64(0); i < n; i++ {
		copy(buf[i*gdisk.BlockSize:], g.d.Read(a+i))
	}
	return nil
}

func (g *gooseDisk) Write(sector uint64, buf []byte) error {
	a, n, err := g.blocks("write", sector, buf)
	if err != nil {
		return err
	}
	for i := uint64(0); i < n; i++ {
		blk := make(gdisk.Block, gdisk.BlockSize)
		copy(blk, buf[i*gdisk.BlockSize:])
		g.d.Write(a+i, blk)
	}
	return nil
}

func (g *gooseDisk) Size() (uint64, error) {
	return g.d.Size() * BlockSectors, nil
}

func (g *gooseDisk) Barrier() error {
	g.d.Barrier()
	return nil
}

func (g *gooseDisk) Close() error {
	return nil
}
