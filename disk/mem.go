package disk

import (
	"sync"
)

var _ Disk = (*memDisk)(nil)

type memDisk struct {
	l    *sync.RWMutex
	data []byte
}

// NewMemDisk creates a zeroed in-memory disk of numBlocks blocks.
func NewMemDisk(numBlocks uint64) *memDisk {
	return NewMemDiskFrom(make([]byte, numBlocks*BlockSectors*SectorSize))
}

// NewMemDiskFrom wraps an existing image. The disk shares img.
func NewMemDiskFrom(img []byte) *memDisk {
	return &memDisk{l: new(sync.RWMutex), data: img}
}

func (d *memDisk) sectors() uint64 {
	return uint64(len(d.data)) / SectorSize
}

func (d *memDisk) ReadTo(sector uint64, buf []byte) error {
	d.l.RLock()
	defer d.l.RUnlock()
	if err := checkRange("read", sector, buf, d.sectors()); err != nil {
		return err
	}
	copy(buf, d.data[sector*SectorSize:])
	return nil
}

func (d *memDisk) Write(sector uint64, buf []byte) error {
	d.l.Lock()
	defer d.l.Unlock()
	if err := checkRange("write", sector, buf, d.sectors()); err != nil {
		return err
	}
	copy(d.data[sector*SectorSize:], buf)
	return nil
}

func (d *memDisk) Size() (uint64, error) {
	// this never changes so we assume it's safe to run lock-free
	return d.sectors(), nil
}

func (d *memDisk) Barrier() error { return nil }

func (d *memDisk) Close() error { return nil }
