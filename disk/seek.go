package disk

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

var _ Disk = (*seekDisk)(nil)

// seekDisk drives a plain seekable stream, such as an image held in memory
// or a block special file opened with os.OpenFile.
type seekDisk struct {
	mu       sync.Mutex
	dev      io.ReadWriteSeeker
	nsectors uint64
}

func NewSeekDisk(dev io.ReadWriteSeeker, nsectors uint64) *seekDisk {
	return &seekDisk{dev: dev, nsectors: nsectors}
}

func (d *seekDisk) seek(sector uint64) error {
	if _, err := d.dev.Seek(int64(sector*SectorSize), io.SeekStart); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (d *seekDisk) ReadTo(sector uint64, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := checkRange("read", sector, buf, d.nsectors); err != nil {
		return err
	}
	if err := d.seek(sector); err != nil {
		return err
	}
	if _, err := io.ReadFull(d.dev, buf); err != nil {
		return errors.Wrapf(err, "read sector %d", sector)
	}
	return nil
}

func (d *seekDisk) Write(sector uint64, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := checkRange("write", sector, buf, d.nsectors); err != nil {
		return err
	}
	if err := d.seek(sector); err != nil {
		return err
	}
	n, err := d.dev.Write(buf)
	if err != nil {
		return errors.Wrapf(err, "write sector %d", sector)
	}
	if n != len(buf) {
		return errors.Wrapf(io.ErrShortWrite, "write sector %d", sector)
	}
	return nil
}

func (d *seekDisk) Size() (uint64, error) {
	return d.nsectors, nil
}

type syncer interface {
	Sync() error
}

func (d *seekDisk) Barrier() error {
	if s, ok := d.dev.(syncer); ok {
		return errors.WithStack(s.Sync())
	}
	return nil
}

func (d *seekDisk) Close() error {
	if c, ok := d.dev.(io.Closer); ok {
		return errors.WithStack(c.Close())
	}
	return nil
}
