package disk

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var _ Disk = (*fileDisk)(nil)

type fileDisk struct {
	fd       int
	nsectors uint64
}

// NewFileDisk opens (creating if needed) a disk image of numBlocks blocks.
func NewFileDisk(path string, numBlocks uint64) (*fileDisk, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0666)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	var stat unix.Stat_t
	err = unix.Fstat(fd, &stat)
	if err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	size := int64(numBlocks * BlockSectors * SectorSize)
	if (stat.Mode&unix.S_IFREG) != 0 && stat.Size != size {
		err = unix.Ftruncate(fd, size)
		if err != nil {
			unix.Close(fd)
			return nil, errors.Wrapf(err, "truncate %s", path)
		}
	}
	return &fileDisk{fd: fd, nsectors: numBlocks * BlockSectors}, nil
}

// OpenFileDisk opens an existing image, sizing the disk from the file.
func OpenFileDisk(path string) (*fileDisk, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	return &fileDisk{fd: fd, nsectors: uint64(stat.Size) / SectorSize}, nil
}

func (d *fileDisk) ReadTo(sector uint64, buf []byte) error {
	if err := checkRange("read", sector, buf, d.nsectors); err != nil {
		return err
	}
	n, err := unix.Pread(d.fd, buf, int64(sector*SectorSize))
	if err != nil {
		return errors.Wrapf(err, "pread sector %d", sector)
	}
	if n != len(buf) {
		return errors.Errorf("short read at sector %d: %d of %d bytes", sector, n, len(buf))
	}
	return nil
}

func (d *fileDisk) Write(sector uint64, buf []byte) error {
	if err := checkRange("write", sector, buf, d.nsectors); err != nil {
		return err
	}
	n, err := unix.Pwrite(d.fd, buf, int64(sector*SectorSize))
	if err != nil {
		return errors.Wrapf(err, "pwrite sector %d", sector)
	}
	if n != len(buf) {
		return errors.Errorf("short write at sector %d: %d of %d bytes", sector, n, len(buf))
	}
	return nil
}

func (d *fileDisk) Size() (uint64, error) {
	return d.nsectors, nil
}

func (d *fileDisk) Barrier() error {
	// NOTE: on macOS, this flushes to the drive but doesn't actually issue a
	// disk barrier; see https://golang.org/src/internal/poll/fd_fsync_darwin.go
	// for more details. The correct replacement is to issue a fcntl syscall with
	// cmd F_FULLFSYNC.
	return errors.Wrap(unix.Fsync(d.fd), "fsync")
}

func (d *fileDisk) Close() error {
	return errors.Wrap(unix.Close(d.fd), "close")
}
