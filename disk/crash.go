package disk

import (
	"github.com/pkg/errors"
)

// ErrCrash is the panic value a CrashDisk raises when its write budget runs
// out, standing in for power loss.
var ErrCrash = errors.New("simulated crash")

// CrashDisk records the sectors written through it and can be armed to
// "lose power" before a given write reaches the underlying disk.
type CrashDisk struct {
	Disk
	Writes []uint64 // first sector of every completed write, in order
	Ops    []byte   // 'W' per completed write, 'B' per barrier
	budget int      // writes allowed before crashing; negative is unlimited
}

func NewCrashDisk(d Disk) *CrashDisk {
	return &CrashDisk{Disk: d, budget: -1}
}

// CrashAfter arms the disk to panic with ErrCrash on the (n+1)th write from
// now. The crashing write never reaches the underlying disk.
func (c *CrashDisk) CrashAfter(n int) {
	c.budget = n
}

func (c *CrashDisk) Write(sector uint64, buf []byte) error {
	if c.budget == 0 {
		panic(ErrCrash)
	}
	if c.budget > 0 {
		c.budget--
	}
	if err := c.Disk.Write(sector, buf); err != nil {
		return err
	}
	c.Writes = append(c.Writes, sector)
	c.Ops = append(c.Ops, 'W')
	return nil
}

func (c *CrashDisk) Barrier() error {
	if err := c.Disk.Barrier(); err != nil {
		return err
	}
	c.Ops = append(c.Ops, 'B')
	return nil
}

// WrittenBlocks returns Writes converted to block numbers.
func (c *CrashDisk) WrittenBlocks() []uint64 {
	blks := make([]uint64, 0, len(c.Writes))
	for _, s := range c.Writes {
		blks = append(blks, s/BlockSectors)
	}
	return blks
}
