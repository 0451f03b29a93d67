package disk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	gdisk "github.com/tchajed/goose/machine/disk"
	"github.com/xaionaro-go/bytesextra"

	"github.com/mit-pdos/go-bcache/common"
)

const testBlocks = 16

func mkBlock(b byte) []byte {
	blk := make([]byte, common.BlockSize)
	for i := range blk {
		blk[i] = b
	}
	return blk
}

// DiskSuite runs the same checks against every Disk implementation.
type DiskSuite struct {
	suite.Suite
	mk func() Disk
	d  Disk
}

func (suite *DiskSuite) SetupTest() {
	suite.d = suite.mk()
}

func (suite *DiskSuite) TearDownTest() {
	suite.NoError(suite.d.Close())
}

func (suite *DiskSuite) TestSize() {
	sz, err := suite.d.Size()
	suite.NoError(err)
	suite.Equal(uint64(testBlocks*BlockSectors), sz)
	n, err := Blocks(suite.d)
	suite.NoError(err)
	suite.Equal(uint64(testBlocks), n)
}

func (suite *DiskSuite) TestBlockReadWrite() {
	d := suite.d
	suite.Require().NoError(d.Write(3*BlockSectors, mkBlock(3)))
	suite.Require().NoError(d.Write(4*BlockSectors, mkBlock(4)))
	buf := make([]byte, common.BlockSize)
	suite.Require().NoError(d.ReadTo(3*BlockSectors, buf))
	suite.Equal(mkBlock(3), buf)
	suite.Require().NoError(d.ReadTo(4*BlockSectors, buf))
	suite.Equal(mkBlock(4), buf)
	suite.Require().NoError(d.ReadTo(5*BlockSectors, buf))
	suite.Equal(mkBlock(0), buf, "unwritten block should be zero")
	suite.NoError(d.Barrier())
}

func (suite *DiskSuite) TestOutOfRange() {
	buf := make([]byte, common.BlockSize)
	suite.Error(suite.d.ReadTo(testBlocks*BlockSectors, buf))
	suite.Error(suite.d.Write((testBlocks-1)*BlockSectors+1, buf),
		"a block straddling the end is out of range")
	suite.Error(suite.d.Write(0, buf[:100]), "partial sectors are rejected")
}

func TestMemDisk(t *testing.T) {
	suite.Run(t, &DiskSuite{mk: func() Disk { return NewMemDisk(testBlocks) }})
}

func TestSeekDisk(t *testing.T) {
	suite.Run(t, &DiskSuite{mk: func() Disk {
		img := make([]byte, testBlocks*common.BlockSize)
		return NewSeekDisk(bytesextra.NewReadWriteSeeker(img), testBlocks*BlockSectors)
	}})
}

func TestGooseDisk(t *testing.T) {
	suite.Run(t, &DiskSuite{mk: func() Disk {
		return FromGoose(gdisk.NewMemDisk(testBlocks))
	}})
}

func TestFileDisk(t *testing.T) {
	dir := t.TempDir()
	suite.Run(t, &DiskSuite{mk: func() Disk {
		d, err := NewFileDisk(dir+"/disk.img", testBlocks)
		require.NoError(t, err)
		return d
	}})
}

func TestMemDiskSectorGranularity(t *testing.T) {
	d := NewMemDisk(2)
	sect := make([]byte, SectorSize)
	sect[0] = 7
	require.NoError(t, d.Write(1, sect))
	blk := make([]byte, common.BlockSize)
	require.NoError(t, d.ReadTo(0, blk))
	assert.Equal(t, byte(7), blk[SectorSize], "sector 1 starts SectorSize bytes in")
}

func TestGooseDiskRejectsUnaligned(t *testing.T) {
	d := FromGoose(gdisk.NewMemDisk(2))
	assert.Error(t, d.Write(1, make([]byte, SectorSize)))
}

func TestCrashDisk(t *testing.T) {
	assert := assert.New(t)
	mem := NewMemDisk(4)
	d := NewCrashDisk(mem)
	assert.NoError(d.Write(1*BlockSectors, mkBlock(1)))
	d.CrashAfter(1)
	assert.NoError(d.Write(2*BlockSectors, mkBlock(2)))
	assert.PanicsWithValue(ErrCrash, func() {
		d.Write(3*BlockSectors, mkBlock(3))
	})
	assert.Equal([]uint64{1, 2}, d.WrittenBlocks())

	buf := make([]byte, common.BlockSize)
	assert.NoError(mem.ReadTo(3*BlockSectors, buf))
	assert.Equal(mkBlock(0), buf, "crashing write must not land")
}
