package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-bcache/bcache"
	"github.com/mit-pdos/go-bcache/common"
	"github.com/mit-pdos/go-bcache/disk"
	"github.com/mit-pdos/go-bcache/jrnl"
	"github.com/mit-pdos/go-bcache/mkfs"
	"github.com/mit-pdos/go-bcache/super"
	"github.com/mit-pdos/go-bcache/wal"
)

func TestPopCnt(t *testing.T) {
	assert.Equal(t, uint64(0), popCnt(0))
	assert.Equal(t, uint64(1), popCnt(1))
	assert.Equal(t, uint64(1), popCnt(2))
	assert.Equal(t, uint64(2), popCnt(3))
	assert.Equal(t, uint64(8), popCnt(255))
}

type fixture struct {
	d   disk.Disk
	sb  *super.FsSuper
	c   *bcache.Cache
	log *wal.Walog
	a   *Alloc
}

func mkFixture(t *testing.T, d disk.Disk) *fixture {
	c := bcache.MkCache(d, bcache.DefaultConfig())
	sb, err := super.Decode(c.Block(c.AddrOf(common.SUPERBLK)))
	require.NoError(t, err)
	c.SetBound(sb.Nblocks)
	log := wal.MkLog(c, sb.LogStart, sb.LogNblocks)
	return &fixture{
		d:   d,
		sb:  sb,
		c:   c,
		log: log,
		a:   MkAlloc(c, sb.BitmapStart, sb.Nblocks),
	}
}

func formatted(t *testing.T, nblocks uint64) disk.Disk {
	d := disk.NewMemDisk(nblocks)
	p := mkfs.Params{Nblocks: nblocks, LogStart: 2, LogNblocks: 16, Bitmap: true}
	require.NoError(t, mkfs.Format(d, p))
	return d
}

func TestAlloc(t *testing.T) {
	assert := assert.New(t)
	f := mkFixture(t, formatted(t, 1024))
	a := f.a
	// blocks 0..19 are metadata
	assert.Equal(uint64(1024-20), a.NumFree(), "everything but metadata should be initially free")
	assert.NoError(a.CheckReserved(f.sb.DataStart()))

	op := jrnl.Begin(f.log)
	n := a.AllocNum(op)
	assert.GreaterOrEqual(n, uint64(20), "should not allocate metadata")

	a.MarkUsed(op, n+1)
	n2 := a.AllocNum(op)
	assert.NotEqual(n, n2, "sees earlier allocation in the same op")
	assert.NotEqual(n+1, n2, "should not allocate something marked used")
	assert.True(a.IsFree(n), "not in use until commit")
	assert.True(op.Commit())

	assert.False(a.IsFree(n))
	assert.Equal(uint64(1024-23), a.NumFree(), "should have used 3 blocks")

	op = jrnl.Begin(f.log)
	a.FreeNum(op, n)
	a.FreeNum(op, n2)
	op.Commit()
	assert.Equal(uint64(1024-21), a.NumFree(), "should have freed")
}

func TestAllocPersists(t *testing.T) {
	d := formatted(t, 1024)
	f := mkFixture(t, d)
	op := jrnl.Begin(f.log)
	n := f.a.AllocNum(op)
	op.Commit()

	f = mkFixture(t, d)
	assert.False(t, f.a.IsFree(n))
}

func TestAllocExhausted(t *testing.T) {
	f := mkFixture(t, formatted(t, 64))
	op := jrnl.Begin(f.log)
	for bn := f.sb.DataStart(); bn < 64; bn++ {
		assert.NotEqual(t, uint64(0), f.a.AllocNum(op))
	}
	assert.Equal(t, uint64(0), f.a.AllocNum(op), "nothing left")
}

func TestFreeErrors(t *testing.T) {
	f := mkFixture(t, formatted(t, 1024))
	op := jrnl.Begin(f.log)
	assert.Panics(t, func() { f.a.FreeNum(op, 0) })
	assert.Panics(t, func() { f.a.FreeNum(op, 1024) })
	assert.Panics(t, func() { f.a.FreeNum(op, 500) }, "already free")
}

func TestCheckReservedFails(t *testing.T) {
	d := formatted(t, 1024)
	f := mkFixture(t, d)
	op := jrnl.Begin(f.log)
	f.a.FreeNum(op, f.sb.LogStart)
	op.Commit()
	assert.Error(t, f.a.CheckReserved(f.sb.DataStart()))
}

func TestCheckerRejectsFreeBlock(t *testing.T) {
	f := mkFixture(t, formatted(t, 1024))
	f.c.SetChecker(f.a)

	// metadata loads fine, including the bitmap block checking itself
	assert.NotPanics(t, func() { f.c.Block(f.c.AddrOf(f.sb.BitmapStart)) })
	assert.Panics(t, func() { f.c.Block(f.c.AddrOf(700)) }, "block 700 is free")
}

func TestCheckerAllocatedBlock(t *testing.T) {
	f := mkFixture(t, formatted(t, 1024))
	f.c.SetChecker(f.a)

	op := jrnl.Begin(f.log)
	n := f.a.AllocNum(op)
	copy(op.Init(n), "fresh")
	require.True(t, op.Commit(), "bitmap reaches the cache before the new block loads")

	f = mkFixture(t, f.d)
	f.c.SetChecker(f.a)
	buf := make([]byte, 5)
	f.c.ReadAt(f.c.AddrOf(n), buf)
	assert.Equal(t, "fresh", string(buf))
}
