package super

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-bcache/common"
)

func TestEncodeDecode(t *testing.T) {
	sb := MkFsSuper(1024, 2, 16, true)
	blk := sb.Encode()
	assert.Equal(t, common.BlockSize, uint64(len(blk)))
	sb2, err := Decode(blk)
	require.NoError(t, err)
	assert.Equal(t, sb, sb2)
}

func TestLayout(t *testing.T) {
	assert := assert.New(t)
	sb := MkFsSuper(1024, 2, 16, true)
	assert.Equal(common.Bnum(19), sb.LogEnd(), "header at 2, entries 3..18")
	assert.Equal(common.Bnum(19), sb.BitmapStart)
	assert.Equal(uint64(1), sb.BitmapBlocks())
	assert.Equal(common.Bnum(20), sb.DataStart())

	nobm := MkFsSuper(1024, 2, 16, false)
	assert.Equal(uint64(0), nobm.BitmapBlocks())
	assert.Equal(common.Bnum(19), nobm.DataStart())
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		sb   FsSuper
	}{
		{"magic", FsSuper{Magic: 1, Nblocks: 1024, LogStart: 2, LogNblocks: 16}},
		{"tiny", FsSuper{Magic: common.FS_MAGIC, Nblocks: 2, LogStart: 2, LogNblocks: 1}},
		{"log on super", FsSuper{Magic: common.FS_MAGIC, Nblocks: 1024, LogStart: 1, LogNblocks: 16}},
		{"empty log", FsSuper{Magic: common.FS_MAGIC, Nblocks: 1024, LogStart: 2}},
		{"huge log", FsSuper{Magic: common.FS_MAGIC, Nblocks: 4096, LogStart: 2, LogNblocks: common.MaxLogBlocks + 1}},
		{"log past end", FsSuper{Magic: common.FS_MAGIC, Nblocks: 10, LogStart: 2, LogNblocks: 8}},
		{"bitmap in log", FsSuper{Magic: common.FS_MAGIC, Nblocks: 1024, LogStart: 2, LogNblocks: 16, BitmapStart: 5}},
		{"log start past end", FsSuper{Magic: common.FS_MAGIC, Nblocks: 1024, LogStart: 1024, LogNblocks: 1}},
		{"log end wraps", FsSuper{Magic: common.FS_MAGIC, Nblocks: 1024, LogStart: 1<<64 - 2, LogNblocks: 1}},
		{"bitmap past end", FsSuper{Magic: common.FS_MAGIC, Nblocks: 1024, LogStart: 2, LogNblocks: 16, BitmapStart: 1024}},
		{"bitmap end wraps", FsSuper{Magic: common.FS_MAGIC, Nblocks: 1024, LogStart: 2, LogNblocks: 16, BitmapStart: 1<<64 - 1}},
	} {
		sb := tc.sb
		assert.Error(t, sb.Validate(), tc.name)
		_, err := Decode(sb.Encode())
		assert.Error(t, err, tc.name)
	}
	ok := FsSuper{Magic: common.FS_MAGIC, Nblocks: 10, LogStart: 2, LogNblocks: 7}
	assert.NoError(t, ok.Validate(), "log may end exactly at the last block")
}

func TestDecodeShort(t *testing.T) {
	_, err := Decode(make([]byte, 8))
	assert.Error(t, err)
}
