package addr

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mit-pdos/go-bcache/common"
)

func TestMkAddr(t *testing.T) {
	assert := assert.New(t)
	a := MkAddr(5, 17)
	assert.Equal(uint64(5), a.Blkno())
	assert.Equal(uint64(17), a.Off())
	assert.Equal(MkAddr(5, 0), a.RoundDown())
	assert.Equal(Base+Addr(5*common.BlockSize), a.RoundDown())
	assert.Equal(MkAddr(5, 0), MkAddr(5, 0).RoundDown(), "aligned is unchanged")
	assert.Equal(MkAddr(5, 0), MkAddr(5, common.BlockSize-1).RoundDown())
}

func TestInWindow(t *testing.T) {
	assert := assert.New(t)
	assert.True(Base.InWindow())
	assert.False((Base - 1).InWindow())
	assert.True((Base + Addr(WindowSize-1)).InWindow())
	assert.False((Base + Addr(WindowSize)).InWindow(), "window end is exclusive")
}

func TestAddCrossesBlock(t *testing.T) {
	a := MkAddr(3, common.BlockSize-1).Add(1)
	assert.Equal(t, uint64(4), a.Blkno())
	assert.Equal(t, uint64(0), a.Off())
}
