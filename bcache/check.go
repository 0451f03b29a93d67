package bcache

import (
	"bytes"

	"github.com/mit-pdos/go-bcache/common"
	"github.com/mit-pdos/go-bcache/util"
)

// Check exercises the cache by smashing the super block, reading it back
// from disk, and restoring it.
func (c *Cache) Check() {
	sa := c.AddrOf(common.SUPERBLK)
	backup := util.CloneByteSlice(c.Block(sa))
	oops := []byte("OOPS!\n\x00")

	c.WriteAt(sa, oops)
	c.Flush(sa)
	if !c.IsMapped(sa) || c.IsDirty(sa) {
		panic(Error.New("check_bc: super block not clean after flush"))
	}

	c.Unmap(sa)
	if c.IsMapped(sa) {
		panic(Error.New("check_bc: super block still mapped"))
	}

	got := make([]byte, len(oops))
	c.ReadAt(sa, got)
	if !bytes.Equal(got, oops) {
		panic(Error.New("check_bc: read back %q", got))
	}

	c.WriteAt(sa, backup)
	c.Flush(sa)
	util.DPrintf(1, "block cache is good\n")
}
