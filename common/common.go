package common

type Bnum = uint64

const (
	BlockSize    uint64 = 4096
	SectorSize   uint64 = 512
	BlockSectors        = BlockSize / SectorSize

	// NBITBLOCK is the number of allocation bits in one bitmap block.
	NBITBLOCK uint64 = BlockSize * 8

	HDRMETA      = uint64(8) // space for n
	MaxLogBlocks = (BlockSize - HDRMETA) / 8
)

const (
	NULLBNUM Bnum   = 0
	SUPERBLK Bnum   = 1
	LOGSTART Bnum   = 2 // default log region start used by mkfs
	FS_MAGIC uint64 = 0x4A0530AE
)
