package wal

import (
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-bcache/common"
)

type hdr struct {
	n        uint64
	blocknos []common.Bnum // always HDRADDRS long; only [0, n) is meaningful
}

func mkHdr() *hdr {
	return &hdr{blocknos: make([]common.Bnum, HDRADDRS)}
}

func decodeHdr(blk []byte) *hdr {
	dec := marshal.NewDec(blk)
	h := new(hdr)
	h.n = dec.GetInt()
	h.blocknos = dec.GetInts(HDRADDRS)
	return h
}

func (h *hdr) encode() []byte {
	enc := marshal.NewEnc(common.BlockSize)
	enc.PutInt(h.n)
	enc.PutInts(h.blocknos)
	return enc.Finish()
}

// find returns the entry index buffering bn.
func (h *hdr) find(bn common.Bnum) (uint64, bool) {
	for i := uint64(0); i < h.n; i++ {
		if h.blocknos[i] == bn {
			return i, true
		}
	}
	return 0, false
}

// EmptyHeader is the on-disk form of a log with no buffered blocks.
func EmptyHeader() []byte {
	return mkHdr().encode()
}
