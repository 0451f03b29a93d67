package util

import "log"

// Debug is the highest level DPrintf prints. Commands raise it from flags.
var Debug uint64 = 0

func DPrintf(level uint64, format string, a ...interface{}) {
	if level <= Debug {
		log.Printf(format, a...)
	}
}

// RoundUp returns the number of sz-sized units needed to hold n.
func RoundUp(n uint64, sz uint64) uint64 {
	return (n + sz - 1) / sz
}

// RoundDown rounds n down to a multiple of sz.
func RoundDown(n uint64, sz uint64) uint64 {
	return n - n%sz
}

func Min(n uint64, m uint64) uint64 {
	if n < m {
		return n
	} else {
		return m
	}
}

func SumOverflows(n uint64, m uint64) bool {
	return n+m < n
}

func CloneByteSlice(s []byte) []byte {
	s2 := make([]byte, len(s))
	copy(s2, s)
	return s2
}

func CloneBnums(s []uint64) []uint64 {
	s2 := make([]uint64, len(s))
	copy(s2, s)
	return s2
}
