package mmu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-bcache/addr"
)

func TestAllocMapUnmap(t *testing.T) {
	assert := assert.New(t)
	m := MkMMU(8)
	va := addr.MkAddr(3, 0)
	assert.False(m.IsMapped(va))
	require.NoError(t, m.PageAlloc(va, PTE_U|PTE_W))
	assert.True(m.IsMapped(va))
	assert.False(m.IsDirty(va))
	assert.Equal(PTE_P|PTE_W, m.Perm(va)&(PTE_P|PTE_W))
	assert.Equal(uint64(1), m.Resident())

	require.NoError(t, m.PageUnmap(va))
	assert.False(m.IsMapped(va))
	assert.Nil(m.Frame(va))
	assert.NoError(m.PageUnmap(va), "unmapping twice is fine")
}

func TestAccessSetsBits(t *testing.T) {
	assert := assert.New(t)
	m := MkMMU(8)
	va := addr.MkAddr(2, 100)
	require.NoError(t, m.PageAlloc(va, PTE_SYSCALL))

	m.Access(va, Read)
	assert.True(m.IsAccessed(va))
	assert.False(m.IsDirty(va), "reads leave the dirty bit alone")

	m.Access(va, Write)[va.Off()] = 1
	assert.True(m.IsDirty(va))
	assert.Equal(byte(1), m.Frame(va)[100])

	require.NoError(t, m.PageMap(va, PTE_SYSCALL))
	assert.False(m.IsDirty(va), "remap clears dirty")
	assert.False(m.IsAccessed(va), "remap clears accessed")
	assert.Equal(byte(1), m.Frame(va)[100], "remap keeps the frame")
}

func TestPermChecks(t *testing.T) {
	m := MkMMU(4)
	va := addr.MkAddr(1, 0)
	assert.Error(t, m.PageAlloc(va, PTE_D), "dirty cannot be set by a mapping call")
	assert.Error(t, m.PageMap(va, PTE_SYSCALL), "cannot remap an unmapped page")
	assert.Error(t, m.PageAlloc(addr.MkAddr(4, 0), PTE_SYSCALL), "past the table")
	assert.Error(t, m.PageAlloc(addr.Base-1, PTE_SYSCALL), "outside the window")

	require.NoError(t, m.PageAlloc(va, PTE_P|PTE_U))
	assert.Panics(t, func() { m.Access(va, Write) }, "page is read-only")
}

func TestFaultDelivery(t *testing.T) {
	assert := assert.New(t)
	m := MkMMU(8)
	var faults []addr.Addr
	var kinds []Kind
	m.SetFaultHandler(func(va addr.Addr, kind Kind) {
		faults = append(faults, va)
		kinds = append(kinds, kind)
		assert.NoError(m.PageAlloc(va.RoundDown(), PTE_SYSCALL))
	})
	va := addr.MkAddr(5, 7)
	m.Access(va, Write)
	m.Access(va, Read)
	assert.Equal([]addr.Addr{va}, faults, "only the first touch faults")
	assert.Equal([]Kind{Write}, kinds)
	assert.Equal(uint64(1), m.Faults())
	assert.True(m.IsDirty(va))
}

func TestFaultFailures(t *testing.T) {
	m := MkMMU(8)
	assert.Panics(t, func() { m.Access(addr.MkAddr(1, 0), Read) }, "no handler")

	m.SetFaultHandler(func(va addr.Addr, kind Kind) {})
	assert.Panics(t, func() { m.Access(addr.MkAddr(1, 0), Read) }, "handler did not map")
}

func TestFaultRecursionBounded(t *testing.T) {
	m := MkMMU(8)
	var depth int
	m.SetFaultHandler(func(va addr.Addr, kind Kind) {
		depth++
		// touching the same page before mapping it recurses forever
		m.Access(va, Read)
	})
	assert.Panics(t, func() { m.Access(addr.MkAddr(1, 0), Read) })
	assert.Equal(t, maxFaultDepth, depth)
}

func TestNestedFault(t *testing.T) {
	m := MkMMU(8)
	meta := addr.MkAddr(2, 0)
	m.SetFaultHandler(func(va addr.Addr, kind Kind) {
		assert.NoError(t, m.PageAlloc(va.RoundDown(), PTE_SYSCALL))
		if va.Blkno() != meta.Blkno() {
			// after loading, consult a block that may itself fault
			m.Access(meta, Read)
		}
	})
	m.Access(addr.MkAddr(6, 0), Read)
	assert.Equal(t, uint64(2), m.Faults())
	assert.True(t, m.IsMapped(meta))
}
