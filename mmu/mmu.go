// Package mmu emulates the page table of the file system environment.
//
// It provides the page mapping primitives the block cache consumes
// (PageAlloc, PageMap, PageUnmap), the per-page present, accessed and dirty
// bits the hardware would maintain, and fault delivery: Access on an unmapped
// page invokes the registered handler with the faulting address, exactly as
// a trap would, and retries once the handler returns.
package mmu

import (
	"sort"

	"github.com/boljen/go-bitmap"
	"github.com/zeebo/errs"

	"github.com/mit-pdos/go-bcache/addr"
	"github.com/mit-pdos/go-bcache/common"
	"github.com/mit-pdos/go-bcache/util"
)

var Error = errs.Class("mmu")

const PGSIZE = common.BlockSize

type Perm uint64

const (
	PTE_P Perm = 0x001
	PTE_W Perm = 0x002
	PTE_U Perm = 0x004
	PTE_A Perm = 0x020
	PTE_D Perm = 0x040

	// PTE_SYSCALL are the bits a mapping call may set. Remapping a page
	// with them clears the accessed and dirty bits.
	PTE_SYSCALL = PTE_P | PTE_W | PTE_U
)

// maxFaultDepth bounds nested faults. The cache's post-load allocation check
// can fault once more on a bitmap block; anything deeper is recursion.
const maxFaultDepth = 4

type Kind int

const (
	Read Kind = iota
	Write
)

func (k Kind) String() string {
	if k == Write {
		return "write"
	}
	return "read"
}

// FaultHandler must leave va mapped when it returns.
type FaultHandler func(va addr.Addr, kind Kind)

type MMU struct {
	npages   uint64
	frames   map[uint64][]byte
	present  bitmap.Bitmap
	writable bitmap.Bitmap
	accessed bitmap.Bitmap
	dirty    bitmap.Bitmap
	handler  FaultHandler
	depth    uint64
	nfault   uint64
}

// MkMMU creates a page table covering npages pages from addr.Base.
func MkMMU(npages uint64) *MMU {
	return &MMU{
		npages:   npages,
		frames:   make(map[uint64][]byte),
		present:  bitmap.New(int(npages)),
		writable: bitmap.New(int(npages)),
		accessed: bitmap.New(int(npages)),
		dirty:    bitmap.New(int(npages)),
	}
}

func (m *MMU) SetFaultHandler(h FaultHandler) {
	m.handler = h
}

func (m *MMU) pgnum(va addr.Addr) (uint64, error) {
	if !va.InWindow() {
		return 0, Error.New("va %#x outside window", uint64(va))
	}
	pn := va.Blkno()
	if pn >= m.npages {
		return 0, Error.New("va %#x beyond page %d", uint64(va), m.npages)
	}
	return pn, nil
}

func (m *MMU) setPerm(pn uint64, perm Perm) {
	i := int(pn)
	m.present.Set(i, perm&PTE_P != 0)
	m.writable.Set(i, perm&PTE_W != 0)
	m.accessed.Set(i, perm&PTE_A != 0)
	m.dirty.Set(i, perm&PTE_D != 0)
}

// PageAlloc maps a fresh zeroed frame at va. Any existing frame is
// replaced.
func (m *MMU) PageAlloc(va addr.Addr, perm Perm) error {
	pn, err := m.pgnum(va)
	if err != nil {
		return err
	}
	if perm&^PTE_SYSCALL != 0 {
		return Error.New("page alloc %#x: perm %#x not allowed", uint64(va), perm)
	}
	m.frames[pn] = make([]byte, PGSIZE)
	m.setPerm(pn, perm|PTE_P)
	return nil
}

// PageMap remaps the frame at va with perm. Bits outside PTE_SYSCALL cannot
// be set, so this is how accessed and dirty are cleared.
func (m *MMU) PageMap(va addr.Addr, perm Perm) error {
	pn, err := m.pgnum(va)
	if err != nil {
		return err
	}
	if !m.present.Get(int(pn)) {
		return Error.New("page map %#x: not mapped", uint64(va))
	}
	if perm&^PTE_SYSCALL != 0 {
		return Error.New("page map %#x: perm %#x not allowed", uint64(va), perm)
	}
	m.setPerm(pn, perm|PTE_P)
	return nil
}

// PageUnmap drops the frame at va. Unmapping an unmapped page is a no-op.
func (m *MMU) PageUnmap(va addr.Addr) error {
	pn, err := m.pgnum(va)
	if err != nil {
		return err
	}
	delete(m.frames, pn)
	m.setPerm(pn, 0)
	return nil
}

func (m *MMU) bit(b bitmap.Bitmap, va addr.Addr) bool {
	pn, err := m.pgnum(va)
	if err != nil {
		return false
	}
	return b.Get(int(pn))
}

func (m *MMU) IsMapped(va addr.Addr) bool {
	return m.bit(m.present, va)
}

func (m *MMU) IsDirty(va addr.Addr) bool {
	return m.bit(m.dirty, va)
}

func (m *MMU) IsAccessed(va addr.Addr) bool {
	return m.bit(m.accessed, va)
}

// Perm returns the current bits of va's page table entry.
func (m *MMU) Perm(va addr.Addr) Perm {
	pn, err := m.pgnum(va)
	if err != nil {
		return 0
	}
	i := int(pn)
	var p Perm
	for _, f := range []struct {
		b bitmap.Bitmap
		p Perm
	}{{m.present, PTE_P}, {m.writable, PTE_W}, {m.accessed, PTE_A}, {m.dirty, PTE_D}} {
		if f.b.Get(i) {
			p |= f.p
		}
	}
	return p
}

// Frame returns the frame backing va's page without touching the accessed
// or dirty bits; this is the view device I/O uses. It returns nil for an
// unmapped page.
func (m *MMU) Frame(va addr.Addr) []byte {
	pn, err := m.pgnum(va)
	if err != nil {
		return nil
	}
	return m.frames[pn]
}

// Access performs a user access of kind at va and returns the page frame.
// An unmapped page faults into the handler first; a write to a read-only
// page is fatal.
func (m *MMU) Access(va addr.Addr, kind Kind) []byte {
	pn, err := m.pgnum(va)
	if err != nil {
		panic(err)
	}
	if !m.present.Get(int(pn)) {
		m.fault(va, kind)
		if !m.present.Get(int(pn)) {
			panic(Error.New("%s fault at %#x: handler left page unmapped", kind, uint64(va)))
		}
	}
	if kind == Write && !m.writable.Get(int(pn)) {
		panic(Error.New("write to read-only page at %#x", uint64(va)))
	}
	m.accessed.Set(int(pn), true)
	if kind == Write {
		m.dirty.Set(int(pn), true)
	}
	return m.frames[pn]
}

func (m *MMU) fault(va addr.Addr, kind Kind) {
	if m.handler == nil {
		panic(Error.New("unhandled %s fault at %#x", kind, uint64(va)))
	}
	if m.depth >= maxFaultDepth {
		panic(Error.New("%s fault at %#x nested %d deep", kind, uint64(va), m.depth))
	}
	m.depth++
	defer func() { m.depth-- }()
	m.nfault++
	util.DPrintf(10, "fault: %s %#x depth %d\n", kind, uint64(va), m.depth)
	m.handler(va, kind)
}

// Faults returns the number of faults delivered so far.
func (m *MMU) Faults() uint64 {
	return m.nfault
}

// Resident returns the number of mapped pages.
func (m *MMU) Resident() uint64 {
	return uint64(len(m.frames))
}

// Mapped returns the addresses of all mapped pages in ascending order.
func (m *MMU) Mapped() []addr.Addr {
	vas := make([]addr.Addr, 0, len(m.frames))
	for pn := range m.frames {
		vas = append(vas, addr.MkAddr(pn, 0))
	}
	sort.Slice(vas, func(i, j int) bool { return vas[i] < vas[j] })
	return vas
}
