// Package guestelf implements the ELF loader (spec component C3): parsing
// a 64-bit RISC-V ELF, finding PT_LOAD/PT_INTERP/PT_PHDR, and loading
// segments into the guest address space with per-page permission merging.
//
// Grounded directly on original_source's elf_loader.hpp (the C++
// implementation this spec distills), translating its exception-based
// fault-retry loop into the Result-style rvmachine.FaultError pattern
// spec.md §9 asks for.
package guestelf

import (
	"encoding/binary"
	"fmt"

	"github.com/friscy-go/friscy/internal/rvmachine"
)

const (
	PT_NULL    = 0
	PT_LOAD    = 1
	PT_DYNAMIC = 2
	PT_INTERP  = 3
	PT_NOTE    = 4
	PT_PHDR    = 6

	ET_EXEC = 2
	ET_DYN  = 3

	PF_X = 1
	PF_W = 2
	PF_R = 4

	EM_RISCV = 0xF3
)

// Info is the result of parsing an ELF's header and program headers.
type Info struct {
	EntryPoint  uint64
	PhdrAddr    uint64
	PhdrEntSize uint16
	PhdrCount   uint16
	BaseAddr    uint64
	IsDynamic   bool
	Interpreter string
	Type        uint16
}

type phdr struct {
	Type   uint32
	Flags  uint32
	Offset uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

func readPhdr(blob []byte, off uint64) (phdr, error) {
	if off+56 > uint64(len(blob)) {
		return phdr{}, fmt.Errorf("guestelf: program header out of range at offset %d", off)
	}
	b := blob[off : off+56]
	return phdr{
		Type:   binary.LittleEndian.Uint32(b[0:4]),
		Flags:  binary.LittleEndian.Uint32(b[4:8]),
		Offset: binary.LittleEndian.Uint64(b[8:16]),
		Vaddr:  binary.LittleEndian.Uint64(b[16:24]),
		Paddr:  binary.LittleEndian.Uint64(b[24:32]),
		Filesz: binary.LittleEndian.Uint64(b[32:40]),
		Memsz:  binary.LittleEndian.Uint64(b[40:48]),
		Align:  binary.LittleEndian.Uint64(b[48:56]),
	}, nil
}

// Parse validates the ELF header and extracts Info, per spec.md §4.3.
func Parse(blob []byte) (Info, error) {
	if len(blob) < 64 {
		return Info{}, fmt.Errorf("guestelf: ELF too small")
	}
	if blob[0] != 0x7f || blob[1] != 'E' || blob[2] != 'L' || blob[3] != 'F' {
		return Info{}, fmt.Errorf("guestelf: not an ELF file")
	}
	if blob[4] != 2 {
		return Info{}, fmt.Errorf("guestelf: not a 64-bit ELF")
	}
	eType := binary.LittleEndian.Uint16(blob[16:18])
	eMachine := binary.LittleEndian.Uint16(blob[18:20])
	if eMachine != EM_RISCV {
		return Info{}, fmt.Errorf("guestelf: not a RISC-V ELF (machine=0x%x)", eMachine)
	}
	if eType != ET_EXEC && eType != ET_DYN {
		return Info{}, fmt.Errorf("guestelf: ELF is not executable or shared object (type=%d)", eType)
	}

	entry := binary.LittleEndian.Uint64(blob[24:32])
	phoff := binary.LittleEndian.Uint64(blob[32:40])
	phentsize := binary.LittleEndian.Uint16(blob[54:56])
	phnum := binary.LittleEndian.Uint16(blob[56:58])

	info := Info{EntryPoint: entry, PhdrEntSize: phentsize, PhdrCount: phnum, Type: eType}

	var phdrVaddr uint64
	off := phoff
	for i := uint16(0); i < phnum; i++ {
		ph, err := readPhdr(blob, off)
		if err != nil {
			return Info{}, err
		}
		switch ph.Type {
		case PT_PHDR:
			phdrVaddr = ph.Vaddr
		case PT_INTERP:
			info.IsDynamic = true
			if ph.Offset+ph.Filesz <= uint64(len(blob)) {
				s := blob[ph.Offset : ph.Offset+ph.Filesz]
				n := len(s)
				for n > 0 && s[n-1] == 0 {
					n--
				}
				info.Interpreter = string(s[:n])
			}
		}
		off += uint64(phentsize)
	}

	if phdrVaddr == 0 {
		off = phoff
		for i := uint16(0); i < phnum; i++ {
			ph, err := readPhdr(blob, off)
			if err != nil {
				return Info{}, err
			}
			if ph.Type == PT_LOAD && ph.Offset == 0 {
				phdrVaddr = ph.Vaddr + phoff
				break
			}
			off += uint64(phentsize)
		}
	}
	info.PhdrAddr = phdrVaddr

	return info, nil
}

type loadSeg struct {
	vaddr, filesz, memsz, offset uint64
	flags                        uint32
}

func loadSegments(blob []byte, phoff uint64, phentsize uint16, phnum uint16, baseAdjust uint64) ([]loadSeg, error) {
	var segs []loadSeg
	off := phoff
	for i := uint16(0); i < phnum; i++ {
		ph, err := readPhdr(blob, off)
		if err != nil {
			return nil, err
		}
		if ph.Type == PT_LOAD {
			segs = append(segs, loadSeg{
				vaddr:  ph.Vaddr + baseAdjust,
				filesz: ph.Filesz,
				memsz:  ph.Memsz,
				offset: ph.Offset,
				flags:  ph.Flags,
			})
		}
		off += uint64(phentsize)
	}
	return segs, nil
}

// GetLoadRange returns the lowest and highest virtual addresses spanned by
// any PT_LOAD segment.
func GetLoadRange(blob []byte) (lo, hi uint64, err error) {
	info, err := Parse(blob)
	if err != nil {
		return 0, 0, err
	}
	phoff := binary.LittleEndian.Uint64(blob[32:40])
	segs, err := loadSegments(blob, phoff, info.PhdrEntSize, info.PhdrCount, 0)
	if err != nil {
		return 0, 0, err
	}
	lo = ^uint64(0)
	for _, s := range segs {
		if s.vaddr < lo {
			lo = s.vaddr
		}
		if s.vaddr+s.memsz > hi {
			hi = s.vaddr + s.memsz
		}
	}
	return lo, hi, nil
}

// GetWritableRange returns the lowest and highest virtual addresses spanned
// by PT_LOAD segments carrying PF_W, used by cooperative fork (spec.md §4.6)
// to snapshot only the live data/BSS+heap range.
func GetWritableRange(blob []byte) (lo, hi uint64, err error) {
	info, err := Parse(blob)
	if err != nil {
		return 0, 0, err
	}
	phoff := binary.LittleEndian.Uint64(blob[32:40])
	segs, err := loadSegments(blob, phoff, info.PhdrEntSize, info.PhdrCount, 0)
	if err != nil {
		return 0, 0, err
	}
	lo = ^uint64(0)
	for _, s := range segs {
		if s.flags&PF_W == 0 {
			continue
		}
		if s.vaddr < lo {
			lo = s.vaddr
		}
		if s.vaddr+s.memsz > hi {
			hi = s.vaddr + s.memsz
		}
	}
	if lo == ^uint64(0) {
		lo = 0
	}
	return lo, hi, nil
}

// copyWithRetry mirrors elf_loader.hpp's copy_with_retry: on a page fault it
// promotes the faulting page to RWX and retries from the fault point,
// bounded to avoid an infinite loop on a genuinely broken target.
func copyWithRetry(m rvmachine.Machine, dst uint64, src []byte) error {
	offset := uint64(0)
	length := uint64(len(src))
	for attempt := 0; offset < length; attempt++ {
		if attempt > 64 {
			return fmt.Errorf("guestelf: exceeded fault-retry budget copying to 0x%x", dst)
		}
		err := m.WriteAt(dst+offset, src[offset:])
		if err == nil {
			return nil
		}
		fe, ok := err.(*rvmachine.FaultError)
		if !ok {
			return err
		}
		page := rvmachine.Page(fe.Addr)
		m.SetPageAttr(page, rvmachine.PageSize, rvmachine.RWX)
		if page > dst+offset {
			offset = page - dst
		}
	}
	return nil
}

func memsetWithRetry(m rvmachine.Machine, dst uint64, val byte, length uint64) error {
	offset := uint64(0)
	for attempt := 0; offset < length; attempt++ {
		if attempt > 64 {
			return fmt.Errorf("guestelf: exceeded fault-retry budget memset at 0x%x", dst)
		}
		err := m.Memset(dst+offset, val, length-offset)
		if err == nil {
			return nil
		}
		fe, ok := err.(*rvmachine.FaultError)
		if !ok {
			return err
		}
		page := rvmachine.Page(fe.Addr)
		m.SetPageAttr(page, rvmachine.PageSize, rvmachine.RWX)
		if page > dst+offset {
			offset = page - dst
		}
	}
	return nil
}

// Load implements the two-pass segment loader of spec.md §4.3: pass 1
// copies segment data with fault-retry promotion, pass 2 merges R/W/X
// permissions per 4KiB page across all overlapping segments so a
// code/data page shared between two segments never loses a permission bit
// either segment asserts.
//
// Returns the base_adjust applied (0 for ET_EXEC, or requestedBase-lowest
// for a PIE loaded at requestedBase).
func Load(m rvmachine.Machine, blob []byte, requestedBase uint64) (uint64, error) {
	info, err := Parse(blob)
	if err != nil {
		return 0, err
	}

	var baseAdjust uint64
	if info.Type == ET_DYN && requestedBase != 0 {
		lo, _, err := GetLoadRange(blob)
		if err != nil {
			return 0, err
		}
		baseAdjust = requestedBase - lo
	}

	phoff := binary.LittleEndian.Uint64(blob[32:40])
	segs, err := loadSegments(blob, phoff, info.PhdrEntSize, info.PhdrCount, baseAdjust)
	if err != nil {
		return 0, err
	}

	// Pass 1: copy data, zero BSS.
	for _, seg := range segs {
		if seg.filesz > 0 {
			if err := copyWithRetry(m, seg.vaddr, blob[seg.offset:seg.offset+seg.filesz]); err != nil {
				return 0, err
			}
		}
		if seg.memsz > seg.filesz {
			if err := memsetWithRetry(m, seg.vaddr+seg.filesz, 0, seg.memsz-seg.filesz); err != nil {
				return 0, err
			}
		}
	}

	// Pass 2: merge permissions per page across all overlapping segments.
	var rangeLo, rangeHi uint64 = ^uint64(0), 0
	for _, seg := range segs {
		lo := rvmachine.Page(seg.vaddr)
		hi := rvmachine.PageRoundUp(seg.vaddr + seg.memsz)
		if lo < rangeLo {
			rangeLo = lo
		}
		if hi > rangeHi {
			rangeHi = hi
		}
	}
	for page := rangeLo; page < rangeHi; page += rvmachine.PageSize {
		var attr rvmachine.PageAttr
		touched := false
		for _, seg := range segs {
			segEnd := seg.vaddr + seg.memsz
			if page < segEnd && page+rvmachine.PageSize > seg.vaddr {
				touched = true
				attr = attr.Or(rvmachine.PageAttr{
					Read:  seg.flags&PF_R != 0,
					Write: seg.flags&PF_W != 0,
					Exec:  seg.flags&PF_X != 0,
				})
			}
		}
		if touched {
			m.SetPageAttr(page, rvmachine.PageSize, attr)
		}
	}

	return baseAdjust, nil
}
