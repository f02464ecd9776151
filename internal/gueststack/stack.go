// Package gueststack builds the initial guest stack image (spec component
// C4): argv/envp/auxv layout, exactly as musl's _start_c expects to find it
// at the SP the kernel (here, this emulation layer) hands to _start.
//
// Grounded on original_source's elf_loader.hpp setup_dynamic_stack(): same
// growing-downward layout order (platform string, random bytes, execfn
// string, envp strings, argv strings, alignment pad, then the
// argc/argv/envp/auxv block itself), same auxv pair ordering.
package gueststack

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/friscy-go/friscy/internal/guestelf"
	"github.com/friscy-go/friscy/internal/rvmachine"
)

// Auxv types, per original_source's AT_* table (subset this loader emits).
const (
	AT_NULL     = 0
	AT_PHDR     = 3
	AT_PHENT    = 4
	AT_PHNUM    = 5
	AT_PAGESZ   = 6
	AT_BASE     = 7
	AT_ENTRY    = 9
	AT_UID      = 11
	AT_EUID     = 12
	AT_GID      = 13
	AT_EGID     = 14
	AT_PLATFORM = 15
	AT_HWCAP    = 16
	AT_CLKTCK   = 17
	AT_SECURE   = 23
	AT_RANDOM   = 25
	AT_EXECFN   = 31
)

// RISCVHWCAPIMAFDC is the hwcap bit-set for the I/M/A/F/D/C extension
// letters, matching original_source's RISCV_HWCAP_IMAFDC constant.
const RISCVHWCAPIMAFDC = 0x112D

const platformString = "riscv64"

// Params collects everything the stack layout needs beyond argv/envp.
type Params struct {
	Argv []string
	Envp []string
	Info guestelf.Info // the executable's (not interpreter's) ELF info
	// InterpBase is the dynamic linker's base_adjust when IsDynamic, used
	// as AT_BASE; ignored for static executables (AT_BASE=0).
	InterpBase uint64
	// EntryPoint is the actual first instruction to run: the interpreter's
	// entry point for a dynamic executable, or Info.EntryPoint for a
	// static one.
	EntryPoint uint64
	ExecFn     string // absolute path the kernel would report via /proc/self/exe
}

func align16(n uint64) uint64 { return n &^ 15 }

// Build writes the full argv/envp/auxv stack image below stackTop and
// returns the final stack pointer musl's _start expects in sp.
func Build(m rvmachine.Machine, stackTop uint64, p Params) (uint64, error) {
	sp := stackTop

	writeString := func(s string) (uint64, error) {
		b := append([]byte(s), 0)
		sp -= uint64(len(b))
		if err := m.WriteAt(sp, b); err != nil {
			return 0, err
		}
		return sp, nil
	}

	platformAddr, err := writeString(platformString)
	if err != nil {
		return 0, err
	}

	randBytes := make([]byte, 16)
	if _, err := rand.Read(randBytes); err != nil {
		return 0, err
	}
	sp -= 16
	if err := m.WriteAt(sp, randBytes); err != nil {
		return 0, err
	}
	randomAddr := sp

	execfn := p.ExecFn
	if execfn == "" && len(p.Argv) > 0 {
		execfn = p.Argv[0]
	}
	execfnAddr, err := writeString(execfn)
	if err != nil {
		return 0, err
	}

	envAddrs := make([]uint64, len(p.Envp))
	for i := len(p.Envp) - 1; i >= 0; i-- {
		a, err := writeString(p.Envp[i])
		if err != nil {
			return 0, err
		}
		envAddrs[i] = a
	}

	argAddrs := make([]uint64, len(p.Argv))
	for i := len(p.Argv) - 1; i >= 0; i-- {
		a, err := writeString(p.Argv[i])
		if err != nil {
			return 0, err
		}
		argAddrs[i] = a
	}

	atBase := p.InterpBase
	if !p.Info.IsDynamic {
		atBase = 0
	}

	type auxPair struct{ typ, val uint64 }
	auxv := []auxPair{
		{AT_PHDR, p.Info.PhdrAddr},
		{AT_PHENT, uint64(p.Info.PhdrEntSize)},
		{AT_PHNUM, uint64(p.Info.PhdrCount)},
		{AT_ENTRY, p.Info.EntryPoint},
		{AT_BASE, atBase},
		{AT_PAGESZ, rvmachine.PageSize},
		{AT_UID, 0},
		{AT_EUID, 0},
		{AT_GID, 0},
		{AT_EGID, 0},
		{AT_HWCAP, RISCVHWCAPIMAFDC},
		{AT_CLKTCK, 100},
		{AT_SECURE, 0},
		{AT_RANDOM, randomAddr},
		{AT_EXECFN, execfnAddr},
		{AT_PLATFORM, platformAddr},
		{AT_NULL, 0},
	}

	// Block size: argc(1) + argv pointers + NULL + envp pointers + NULL +
	// auxv pairs(2 words each), all 8-byte words.
	blockWords := 1 + len(argAddrs) + 1 + len(envAddrs) + 1 + len(auxv)*2
	sp -= uint64(blockWords) * 8
	sp = align16(sp)

	block := make([]byte, 0, blockWords*8)
	putWord := func(v uint64) {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		block = append(block, b[:]...)
	}

	putWord(uint64(len(argAddrs)))
	for _, a := range argAddrs {
		putWord(a)
	}
	putWord(0)
	for _, a := range envAddrs {
		putWord(a)
	}
	putWord(0)
	for _, pair := range auxv {
		putWord(pair.typ)
		putWord(pair.val)
	}

	if err := m.WriteAt(sp, block); err != nil {
		return 0, err
	}

	return sp, nil
}
