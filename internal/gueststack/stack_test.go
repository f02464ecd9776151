package gueststack

import (
	"encoding/binary"
	"testing"

	"github.com/friscy-go/friscy/internal/guestelf"
	"github.com/friscy-go/friscy/internal/rvmachine"
)

func newStackMachine(t *testing.T) (*rvmachine.Sim, uint64) {
	t.Helper()
	m := rvmachine.NewSim(1 << 20)
	top := uint64(1 << 19)
	m.SetPageAttr(rvmachine.Page(top-rvmachine.PageSize*4), rvmachine.PageSize*4, rvmachine.RWX)
	return m, top
}

func TestBuildStackIsSixteenByteAligned(t *testing.T) {
	m, top := newStackMachine(t)
	sp, err := Build(m, top, Params{
		Argv: []string{"/bin/busybox", "sh"},
		Envp: []string{"HOME=/root", "PATH=/bin"},
		Info: guestelf.Info{EntryPoint: 0x1000, PhdrAddr: 0x40, PhdrEntSize: 56, PhdrCount: 3},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if sp%16 != 0 {
		t.Fatalf("sp = 0x%x not 16-byte aligned", sp)
	}
}

func TestBuildStackArgcAndAuxvNullTerminated(t *testing.T) {
	m, top := newStackMachine(t)
	argv := []string{"/bin/busybox", "sh", "-c", "echo hi"}
	sp, err := Build(m, top, Params{
		Argv: argv,
		Envp: []string{"PATH=/bin"},
		Info: guestelf.Info{EntryPoint: 0x2000, PhdrAddr: 0x40, PhdrEntSize: 56, PhdrCount: 3},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	word := func(off uint64) uint64 {
		b := make([]byte, 8)
		if err := m.ReadAt(sp+off, b); err != nil {
			t.Fatalf("ReadAt: %v", err)
		}
		return binary.LittleEndian.Uint64(b)
	}

	if argc := word(0); argc != uint64(len(argv)) {
		t.Fatalf("argc = %d, want %d", argc, len(argv))
	}

	// argv[] is argc entries starting at offset 8, NULL terminated.
	argvTerm := word(8 + uint64(len(argv))*8)
	if argvTerm != 0 {
		t.Fatalf("argv not NULL terminated: %d", argvTerm)
	}

	// Walk forward to find the AT_NULL auxv pair terminating the whole block.
	off := 8 + uint64(len(argv)+1)*8 // past argc+argv+NULL
	for {
		envWord := word(off)
		off += 8
		if envWord == 0 {
			break
		}
	}
	foundNull := false
	for i := 0; i < 32; i++ {
		typ := word(off)
		off += 16
		if typ == AT_NULL {
			foundNull = true
			break
		}
	}
	if !foundNull {
		t.Fatal("did not find AT_NULL terminating auxv")
	}
}

func TestBuildStackSetsHwcapAndPagesize(t *testing.T) {
	m, top := newStackMachine(t)
	sp, err := Build(m, top, Params{
		Argv: []string{"/bin/busybox"},
		Info: guestelf.Info{EntryPoint: 0x3000, PhdrAddr: 0x40, PhdrEntSize: 56, PhdrCount: 2},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// Scan the whole written region for the AT_HWCAP/AT_PAGESZ pairs.
	buf := make([]byte, int(1<<19-sp))
	if err := m.ReadAt(sp, buf); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	var sawHwcap, sawPagesz bool
	for i := 0; i+16 <= len(buf); i += 8 {
		typ := binary.LittleEndian.Uint64(buf[i : i+8])
		val := binary.LittleEndian.Uint64(buf[i+8 : i+16])
		if typ == AT_HWCAP && val == RISCVHWCAPIMAFDC {
			sawHwcap = true
		}
		if typ == AT_PAGESZ && val == rvmachine.PageSize {
			sawPagesz = true
		}
	}
	if !sawHwcap {
		t.Fatal("AT_HWCAP not found with expected value")
	}
	if !sawPagesz {
		t.Fatal("AT_PAGESZ not found with expected value")
	}
}
