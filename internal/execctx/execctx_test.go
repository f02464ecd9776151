package execctx

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/friscy-go/friscy/internal/rvmachine"
)

type fakeVFS struct{ files map[string][]byte }

func (f *fakeVFS) ReadFile(path string) ([]byte, error) {
	b, ok := f.files[path]
	if !ok {
		return nil, errors.New("enoent")
	}
	return b, nil
}
func (f *fakeVFS) ResolveSymlink(path string) (string, error) { return path, nil }

func buildStaticELF(entry uint64, textVaddr uint64, text []byte) []byte {
	const phoff = 64
	buf := make([]byte, phoff+56+len(text))
	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2
	binary.LittleEndian.PutUint16(buf[16:18], 2)      // ET_EXEC
	binary.LittleEndian.PutUint16(buf[18:20], 0xF3)   // EM_RISCV
	binary.LittleEndian.PutUint64(buf[24:32], entry)
	binary.LittleEndian.PutUint64(buf[32:40], phoff)
	binary.LittleEndian.PutUint16(buf[54:56], 56)
	binary.LittleEndian.PutUint16(buf[56:58], 1)

	ph := buf[phoff : phoff+56]
	binary.LittleEndian.PutUint32(ph[0:4], 1)   // PT_LOAD
	binary.LittleEndian.PutUint32(ph[4:8], 7)   // RWX so BSS/text alike load without fault loops in this fixture
	binary.LittleEndian.PutUint64(ph[8:16], phoff+56)
	binary.LittleEndian.PutUint64(ph[16:24], textVaddr)
	binary.LittleEndian.PutUint64(ph[24:32], textVaddr)
	binary.LittleEndian.PutUint64(ph[32:40], uint64(len(text)))
	binary.LittleEndian.PutUint64(ph[40:48], uint64(len(text)))
	binary.LittleEndian.PutUint64(ph[48:56], 0x1000)

	copy(buf[phoff+56:], text)
	return buf
}

func TestLoadInitialStaticBinary(t *testing.T) {
	blob := buildStaticELF(0x10000, 0x10000, []byte{1, 2, 3, 4})
	vfs := &fakeVFS{files: map[string][]byte{"/bin/hello": blob}}
	c := New([]string{"PATH=/bin"})
	m := rvmachine.NewSim(1 << 31) // must cover stackTop0 (0x7ffff000)

	sp, pc, err := LoadInitial(c, m, vfs, "/bin/hello", []string{"hello"})
	if err != nil {
		t.Fatalf("LoadInitial: %v", err)
	}
	if pc != 0x10000 {
		t.Fatalf("pc = 0x%x, want entry", pc)
	}
	if sp == 0 || sp%16 != 0 {
		t.Fatalf("sp = 0x%x not aligned/nonzero", sp)
	}
	if c.BrkBase != c.BrkCurrent {
		t.Fatalf("brk_base != brk_current after fresh load")
	}
	if !c.ExecRW.Contains(0x10000) {
		t.Fatalf("ExecRW does not contain loaded text: %+v", c.ExecRW)
	}
}

func TestParseShebangSplitsInterpAndArg(t *testing.T) {
	interp, arg, ok := ParseShebang([]byte("#!/bin/sh -e\necho hi\n"))
	if !ok {
		t.Fatal("expected shebang detected")
	}
	if interp != "/bin/sh" || arg != "-e" {
		t.Fatalf("interp=%q arg=%q", interp, arg)
	}
}

func TestParseShebangNoneWhenAbsent(t *testing.T) {
	_, _, ok := ParseShebang([]byte{0x7f, 'E', 'L', 'F'})
	if ok {
		t.Fatal("should not detect shebang in ELF binary")
	}
}

func TestResolveEnvPathSearchesPATH(t *testing.T) {
	exists := func(p string) bool { return p == "/usr/bin/env" }
	got := ResolveEnvPath([]string{"PATH=/bin:/usr/bin"}, "env", exists)
	if got != "/usr/bin/env" {
		t.Fatalf("got %q", got)
	}
}

func TestParseArgvBoundedAndNullTerminated(t *testing.T) {
	m := rvmachine.NewSim(1 << 16)
	m.SetPageAttr(0, 1<<16, rvmachine.RWX)

	argvPtr := uint64(0x100)
	str1 := uint64(0x200)
	str2 := uint64(0x300)
	m.WriteAt(str1, append([]byte("hello"), 0))
	m.WriteAt(str2, append([]byte("world"), 0))

	ptrBuf := make([]byte, 24)
	binary.LittleEndian.PutUint64(ptrBuf[0:8], str1)
	binary.LittleEndian.PutUint64(ptrBuf[8:16], str2)
	binary.LittleEndian.PutUint64(ptrBuf[16:24], 0)
	m.WriteAt(argvPtr, ptrBuf)

	got, err := ParseArgv(m, argvPtr)
	if err != nil {
		t.Fatalf("ParseArgv: %v", err)
	}
	if len(got) != 2 || got[0] != "hello" || got[1] != "world" {
		t.Fatalf("got %v", got)
	}
}
