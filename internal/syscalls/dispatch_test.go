package syscalls

import (
	"testing"

	"github.com/friscy-go/friscy/internal/execctx"
	"github.com/friscy-go/friscy/internal/rvmachine"
	"github.com/friscy-go/friscy/internal/vfs"
)

func newTestRuntime() (*Runtime, rvmachine.Machine) {
	m := rvmachine.NewSim(1 << 20)
	m.SetPageAttr(0, 1<<20, rvmachine.RWX)
	fs := vfs.New()
	ec := execctx.New(nil)
	rt := NewRuntime(fs, ec, nil)
	return rt, m
}

func setArgs(m rvmachine.Machine, num uint64, a [6]uint64) {
	r := m.Regs()
	r.X[17] = num
	r.X[10], r.X[11], r.X[12], r.X[13], r.X[14], r.X[15] = a[0], a[1], a[2], a[3], a[4], a[5]
}

func TestDispatchGetpidAndGettid(t *testing.T) {
	rt, m := newTestRuntime()
	setArgs(m, SYS_GETPID, [6]uint64{})
	Dispatch(rt, m)
	if m.Regs().X[10] != 1 {
		t.Fatalf("getpid = %d, want 1", m.Regs().X[10])
	}

	setArgs(m, SYS_GETTID, [6]uint64{})
	Dispatch(rt, m)
	if m.Regs().X[10] != 1 {
		t.Fatalf("gettid = %d, want 1", m.Regs().X[10])
	}
}

func TestDispatchOpenWriteReadRoundTrip(t *testing.T) {
	rt, m := newTestRuntime()

	pathAddr := uint64(0x1000)
	m.WriteAt(pathAddr, append([]byte("/hello.txt"), 0))

	const OCreat = 0o100
	atFDCWDVal := int64(atFDCWD)
	setArgs(m, SYS_OPENAT, [6]uint64{uint64(atFDCWDVal), pathAddr, OCreat | 0o2, 0o644, 0, 0})
	// OCreat|O_RDWR: use our translateOpenFlags bits directly via raw linux flags
	Dispatch(rt, m)
	fd := int64(m.Regs().X[10])
	if fd < 3 {
		t.Fatalf("openat returned %d, want fd >= 3", fd)
	}

	bufAddr := uint64(0x2000)
	m.WriteAt(bufAddr, []byte("hi there"))
	setArgs(m, SYS_WRITE, [6]uint64{uint64(fd), bufAddr, 8, 0, 0, 0})
	Dispatch(rt, m)
	if n := int64(m.Regs().X[10]); n != 8 {
		t.Fatalf("write returned %d, want 8", n)
	}

	setArgs(m, SYS_LSEEK, [6]uint64{uint64(fd), 0, 0, 0, 0, 0})
	Dispatch(rt, m)

	readBuf := uint64(0x3000)
	setArgs(m, SYS_READ, [6]uint64{uint64(fd), readBuf, 8, 0, 0, 0})
	Dispatch(rt, m)
	if n := int64(m.Regs().X[10]); n != 8 {
		t.Fatalf("read returned %d, want 8", n)
	}
	got := make([]byte, 8)
	m.ReadAt(readBuf, got)
	if string(got) != "hi there" {
		t.Fatalf("read back %q, want %q", got, "hi there")
	}
}

func TestDispatchBrkClampsToReserve(t *testing.T) {
	rt, m := newTestRuntime()
	rt.Exec.BrkOverridden = true
	rt.Exec.BrkBase = 0x10000
	rt.Exec.BrkCurrent = 0x10000

	setArgs(m, SYS_BRK, [6]uint64{0x10000 + execctx.BrkReserve + 0x1000, 0, 0, 0, 0, 0})
	Dispatch(rt, m)
	if got, want := m.Regs().X[10], uint64(0x10000+execctx.BrkReserve); got != want {
		t.Fatalf("brk clamp = %#x, want %#x", got, want)
	}
}

func TestDispatchUnknownSyscallReturnsENOSYS(t *testing.T) {
	rt, m := newTestRuntime()
	setArgs(m, 0xdead, [6]uint64{})
	Dispatch(rt, m)
	if got := int64(m.Regs().X[10]); got != -ENOSYS {
		t.Fatalf("unknown syscall result = %d, want -ENOSYS", got)
	}
}

func TestDispatchReadStdinBlocksThenResumes(t *testing.T) {
	rt, m := newTestRuntime()
	m.Regs().PC = 0x8000

	readBuf := uint64(0x4000)
	setArgs(m, SYS_READ, [6]uint64{0, readBuf, 16, 0, 0, 0})
	waiting := Dispatch(rt, m)
	if !waiting {
		t.Fatal("expected Dispatch to report waitingForStdin with no stdin queued")
	}
	if m.Regs().PC != 0x8000-4 {
		t.Fatalf("PC = %#x, want rewound by 4", m.Regs().PC)
	}

	rt.Bridge.PushStdin([]byte("ok\n"))
	m.Regs().PC += 4
	waiting = Dispatch(rt, m)
	if waiting {
		t.Fatal("did not expect a second wait after stdin was pushed")
	}
	if n := int64(m.Regs().X[10]); n != 3 {
		t.Fatalf("read after stdin push = %d, want 3", n)
	}
}
