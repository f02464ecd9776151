package forkstate

import (
	"testing"

	"github.com/friscy-go/friscy/internal/execctx"
	"github.com/friscy-go/friscy/internal/rvmachine"
	"github.com/friscy-go/friscy/internal/vfs"
)

func TestSaveThenRestoreRoundTripsMemoryAndRegs(t *testing.T) {
	m := rvmachine.NewSim(1 << 20)
	ec := &execctx.Context{
		ExecRW:       execctx.Range{Start: 0x1000, End: 0x2000},
		HeapStart:    0x2000,
		StackTop:     0x10000,
		MmapFrontier: 0x2000,
	}
	m.SetPageAttr(0x1000, 0x1000, rvmachine.RWX)
	m.SetPageAttr(0x8000, 0x8000, rvmachine.RWX)
	m.WriteAt(0x1000, []byte{1, 2, 3, 4})

	m.Regs().X[2] = 0x9000 // sp
	m.Regs().X[10] = 42
	m.Regs().PC = 0x1234

	fds := vfs.New().FDs()

	s := New()
	childPID, err := Save(s, m, ec, fds)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if childPID < 2 {
		t.Fatalf("childPID = %d", childPID)
	}
	if !s.Active() {
		t.Fatal("expected Active() after Save")
	}

	// Mutate memory and registers to simulate the "child" running.
	m.WriteAt(0x1000, []byte{9, 9, 9, 9})
	m.Regs().X[10] = 0
	m.Regs().PC = 0x5678

	if err := Restore(s, m, fds, 7); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if s.Active() {
		t.Fatal("expected !Active() after Restore")
	}

	got := make([]byte, 4)
	m.ReadAt(0x1000, got)
	if got[0] != 1 || got[3] != 4 {
		t.Fatalf("parent memory not restored: %v", got)
	}
	if m.Regs().X[10] != uint64(childPID) {
		t.Fatalf("a0 after restore = %d, want child pid %d", m.Regs().X[10], childPID)
	}
	if m.Regs().PC != 0x1234 {
		t.Fatalf("PC not restored: 0x%x", m.Regs().PC)
	}

	pid, status, ok := Wait4(s)
	if !ok || pid != childPID {
		t.Fatalf("Wait4 = pid=%d ok=%v", pid, ok)
	}
	if status != 7<<8 {
		t.Fatalf("wait status = 0x%x, want 0x%x", status, 7<<8)
	}

	if _, _, ok := Wait4(s); ok {
		t.Fatal("second Wait4 should report no child (ECHILD)")
	}
}

func TestSaveRejectsNestedFork(t *testing.T) {
	m := rvmachine.NewSim(1 << 16)
	m.SetPageAttr(0, 1<<16, rvmachine.RWX)
	ec := &execctx.Context{StackTop: 0x1000, MmapFrontier: 0}
	fds := vfs.New().FDs()

	s := New()
	if _, err := Save(s, m, ec, fds); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	if _, err := Save(s, m, ec, fds); err != ErrNestedFork {
		t.Fatalf("expected ErrNestedFork, got %v", err)
	}
}
