// Package forkstate implements cooperative "fork" (spec component C6):
// clone without CLONE_THREAD/CLONE_VM runs as an in-place register and
// memory snapshot/restore cycle on the single host thread, rather than a
// real second process.
//
// Grounded on spec.md §4.6's save/child/restore protocol; the four
// snapshot regions mirror the writable ranges execctx.Context already
// tracks.
package forkstate

import (
	"errors"

	"github.com/friscy-go/friscy/internal/execctx"
	"github.com/friscy-go/friscy/internal/rvmachine"
	"github.com/friscy-go/friscy/internal/vfs"
)

// ErrNestedFork is returned when clone(fork-form) is called while a fork
// is already active, per spec.md §4.6 step 1.
var ErrNestedFork = errors.New("forkstate: nested fork")

type region struct {
	start uint64
	data  []byte
}

// State holds one in-flight cooperative fork.
type State struct {
	active bool

	savedRegs rvmachine.Registers
	childPID  int32

	r1, r2, r3, r4 region

	parentFDs map[int]bool

	exitStatus int
	exited     bool
	reaped     bool
}

var nextPID int32 = 2

// New returns an empty fork state (no fork in progress).
func New() *State { return &State{} }

// Active reports whether a cooperative fork is currently in progress
// (between clone and the child's exit/exit_group).
func (s *State) Active() bool { return s.active }

// Save performs the save phase of spec.md §4.6: snapshot registers, PID,
// the four writable memory regions, and the VFS fd set. Only after every
// copy succeeds does Save mark the fork active (in_child=true); returning 0
// to the guest is the caller's job.
//
// Any *rvmachine.FaultError returned here must be handled by the execution
// loop's ordinary fault-retry logic (promote the page, retry the whole
// clone handler); Save is safe to call again from scratch because it has
// not mutated State on a partial failure.
func Save(s *State, m rvmachine.Machine, ec *execctx.Context, fds *vfs.FDTable) (childPID int32, err error) {
	if s.active {
		return 0, ErrNestedFork
	}

	regs := *m.Regs()

	r1Start := ec.ExecRW.Start
	r1End := maxU64(ec.ExecRW.End, ec.HeapStart)
	m.SetPageAttr(r1Start, r1End-r1Start, rvmachine.PageAttr{Read: true, Write: true})
	r1Buf := make([]byte, r1End-r1Start)
	if err := m.ReadAt(r1Start, r1Buf); err != nil {
		return 0, err
	}

	var r2Buf []byte
	var r2Start uint64
	if ec.HasInterp {
		r2Start = ec.InterpRW.Start
		r2Len := ec.InterpRW.End - ec.InterpRW.Start
		r2Buf = make([]byte, r2Len)
		if err := m.ReadAt(r2Start, r2Buf); err != nil {
			return 0, err
		}
	}

	r3Start := regs.X[2] // sp (x2)
	r3Len := ec.StackTop - r3Start
	r3Buf := make([]byte, r3Len)
	if err := m.ReadAt(r3Start, r3Buf); err != nil {
		return 0, err
	}

	r4Start := ec.HeapStart + ec.HeapSize
	var r4Buf []byte
	if ec.MmapFrontier > r4Start {
		r4Buf = make([]byte, ec.MmapFrontier-r4Start)
		if err := m.ReadAt(r4Start, r4Buf); err != nil {
			return 0, err
		}
	}

	pid := nextPID
	nextPID++

	s.savedRegs = regs
	s.childPID = pid
	s.r1 = region{r1Start, r1Buf}
	s.r2 = region{r2Start, r2Buf}
	s.r3 = region{r3Start, r3Buf}
	s.r4 = region{r4Start, r4Buf}
	s.parentFDs = fds.Snapshot()
	s.active = true
	s.exited = false
	s.reaped = false

	return pid, nil
}

// Restore performs the restore phase of spec.md §4.6 when the "child"
// reaches exit/exit_group: promote every region to RWX before writing
// (RELRO may have made pages read-only), memcpy regions back, close fds
// the child opened that weren't in the parent's snapshot, and restore
// registers so the guest resumes just past the clone ecall with the
// child's PID as clone's return value.
func Restore(s *State, m rvmachine.Machine, fds *vfs.FDTable, exitCode int) error {
	if !s.active {
		return errors.New("forkstate: restore with no active fork")
	}

	for _, r := range []region{s.r1, s.r2, s.r3, s.r4} {
		if len(r.data) == 0 {
			continue
		}
		m.SetPageAttr(r.start, uint64(len(r.data)), rvmachine.RWX)
	}
	for _, r := range []region{s.r1, s.r2, s.r3, s.r4} {
		if len(r.data) == 0 {
			continue
		}
		if err := m.WriteAt(r.start, r.data); err != nil {
			return err
		}
	}

	fds.CloseNotIn(s.parentFDs)

	restored := s.savedRegs
	*m.Regs() = restored
	m.Regs().X[10] = uint64(s.childPID) // a0/x10: clone() returns child pid to parent

	s.exitStatus = exitCode & 0xff
	s.exited = true
	s.active = false

	return nil
}

// Wait4 implements spec.md §4.6's wait semantics: the stored PID and
// encoded status on the first call, -ECHILD (by convention here, a bool
// false) on subsequent calls. wait4 never blocks in this model.
func Wait4(s *State) (pid int32, waitStatus int, ok bool) {
	if !s.exited || s.reaped {
		return 0, 0, false
	}
	s.reaped = true
	return s.childPID, (s.exitStatus & 0xff) << 8, true
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
