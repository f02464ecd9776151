// Package execloop implements the execution loop (spec component C9): the
// run/repair/wait cycle driving the guest machine on the single execution
// thread.
//
// Grounded on spec.md §4.9 and the concurrency model of §5: this is the
// only place that calls Machine.Run, and the only place that blocks on
// the host-I/O bridge's condition variable.
package execloop

import (
	"fmt"
	"log/slog"

	"github.com/friscy-go/friscy/internal/iohost"
	"github.com/friscy-go/friscy/internal/rvmachine"
)

// InstructionBudget is the generous per-call instruction budget handed to
// the machine's step function, per spec.md §4.9 step 1.
const InstructionBudget = 16_000_000_000

// MaxFaultRepairs bounds the page-fault retry loop per spec.md §4.9 step 2
// and §7; exhausting it is treated as an unrecoverable exception.
const MaxFaultRepairs = 8

// OnECall is invoked for every ecall the machine raises; it should read
// a7/a0-a5, perform the syscall, and set a0. It returns true if the
// execution loop should treat this as a stdin-wait rewind-and-stop
// (waiting_for_stdin was set by the handler).
type OnECall func(m rvmachine.Machine) (waitingForStdin bool)

// OnExit is invoked once the machine halts voluntarily (exit/exit_group
// stopped it), receiving the guest's reported exit code.
type OnExit func(code int)

// OnError is invoked on an unrecoverable exception, receiving a
// human-readable message for the host output callback.
type OnError func(msg string)

// Loop drives one machine to completion or fatal error. It is intended to
// run on its own goroutine (the "execution thread" of spec.md §5); Stop
// unblocks it from any wait point.
type Loop struct {
	Machine rvmachine.Machine
	Bridge  *iohost.Bridge
	ECall   OnECall
	Exit    OnExit
	Error   OnError
	Logger  *slog.Logger
}

// Run executes the loop body until the machine halts, an unrecoverable
// error occurs, or Stop causes the bridge to report !running while
// waiting for stdin.
func (l *Loop) Run() {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	l.Bridge.SetRunning(true)

	for l.Bridge.Running() {
		var lastECallWaited bool
		reason, err := l.runWithFaultRepair(func(m rvmachine.Machine) {
			lastECallWaited = l.ECall(m)
		})
		if err != nil {
			logger.Error("execloop: unrecoverable exception", "error", err)
			l.Bridge.SetRunning(false)
			if l.Error != nil {
				l.Error(fmt.Sprintf("fatal: %v", err))
			}
			return
		}

		switch reason {
		case rvmachine.StopECALL:
			if lastECallWaited {
				l.Bridge.WaitForInput()
			}
		case rvmachine.StopHalted:
			l.Bridge.SetRunning(false)
			code := int(int32(l.Machine.Regs().X[10]))
			logger.Info("execloop: guest exited", "code", code)
			if l.Exit != nil {
				l.Exit(code)
			}
			return
		case rvmachine.StopInstructionLimit:
			// Budget exhausted with no ecall and no halt: just keep running.
		}
	}
}

// runWithFaultRepair calls Machine.Run, repairing up to MaxFaultRepairs
// page faults by promoting the faulting page to RWX and retrying, per
// spec.md §4.9 step 2.
func (l *Loop) runWithFaultRepair(onECall func(rvmachine.Machine)) (rvmachine.StopReason, error) {
	for attempt := 0; attempt <= MaxFaultRepairs; attempt++ {
		reason, err := l.Machine.Run(InstructionBudget, onECall)
		if err == nil {
			return reason, nil
		}
		fe, ok := err.(*rvmachine.FaultError)
		if !ok {
			return rvmachine.StopUnknown, err
		}
		if attempt == MaxFaultRepairs {
			return rvmachine.StopUnknown, fmt.Errorf("execloop: exceeded %d fault repairs at 0x%x", MaxFaultRepairs, fe.Addr)
		}
		page := rvmachine.Page(fe.Addr)
		l.Machine.SetPageAttr(page, rvmachine.PageSize, rvmachine.RWX)
	}
	return rvmachine.StopUnknown, fmt.Errorf("execloop: unreachable")
}

// Stop requests a clean shutdown: the machine is told to stop and the
// bridge's condition variable is signaled so a blocked Run wakes up.
func Stop(m rvmachine.Machine, bridge *iohost.Bridge) {
	bridge.SetRunning(false)
	m.Stop()
}
