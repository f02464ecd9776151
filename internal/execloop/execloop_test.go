package execloop

import (
	"testing"
	"time"

	"github.com/friscy-go/friscy/internal/iohost"
	"github.com/friscy-go/friscy/internal/rvmachine"
)

func TestLoopRunsUntilHalt(t *testing.T) {
	m := rvmachine.NewSim(1 << 16)
	bridge := iohost.New()

	exitCode := -1
	var exited bool
	l := &Loop{
		Machine: m,
		Bridge:  bridge,
		ECall: func(mm rvmachine.Machine) bool {
			mm.Stop()
			return false
		},
		Exit: func(code int) { exitCode = code; exited = true },
	}

	m.QueueECall()
	done := make(chan struct{})
	go func() {
		l.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not terminate")
	}
	if !exited {
		t.Fatal("OnExit was not called")
	}
	if exitCode != 0 {
		t.Fatalf("exit code = %d, want 0", exitCode)
	}
}

func TestLoopRewindsAndWaitsForStdinThenResumes(t *testing.T) {
	m := rvmachine.NewSim(1 << 16)
	bridge := iohost.New()

	calls := 0
	l := &Loop{
		Machine: m,
		Bridge:  bridge,
		ECall: func(mm rvmachine.Machine) bool {
			calls++
			if calls == 1 {
				return true // simulate a blocking read(0) rewind
			}
			mm.Stop()
			return false
		},
		Exit: func(code int) {},
	}

	m.QueueECall()
	m.QueueECall()

	done := make(chan struct{})
	go func() {
		l.Run()
		close(done)
	}()

	// Give the loop a moment to reach the wait point, then unblock it.
	time.Sleep(50 * time.Millisecond)
	bridge.PushStdin([]byte("x\n"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not resume after stdin push")
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}
