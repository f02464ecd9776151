package syscalls

import (
	"log/slog"

	"github.com/friscy-go/friscy/internal/execctx"
	"github.com/friscy-go/friscy/internal/forkstate"
	"github.com/friscy-go/friscy/internal/iohost"
	"github.com/friscy-go/friscy/internal/rvmachine"
	"github.com/friscy-go/friscy/internal/sched"
	"github.com/friscy-go/friscy/internal/sockbridge"
	"github.com/friscy-go/friscy/internal/vfs"
)

// Runtime is the single explicit value threaded through every syscall
// handler, replacing the ambient-global ExecContext/ForkState/Scheduler/
// bridge singletons spec.md §9 calls out for re-architecture.
type Runtime struct {
	VFS      *vfs.FS
	Exec     *execctx.Context
	Fork     *forkstate.State
	Sched    *sched.Scheduler
	Sockets  *sockbridge.Bridge
	Bridge   *iohost.Bridge
	Logger   *slog.Logger

	// Output receives every byte the guest writes to fd 1/2 that isn't
	// redirected inside the VFS, in write order. The launcher wires this
	// to the host's on_output callback; nil means "log only".
	Output func([]byte)

	// WaitingForStdin is set by a handler that needs the execution loop to
	// rewind the guest PC by 4 and suspend until new input/EOF arrives.
	WaitingForStdin bool
}

// NewRuntime wires together a fresh process-wide runtime.
func NewRuntime(v *vfs.FS, ec *execctx.Context, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		VFS:     v,
		Exec:    ec,
		Fork:    forkstate.New(),
		Sched:   sched.New(),
		Sockets: sockbridge.New(),
		Bridge:  iohost.New(),
		Logger:  logger,
	}
}

// args reads a0..a5 from the machine's register file.
func args(m rvmachine.Machine) [6]uint64 {
	r := m.Regs()
	return [6]uint64{r.X[10], r.X[11], r.X[12], r.X[13], r.X[14], r.X[15]}
}

func setResult(m rvmachine.Machine, v int64) {
	m.Regs().X[10] = uint64(v)
}

// readCString reads a NUL-terminated string from guest memory, bounded to
// avoid runaway reads on a corrupt pointer.
func readCString(m rvmachine.Machine, addr uint64) (string, error) {
	if addr == 0 {
		return "", nil
	}
	buf := make([]byte, 1)
	out := make([]byte, 0, 64)
	for i := 0; i < 4096; i++ {
		if err := m.ReadAt(addr+uint64(i), buf); err != nil {
			return "", err
		}
		if buf[0] == 0 {
			break
		}
		out = append(out, buf[0])
	}
	return string(out), nil
}
