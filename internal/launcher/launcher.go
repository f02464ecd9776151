// Package launcher implements the public entry points a host binding
// calls (spec component C12): init, load_rootfs, start, send_input, stop,
// destroy, is_running, set_terminal_size, save_snapshot, restore_snapshot,
// get_version. It owns every process-wide component — the VFS, exec
// context, fork state, scheduler, socket bridge, host-I/O bridge, and
// execution loop — and wires them together exactly as spec.md §6
// describes the data flow.
//
// Grounded on cmd/cc/main.go's flow (pull/build image, create hypervisor,
// load kernel, run VM) generalized into a reusable library type instead
// of a one-shot CLI, and on virt.go's functional-options surface
// (Option/With...) for configuring it.
package launcher

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/friscy-go/friscy/internal/execctx"
	"github.com/friscy-go/friscy/internal/execloop"
	"github.com/friscy-go/friscy/internal/rvmachine"
	"github.com/friscy-go/friscy/internal/snapshot"
	"github.com/friscy-go/friscy/internal/syscalls"
	"github.com/friscy-go/friscy/internal/vfs"
)

// Version is reported by get_version. It is set at release-build time via
// -ldflags; "dev" is the fallback for a locally built binary.
var Version = "dev"

// ArenaSize is the flat guest address space size a Launcher's Machine is
// created with. It must cover execctx's fixed stack top (0x7ffff000);
// snapshotting reads/writes this whole range.
const ArenaSize = 1 << 31

// Option configures a Launcher at construction time, mirroring the
// teacher's virt.go Option/With... pattern.
type Option func(*Launcher)

// WithLogger overrides the default slog.Logger used for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Launcher) { l.logger = logger }
}

// WithOutput registers the callback that receives guest fd 1/2 writes, in
// write order (spec.md §6's on_output).
func WithOutput(fn func(string)) Option {
	return func(l *Launcher) { l.onOutput = fn }
}

// WithArenaSize overrides the default guest address space size.
func WithArenaSize(n uint64) Option {
	return func(l *Launcher) { l.arenaSize = n }
}

// WithMachineFactory overrides how the guest Machine is constructed,
// letting a real build wire in the actual RISC-V interpreter instead of
// rvmachine.Sim.
func WithMachineFactory(factory func(arenaSize uint64) rvmachine.Machine) Option {
	return func(l *Launcher) { l.newMachine = factory }
}

// Launcher owns the process-wide state spec.md §5 assigns it: the exec
// context, fork state, scheduler, VFS, and socket bridge are reset
// wholesale by Destroy.
type Launcher struct {
	mu sync.Mutex

	logger    *slog.Logger
	onOutput  func(string)
	arenaSize uint64
	newMachine func(arenaSize uint64) rvmachine.Machine

	initialized bool

	machine rvmachine.Machine
	rt      *syscalls.Runtime
	loop    *execloop.Loop

	running    bool
	execWg     sync.WaitGroup
	lastErr    error
}

// New constructs a Launcher; call Init before LoadRootfs.
func New(opts ...Option) *Launcher {
	l := &Launcher{
		logger:    slog.Default(),
		arenaSize: ArenaSize,
		newMachine: func(n uint64) rvmachine.Machine { return rvmachine.NewSim(n) },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Init initializes the emulator runtime once per process (spec.md §6).
// Calling it again before Destroy is a no-op that reports success, since
// spec.md describes init as idempotent per-process setup.
func (l *Launcher) Init() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.initialized = true
	return true
}

// LoadRootfs builds the VFS from tarBytes, parses the entry ELF (and its
// interpreter if dynamic), creates the guest machine, installs the
// syscall runtime, and lays out the initial stack (spec.md §6's
// load_rootfs). The output callback set via WithOutput, if any, receives
// guest fd 1/2 writes.
func (l *Launcher) LoadRootfs(tarBytes []byte, entryPath string, argv []string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return false
	}

	fsys, err := vfs.LoadTar(tarBytes)
	if err != nil {
		l.lastErr = fmt.Errorf("launcher: load rootfs: %w", err)
		l.logger.Error("load rootfs failed", "error", err)
		return false
	}

	env := []string{"PATH=/bin:/usr/bin", "HOME=/root", "TERM=xterm"}
	ec := execctx.New(env)
	m := l.newMachine(l.arenaSize)

	if len(argv) == 0 {
		argv = []string{entryPath}
	}
	sp, pc, err := execctx.LoadInitial(ec, m, fsys, entryPath, argv)
	if err != nil {
		l.lastErr = fmt.Errorf("launcher: load entry %s: %w", entryPath, err)
		l.logger.Error("load entry failed", "path", entryPath, "error", err)
		return false
	}
	m.Regs().X[2] = sp
	m.Regs().PC = pc

	rt := syscalls.NewRuntime(fsys, ec, l.logger)
	if l.onOutput != nil {
		cb := l.onOutput
		rt.Output = func(b []byte) { cb(string(b)) }
	}

	l.machine = m
	l.rt = rt
	l.loop = &execloop.Loop{
		Machine: m,
		Bridge:  rt.Bridge,
		ECall:   func(mm rvmachine.Machine) bool { return syscalls.Dispatch(rt, mm) },
		Exit: func(code int) {
			l.logger.Info("guest exited", "code", code)
		},
		Error: func(msg string) {
			l.logger.Error("guest execution error", "msg", msg)
		},
		Logger: l.logger,
	}
	return true
}

// Start launches the execution thread (spec.md §6's start). It is
// fire-and-forget: call IsRunning to poll completion, or Stop to request
// shutdown.
func (l *Launcher) Start() bool {
	l.mu.Lock()
	if l.loop == nil || l.running {
		l.mu.Unlock()
		return false
	}
	l.running = true
	loop := l.loop
	l.mu.Unlock()

	l.execWg.Add(1)
	go func() {
		defer l.execWg.Done()
		loop.Run()
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()
	return true
}

// SendInput pushes UTF-8 bytes onto the stdin queue (spec.md §6's
// send_input), unblocking an execution thread parked on a stdin read.
func (l *Launcher) SendInput(data []byte) {
	l.mu.Lock()
	rt := l.rt
	l.mu.Unlock()
	if rt == nil {
		return
	}
	rt.Bridge.PushStdin(data)
}

// Stop signals shutdown and joins the execution thread (spec.md §6's
// stop): running=false, machine.Stop(), and the bridge condition variable
// is woken so a parked stdin wait observes the flag.
func (l *Launcher) Stop() {
	l.mu.Lock()
	m, rt := l.machine, l.rt
	l.mu.Unlock()
	if m == nil || rt == nil {
		return
	}
	execloop.Stop(m, rt.Bridge)
	l.execWg.Wait()
}

// Destroy stops and frees all resources, per spec.md §6/§5's "Resource
// ownership" note that the launcher owns everything reset here.
func (l *Launcher) Destroy() {
	l.Stop()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.machine = nil
	l.rt = nil
	l.loop = nil
	l.initialized = false
}

// Wait blocks until the execution thread started by Start finishes (the
// guest halted, or Stop was called). Safe to call even if Start was never
// invoked, in which case it returns immediately.
func (l *Launcher) Wait() {
	l.execWg.Wait()
}

// IsRunning queries execution-thread status (spec.md §6's is_running).
func (l *Launcher) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// SetTerminalSize updates the bridge's TIOCGWINSZ response (spec.md §6's
// set_terminal_size).
func (l *Launcher) SetTerminalSize(cols, rows int) {
	l.mu.Lock()
	rt := l.rt
	l.mu.Unlock()
	if rt == nil {
		return
	}
	rt.Bridge.SetTerminalSize(cols, rows)
}

// GetVersion returns informational version text (spec.md §6's
// get_version).
func (l *Launcher) GetVersion() string { return Version }

// SaveSnapshot writes the full guest register file and address space to
// path (spec.md §4.10/§6's save_snapshot). It is only meaningful between
// LoadRootfs and Destroy.
func (l *Launcher) SaveSnapshot(path string) bool {
	l.mu.Lock()
	m := l.machine
	size := l.arenaSize
	l.mu.Unlock()
	if m == nil {
		return false
	}

	var arena []byte
	if raw, ok := m.(interface{ Arena() []byte }); ok {
		// A flat-arena machine exposes its backing store directly, so pages
		// the guest itself cannot read are captured too.
		arena = raw.Arena()
	} else {
		arena = make([]byte, size)
		if err := m.ReadAt(0, arena); err != nil {
			l.logger.Error("save snapshot: read arena", "error", err)
			return false
		}
	}
	regs := encodeRegisters(m.Regs())

	if err := snapshot.Save(path, snapshot.Snapshot{Registers: regs, Arena: arena}); err != nil {
		l.logger.Error("save snapshot", "path", path, "error", err)
		return false
	}
	return true
}

// RestoreSnapshot reads path and installs its register/memory state into
// the live machine (spec.md §6's restore_snapshot). LoadRootfs must have
// already created a machine of the matching arena size.
func (l *Launcher) RestoreSnapshot(path string) bool {
	l.mu.Lock()
	m := l.machine
	size := l.arenaSize
	l.mu.Unlock()
	if m == nil {
		return false
	}

	snap, err := snapshot.Load(path, registerBlockSize, int(size))
	if err != nil {
		l.logger.Error("restore snapshot", "path", path, "error", err)
		return false
	}

	m.SetPageAttr(0, size, rvmachine.RWX)
	if err := m.WriteAt(0, snap.Arena); err != nil {
		l.logger.Error("restore snapshot: write arena", "error", err)
		return false
	}
	decodeRegisters(snap.Registers, m.Regs())
	return true
}

// LastError returns the error behind the most recent false-returning
// call, or nil. Host bindings that only see a bool use this to build the
// "error banner" spec.md §6 describes.
func (l *Launcher) LastError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

