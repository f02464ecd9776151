// Package execctx holds the process-wide exec context (spec component C5):
// the live binary's writable range, the interpreter's writable range, the
// brk heap state, and the mmap allocation frontier, plus the execve
// re-layout workflow itself.
//
// Grounded on the process-state bookkeeping in original_source's exec
// context model and this repo's own rvmachine/guestelf/gueststack
// packages, which execve recomposes on every binary switch.
package execctx

import (
	"strings"

	"github.com/friscy-go/friscy/internal/guestelf"
	"github.com/friscy-go/friscy/internal/gueststack"
	"github.com/friscy-go/friscy/internal/rvmachine"
)

const (
	PIEBase     = 0x40000
	BrkReserve  = 16 * 1024 * 1024
	MaxArgv     = 256
	ShebangMax  = 128
	stackTop0   = 0x7ffff000 // default initial stack top for a fresh exec
	stackWidth  = 1 << 20    // 1 MiB default stack mapping width
)

// Range is an inclusive-start/exclusive-end byte range in guest memory.
type Range struct{ Start, End uint64 }

func (r Range) Contains(addr uint64) bool { return addr >= r.Start && addr < r.End }

// Context is the process-wide record execve rewrites in place.
type Context struct {
	ExecRW   Range
	InterpRW Range

	HeapStart uint64
	HeapSize  uint64

	BrkBase    uint64
	BrkCurrent uint64
	// BrkOverridden is true once a layout has computed BrkBase/BrkCurrent
	// (i.e. after any exec), meaning brk(2) clamps to the 16MiB reserve
	// instead of forwarding unclamped (spec.md §4.8).
	BrkOverridden bool

	MmapFrontier uint64

	StackTop uint64

	Env []string

	Info       guestelf.Info
	InterpInfo guestelf.Info
	HasInterp  bool

	// ExecBytes/InterpBytes are retained so a later same-binary execve can
	// detect "no change" without re-reading the VFS.
	ExecBytes   []byte
	InterpBytes []byte
	ExecPath    string
}

// VFS is the minimal surface execve needs from the virtual filesystem.
type VFS interface {
	ReadFile(path string) ([]byte, error)
	ResolveSymlink(path string) (string, error)
}

// New builds the initial exec context for a freshly loaded entry binary.
func New(env []string) *Context {
	return &Context{Env: env, StackTop: stackTop0}
}

// LoadInitial performs the first ELF load for a session: parses the entry
// binary (and its interpreter, if dynamic), loads both into the machine,
// and builds the initial stack. Returns the SP to enter at and the PC to
// jump to.
func LoadInitial(c *Context, m rvmachine.Machine, vfs VFS, path string, argv []string) (sp, pc uint64, err error) {
	blob, err := vfs.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	info, err := guestelf.Parse(blob)
	if err != nil {
		return 0, 0, err
	}

	if _, err := guestelf.Load(m, blob, 0); err != nil {
		return 0, 0, err
	}
	lo, hi, err := guestelf.GetWritableRange(blob)
	if err != nil {
		return 0, 0, err
	}
	c.ExecRW = Range{lo, hi}
	c.Info = info
	c.ExecBytes = blob
	c.ExecPath = path

	entry := info.EntryPoint
	interpBase := uint64(0)

	if info.IsDynamic {
		interpBlob, err := vfs.ReadFile(info.Interpreter)
		if err != nil {
			return 0, 0, err
		}
		interpBase, err = guestelf.Load(m, interpBlob, PIEBase)
		if err != nil {
			return 0, 0, err
		}
		interpInfo, err := guestelf.Parse(interpBlob)
		if err != nil {
			return 0, 0, err
		}
		ilo, ihi, err := guestelf.GetWritableRange(interpBlob)
		if err != nil {
			return 0, 0, err
		}
		c.InterpRW = Range{ilo + interpBase, ihi + interpBase}
		c.InterpInfo = interpInfo
		c.InterpBytes = interpBlob
		c.HasInterp = true
		entry = interpInfo.EntryPoint + interpBase
	}

	c.HeapStart = hi
	c.HeapSize = 0
	c.BrkBase = rvmachine.PageRoundUp(maxU64(c.ExecRW.End, c.InterpRW.End))
	c.BrkCurrent = c.BrkBase
	c.BrkOverridden = true // this layout just (re)computed brk_base, so brk clamps to its reserve
	m.SetPageAttr(c.BrkBase, BrkReserve, rvmachine.PageAttr{Read: true, Write: true})
	c.MmapFrontier = c.BrkBase + BrkReserve

	c.StackTop = stackTop0
	m.SetPageAttr(c.StackTop-stackWidth, stackWidth, rvmachine.RWX)

	sp, err = gueststack.Build(m, c.StackTop, gueststack.Params{
		Argv:       argv,
		Envp:       c.Env,
		Info:       info,
		InterpBase: interpBase,
		EntryPoint: entry,
		ExecFn:     path,
	})
	if err != nil {
		return 0, 0, err
	}
	return sp, entry, nil
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// ParseArgv reads a NULL-terminated pointer vector of NULL-terminated
// strings from guest memory starting at argvPtr, bounded at MaxArgv.
func ParseArgv(m rvmachine.Machine, argvPtr uint64) ([]string, error) {
	var out []string
	for i := 0; i < MaxArgv; i++ {
		ptrBuf := make([]byte, 8)
		if err := m.ReadAt(argvPtr+uint64(i)*8, ptrBuf); err != nil {
			return nil, err
		}
		p := leU64(ptrBuf)
		if p == 0 {
			break
		}
		s, err := readCString(m, p)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func readCString(m rvmachine.Machine, addr uint64) (string, error) {
	var sb strings.Builder
	buf := make([]byte, 1)
	for i := 0; i < 4096; i++ {
		if err := m.ReadAt(addr+uint64(i), buf); err != nil {
			return "", err
		}
		if buf[0] == 0 {
			break
		}
		sb.WriteByte(buf[0])
	}
	return sb.String(), nil
}

func leU64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// ParseShebang inspects the start of blob for a `#!` interpreter line. It
// returns ok=false if blob does not start with a shebang.
func ParseShebang(blob []byte) (interp, arg string, ok bool) {
	if len(blob) < 2 || blob[0] != '#' || blob[1] != '!' {
		return "", "", false
	}
	end := len(blob)
	for i := 2; i < len(blob) && i < ShebangMax; i++ {
		if blob[i] == '\n' {
			end = i
			break
		}
	}
	line := strings.TrimSpace(string(blob[2:end]))
	parts := strings.SplitN(line, " ", 2)
	interp = parts[0]
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}
	return interp, arg, true
}

// ResolveEnvPath searches PATH (from env) for cmd, used by the
// `/usr/bin/env cmd` shebang special case.
func ResolveEnvPath(env []string, cmd string, exists func(path string) bool) string {
	if strings.Contains(cmd, "/") {
		return cmd
	}
	path := "/usr/bin:/bin"
	for _, e := range env {
		if strings.HasPrefix(e, "PATH=") {
			path = e[len("PATH="):]
			break
		}
	}
	for _, dir := range strings.Split(path, ":") {
		candidate := dir + "/" + cmd
		if exists(candidate) {
			return candidate
		}
	}
	return cmd
}

// Execve performs the full execve workflow of spec.md §4.5: shebang
// resolution happens in the caller (it needs VFS existence checks the
// syscall layer owns); this function receives the final resolved path and
// argv and does the ELF-switch decision plus reload.
func Execve(c *Context, m rvmachine.Machine, vfs VFS, path string, argv []string) (sp, pc uint64, err error) {
	blob, err := vfs.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}

	sameBinary := path == c.ExecPath && bytesEqual(blob, c.ExecBytes)
	if sameBinary {
		entry := c.Info.EntryPoint
		interpBase := uint64(0)
		if c.HasInterp {
			// The interpreter still sits where LoadInitial put it: at PIEBase
			// if it is ET_DYN, at its own link address otherwise.
			if c.InterpInfo.Type == guestelf.ET_DYN {
				lo, _, err := guestelf.GetLoadRange(c.InterpBytes)
				if err != nil {
					return 0, 0, err
				}
				interpBase = PIEBase - lo
			}
			entry = c.InterpInfo.EntryPoint + interpBase
		}
		sp, err := gueststack.Build(m, c.StackTop, gueststack.Params{
			Argv: argv, Envp: c.Env, Info: c.Info, InterpBase: interpBase, ExecFn: path,
		})
		if err != nil {
			return 0, 0, err
		}
		return sp, entry, nil
	}

	return LoadInitial(c, m, vfs, path, argv)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
