package syscalls

import (
	"github.com/friscy-go/friscy/internal/execctx"
	"github.com/friscy-go/friscy/internal/forkstate"
	"github.com/friscy-go/friscy/internal/rvmachine"
)

const (
	cloneVM            = 0x100
	cloneFS            = 0x200
	cloneFiles         = 0x400
	cloneSighand       = 0x800
	cloneThread        = 0x10000
	cloneVfork         = 0x4000
	cloneSettls        = 0x80000
	cloneParentSettid  = 0x100000
	cloneChildCleartid = 0x200000
	cloneChildSettid   = 0x1000000
)

// sysClone implements clone(2): CLONE_THREAD, or CLONE_VM without
// CLONE_VFORK, spawns a scheduler slot (spec.md §4.7); anything else goes
// through the cooperative single-process fork snapshot (spec.md §4.6).
// riscv64's clone arg order is (flags, stack, parent_tidptr, tls,
// child_tidptr).
func sysClone(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	flags := a[0]
	stack := a[1]
	tls := a[3]
	childTidptr := a[4]

	threadForm := flags&cloneThread != 0 || (flags&cloneVM != 0 && flags&cloneVfork == 0)
	if threadForm {
		tid := rt.Sched.Clone(m, stack, tls, childTidptr,
			flags&cloneSettls != 0, flags&cloneChildCleartid != 0)
		return int64(tid)
	}

	if rt.Fork.Active() {
		return -EAGAIN // nested nested fork unsupported, per forkstate.ErrNestedFork
	}
	if _, err := forkstate.Save(rt.Fork, m, rt.Exec, rt.VFS.FDs()); err != nil {
		return -EAGAIN
	}
	return 0 // the "child" is this same host thread continuing past the ecall
}

// sysExecve resolves #! shebangs and delegates to execctx.Execve, which
// detects the busybox-multicall same-binary case and only rebuilds the
// stack rather than reloading segments (spec.md §4.5).
func sysExecve(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	path, err := readCString(m, a[0])
	if err != nil {
		return -EFAULT
	}
	argv, err := execctx.ParseArgv(m, a[1])
	if err != nil {
		return -EFAULT
	}

	for depth := 0; depth < 4; depth++ {
		blob, err := rt.VFS.ReadFile(path)
		if err != nil {
			return -ENOENT
		}
		interp, iarg, ok := execctx.ParseShebang(blob)
		if !ok {
			break
		}
		if iarg != "" {
			argv = append([]string{interp, iarg, path}, argv[1:]...)
		} else {
			argv = append([]string{interp, path}, argv[1:]...)
		}
		path = interp
	}

	sp, pc, err := execctx.Execve(rt.Exec, m, rt.VFS, path, argv)
	if err != nil {
		return -ENOEXEC
	}
	m.Regs().X[2] = sp
	m.Regs().PC = pc
	return 0
}

// sysWait4 implements wait4(2) against the single tracked fork child;
// returns -ECHILD once the child has already been reaped (spec.md §4.6).
func sysWait4(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	pid, status, ok := forkstate.Wait4(rt.Fork)
	if !ok {
		return -ECHILD
	}
	if a[1] != 0 {
		putU32Write(m, a[1], uint32(status))
	}
	return int64(pid)
}

// sysExit/sysExit_group: a non-main thread slot just exits that slot and
// switches away; the main thread (or exit_group from any thread) either
// restores the saved parent state via forkstate.Restore (if a fork is
// active) or halts the machine outright.
func sysExit(rt *Runtime, m rvmachine.Machine, num uint64, a [6]uint64) int64 {
	code := int(int32(a[0]))

	if num == SYS_EXIT && rt.Sched.CurrentSlot().TID != 1 {
		mainExit := rt.Sched.Exit(m, func(addr uint64, n int) { rt.Sched.FutexWake(addr, n) })
		if !mainExit {
			return 0
		}
	}

	if rt.Fork.Active() {
		if err := forkstate.Restore(rt.Fork, m, rt.VFS.FDs(), code); err != nil {
			m.Stop()
			return 0
		}
		return int64(m.Regs().X[10]) // the restored parent's clone() result: the child pid
	}

	m.Stop()
	m.Regs().X[10] = uint64(code)
	return int64(code)
}
