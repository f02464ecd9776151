package syscalls

import "github.com/friscy-go/friscy/internal/rvmachine"

// Dispatch reads a7 as the syscall number, invokes the matching handler,
// and writes its result into a0. It is meant to be wired as the ecall
// callback execloop.Loop.ECall wraps. When a handler asked to wait for
// stdin, Dispatch rewinds PC by 4 itself and returns true so the
// execution loop suspends (spec.md §4.9 step 3).
func Dispatch(rt *Runtime, m rvmachine.Machine) (waitingForStdin bool) {
	rt.WaitingForStdin = false
	callerIdx, _ := rt.Sched.Current()
	num := m.Regs().X[17] // a7
	a := args(m)

	result := dispatchOne(rt, m, num, a)

	// A handler (clone, a parked futex wait, quantum exhaustion, thread
	// exit) may have switched the scheduler's current slot out from under
	// us. When it has, the result belongs to the original caller's saved
	// registers, not to whatever is live in m now.
	if idx, _ := rt.Sched.Current(); idx == callerIdx {
		setResult(m, result)
	} else {
		rt.Sched.SetResult(callerIdx, result)
	}

	if rt.WaitingForStdin {
		m.Regs().PC -= 4
		return true
	}
	return false
}

func dispatchOne(rt *Runtime, m rvmachine.Machine, num uint64, a [6]uint64) int64 {
	switch num {
	// file / fd operations
	case SYS_OPENAT:
		return sysOpenat(rt, m, a)
	case SYS_CLOSE:
		return sysClose(rt, a)
	case SYS_DUP:
		return sysDup(rt, a)
	case SYS_DUP3:
		return sysDup3(rt, a)
	case SYS_PIPE2:
		return sysPipe2(rt, m, a)
	case SYS_READ:
		return sysRead(rt, m, a)
	case SYS_WRITE:
		return sysWrite(rt, m, a)
	case SYS_READV:
		return sysReadv(rt, m, a)
	case SYS_WRITEV:
		return sysWritev(rt, m, a)
	case SYS_PREAD64:
		return sysPread64(rt, m, a)
	case SYS_PWRITE64:
		return sysPwrite64(rt, m, a)
	case SYS_PWRITEV:
		return sysWritev(rt, m, a) // gather semantics identical at this fidelity
	case SYS_LSEEK:
		return sysLseek(rt, a)
	case SYS_FTRUNCATE:
		return sysFtruncate(rt, a)
	case SYS_GETDENTS64:
		return sysGetdents64(rt, m, a)
	case SYS_NEWFSTATAT:
		return sysNewfstatat(rt, m, a)
	case SYS_FSTAT:
		return sysFstat(rt, m, a)
	case SYS_READLINKAT:
		return sysReadlinkat(rt, m, a)
	case SYS_FACCESSAT, SYS_FACCESSAT2:
		return sysFaccessat(rt, m, a)
	case SYS_STATX:
		return sysStatx(rt, m, a)
	case SYS_MKDIRAT:
		return sysMkdirat(rt, m, a)
	case SYS_UNLINKAT:
		return sysUnlinkat(rt, m, a)
	case SYS_SYMLINKAT:
		return sysSymlinkat(rt, m, a)
	case SYS_LINKAT:
		return sysLinkat(rt, m, a)
	case SYS_RENAMEAT, SYS_RENAMEAT2:
		return sysRenameat(rt, m, a)
	case SYS_IOCTL:
		return sysIoctl(rt, m, a)
	case SYS_FCNTL:
		return sysFcntl(rt, a)
	case SYS_SENDFILE:
		return sysSendfile(rt, m, a)
	case SYS_CHDIR:
		return sysChdir(rt, m, a)

	// process, identity, time
	case SYS_GETPID:
		return 1
	case SYS_GETPPID:
		return 0
	case SYS_GETTID:
		return int64(sysGettid(rt))
	case SYS_GETUID, SYS_GETEUID, SYS_GETGID, SYS_GETEGID:
		return 0
	case SYS_SET_TID_ADDRESS:
		rt.Sched.CurrentSlot().ClearChildTID = a[0]
		return int64(sysGettid(rt))
	case SYS_SET_ROBUST_LIST:
		return 0
	case SYS_CLOCK_GETTIME:
		return sysClockGettime(rt, m, a)
	case SYS_CLOCK_GETRES:
		return sysClockGetres(m, a)
	case SYS_GETRANDOM:
		return sysGetrandom(m, a)
	case SYS_UNAME:
		return sysUname(m, a)
	case SYS_SYSINFO:
		return sysSysinfo(m, a)
	case SYS_NANOSLEEP, SYS_CLOCK_NANOSLEEP:
		return sysNanosleep(rt, m, a)
	case SYS_SCHED_YIELD:
		rt.Sched.Yield(m)
		return 0

	// memory
	case SYS_BRK:
		return sysBrk(rt, m, a)
	case SYS_MMAP:
		return sysMmap(rt, m, a)
	case SYS_MPROTECT:
		return sysMprotect(rt, m, a)
	case SYS_MUNMAP:
		return 0 // accepted and ignored: the pages stay mapped and the mmap frontier does not move back
	case SYS_MREMAP:
		return -ENOSYS
	case SYS_MADVISE:
		return 0

	// polling and events
	case SYS_PPOLL:
		return sysPpoll(rt, m, a)
	case SYS_EPOLL_CREATE1:
		return sysEpollCreate1(rt)
	case SYS_EPOLL_CTL:
		return sysEpollCtl(rt, a)
	case SYS_EPOLL_PWAIT:
		return sysEpollPwait(rt, m, a)
	case SYS_FUTEX:
		return sysFutex(rt, m, a)

	// signals
	case SYS_RT_SIGACTION, SYS_RT_SIGPROCMASK, SYS_SIGALTSTACK, SYS_RT_SIGRETURN, SYS_RT_SIGSUSPEND:
		return 0
	case SYS_KILL:
		return sysKill(rt, a)
	case SYS_TKILL, SYS_TGKILL:
		return sysTkill(rt, a)

	// sockets
	case SYS_SOCKET:
		return sysSocket(rt, a)
	case SYS_BIND:
		return sysBind(rt, m, a)
	case SYS_LISTEN:
		return int64(rt.Sockets.Listen(int(a[0]), int(a[1])))
	case SYS_ACCEPT, SYS_ACCEPT4:
		return sysAccept(rt, m, num, a)
	case SYS_CONNECT:
		return sysConnect(rt, m, a)
	case SYS_SENDTO:
		return sysSendto(rt, m, a)
	case SYS_RECVFROM:
		return sysRecvfrom(rt, m, a)
	case SYS_SENDMSG:
		return sysSendmsg(rt, m, a)
	case SYS_RECVMSG:
		return sysRecvmsg(rt, m, a)
	case SYS_SETSOCKOPT:
		return int64(rt.Sockets.SetSockOpt(int(a[0])))
	case SYS_GETSOCKOPT:
		return sysGetsockopt(rt, m, a)
	case SYS_SHUTDOWN:
		return int64(rt.Sockets.Shutdown(int(a[0]), int(a[1])))
	case SYS_GETSOCKNAME:
		return sysGetsockname(rt, m, a)
	case SYS_GETPEERNAME:
		return -ENOSYS
	case SYS_SOCKETPAIR:
		return sysSocketpair(rt, m, a)

	// miscellany
	case SYS_PRLIMIT64, SYS_GETRLIMIT:
		return sysPrlimit(m, num, a)
	case SYS_PRCTL:
		return 0
	case SYS_CAPGET:
		return 0
	case SYS_RSEQ:
		return 0
	case SYS_IO_URING_SETUP:
		return -ENOSYS
	case SYS_RISCV_HWPROBE:
		return 0
	case SYS_EVENTFD2:
		return sysEventfd2(rt)
	case SYS_MEMBARRIER:
		if a[0] == 0 { // MEMBARRIER_CMD_QUERY
			return 0
		}
		return -ENOSYS
	case SYS_GETGROUPS:
		return 0
	case SYS_GETRESUID, SYS_GETRESGID:
		return 0
	case SYS_UMASK:
		return 0o022
	case SYS_CLOSE_RANGE:
		return 0

	// exit
	case SYS_EXIT, SYS_EXIT_GROUP:
		return sysExit(rt, m, num, a)
	case SYS_CLONE:
		return sysClone(rt, m, a)
	case SYS_EXECVE, SYS_EXECVEAT:
		return sysExecve(rt, m, a)
	case SYS_WAIT4:
		return sysWait4(rt, m, a)
	}

	return -ENOSYS
}

func sysGettid(rt *Runtime) int32 {
	_, tid := rt.Sched.Current()
	return tid
}
