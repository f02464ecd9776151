// Package syscalls implements the syscall dispatch table (spec component
// C8): handlers for the Linux RISC-V 64 syscall ABI, keyed by syscall
// number, operating on a Runtime that bundles the VFS, exec context, fork
// state, thread scheduler, and socket bridge.
//
// Grounded on spec.md §4.8 and the naming convention of
// internal/linux/defs/syscall.go (a fixed dispatch table keyed by syscall
// number, named constants grouped by subsystem, per spec.md §9's guidance
// against polymorphism here). The numeric values are the standard Linux
// RISC-V 64 (generic syscall table) assignments.
package syscalls

const (
	SYS_IO_SETUP          = 0
	SYS_EPOLL_CREATE1     = 20
	SYS_EPOLL_CTL         = 21
	SYS_EPOLL_PWAIT       = 22
	SYS_DUP               = 23
	SYS_DUP3              = 24
	SYS_FCNTL             = 25
	SYS_IOCTL             = 29
	SYS_MKDIRAT           = 34
	SYS_UNLINKAT          = 35
	SYS_SYMLINKAT         = 36
	SYS_LINKAT            = 37
	SYS_RENAMEAT          = 38
	SYS_FTRUNCATE         = 46
	SYS_FACCESSAT         = 48
	SYS_CHDIR             = 49
	SYS_OPENAT            = 56
	SYS_CLOSE             = 57
	SYS_PIPE2             = 59
	SYS_GETDENTS64        = 61
	SYS_LSEEK             = 62
	SYS_READ              = 63
	SYS_WRITE             = 64
	SYS_READV             = 65
	SYS_WRITEV            = 66
	SYS_PREAD64           = 67
	SYS_PWRITE64          = 68
	SYS_PREADV            = 69
	SYS_PWRITEV           = 70
	SYS_SENDFILE          = 71
	SYS_PPOLL             = 73
	SYS_READLINKAT        = 78
	SYS_NEWFSTATAT        = 79
	SYS_FSTAT             = 80
	SYS_EXIT              = 93
	SYS_EXIT_GROUP        = 94
	SYS_SET_TID_ADDRESS   = 96
	SYS_FUTEX             = 98
	SYS_SET_ROBUST_LIST   = 99
	SYS_NANOSLEEP         = 101
	SYS_CLOCK_GETTIME     = 113
	SYS_CLOCK_GETRES      = 114
	SYS_CLOCK_NANOSLEEP   = 115
	SYS_SCHED_YIELD       = 124
	SYS_KILL              = 129
	SYS_TKILL             = 130
	SYS_TGKILL            = 131
	SYS_SIGALTSTACK       = 132
	SYS_RT_SIGSUSPEND     = 133
	SYS_RT_SIGACTION      = 134
	SYS_RT_SIGPROCMASK    = 135
	SYS_RT_SIGRETURN      = 139
	SYS_SETFSUID          = 151
	SYS_GETRESUID         = 148
	SYS_GETRESGID         = 150
	SYS_GETGROUPS         = 158
	SYS_UNAME             = 160
	SYS_GETRLIMIT         = 163
	SYS_PRCTL             = 167
	SYS_UMASK             = 166
	SYS_GETPID            = 172
	SYS_GETPPID           = 173
	SYS_GETUID            = 174
	SYS_GETEUID           = 175
	SYS_GETGID            = 176
	SYS_GETEGID           = 177
	SYS_GETTID            = 178
	SYS_SYSINFO           = 179
	SYS_SOCKET            = 198
	SYS_SOCKETPAIR        = 199
	SYS_BIND              = 200
	SYS_LISTEN            = 201
	SYS_ACCEPT            = 202
	SYS_CONNECT           = 203
	SYS_GETSOCKNAME       = 204
	SYS_GETPEERNAME       = 205
	SYS_SENDTO            = 206
	SYS_RECVFROM          = 207
	SYS_SETSOCKOPT        = 208
	SYS_GETSOCKOPT        = 209
	SYS_SHUTDOWN          = 210
	SYS_SENDMSG           = 211
	SYS_RECVMSG           = 212
	SYS_BRK               = 214
	SYS_MUNMAP            = 215
	SYS_MREMAP            = 216
	SYS_CLONE             = 220
	SYS_EXECVE            = 221
	SYS_MMAP              = 222
	SYS_MPROTECT          = 226
	SYS_MADVISE           = 233
	SYS_ACCEPT4           = 242
	SYS_EVENTFD2          = 19
	SYS_WAIT4             = 260
	SYS_PRLIMIT64         = 261
	SYS_GETRESUIDGID      = 148
	SYS_RENAMEAT2         = 276
	SYS_GETRANDOM         = 278
	SYS_EXECVEAT          = 281
	SYS_MEMBARRIER        = 283
	SYS_STATX             = 291
	SYS_RSEQ              = 293
	SYS_IO_URING_SETUP    = 425
	SYS_CLOSE_RANGE       = 436
	SYS_FACCESSAT2        = 439
	SYS_CAPGET            = 90
	SYS_RISCV_HWPROBE     = 258
)

// Linux errno values used directly as negative a0 results, grounded on
// golang.org/x/sys/unix's Errno constants but copied here as plain ints so
// handlers don't need to import unix just for error returns.
const (
	EPERM   = 1
	ENOENT  = 2
	ESRCH   = 3
	ENOEXEC = 8
	EAGAIN  = 11
	ENOMEM  = 12
	EACCES  = 13
	EFAULT  = 14
	EEXIST  = 17
	ENOTDIR = 20
	EISDIR  = 21
	EINVAL  = 22
	EMLINK  = 31
	ERANGE  = 34
	ENOSYS  = 38
	ENOTEMPTY = 39
	ETIMEDOUT = 110
	ECHILD    = 10
	ENOTSOCK  = 88
	EPROTOTYPE = 91
	ENOPROTOOPT = 92
	EAFNOSUPPORT = 97
	EISCONN  = 106
	ENOTCONN = 107
	EBADF    = 9
	ENOTSUP  = 95
)
