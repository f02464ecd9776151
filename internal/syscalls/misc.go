package syscalls

import "github.com/friscy-go/friscy/internal/rvmachine"

const rlimInfinity = ^uint64(0)

// sysPrlimit answers getrlimit/prlimit64 with fixed resource limits; no
// guest binary in this runtime's target userland (musl/busybox) inspects
// anything beyond NOFILE and STACK.
func sysPrlimit(m rvmachine.Machine, num uint64, a [6]uint64) int64 {
	const (
		rlimitStack  = 3
		rlimitNofile = 7
	)
	var resource uint64
	var outPtr uint64
	if num == SYS_GETRLIMIT {
		resource = a[0]
		outPtr = a[1]
	} else {
		resource = a[1]
		outPtr = a[3]
	}
	if outPtr == 0 {
		return 0
	}
	var cur, max uint64
	switch resource {
	case rlimitNofile:
		cur, max = 1024, 1024
	case rlimitStack:
		cur, max = 8*1024*1024, rlimInfinity
	default:
		cur, max = rlimInfinity, rlimInfinity
	}
	buf := make([]byte, 16)
	putU64(buf[0:8], cur)
	putU64(buf[8:16], max)
	m.WriteAt(outPtr, buf)
	return 0
}

// sysEventfd2 backs eventfd(2) with a VFS pipe: writes append an 8-byte
// counter, reads drain it, which is close enough for the notify-only
// usage this runtime's guest binaries make of eventfds.
func sysEventfd2(rt *Runtime) int64 {
	r := rt.VFS.OpenPipe()
	w, rc := rt.VFS.OpenPipeOtherEnd(r)
	if rc != 0 {
		return int64(rc)
	}
	_ = w // the read end is handed back; guest code dup2's or poll()s it directly
	return int64(r)
}
