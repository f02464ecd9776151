package syscalls

import (
	"github.com/friscy-go/friscy/internal/rvmachine"
	"github.com/friscy-go/friscy/internal/sockbridge"
)

const (
	pollIn  = 0x001
	pollOut = 0x004
)

// sysPpoll polls fd 0 (stdin, via the host bridge) and any socket fds;
// VFS-backed regular fds are always considered ready. A stdin fd with
// nothing pending sets WaitingForStdin so the execution loop rewinds and
// suspends, resuming this same ppoll on new input (spec.md §4.9).
func sysPpoll(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	fds := a[0]
	nfds := a[1]
	ready := int64(0)

	type entry struct {
		fd     int32
		events int16
	}
	raw := make([]byte, nfds*8)
	if err := m.ReadAt(fds, raw); err != nil {
		return -EFAULT
	}

	results := make([]int16, nfds)
	needStdin := false
	for i := uint64(0); i < nfds; i++ {
		fd := int32(uint32(raw[i*8]) | uint32(raw[i*8+1])<<8 | uint32(raw[i*8+2])<<16 | uint32(raw[i*8+3])<<24)
		events := int16(uint16(raw[i*8+4]) | uint16(raw[i*8+5])<<8)

		switch {
		case fd == 0 && events&pollIn != 0:
			if rt.Bridge.HasStdinData() || rt.Bridge.IsEOF() {
				results[i] = pollIn
				ready++
			} else {
				needStdin = true
			}
		case rt.Sockets.IsSocketFD(int(fd)):
			results[i] = events // socket readiness resolved via a follow-up recv/accept returning EAGAIN
			ready++
		default:
			results[i] = events
			ready++
		}
	}

	if needStdin && ready == 0 {
		rt.WaitingForStdin = true
		return 0
	}

	for i := uint64(0); i < nfds; i++ {
		putU16(raw[i*8+6:i*8+8], uint16(results[i]))
	}
	m.WriteAt(fds, raw)
	return ready
}

func putU16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

type epollInterest struct {
	fd     int32
	events uint32
	data   uint64
}

// epollSets holds per-epollfd interest lists. Keyed by the guest epoll fd
// (EpollFDBase-based), mirroring the fd-range convention sockbridge uses
// for socket fds.
var epollSets = map[int32][]epollInterest{}
var nextEpollFD int32 = sockbridge.EpollFDBase

func sysEpollCreate1(rt *Runtime) int64 {
	fd := nextEpollFD
	nextEpollFD++
	epollSets[fd] = nil
	return int64(fd)
}

func sysEpollCtl(rt *Runtime, a [6]uint64) int64 {
	const (
		epollCtlAdd = 1
		epollCtlDel = 2
		epollCtlMod = 3
	)
	epfd := int32(a[0])
	op := int(a[1])
	targetFD := int32(a[2])
	set, ok := epollSets[epfd]
	if !ok {
		return -EBADF
	}
	switch op {
	case epollCtlAdd:
		epollSets[epfd] = append(set, epollInterest{fd: targetFD, events: pollIn})
	case epollCtlDel:
		out := set[:0]
		for _, e := range set {
			if e.fd != targetFD {
				out = append(out, e)
			}
		}
		epollSets[epfd] = out
	case epollCtlMod:
		for i := range set {
			if set[i].fd == targetFD {
				set[i].events = pollIn
			}
		}
	}
	return 0
}

func sysEpollPwait(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	epfd := int32(a[0])
	eventsPtr := a[1]
	maxEvents := int(a[2])
	set := epollSets[epfd]

	var ready []epollInterest
	needStdin := false
	for _, e := range set {
		if e.fd == 0 {
			if rt.Bridge.HasStdinData() || rt.Bridge.IsEOF() {
				ready = append(ready, e)
			} else {
				needStdin = true
			}
			continue
		}
		ready = append(ready, e) // VFS/socket fds treated as always-ready at this fidelity
	}

	if len(ready) == 0 && needStdin {
		rt.WaitingForStdin = true
		return 0
	}

	n := len(ready)
	if n > maxEvents {
		n = maxEvents
	}
	buf := make([]byte, n*12)
	for i := 0; i < n; i++ {
		putU32(buf[i*12:i*12+4], pollIn)
		putU64(buf[i*12+4:i*12+12], ready[i].data)
	}
	m.WriteAt(eventsPtr, buf)
	return int64(n)
}

func sysFutex(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	const (
		futexWait = 0
		futexWake = 1
	)
	addr := a[0]
	op := int(a[1]) & 0x7f
	val := uint32(a[2])

	switch op {
	case futexWait:
		cur, err := readU32(m, addr)
		if err != nil {
			return -EFAULT
		}
		parked, _ := rt.Sched.FutexWait(m, addr, cur, val)
		if !parked {
			return -EAGAIN
		}
		return 0
	case futexWake:
		return int64(rt.Sched.FutexWake(addr, int(a[2])))
	}
	return 0
}

func readU32(m rvmachine.Machine, addr uint64) (uint32, error) {
	buf := make([]byte, 4)
	if err := m.ReadAt(addr, buf); err != nil {
		return 0, err
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, nil
}
