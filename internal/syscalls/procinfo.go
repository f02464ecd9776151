package syscalls

import (
	"crypto/rand"
	"time"

	"github.com/friscy-go/friscy/internal/rvmachine"
)

func sysClockGettime(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	now := time.Now()
	buf := make([]byte, 16)
	putU64(buf[0:8], uint64(now.Unix()))
	putU64(buf[8:16], uint64(now.Nanosecond()))
	writeOut(m, a[1], buf)
	rt.Sched.Tick(m) // clock_gettime is the scheduler's quantum checkpoint
	return 0
}

func sysClockGetres(m rvmachine.Machine, a [6]uint64) int64 {
	buf := make([]byte, 16)
	putU64(buf[8:16], 1_000_000) // 1ms resolution
	writeOut(m, a[1], buf)
	return 0
}

func sysGetrandom(m rvmachine.Machine, a [6]uint64) int64 {
	n := a[1]
	if n > 256 {
		n = 256
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return -EAGAIN
	}
	writeOut(m, a[0], buf)
	return int64(n)
}

func utsField(s string) []byte {
	b := make([]byte, 65)
	copy(b, s)
	return b
}

func sysUname(m rvmachine.Machine, a [6]uint64) int64 {
	fields := [][]byte{
		utsField("Linux"),
		utsField("friscy"),
		utsField("6.1.0-friscy"),
		utsField("#1 SMP PREEMPT_DYNAMIC"),
		utsField("riscv64"),
		utsField("(none)"),
	}
	buf := make([]byte, 0, 65*6)
	for _, f := range fields {
		buf = append(buf, f...)
	}
	writeOut(m, a[0], buf)
	return 0
}

func sysSysinfo(m rvmachine.Machine, a [6]uint64) int64 {
	buf := make([]byte, 112)
	putU64(buf[0:8], 100)                     // uptime
	putU64(buf[8:16], 0)                      // loads[0]
	putU64(buf[32:40], 256*1024*1024)         // totalram
	putU64(buf[40:48], 128*1024*1024)         // freeram
	buf[80] = 1                               // procs (low byte of uint16)
	putU32(buf[104:108], 1)                   // mem_unit
	writeOut(m, a[0], buf)
	return 0
}

func sysNanosleep(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	sec, err1 := readU64(m, a[0])
	nsec, err2 := readU64(m, a[0]+8)
	if err1 != nil || err2 != nil {
		return -EFAULT
	}
	d := time.Duration(sec)*time.Second + time.Duration(nsec)*time.Nanosecond
	if d > 50*time.Millisecond {
		d = 50 * time.Millisecond // cooperative: never actually block the host thread long
	}
	time.Sleep(d)
	rt.Sched.Yield(m)
	return 0
}
