package syscalls

import (
	"github.com/friscy-go/friscy/internal/execctx"
	"github.com/friscy-go/friscy/internal/rvmachine"
)

const pageSize = 4096

func pageRoundUp(n uint64) uint64 { return (n + pageSize - 1) &^ (pageSize - 1) }

// sysBrk implements brk(2), per spec.md §4.8: once a layout has run
// (BrkOverridden), clamp to the 16MiB reserve execctx.LoadInitial carved
// out past the heap; otherwise forward the raw request unclamped. addr ==
// 0 always just queries the current break.
func sysBrk(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	ec := rt.Exec
	req := a[0]
	if req == 0 {
		return int64(ec.BrkCurrent)
	}
	if !ec.BrkOverridden {
		ec.BrkCurrent = req
		return int64(req)
	}
	top := ec.BrkBase + execctx.BrkReserve
	if req < ec.BrkBase {
		req = ec.BrkBase
	}
	if req > top {
		req = top
	}
	ec.BrkCurrent = req
	return int64(req)
}

const (
	protRead  = 1
	protWrite = 2
	protExec  = 4

	mapAnonymous = 0x20
	mapFixed     = 0x10
)

// sysMmap implements a minimal anonymous/file-backed mmap(2): new
// allocations are bumped from the exec context's mmap frontier (spec.md
// §4.5), matching the region R4 that forkstate snapshots on clone.
func sysMmap(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	length := pageRoundUp(a[1])
	prot := int(a[2])
	flags := int(a[3])
	fd := int32(a[4])
	offset := int64(a[5])

	ec := rt.Exec
	var addr uint64
	if flags&mapFixed != 0 {
		addr = a[0]
	} else {
		addr = ec.MmapFrontier
		ec.MmapFrontier += length
	}

	attr := rvmachine.PageAttr{
		Read:  prot&protRead != 0,
		Write: prot&protWrite != 0,
		Exec:  prot&protExec != 0,
	}
	m.SetPageAttr(addr, length, rvmachine.RWX)
	if err := m.Memset(addr, 0, length); err != nil {
		return -ENOMEM
	}

	if flags&mapAnonymous == 0 && fd >= 0 {
		buf := make([]byte, length)
		n, rc := rt.VFS.Pread(int(fd), buf, offset)
		if rc == 0 && n > 0 {
			m.WriteAt(addr, buf[:n])
		}
	}
	m.SetPageAttr(addr, length, attr)
	return int64(addr)
}

// sysMprotect applies new page permissions. It is a no-op while a
// cooperative fork is active: the "child" runs on the parent's pages, so a
// child's mprotect (such as its dynamic linker's RELRO pass) would otherwise
// still be in force for the parent after forkstate.Restore.
func sysMprotect(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	if rt.Fork.Active() {
		return 0
	}
	addr, length, prot := a[0], pageRoundUp(a[1]), int(a[2])
	attr := rvmachine.PageAttr{
		Read:  prot&protRead != 0,
		Write: prot&protWrite != 0,
		Exec:  prot&protExec != 0,
	}
	m.SetPageAttr(addr, length, attr)
	return 0
}
