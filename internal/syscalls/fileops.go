package syscalls

import (
	"io/fs"

	"github.com/friscy-go/friscy/internal/rvmachine"
	"github.com/friscy-go/friscy/internal/vfs"
)

const atFDCWD = -100

func sysOpenat(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	if int64(int32(a[0])) != atFDCWD {
		return -ENOSYS // only AT_FDCWD supported, per spec.md §4.8
	}
	path, err := readCString(m, a[1])
	if err != nil {
		return -EFAULT
	}
	flags := vfs.OpenFlags(translateOpenFlags(int(a[2])))
	fd, rc := rt.VFS.Open(path, flags, fs.FileMode(a[3]&0o7777))
	if rc != 0 {
		return int64(rc)
	}
	return int64(fd)
}

// translateOpenFlags maps Linux open(2) bit values to vfs.OpenFlags.
func translateOpenFlags(linuxFlags int) int {
	const (
		lO_WRONLY   = 0o1
		lO_RDWR     = 0o2
		lO_CREAT    = 0o100
		lO_EXCL     = 0o200
		lO_TRUNC    = 0o1000
		lO_APPEND   = 0o2000
		lO_DIRECTORY = 0o200000
	)
	var f int
	if linuxFlags&lO_WRONLY != 0 {
		f |= int(vfs.OWronly)
	}
	if linuxFlags&lO_RDWR != 0 {
		f |= int(vfs.ORdwr)
	}
	if linuxFlags&lO_CREAT != 0 {
		f |= int(vfs.OCreat)
	}
	if linuxFlags&lO_EXCL != 0 {
		f |= int(vfs.OExcl)
	}
	if linuxFlags&lO_TRUNC != 0 {
		f |= int(vfs.OTrunc)
	}
	if linuxFlags&lO_APPEND != 0 {
		f |= int(vfs.OAppend)
	}
	if linuxFlags&lO_DIRECTORY != 0 {
		f |= int(vfs.ODirectory)
	}
	return f
}

func sysClose(rt *Runtime, a [6]uint64) int64 {
	fd := int(a[0])
	if rt.Sockets.IsSocketFD(fd) {
		return int64(rt.Sockets.Close(fd))
	}
	return int64(rt.VFS.Close(fd))
}

func sysDup(rt *Runtime, a [6]uint64) int64 {
	newfd, rc := rt.VFS.Dup(int(a[0]))
	if rc != 0 {
		return int64(rc)
	}
	return int64(newfd)
}

func sysDup3(rt *Runtime, a [6]uint64) int64 {
	newfd, rc := rt.VFS.Dup2(int(a[0]), int(a[1]))
	if rc != 0 {
		return int64(rc)
	}
	return int64(newfd)
}

func sysPipe2(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	r := rt.VFS.OpenPipe()
	w, rc := rt.VFS.OpenPipeOtherEnd(r)
	if rc != 0 {
		return int64(rc)
	}
	buf := make([]byte, 8)
	putU32(buf[0:4], uint32(r))
	putU32(buf[4:8], uint32(w))
	if err := m.WriteAt(a[0], buf); err != nil {
		return -EFAULT
	}
	return 0
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// fdRedirected reports whether fd 0/1/2 has been installed in the VFS (post
// dup2); read/write treat those fds specially only when it has not, per
// spec.md §4.8.
func fdRedirected(rt *Runtime, fd int) bool {
	_, rc := rt.VFS.Fstat(fd)
	return rc == 0
}

func sysRead(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	fd := int(a[0])
	count := a[2]
	if count > 1<<20 {
		count = 1 << 20
	}
	buf := make([]byte, count)

	if fd == 0 {
		if fdRedirected(rt, 0) {
			n, rc := rt.VFS.Read(0, buf)
			if rc != 0 {
				return int64(rc)
			}
			writeOut(m, a[1], buf[:n])
			return int64(n)
		}
		n := rt.Bridge.TryReadStdin(buf)
		if n == -1 {
			rt.WaitingForStdin = true
			return 0
		}
		writeOut(m, a[1], buf[:n])
		return int64(n)
	}

	if rt.Sockets.IsSocketFD(fd) {
		n, rc := rt.Sockets.RecvFrom(fd, buf)
		if rc != 0 {
			return int64(rc)
		}
		writeOut(m, a[1], buf[:n])
		return int64(n)
	}

	n, rc := rt.VFS.Read(fd, buf)
	if rc != 0 {
		return int64(rc)
	}
	writeOut(m, a[1], buf[:n])
	return int64(n)
}

func writeOut(m rvmachine.Machine, addr uint64, data []byte) {
	if len(data) == 0 {
		return
	}
	m.WriteAt(addr, data)
}

func readIn(m rvmachine.Machine, addr uint64, length uint64) ([]byte, error) {
	buf := make([]byte, length)
	if err := m.ReadAt(addr, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func sysWrite(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	fd := int(a[0])
	buf, err := readIn(m, a[1], a[2])
	if err != nil {
		return -EFAULT
	}

	if (fd == 1 || fd == 2) && !fdRedirected(rt, fd) {
		emitOutput(rt, buf)
		return int64(len(buf))
	}
	if rt.Sockets.IsSocketFD(fd) {
		n, rc := rt.Sockets.SendTo(fd, buf, nil)
		if rc != 0 {
			return int64(rc)
		}
		return int64(n)
	}
	n, rc := rt.VFS.Write(fd, buf)
	if rc != 0 {
		return int64(rc)
	}
	return int64(n)
}

// sysReadv/sysWritev implement readv/writev at the fidelity this runtime
// needs: iterate the iovec, delegate each chunk to read/write. pwritev is
// routed to sysWritev and writes at the fd's current offset; preadv has no
// handler and gets -ENOSYS.
func sysReadv(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	total := int64(0)
	iov := a[1]
	for i := uint64(0); i < a[2]; i++ {
		base, err1 := readU64(m, iov+i*16)
		length, err2 := readU64(m, iov+i*16+8)
		if err1 != nil || err2 != nil {
			return -EFAULT
		}
		n := sysRead(rt, m, [6]uint64{a[0], base, length, 0, 0, 0})
		if n < 0 {
			if total > 0 {
				return total
			}
			return n
		}
		total += n
		if uint64(n) < length {
			break
		}
	}
	return total
}

func sysWritev(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	total := int64(0)
	iov := a[1]
	for i := uint64(0); i < a[2]; i++ {
		base, err1 := readU64(m, iov+i*16)
		length, err2 := readU64(m, iov+i*16+8)
		if err1 != nil || err2 != nil {
			return -EFAULT
		}
		n := sysWrite(rt, m, [6]uint64{a[0], base, length, 0, 0, 0})
		if n < 0 {
			if total > 0 {
				return total
			}
			return n
		}
		total += n
	}
	return total
}

func readU64(m rvmachine.Machine, addr uint64) (uint64, error) {
	buf := make([]byte, 8)
	if err := m.ReadAt(addr, buf); err != nil {
		return 0, err
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v, nil
}

func sysPread64(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	buf := make([]byte, a[2])
	n, rc := rt.VFS.Pread(int(a[0]), buf, int64(a[3]))
	if rc != 0 {
		return int64(rc)
	}
	writeOut(m, a[1], buf[:n])
	return int64(n)
}

func sysPwrite64(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	buf, err := readIn(m, a[1], a[2])
	if err != nil {
		return -EFAULT
	}
	n, rc := rt.VFS.Pwrite(int(a[0]), buf, int64(a[3]))
	if rc != 0 {
		return int64(rc)
	}
	return int64(n)
}

func sysLseek(rt *Runtime, a [6]uint64) int64 {
	off, rc := rt.VFS.Lseek(int(a[0]), int64(a[1]), int(a[2]))
	if rc != 0 {
		return int64(rc)
	}
	return off
}

func sysFtruncate(rt *Runtime, a [6]uint64) int64 {
	return int64(rt.VFS.Ftruncate(int(a[0]), int64(a[1])))
}

func sysGetdents64(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	buf := make([]byte, a[2])
	n, rc := rt.VFS.Getdents64(int(a[0]), buf)
	if rc != 0 {
		return int64(rc)
	}
	writeOut(m, a[1], buf[:n])
	return int64(n)
}

func statToBuf(st vfs.Stat) []byte {
	buf := make([]byte, 128) // struct stat (riscv64) size, zero-filled except the fields we populate
	putU64(buf[48:56], uint64(st.Size))
	mode := uint32(st.Mode.Perm())
	switch st.Kind {
	case vfs.KindDirectory:
		mode |= 0o040000
	case vfs.KindSymlink:
		mode |= 0o120000
	default:
		mode |= 0o100000
	}
	putU32(buf[16:20], mode)
	putU64(buf[88:96], uint64(st.Mtime.Unix()))
	return buf
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func sysNewfstatat(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	path, err := readCString(m, a[1])
	if err != nil {
		return -EFAULT
	}
	st, rc := rt.VFS.Stat(path)
	if rc != 0 {
		return int64(rc)
	}
	writeOut(m, a[2], statToBuf(st))
	return 0
}

func sysFstat(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	st, rc := rt.VFS.Fstat(int(a[0]))
	if rc != 0 {
		return int64(rc)
	}
	writeOut(m, a[1], statToBuf(st))
	return 0
}

func sysReadlinkat(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	path, err := readCString(m, a[1])
	if err != nil {
		return -EFAULT
	}
	target, rc := rt.VFS.Readlink(path)
	if rc != 0 {
		return int64(rc)
	}
	n := int(a[3])
	if n > len(target) {
		n = len(target)
	}
	writeOut(m, a[2], []byte(target[:n]))
	return int64(n)
}

func sysFaccessat(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	path, err := readCString(m, a[1])
	if err != nil {
		return -EFAULT
	}
	_, rc := rt.VFS.Stat(path)
	return int64(rc)
}

func sysStatx(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	path, err := readCString(m, a[1])
	if err != nil {
		return -EFAULT
	}
	st, rc := rt.VFS.Stat(path)
	if rc != 0 {
		return int64(rc)
	}
	buf := make([]byte, 256)
	putU64(buf[40:48], uint64(st.Size))
	writeOut(m, a[4], buf)
	return 0
}

func sysMkdirat(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	path, err := readCString(m, a[1])
	if err != nil {
		return -EFAULT
	}
	return int64(rt.VFS.Mkdir(path, fs.FileMode(a[2]&0o7777)))
}

func sysUnlinkat(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	const atRemoveDir = 0x200
	path, err := readCString(m, a[1])
	if err != nil {
		return -EFAULT
	}
	return int64(rt.VFS.Unlink(path, a[2]&atRemoveDir != 0))
}

func sysSymlinkat(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	target, err1 := readCString(m, a[0])
	newpath, err2 := readCString(m, a[2])
	if err1 != nil || err2 != nil {
		return -EFAULT
	}
	return int64(rt.VFS.Symlink(target, newpath))
}

func sysLinkat(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	oldpath, err1 := readCString(m, a[1])
	newpath, err2 := readCString(m, a[3])
	if err1 != nil || err2 != nil {
		return -EFAULT
	}
	return int64(rt.VFS.Link(oldpath, newpath))
}

func sysRenameat(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	oldpath, err1 := readCString(m, a[1])
	newpath, err2 := readCString(m, a[3])
	if err1 != nil || err2 != nil {
		return -EFAULT
	}
	return int64(rt.VFS.Rename(oldpath, newpath))
}

func sysChdir(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	path, err := readCString(m, a[0])
	if err != nil {
		return -EFAULT
	}
	return int64(rt.VFS.Chdir(path))
}

// ioctl/fcntl constants (a small closed domain, kept as named values per
// spec.md §9).
const (
	tIOCGWINSZ = 0x5413
	tCGETS     = 0x5401
	fIONBIO    = 0x5421

	fDUPFD         = 0
	fGETFD         = 1
	fSETFD         = 2
	fGETFL         = 3
	fSETFL         = 4
	fDUPFD_CLOEXEC = 1030
)

func sysIoctl(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	switch a[1] {
	case tIOCGWINSZ:
		cols, rows := rt.Bridge.TerminalSize()
		buf := make([]byte, 8)
		buf[0], buf[1] = byte(rows), byte(rows>>8)
		buf[2], buf[3] = byte(cols), byte(cols>>8)
		writeOut(m, a[2], buf)
		return 0
	case tCGETS:
		writeOut(m, a[2], make([]byte, 44))
		return 0
	case fIONBIO:
		return 0
	default:
		if a[1] >= 0x5402 && a[1] <= 0x5410 { // TCSETS family
			return 0
		}
		return -ENOTSUP
	}
}

func sysFcntl(rt *Runtime, a [6]uint64) int64 {
	switch a[1] {
	case fDUPFD, fDUPFD_CLOEXEC:
		newfd, rc := rt.VFS.Dup(int(a[0]))
		if rc != 0 {
			return int64(rc)
		}
		return int64(newfd)
	case fGETFD, fSETFD, fGETFL, fSETFL:
		return 0
	}
	return 0
}

func sysSendfile(rt *Runtime, m rvmachine.Machine, a [6]uint64) int64 {
	out, in := int(a[0]), int(a[1])
	offsetPtr := a[2]
	count := a[3]
	if count > 64*1024 {
		count = 64 * 1024
	}
	buf := make([]byte, count)

	var n int
	var rc int
	if offsetPtr != 0 {
		off, err := readU64(m, offsetPtr)
		if err != nil {
			return -EFAULT
		}
		n, rc = rt.VFS.Pread(in, buf, int64(off))
		if rc == 0 {
			putU64Write(m, offsetPtr, off+uint64(n))
		}
	} else {
		n, rc = rt.VFS.Read(in, buf)
	}
	if rc != 0 {
		return int64(rc)
	}

	if (out == 1 || out == 2) && !fdRedirected(rt, out) {
		emitOutput(rt, buf[:n])
		return int64(n)
	}
	wn, wrc := rt.VFS.Write(out, buf[:n])
	if wrc != 0 {
		return int64(wrc)
	}
	return int64(wn)
}

// emitOutput forwards guest fd 1/2 writes to the launcher's output
// callback, falling back to structured logging when none is wired
// (e.g. in unit tests that build a Runtime directly).
func emitOutput(rt *Runtime, buf []byte) {
	if rt.Output != nil {
		rt.Output(append([]byte(nil), buf...))
		return
	}
	rt.Logger.Info("guest output", "bytes", len(buf))
}

func putU64Write(m rvmachine.Machine, addr uint64, v uint64) {
	buf := make([]byte, 8)
	putU64(buf, v)
	m.WriteAt(addr, buf)
}
