package vfs

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

func dtype(k Kind) byte {
	switch k {
	case KindRegular:
		return unix.DT_REG
	case KindDirectory:
		return unix.DT_DIR
	case KindSymlink:
		return unix.DT_LNK
	case KindCharDev:
		return unix.DT_CHR
	case KindBlockDev:
		return unix.DT_BLK
	case KindFifo:
		return unix.DT_FIFO
	case KindSocket:
		return unix.DT_SOCK
	default:
		return unix.DT_UNKNOWN
	}
}

// Getdents64 emits Linux dirent64 records into buf starting at the dir
// handle's current iteration position, per spec.md §4.2. If a directory was
// opened as a regular-file fd, it is rewritten to a dir handle on first
// call here (spec.md §3).
func (f *FS) Getdents64(n int, buf []byte) (int, int) {
	e, ok := f.fds.get(n)
	if !ok {
		return 0, errno(EBADF)
	}
	if e.dir == nil {
		if e.file == nil || e.file.Entry.Kind != KindDirectory {
			return 0, errno(ENOTDIR)
		}
		dh := &DirHandle{Entry: e.file.Entry, Names: e.file.Entry.sortedChildNames()}
		f.fds.mu.Lock()
		f.fds.table[n] = &fd{dir: dh}
		f.fds.mu.Unlock()
		e, _ = f.fds.get(n)
	}

	dh := e.dir
	off := 0
	for dh.Pos < len(dh.Names) {
		name := dh.Names[dh.Pos]
		child, ok := dh.Entry.child(name)
		if !ok {
			dh.Pos++
			continue
		}
		reclen := alignUp(19+len(name)+1, 8)
		if off+reclen > len(buf) {
			break
		}
		ino := uint64(dh.Pos + 1)
		binary.LittleEndian.PutUint64(buf[off:], ino)
		binary.LittleEndian.PutUint64(buf[off+8:], ino)
		binary.LittleEndian.PutUint16(buf[off+16:], uint16(reclen))
		buf[off+18] = dtype(child.Kind)
		copy(buf[off+19:], name)
		buf[off+19+len(name)] = 0
		off += reclen
		dh.Pos++
	}
	return off, 0
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}
