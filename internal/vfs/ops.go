package vfs

import (
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"
)

// Stat mirrors the fields a syscall handler needs to populate struct stat.
type Stat struct {
	Mode  fs.FileMode
	Kind  Kind
	Size  int64
	Uid   int
	Gid   int
	Mtime time.Time
}

// Open implements open(2)/openat(2) semantics against the VFS (spec.md
// §4.2). Returns a new fd, or a negative errno.
func (f *FS) Open(p string, flags OpenFlags, mode fs.FileMode) (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if flags&ODirectory != 0 {
		ent, rc := f.resolve(p)
		if rc != 0 {
			return 0, rc
		}
		if ent.Kind != KindDirectory {
			return 0, errno(ENOTDIR)
		}
		dh := &DirHandle{Entry: ent, Names: ent.sortedChildNames()}
		return f.fds.installDir(3, dh), 0
	}

	ent, rc := f.resolve(p)
	if rc != 0 {
		if rc != errno(ENOENT) || flags&OCreat == 0 {
			return 0, rc
		}
		parent, name, rc2 := f.resolveParent(p)
		if rc2 != 0 {
			return 0, rc2
		}
		ent = newEntry(name, KindRegular, mode&0o7777)
		parent.setChild(name, ent)
	} else if flags&(OCreat|OExcl) == (OCreat | OExcl) {
		return 0, errno(EEXIST)
	}

	if ent.Kind == KindDirectory {
		// A directory may be opened as a regular-file fd (e.g. for fstat or
		// fchdir); it is rewritten to a dir handle lazily on first
		// getdents64, per spec.md §4.2.
	}

	if flags&OTrunc != 0 && ent.Kind == KindRegular {
		ent.mu.Lock()
		ent.Content = nil
		ent.mu.Unlock()
	}

	fh := &FileHandle{Entry: ent, Flags: flags, Path: p}
	if flags&OAppend != 0 {
		fh.Offset = ent.Size()
	}
	return f.fds.installFile(3, fh), 0
}

// Close closes fd. Closing a regular/dir fd never fails in this model.
func (f *FS) Close(n int) int {
	f.fds.remove(n)
	return 0
}

// Dup duplicates oldfd onto the lowest unused fd >= 3.
func (f *FS) Dup(oldfd int) (int, int) {
	if oldfd < 0 {
		return 0, errno(EBADF)
	}
	e, ok := f.fds.get(oldfd)
	if !ok {
		return 0, errno(EBADF)
	}
	return f.dupInto(e, f.fds.lowestFreeLocked(3)), 0
}

func (t *FDTable) lowestFreeLocked(min int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lowestFree(min)
}

// dupInto installs a copy of e at target. A file fd gets its own FileHandle
// on the same Entry, so its offset is independent of e's and starts where a
// fresh open would put it: 0, or the end of the file under OAppend.
func (f *FS) dupInto(e *fd, target int) int {
	cp := *e
	if e.file != nil {
		fh := &FileHandle{Entry: e.file.Entry, Flags: e.file.Flags, Path: e.file.Path}
		if fh.Flags&OAppend != 0 {
			fh.Offset = fh.Entry.Size()
		}
		cp.file = fh
	}
	f.fds.mu.Lock()
	defer f.fds.mu.Unlock()
	f.fds.table[target] = &cp
	return target
}

// Dup2 duplicates oldfd onto newfd, closing newfd first. dup2(fd, fd)
// returns -EINVAL per spec.md §3.
func (f *FS) Dup2(oldfd, newfd int) (int, int) {
	if oldfd == newfd {
		return 0, errno(EINVAL)
	}
	e, ok := f.fds.get(oldfd)
	if !ok {
		return 0, errno(EBADF)
	}
	f.fds.remove(newfd)
	return f.dupInto(e, newfd), 0
}

// Read reads up to len(buf) bytes from fd at its current offset, advancing
// it. Reading a pipe read-end drains from the head of the shared buffer.
func (f *FS) Read(n int, buf []byte) (int, int) {
	e, ok := f.fds.get(n)
	if !ok || e.file == nil {
		return 0, errno(EBADF)
	}
	fh := e.file
	ent := fh.Entry
	ent.mu.Lock()
	defer ent.mu.Unlock()

	if ent.Kind == KindFifo {
		m := copy(buf, ent.Content)
		ent.Content = ent.Content[m:]
		return m, 0
	}

	if fh.Offset >= int64(len(ent.Content)) {
		return 0, 0
	}
	m := copy(buf, ent.Content[fh.Offset:])
	fh.Offset += int64(m)
	return m, 0
}

// Pread reads without disturbing the fd's offset.
func (f *FS) Pread(n int, buf []byte, off int64) (int, int) {
	e, ok := f.fds.get(n)
	if !ok || e.file == nil {
		return 0, errno(EBADF)
	}
	ent := e.file.Entry
	ent.mu.Lock()
	defer ent.mu.Unlock()
	if off >= int64(len(ent.Content)) {
		return 0, 0
	}
	m := copy(buf, ent.Content[off:])
	return m, 0
}

// Write appends/overwrites at fd's current offset, extending the file as
// needed, and advances the offset.
func (f *FS) Write(n int, buf []byte) (int, int) {
	e, ok := f.fds.get(n)
	if !ok || e.file == nil {
		return 0, errno(EBADF)
	}
	fh := e.file
	ent := fh.Entry
	ent.mu.Lock()
	defer ent.mu.Unlock()

	if ent.Kind == KindFifo {
		ent.Content = append(ent.Content, buf...)
		return len(buf), 0
	}

	end := fh.Offset + int64(len(buf))
	if end > int64(len(ent.Content)) {
		grown := make([]byte, end)
		copy(grown, ent.Content)
		ent.Content = grown
	}
	copy(ent.Content[fh.Offset:end], buf)
	fh.Offset = end
	return len(buf), 0
}

// Pwrite writes without disturbing the fd's offset.
func (f *FS) Pwrite(n int, buf []byte, off int64) (int, int) {
	e, ok := f.fds.get(n)
	if !ok || e.file == nil {
		return 0, errno(EBADF)
	}
	ent := e.file.Entry
	ent.mu.Lock()
	defer ent.mu.Unlock()
	end := off + int64(len(buf))
	if end > int64(len(ent.Content)) {
		grown := make([]byte, end)
		copy(grown, ent.Content)
		ent.Content = grown
	}
	copy(ent.Content[off:end], buf)
	return len(buf), 0
}

// Lseek repositions fd's offset per whence (0=SEEK_SET,1=SEEK_CUR,2=SEEK_END).
func (f *FS) Lseek(n int, off int64, whence int) (int64, int) {
	e, ok := f.fds.get(n)
	if !ok || e.file == nil {
		return 0, errno(EBADF)
	}
	fh := e.file
	var base int64
	switch whence {
	case 0:
		base = 0
	case 1:
		base = fh.Offset
	case 2:
		base = fh.Entry.Size()
	default:
		return 0, errno(EINVAL)
	}
	newOff := base + off
	if newOff < 0 {
		return 0, errno(EINVAL)
	}
	fh.Offset = newOff
	return newOff, 0
}

// Ftruncate sets fd's backing content length to size, zero-filling growth.
func (f *FS) Ftruncate(n int, size int64) int {
	e, ok := f.fds.get(n)
	if !ok || e.file == nil {
		return errno(EBADF)
	}
	ent := e.file.Entry
	ent.mu.Lock()
	defer ent.mu.Unlock()
	if size <= int64(len(ent.Content)) {
		ent.Content = ent.Content[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, ent.Content)
		ent.Content = grown
	}
	return 0
}

// Mkdir creates a new directory; the parent must already exist.
func (f *FS) Mkdir(p string, mode fs.FileMode) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	parent, name, rc := f.resolveParent(p)
	if rc != 0 {
		return rc
	}
	if _, ok := parent.child(name); ok {
		return errno(EEXIST)
	}
	parent.setChild(name, newEntry(name, KindDirectory, mode&0o7777))
	return 0
}

// Unlink removes a file, or a directory when removeDir is set
// (AT_REMOVEDIR). A non-empty directory fails with ENOTEMPTY; unlinking a
// directory without removeDir fails with EISDIR.
func (f *FS) Unlink(p string, removeDir bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	parent, name, rc := f.resolveParent(p)
	if rc != 0 {
		return rc
	}
	target, ok := parent.child(name)
	if !ok {
		return errno(ENOENT)
	}
	if target.Kind == KindDirectory {
		if !removeDir {
			return errno(EISDIR)
		}
		if target.childCount() > 0 {
			return errno(ENOTEMPTY)
		}
	} else if removeDir {
		return errno(ENOTDIR)
	}
	parent.removeChild(name)
	return 0
}

// Symlink creates a symlink at newpath pointing at target.
func (f *FS) Symlink(target, newpath string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	parent, name, rc := f.resolveParent(newpath)
	if rc != 0 {
		return rc
	}
	if _, ok := parent.child(name); ok {
		return errno(EEXIST)
	}
	ent := newEntry(name, KindSymlink, 0o777)
	ent.Target = target
	parent.setChild(name, ent)
	return 0
}

// Link creates a hardlink: newpath's directory entry points at the same
// Entry as oldpath (shared ownership, per spec.md §9).
func (f *FS) Link(oldpath, newpath string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	target, rc := f.resolve(oldpath)
	if rc != 0 {
		return rc
	}
	if target.Kind == KindDirectory {
		return errno(EPERM)
	}
	parent, name, rc := f.resolveParent(newpath)
	if rc != 0 {
		return rc
	}
	if _, ok := parent.child(name); ok {
		return errno(EEXIST)
	}
	parent.setChild(name, target)
	return 0
}

// Rename moves oldpath to newpath.
func (f *FS) Rename(oldpath, newpath string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	oldParent, oldName, rc := f.resolveParent(oldpath)
	if rc != 0 {
		return rc
	}
	ent, ok := oldParent.child(oldName)
	if !ok {
		return errno(ENOENT)
	}
	newParent, newName, rc := f.resolveParent(newpath)
	if rc != 0 {
		return rc
	}
	oldParent.removeChild(oldName)
	newParent.removeChild(newName)
	ent.mu.Lock()
	ent.Name = newName
	ent.mu.Unlock()
	newParent.setChild(newName, ent)
	return 0
}

// Readlink returns a symlink's target.
func (f *FS) Readlink(p string) (string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ent, rc := f.resolveNoFollow(p)
	if rc != 0 {
		return "", rc
	}
	if ent.Kind != KindSymlink {
		return "", errno(EINVAL)
	}
	return ent.Target, 0
}

func toStat(e *Entry) Stat {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stat{Mode: e.Mode, Kind: e.Kind, Size: int64(len(e.Content)), Uid: e.Uid, Gid: e.Gid, Mtime: e.Mtime}
}

// Stat follows symlinks; Lstat does not.
func (f *FS) Stat(p string) (Stat, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ent, rc := f.resolve(p)
	if rc != 0 {
		return Stat{}, rc
	}
	return toStat(ent), 0
}

func (f *FS) Lstat(p string) (Stat, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ent, rc := f.resolveNoFollow(p)
	if rc != 0 {
		return Stat{}, rc
	}
	return toStat(ent), 0
}

// Fstat stats an already-open fd.
func (f *FS) Fstat(n int) (Stat, int) {
	e, ok := f.fds.get(n)
	if !ok {
		return Stat{}, errno(EBADF)
	}
	if e.dir != nil {
		return toStat(e.dir.Entry), 0
	}
	return toStat(e.file.Entry), 0
}

// Chdir changes the current working directory.
func (f *FS) Chdir(p string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	ent, rc := f.resolve(p)
	if rc != 0 {
		return rc
	}
	if ent.Kind != KindDirectory {
		return errno(ENOTDIR)
	}
	comps := f.splitComponents(p)
	f.cwd = "/" + strings.Join(comps, "/")
	return 0
}

// Getcwd returns the current working directory.
func (f *FS) Getcwd() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cwd
}

// OpenPipe allocates a fd over a freshly created fifo-backed Entry and
// returns it, for use by pipe2/socketpair.
func (f *FS) OpenPipe() int {
	ent := newEntry("pipe", KindFifo, 0o600)
	fh := &FileHandle{Entry: ent}
	return f.fds.installFile(3, fh)
}

// OpenPipeOtherEnd installs a second fd over the same pipe Entry as an
// existing pipe fd, for the read/write-half pairing pipe2 needs.
func (f *FS) OpenPipeOtherEnd(existing int) (int, int) {
	e, ok := f.fds.get(existing)
	if !ok || e.file == nil {
		return 0, errno(EBADF)
	}
	fh := &FileHandle{Entry: e.file.Entry}
	return f.fds.installFile(3, fh), 0
}

func joinPath(base, name string) string {
	return path.Clean(base + "/" + name)
}

// FDs exposes the underlying fd table to components (cooperative fork,
// syscall dispatch) that need to snapshot or restrict it directly.
func (f *FS) FDs() *FDTable { return f.fds }

// ReadFile resolves p (following symlinks) and returns its full content,
// for the ELF loader and execve, which need the whole binary up front
// rather than through the fd/offset interface.
func (f *FS) ReadFile(p string) ([]byte, error) {
	f.mu.Lock()
	ent, rc := f.resolve(p)
	f.mu.Unlock()
	if rc != 0 {
		return nil, fmt.Errorf("vfs: ReadFile %s: errno %d", p, -rc)
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.Kind != KindRegular {
		return nil, fmt.Errorf("vfs: ReadFile %s: not a regular file", p)
	}
	out := make([]byte, len(ent.Content))
	copy(out, ent.Content)
	return out, nil
}

// ResolveSymlink follows p through any symlinks and returns the resolved
// path's canonical form (same resolution execve needs before comparing
// "same binary" identity).
func (f *FS) ResolveSymlink(p string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	comps := f.splitComponents(p)
	cur := f.root
	var resolved []string
	for i, c := range comps {
		next, ok := cur.child(c)
		if !ok {
			return "", fmt.Errorf("vfs: ResolveSymlink %s: not found", p)
		}
		if next.Kind == KindSymlink {
			target := next.Target
			var rest string
			if i+1 < len(comps) {
				rest = "/" + strings.Join(comps[i+1:], "/")
			}
			if strings.HasPrefix(target, "/") {
				return f.ResolveSymlink(target + rest)
			}
			return f.ResolveSymlink("/" + strings.Join(resolved, "/") + "/" + target + rest)
		}
		resolved = append(resolved, c)
		cur = next
	}
	return "/" + strings.Join(resolved, "/"), nil
}
