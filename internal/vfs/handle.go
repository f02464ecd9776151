package vfs

import "sync"

// OpenFlags mirror the subset of Linux open(2) flags the spec requires.
type OpenFlags int

const (
	OCreat OpenFlags = 1 << iota
	OExcl
	OTrunc
	OAppend
	ODirectory
	OWronly
	ORdwr
)

// FileHandle references an Entry plus a byte offset and the flags used to
// open it. Multiple handles may reference the same Entry (dup, pipe
// halves, hardlink).
type FileHandle struct {
	Entry  *Entry
	Offset int64
	Flags  OpenFlags
	Path   string // diagnostics only
}

// DirHandle references a directory Entry and a sorted snapshot of its
// children at open time, per spec.md §3's dirent-observation rule.
type DirHandle struct {
	Entry *Entry
	Names []string
	Pos   int
}

type fd struct {
	file *FileHandle
	dir  *DirHandle
}

// FDTable maps nonnegative integer fds to file or directory handles.
type FDTable struct {
	mu    sync.Mutex
	table map[int]*fd
}

func newFDTable() *FDTable {
	return &FDTable{table: make(map[int]*fd)}
}

// lowestFree returns the lowest fd >= min not currently allocated.
func (t *FDTable) lowestFree(min int) int {
	for i := min; ; i++ {
		if _, ok := t.table[i]; !ok {
			return i
		}
	}
}

func (t *FDTable) installFile(min int, fh *FileHandle) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.lowestFree(min)
	t.table[n] = &fd{file: fh}
	return n
}

func (t *FDTable) installDir(min int, dh *DirHandle) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.lowestFree(min)
	t.table[n] = &fd{dir: dh}
	return n
}

func (t *FDTable) installFileAt(n int, fh *FileHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.table[n] = &fd{file: fh}
}

func (t *FDTable) get(n int) (*fd, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.table[n]
	return e, ok
}

func (t *FDTable) remove(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.table, n)
}

// Snapshot returns the set of currently open fds, used by cooperative fork
// (spec.md §4.6) to record and later diff the open-fd set across a clone.
func (t *FDTable) Snapshot() map[int]bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[int]bool, len(t.table))
	for n := range t.table {
		out[n] = true
	}
	return out
}

// CloseNotIn closes every open fd not present in keep, undoing shell
// redirections performed by a fork child (spec.md §4.6 step 4).
func (t *FDTable) CloseNotIn(keep map[int]bool) {
	t.mu.Lock()
	var toClose []int
	for n := range t.table {
		if !keep[n] {
			toClose = append(toClose, n)
		}
	}
	for _, n := range toClose {
		delete(t.table, n)
	}
	t.mu.Unlock()
}
