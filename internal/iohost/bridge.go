// Package iohost implements the host-I/O bridge (spec component C1): the
// thread-safe handoff point between the host UI thread (which pushes stdin
// bytes and reads terminal size) and the execution thread (which drains
// stdin and blocks when none is available).
package iohost

import "sync"

// Bridge is shared between the host UI thread and the guest execution
// thread. All fields are guarded by mu; Cond is used to wake a thread
// blocked in WaitForInput.
type Bridge struct {
	mu   sync.Mutex
	cond *sync.Cond

	queue   []byte
	eof     bool
	running bool
	waiting bool

	cols, rows int
}

// New returns a Bridge in the initial (not running) state with a default
// 80x24 terminal size.
func New() *Bridge {
	b := &Bridge{cols: 80, rows: 24}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// PushStdin appends bytes to the stdin queue and wakes any waiter. It never
// blocks beyond acquiring the mutex.
func (b *Bridge) PushStdin(p []byte) {
	if len(p) == 0 {
		return
	}
	b.mu.Lock()
	b.queue = append(b.queue, p...)
	b.mu.Unlock()
	b.cond.Broadcast()
}

// SetEOF marks the stdin stream as exhausted; subsequent reads of an empty
// queue return 0 instead of "would block".
func (b *Bridge) SetEOF() {
	b.mu.Lock()
	b.eof = true
	b.mu.Unlock()
	b.cond.Broadcast()
}

// TryReadStdin copies up to len(buf) bytes from the head of the queue.
// Returns the count copied (>=0), 0 if the queue is empty and EOF is set,
// or -1 if the queue is empty and EOF is not set ("would block").
func (b *Bridge) TryReadStdin(buf []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) == 0 {
		if b.eof {
			return 0
		}
		return -1
	}

	n := copy(buf, b.queue)
	b.queue = b.queue[n:]
	return n
}

// HasStdinData reports whether the queue currently holds unread bytes.
func (b *Bridge) HasStdinData() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue) > 0
}

// IsEOF reports whether stdin has been marked exhausted.
func (b *Bridge) IsEOF() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.eof
}

// SetRunning updates the running flag and, when cleared, wakes any waiter so
// the execution loop can observe the shutdown request.
func (b *Bridge) SetRunning(running bool) {
	b.mu.Lock()
	b.running = running
	b.mu.Unlock()
	b.cond.Broadcast()
}

// Running reports whether the bridge believes the execution loop should
// keep running.
func (b *Bridge) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// SetTerminalSize updates the (cols, rows) pair reported by TIOCGWINSZ.
func (b *Bridge) SetTerminalSize(cols, rows int) {
	b.mu.Lock()
	b.cols, b.rows = cols, rows
	b.mu.Unlock()
}

// TerminalSize returns the current (cols, rows) pair.
func (b *Bridge) TerminalSize() (cols, rows int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cols, b.rows
}

// WaitForInput blocks until stdin has data, EOF is set, or running becomes
// false. It is called by the execution loop after a stdin-blocking rewind.
func (b *Bridge) WaitForInput() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.waiting = true
	for len(b.queue) == 0 && !b.eof && b.running {
		b.cond.Wait()
	}
	b.waiting = false
}

// Waiting reports whether the execution thread is currently blocked in
// WaitForInput. Exposed for diagnostics and tests.
func (b *Bridge) Waiting() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.waiting
}

// Reset clears the queue and all flags, returning the bridge to its initial
// state (terminal size is preserved, mirroring a real TTY surviving a guest
// restart).
func (b *Bridge) Reset() {
	b.mu.Lock()
	b.queue = nil
	b.eof = false
	b.running = false
	b.waiting = false
	b.mu.Unlock()
	b.cond.Broadcast()
}
