package iohost

import (
	"testing"
	"time"
)

func TestTryReadStdinWouldBlock(t *testing.T) {
	b := New()
	buf := make([]byte, 8)
	if n := b.TryReadStdin(buf); n != -1 {
		t.Fatalf("expected -1 (would block), got %d", n)
	}
}

func TestTryReadStdinEOF(t *testing.T) {
	b := New()
	b.SetEOF()
	buf := make([]byte, 8)
	if n := b.TryReadStdin(buf); n != 0 {
		t.Fatalf("expected 0 at EOF, got %d", n)
	}
}

func TestPushAndReadStdin(t *testing.T) {
	b := New()
	b.PushStdin([]byte("echo hi\n"))
	buf := make([]byte, 4)
	n := b.TryReadStdin(buf)
	if n != 4 || string(buf[:n]) != "echo" {
		t.Fatalf("got n=%d buf=%q", n, buf[:n])
	}
	rest := make([]byte, 16)
	n = b.TryReadStdin(rest)
	if string(rest[:n]) != " hi\n" {
		t.Fatalf("got %q", rest[:n])
	}
}

func TestWaitForInputWakesOnPush(t *testing.T) {
	b := New()
	b.SetRunning(true)
	done := make(chan struct{})
	go func() {
		b.WaitForInput()
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	b.PushStdin([]byte("x"))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForInput did not wake up")
	}
}

func TestWaitForInputWakesOnStop(t *testing.T) {
	b := New()
	b.SetRunning(true)
	done := make(chan struct{})
	go func() {
		b.WaitForInput()
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	b.SetRunning(false)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForInput did not wake up on stop")
	}
}

func TestTerminalSize(t *testing.T) {
	b := New()
	cols, rows := b.TerminalSize()
	if cols != 80 || rows != 24 {
		t.Fatalf("unexpected default size %dx%d", cols, rows)
	}
	b.SetTerminalSize(120, 40)
	cols, rows = b.TerminalSize()
	if cols != 120 || rows != 40 {
		t.Fatalf("unexpected size after set %dx%d", cols, rows)
	}
}
