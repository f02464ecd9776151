package launcher

import (
	"archive/tar"
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func buildStaticELF(entry, textVaddr uint64, text []byte) []byte {
	const phoff = 64
	buf := make([]byte, phoff+56+len(text))
	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2
	binary.LittleEndian.PutUint16(buf[16:18], 2)    // ET_EXEC
	binary.LittleEndian.PutUint16(buf[18:20], 0xF3) // EM_RISCV
	binary.LittleEndian.PutUint64(buf[24:32], entry)
	binary.LittleEndian.PutUint64(buf[32:40], phoff)
	binary.LittleEndian.PutUint16(buf[54:56], 56)
	binary.LittleEndian.PutUint16(buf[56:58], 1)

	ph := buf[phoff : phoff+56]
	binary.LittleEndian.PutUint32(ph[0:4], 1) // PT_LOAD
	binary.LittleEndian.PutUint32(ph[4:8], 7) // RWX, avoids fault-retry in this fixture
	binary.LittleEndian.PutUint64(ph[8:16], phoff+56)
	binary.LittleEndian.PutUint64(ph[16:24], textVaddr)
	binary.LittleEndian.PutUint64(ph[24:32], textVaddr)
	binary.LittleEndian.PutUint64(ph[32:40], uint64(len(text)))
	binary.LittleEndian.PutUint64(ph[40:48], uint64(len(text)))
	binary.LittleEndian.PutUint64(ph[48:56], 0x1000)

	copy(buf[phoff+56:], text)
	return buf
}

func buildRootfsTar(t *testing.T, entryPath string, blob []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{Name: entryPath[1:], Mode: 0o755, Size: int64(len(blob))}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("tar header: %v", err)
	}
	if _, err := tw.Write(blob); err != nil {
		t.Fatalf("tar write: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	return buf.Bytes()
}

func TestLauncherLifecycle(t *testing.T) {
	blob := buildStaticELF(0x10000, 0x10000, []byte{1, 2, 3, 4})
	tarBytes := buildRootfsTar(t, "/bin/hello", blob)

	var output bytes.Buffer
	l := New(WithArenaSize(1<<31), WithOutput(func(s string) { output.WriteString(s) }))

	if !l.Init() {
		t.Fatal("Init failed")
	}
	if !l.LoadRootfs(tarBytes, "/bin/hello", []string{"hello"}) {
		t.Fatalf("LoadRootfs failed: %v", l.LastError())
	}
	if !l.Start() {
		t.Fatal("Start failed")
	}
	l.SetTerminalSize(100, 40)
	l.SendInput([]byte("hello\n"))

	time.Sleep(20 * time.Millisecond)
	l.Stop()
	l.Wait()

	if l.IsRunning() {
		t.Fatal("still running after Stop/Wait")
	}
	if got := l.GetVersion(); got == "" {
		t.Fatal("GetVersion returned empty string")
	}
	l.Destroy()
}

func TestLauncherSnapshotRoundTrip(t *testing.T) {
	blob := buildStaticELF(0x10000, 0x10000, []byte{1, 2, 3, 4})
	tarBytes := buildRootfsTar(t, "/bin/hello", blob)

	l := New(WithArenaSize(1 << 31))
	l.Init()
	if !l.LoadRootfs(tarBytes, "/bin/hello", []string{"hello"}) {
		t.Fatalf("LoadRootfs failed: %v", l.LastError())
	}

	path := filepath.Join(t.TempDir(), "snap.bin")
	if !l.SaveSnapshot(path) {
		t.Fatalf("SaveSnapshot failed: %v", l.LastError())
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("snapshot file missing: %v", err)
	}

	l2 := New(WithArenaSize(1 << 31))
	l2.Init()
	if !l2.LoadRootfs(tarBytes, "/bin/hello", []string{"hello"}) {
		t.Fatalf("second LoadRootfs failed: %v", l2.LastError())
	}
	if !l2.RestoreSnapshot(path) {
		t.Fatalf("RestoreSnapshot failed: %v", l2.LastError())
	}
}
