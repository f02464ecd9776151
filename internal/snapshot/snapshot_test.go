package snapshot

import (
	"bytes"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	snap := Snapshot{
		InstructionCounter: 12345,
		Registers:          []byte{1, 2, 3, 4, 5, 6, 7, 8},
		Arena:              bytes.Repeat([]byte{0xAB}, 4096),
	}
	var buf bytes.Buffer
	if err := Write(&buf, snap); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(&buf, len(snap.Registers), len(snap.Arena))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got.Registers, snap.Registers) {
		t.Fatalf("registers mismatch")
	}
	if !bytes.Equal(got.Arena, snap.Arena) {
		t.Fatalf("arena mismatch")
	}
	if got.InstructionCounter != snap.InstructionCounter {
		t.Fatalf("instruction counter mismatch")
	}
}

func TestReadRejectsSizeMismatch(t *testing.T) {
	snap := Snapshot{Registers: make([]byte, 8), Arena: make([]byte, 100)}
	var buf bytes.Buffer
	Write(&buf, snap)

	if _, err := Read(&buf, 8, 99); err == nil {
		t.Fatal("expected error on arena_size mismatch")
	}
}

func TestReadRejectsBadMagic(t *testing.T) {
	buf := bytes.NewBuffer(make([]byte, 32))
	if _, err := Read(buf, 0, 0); err == nil {
		t.Fatal("expected error on bad magic")
	}
}
