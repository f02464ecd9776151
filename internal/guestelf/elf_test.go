package guestelf

import (
	"encoding/binary"
	"testing"

	"github.com/friscy-go/friscy/internal/rvmachine"
)

// buildELF assembles a minimal two-segment RISC-V ET_EXEC image: one
// read+exec "text" segment with file content, one read+write "data" segment
// whose memsz exceeds filesz (BSS).
func buildELF(t *testing.T) []byte {
	t.Helper()
	const phoff = 64
	const phentsize = 56
	const phnum = 2

	text := []byte{0x01, 0x02, 0x03, 0x04}
	data := []byte{0xAA, 0xBB}

	textOff := uint64(phoff + phentsize*phnum)
	dataOff := textOff + uint64(len(text))

	buf := make([]byte, dataOff+uint64(len(data)))
	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2 // 64-bit
	binary.LittleEndian.PutUint16(buf[16:18], ET_EXEC)
	binary.LittleEndian.PutUint16(buf[18:20], EM_RISCV)
	binary.LittleEndian.PutUint64(buf[24:32], 0x10004) // entry
	binary.LittleEndian.PutUint64(buf[32:40], phoff)
	binary.LittleEndian.PutUint16(buf[54:56], phentsize)
	binary.LittleEndian.PutUint16(buf[56:58], phnum)

	writePhdr := func(off uint64, typ, flags uint32, fileOff, vaddr, filesz, memsz uint64) {
		b := buf[off : off+56]
		binary.LittleEndian.PutUint32(b[0:4], typ)
		binary.LittleEndian.PutUint32(b[4:8], flags)
		binary.LittleEndian.PutUint64(b[8:16], fileOff)
		binary.LittleEndian.PutUint64(b[16:24], vaddr)
		binary.LittleEndian.PutUint64(b[24:32], vaddr)
		binary.LittleEndian.PutUint64(b[32:40], filesz)
		binary.LittleEndian.PutUint64(b[40:48], memsz)
		binary.LittleEndian.PutUint64(b[48:56], 0x1000)
	}
	writePhdr(phoff, PT_LOAD, PF_R|PF_X, textOff, 0x10000, uint64(len(text)), uint64(len(text)))
	writePhdr(phoff+phentsize, PT_LOAD, PF_R|PF_W, dataOff, 0x20000, uint64(len(data)), uint64(len(data))+4096)

	copy(buf[textOff:], text)
	copy(buf[dataOff:], data)
	return buf
}

func TestParseRejectsBadMagic(t *testing.T) {
	_, err := Parse([]byte("not an elf"))
	if err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestParseExtractsEntryAndType(t *testing.T) {
	blob := buildELF(t)
	info, err := Parse(blob)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if info.EntryPoint != 0x10004 {
		t.Fatalf("entry = 0x%x", info.EntryPoint)
	}
	if info.Type != ET_EXEC {
		t.Fatalf("type = %d", info.Type)
	}
	if info.IsDynamic {
		t.Fatal("expected static (no PT_INTERP) executable")
	}
}

func TestGetLoadAndWritableRange(t *testing.T) {
	blob := buildELF(t)
	lo, hi, err := GetLoadRange(blob)
	if err != nil {
		t.Fatalf("GetLoadRange: %v", err)
	}
	if lo != 0x10000 || hi != 0x20000+2+4096 {
		t.Fatalf("load range = [0x%x, 0x%x)", lo, hi)
	}

	wlo, whi, err := GetWritableRange(blob)
	if err != nil {
		t.Fatalf("GetWritableRange: %v", err)
	}
	if wlo != 0x20000 || whi != 0x20000+2+4096 {
		t.Fatalf("writable range = [0x%x, 0x%x)", wlo, whi)
	}
}

func TestLoadCopiesSegmentsZeroesBSSAndMergesPermissions(t *testing.T) {
	blob := buildELF(t)
	m := rvmachine.NewSim(1 << 20)

	adjust, err := Load(m, blob, 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if adjust != 0 {
		t.Fatalf("ET_EXEC should have zero base_adjust, got %d", adjust)
	}

	got := make([]byte, 4)
	if err := m.ReadAt(0x10000, got); err != nil {
		t.Fatalf("ReadAt text: %v", err)
	}
	if got[0] != 0x01 || got[3] != 0x04 {
		t.Fatalf("text segment not copied correctly: %v", got)
	}
	if attr := m.PageAttrAt(0x10000); !attr.Read || !attr.Exec || attr.Write {
		t.Fatalf("text page attrs = %+v, want R-X", attr)
	}

	gotData := make([]byte, 2)
	if err := m.ReadAt(0x20000, gotData); err != nil {
		t.Fatalf("ReadAt data: %v", err)
	}
	if gotData[0] != 0xAA || gotData[1] != 0xBB {
		t.Fatalf("data segment not copied correctly: %v", gotData)
	}
	if attr := m.PageAttrAt(0x20000); !attr.Read || !attr.Write || attr.Exec {
		t.Fatalf("data page attrs = %+v, want RW-", attr)
	}

	bss := make([]byte, 8)
	if err := m.ReadAt(0x20002, bss); err != nil {
		t.Fatalf("ReadAt bss: %v", err)
	}
	for _, b := range bss {
		if b != 0 {
			t.Fatalf("BSS not zeroed: %v", bss)
		}
	}
}

func TestLoadAppliesPIEBaseAdjust(t *testing.T) {
	blob := buildELF(t)
	// Flip ET_EXEC to ET_DYN so Load treats requestedBase as a real PIE load.
	binary.LittleEndian.PutUint16(blob[16:18], ET_DYN)

	m := rvmachine.NewSim(1 << 25) // covers the relocated segments up to 0x1011002
	const requested = 0x1000000
	adjust, err := Load(m, blob, requested)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	wantAdjust := uint64(requested - 0x10000)
	if adjust != wantAdjust {
		t.Fatalf("base_adjust = 0x%x, want 0x%x", adjust, wantAdjust)
	}

	got := make([]byte, 4)
	if err := m.ReadAt(0x10000+wantAdjust, got); err != nil {
		t.Fatalf("ReadAt relocated text: %v", err)
	}
	if got[0] != 0x01 {
		t.Fatalf("text not loaded at relocated address: %v", got)
	}
}
