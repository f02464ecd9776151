package vfs

import (
	"archive/tar"
	"bytes"
	"testing"
)

func buildTar(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	files := []struct {
		name string
		body string
		mode int64
	}{
		{"bin/", "", 0o755},
		{"bin/busybox", "#!fake-elf", 0o755},
	}
	for _, f := range files {
		hdr := &tar.Header{Name: f.name, Mode: f.mode, Size: int64(len(f.body))}
		if f.name[len(f.name)-1] == '/' {
			hdr.Typeflag = tar.TypeDir
		} else {
			hdr.Typeflag = tar.TypeReg
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(f.body)); err != nil {
			t.Fatal(err)
		}
	}
	symHdr := &tar.Header{Name: "bin/sh", Typeflag: tar.TypeSymlink, Linkname: "/bin/busybox"}
	if err := tw.WriteHeader(symHdr); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestLoadTarAndResolve(t *testing.T) {
	blob := buildTar(t)
	fsys, err := LoadTar(blob)
	if err != nil {
		t.Fatalf("LoadTar: %v", err)
	}
	st, rc := fsys.Stat("/bin/busybox")
	if rc != 0 {
		t.Fatalf("stat busybox: rc=%d", rc)
	}
	if st.Kind != KindRegular {
		t.Fatalf("expected regular file, got %v", st.Kind)
	}

	// symlink resolves through to busybox's content
	st, rc = fsys.Stat("/bin/sh")
	if rc != 0 {
		t.Fatalf("stat sh: rc=%d", rc)
	}
	if st.Size != int64(len("#!fake-elf")) {
		t.Fatalf("unexpected size via symlink: %d", st.Size)
	}

	lst, rc := fsys.Lstat("/bin/sh")
	if rc != 0 || lst.Kind != KindSymlink {
		t.Fatalf("lstat sh should see symlink, got kind=%v rc=%d", lst.Kind, rc)
	}
}

func TestSaveTarRoundTrip(t *testing.T) {
	blob := buildTar(t)
	fsys, err := LoadTar(blob)
	if err != nil {
		t.Fatal(err)
	}
	out, err := fsys.SaveTar()
	if err != nil {
		t.Fatalf("SaveTar: %v", err)
	}
	reloaded, err := LoadTar(out)
	if err != nil {
		t.Fatalf("LoadTar(SaveTar()): %v", err)
	}
	st1, _ := fsys.Stat("/bin/busybox")
	st2, rc := reloaded.Stat("/bin/busybox")
	if rc != 0 {
		t.Fatalf("missing busybox after round trip")
	}
	if st1.Size != st2.Size {
		t.Fatalf("size mismatch after round trip: %d vs %d", st1.Size, st2.Size)
	}
}
