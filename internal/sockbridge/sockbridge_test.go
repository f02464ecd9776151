package sockbridge

import "testing"

func TestSocketRejectsUnsupportedDomain(t *testing.T) {
	b := New()
	_, rc := b.Socket(999, SockStream, 0)
	if rc == 0 {
		t.Fatal("expected error for unsupported domain")
	}
}

func TestSocketRejectsUnsupportedType(t *testing.T) {
	b := New()
	_, rc := b.Socket(AFInet, 5, 0)
	if rc == 0 {
		t.Fatal("expected error for unsupported socket type")
	}
}

func TestSocketAllocatesFDAboveBase(t *testing.T) {
	b := New()
	fd, rc := b.Socket(AFInet, SockDgram, 0)
	if rc != 0 {
		t.Fatalf("Socket: rc=%d", rc)
	}
	if fd < FDBase {
		t.Fatalf("fd = %d, want >= %d", fd, FDBase)
	}
	if !b.IsSocketFD(fd) {
		t.Fatal("IsSocketFD should be true for allocated socket")
	}
	if rc := b.Close(fd); rc != 0 {
		t.Fatalf("Close: rc=%d", rc)
	}
	if b.IsSocketFD(fd) {
		t.Fatal("IsSocketFD should be false after Close")
	}
}

func TestBindListenAcceptOnLoopback(t *testing.T) {
	b := New()
	lfd, rc := b.Socket(AFInet, SockStream, 0)
	if rc != 0 {
		t.Fatalf("Socket: rc=%d", rc)
	}
	// 0.0.0.0:0 -> ephemeral port, loopback-scoped.
	addr := make([]byte, 16)
	addr[0] = 2 // AF_INET
	if rc := b.Bind(lfd, addr); rc != 0 {
		t.Fatalf("Bind: rc=%d", rc)
	}
	if rc := b.Listen(lfd, 1); rc != 0 {
		t.Fatalf("Listen: rc=%d", rc)
	}

	// No pending connection: Accept should return EAGAIN, not block.
	if _, rc := b.Accept(lfd, false); rc != -11 { // -EAGAIN
		t.Fatalf("Accept with nothing pending: rc=%d", rc)
	}
}

func TestGetSockOptSOErrorReturnsZero(t *testing.T) {
	b := New()
	fd, _ := b.Socket(AFInet, SockDgram, 0)
	val, rc := b.GetSockOpt(fd, 1, 4)
	if rc != 0 || val != 0 {
		t.Fatalf("GetSockOpt SO_ERROR: val=%d rc=%d", val, rc)
	}
}

func TestGetPeerNameReturnsENOSYS(t *testing.T) {
	b := New()
	fd, _ := b.Socket(AFInet, SockDgram, 0)
	_, rc := b.GetPeerName(fd)
	if rc != -38 { // -ENOSYS
		t.Fatalf("GetPeerName: rc=%d", rc)
	}
}
