// Package sockbridge implements the socket bridge (spec component C10):
// guest socket fds backed by real host sockets, glued into the syscall
// dispatch table's socket family handlers.
//
// Grounded on spec.md §4.8's Sockets section; uses golang.org/x/sys/unix
// for the socket syscalls themselves, consistent with the teacher's own
// heavy reliance on x/sys/unix for raw socket/ioctl access.
package sockbridge

import (
	"sync"

	"golang.org/x/sys/unix"
)

// FDBase is the first guest fd number reserved for sockets, disjoint from
// VFS regular fds and below epoll's fd range.
const FDBase = 1000

// EpollFDBase is the first guest fd number reserved for epoll instances.
const EpollFDBase = 2000

const (
	AFInet  = 2
	AFInet6 = 10

	SockStream = 1
	SockDgram  = 2

	SockNonblock = 0o4000
	SockCloexec  = 0o2000000
)

// Socket is one guest socket's state: the real host fd it is backed by,
// plus bookkeeping the handlers need.
type Socket struct {
	HostFD    int
	Domain    int
	Type      int
	NonBlock  bool
}

// Bridge owns the guest-fd-to-host-socket map.
type Bridge struct {
	mu      sync.Mutex
	sockets map[int]*Socket
	nextFD  int
}

// New returns an empty socket bridge.
func New() *Bridge {
	return &Bridge{sockets: make(map[int]*Socket), nextFD: FDBase}
}

// IsSocketFD reports whether fd falls in the socket fd range and is
// currently allocated.
func (b *Bridge) IsSocketFD(fd int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.sockets[fd]
	return ok
}

func (b *Bridge) get(fd int) (*Socket, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sockets[fd]
	return s, ok
}

// Socket implements socket(2): validates domain/type, strips
// SOCK_NONBLOCK/SOCK_CLOEXEC, opens a real host socket, and allocates a
// guest fd >= FDBase.
func (b *Bridge) Socket(domain, typ, protocol int) (int, int) {
	if domain != AFInet && domain != AFInet6 {
		return 0, -int(unix.EAFNOSUPPORT)
	}
	nonBlock := typ&SockNonblock != 0
	baseType := typ &^ (SockNonblock | SockCloexec)
	if baseType != SockStream && baseType != SockDgram {
		return 0, -int(unix.EPROTOTYPE)
	}

	sockType := unix.SOCK_STREAM
	if baseType == SockDgram {
		sockType = unix.SOCK_DGRAM
	}
	hostDomain := unix.AF_INET
	if domain == AFInet6 {
		hostDomain = unix.AF_INET6
	}

	hostFD, err := unix.Socket(hostDomain, sockType, protocol)
	if err != nil {
		return 0, -int(err.(unix.Errno))
	}
	if nonBlock {
		unix.SetNonblock(hostFD, true)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	fd := b.nextFD
	b.nextFD++
	b.sockets[fd] = &Socket{HostFD: hostFD, Domain: domain, Type: baseType, NonBlock: nonBlock}
	return fd, 0
}

// Close closes a socket fd's underlying host socket.
func (b *Bridge) Close(fd int) int {
	b.mu.Lock()
	s, ok := b.sockets[fd]
	if ok {
		delete(b.sockets, fd)
	}
	b.mu.Unlock()
	if !ok {
		return -int(unix.EBADF)
	}
	unix.Close(s.HostFD)
	return 0
}

func sockaddrFromBytes(domain int, addr []byte) (unix.Sockaddr, error) {
	if domain == AFInet6 {
		var sa unix.SockaddrInet6
		if len(addr) >= 28 {
			sa.Port = int(addr[2])<<8 | int(addr[3])
			copy(sa.Addr[:], addr[8:24])
		}
		return &sa, nil
	}
	var sa unix.SockaddrInet4
	if len(addr) >= 16 {
		sa.Port = int(addr[2])<<8 | int(addr[3])
		copy(sa.Addr[:], addr[4:8])
	}
	return &sa, nil
}

// Bind implements bind(2).
func (b *Bridge) Bind(fd int, addr []byte) int {
	s, ok := b.get(fd)
	if !ok {
		return -int(unix.EBADF)
	}
	sa, err := sockaddrFromBytes(s.Domain, addr)
	if err != nil {
		return -int(unix.EINVAL)
	}
	if err := unix.Bind(s.HostFD, sa); err != nil {
		return -int(err.(unix.Errno))
	}
	return 0
}

// Listen implements listen(2); per spec.md §4.8 it also sets O_NONBLOCK on
// the native fd so accept() never blocks the single execution thread
// indefinitely.
func (b *Bridge) Listen(fd int, backlog int) int {
	s, ok := b.get(fd)
	if !ok {
		return -int(unix.EBADF)
	}
	if err := unix.Listen(s.HostFD, backlog); err != nil {
		return -int(err.(unix.Errno))
	}
	unix.SetNonblock(s.HostFD, true)
	s.NonBlock = true
	return 0
}

// Accept implements accept/accept4. Returns -EAGAIN if nothing is pending
// (the listening fd is non-blocking).
func (b *Bridge) Accept(fd int, flagsNonblock bool) (int, int) {
	s, ok := b.get(fd)
	if !ok {
		return 0, -int(unix.EBADF)
	}
	hostFD, _, err := unix.Accept(s.HostFD)
	if err != nil {
		errno := err.(unix.Errno)
		if errno == unix.EAGAIN || errno == unix.EWOULDBLOCK {
			return 0, -int(unix.EAGAIN)
		}
		return 0, -int(errno)
	}
	if flagsNonblock {
		unix.SetNonblock(hostFD, true)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	newFD := b.nextFD
	b.nextFD++
	b.sockets[newFD] = &Socket{HostFD: hostFD, Domain: s.Domain, Type: s.Type, NonBlock: flagsNonblock}
	return newFD, 0
}

// Connect implements connect(2).
func (b *Bridge) Connect(fd int, addr []byte) int {
	s, ok := b.get(fd)
	if !ok {
		return -int(unix.EBADF)
	}
	sa, err := sockaddrFromBytes(s.Domain, addr)
	if err != nil {
		return -int(unix.EINVAL)
	}
	if err := unix.Connect(s.HostFD, sa); err != nil {
		errno := err.(unix.Errno)
		if errno == unix.EISCONN {
			return 0
		}
		return -int(errno)
	}
	return 0
}

// SendTo implements sendto(2) (and plain send when addr is nil).
func (b *Bridge) SendTo(fd int, buf []byte, addr []byte) (int, int) {
	s, ok := b.get(fd)
	if !ok {
		return 0, -int(unix.EBADF)
	}
	if addr == nil {
		n, err := unix.Write(s.HostFD, buf)
		if err != nil {
			return 0, -int(err.(unix.Errno))
		}
		return n, 0
	}
	sa, err := sockaddrFromBytes(s.Domain, addr)
	if err != nil {
		return 0, -int(unix.EINVAL)
	}
	if err := unix.Sendto(s.HostFD, buf, 0, sa); err != nil {
		return 0, -int(err.(unix.Errno))
	}
	return len(buf), 0
}

// RecvFrom implements recvfrom(2) (and plain recv when the caller ignores
// the returned address).
func (b *Bridge) RecvFrom(fd int, buf []byte) (int, int) {
	s, ok := b.get(fd)
	if !ok {
		return 0, -int(unix.EBADF)
	}
	n, _, err := unix.Recvfrom(s.HostFD, buf, 0)
	if err != nil {
		errno := err.(unix.Errno)
		if errno == unix.EAGAIN || errno == unix.EWOULDBLOCK {
			return 0, -int(unix.EAGAIN)
		}
		return 0, -int(errno)
	}
	return n, 0
}

// SetSockOpt accepts silently, per spec.md §4.8.
func (b *Bridge) SetSockOpt(fd int) int {
	if _, ok := b.get(fd); !ok {
		return -int(unix.EBADF)
	}
	return 0
}

// GetSockOpt returns 0 for SO_ERROR, -ENOPROTOOPT for anything else.
func (b *Bridge) GetSockOpt(fd int, level, optname int) (int, int) {
	if _, ok := b.get(fd); !ok {
		return 0, -int(unix.EBADF)
	}
	const solSocket = 1
	const soError = 4
	if level == solSocket && optname == soError {
		return 0, 0
	}
	return 0, -int(unix.ENOPROTOOPT)
}

// Shutdown implements shutdown(2).
func (b *Bridge) Shutdown(fd int, how int) int {
	s, ok := b.get(fd)
	if !ok {
		return -int(unix.EBADF)
	}
	if err := unix.Shutdown(s.HostFD, how); err != nil {
		return -int(err.(unix.Errno))
	}
	return 0
}

// GetSockName queries the real fd's bound local address.
func (b *Bridge) GetSockName(fd int) ([]byte, int) {
	s, ok := b.get(fd)
	if !ok {
		return nil, -int(unix.EBADF)
	}
	sa, err := unix.Getsockname(s.HostFD)
	if err != nil {
		return nil, -int(err.(unix.Errno))
	}
	return encodeSockaddr(sa), 0
}

// GetPeerName always returns -ENOSYS, per spec.md §4.8.
func (b *Bridge) GetPeerName(fd int) ([]byte, int) {
	return nil, -int(unix.ENOSYS)
}

func encodeSockaddr(sa unix.Sockaddr) []byte {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		buf := make([]byte, 16)
		buf[0] = byte(unix.AF_INET)
		buf[2] = byte(a.Port >> 8)
		buf[3] = byte(a.Port)
		copy(buf[4:8], a.Addr[:])
		return buf
	case *unix.SockaddrInet6:
		buf := make([]byte, 28)
		buf[0] = byte(unix.AF_INET6)
		buf[2] = byte(a.Port >> 8)
		buf[3] = byte(a.Port)
		copy(buf[8:24], a.Addr[:])
		return buf
	}
	return nil
}

// Poll blocks (up to timeoutMs, or indefinitely if negative) waiting for
// any of fds to become readable. No syscall handler calls it: ppoll and
// epoll_pwait report socket fds as ready without polling the host.
func Poll(hostFDs []int, timeoutMs int) ([]bool, error) {
	pfds := make([]unix.PollFd, len(hostFDs))
	for i, fd := range hostFDs {
		pfds[i] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	}
	_, err := unix.Poll(pfds, timeoutMs)
	if err != nil {
		return nil, err
	}
	ready := make([]bool, len(hostFDs))
	for i, p := range pfds {
		ready[i] = p.Revents&unix.POLLIN != 0
	}
	return ready, nil
}
