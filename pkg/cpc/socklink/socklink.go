// Package socklink provides the host-side co-processor link over
// unix SOCK_SEQPACKET sockets exposed by the link daemon, one socket
// per endpoint. Message boundaries on a seqpacket socket match frame
// boundaries, so every send is all-or-nothing.
package socklink

import (
	"fmt"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/lowpanio/cpclink.go/pkg/cpc"
)

// Conn is a host-side connection to one link endpoint.
// It implements cpc.HostConn.
type Conn struct {
	dir string

	lock   sync.Mutex
	fd     int
	id     cpc.EndpointID
	opened bool
}

// New creates a Conn against the daemon socket directory.
// The endpoint socket is expected at <dir>/ep<id>.sock.
func New(dir string) *Conn {
	return &Conn{dir: dir, fd: -1}
}

// FromFd wraps an already-connected descriptor, e.g. one side of a
// socketpair in tests and bridges. The descriptor is put into
// non-blocking mode and the Conn is considered open on id.
func FromFd(fd int, id cpc.EndpointID) (*Conn, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, err
	}
	return &Conn{fd: fd, id: id, opened: true}, nil
}

// SocketPath returns the endpoint socket path for id.
func (c *Conn) SocketPath(id cpc.EndpointID) string {
	return filepath.Join(c.dir, fmt.Sprintf("ep%d.sock", id))
}

// Open implements cpc.HostConn. Opening the already-open endpoint id
// again succeeds without a new connection.
func (c *Conn) Open(id cpc.EndpointID) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.opened {
		if c.id == id {
			return nil
		}
		return cpc.ErrAlreadyBound
	}
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return err
	}
	if err = unix.Connect(fd, &unix.SockaddrUnix{Name: c.SocketPath(id)}); err != nil {
		unix.Close(fd)
		return err
	}
	if err = unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return err
	}
	c.fd, c.id, c.opened = fd, id, true
	return nil
}

// Close implements cpc.HostConn.
func (c *Conn) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.opened {
		return nil
	}
	c.opened = false
	fd := c.fd
	c.fd = -1
	return unix.Close(fd)
}

// Fd implements cpc.HostConn.
func (c *Conn) Fd() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.fd
}

// Send implements cpc.HostConn. The kernel accepts a seqpacket
// message whole or not at all; a full socket buffer surfaces as
// ErrWouldBlock.
func (c *Conn) Send(frame []byte) error {
	c.lock.Lock()
	fd, opened := c.fd, c.opened
	c.lock.Unlock()
	if !opened {
		return cpc.ErrNotOpen
	}
	err := unix.Send(fd, frame, unix.MSG_DONTWAIT)
	switch err {
	case nil:
		return nil
	case unix.EAGAIN, unix.ENOBUFS:
		return cpc.ErrWouldBlock
	case unix.EINTR:
		return cpc.ErrWouldBlock
	default:
		return err
	}
}

// Recv implements cpc.HostConn. The read is non-blocking even when a
// prior poll reported readiness.
func (c *Conn) Recv(p []byte) (int, error) {
	c.lock.Lock()
	fd, opened := c.fd, c.opened
	c.lock.Unlock()
	if !opened {
		return 0, cpc.ErrNotOpen
	}
	n, _, err := unix.Recvfrom(fd, p, unix.MSG_DONTWAIT)
	switch err {
	case nil:
	case unix.EAGAIN, unix.EINTR:
		return 0, cpc.ErrNoData
	default:
		return 0, err
	}
	if n == 0 {
		return 0, cpc.ErrClosed
	}
	return n, nil
}
