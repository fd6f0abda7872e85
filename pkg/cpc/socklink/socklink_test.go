package socklink

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/lowpanio/cpclink.go/pkg/cpc"
)

func newPair(t *testing.T) (*Conn, int) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	require.NoError(t, err)
	conn, err := FromFd(fds[0], 2)
	require.NoError(t, err)
	return conn, fds[1]
}

func TestSendRecv(t *testing.T) {
	conn, peer := newPair(t)
	defer conn.Close()
	defer unix.Close(peer)

	require.NoError(t, conn.Send([]byte{1, 2, 3}))
	buf := make([]byte, 16)
	n, _, err := unix.Recvfrom(peer, buf, 0)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, buf[:n])

	require.NoError(t, unix.Send(peer, []byte{4, 5}, 0))
	n, err = conn.Recv(buf)
	require.NoError(t, err)
	require.Equal(t, []byte{4, 5}, buf[:n])
}

func TestRecvNoData(t *testing.T) {
	conn, peer := newPair(t)
	defer conn.Close()
	defer unix.Close(peer)

	n, err := conn.Recv(make([]byte, 16))
	require.Equal(t, cpc.ErrNoData, err)
	require.Equal(t, 0, n)
}

func TestOpenIdempotent(t *testing.T) {
	conn, peer := newPair(t)
	defer conn.Close()
	defer unix.Close(peer)

	require.NoError(t, conn.Open(2))
	require.Equal(t, cpc.ErrAlreadyBound, conn.Open(3))
}

func TestOpenMissingSocket(t *testing.T) {
	conn := New(t.TempDir())
	require.Error(t, conn.Open(1))
}

func TestClosedConn(t *testing.T) {
	conn, peer := newPair(t)
	defer unix.Close(peer)

	require.NoError(t, conn.Close())
	require.Equal(t, cpc.ErrNotOpen, conn.Send([]byte{1}))
	_, err := conn.Recv(make([]byte, 4))
	require.Equal(t, cpc.ErrNotOpen, err)
	require.NoError(t, conn.Close())
}

func TestPeerClosed(t *testing.T) {
	conn, peer := newPair(t)
	defer conn.Close()

	require.NoError(t, unix.Close(peer))
	_, err := conn.Recv(make([]byte, 4))
	require.Equal(t, cpc.ErrClosed, err)
}
