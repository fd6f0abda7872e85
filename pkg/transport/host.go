package transport

import (
	"time"

	"github.com/golang/glog"
	"golang.org/x/sys/unix"

	"github.com/lowpanio/cpclink.go/pkg/cpc"
	"github.com/lowpanio/cpclink.go/pkg/spinel"
)

const (
	// MaxFrameSize is the largest frame carried across the link.
	MaxFrameSize = 1300
	// MaxWaitTime bounds how long SendFrame waits for the channel to
	// become writable.
	MaxWaitTime = 2000 * time.Millisecond
)

// Host is the host-side transport to an external co-processor. It
// runs on the protocol stack's main thread: SendFrame may block that
// thread for up to MaxWaitTime, and the receive path integrates into
// the caller's descriptor-set poll loop via UpdateFdSet/Process.
type Host struct {
	conn         cpc.HostConn
	receiveFrame ReceiveFrameFunc
	rxBuffer     *spinel.RxFrameBuffer

	maxWait time.Duration
	scratch []byte
	inited  bool
}

// NewHost creates a Host over conn. Inbound bytes flow through
// rxBuffer (referenced, not owned) before receiveFrame is invoked.
func NewHost(conn cpc.HostConn, rxBuffer *spinel.RxFrameBuffer, receiveFrame ReceiveFrameFunc) *Host {
	return &Host{
		conn:         conn,
		receiveFrame: receiveFrame,
		rxBuffer:     rxBuffer,
		maxWait:      MaxWaitTime,
		scratch:      make([]byte, MaxFrameSize),
	}
}

// SetMaxWaitTime overrides the SendFrame wait budget. For tests.
func (h *Host) SetMaxWaitTime(d time.Duration) {
	h.maxWait = d
}

// Init implements Transport. Opening the already-bound endpoint id
// again succeeds.
func (h *Host) Init(id cpc.EndpointID) error {
	if err := h.conn.Open(id); err != nil {
		return err
	}
	h.inited = true
	return nil
}

// Deinit implements Transport.
func (h *Host) Deinit() {
	if !h.inited {
		return
	}
	h.inited = false
	if err := h.conn.Close(); err != nil {
		glog.Warningf("conn close: %v", err)
	}
}

// SendFrame implements Transport. It does not return until the frame
// is fully handed to the channel or the wait budget is exhausted.
// The write is all-or-nothing per attempt; on ErrTransportFailed no
// part of the frame has been written and no partial state is kept.
func (h *Host) SendFrame(frame []byte) error {
	deadline := time.Now().Add(h.maxWait)
	for {
		err := h.conn.Send(frame)
		if err == nil {
			return nil
		}
		if err != cpc.ErrWouldBlock {
			glog.Errorf("send frame: %v", err)
			return ErrTransportFailed
		}
		remain := time.Until(deadline)
		if remain <= 0 {
			return ErrTransportFailed
		}
		if err = h.waitForWritable(remain); err != nil {
			return err
		}
	}
}

// WaitForFrame implements FrameWaiter. A timeout cancels only this
// wait, never an in-flight channel operation.
func (h *Host) WaitForFrame(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	fd := h.conn.Fd()
	for {
		remain := time.Until(deadline)
		if remain < 0 {
			remain = 0
		}
		var rfds unix.FdSet
		rfds.Set(fd)
		tv := unix.NsecToTimeval(remain.Nanoseconds())
		n, err := unix.Select(fd+1, &rfds, nil, nil, &tv)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			glog.Errorf("wait for frame: %v", err)
			return ErrTransportFailed
		}
		if n == 0 {
			return ErrResponseTimeout
		}
		return h.read()
	}
}

// UpdateFdSet advertises the transport's readable descriptor for the
// caller's blocking poll.
func (h *Host) UpdateFdSet(readSet *unix.FdSet, maxFd *int) {
	fd := h.conn.Fd()
	if fd < 0 {
		return
	}
	readSet.Set(fd)
	if maxFd != nil && fd > *maxFd {
		*maxFd = fd
	}
}

// Process performs the receive work after the caller's poll. The
// read is still non-blocking even when the descriptor was posted
// ready; a spurious wakeup is a silent no-op.
func (h *Host) Process(readSet *unix.FdSet) error {
	fd := h.conn.Fd()
	if fd < 0 || readSet == nil || !readSet.IsSet(fd) {
		return nil
	}
	return h.read()
}

// GetBusSpeed implements Transport.
func (h *Host) GetBusSpeed() uint32 {
	return 0
}

// OnRcpReset resets transient receive and wait state after a
// co-processor restart. The endpoint binding survives; no re-open is
// required before the next SendFrame/WaitForFrame cycle.
func (h *Host) OnRcpReset() {
	h.rxBuffer.Clear()
}

// read performs exactly one non-blocking read, forwards the bytes to
// the receive callback and releases the buffer, on every path.
func (h *Host) read() error {
	n, err := h.conn.Recv(h.scratch)
	if err == cpc.ErrNoData {
		return nil
	}
	if err != nil {
		glog.Errorf("recv frame: %v", err)
		return ErrTransportFailed
	}
	if err = h.rxBuffer.WriteBytes(h.scratch[:n]); err != nil {
		return err
	}
	defer h.rxBuffer.DiscardFrame()
	if h.receiveFrame != nil {
		h.receiveFrame(h.rxBuffer.Frame())
	}
	return nil
}

// waitForWritable waits up to d for the channel to become writable.
// Returning nil on timeout lets SendFrame re-check its own deadline.
func (h *Host) waitForWritable(d time.Duration) error {
	fd := h.conn.Fd()
	var wfds unix.FdSet
	wfds.Set(fd)
	tv := unix.NsecToTimeval(d.Nanoseconds())
	_, err := unix.Select(fd+1, nil, &wfds, nil, &tv)
	if err != nil && err != unix.EINTR {
		glog.Errorf("wait for writable: %v", err)
		return ErrTransportFailed
	}
	return nil
}
