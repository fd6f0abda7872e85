package transport

import (
	"errors"
	"time"

	"github.com/lowpanio/cpclink.go/pkg/cpc"
)

// ReceiveFrameFunc is the upper-layer receive callback. The frame
// bytes are only valid for the duration of the call; the receiver
// copies or reassembles as needed.
type ReceiveFrameFunc func(frame []byte)

// Transport moves opaque frames across one link endpoint. Two
// realizations exist: Device never blocks and runs on a cooperative
// loop; Host may block the calling thread for a bounded interval.
type Transport interface {
	// Init binds the transport to endpoint id. Idempotent for the
	// same id; any other failure is fatal to startup.
	Init(id cpc.EndpointID) error
	// Deinit releases the endpoint.
	Deinit()
	// SendFrame submits one frame for transmission.
	SendFrame(frame []byte) error
	// GetBusSpeed reports the link speed in bits/second, 0 when
	// unknown.
	GetBusSpeed() uint32
}

// FrameWaiter is the host-side bounded wait for inbound data.
type FrameWaiter interface {
	// WaitForFrame blocks until at least partial inbound data is
	// available or timeout elapses. ErrResponseTimeout on expiry,
	// distinct from a hard failure.
	WaitForFrame(timeout time.Duration) error
}

var (
	// ErrTransportFailed indicates the channel did not accept the
	// frame within the bounded wait, or a hard channel failure.
	ErrTransportFailed = errors.New("transport failed")
	// ErrResponseTimeout indicates no frame arrived within the wait
	// interval. The channel itself is healthy.
	ErrResponseTimeout = errors.New("response timeout")
)
