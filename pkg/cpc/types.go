// Package cpc defines the co-processor link endpoint contracts.
//
// A link exposes independently addressable endpoints. The device side
// of an endpoint uses asynchronous completion notifications; the host
// side uses non-blocking descriptor I/O. Both carry opaque byte frames
// as indivisible units.
package cpc

import "errors"

// EndpointID identifies one logical channel on the link.
type EndpointID uint8

// WriteCompletedFunc is called once per submitted write when the link
// no longer needs the transfer buffer. The reported error is
// informational; the handler must release the buffer regardless.
// It may run on any goroutine; implementations must only release the
// buffer or schedule deferred work.
type WriteCompletedFunc func(id EndpointID, buf []byte, err error)

// DataReadyFunc signals inbound data on an endpoint. It may run on
// any goroutine; implementations must only schedule deferred work.
type DataReadyFunc func()

var (
	// ErrNoData indicates a non-blocking read found nothing.
	// This is a normal outcome, not a failure.
	ErrNoData = errors.New("cpc: no data")
	// ErrWouldBlock indicates the channel is not writable right now.
	ErrWouldBlock = errors.New("cpc: would block")
	// ErrAlreadyBound indicates a second completion-handler
	// registration, or a rebinding to a different endpoint id,
	// neither of which the link permits.
	ErrAlreadyBound = errors.New("cpc: handler already bound")
	// ErrInvalidBuffer indicates a release of a buffer the link does
	// not own.
	ErrInvalidBuffer = errors.New("cpc: invalid buffer")
	// ErrClosed indicates the endpoint has been closed.
	ErrClosed = errors.New("cpc: endpoint closed")
	// ErrNotOpen indicates an operation on an unopened endpoint.
	ErrNotOpen = errors.New("cpc: endpoint not open")
)

// Endpoint is the device-side handle to one logical channel.
// Exactly one Endpoint per transport instance; never shared.
type Endpoint interface {
	// Open binds the endpoint to id. Opening an already-open
	// endpoint with the same id succeeds; any other failure is
	// fatal to startup.
	Open(id EndpointID) error
	// Close releases the endpoint.
	Close() error
	// ID returns the bound endpoint id.
	ID() EndpointID

	// SetWriteCompletedHandler registers the completion notification.
	// Succeeds exactly once per endpoint.
	SetWriteCompletedHandler(fn WriteCompletedFunc) error
	// SetDataReadyHandler registers the inbound-data signal.
	SetDataReadyHandler(fn DataReadyFunc)

	// Write submits buf for transmission and returns immediately.
	// Ownership of buf passes to the link; the completion handler is
	// the sole releaser. ErrWouldBlock surfaces a full channel queue.
	Write(buf []byte) error
	// Read performs one non-blocking read. ErrNoData when nothing is
	// pending. The returned buffer is owned by the link until
	// FreeRxBuffer.
	Read() ([]byte, error)
	// FreeRxBuffer releases a buffer returned by Read. Exactly one
	// release per successful read.
	FreeRxBuffer(buf []byte) error
}

// HostConn is the host-side handle to one logical channel.
type HostConn interface {
	// Open binds the connection to endpoint id. Idempotent for the
	// same id.
	Open(id EndpointID) error
	// Close releases the connection.
	Close() error
	// Fd returns the readable/writable descriptor for poll
	// integration.
	Fd() int
	// Send writes one frame without blocking. The write is
	// all-or-nothing; ErrWouldBlock when the channel is not writable.
	Send(frame []byte) error
	// Recv performs one non-blocking read into p and returns the
	// frame length. ErrNoData when nothing is pending.
	Recv(p []byte) (int, error)
}
