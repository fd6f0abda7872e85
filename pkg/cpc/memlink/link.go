// Package memlink provides an in-memory co-processor link.
//
// The device side is a cpc.Endpoint; the peer side is a Port through
// which tests and bridges inject inbound frames and observe
// transmitted ones. Delivery and write completions run on a dedicated
// engine goroutine, standing in for the link's interrupt context.
package memlink

import (
	"sync"

	"github.com/lowpanio/cpclink.go/pkg/cpc"
)

// DefaultTxQueueLen is the default number of in-flight writes the
// link accepts before reporting ErrWouldBlock.
const DefaultTxQueueLen = 8

type opKind int

const (
	opWrite opKind = iota
	opDeliver
	opSync
)

type engineOp struct {
	kind opKind
	buf  []byte
	done chan struct{}
}

// Link is an in-memory co-processor link with one endpoint.
type Link struct {
	ep   *Endpoint
	port *Port

	opCh   chan engineOp
	doneCh chan struct{}

	stateLock sync.RWMutex
	closed    bool
}

// submit hands an op to the engine unless the link is closed.
func (l *Link) submit(op engineOp) bool {
	l.stateLock.RLock()
	defer l.stateLock.RUnlock()
	if l.closed {
		return false
	}
	l.opCh <- op
	return true
}

// New creates a Link and starts its delivery engine.
func New() *Link {
	l := &Link{
		opCh:   make(chan engineOp, 64),
		doneCh: make(chan struct{}),
	}
	l.ep = &Endpoint{
		link:       l,
		txQueueLen: DefaultTxQueueLen,
		rxOwned:    make(map[*byte][]byte),
	}
	l.port = &Port{link: l, framesCh: make(chan []byte, 64)}
	go l.engine()
	return l
}

// Endpoint returns the device-side endpoint handle.
func (l *Link) Endpoint() *Endpoint {
	return l.ep
}

// Port returns the peer-side handle.
func (l *Link) Port() *Port {
	return l.port
}

// Sync blocks until the engine has drained all pending deliveries and
// completions. Used by tests to order assertions after async events.
func (l *Link) Sync() {
	done := make(chan struct{})
	if !l.submit(engineOp{kind: opSync, done: done}) {
		return
	}
	<-done
}

// Close stops the delivery engine.
func (l *Link) Close() {
	l.stateLock.Lock()
	if l.closed {
		l.stateLock.Unlock()
		return
	}
	l.closed = true
	l.stateLock.Unlock()
	close(l.opCh)
	<-l.doneCh
}

func (l *Link) engine() {
	defer close(l.doneCh)
	for op := range l.opCh {
		switch op.kind {
		case opWrite:
			// The port consumer owns its copy; the transfer buffer
			// goes back through the completion handler.
			frame := append([]byte(nil), op.buf...)
			select {
			case l.port.framesCh <- frame:
			default:
				// peer not draining; frame dropped on the floor,
				// completion still fires
			}
			l.ep.completeWrite(op.buf)
		case opDeliver:
			l.ep.deliver(op.buf)
		case opSync:
			close(op.done)
		}
	}
}

// Port is the peer side of the link.
type Port struct {
	link     *Link
	framesCh chan []byte
}

// SendToDevice injects one inbound frame for the device endpoint.
// A frame injected into a closed link is dropped.
func (p *Port) SendToDevice(frame []byte) {
	buf := append([]byte(nil), frame...)
	p.link.submit(engineOp{kind: opDeliver, buf: buf})
}

// Frames returns the channel of frames transmitted by the device.
func (p *Port) Frames() <-chan []byte {
	return p.framesCh
}

// Endpoint is the device-side cpc.Endpoint implementation.
type Endpoint struct {
	link *Link

	lock      sync.Mutex
	opened    bool
	id        cpc.EndpointID
	closed    bool
	writeDone cpc.WriteCompletedFunc
	dataReady cpc.DataReadyFunc

	txQueueLen int
	txPending  int

	rxQueue [][]byte
	rxOwned map[*byte][]byte

	writesSubmitted int
	writesCompleted int
}

// Open implements cpc.Endpoint. Re-opening with the same id succeeds.
func (e *Endpoint) Open(id cpc.EndpointID) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.closed {
		return cpc.ErrClosed
	}
	if e.opened {
		if e.id == id {
			return nil
		}
		return cpc.ErrAlreadyBound
	}
	e.opened, e.id = true, id
	return nil
}

// Close implements cpc.Endpoint.
func (e *Endpoint) Close() error {
	e.lock.Lock()
	e.closed = true
	e.lock.Unlock()
	return nil
}

// ID implements cpc.Endpoint.
func (e *Endpoint) ID() cpc.EndpointID {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.id
}

// SetWriteCompletedHandler implements cpc.Endpoint.
// Succeeds exactly once.
func (e *Endpoint) SetWriteCompletedHandler(fn cpc.WriteCompletedFunc) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.writeDone != nil {
		return cpc.ErrAlreadyBound
	}
	e.writeDone = fn
	return nil
}

// SetDataReadyHandler implements cpc.Endpoint.
func (e *Endpoint) SetDataReadyHandler(fn cpc.DataReadyFunc) {
	e.lock.Lock()
	e.dataReady = fn
	e.lock.Unlock()
}

// Write implements cpc.Endpoint. Ownership of buf passes to the link
// until the completion handler fires.
func (e *Endpoint) Write(buf []byte) error {
	e.lock.Lock()
	if e.closed {
		e.lock.Unlock()
		return cpc.ErrClosed
	}
	if !e.opened {
		e.lock.Unlock()
		return cpc.ErrNotOpen
	}
	if e.txPending >= e.txQueueLen {
		e.lock.Unlock()
		return cpc.ErrWouldBlock
	}
	e.txPending++
	e.writesSubmitted++
	e.lock.Unlock()
	if !e.link.submit(engineOp{kind: opWrite, buf: buf}) {
		e.lock.Lock()
		e.txPending--
		e.writesSubmitted--
		e.lock.Unlock()
		return cpc.ErrClosed
	}
	return nil
}

// Read implements cpc.Endpoint.
func (e *Endpoint) Read() ([]byte, error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.closed {
		return nil, cpc.ErrClosed
	}
	if len(e.rxQueue) == 0 {
		return nil, cpc.ErrNoData
	}
	buf := e.rxQueue[0]
	e.rxQueue = e.rxQueue[1:]
	e.rxOwned[&buf[0]] = buf
	return buf, nil
}

// FreeRxBuffer implements cpc.Endpoint. Exactly one release per
// successful Read; anything else is an ErrInvalidBuffer.
func (e *Endpoint) FreeRxBuffer(buf []byte) error {
	if len(buf) == 0 {
		return cpc.ErrInvalidBuffer
	}
	e.lock.Lock()
	defer e.lock.Unlock()
	if _, ok := e.rxOwned[&buf[0]]; !ok {
		return cpc.ErrInvalidBuffer
	}
	delete(e.rxOwned, &buf[0])
	return nil
}

// WritesSubmitted returns the number of accepted writes.
func (e *Endpoint) WritesSubmitted() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.writesSubmitted
}

// WritesCompleted returns the number of completion notifications
// delivered.
func (e *Endpoint) WritesCompleted() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.writesCompleted
}

// RxOutstanding returns the number of read buffers not yet released.
func (e *Endpoint) RxOutstanding() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return len(e.rxOwned)
}

// SetTxQueueLen overrides the in-flight write budget. For tests.
func (e *Endpoint) SetTxQueueLen(n int) {
	e.lock.Lock()
	e.txQueueLen = n
	e.lock.Unlock()
}

func (e *Endpoint) completeWrite(buf []byte) {
	e.lock.Lock()
	e.txPending--
	e.writesCompleted++
	fn := e.writeDone
	id := e.id
	e.lock.Unlock()
	if fn != nil {
		fn(id, buf, nil)
	}
}

func (e *Endpoint) deliver(buf []byte) {
	if len(buf) == 0 {
		return
	}
	e.lock.Lock()
	e.rxQueue = append(e.rxQueue, buf)
	fn := e.dataReady
	e.lock.Unlock()
	if fn != nil {
		fn()
	}
}
