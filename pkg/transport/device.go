package transport

import (
	"context"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/lowpanio/cpclink.go/pkg/cpc"
	"github.com/lowpanio/cpclink.go/pkg/run"
	"github.com/lowpanio/cpclink.go/pkg/spinel"
)

// resetNotice is the reserved signature of a spurious internal reset
// notice. A frame whose first four bytes match exactly is dropped
// without transmission. Exact-match only; do not broaden.
var resetNotice = [4]byte{0x80, 0x06, 0x00, 0x72}

func isResetNotice(frame []byte) bool {
	return len(frame) >= 4 &&
		frame[0] == resetNotice[0] &&
		frame[1] == resetNotice[1] &&
		frame[2] == resetNotice[2] &&
		frame[3] == resetNotice[3]
}

// transferPool accounts for transfer buffers handed to the link.
// Every get is balanced by exactly one put, normally inside the
// write-completed notification.
type transferPool struct {
	outstanding int32
}

func (p *transferPool) get(n int) []byte {
	atomic.AddInt32(&p.outstanding, 1)
	return make([]byte, n)
}

func (p *transferPool) put(buf []byte) {
	atomic.AddInt32(&p.outstanding, -1)
}

// Device is the co-processor-side transport. The send path runs as a
// single-flight tasklet on the cooperative loop and never blocks;
// completion and data-ready notifications arrive from the link's
// event context and only release a buffer or trigger the loop.
type Device struct {
	ep           cpc.Endpoint
	txBuffer     *spinel.Buffer
	loop         *run.Loop
	receiveFrame ReceiveFrameFunc

	sendTask *run.Tasklet
	pool     transferPool
}

// NewDevice creates a Device over ep, draining txBuffer (referenced,
// not owned) and forwarding inbound frames to receiveFrame. The
// write-completed handler is registered exactly once here.
func NewDevice(ep cpc.Endpoint, txBuffer *spinel.Buffer, loop *run.Loop, receiveFrame ReceiveFrameFunc) (*Device, error) {
	d := &Device{
		ep:           ep,
		txBuffer:     txBuffer,
		loop:         loop,
		receiveFrame: receiveFrame,
	}
	d.sendTask = run.NewTasklet(loop, d.sendToLink)
	if err := ep.SetWriteCompletedHandler(d.handleWriteCompleted); err != nil {
		return nil, err
	}
	ep.SetDataReadyHandler(loop.TriggerNext)
	txBuffer.SetFrameAddedCallback(d.handleFrameAdded)
	loop.AddPoller(run.PollFunc(d.poll))
	return d, nil
}

// Init implements Transport.
func (d *Device) Init(id cpc.EndpointID) error {
	return d.ep.Open(id)
}

// Deinit implements Transport.
func (d *Device) Deinit() {
	if err := d.ep.Close(); err != nil {
		glog.Warningf("endpoint close: %v", err)
	}
}

// SendFrame implements Transport by appending the frame to the
// outbound buffer; the frame-added notification wakes the send
// tasklet.
func (d *Device) SendFrame(frame []byte) error {
	_, err := d.txBuffer.WriteFrame(spinel.PriorityLow, frame)
	return err
}

// GetBusSpeed implements Transport.
func (d *Device) GetBusSpeed() uint32 {
	return 0
}

// OutstandingTransfers returns the number of transfer buffers not yet
// released by a completion notification.
func (d *Device) OutstandingTransfers() int {
	return int(atomic.LoadInt32(&d.pool.outstanding))
}

func (d *Device) handleFrameAdded(tag spinel.FrameTag, priority spinel.Priority, buf *spinel.Buffer) {
	d.sendTask.Post()
}

// handleWriteCompleted runs in the link's event context. Its sole
// responsibility is releasing the transfer buffer; the reported
// status is informational only.
func (d *Device) handleWriteCompleted(id cpc.EndpointID, buf []byte, err error) {
	if err != nil {
		glog.V(1).Infof("write completed with status: %v", err)
	}
	d.pool.put(buf)
}

// sendToLink drains one frame per wake. The frame is copied into a
// fresh transfer buffer because the write is asynchronous and must
// not borrow the ring's backing storage; the ring slot is retired
// before the write completes.
func (d *Device) sendToLink(ctx context.Context) {
	b := d.txBuffer
	if err := b.OutFrameBegin(); err != nil {
		return
	}
	n := b.OutFrameGetLength()
	buf := d.pool.get(n)
	b.OutFrameRead(n, buf)

	if isResetNotice(buf) {
		d.pool.put(buf)
		if err := b.OutFrameRemove(); err != nil {
			glog.Errorf("out frame remove: %v", err)
		}
		return
	}

	if err := d.ep.Write(buf); err != nil {
		// A busy channel is not retried here; the frame is retired
		// and the buffer released locally since ownership never
		// transferred.
		glog.Errorf("endpoint write: %v", err)
		d.pool.put(buf)
	}
	if err := b.OutFrameRemove(); err != nil {
		glog.Errorf("out frame remove: %v", err)
	}
	if !b.IsEmpty() {
		d.sendTask.Post()
	}
}

// Process performs exactly one non-blocking read attempt. No pending
// data is a normal no-op. On data, the exact byte range is forwarded
// synchronously and the read buffer released; a release failure is a
// channel contract violation and is fatal.
func (d *Device) Process() error {
	_, err := d.processOne()
	return err
}

func (d *Device) processOne() (bool, error) {
	data, err := d.ep.Read()
	if err == cpc.ErrNoData {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if d.receiveFrame != nil {
		d.receiveFrame(data)
	}
	return true, d.ep.FreeRxBuffer(data)
}

// poll drains pending inbound data on each loop iteration.
func (d *Device) poll(ctx context.Context) error {
	for {
		ok, err := d.processOne()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}
