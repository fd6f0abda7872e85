package spinel

// RxFrameBuffer holds inbound bytes between the link read and the
// receive callback. It is owned by the protocol layer and referenced
// by the host transport, which appends the bytes of one read, hands
// the frame to the callback, then discards it.
type RxFrameBuffer struct {
	buf []byte
	n   int
}

// NewRxFrameBuffer creates an RxFrameBuffer of the given size.
func NewRxFrameBuffer(size int) *RxFrameBuffer {
	return &RxFrameBuffer{buf: make([]byte, size)}
}

// WriteBytes appends p to the frame under assembly.
// Returns ErrNoBufs when p does not fit.
func (r *RxFrameBuffer) WriteBytes(p []byte) error {
	if r.n+len(p) > len(r.buf) {
		return ErrNoBufs
	}
	copy(r.buf[r.n:], p)
	r.n += len(p)
	return nil
}

// Frame returns the bytes assembled so far. The returned slice is
// only valid until the next WriteBytes, DiscardFrame or Clear.
func (r *RxFrameBuffer) Frame() []byte {
	return r.buf[:r.n]
}

// Len returns the number of assembled bytes.
func (r *RxFrameBuffer) Len() int {
	return r.n
}

// DiscardFrame drops the frame under assembly.
func (r *RxFrameBuffer) DiscardFrame() {
	r.n = 0
}

// Clear resets all reassembly state. Used on co-processor reset.
func (r *RxFrameBuffer) Clear() {
	r.n = 0
}
