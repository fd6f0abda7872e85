package spinel

import (
	"errors"
	"sync"
)

// Priority classifies outbound frames. Frames of a higher priority
// class are drained before any lower-priority frame, FIFO within a
// class.
type Priority int

const (
	// PriorityLow is the class for regular frames.
	PriorityLow Priority = iota
	// PriorityHigh is the class for urgent frames.
	PriorityHigh
)

// FrameTag is an opaque per-frame tag assigned at insertion.
type FrameTag uint16

// FrameAddedFunc is called after a frame has been written to the
// buffer. It may run on any goroutine; implementations must only
// schedule deferred work.
type FrameAddedFunc func(tag FrameTag, priority Priority, buf *Buffer)

var (
	// ErrNoBufs indicates the buffer has no room for the frame.
	ErrNoBufs = errors.New("no buffer space")
	// ErrNotFound indicates there is no pending frame.
	ErrNotFound = errors.New("no pending frame")
	// ErrInvalidState indicates an out-frame operation without an
	// active read cursor.
	ErrInvalidState = errors.New("no active out frame")
	// ErrEmptyFrame indicates an attempt to buffer a zero-length
	// frame.
	ErrEmptyFrame = errors.New("empty frame")
	// ErrInvalidPriority indicates a priority outside the known
	// classes.
	ErrInvalidPriority = errors.New("invalid priority")
)

type frame struct {
	data []byte
	tag  FrameTag
	next *frame
}

type frameQueue struct {
	head *frame
	tail *frame
}

func (q *frameQueue) push(f *frame) {
	if q.head == nil {
		q.head = f
	} else {
		q.tail.next = f
	}
	q.tail = f
}

func (q *frameQueue) pop() *frame {
	f := q.head
	if f != nil {
		if q.head = f.next; q.head == nil {
			q.tail = nil
		}
		f.next = nil
	}
	return f
}

// Buffer is a bounded buffer of pending outbound frames.
//
// Writers may run on any goroutine. The out-frame cursor
// (OutFrameBegin..OutFrameRemove) is intended for a single consumer.
type Buffer struct {
	capacity int

	lock    sync.Mutex
	queues  [2]frameQueue
	used    int
	nextTag FrameTag
	onAdded FrameAddedFunc

	// read cursor over the oldest pending frame
	cur    *frame
	curPri Priority
	curOff int
}

// NewBuffer creates a Buffer with a byte-budget capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{capacity: capacity}
}

// SetFrameAddedCallback registers the added-frame notification.
// Registered once at transport construction.
func (b *Buffer) SetFrameAddedCallback(fn FrameAddedFunc) {
	b.lock.Lock()
	b.onAdded = fn
	b.lock.Unlock()
}

// WriteFrame copies data into the buffer as one frame and fires the
// added-frame notification. Returns ErrNoBufs when the byte budget
// is exhausted.
func (b *Buffer) WriteFrame(priority Priority, data []byte) (FrameTag, error) {
	if priority < PriorityLow || priority > PriorityHigh {
		return 0, ErrInvalidPriority
	}
	if len(data) == 0 {
		return 0, ErrEmptyFrame
	}
	b.lock.Lock()
	if b.used+len(data) > b.capacity {
		b.lock.Unlock()
		return 0, ErrNoBufs
	}
	b.nextTag++
	f := &frame{data: append([]byte(nil), data...), tag: b.nextTag}
	b.queues[priority].push(f)
	b.used += len(data)
	fn := b.onAdded
	tag := f.tag
	b.lock.Unlock()
	if fn != nil {
		fn(tag, priority, b)
	}
	return tag, nil
}

// IsEmpty reports whether no frame is pending.
func (b *Buffer) IsEmpty() bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.queues[PriorityHigh].head == nil && b.queues[PriorityLow].head == nil
}

// OutFrameBegin starts a read cursor over the oldest pending frame of
// the highest non-empty priority class.
func (b *Buffer) OutFrameBegin() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	switch {
	case b.queues[PriorityHigh].head != nil:
		b.cur, b.curPri = b.queues[PriorityHigh].head, PriorityHigh
	case b.queues[PriorityLow].head != nil:
		b.cur, b.curPri = b.queues[PriorityLow].head, PriorityLow
	default:
		b.cur = nil
		return ErrNotFound
	}
	b.curOff = 0
	return nil
}

// OutFrameGetLength returns the length of the current out frame,
// or 0 without an active cursor.
func (b *Buffer) OutFrameGetLength() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.cur == nil {
		return 0
	}
	return len(b.cur.data)
}

// OutFrameGetTag returns the tag of the current out frame.
func (b *Buffer) OutFrameGetTag() FrameTag {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.cur == nil {
		return 0
	}
	return b.cur.tag
}

// OutFrameRead copies up to n bytes from the cursor into dst and
// advances the cursor. Returns the number of bytes copied.
func (b *Buffer) OutFrameRead(n int, dst []byte) int {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.cur == nil {
		return 0
	}
	remain := b.cur.data[b.curOff:]
	if n > len(remain) {
		n = len(remain)
	}
	if n > len(dst) {
		n = len(dst)
	}
	copy(dst, remain[:n])
	b.curOff += n
	return n
}

// OutFrameRemove retires the current out frame from the buffer,
// regardless of transmission outcome, and invalidates the cursor.
func (b *Buffer) OutFrameRemove() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.cur == nil {
		return ErrInvalidState
	}
	f := b.queues[b.curPri].pop()
	b.used -= len(f.data)
	b.cur = nil
	return nil
}
