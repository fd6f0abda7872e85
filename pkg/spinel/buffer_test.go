package spinel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func drainFrame(t *testing.T, b *Buffer) []byte {
	require.NoError(t, b.OutFrameBegin())
	n := b.OutFrameGetLength()
	buf := make([]byte, n)
	require.Equal(t, n, b.OutFrameRead(n, buf))
	require.NoError(t, b.OutFrameRemove())
	return buf
}

func TestBufferFIFOWithinPriority(t *testing.T) {
	b := NewBuffer(1024)
	frames := [][]byte{{1}, {2, 2}, {3, 3, 3}}
	for _, f := range frames {
		_, err := b.WriteFrame(PriorityLow, f)
		require.NoError(t, err)
	}
	for _, f := range frames {
		require.Equal(t, f, drainFrame(t, b))
	}
	require.True(t, b.IsEmpty())
}

func TestBufferPriorityFirst(t *testing.T) {
	b := NewBuffer(1024)
	_, err := b.WriteFrame(PriorityLow, []byte{0xa})
	require.NoError(t, err)
	_, err = b.WriteFrame(PriorityHigh, []byte{0xd})
	require.NoError(t, err)
	_, err = b.WriteFrame(PriorityLow, []byte{0xb})
	require.NoError(t, err)

	require.Equal(t, []byte{0xd}, drainFrame(t, b))
	require.Equal(t, []byte{0xa}, drainFrame(t, b))
	require.Equal(t, []byte{0xb}, drainFrame(t, b))
}

func TestBufferByteBudget(t *testing.T) {
	b := NewBuffer(4)
	_, err := b.WriteFrame(PriorityLow, []byte{1, 2, 3})
	require.NoError(t, err)
	_, err = b.WriteFrame(PriorityLow, []byte{4, 5})
	require.Equal(t, ErrNoBufs, err)

	// removing the pending frame frees the budget
	require.Equal(t, []byte{1, 2, 3}, drainFrame(t, b))
	_, err = b.WriteFrame(PriorityLow, []byte{4, 5})
	require.NoError(t, err)
}

func TestBufferRejectsUnknownPriority(t *testing.T) {
	b := NewBuffer(16)
	_, err := b.WriteFrame(Priority(2), []byte{1})
	require.Equal(t, ErrInvalidPriority, err)
	_, err = b.WriteFrame(Priority(-1), []byte{1})
	require.Equal(t, ErrInvalidPriority, err)
	require.True(t, b.IsEmpty())
}

func TestBufferFrameAddedCallback(t *testing.T) {
	b := NewBuffer(1024)
	type added struct {
		tag FrameTag
		pri Priority
	}
	var got []added
	b.SetFrameAddedCallback(func(tag FrameTag, pri Priority, buf *Buffer) {
		require.Equal(t, b, buf)
		got = append(got, added{tag, pri})
	})
	tag1, err := b.WriteFrame(PriorityLow, []byte{1})
	require.NoError(t, err)
	tag2, err := b.WriteFrame(PriorityHigh, []byte{2})
	require.NoError(t, err)
	require.Equal(t, []added{{tag1, PriorityLow}, {tag2, PriorityHigh}}, got)
	require.NotEqual(t, tag1, tag2)
}

func TestBufferOutFrameCursor(t *testing.T) {
	b := NewBuffer(1024)
	require.Equal(t, ErrNotFound, b.OutFrameBegin())
	require.Equal(t, ErrInvalidState, b.OutFrameRemove())

	tag, err := b.WriteFrame(PriorityLow, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	require.NoError(t, b.OutFrameBegin())
	require.Equal(t, 4, b.OutFrameGetLength())
	require.Equal(t, tag, b.OutFrameGetTag())

	// sequential reads advance the cursor
	dst := make([]byte, 2)
	require.Equal(t, 2, b.OutFrameRead(2, dst))
	require.Equal(t, []byte{1, 2}, dst)
	require.Equal(t, 2, b.OutFrameRead(4, dst))
	require.Equal(t, []byte{3, 4}, dst)
	require.Equal(t, 0, b.OutFrameRead(1, dst))

	require.NoError(t, b.OutFrameRemove())
	require.True(t, b.IsEmpty())
}

func TestRxFrameBuffer(t *testing.T) {
	r := NewRxFrameBuffer(8)
	require.NoError(t, r.WriteBytes([]byte{1, 2, 3}))
	require.NoError(t, r.WriteBytes([]byte{4}))
	require.Equal(t, []byte{1, 2, 3, 4}, r.Frame())
	require.Equal(t, 4, r.Len())

	require.Equal(t, ErrNoBufs, r.WriteBytes(make([]byte, 5)))

	r.DiscardFrame()
	require.Equal(t, 0, r.Len())

	require.NoError(t, r.WriteBytes([]byte{9}))
	r.Clear()
	require.Equal(t, 0, r.Len())
}
