package run

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTaskletSingleFlight(t *testing.T) {
	loop := NewLoop()
	var runs int
	task := NewTasklet(loop, func(ctx context.Context) {
		runs++
	})

	task.Post()
	task.Post()
	task.Post()
	require.True(t, task.IsPosted())
	require.NoError(t, loop.runIteration(context.Background()))
	require.Equal(t, 1, runs)
	require.False(t, task.IsPosted())

	task.Post()
	require.NoError(t, loop.runIteration(context.Background()))
	require.Equal(t, 2, runs)
}

func TestTaskletRepost(t *testing.T) {
	loop := NewLoop()
	var runs int
	var task *Tasklet
	task = NewTasklet(loop, func(ctx context.Context) {
		runs++
		if runs < 3 {
			task.Post()
		}
	})

	task.Post()
	for i := 0; i < 5; i++ {
		require.NoError(t, loop.runIteration(context.Background()))
	}
	require.Equal(t, 3, runs)
}

func TestLoopPollerError(t *testing.T) {
	loop := NewLoop()
	loop.Interval = time.Millisecond
	errPoll := errors.New("poll failed")
	loop.AddPoller(PollFunc(func(ctx context.Context) error {
		return errPoll
	}))

	errCh := make(chan error, 1)
	go func() {
		errCh <- loop.Run(context.Background())
	}()
	select {
	case err := <-errCh:
		require.Equal(t, errPoll, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop on poller error")
	}
}

func TestLoopTriggerNextCoalesces(t *testing.T) {
	loop := NewLoop()
	loop.TriggerNext()
	loop.TriggerNext()
	require.Len(t, loop.wakeUpCh, 1)
}

func TestLoopRunCanceled(t *testing.T) {
	loop := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- loop.Run(ctx)
	}()
	cancel()
	select {
	case err := <-errCh:
		require.Equal(t, context.Canceled, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop on cancel")
	}
}
