package run

import (
	"context"
	"sync/atomic"
)

// Tasklet is a deferred task executed on the loop goroutine.
// Post is single-flight: while a post is pending, further posts are
// no-ops, regardless of how many events fired in between.
type Tasklet struct {
	loop   *Loop
	fn     func(context.Context)
	posted int32
	next   *Tasklet
}

// NewTasklet creates a Tasklet bound to the loop.
func NewTasklet(loop *Loop, fn func(context.Context)) *Tasklet {
	return &Tasklet{loop: loop, fn: fn}
}

// Post schedules the tasklet for the next loop iteration.
// Safe to call from any goroutine or event callback.
func (t *Tasklet) Post() {
	if !atomic.CompareAndSwapInt32(&t.posted, 0, 1) {
		return
	}
	t.loop.post(t)
}

// IsPosted reports whether a post is pending.
func (t *Tasklet) IsPosted() bool {
	return atomic.LoadInt32(&t.posted) != 0
}

// run clears the posted flag before executing so the body may re-post.
func (t *Tasklet) run(ctx context.Context) {
	atomic.StoreInt32(&t.posted, 0)
	t.fn(ctx)
}
