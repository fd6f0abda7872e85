// Package run provides a single-threaded cooperative run loop.
package run

import (
	"context"
	"sync"
	"time"
)

// Loop executes posted tasklets and registered pollers on a single
// goroutine. Notifications from other goroutines (or event contexts)
// never run work directly; they post a tasklet or trigger the next
// iteration.
type Loop struct {
	Interval time.Duration

	pollers []Poller

	tasks taskList
	lock  sync.Mutex

	wakeUpCh chan struct{}
}

// Poller is invoked on every loop iteration.
type Poller interface {
	Poll(context.Context) error
}

// PollFunc is the func form of Poller.
type PollFunc func(context.Context) error

// Poll implements Poller.
func (f PollFunc) Poll(ctx context.Context) error {
	return f(ctx)
}

type taskList struct {
	head *Tasklet
	tail *Tasklet
}

func (l *taskList) append(t *Tasklet) {
	if l.head == nil {
		l.head = t
	} else {
		l.tail.next = t
	}
	l.tail = t
}

func (l *taskList) splice(src *taskList) {
	l.head, l.tail, src.head, src.tail = src.head, src.tail, nil, nil
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{
		Interval: 100 * time.Millisecond,
		wakeUpCh: make(chan struct{}, 1),
	}
}

// AddPoller registers pollers invoked every iteration.
func (l *Loop) AddPoller(pollers ...Poller) *Loop {
	l.pollers = append(l.pollers, pollers...)
	return l
}

// TriggerNext schedules the next iteration to run immediately.
// Safe to call from any goroutine; pending triggers coalesce.
func (l *Loop) TriggerNext() {
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

// Run implements Runnable. It returns when the context is done or
// a poller fails; a poller error is fatal to the loop.
func (l *Loop) Run(ctx context.Context) error {
	interval := l.Interval
	if interval == 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-l.wakeUpCh:
		}
		if err := l.runIteration(ctx); err != nil {
			return err
		}
	}
}

func (l *Loop) post(t *Tasklet) {
	l.lock.Lock()
	l.tasks.append(t)
	l.lock.Unlock()
	l.TriggerNext()
}

func (l *Loop) runIteration(ctx context.Context) error {
	var tasks taskList
	l.lock.Lock()
	tasks.splice(&l.tasks)
	l.lock.Unlock()
	for t := tasks.head; t != nil; {
		next := t.next
		t.next = nil
		t.run(ctx)
		t = next
	}
	for _, p := range l.pollers {
		if err := p.Poll(ctx); err != nil {
			return err
		}
	}
	return nil
}
