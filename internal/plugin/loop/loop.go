// Package loop serializes work onto a single goroutine.
//
// Script interpreters such as goja and gopher-lua are not goroutine-safe.
// Every operation on an interpreter must run on the goroutine that owns it;
// a Loop marshals calls from any goroutine onto that owner.
//
//	l := loop.New(0)
//	go l.Run(ctx)
//	defer l.Close()
//
//	// From any goroutine:
//	err := l.Execute(ctx, func() error {
//	    _, err := vm.RunString("1 + 1")
//	    return err
//	})
//
// Execute must not be called from a function already running on the loop;
// that call would wait on itself.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is the queue size used when New is given zero.
const DefaultQueueSize = 100

var (
	// ErrClosed is returned when using a closed loop.
	ErrClosed = errors.New("loop is closed")

	// ErrQueueFull is returned by ExecuteAsync when the queue has no room.
	ErrQueueFull = errors.New("loop queue is full")
)

// call is one queued operation.
type call struct {
	fn     func() error
	result chan error
}

// Loop runs queued functions one at a time on the goroutine that calls Run.
type Loop struct {
	queue  chan *call
	closed atomic.Bool
	done   chan struct{}

	closeOnce sync.Once
}

// New creates a loop. queueSize bounds how many calls can wait.
func New(queueSize int) *Loop {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Loop{
		queue: make(chan *call, queueSize),
		done:  make(chan struct{}),
	}
}

// Start runs the loop on a new goroutine until Close is called.
func (l *Loop) Start() *Loop {
	go l.Run(context.Background())
	return l
}

// Run processes queued calls until ctx is done or Close is called.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			l.drain(ctx.Err())
			return
		case <-l.done:
			l.drain(ErrClosed)
			return
		case c := <-l.queue:
			c.result <- l.run(c)
			close(c.result)
		}
	}
}

// run executes one call, turning a panic into an error.
func (l *Loop) run(c *call) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case error:
				err = v
			default:
				err = fmt.Errorf("panic: %v", v)
			}
		}
	}()
	return c.fn()
}

func (l *Loop) drain(err error) {
	for {
		select {
		case c := <-l.queue:
			c.result <- err
			close(c.result)
		default:
			return
		}
	}
}

// Execute runs fn on the loop and waits for it. If ctx ends first, Execute
// returns ctx.Err() and fn may still run later.
func (l *Loop) Execute(ctx context.Context, fn func() error) error {
	if l.closed.Load() {
		return ErrClosed
	}

	c := &call{fn: fn, result: make(chan error, 1)}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrClosed
	case l.queue <- c:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err, ok := <-c.result:
		if !ok {
			return ErrClosed
		}
		return err
	}
}

// ExecuteAsync queues fn without waiting for it.
func (l *Loop) ExecuteAsync(fn func() error) error {
	if l.closed.Load() {
		return ErrClosed
	}

	c := &call{fn: fn, result: make(chan error, 1)}

	select {
	case <-l.done:
		return ErrClosed
	case l.queue <- c:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the loop. Calls still queued fail with ErrClosed.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.done)
	})
}

// IsClosed reports whether Close has been called.
func (l *Loop) IsClosed() bool {
	return l.closed.Load()
}
