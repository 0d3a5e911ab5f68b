package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewDefaultQueueSize(t *testing.T) {
	l := New(0)
	if cap(l.queue) != DefaultQueueSize {
		t.Errorf("queue size = %d, want %d", cap(l.queue), DefaultQueueSize)
	}
	if l.IsClosed() {
		t.Error("new loop is closed")
	}
}

func TestExecute(t *testing.T) {
	l := New(10).Start()
	defer l.Close()

	ran := false
	if err := l.Execute(context.Background(), func() error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !ran {
		t.Error("function did not run")
	}

	want := errors.New("failed")
	if err := l.Execute(context.Background(), func() error { return want }); !errors.Is(err, want) {
		t.Errorf("Execute() error = %v, want %v", err, want)
	}
}

func TestExecuteSerializes(t *testing.T) {
	l := New(100).Start()
	defer l.Close()

	var active, overlap atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Execute(context.Background(), func() error {
				if active.Add(1) > 1 {
					overlap.Add(1)
				}
				time.Sleep(100 * time.Microsecond)
				active.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if overlap.Load() != 0 {
		t.Errorf("%d calls overlapped", overlap.Load())
	}
}

func TestExecuteRecoversPanic(t *testing.T) {
	l := New(1).Start()
	defer l.Close()

	err := l.Execute(context.Background(), func() error { panic("boom") })
	if err == nil || err.Error() != "panic: boom" {
		t.Errorf("Execute() error = %v", err)
	}

	// The loop survives the panic.
	if err := l.Execute(context.Background(), func() error { return nil }); err != nil {
		t.Errorf("Execute() after panic error = %v", err)
	}
}

func TestExecuteContextCancelled(t *testing.T) {
	l := New(1).Start()
	defer l.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = l.Execute(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	defer close(release)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Execute(ctx, func() error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Execute() error = %v, want deadline exceeded", err)
	}
}

func TestExecuteAsync(t *testing.T) {
	l := New(10).Start()
	defer l.Close()

	done := make(chan struct{})
	if err := l.ExecuteAsync(func() error {
		close(done)
		return nil
	}); err != nil {
		t.Fatalf("ExecuteAsync() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async call did not run")
	}
}

func TestExecuteAsyncQueueFull(t *testing.T) {
	l := New(1)
	defer l.Close()

	// Not running, so the queue fills.
	if err := l.ExecuteAsync(func() error { return nil }); err != nil {
		t.Fatalf("first ExecuteAsync() error = %v", err)
	}
	if err := l.ExecuteAsync(func() error { return nil }); !errors.Is(err, ErrQueueFull) {
		t.Errorf("second ExecuteAsync() error = %v, want ErrQueueFull", err)
	}
}

func TestClose(t *testing.T) {
	l := New(10).Start()
	l.Close()
	l.Close()

	if !l.IsClosed() {
		t.Error("IsClosed() = false after Close")
	}
	if err := l.Execute(context.Background(), func() error { return nil }); !errors.Is(err, ErrClosed) {
		t.Errorf("Execute() error = %v, want ErrClosed", err)
	}
	if err := l.ExecuteAsync(func() error { return nil }); !errors.Is(err, ErrClosed) {
		t.Errorf("ExecuteAsync() error = %v, want ErrClosed", err)
	}
}

func TestRunStopsOnContext(t *testing.T) {
	l := New(10)
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(stopped)
	}()
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
