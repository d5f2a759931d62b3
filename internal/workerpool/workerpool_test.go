package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_RunsJobsConcurrentlyUpToLimit(t *testing.T) {
	p := New(2)
	var running int32
	var maxRunning int32
	release := make(chan struct{})

	for i := 0; i < 2; i++ {
		if err := p.Submit(context.Background(), func(ctx context.Context) error {
			n := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&maxRunning)
				if n <= old || atomic.CompareAndSwapInt32(&maxRunning, old, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&running, -1)
			return nil
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	p.Drain()

	if atomic.LoadInt32(&maxRunning) != 2 {
		t.Fatalf("maxRunning = %d, want 2", maxRunning)
	}
}

func TestPool_SubmitBlocksUntilSlotFree(t *testing.T) {
	p := New(1)
	block := make(chan struct{})
	started := make(chan struct{})

	if err := p.Submit(context.Background(), func(ctx context.Context) error {
		close(started)
		<-block
		return nil
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := p.Submit(ctx, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected second Submit to block and time out while pool is full")
	}
	close(block)
	p.Drain()
}

func TestPool_RecordsJobErrors(t *testing.T) {
	p := New(1)
	boom := errTest("boom")
	if err := p.Submit(context.Background(), func(context.Context) error { return boom }); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	p.Drain()

	errs := p.Errors()
	if len(errs) != 1 || errs[0] != boom {
		t.Fatalf("Errors() = %v, want [%v]", errs, boom)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
