package phase

import (
	"context"
	"testing"
	"time"
)

func TestGate_StartsPaused(t *testing.T) {
	g := NewGate()
	if g.Current() != Paused {
		t.Fatalf("new gate phase = %v, want Paused", g.Current())
	}
}

func TestGate_WaitRunning_UnblocksOnRunning(t *testing.T) {
	g := NewGate()
	done := make(chan error, 1)
	go func() {
		done <- g.WaitRunning(context.Background())
	}()

	time.Sleep(10 * time.Millisecond)
	g.Set(Running)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitRunning returned %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitRunning did not unblock on Running")
	}
}

func TestGate_WaitRunning_ReturnsErrStoppedOnStopped(t *testing.T) {
	g := NewGate()
	done := make(chan error, 1)
	go func() {
		done <- g.WaitRunning(context.Background())
	}()

	time.Sleep(10 * time.Millisecond)
	g.Set(Stopped)

	select {
	case err := <-done:
		if err != ErrStopped {
			t.Fatalf("WaitRunning returned %v, want ErrStopped", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitRunning did not unblock on Stopped")
	}
}

func TestGate_StoppedIsMonotonic(t *testing.T) {
	g := NewGate()
	g.Set(Stopped)
	g.Set(Running)
	if g.Current() != Stopped {
		t.Fatalf("phase after Set(Running) post-Stopped = %v, want Stopped", g.Current())
	}
}

func TestGate_WaitRunning_ObservesCtxCancelWithinBound(t *testing.T) {
	g := NewGate()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := g.WaitRunning(ctx)
	if err == nil {
		t.Fatal("expected context deadline error")
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("WaitRunning took %v, want well under bound", elapsed)
	}
}

func TestGate_PauseThenResume(t *testing.T) {
	g := NewGate()
	g.Set(Running)
	if err := g.WaitRunning(context.Background()); err != nil {
		t.Fatalf("WaitRunning on already-running gate: %v", err)
	}

	g.Set(Paused)
	done := make(chan error, 1)
	go func() { done <- g.WaitRunning(context.Background()) }()

	select {
	case <-done:
		t.Fatal("WaitRunning returned before resume")
	case <-time.After(50 * time.Millisecond):
	}

	g.Set(Running)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitRunning after resume: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitRunning did not unblock after resume")
	}
}
