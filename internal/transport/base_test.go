package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"echowarp/internal/phase"
)

type fakeRole struct {
	isServer     bool
	inboundFirst bool

	inboundCalls  int32
	outboundCalls int32
	reconnects    int32

	inboundErr   error
	reconnectErr error

	closed int32
}

func (f *fakeRole) IsServer() bool      { return f.isServer }
func (f *fakeRole) InboundFirst() bool  { return f.inboundFirst }

func (f *fakeRole) HeartbeatInbound(ctx context.Context) error {
	n := atomic.AddInt32(&f.inboundCalls, 1)
	if f.inboundErr != nil && n == 1 {
		return f.inboundErr
	}
	return errStop
}

func (f *fakeRole) HeartbeatOutbound(ctx context.Context, locked bool) error {
	atomic.AddInt32(&f.outboundCalls, 1)
	return nil
}

func (f *fakeRole) Reconnect(ctx context.Context) error {
	atomic.AddInt32(&f.reconnects, 1)
	return f.reconnectErr
}

func (f *fakeRole) Close() { atomic.AddInt32(&f.closed, 1) }

// errStop is a sentinel the fake returns after its first scripted error so
// the test's calling goroutine can cancel ctx and let Run exit.
var errStop = errors.New("fake: no more scripted errors")

func TestRun_RecoverableErrorTriggersReconnectThenContinues(t *testing.T) {
	f := &fakeRole{isServer: true, inboundFirst: true, inboundErr: wrap(Recoverable, errors.New("timeout"))}
	ctx, cancel := context.WithCancel(context.Background())
	gate := phase.NewGate()

	done := make(chan error, 1)
	go func() { done <- Run(ctx, f, gate, 10*time.Millisecond, 10*time.Millisecond) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil after ctx cancel", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after ctx cancel")
	}

	if atomic.LoadInt32(&f.reconnects) < 1 {
		t.Fatal("expected at least one Reconnect call after a recoverable error")
	}
	if atomic.LoadInt32(&f.closed) != 1 {
		t.Fatal("expected Close to be called exactly once on shutdown")
	}
}

func TestRun_FatalErrorStopsLoop(t *testing.T) {
	fatalErr := wrap(Fatal, errors.New("reconnect budget exhausted"))
	f := &fakeRole{isServer: true, inboundFirst: true, inboundErr: fatalErr}

	ctx := context.Background()
	gate := phase.NewGate()

	err := Run(ctx, f, gate, 10*time.Millisecond, 10*time.Millisecond)
	if err == nil {
		t.Fatal("expected Run to return the fatal error")
	}
	var terr *Error
	if !errors.As(err, &terr) || terr.Kind != Fatal {
		t.Fatalf("expected Fatal kind, got %v", err)
	}
	if !gate.IsStopped() {
		t.Fatal("expected gate to reach Stopped after fatal error")
	}
}

func TestRun_ClientExitsCleanlyOnPeerLocked(t *testing.T) {
	f := &fakeRole{isServer: false, inboundFirst: false, inboundErr: wrap(PeerLocked, errors.New("locked"))}

	ctx := context.Background()
	gate := phase.NewGate()

	err := Run(ctx, f, gate, 10*time.Millisecond, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("expected clean exit on PeerLocked for client, got %v", err)
	}
	if atomic.LoadInt32(&f.reconnects) != 0 {
		t.Fatal("client should not reconnect after observing LOCKED")
	}
}

func TestRun_ServerReconnectsOnPeerLocked(t *testing.T) {
	f := &fakeRole{isServer: true, inboundFirst: true, inboundErr: wrap(PeerLocked, errors.New("peer locked"))}
	ctx, cancel := context.WithCancel(context.Background())
	gate := phase.NewGate()

	done := make(chan error, 1)
	go func() { done <- Run(ctx, f, gate, 10*time.Millisecond, 10*time.Millisecond) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	if atomic.LoadInt32(&f.reconnects) < 1 {
		t.Fatal("expected server to reconnect after observing peer LOCKED")
	}
}
