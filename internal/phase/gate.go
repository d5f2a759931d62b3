// Package phase implements the shared running/paused/stopped signal that
// couples the heartbeat loop, the reconnect sequence, and the data plane
// (spec §4.4, §5, §9).
//
// spec §9 explicitly calls for modeling stop_util/stop_stream as one
// tri-state enum rather than two independent booleans ("a small state
// machine... modeled explicitly as an enum{Running,Paused,Stopping}"); Gate
// is that enum plus the wait-with-timeout primitive the design notes
// require, built on a channel that is swapped out on every transition
// rather than a sync.Cond, so WaitRunning can select on ctx.Done() without
// spinning up a goroutine per call.
package phase

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned by WaitRunning once the gate has reached its
// terminal phase.
var ErrStopped = errors.New("phase: gate stopped")

// Phase is the tri-state signal. Stopped is terminal and monotonic: once a
// Gate reaches Stopped it never leaves it (spec §5: "stop_util is
// monotonic").
type Phase int32

const (
	Running Phase = iota
	Paused
	Stopped
)

func (p Phase) String() string {
	switch p {
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Gate holds the current Phase and lets goroutines wait for a transition
// out of Paused, or observe Stopped, without busy-polling.
type Gate struct {
	mu    sync.Mutex
	phase Phase
	wake  chan struct{}
}

// NewGate returns a Gate starting in Paused: the data plane must not run
// until the transport base explicitly flips it to Running after a
// successful handshake (spec §5's ordering guarantee).
func NewGate() *Gate {
	return &Gate{phase: Paused, wake: make(chan struct{})}
}

// Set transitions the gate. Setting Stopped while already Stopped, or
// setting the phase already held, is a no-op. No phase may follow Stopped
// (the streamer/receiver never clear stop_stream once stop_util fires).
func (g *Gate) Set(p Phase) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase == Stopped || g.phase == p {
		return
	}
	g.phase = p
	close(g.wake)
	g.wake = make(chan struct{})
}

// Current returns the gate's phase.
func (g *Gate) Current() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

// IsStopped reports whether the gate has reached its terminal phase.
func (g *Gate) IsStopped() bool { return g.Current() == Stopped }

// WaitRunning blocks until the gate reaches Running, reaches Stopped (in
// which case it returns ErrStopped), or ctx is done (in which case it
// returns ctx.Err()). This is the "stop_stream.wait" blocking point named
// in spec §5's suspension-points list.
func (g *Gate) WaitRunning(ctx context.Context) error {
	for {
		g.mu.Lock()
		p := g.phase
		wake := g.wake
		g.mu.Unlock()

		switch p {
		case Running:
			return nil
		case Stopped:
			return ErrStopped
		}

		select {
		case <-wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
