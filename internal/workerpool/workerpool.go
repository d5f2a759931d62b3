// Package workerpool implements the bounded worker pool spec §4.2/§4.3 puts
// in front of the Crypto Engine on both the server streamer (C7) and client
// receiver (C8): "submit seal+sendto to a bounded worker pool of size W...
// so that the capture loop is not stalled by crypto latency."
//
// The errgroup-per-stage pattern is grounded on the teacher's
// infrastructure/routing_layer/server_routing/routing.ServerRouter, which
// runs a fixed set of long-lived goroutines under one errgroup; Pool
// generalizes that to an arbitrary number of submitted jobs bounded by a
// golang.org/x/sync/semaphore weighted semaphore, since the capture/receive
// loop submits a new job per frame rather than starting W goroutines once.
package workerpool

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool runs submitted jobs with at most W running concurrently.
type Pool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu      sync.Mutex
	errs    []error
	onError func(error)
}

// New creates a Pool allowing at most w concurrent jobs. w<1 is treated as
// 1, matching spec §4.2's "default 1" worker count.
func New(w int) *Pool {
	if w < 1 {
		w = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(w))}
}

// OnError registers a callback invoked (from the submitting or a worker
// goroutine) whenever a submitted job returns a non-nil error. It is not
// safe to call once Submit has been used; set it immediately after New.
func (p *Pool) OnError(f func(error)) { p.onError = f }

// Submit blocks until a worker slot is free or ctx is done, then runs job
// on a new goroutine. Submit itself only blocks on acquiring the slot, not
// on the job's completion, so the capture/receive loop it backs is never
// stalled by crypto latency (spec §4.2).
func (p *Pool) Submit(ctx context.Context, job func(context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		if err := job(ctx); err != nil {
			p.record(err)
		}
	}()
	return nil
}

func (p *Pool) record(err error) {
	if p.onError != nil {
		p.onError(err)
		return
	}
	p.mu.Lock()
	p.errs = append(p.errs, err)
	p.mu.Unlock()
}

// Drain waits for every submitted job to finish. Spec §4.2/§4.3 call this
// on terminal shutdown, before the capture/playback device is released.
func (p *Pool) Drain() {
	p.wg.Wait()
}

// Errors returns every job error recorded since the Pool was created, when
// no OnError callback was registered; Drain does not clear them. It is meant for tests; production
// callers should use OnError to log errors as they happen instead of
// batching them up.
func (p *Pool) Errors() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]error, len(p.errs))
	copy(out, p.errs)
	return out
}
