// Package audiofake provides in-memory audio.CapturePort and
// audio.PlaybackPort implementations for tests, standing in for the real
// device I/O that spec §1 places outside core scope.
package audiofake

import (
	"context"
	"sync"

	"echowarp/internal/audio"
)

// Capture replays a fixed sequence of PCM blocks, one per Read call, then
// blocks until ctx is done. It satisfies audio.CapturePort.
type Capture struct {
	sampleRate int
	channels   int

	mu     sync.Mutex
	blocks [][]byte
	next   int
}

var _ audio.CapturePort = (*Capture)(nil)

// NewCapture builds a Capture that yields blocks in order, then stalls.
func NewCapture(sampleRate, channels int, blocks [][]byte) *Capture {
	return &Capture{sampleRate: sampleRate, channels: channels, blocks: blocks}
}

func (c *Capture) Read(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	if c.next < len(c.blocks) {
		b := c.blocks[c.next]
		c.next++
		c.mu.Unlock()
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	}
	c.mu.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *Capture) SampleRate() int { return c.sampleRate }
func (c *Capture) Channels() int   { return c.channels }
func (c *Capture) Close() error    { return nil }

// Playback records every block written to it for later assertion.
type Playback struct {
	mu     sync.Mutex
	writes [][]byte
	closed bool
}

var _ audio.PlaybackPort = (*Playback)(nil)

func NewPlayback() *Playback { return &Playback{} }

func (p *Playback) Write(_ context.Context, pcm []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	p.writes = append(p.writes, cp)
	return nil
}

func (p *Playback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Writes returns every block handed to Write, in order.
func (p *Playback) Writes() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.writes))
	copy(out, p.writes)
	return out
}

// Closed reports whether Close has been called.
func (p *Playback) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
