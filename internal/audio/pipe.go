package audio

import (
	"context"
	"io"
)

// PipeCapture reads fixed-size PCM blocks from an io.Reader (typically
// os.Stdin fed by an external capture process). Real device binding is an
// external collaborator per the core scope; this is plumbing, not a device
// driver.
type PipeCapture struct {
	r            io.Reader
	blockSize    int
	sampleRate   int
	channels     int
}

// NewPipeCapture wraps r, reading blockSize-byte PCM frames.
func NewPipeCapture(r io.Reader, blockSize, sampleRate, channels int) *PipeCapture {
	return &PipeCapture{r: r, blockSize: blockSize, sampleRate: sampleRate, channels: channels}
}

func (p *PipeCapture) Read(ctx context.Context) ([]byte, error) {
	buf := make([]byte, p.blockSize)
	done := make(chan error, 1)
	go func() {
		_, err := io.ReadFull(p.r, buf)
		done <- err
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			return nil, err
		}
		return buf, nil
	}
}

func (p *PipeCapture) SampleRate() int { return p.sampleRate }
func (p *PipeCapture) Channels() int   { return p.channels }
func (p *PipeCapture) Close() error    { return nil }

// PipePlayback writes PCM blocks to an io.Writer (typically os.Stdout piped
// to an external playback process).
type PipePlayback struct {
	w io.Writer
}

// NewPipePlayback wraps w.
func NewPipePlayback(w io.Writer) *PipePlayback {
	return &PipePlayback{w: w}
}

func (p *PipePlayback) Write(ctx context.Context, pcm []byte) error {
	_, err := p.w.Write(pcm)
	return err
}

func (p *PipePlayback) Close() error { return nil }
