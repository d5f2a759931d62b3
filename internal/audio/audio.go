// Package audio defines the PCM capture/playback boundary (spec §1, §4):
// device enumeration and opening are explicitly out of core scope ("external
// collaborators"), so CapturePort and PlaybackPort are the seam the core
// streamer/receiver code is written against.
package audio

import "context"

// CapturePort yields 16-bit signed little-endian interleaved PCM blocks
// from a capture device at a negotiated sample rate and channel count
// (spec §1, "PCM Frame"). Read returns one block per call, sized around
// ~1024 samples, and must not throw on buffer overflow — an overrun is
// reported to the caller via err, not a panic, so the streamer's capture
// loop (spec §4.2) can log and continue.
type CapturePort interface {
	// Read blocks until one PCM block is available, ctx is done, or the
	// device reports an error.
	Read(ctx context.Context) ([]byte, error)
	// SampleRate and Channels report the negotiated capture format.
	SampleRate() int
	Channels() int
	// Close releases the capture device.
	Close() error
}

// PlaybackPort consumes 16-bit signed little-endian interleaved PCM blocks
// of arbitrary size (spec §1, §4.2's client receiver writes "decoded"
// blocks as they arrive, with no re-blocking to a fixed size).
type PlaybackPort interface {
	// Write blocks until the block has been accepted by the device or an
	// error occurs.
	Write(ctx context.Context, pcm []byte) error
	// Close releases the playback device.
	Close() error
}
