// Package receiver implements EchoWarp's Client Receiver (C8): reading UDP
// datagrams, opening them through a bounded worker pool, and writing PCM to
// a PlaybackPort (spec §4.8).
//
// The recvfrom-then-submit loop shape mirrors streamer.Streamer, grounded
// on the same teacher transport handler, read in the opposite direction.
package receiver

import (
	"context"
	"errors"
	"net"
	"time"

	"echowarp/internal/audio"
	"echowarp/internal/crypto"
	"echowarp/internal/logging"
	"echowarp/internal/phase"
	"echowarp/internal/workerpool"
)

// Receiver owns the playback device and consumes sealed datagrams from the
// shared UDP socket.
type Receiver struct {
	conn        *net.UDPConn
	playback    audio.PlaybackPort
	engine      *crypto.Engine
	gate        *phase.Gate
	pool        *workerpool.Pool
	log         logging.Logger
	readBufSize int
	readTimeout time.Duration
}

// New builds a Receiver. conn is the shared UDP socket (spec §5: "C8
// reads"); bufSize bounds a single recvfrom call and should be large
// enough for one sealed PCM block; readTimeout bounds each recvfrom so the
// loop can observe gate/ctx transitions between datagrams.
func New(conn *net.UDPConn, playback audio.PlaybackPort, engine *crypto.Engine, gate *phase.Gate, workers, bufSize int, readTimeout time.Duration, log logging.Logger) *Receiver {
	pool := workerpool.New(workers)
	pool.OnError(func(err error) { log.Warn("receiver: frame processing failed", "error", err) })
	return &Receiver{conn: conn, playback: playback, engine: engine, gate: gate, pool: pool, log: log, readBufSize: bufSize, readTimeout: readTimeout}
}

// Run loops while the gate has not reached Stopped (spec §4.8's "while
// !stop_util"), blocking on stop_stream between datagrams.
func (r *Receiver) Run(ctx context.Context) error {
	defer r.shutdown()

	buf := make([]byte, r.readBufSize)
	for {
		if err := r.gate.WaitRunning(ctx); err != nil {
			if err == phase.ErrStopped || ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := r.conn.SetReadDeadline(time.Now().Add(r.readTimeout)); err != nil {
			return err
		}

		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil || r.gate.IsStopped() {
				return nil
			}
			r.log.Warn("udp read failed", "error", err)
			continue
		}

		frame := make([]byte, n)
		copy(frame, buf[:n])

		submitErr := r.pool.Submit(ctx, func(ctx context.Context) error {
			opened, err := r.engine.Open(frame)
			if err != nil {
				// Integrity/decrypt failure on a data frame is dropped,
				// never fatal for the session (spec §7).
				r.log.Warn("dropping frame: open failed", "error", err)
				return nil
			}
			return r.playback.Write(ctx, opened)
		})
		if submitErr != nil {
			if ctx.Err() != nil {
				return nil
			}
			return submitErr
		}
	}
}

func (r *Receiver) shutdown() {
	r.pool.Drain()
	_ = r.playback.Close()
}
