// Package streamer implements EchoWarp's Server Streamer (C7): pulling PCM
// frames from a CapturePort, sealing them, and emitting UDP datagrams to
// the authenticated peer through a bounded worker pool (spec §4.7).
//
// The capture-then-submit loop shape is grounded on the teacher's
// infrastructure/tunnel/dataplane/client/udp_chacha20 transport handler: a
// blocking read from one source feeding a bounded concurrent write path,
// adapted from TUN-packet/ChaCha20 framing to PCM-block/seal framing.
package streamer

import (
	"context"
	"net"

	"echowarp/internal/audio"
	"echowarp/internal/crypto"
	"echowarp/internal/logging"
	"echowarp/internal/phase"
	"echowarp/internal/workerpool"
)

// Streamer owns the capture device and submits sealed frames to the peer
// over a shared UDP socket.
type Streamer struct {
	capture audio.CapturePort
	conn    *net.UDPConn
	peer    *net.UDPAddr
	engine  *crypto.Engine
	gate    *phase.Gate
	pool    *workerpool.Pool
	log     logging.Logger
}

// New builds a Streamer. conn is the shared UDP socket owned by the
// transport base (spec §5: "UDP socket: owned by C4; C7 writes, C8
// reads"); peer is the authenticated client's address.
func New(capture audio.CapturePort, conn *net.UDPConn, peer *net.UDPAddr, engine *crypto.Engine, gate *phase.Gate, workers int, log logging.Logger) *Streamer {
	pool := workerpool.New(workers)
	pool.OnError(func(err error) { log.Warn("streamer: frame processing failed", "error", err) })
	return &Streamer{capture: capture, conn: conn, peer: peer, engine: engine, gate: gate, pool: pool, log: log}
}

// Run loops while the gate has not reached Stopped (spec §4.7's "while
// !stop_util"), blocking on stop_stream between frames.
func (s *Streamer) Run(ctx context.Context) error {
	defer s.shutdown()

	for {
		if err := s.gate.WaitRunning(ctx); err != nil {
			if err == phase.ErrStopped || ctx.Err() != nil {
				return nil
			}
			return err
		}

		block, err := s.capture.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || s.gate.IsStopped() {
				return nil
			}
			// Non-throwing on overflow (spec §4.7): log and keep
			// capturing rather than treating this as fatal.
			s.log.Warn("capture read failed", "error", err)
			continue
		}

		frame := block
		submitErr := s.pool.Submit(ctx, func(ctx context.Context) error {
			sealed, err := s.engine.Seal(frame)
			if err != nil {
				return err
			}
			_, err = s.conn.WriteToUDP(sealed, s.peer)
			return err
		})
		if submitErr != nil {
			if ctx.Err() != nil {
				return nil
			}
			return submitErr
		}
	}
}

func (s *Streamer) shutdown() {
	s.pool.Drain()
	_ = s.capture.Close()
}
