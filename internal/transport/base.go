package transport

import (
	"context"
	"errors"
	"time"

	"echowarp/internal/phase"
)

// H and T are the fixed timing constants spec §4.4 names: heartbeat period
// and read timeout. They are package-level defaults rather than hardcoded
// literals scattered through Run, with spec §9 fixing H=2s and §4.4/§5
// fixing T=5s. Run takes the heartbeat period as a parameter, which unit
// tests use for shorter periods; cmd/echowarp also exposes H and T as the
// --heartbeat-period and --read-timeout settings, which default to these
// same values.
const (
	DefaultHeartbeatPeriod = 2 * time.Second
	DefaultReadTimeout     = 5 * time.Second
	// ShutdownGrace is the sleep between sending LOCKED and closing
	// sockets (spec §4.4 shutdown step 3, §9's "keep it, but make it
	// configurable").
	ShutdownGrace = 5 * time.Second
)

// Run drives role through the heartbeat loop, reconnection, and shutdown
// sequence until ctx is done (the stop_util signal) or role reports a
// Fatal error. gate carries the stop_stream signal shared with the data
// plane (C7/C8): Run raises it to Running once the caller's initial
// handshake has already completed, pauses it during reconnection, and
// drops it to Stopped for good on the way out.
//
// Run assumes role has already completed its first handshake — the
// acceptance loop (C5) or connect sequence (C6) that produces that first
// Session is role-specific setup performed before Run is called, not part
// of the shared loop.
func Run(ctx context.Context, role Role, gate *phase.Gate, heartbeatPeriod, shutdownGrace time.Duration) error {
	gate.Set(phase.Running)

	lockedSent := false
	defer func() {
		if !lockedSent {
			// Best-effort: the connection may already be broken, in
			// which case there is no peer left to observe LOCKED.
			_ = role.HeartbeatOutbound(context.Background(), true)
		}
		gate.Set(phase.Stopped)
		time.Sleep(shutdownGrace)
		role.Close()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		err := heartbeatRound(ctx, role)
		if err == nil {
			if waitErr := sleepOrDone(ctx, heartbeatPeriod); waitErr != nil {
				return nil
			}
			continue
		}

		var terr *Error
		if !errors.As(err, &terr) {
			terr = wrap(Recoverable, err)
		}

		switch terr.Kind {
		case PeerLocked:
			if !role.IsServer() {
				// The client observed LOCKED: exit cleanly, sending no
				// further LOCKED of its own (spec §4.4 PeerLocked
				// disposition, B2).
				lockedSent = true
				return nil
			}
			// The server observed LOCKED from a client that is
			// shutting down; reconnect and wait for it (or another
			// peer) to come back (B3).
			fallthrough
		case Recoverable:
			gate.Set(phase.Paused)
			// Reconnect owns its own retry loop (accept/connect spaced
			// by H) and only returns once it either succeeds, the
			// reconnect budget is exhausted (Fatal), or ctx is done.
			if reconErr := role.Reconnect(ctx); reconErr != nil {
				return reconErr
			}
			gate.Set(phase.Running)
		case Fatal:
			return terr
		}
	}
}

// heartbeatRound performs exactly one heartbeat period's two phases, in
// the order role.InboundFirst dictates (spec §4.4's asymmetric roles
// table).
func heartbeatRound(ctx context.Context, role Role) error {
	if role.InboundFirst() {
		if err := role.HeartbeatInbound(ctx); err != nil {
			return err
		}
		return role.HeartbeatOutbound(ctx, false)
	}
	if err := role.HeartbeatOutbound(ctx, false); err != nil {
		return err
	}
	return role.HeartbeatInbound(ctx)
}

func sleepOrDone(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
