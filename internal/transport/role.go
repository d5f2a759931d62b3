// Package transport implements the Transport Base (C4): the free function
// that drives the heartbeat loop, reconnection, and shutdown sequence
// shared by the server (C5) and client (C6) roles.
//
// Per spec §9's explicit redesign note — "the source's TransportBase uses
// virtual hooks... rewrite as an interface TransportRole with two
// implementations, the base loop is a free function parameterized by that
// interface" — Role is that interface and Run is that free function. The
// split mirrors the teacher's application.TunWorker /
// routing.ServerRouter|ClientRouter pairing: a narrow behavioral interface
// implemented per side, driven by one shared orchestrator.
package transport

import "context"

// Role is implemented once for the server (C5) and once for the client
// (C6). The base loop in Run never branches on which side it is driving
// except through InboundFirst and IsServer.
type Role interface {
	// IsServer reports which side this role drives, for the PeerLocked
	// disposition: a server reconnects (the peer may return), a client
	// exits cleanly (spec §4.4's error taxonomy).
	IsServer() bool

	// InboundFirst reports the heartbeat phase order: true for the
	// server ("1. receive+validate; 2. send status"), false for the
	// client ("1. send status; 2. receive+validate") — spec §4.4.
	InboundFirst() bool

	// HeartbeatInbound performs the "receive+validate" phase: read one
	// sealed control message with read timeout T, open and decode it,
	// and classify the outcome. A nil return means the peer's message
	// was a well-formed ACCEPTED. Any non-nil return is a *Error with
	// its Kind set (Recoverable for timeout/decode/integrity failure,
	// PeerLocked if the peer's message carried code 423).
	HeartbeatInbound(ctx context.Context) error

	// HeartbeatOutbound sends one sealed status control message:
	// ACCEPTED (202) normally, or LOCKED (423) when locked is true. A
	// side only ever sends LOCKED once per session; callers (Run) must
	// not call this with locked=true more than once without an
	// intervening Reconnect.
	HeartbeatOutbound(ctx context.Context, locked bool) error

	// Reconnect runs a full reconnection: one in-place heartbeat
	// round-trip attempt, then (if that fails) tearing down and
	// recreating the TCP connection (accept/connect) and re-running the
	// handshake (spec §4.4's numbered reconnection sequence). The
	// client returns a *Error{Kind: Fatal} once its reconnect budget is
	// exhausted. The server has no budget of its own here: it keeps
	// accepting (failed handshakes count against the peer in the ban
	// ledger) and returns a *Error{Kind: Fatal} only when accepting
	// itself fails or ctx is done.
	Reconnect(ctx context.Context) error

	// Close tears down the role's TCP sockets (the control connection
	// and, on the server, the listener), swallowing socket errors, per
	// spec §4.4's shutdown sequence step 4. The UDP socket is not owned
	// by the role and is not closed here.
	Close()
}
