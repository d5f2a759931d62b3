// Package client implements EchoWarp's Transport Client (C6): the
// connect/authenticate specialization of the Transport Base driven by
// transport.Run.
//
// The connect-then-authenticate sequence and reconnect-attempt loop are
// grounded on the original Python's TransportBase.__reconnect /
// __perform_reconnect_attempts
// (original_source/echowarp/auth_and_heartbeat/transport_base.py), adapted
// to spec §4.4's reconnect-budget-then-fatal contract in place of the
// original's unconditional retry-until-event-set loop.
package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"echowarp/internal/codec"
	"echowarp/internal/crypto"
	"echowarp/internal/logging"
	"echowarp/internal/protocol"
	"echowarp/internal/session"
	"echowarp/internal/transport"
)

// Params configures a Role's connect and handshake behavior.
type Params struct {
	ServerTCPAddr        string // e.g. "192.168.1.10:4414"
	ComparabilityVersion string
	PasswordHash         string
	ReconnectBudget      int
	SocketBufferSize     int
	ConnectTimeout       time.Duration
	ReadTimeout          time.Duration
	HeartbeatPeriod      time.Duration
}

// Role implements transport.Role for the client side.
type Role struct {
	params Params
	log    logging.Logger

	conn net.Conn

	engine *crypto.Engine
	sess   *session.Session

	consecutiveFailures int

	// OnSession is invoked once per successful (re)handshake, so the
	// caller can (re)start the receiver (C8) against the new session.
	OnSession func(sess *session.Session, engine *crypto.Engine)
}

// New creates a client Role. It does not connect; call Connect for the
// first handshake.
func New(params Params, log logging.Logger) *Role {
	return &Role{params: params, log: log}
}

// Connect runs the handshake sequence of spec §4.6 over a fresh TCP
// connection to the server.
func (r *Role) Connect(ctx context.Context) error {
	dialer := net.Dialer{Timeout: r.params.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", r.params.ServerTCPAddr)
	if err != nil {
		return fmt.Errorf("client: dial %s: %w", r.params.ServerTCPAddr, err)
	}

	sess, engine, err := r.authenticate(conn)
	if err != nil {
		_ = conn.Close()
		return err
	}

	r.conn = conn
	r.sess = sess
	r.engine = engine
	if r.OnSession != nil {
		r.OnSession(sess, engine)
	}
	return nil
}

func (r *Role) authenticate(conn net.Conn) (*session.Session, *crypto.Engine, error) {
	engine, err := crypto.NewClientEngine()
	if err != nil {
		return nil, nil, fmt.Errorf("generate client engine: %w", err)
	}

	serverPub, err := transport.ReadFrame(conn, r.params.ReadTimeout, r.params.SocketBufferSize)
	if err != nil {
		return nil, nil, fmt.Errorf("receive server public key: %w", err)
	}
	if err := engine.LoadPeerPublicKey(serverPub); err != nil {
		return nil, nil, fmt.Errorf("load server public key: %w", err)
	}

	ownPub, err := engine.PublicKeyPEM()
	if err != nil {
		return nil, nil, fmt.Errorf("marshal public key: %w", err)
	}
	if err := transport.WriteFrame(conn, ownPub); err != nil {
		return nil, nil, fmt.Errorf("send public key: %w", err)
	}

	authWire, err := codec.EncodeStatus(r.params.ComparabilityVersion, r.params.PasswordHash, protocol.OK, nil, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("encode auth message: %w", err)
	}
	authCT, err := engine.EncryptAsym(authWire)
	if err != nil {
		return nil, nil, fmt.Errorf("encrypt auth message: %w", err)
	}
	if err := transport.WriteFrame(conn, authCT); err != nil {
		return nil, nil, fmt.Errorf("send auth message: %w", err)
	}

	respCT, err := transport.ReadFrame(conn, r.params.ReadTimeout, r.params.SocketBufferSize)
	if err != nil {
		return nil, nil, fmt.Errorf("receive auth response: %w", err)
	}
	respWire, err := engine.DecryptAsym(respCT)
	if err != nil {
		return nil, nil, fmt.Errorf("decrypt auth response: %w", err)
	}
	resp, err := codec.Decode(respWire)
	if err != nil {
		return nil, nil, fmt.Errorf("decode auth response: %w", err)
	}

	switch resp.ResponseCode {
	case protocol.OK:
		if resp.Config == nil {
			return nil, nil, fmt.Errorf("auth-ok response missing config sub-record")
		}
		if err := engine.InstallSession(
			resp.Config.AESKeyBase64, resp.Config.AESIVBase64,
			resp.Config.IsEncrypt, resp.Config.IsIntegrityControl,
		); err != nil {
			return nil, nil, fmt.Errorf("install session: %w", err)
		}
		sess := session.New(
			hostOnly(r.params.ServerTCPAddr),
			r.params.ComparabilityVersion,
			resp.Config.IsEncrypt, resp.Config.IsIntegrityControl,
			r.params.PasswordHash,
			r.params.ReconnectBudget,
			r.params.SocketBufferSize,
			r.params.HeartbeatPeriod,
		)
		return sess, engine, nil
	case protocol.Unauthorized:
		return nil, nil, fmt.Errorf("invalid password (401)")
	case protocol.Forbidden:
		return nil, nil, fmt.Errorf("peer banned (403)")
	case protocol.Conflict:
		return nil, nil, fmt.Errorf("comparability_version mismatch (409)")
	default:
		return nil, nil, fmt.Errorf("unexpected auth response code %d", resp.ResponseCode)
	}
}

func (r *Role) IsServer() bool     { return false }
func (r *Role) InboundFirst() bool { return false }

func (r *Role) HeartbeatOutbound(ctx context.Context, locked bool) error {
	label, code := protocol.LabelAccepted, protocol.Accepted
	if locked {
		label, code = protocol.LabelLocked, protocol.Locked
	}
	wire, err := codec.EncodeStatus(r.params.ComparabilityVersion, label, code, nil, nil)
	if err != nil {
		return wrapRecoverable(err)
	}
	sealed, err := r.engine.Seal(wire)
	if err != nil {
		return wrapRecoverable(err)
	}
	if err := transport.WriteFrame(r.conn, sealed); err != nil {
		return wrapRecoverable(err)
	}
	return nil
}

func (r *Role) HeartbeatInbound(ctx context.Context) error {
	frame, err := transport.ReadFrame(r.conn, r.params.ReadTimeout, r.params.SocketBufferSize)
	if err != nil {
		return wrapRecoverable(fmt.Errorf("read heartbeat: %w", err))
	}
	opened, err := r.engine.Open(frame)
	if err != nil {
		return wrapRecoverable(fmt.Errorf("open heartbeat: %w", err))
	}
	msg, err := codec.Decode(opened)
	if err != nil {
		return wrapRecoverable(fmt.Errorf("decode heartbeat: %w", err))
	}
	if msg.ResponseCode == protocol.Locked {
		return wrapPeerLocked(fmt.Errorf("server sent LOCKED"))
	}
	if msg.ResponseCode != protocol.Accepted {
		return wrapRecoverable(fmt.Errorf("unexpected heartbeat response code %d", msg.ResponseCode))
	}
	return nil
}

// Reconnect implements spec §4.4's reconnection sequence for the client
// side: one in-place heartbeat attempt, then a connect loop spaced by H
// until success, ctx is done, or the reconnect budget is exhausted.
func (r *Role) Reconnect(ctx context.Context) error {
	if err := r.HeartbeatOutbound(ctx, false); err == nil {
		if err := r.HeartbeatInbound(ctx); err == nil {
			return nil
		}
	}

	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.Connect(ctx); err != nil {
			r.consecutiveFailures++
			r.log.Warn("reconnect attempt failed", "error", err, "attempt", r.consecutiveFailures)
			if r.params.ReconnectBudget > 0 && r.consecutiveFailures >= r.params.ReconnectBudget {
				return wrapFatal(fmt.Errorf("reconnect budget exhausted after %d attempts: %w", r.consecutiveFailures, err))
			}
			if waitErr := sleepOrDone(ctx, r.params.HeartbeatPeriod); waitErr != nil {
				return waitErr
			}
			continue
		}
		r.consecutiveFailures = 0
		return nil
	}
}

func (r *Role) Close() {
	if r.conn != nil {
		_ = r.conn.Close()
	}
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

func wrapRecoverable(err error) error { return &transport.Error{Kind: transport.Recoverable, Err: err} }
func wrapPeerLocked(err error) error  { return &transport.Error{Kind: transport.PeerLocked, Err: err} }
func wrapFatal(err error) error       { return &transport.Error{Kind: transport.Fatal, Err: err} }

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
