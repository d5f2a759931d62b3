// Package server implements EchoWarp's Transport Server (C5): the
// listen/accept/authenticate specialization of the Transport Base driven by
// transport.Run.
//
// The accept-then-authenticate sequence is grounded on the original
// Python's TransportServer._established_connection /
// __authenticate_client (original_source/echowarp/auth_and_heartbeat/transport_server.py),
// adapted to the response-code/ban-ledger contract spec §4.5 spells out
// (401/403/409 replies, ledger bookkeeping) in place of the original's
// looser exception-driven control flow.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/time/rate"

	"echowarp/internal/banledger"
	"echowarp/internal/codec"
	"echowarp/internal/crypto"
	"echowarp/internal/logging"
	"echowarp/internal/protocol"
	"echowarp/internal/session"
	"echowarp/internal/transport"
)

// Params configures a Role's handshake and accept behavior.
type Params struct {
	TCPAddr              string // e.g. "0.0.0.0:4414"
	ComparabilityVersion string
	PasswordHash         string // base64 of UTF-8 password, or "" if none configured
	Encrypt              bool
	Integrity            bool
	ReconnectBudget      int
	SocketBufferSize     int
	ReadTimeout          time.Duration
	HeartbeatPeriod      time.Duration

	// AcceptRate and AcceptBurst bound how fast the acceptance loop works
	// through incoming connections, ahead of the ban ledger, so a flood of
	// connection attempts costs the flooder time rather than the listener.
	// Zero AcceptRate disables limiting.
	AcceptRate  rate.Limit
	AcceptBurst int
}

// Role implements transport.Role for the server side.
type Role struct {
	params Params
	ledger *banledger.Ledger
	log    logging.Logger

	listener *net.TCPListener
	limiter  *rate.Limiter
	conn     net.Conn
	peerIP   string

	engine *crypto.Engine
	sess   *session.Session

	// OnSession is invoked once per successful (re)handshake with the new
	// session/engine pair, so the caller can (re)start the data plane
	// (C7) against it. It runs synchronously inside Accept/Reconnect.
	OnSession func(sess *session.Session, engine *crypto.Engine)
}

// New creates a server Role and binds its TCP listener.
func New(params Params, ledger *banledger.Ledger, log logging.Logger) (*Role, error) {
	addr, err := net.ResolveTCPAddr("tcp", params.TCPAddr)
	if err != nil {
		return nil, fmt.Errorf("server: resolve %s: %w", params.TCPAddr, err)
	}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("server: listen %s: %w", params.TCPAddr, err)
	}

	var limiter *rate.Limiter
	if params.AcceptRate > 0 {
		burst := params.AcceptBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(params.AcceptRate, burst)
	}

	return &Role{params: params, ledger: ledger, log: log, listener: ln, limiter: limiter}, nil
}

// Addr returns the listener's bound address, useful when TCPAddr asked for
// an ephemeral port (":0") in tests.
func (r *Role) Addr() net.Addr { return r.listener.Addr() }

// Accept runs the acceptance loop (spec §4.5) until a client successfully
// authenticates or ctx is done. It is called once before transport.Run for
// the very first handshake.
func (r *Role) Accept(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.listener.SetDeadline(time.Now().Add(r.params.ReadTimeout)); err != nil {
			return fmt.Errorf("server: set accept deadline: %w", err)
		}
		conn, err := r.listener.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("server: accept: %w", err)
		}

		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				_ = conn.Close()
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}
		}

		// Step 2 (spec §4.5): only a peer that is BANNED and has already
		// had its first-contact message is rejected here, with a log line
		// but no handshake or reply. A
		// banned peer's first contact since the ban (or since process
		// start, for a ban loaded from the ban file) falls through to
		// authenticate, which replies FORBIDDEN (403) at step f.
		host := hostOnly(conn.RemoteAddr().String())
		if r.ledger.IsBanned(host) && !r.ledger.FirstContact(host) {
			r.log.Warn("rejecting already-known banned peer", "ip", host)
			r.ledger.Fail(host)
			_ = r.ledger.Persist()
			_ = conn.Close()
			continue
		}

		sess, engine, authErr := r.authenticate(conn, host)
		if authErr != nil {
			r.ledger.Fail(host)
			_ = r.ledger.Persist()
			_ = conn.Close()
			r.log.Warn("client authentication failed", "ip", host, "error", authErr)
			continue
		}

		r.ledger.Succeed(host)
		_ = r.ledger.Persist()
		r.conn = conn
		r.peerIP = host
		r.engine = engine
		r.sess = sess
		if r.OnSession != nil {
			r.OnSession(sess, engine)
		}
		return nil
	}
}

// authenticate runs spec §4.5 step 3's handshake over a freshly accepted
// conn and returns the resulting Session and Engine on success.
func (r *Role) authenticate(conn net.Conn, peerIP string) (*session.Session, *crypto.Engine, error) {
	engine, err := crypto.NewServerEngine()
	if err != nil {
		return nil, nil, fmt.Errorf("generate server engine: %w", err)
	}

	pub, err := engine.PublicKeyPEM()
	if err != nil {
		return nil, nil, fmt.Errorf("marshal public key: %w", err)
	}
	if err := transport.WriteFrame(conn, pub); err != nil {
		return nil, nil, fmt.Errorf("send public key: %w", err)
	}

	peerPub, err := transport.ReadFrame(conn, r.params.ReadTimeout, r.params.SocketBufferSize)
	if err != nil {
		return nil, nil, fmt.Errorf("receive peer public key: %w", err)
	}
	if err := engine.LoadPeerPublicKey(peerPub); err != nil {
		return nil, nil, fmt.Errorf("load peer public key: %w", err)
	}

	encrypted, err := transport.ReadFrame(conn, r.params.ReadTimeout, r.params.SocketBufferSize)
	if err != nil {
		return nil, nil, fmt.Errorf("receive auth message: %w", err)
	}
	plain, err := engine.DecryptAsym(encrypted)
	if err != nil {
		return nil, nil, fmt.Errorf("decrypt auth message: %w", err)
	}
	clientMsg, err := codec.Decode(plain)
	if err != nil {
		return nil, nil, fmt.Errorf("decode auth message: %w", err)
	}

	if clientMsg.Message != r.params.PasswordHash {
		if sendErr := r.sendAsymStatus(conn, engine, protocol.LabelUnauthorized, protocol.Unauthorized); sendErr != nil {
			return nil, nil, fmt.Errorf("send unauthorized reply: %w", sendErr)
		}
		return nil, nil, fmt.Errorf("password mismatch from %s", peerIP)
	}

	if clientMsg.ComparabilityVersion != r.params.ComparabilityVersion {
		if sendErr := r.sendAsymStatus(conn, engine, protocol.LabelConflict, protocol.Conflict); sendErr != nil {
			return nil, nil, fmt.Errorf("send conflict reply: %w", sendErr)
		}
		return nil, nil, fmt.Errorf("version mismatch from %s: peer=%s local=%s", peerIP, clientMsg.ComparabilityVersion, r.params.ComparabilityVersion)
	}

	if r.ledger.IsBanned(peerIP) {
		if sendErr := r.sendAsymStatus(conn, engine, protocol.LabelForbidden, protocol.Forbidden); sendErr != nil {
			return nil, nil, fmt.Errorf("send forbidden reply: %w", sendErr)
		}
		return nil, nil, fmt.Errorf("peer %s is banned", peerIP)
	}

	engine.MarkInstalled(r.params.Encrypt, r.params.Integrity)
	failed := protocol.IntPtr(r.ledger.TotalFailures(peerIP))
	retry := protocol.IntPtr(r.params.ReconnectBudget)
	wire, err := codec.EncodeAuthOK(
		r.params.ComparabilityVersion,
		r.params.Encrypt, r.params.Integrity,
		engine.SessionKeyBase64(), engine.SessionIVBase64(),
		failed, retry,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("encode auth-ok: %w", err)
	}
	ct, err := engine.EncryptAsym(wire)
	if err != nil {
		return nil, nil, fmt.Errorf("encrypt auth-ok: %w", err)
	}
	if err := transport.WriteFrame(conn, ct); err != nil {
		return nil, nil, fmt.Errorf("send auth-ok: %w", err)
	}

	sess := session.New(
		peerIP,
		r.params.ComparabilityVersion,
		r.params.Encrypt, r.params.Integrity,
		r.params.PasswordHash,
		r.params.ReconnectBudget,
		r.params.SocketBufferSize,
		r.params.HeartbeatPeriod,
	)
	return sess, engine, nil
}

func (r *Role) sendAsymStatus(conn net.Conn, engine *crypto.Engine, label string, code int) error {
	peerIP := hostOnly(conn.RemoteAddr().String())
	failed := protocol.IntPtr(r.ledger.TotalFailures(peerIP))
	retry := protocol.IntPtr(r.params.ReconnectBudget)
	wire, err := codec.EncodeStatus(r.params.ComparabilityVersion, label, code, failed, retry)
	if err != nil {
		return err
	}
	ct, err := engine.EncryptAsym(wire)
	if err != nil {
		return err
	}
	return transport.WriteFrame(conn, ct)
}

func (r *Role) IsServer() bool     { return true }
func (r *Role) InboundFirst() bool { return true }

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
		return wrapPeerLocked(fmt.Errorf("peer sent LOCKED"))
	}
	if msg.ResponseCode != protocol.Accepted {
		return wrapRecoverable(fmt.Errorf("unexpected heartbeat response code %d", msg.ResponseCode))
	}
	return nil
}

func (r *Role) HeartbeatOutbound(ctx context.Context, locked bool) error {
	label, code := protocol.LabelAccepted, protocol.Accepted
	if locked {
		label, code = protocol.LabelLocked, protocol.Locked
	}
	failed := protocol.IntPtr(r.ledger.TotalFailures(r.peerIP))
	retry := protocol.IntPtr(r.params.ReconnectBudget)
	wire, err := codec.EncodeStatus(r.params.ComparabilityVersion, label, code, failed, retry)
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

// Reconnect implements spec §4.4's reconnection sequence for the server
// side: one in-place heartbeat attempt, then tear down and accept() again,
// then re-handshake.
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

	if err := r.Accept(ctx); err != nil {
		return wrapFatal(fmt.Errorf("server reconnect: accept: %w", err))
	}
	return nil
}

func (r *Role) Close() {
	if r.conn != nil {
		_ = r.conn.Close()
	}
	_ = r.listener.Close()
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
