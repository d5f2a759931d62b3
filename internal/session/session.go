// Package session models EchoWarp's Session (spec §3): the state created by
// a successful handshake and shared, read-only, between the transport base
// and the data plane streamer/receiver for the session's lifetime.
//
// The struct shape and accessor style are grounded on the teacher's
// infrastructure/tunnel/session.Session: a value built once by the owning
// side (here, the Transport Base after handshake) and exposed to the data
// plane through narrow getters rather than public fields, so the data plane
// cannot mutate what the handshake negotiated.
package session

import "time"

// Session holds everything negotiated during the handshake (spec §3's
// Session data model) for one peer connection. The Crypto Engine, not
// Session, owns the session key/IV and private asymmetric key
// exclusively (spec §3's ownership note); Session only carries the
// comparability and policy fields the data plane needs to read.
type Session struct {
	peerIP                string
	comparabilityVersion  string
	encryptOn             bool
	integrityOn           bool
	passwordHash          string // base64 of UTF-8 password, or "" if none configured
	reconnectBudget       int    // R; 0 means unlimited
	socketBufferSize      int    // B, in bytes
	heartbeatPeriod       time.Duration
}

// New constructs a Session from its negotiated fields. It is built once, by
// the Transport Base, immediately after a handshake succeeds.
func New(
	peerIP string,
	comparabilityVersion string,
	encryptOn, integrityOn bool,
	passwordHash string,
	reconnectBudget int,
	socketBufferSize int,
	heartbeatPeriod time.Duration,
) *Session {
	return &Session{
		peerIP:               peerIP,
		comparabilityVersion: comparabilityVersion,
		encryptOn:            encryptOn,
		integrityOn:          integrityOn,
		passwordHash:         passwordHash,
		reconnectBudget:      reconnectBudget,
		socketBufferSize:     socketBufferSize,
		heartbeatPeriod:      heartbeatPeriod,
	}
}

func (s *Session) PeerIP() string                    { return s.peerIP }
func (s *Session) ComparabilityVersion() string      { return s.comparabilityVersion }
func (s *Session) EncryptOn() bool                   { return s.encryptOn }
func (s *Session) IntegrityOn() bool                 { return s.integrityOn }
func (s *Session) PasswordHash() string              { return s.passwordHash }
func (s *Session) HasPassword() bool                 { return s.passwordHash != "" }
func (s *Session) ReconnectBudget() int              { return s.reconnectBudget }
func (s *Session) SocketBufferSize() int             { return s.socketBufferSize }
func (s *Session) HeartbeatPeriod() time.Duration    { return s.heartbeatPeriod }

// CompatibleWith reports whether this session's comparability_version
// matches the peer's exactly (spec invariant P1, §8 R2 "strict string
// equality"). See DESIGN.md for why this is a literal compare rather than
// a semver-aware one.
func (s *Session) CompatibleWith(peerVersion string) bool {
	return s.comparabilityVersion == peerVersion
}
