// Package crypto implements EchoWarp's Crypto Engine (spec §4.1): the
// RSA-OAEP handshake primitives and the per-frame seal/open pipeline shared
// by the control and data planes.
//
// The asymmetric and symmetric primitives are drawn straight from the
// standard library rather than any example repo's dependency: spec §8 (R2)
// and the E2E scenarios fix exact ciphertext bytes for AES-256-CBC-PKCS7
// with a literal key/IV, and RSA-OAEP-SHA256 is a stdlib-only primitive in
// the Go crypto ecosystem (golang.org/x/crypto deliberately does not ship a
// CBC mode, considering it legacy). See DESIGN.md.
package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
)

// KeyBits is the asymmetric key size mandated by spec §4.1: large enough
// that the authentication-success record (base64 key+IV+telemetry, under
// 300 bytes of JSON) fits in a single OAEP-SHA256 block, whose limit at
// this key size is 512-2*32-2 = 446 bytes.
const KeyBits = 4096

const (
	SessionKeySize = 32 // 256-bit AES key
	SessionIVSize  = 16 // 128-bit IV
	hashSize       = sha256.Size
)

const pemBlockType = "PUBLIC KEY"

// Engine holds one side's asymmetric keypair, the peer's public key once
// loaded, and (after installation) the session's symmetric key/IV and
// pipeline flags. It is the sole owner of key material; seal/open are pure
// given the installed key/IV and are therefore safe for concurrent use
// without additional locking (spec §5).
type Engine struct {
	isServer bool

	priv *rsa.PrivateKey
	pub  *rsa.PublicKey

	peerPub *rsa.PublicKey

	sessionKey []byte
	sessionIV  []byte

	encryptOn   bool
	integrityOn bool
	installed   bool
}

// NewServerEngine generates a fresh asymmetric keypair and a fresh 32-byte
// session key / 16-byte IV via the OS CSPRNG.
func NewServerEngine() (*Engine, error) {
	e, err := newEngine(true)
	if err != nil {
		return nil, err
	}
	key := make([]byte, SessionKeySize)
	iv := make([]byte, SessionIVSize)
	if _, err := rand.Read(key); err != nil {
		return nil, wrap(State, fmt.Errorf("generate session key: %w", err))
	}
	if _, err := rand.Read(iv); err != nil {
		return nil, wrap(State, fmt.Errorf("generate session iv: %w", err))
	}
	e.sessionKey = key
	e.sessionIV = iv
	return e, nil
}

// NewClientEngine generates a fresh asymmetric keypair only; the session
// key/IV arrive later via InstallSession.
func NewClientEngine() (*Engine, error) {
	return newEngine(false)
}

func newEngine(isServer bool) (*Engine, error) {
	priv, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, wrap(State, fmt.Errorf("generate rsa keypair: %w", err))
	}
	return &Engine{isServer: isServer, priv: priv, pub: &priv.PublicKey}, nil
}

// PublicKeyPEM returns this engine's public key in PEM-encoded
// SubjectPublicKeyInfo form — a self-describing text blob suitable for
// sending plaintext during the handshake's first exchange.
func (e *Engine) PublicKeyPEM() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(e.pub)
	if err != nil {
		return nil, wrap(State, err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemBlockType, Bytes: der}), nil
}

// LoadPeerPublicKey parses a PEM SubjectPublicKeyInfo blob and stores it as
// the peer's public key for subsequent EncryptAsym calls.
func (e *Engine) LoadPeerPublicKey(pemBytes []byte) error {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return wrap(BadKey, errors.New("not a PEM block"))
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return wrap(BadKey, err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return wrap(BadKey, errors.New("peer key is not an RSA public key"))
	}
	e.peerPub = rsaPub
	return nil
}

// EncryptAsym encrypts data to the peer's public key with OAEP-SHA256 and
// an empty label.
func (e *Engine) EncryptAsym(data []byte) ([]byte, error) {
	if e.peerPub == nil {
		return nil, wrap(State, errors.New("peer public key not loaded"))
	}
	maxLen := e.peerPub.Size() - 2*hashSize - 2
	if len(data) > maxLen {
		return nil, wrap(AsymSize, fmt.Errorf("plaintext of %d bytes exceeds OAEP limit of %d", len(data), maxLen))
	}
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, e.peerPub, data, nil)
	if err != nil {
		return nil, wrap(AsymSize, err)
	}
	return ct, nil
}

// DecryptAsym decrypts data with this engine's private key.
func (e *Engine) DecryptAsym(data []byte) ([]byte, error) {
	pt, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, e.priv, data, nil)
	if err != nil {
		return nil, wrap(Decrypt, err)
	}
	return pt, nil
}

// SessionKeyBase64 and SessionIVBase64 expose the server-generated session
// secrets for RSA-encrypted transport to the client.
func (e *Engine) SessionKeyBase64() string { return base64.StdEncoding.EncodeToString(e.sessionKey) }
func (e *Engine) SessionIVBase64() string  { return base64.StdEncoding.EncodeToString(e.sessionIV) }

// InstallSession installs the symmetric session key/IV and pipeline flags
// on a client engine, as learned from the server's authentication-success
// message. It fails with a State error on a server engine, which already
// owns its generated session secrets.
func (e *Engine) InstallSession(keyB64, ivB64 string, encryptOn, integrityOn bool) error {
	if e.isServer {
		return wrap(State, errors.New("InstallSession called on a server engine"))
	}
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil || len(key) != SessionKeySize {
		return wrap(BadKey, fmt.Errorf("invalid session key: %w", err))
	}
	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil || len(iv) != SessionIVSize {
		return wrap(BadKey, fmt.Errorf("invalid session iv: %w", err))
	}
	e.sessionKey = key
	e.sessionIV = iv
	e.encryptOn = encryptOn
	e.integrityOn = integrityOn
	e.installed = true
	return nil
}

// MarkInstalled lets the server engine record its own flags once it has
// decided them (it already holds the key/IV from construction).
func (e *Engine) MarkInstalled(encryptOn, integrityOn bool) {
	e.encryptOn = encryptOn
	e.integrityOn = integrityOn
	e.installed = true
}

// EncryptOn and IntegrityOn report the negotiated pipeline flags.
func (e *Engine) EncryptOn() bool   { return e.encryptOn }
func (e *Engine) IntegrityOn() bool { return e.integrityOn }
func (e *Engine) Installed() bool   { return e.installed }

// Seal applies the per-frame pipeline: optionally prepend SHA-256(data),
// then optionally AES-256-CBC-PKCS7 encrypt with the session key and the
// fixed per-session IV (see spec §9's open question on IV reuse).
func (e *Engine) Seal(data []byte) ([]byte, error) {
	body := data
	if e.integrityOn {
		h := sha256.Sum256(data)
		body = make([]byte, 0, hashSize+len(data))
		body = append(body, h[:]...)
		body = append(body, data...)
	}
	if e.encryptOn {
		ct, err := aesCBCEncrypt(e.sessionKey, e.sessionIV, body)
		if err != nil {
			return nil, wrap(Decrypt, err)
		}
		return ct, nil
	}
	// Copy to give the caller an independently-owned slice, matching the
	// encrypted branch's allocation behavior.
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}

// Open is the exact inverse of Seal.
func (e *Engine) Open(data []byte) ([]byte, error) {
	body := data
	if e.encryptOn {
		pt, err := aesCBCDecrypt(e.sessionKey, e.sessionIV, data)
		if err != nil {
			return nil, wrap(Decrypt, err)
		}
		body = pt
	}
	if e.integrityOn {
		if len(body) < hashSize {
			return nil, wrap(Integrity, errors.New("sealed frame shorter than hash prefix"))
		}
		gotHash := body[:hashSize]
		payload := body[hashSize:]
		wantHash := sha256.Sum256(payload)
		if !constantTimeEqual(gotHash, wantHash[:]) {
			return nil, wrap(Integrity, errors.New("hash mismatch"))
		}
		return payload, nil
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}
