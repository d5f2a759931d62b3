// Package codec encodes and decodes protocol.Message to and from its
// compact, self-describing wire form.
//
// Grounded on the teacher's own config (de)serialization
// (infrastructure/PAL/configuration/server/reader.go), which reaches for
// encoding/json rather than a hand-rolled format. No example repo in the
// retrieval pack carries a protobuf/msgpack dependency that a "compact
// text-based" control message would ground better, so the wire form here
// stays JSON with strict-schema decoding via json.Decoder.DisallowUnknownFields.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"echowarp/internal/protocol"
)

// Kind classifies a codec failure, mirroring spec §4.2's CodecKind taxonomy.
type Kind int

const (
	// Schema indicates a required field was missing or the payload carried
	// an unrecognized field (strict-schema violation).
	Schema Kind = iota
	// Type indicates a field was present but of the wrong JSON type.
	Type
)

func (k Kind) String() string {
	switch k {
	case Schema:
		return "schema"
	case Type:
		return "type"
	default:
		return "unknown"
	}
}

// Error wraps a decode failure with its Kind, so callers can errors.As to
// the kind while Unwrap still reaches the underlying error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("codec: %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// ErrMissingRequiredField is wrapped into a Schema Error whenever a required
// field is absent (message) or holds a zero value that cannot legitimately
// be zero (response_code, comparability_version).
var ErrMissingRequiredField = errors.New("missing required field")

// Encode serializes m to its wire form.
func Encode(m *protocol.Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses the wire form into a Message, rejecting unknown fields and
// verifying the required fields are present (R1: decode(encode(m)) == m).
func Decode(data []byte) (*protocol.Message, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var m protocol.Message
	if err := dec.Decode(&m); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &Error{Kind: Type, Err: err}
		}
		return nil, &Error{Kind: Schema, Err: err}
	}

	// message may legitimately be empty (a handshake from a peer with no
	// password configured), so only its presence is required.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &Error{Kind: Schema, Err: err}
	}
	if _, ok := fields["message"]; !ok {
		return nil, &Error{Kind: Schema, Err: fmt.Errorf("%w: message", ErrMissingRequiredField)}
	}
	if m.ResponseCode == 0 {
		return nil, &Error{Kind: Schema, Err: fmt.Errorf("%w: response_code", ErrMissingRequiredField)}
	}
	if m.ComparabilityVersion == "" {
		return nil, &Error{Kind: Schema, Err: fmt.Errorf("%w: comparability_version", ErrMissingRequiredField)}
	}

	return &m, nil
}

// EncodeAuthOK builds the server's authentication-success message: response
// 200, label "OK", with a populated config sub-record. failed and
// retryBudget are ledger telemetry; retryBudget of 0 or nil means unlimited
// and is encoded as an absent field.
func EncodeAuthOK(
	version string,
	encrypt, integrity bool,
	keyB64, ivB64 string,
	failed *int,
	retryBudget *int,
) ([]byte, error) {
	m := &protocol.Message{
		Message:              protocol.LabelOK,
		ResponseCode:         protocol.OK,
		ComparabilityVersion: version,
		FailedConnections:    failed,
		ReconnectAttempts:    normalizeBudget(retryBudget),
		Config: &protocol.SessionConfig{
			IsEncrypt:          encrypt,
			IsIntegrityControl: integrity,
			AESKeyBase64:       keyB64,
			AESIVBase64:        ivB64,
		},
	}
	return Encode(m)
}

// EncodeStatus builds a status-only message (heartbeat accepted/locked, or
// an authentication failure response) with no config sub-record.
func EncodeStatus(version, label string, code int, failed *int, retryBudget *int) ([]byte, error) {
	m := &protocol.Message{
		Message:              label,
		ResponseCode:         code,
		ComparabilityVersion: version,
		FailedConnections:    failed,
		ReconnectAttempts:    normalizeBudget(retryBudget),
	}
	return Encode(m)
}

// normalizeBudget collapses a zero reconnect budget (unlimited, per spec
// §3/§4.3) to an absent field so the wire form never claims "zero attempts
// remaining" when the true meaning is "no limit".
func normalizeBudget(budget *int) *int {
	if budget == nil || *budget <= 0 {
		return nil
	}
	return budget
}
