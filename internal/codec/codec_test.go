package codec

import (
	"testing"

	"echowarp/internal/protocol"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	failed := protocol.IntPtr(2)
	retry := protocol.IntPtr(5)
	m := &protocol.Message{
		Message:              protocol.LabelOK,
		ResponseCode:         protocol.OK,
		ComparabilityVersion: "1",
		FailedConnections:    failed,
		ReconnectAttempts:    retry,
		Config: &protocol.SessionConfig{
			IsEncrypt:          true,
			IsIntegrityControl: true,
			AESKeyBase64:       "a2V5",
			AESIVBase64:        "aXY=",
		},
	}

	wire, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !m.Equal(decoded) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, m)
	}
}

func TestDecode_RejectsUnknownField(t *testing.T) {
	payload := `{"message":"OK","response_code":200,"comparability_version":"1","bogus_field":true}`
	_, err := Decode([]byte(payload))
	if err == nil {
		t.Fatal("expected strict-schema rejection of unknown field")
	}
	var codecErr *Error
	if !asCodecErr(err, &codecErr) || codecErr.Kind != Schema {
		t.Fatalf("expected Schema kind, got %v", err)
	}
}

func TestDecode_RejectsMissingRequiredField(t *testing.T) {
	payload := `{"response_code":200,"comparability_version":"1"}`
	_, err := Decode([]byte(payload))
	if err == nil {
		t.Fatal("expected Schema error for missing message field")
	}
}

func TestDecode_RejectsTypeMismatch(t *testing.T) {
	payload := `{"message":"OK","response_code":"not-an-int","comparability_version":"1"}`
	_, err := Decode([]byte(payload))
	if err == nil {
		t.Fatal("expected error for type mismatch")
	}
	var codecErr *Error
	if !asCodecErr(err, &codecErr) || codecErr.Kind != Type {
		t.Fatalf("expected Type kind, got %v", err)
	}
}

func TestEncodeAuthOK(t *testing.T) {
	wire, err := EncodeAuthOK("1", true, false, "a2V5", "aXY=", nil, protocol.IntPtr(5))
	if err != nil {
		t.Fatalf("EncodeAuthOK: %v", err)
	}
	m, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if m.ResponseCode != protocol.OK || m.Config == nil {
		t.Fatalf("expected OK response with config, got %+v", m)
	}
	if !m.Config.IsEncrypt || m.Config.IsIntegrityControl {
		t.Fatalf("config flags mismatch: %+v", m.Config)
	}
}

func TestEncodeAuthOK_ZeroBudgetIsOmitted(t *testing.T) {
	wire, err := EncodeAuthOK("1", false, false, "a2V5", "aXY=", nil, protocol.IntPtr(0))
	if err != nil {
		t.Fatalf("EncodeAuthOK: %v", err)
	}
	m, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if m.ReconnectAttempts != nil {
		t.Fatalf("expected zero budget to normalize to absent, got %v", *m.ReconnectAttempts)
	}
}

func TestEncodeStatus_NoConfig(t *testing.T) {
	wire, err := EncodeStatus("1", protocol.LabelLocked, protocol.Locked, nil, nil)
	if err != nil {
		t.Fatalf("EncodeStatus: %v", err)
	}
	m, err := Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if m.Config != nil {
		t.Fatal("expected status message to carry no config sub-record")
	}
	if m.ResponseCode != protocol.Locked || m.Message != protocol.LabelLocked {
		t.Fatalf("unexpected status message: %+v", m)
	}
}

func asCodecErr(err error, target **Error) bool {
	ce, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = ce
	return true
}
