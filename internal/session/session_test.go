package session

import (
	"testing"
	"time"
)

func TestSession_Accessors(t *testing.T) {
	s := New("192.168.1.10", "1", true, true, "cGFzcw==", 5, 65536, 2*time.Second)

	if s.PeerIP() != "192.168.1.10" {
		t.Errorf("PeerIP = %q", s.PeerIP())
	}
	if s.ComparabilityVersion() != "1" {
		t.Errorf("ComparabilityVersion = %q", s.ComparabilityVersion())
	}
	if !s.EncryptOn() || !s.IntegrityOn() {
		t.Error("expected both encrypt and integrity on")
	}
	if !s.HasPassword() {
		t.Error("expected HasPassword true")
	}
	if s.ReconnectBudget() != 5 {
		t.Errorf("ReconnectBudget = %d", s.ReconnectBudget())
	}
	if s.SocketBufferSize() != 65536 {
		t.Errorf("SocketBufferSize = %d", s.SocketBufferSize())
	}
	if s.HeartbeatPeriod() != 2*time.Second {
		t.Errorf("HeartbeatPeriod = %v", s.HeartbeatPeriod())
	}
}

func TestSession_HasPasswordFalseWhenEmpty(t *testing.T) {
	s := New("10.0.0.1", "1", false, false, "", 0, 4096, 2*time.Second)
	if s.HasPassword() {
		t.Error("expected HasPassword false for empty hash")
	}
}

func TestSession_CompatibleWith(t *testing.T) {
	s := New("10.0.0.1", "1", false, false, "", 0, 4096, 2*time.Second)
	if !s.CompatibleWith("1") {
		t.Error("expected exact version match to be compatible")
	}
	if s.CompatibleWith("1.0") {
		t.Error("expected non-exact version match to be incompatible (strict string equality)")
	}
	if s.CompatibleWith("2") {
		t.Error("expected mismatched version to be incompatible")
	}
}
