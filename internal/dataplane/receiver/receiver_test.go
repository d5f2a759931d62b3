package receiver

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"echowarp/internal/audio/audiofake"
	"echowarp/internal/crypto"
	"echowarp/internal/logging"
	"echowarp/internal/phase"
)

func TestReceiver_OpensAndPlaysFrames(t *testing.T) {
	serverConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP server: %v", err)
	}
	defer serverConn.Close()

	peerConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP peer: %v", err)
	}
	defer peerConn.Close()

	engine, err := crypto.NewServerEngine()
	if err != nil {
		t.Fatalf("NewServerEngine: %v", err)
	}
	engine.MarkInstalled(false, false)

	playback := audiofake.NewPlayback()
	gate := phase.NewGate()
	gate.Set(phase.Running)

	var buf bytes.Buffer
	log := logging.New(&buf, slog.LevelError)

	r := New(serverConn, playback, engine, gate, 1, 64, 50*time.Millisecond, log)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- r.Run(ctx) }()

	if _, err := peerConn.WriteToUDP([]byte{5, 6, 7, 8}, serverConn.LocalAddr().(*net.UDPAddr)); err != nil {
		t.Fatalf("WriteToUDP: %v", err)
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for len(playback.Writes()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for playback write")
		}
		time.Sleep(5 * time.Millisecond)
	}

	writes := playback.Writes()
	if len(writes) != 1 || !bytes.Equal(writes[0], []byte{5, 6, 7, 8}) {
		t.Fatalf("got writes %v, want identity frame under null pipeline", writes)
	}

	cancel()
	<-runDone

	if !playback.Closed() {
		t.Fatal("expected playback to be closed on shutdown")
	}
}
