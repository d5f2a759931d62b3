package transport_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"echowarp/internal/banledger"
	"echowarp/internal/logging"
	"echowarp/internal/transport/client"
	"echowarp/internal/transport/server"
)

func newTestLogger() logging.Logger {
	var buf bytes.Buffer
	return logging.New(&buf, slog.LevelError)
}

func TestHandshake_HappyPath(t *testing.T) {
	ledger, err := banledger.NewLedger("", 0)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}

	srv, err := server.New(server.Params{
		TCPAddr:              "127.0.0.1:0",
		ComparabilityVersion: "1",
		PasswordHash:         "",
		Encrypt:              false,
		Integrity:            false,
		ReconnectBudget:      5,
		SocketBufferSize:     6144,
		ReadTimeout:          time.Second,
		HeartbeatPeriod:      50 * time.Millisecond,
	}, ledger, newTestLogger())
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	defer srv.Close()

	addr := srv.Addr().String()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	acceptDone := make(chan error, 1)
	go func() { acceptDone <- srv.Accept(ctx) }()

	time.Sleep(20 * time.Millisecond)

	cli := client.New(client.Params{
		ServerTCPAddr:        addr,
		ComparabilityVersion: "1",
		PasswordHash:         "",
		ReconnectBudget:      5,
		SocketBufferSize:     6144,
		ConnectTimeout:       time.Second,
		ReadTimeout:          time.Second,
		HeartbeatPeriod:      50 * time.Millisecond,
	}, newTestLogger())

	if err := cli.Connect(ctx); err != nil {
		t.Fatalf("client Connect: %v", err)
	}
	defer cli.Close()

	if err := <-acceptDone; err != nil {
		t.Fatalf("server Accept: %v", err)
	}

	if err := cli.HeartbeatOutbound(ctx, false); err != nil {
		t.Fatalf("client HeartbeatOutbound: %v", err)
	}
	if err := srv.HeartbeatInbound(ctx); err != nil {
		t.Fatalf("server HeartbeatInbound: %v", err)
	}
	if err := srv.HeartbeatOutbound(ctx, false); err != nil {
		t.Fatalf("server HeartbeatOutbound: %v", err)
	}
	if err := cli.HeartbeatInbound(ctx); err != nil {
		t.Fatalf("client HeartbeatInbound: %v", err)
	}
}

func TestHandshake_WrongPasswordIsUnauthorized(t *testing.T) {
	ledger, err := banledger.NewLedger("", 3)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}

	srv, err := server.New(server.Params{
		TCPAddr:              "127.0.0.1:0",
		ComparabilityVersion: "1",
		PasswordHash:         "correct-hash",
		ReconnectBudget:      3,
		SocketBufferSize:     6144,
		ReadTimeout:          time.Second,
		HeartbeatPeriod:      50 * time.Millisecond,
	}, ledger, newTestLogger())
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	acceptErrCh := make(chan error, 1)
	go func() {
		// Accept loops internally past failed auth attempts, so bound
		// this goroutine's run with ctx and just observe the ledger.
		acceptErrCh <- srv.Accept(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cli := client.New(client.Params{
		ServerTCPAddr:        srv.Addr().String(),
		ComparabilityVersion: "1",
		PasswordHash:         "wrong-hash",
		ReconnectBudget:      3,
		SocketBufferSize:     6144,
		ConnectTimeout:       time.Second,
		ReadTimeout:          time.Second,
		HeartbeatPeriod:      50 * time.Millisecond,
	}, newTestLogger())

	if err := cli.Connect(ctx); err == nil {
		t.Fatal("expected client Connect to fail on wrong password")
	}
	cancel()
	<-acceptErrCh
}
