package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"echowarp/internal/audio"
	"echowarp/internal/banledger"
	"echowarp/internal/config"
	"echowarp/internal/crypto"
	"echowarp/internal/dataplane/receiver"
	"echowarp/internal/dataplane/streamer"
	"echowarp/internal/logging"
	"echowarp/internal/phase"
	"echowarp/internal/protocol"
	"echowarp/internal/session"
	"echowarp/internal/transport"
	"echowarp/internal/transport/client"
	"echowarp/internal/transport/server"
)

// pcmBlockSize is the fixed PCM block size read from / written to the pipe
// devices per capture/playback call. 16-bit stereo at 48kHz, 20ms frames.
const pcmBlockSize = 3840

// passwordHash is named to match the Session field it feeds (spec §3:
// "password hash (base64 of UTF-8 password or absent)") but is a plain
// base64 encoding, not a cryptographic digest: the wire contract compares
// the peer's message against exactly this value (spec §4.5 step d).
func passwordHash(password string) string {
	if password == "" {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(password))
}

func runServer(ctx context.Context, settings config.Settings, log logging.Logger) error {
	ledger, err := banledger.NewLedger(settings.BanListPath, settings.ReconnectAttempts)
	if err != nil {
		return fmt.Errorf("open ban ledger: %w", err)
	}

	gate := phase.NewGate()

	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: settings.UDPPort})
	if err != nil {
		return fmt.Errorf("listen udp: %w", err)
	}
	defer udpConn.Close()

	srv, err := server.New(server.Params{
		TCPAddr:              fmt.Sprintf(":%d", settings.TCPPort),
		ComparabilityVersion: protocol.Version,
		PasswordHash:         passwordHash(settings.Password),
		Encrypt:              settings.IsEncrypt,
		Integrity:            settings.IsIntegrityControl,
		ReconnectBudget:      settings.ReconnectAttempts,
		SocketBufferSize:     settings.SocketBufferSize,
		ReadTimeout:          time.Duration(settings.ReadTimeout) * time.Second,
		HeartbeatPeriod:      time.Duration(settings.HeartbeatPeriod) * time.Second,
		AcceptRate:           rate.Limit(settings.AcceptRatePerSecond),
		AcceptBurst:          settings.AcceptBurst,
	}, ledger, log)
	if err != nil {
		return fmt.Errorf("new server role: %w", err)
	}
	defer srv.Close()

	g, gctx := errgroup.WithContext(ctx)

	// Server is the simplex Server Streamer (C7) only: it captures and
	// sends, it never plays (spec §4.7); the receiver is the client's role
	// alone (C8, spec §4.8).
	srv.OnSession = func(sess *session.Session, engine *crypto.Engine) {
		peerAddr, resolveErr := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", sess.PeerIP(), settings.UDPPort))
		if resolveErr != nil {
			log.Error("resolve peer udp address failed", "error", resolveErr)
			return
		}

		capture := audio.NewPipeCapture(os.Stdin, pcmBlockSize, 48000, 2)
		s := streamer.New(capture, udpConn, peerAddr, engine, gate, settings.Workers, log)
		g.Go(func() error { return s.Run(gctx) })
	}

	if err := srv.Accept(gctx); err != nil {
		return fmt.Errorf("initial accept: %w", err)
	}

	g.Go(func() error {
		return transport.Run(gctx, srv, gate, time.Duration(settings.HeartbeatPeriod)*time.Second, transport.ShutdownGrace)
	})

	return g.Wait()
}

func runClient(ctx context.Context, settings config.Settings, log logging.Logger) error {
	gate := phase.NewGate()

	serverUDPAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", settings.ServerAddress, settings.UDPPort))
	if err != nil {
		return fmt.Errorf("resolve server udp address: %w", err)
	}

	// Bind UDP to port P and connect to the server's address (spec §9's
	// open-question guidance for §4.6's "bind UDP to (server_addr, P)"):
	// DialUDP both claims the local port the server sends frames to and
	// restricts reads to datagrams from the server, so the server's
	// unicast frames (sent to clientIP:P) actually land on a bound
	// socket instead of an unbound ephemeral port.
	udpConn, err := net.DialUDP("udp", &net.UDPAddr{Port: settings.UDPPort}, serverUDPAddr)
	if err != nil {
		return fmt.Errorf("dial udp: %w", err)
	}
	defer udpConn.Close()

	cli := client.New(client.Params{
		ServerTCPAddr:        fmt.Sprintf("%s:%d", settings.ServerAddress, settings.TCPPort),
		ComparabilityVersion: protocol.Version,
		PasswordHash:         passwordHash(settings.Password),
		ReconnectBudget:      settings.ReconnectAttempts,
		SocketBufferSize:     settings.SocketBufferSize,
		ConnectTimeout:       time.Duration(settings.ReadTimeout) * time.Second,
		ReadTimeout:          time.Duration(settings.ReadTimeout) * time.Second,
		HeartbeatPeriod:      time.Duration(settings.HeartbeatPeriod) * time.Second,
	}, log)

	g, gctx := errgroup.WithContext(ctx)

	// Client is the simplex Client Receiver (C8) only: it plays what it
	// receives, it never captures+sends (spec §4.8); capture+send is the
	// server's role alone (C7, spec §4.7).
	cli.OnSession = func(sess *session.Session, engine *crypto.Engine) {
		playback := audio.NewPipePlayback(os.Stdout)
		rcv := receiver.New(udpConn, playback, engine, gate, settings.Workers, settings.SocketBufferSize,
			time.Duration(settings.ReadTimeout)*time.Second, log)
		g.Go(func() error { return rcv.Run(gctx) })
	}

	if err := cli.Connect(gctx); err != nil {
		return fmt.Errorf("initial connect: %w", err)
	}

	g.Go(func() error {
		return transport.Run(gctx, cli, gate, time.Duration(settings.HeartbeatPeriod)*time.Second, transport.ShutdownGrace)
	})

	return g.Wait()
}

func newLogger() logging.Logger {
	return logging.New(os.Stdout, logLevel.Level())
}
