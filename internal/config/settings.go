// Package config resolves EchoWarp's Settings record (spec §6): the
// CLI/config-file/env front-end is out of core scope, but the resolved
// record it must produce is not, so this package is that resolution layer.
//
// Layering (flags > env ECHOWARP_* > YAML file > defaults) is grounded on
// _examples/kgiusti-go-fdo-server/cmd/root.go, the pack's only cobra+viper
// repo; the field set mirrors the teacher's PAL configuration.Configuration
// split between server/client variants
// (infrastructure/PAL/configuration/server/reader.go). Settings are resolved
// once per Load call; the config file is not watched for later changes.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Settings is the resolved record spec §6 names: "is_server, udp_port,
// server_address?, reconnect_attempt, is_ssl, is_integrity_control,
// workers, password?, socket_buffer_size, plus the CapturePort/PlaybackPort
// handles." CapturePort/PlaybackPort are wired by the caller (cmd/echowarp),
// not resolved here, since they come from device-opening code outside core
// scope.
type Settings struct {
	IsServer           bool
	TCPPort            int
	UDPPort            int
	ServerAddress      string // required when IsServer is false
	ReconnectAttempts  int    // R; 0 means unlimited
	IsEncrypt          bool   // "is_ssl" in spec §6 — the encrypt-on flag of the seal/open pipeline
	IsIntegrityControl bool
	Workers            int // W; default 1
	Password           string
	SocketBufferSize   int
	BanListPath        string
	HeartbeatPeriod    int // H, seconds; spec default 2
	ReadTimeout        int // T, seconds; spec default 5

	// AcceptRatePerSecond and AcceptBurst bound the server's TCP accept
	// loop (0 disables limiting); meaningless in client mode.
	AcceptRatePerSecond float64
	AcceptBurst         int
}

const envPrefix = "ECHOWARP"

func defaults(v *viper.Viper) {
	v.SetDefault("is_server", false)
	v.SetDefault("tcp_port", 4414)
	v.SetDefault("udp_port", 4415)
	v.SetDefault("reconnect_attempts", 5)
	v.SetDefault("is_encrypt", false)
	v.SetDefault("is_integrity_control", false)
	v.SetDefault("workers", 1)
	v.SetDefault("socket_buffer_size", 6144)
	v.SetDefault("ban_list_path", "echowarp-banlist.txt")
	v.SetDefault("heartbeat_period", 2)
	v.SetDefault("read_timeout", 5)
	v.SetDefault("accept_rate_per_second", 0.0)
	v.SetDefault("accept_burst", 8)
}

// Load resolves Settings from, in increasing priority: built-in defaults,
// an optional YAML file at configPath, ECHOWARP_-prefixed environment
// variables, and finally whatever flags bind has already pushed into v
// (cmd/echowarp binds cobra flags into v before calling Load).
func Load(v *viper.Viper, configPath string) (Settings, error) {
	defaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Settings{}, fmt.Errorf("config: read %s: %w", configPath, err)
			}
		}
	}

	s := Settings{
		IsServer:           v.GetBool("is_server"),
		TCPPort:            v.GetInt("tcp_port"),
		UDPPort:            v.GetInt("udp_port"),
		ServerAddress:      v.GetString("server_address"),
		ReconnectAttempts:  v.GetInt("reconnect_attempts"),
		IsEncrypt:          v.GetBool("is_encrypt"),
		IsIntegrityControl: v.GetBool("is_integrity_control"),
		Workers:            v.GetInt("workers"),
		Password:           v.GetString("password"),
		SocketBufferSize:   v.GetInt("socket_buffer_size"),
		BanListPath:        v.GetString("ban_list_path"),
		HeartbeatPeriod:    v.GetInt("heartbeat_period"),
		ReadTimeout:        v.GetInt("read_timeout"),

		AcceptRatePerSecond: v.GetFloat64("accept_rate_per_second"),
		AcceptBurst:         v.GetInt("accept_burst"),
	}
	return s, s.validate()
}

func (s Settings) validate() error {
	if !s.IsServer && s.ServerAddress == "" {
		return fmt.Errorf("config: server_address is required in client mode")
	}
	if s.Workers < 1 {
		return fmt.Errorf("config: workers must be >= 1, got %d", s.Workers)
	}
	if s.SocketBufferSize < 1 {
		return fmt.Errorf("config: socket_buffer_size must be positive, got %d", s.SocketBufferSize)
	}
	if s.HeartbeatPeriod < 1 {
		return fmt.Errorf("config: heartbeat_period must be positive, got %d", s.HeartbeatPeriod)
	}
	if s.ReadTimeout < 1 {
		return fmt.Errorf("config: read_timeout must be positive, got %d", s.ReadTimeout)
	}
	return nil
}
