// Command echowarp streams PCM audio over an authenticated, optionally
// encrypted UDP channel, with a TCP control plane handling handshake,
// heartbeat, and reconnect.
//
// Command tree and flag/env/file layering are grounded on
// _examples/kgiusti-go-fdo-server/cmd/root.go, the pack's only cobra+viper
// member.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"hermannm.dev/devlog"

	"echowarp/internal/config"
)

var (
	cfgFile  string
	logLevel slog.LevelVar
	v        = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "echowarp",
	Short: "Stream PCM audio over an authenticated UDP channel",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

func init() {
	slog.SetDefault(slog.New(devlog.NewHandler(os.Stdout, &devlog.Options{
		Level: &logLevel,
	})))

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Int("tcp-port", 4414, "control-plane TCP port")
	rootCmd.PersistentFlags().Int("udp-port", 4415, "data-plane UDP port")
	rootCmd.PersistentFlags().String("server-address", "", "server host (client mode only)")
	rootCmd.PersistentFlags().Int("reconnect-attempts", 5, "reconnect budget R, 0 for unlimited")
	rootCmd.PersistentFlags().Bool("is-encrypt", false, "enable AES-256-CBC sealing of data-plane frames")
	rootCmd.PersistentFlags().Bool("is-integrity-control", false, "enable SHA-256 integrity prefix on sealed frames")
	rootCmd.PersistentFlags().Int("workers", 1, "data-plane worker pool size W")
	rootCmd.PersistentFlags().String("password", "", "shared password (compared base64-encoded during the handshake)")
	rootCmd.PersistentFlags().Int("socket-buffer-size", 6144, "socket read buffer size B")
	rootCmd.PersistentFlags().String("ban-list-path", "echowarp-banlist.txt", "path to the persisted ban list")
	rootCmd.PersistentFlags().Int("heartbeat-period", 2, "heartbeat period H, seconds")
	rootCmd.PersistentFlags().Int("read-timeout", 5, "control-plane read timeout T, seconds")
	rootCmd.PersistentFlags().Float64("accept-rate-per-second", 0, "server accept-loop rate limit, 0 disables")
	rootCmd.PersistentFlags().Int("accept-burst", 8, "server accept-loop burst size")

	_ = v.BindPFlag("tcp_port", rootCmd.PersistentFlags().Lookup("tcp-port"))
	_ = v.BindPFlag("udp_port", rootCmd.PersistentFlags().Lookup("udp-port"))
	_ = v.BindPFlag("server_address", rootCmd.PersistentFlags().Lookup("server-address"))
	_ = v.BindPFlag("reconnect_attempts", rootCmd.PersistentFlags().Lookup("reconnect-attempts"))
	_ = v.BindPFlag("is_encrypt", rootCmd.PersistentFlags().Lookup("is-encrypt"))
	_ = v.BindPFlag("is_integrity_control", rootCmd.PersistentFlags().Lookup("is-integrity-control"))
	_ = v.BindPFlag("workers", rootCmd.PersistentFlags().Lookup("workers"))
	_ = v.BindPFlag("password", rootCmd.PersistentFlags().Lookup("password"))
	_ = v.BindPFlag("socket_buffer_size", rootCmd.PersistentFlags().Lookup("socket-buffer-size"))
	_ = v.BindPFlag("ban_list_path", rootCmd.PersistentFlags().Lookup("ban-list-path"))
	_ = v.BindPFlag("heartbeat_period", rootCmd.PersistentFlags().Lookup("heartbeat-period"))
	_ = v.BindPFlag("read_timeout", rootCmd.PersistentFlags().Lookup("read-timeout"))
	_ = v.BindPFlag("accept_rate_per_second", rootCmd.PersistentFlags().Lookup("accept-rate-per-second"))
	_ = v.BindPFlag("accept_burst", rootCmd.PersistentFlags().Lookup("accept-burst"))
}

// loadSettings resolves config.Settings for the given mode, after cobra has
// parsed flags. isServer is pinned here rather than bound from a flag since
// it is implied by which subcommand ran.
func loadSettings(isServer bool) (config.Settings, error) {
	_ = v.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	if v.GetBool("debug") {
		logLevel.Set(slog.LevelDebug)
	}
	v.Set("is_server", isServer)
	return config.Load(v, cfgFile)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
