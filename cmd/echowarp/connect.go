package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Run in client mode: connect to a server and play the audio it streams",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings(false)
		if err != nil {
			return err
		}
		if settings.ServerAddress == "" {
			return fmt.Errorf("--server-address is required in client mode")
		}

		log := newLogger()
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		log.Info("connecting to echowarp server", "address", settings.ServerAddress, "tcp_port", settings.TCPPort)
		return runClient(ctx, settings, log)
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)
}
