package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run in server mode: accept one client and stream captured audio to it",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings(true)
		if err != nil {
			return err
		}

		log := newLogger()
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		log.Info("starting echowarp server", "tcp_port", settings.TCPPort, "udp_port", settings.UDPPort)
		return runServer(ctx, settings, log)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
