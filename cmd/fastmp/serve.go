package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fightinglucida/FastMP/internal/server"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Run the HTTP API server.

The server exposes QR login, credential management, account and article
browsing, and a streaming sync endpoint that reports progress as
newline-delimited JSON. It shuts down gracefully on SIGINT or SIGTERM.`,
	Example: `  # Serve on the configured address
  fastmp serve

  # Serve on a specific address
  fastmp serve --listen :9090`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "address to listen on (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if listenAddr != "" {
		a.cfg.Server.ListenAddr = listenAddr
	}

	srv := server.New(a.cfg, server.Deps{
		Machine:   a.machine,
		Manager:   a.manager,
		Scheduler: a.scheduler,
		Content:   a.content,
		Syncer:    a.syncer,
		Logger:    a.logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "Listening on %s (Ctrl+C to stop)\n", a.cfg.Server.ListenAddr)
	return srv.Run(ctx)
}
