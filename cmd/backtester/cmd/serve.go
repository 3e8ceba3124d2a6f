package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/backtester/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP control API",
	Long: `Serve the control API. The loaded config becomes the draft that
PUT /api/config edits and POST /api/runs snapshots.

Endpoints:
  GET  /api/config         redacted draft
  PUT  /api/config         merge into the draft
  PUT  /api/notify-level   change the level, live if a run is active
  POST /api/runs           start a run
  DELETE /api/runs/current cancel the active run
  GET  /api/runs/last      last finished run
  GET  /api/status         running state and phase
  GET  /ws                 event stream
  GET  /metrics            prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveAddr    string
	serveTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().DurationVar(&serveTimeout, "shutdown-timeout", 30*time.Second, "time allowed for an active run to stop")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	log := newLogger(cmd, cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, log)
	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), serveTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}
