package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tunedesk/tunedesk/internal/httpapi"
	"github.com/tunedesk/tunedesk/internal/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Run the HTTP API server. Exposes POST /api/chat,
GET and DELETE /api/conversations/{thread_id}, GET /health and
GET /metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	server, err := httpapi.NewServer(httpapi.Options{
		Host: rt.cfg.Server.Host,
		Port: rt.cfg.Server.Port,
	}, rt.engine, rt.log.GetZerolog())
	if err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		zl := rt.log.GetZerolog()
		zl.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	if err := server.Stop(); err != nil {
		return err
	}
	return tracing.Shutdown(context.Background())
}
