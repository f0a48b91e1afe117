package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/guardrev/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local session bridge",
	Long: `Start a local HTTP server that lets a browser drive review sessions.
Each websocket connection gets its own session.

Endpoints:
  GET  /health        Health check
  GET  /api/policies  Default policies
  GET  /api/ws        WebSocket for interactive review sessions

The bearer token is read from the Authorization header or the token query
parameter of the websocket request.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("addr", "a", "", "address to listen on (default from config: 127.0.0.1)")
	serveCmd.Flags().IntP("port", "P", 0, "port to listen on (default from config: 7788)")
}

func runServe(cmd *cobra.Command, args []string) error {
	overrides := map[string]any{}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		overrides["serve.addr"] = addr
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		overrides["serve.port"] = port
	}

	a, err := setup(cmd, overrides, false)
	if err != nil {
		return err
	}
	defer a.close()

	srv := api.New(a.cfg.Addr(), api.Deps{
		Service:       a.client,
		Policies:      a.cfg.Policies,
		FallbackDelay: a.cfg.FallbackDelay,
		Log:           a.log.With().Str("component", "bridge").Logger(),
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	fmt.Fprintf(cmd.OutOrStdout(), "guardrev bridge listening on http://%s\n", a.cfg.Addr())

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.log.Info().Msg("shutting down")
	return srv.Shutdown(shutdownCtx)
}
