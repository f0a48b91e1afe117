// Package cli implements the guardrev command tree.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/guardrev/internal/auth"
	"github.com/sprite-ai/guardrev/internal/client"
	"github.com/sprite-ai/guardrev/internal/config"
	"github.com/sprite-ai/guardrev/internal/feedback"
	"github.com/sprite-ai/guardrev/internal/logging"
	"github.com/sprite-ai/guardrev/internal/review"
	"github.com/sprite-ai/guardrev/internal/session"
)

var rootCmd = &cobra.Command{
	Use:   "guardrev",
	Short: "Review code against security and quality policies",
	Long: `guardrev sends source code to a policy review service and shows the
violations it finds. Results can be reviewed interactively, corrected with
feedback, exported as PDF reports or checked in CI.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to config file (default: <config dir>/config.toml)")
	rootCmd.PersistentFlags().String("api-url", "", "review service URL")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "also log to stderr (non-interactive commands)")

	rootCmd.AddCommand(reviewCmd, checkCmd, loginCmd, logoutCmd, whoamiCmd, statsCmd,
		remediateCmd, serveCmd, configCmd, versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// configDir is swapped out by tests.
var configDir = config.Dir

// app is what every command needs once flags and configuration are resolved.
type app struct {
	cfg    *config.Config
	log    *logging.Logger
	client *client.Client
	store  *auth.Store
}

// setup loads configuration with flag overrides applied and opens the log.
// Interactive commands never log to the terminal.
func setup(cmd *cobra.Command, overrides map[string]any, interactive bool) (*app, error) {
	dir, err := configDir()
	if err != nil {
		return nil, err
	}
	if overrides == nil {
		overrides = map[string]any{}
	}
	if u, _ := cmd.Flags().GetString("api-url"); u != "" {
		overrides["api_url"] = u
	}
	path, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(dir, path, overrides)
	if err != nil {
		return nil, err
	}

	opts := logging.Options{File: cfg.Log.File, Level: cfg.Log.Level}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose && !interactive {
		opts.Console = cmd.ErrOrStderr()
	}
	lg, err := logging.New(opts)
	if err != nil {
		return nil, err
	}
	lg.Logger = lg.With().Str("cmd", cmd.Name()).Logger()

	c := client.New(cfg.APIURL, cfg.Timeout, client.WithLogger(lg.With().Str("component", "client").Logger()))
	return &app{cfg: cfg, log: lg, client: c, store: auth.NewStore(cfg.Dir)}, nil
}

func (a *app) close() {
	_ = a.log.Close()
}

// token returns the saved token, or "" with a warning when nobody is logged in.
// An unauthenticated review is still attempted: services started with
// DISABLE_AUTH=1 accept it, and the rest answer 401, which the review flow turns
// into a login notice.
func (a *app) token(w io.Writer) (string, error) {
	tok, err := a.store.Load()
	if errors.Is(err, auth.ErrNoToken) {
		fmt.Fprintln(w, "Not logged in; continuing without a token.")
		a.log.Info().Msg("no saved token")
		return "", nil
	}
	return tok, err
}

// requireToken is token for commands that are useless without a login.
func (a *app) requireToken() (string, error) {
	return a.store.Load()
}

// reviewStack builds a session with its controller and feedback reconciler.
func (a *app) reviewStack(opts ...review.Option) (*review.Controller, *feedback.Reconciler) {
	sess := session.New()
	base := []review.Option{
		review.WithLogger(a.log.With().Str("component", "review").Logger()),
		review.WithFallbackDelay(a.cfg.FallbackDelay),
	}
	ctrl := review.NewController(a.client, sess, append(base, opts...)...)
	rec := feedback.New(a.client, sess, ctrl, a.log.With().Str("component", "feedback").Logger())
	ctrl.Observe(func(st review.State) {
		if st == review.StateUnauthorized {
			a.dropToken()
		}
	})
	return ctrl, rec
}

// dropToken forgets a token the service rejected.
func (a *app) dropToken() {
	if err := a.store.Clear(); err != nil {
		a.log.Warn().Err(err).Msg("clearing rejected token")
		return
	}
	a.log.Info().Msg("rejected token cleared")
}

func stdinIsPipe() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice == 0
}
