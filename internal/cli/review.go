package cli

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sprite-ai/guardrev/internal/auth"
	"github.com/sprite-ai/guardrev/internal/tui"
)

var reviewCmd = &cobra.Command{
	Use:   "review [file]",
	Short: "Open an interactive review session",
	Long: `Open an interactive screen for reviewing a file against the configured
policies. Violations can be marked valid or false positive, and the result
exported as a PDF report.

Examples:
  guardrev review app.py                       # single-file review
  guardrev review app.py --against HEAD --diff # changes since HEAD
  guardrev review old.py --patch fix.diff      # original plus a patch
  cat app.py | guardrev review -               # read code from stdin`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReview,
}

func init() {
	addInputFlags(reviewCmd)
	reviewCmd.Flags().Bool("no-auto", false, "wait for r instead of reviewing on start")
	reviewCmd.Flags().String("export-dir", "", "directory for exported reports (default: current directory)")
}

func runReview(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !stdinIsPipe() {
		return errors.New("nothing to review: pass a FILE or pipe code on stdin")
	}

	a, err := setup(cmd, nil, true)
	if err != nil {
		return err
	}
	defer a.close()

	in, err := readInput(cmd, args, a.cfg.Policies)
	if err != nil {
		return err
	}

	token, err := a.token(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	var avatar string
	if token != "" {
		if claims, err := auth.Parse(token); err == nil {
			avatar = claims.Initial()
		}
	}

	ctrl, rec := a.reviewStack()
	noAuto, _ := cmd.Flags().GetBool("no-auto")
	exportDir, _ := cmd.Flags().GetString("export-dir")

	var opts []tea.ProgramOption
	if len(args) == 0 || args[0] == "-" {
		// Code came from stdin, so keys have to come from the terminal.
		opts = append(opts, tea.WithInputTTY())
	}

	ev := a.log.Info().Str("file", in.Filename).Str("mode", in.Request.Mode.String())
	if in.Patch != nil {
		ev = ev.Int("patch_added", in.Patch.Added).Int("patch_deleted", in.Patch.Deleted)
	}
	ev.Msg("starting review session")
	summary, err := tui.Run(tui.Config{
		Controller: ctrl,
		Feedback:   rec,
		Exporter:   a.client,
		Token:      token,
		Avatar:     avatar,
		Filename:   in.Filename,
		Request:    in.Request,
		ExportDir:  exportDir,
		AutoRun:    !noAuto,
	}, opts...)
	if err != nil {
		return err
	}

	if s := summary.String(); s != "" {
		fmt.Fprint(cmd.OutOrStdout(), s)
	}
	return nil
}
