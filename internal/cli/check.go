package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/guardrev/internal/client"
	"github.com/sprite-ai/guardrev/internal/report"
	"github.com/sprite-ai/guardrev/internal/review"
)

var checkCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Review a file and output a report (non-interactive)",
	Long: `Review a file against the configured policies and print a report.
Useful for CI, pre-commit hooks, and piping into other tools.

When the review service is unreachable or fails, the local fallback result is
reported and a notice is printed to stderr; use --strict to fail instead.

Exit codes:
  0  clean, no active violations
  1  violations found (or the review could not run)
  2  risk score in the high band`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	addInputFlags(checkCmd)
	checkCmd.Flags().StringP("format", "f", "text", "output format: "+strings.Join(report.Formats, ", "))
	checkCmd.Flags().Bool("export-pdf", false, "also save the PDF report to the current directory")
	checkCmd.Flags().Bool("strict", false, "fail instead of reporting the local fallback result")
}

// exit is swapped out by tests.
var exit = os.Exit

func runCheck(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, nil, false)
	if err != nil {
		return err
	}
	defer a.close()

	in, err := readInput(cmd, args, a.cfg.Policies)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	token, err := a.token(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctrl, _ := a.reviewStack()
	rep, err := ctrl.Run(cmd.Context(), in.Request, token)
	if err != nil {
		return err
	}

	stderr := cmd.ErrOrStderr()
	if rep.Notice != nil {
		fmt.Fprintf(stderr, "%s: %s\n", rep.Notice.Title, rep.Notice.Message)
	}
	if !rep.Adopted() {
		return errors.New("review did not produce a result")
	}
	if strict, _ := cmd.Flags().GetBool("strict"); strict && rep.FellBack {
		return errors.New("review service unavailable (--strict)")
	}

	err = report.Write(cmd.OutOrStdout(), format, report.Input{
		File:      in.Filename,
		Result:    *rep.Result,
		Annotated: rep.Annotated,
		Notice:    rep.Notice,
		FellBack:  rep.FellBack,
		Patch:     in.Patch,
	})
	if err != nil {
		return err
	}

	if pdf, _ := cmd.Flags().GetBool("export-pdf"); pdf {
		path, err := exportPDF(cmd.Context(), a.client, token, rep, ".")
		if err != nil {
			return err
		}
		fmt.Fprintf(stderr, "Report saved to %s\n", path)
	}

	if code := report.ExitCode(*rep.Result); code != report.ExitClean {
		a.close()
		exit(code)
	}
	return nil
}

func exportPDF(ctx context.Context, c *client.Client, token string, rep review.Report, dir string) (string, error) {
	pdf, err := c.ExportPDF(ctx, token, *rep.Result)
	if err != nil {
		return "", fmt.Errorf("exporting report: %w", err)
	}
	path := filepath.Join(dir, client.ReportFileName(time.Now()))
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}
