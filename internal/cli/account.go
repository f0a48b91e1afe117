package cli

import (
	"bufio"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/guardrev/internal/auth"
	"github.com/sprite-ai/guardrev/internal/client"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the review service",
	Long: `Exchange an email and password for a token and save it for later
commands. The password is read from stdin when --password is not given.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved token",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in account",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show feedback totals recorded by the review service",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var remediateCmd = &cobra.Command{
	Use:   "remediate RULE...",
	Short: "Ask the review service how to fix violations of the given rules",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRemediate,
}

func init() {
	loginCmd.Flags().StringP("email", "e", "", "account email")
	loginCmd.Flags().String("password", "", "account password (default: read from stdin)")
	_ = loginCmd.MarkFlagRequired("email")
}

func runLogin(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, nil, false)
	if err != nil {
		return err
	}
	defer a.close()

	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("reading password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	token, err := a.client.Login(cmd.Context(), email, password)
	if err != nil {
		var se *client.StatusError
		if errors.As(err, &se) && se.Status == http.StatusUnauthorized {
			return errors.New("login failed: wrong email or password")
		}
		return err
	}
	if err := a.store.Save(token); err != nil {
		return err
	}
	a.log.Info().Str("email", email).Msg("logged in")

	who := email
	if claims, err := auth.Parse(token); err == nil && claims.Subject != "" {
		who = claims.Subject
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", who)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, nil, false)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.store.Clear(); err != nil {
		return err
	}
	a.log.Info().Msg("logged out")
	fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, nil, false)
	if err != nil {
		return err
	}
	defer a.close()

	token, err := a.requireToken()
	if err != nil {
		return err
	}
	u, err := a.client.Me(cmd.Context(), token)
	if err != nil {
		return a.authFailure(err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s <%s>", u.Name, u.Email)
	if u.Role != "" {
		fmt.Fprintf(out, " (%s)", u.Role)
	}
	fmt.Fprintln(out)
	if claims, err := auth.Parse(token); err == nil && !claims.ExpiresAt.IsZero() {
		fmt.Fprintf(out, "Token expires %s\n", claims.ExpiresAt.Local().Format(time.RFC1123))
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, nil, false)
	if err != nil {
		return err
	}
	defer a.close()

	token, err := a.requireToken()
	if err != nil {
		return err
	}
	stats, err := a.client.Stats(cmd.Context(), token)
	if err != nil {
		return a.authFailure(err)
	}
	fmt.Fprint(cmd.OutOrStdout(), formatStats(stats))
	return nil
}

func formatStats(s client.FeedbackStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Feedback submitted: %d\n", s.TotalFeedback)
	fmt.Fprintf(&b, "  valid:           %d\n", s.ValidReports)
	fmt.Fprintf(&b, "  false positive:  %d\n", s.FalsePositives)
	if s.TotalFeedback > 0 {
		fmt.Fprintf(&b, "False positive rate: %.0f%%\n", 100*float64(s.FalsePositives)/float64(s.TotalFeedback))
	}
	return b.String()
}

func runRemediate(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, nil, false)
	if err != nil {
		return err
	}
	defer a.close()

	token, err := a.token(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	suggestions, err := a.client.Remediation(cmd.Context(), token, args)
	if err != nil {
		return a.authFailure(err)
	}

	out := cmd.OutOrStdout()
	if len(suggestions) == 0 {
		fmt.Fprintln(out, "No suggestions.")
		return nil
	}
	for i, s := range suggestions {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "%s\n  %s\n", s.RuleID, s.Suggestion)
		if s.Reason != "" {
			fmt.Fprintf(out, "  Why: %s\n", s.Reason)
		}
		if s.ExampleFix != "" {
			fmt.Fprintf(out, "  Example:\n    %s\n", strings.ReplaceAll(s.ExampleFix, "\n", "\n    "))
		}
	}
	return nil
}

// authFailure drops a token the service no longer accepts.
func (a *app) authFailure(err error) error {
	var se *client.StatusError
	if errors.As(err, &se) && se.Status == http.StatusUnauthorized {
		a.dropToken()
		return fmt.Errorf("session expired: %w", auth.ErrNoToken)
	}
	return err
}
