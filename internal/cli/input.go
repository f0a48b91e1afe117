package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/guardrev/internal/diff"
	"github.com/sprite-ai/guardrev/internal/model"
	"github.com/sprite-ai/guardrev/internal/report"
)

func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().String("original", "", "original version of FILE, for diff mode")
	cmd.Flags().String("against", "", "take the original of FILE from this git revision, e.g. HEAD")
	cmd.Flags().String("patch", "", "unified diff to apply to FILE; FILE is then the original")
	cmd.Flags().StringArrayP("policy", "p", nil, "policy to enforce (repeatable; default from config)")
	cmd.Flags().Bool("diff", false, "review in diff mode (needs --original, --against or --patch)")
	cmd.MarkFlagsMutuallyExclusive("original", "against", "patch")
}

// input is a resolved review target.
type input struct {
	Filename string
	Request  model.ReviewRequest
	Patch    *report.Change
}

// readInput builds the review request from FILE (or stdin) and the input flags.
// An original is loaded whenever one is given so the interactive screen can
// switch modes; the request starts in diff mode only with --diff.
func readInput(cmd *cobra.Command, args []string, defaultPolicies []string) (input, error) {
	var in input

	name := "-"
	if len(args) == 1 {
		name = args[0]
	}
	text, err := readSource(cmd.InOrStdin(), name)
	if err != nil {
		return in, err
	}
	in.Filename = name
	if name == "-" {
		in.Filename = "stdin"
	}

	original, _ := cmd.Flags().GetString("original")
	against, _ := cmd.Flags().GetString("against")
	patch, _ := cmd.Flags().GetString("patch")

	code := text
	var orig string
	switch {
	case original != "":
		if orig, err = readSource(nil, original); err != nil {
			return in, err
		}
	case against != "":
		if name == "-" {
			return in, errors.New("--against needs a FILE argument")
		}
		if orig, err = gitOriginal(name, against); err != nil {
			return in, err
		}
	case patch != "":
		p, err := readSource(nil, patch)
		if err != nil {
			return in, err
		}
		if code, err = diff.FromPatch(text, p); err != nil {
			return in, err
		}
		added, deleted, err := diff.PatchStats(p)
		if err != nil {
			return in, err
		}
		in.Patch = &report.Change{Added: added, Deleted: deleted}
		orig = text
	}

	policies, _ := cmd.Flags().GetStringArray("policy")
	if len(policies) == 0 {
		policies = defaultPolicies
	}

	in.Request = model.ReviewRequest{
		Mode:         model.ModeSingle,
		Code:         code,
		OriginalCode: orig,
		Policies:     policies,
	}
	if wantDiff, _ := cmd.Flags().GetBool("diff"); wantDiff {
		if orig == "" {
			return in, errors.New("--diff needs --original, --against or --patch")
		}
		in.Request.Mode = model.ModeDiff
	}
	return in, nil
}

func readSource(stdin io.Reader, name string) (string, error) {
	if name == "-" {
		if stdin == nil {
			return "", errors.New("stdin can only be read once")
		}
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", name, err)
	}
	return string(data), nil
}

// gitOriginal returns FILE as it was at rev.
func gitOriginal(name, rev string) (string, error) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(abs)
	prefix, err := diff.GitPrefix(dir)
	if err != nil {
		return "", fmt.Errorf("not in a git repository (or git not installed): %w", err)
	}
	return diff.GitShow(dir, rev, prefix+filepath.Base(abs))
}
