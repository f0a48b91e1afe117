// Package diff builds the line-annotated view of reviewed code and prepares
// original/modified pairs for diff-mode reviews.
package diff

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
)

// AnnotatedLine is one line of the modified pane.
type AnnotatedLine struct {
	LineNumber int    `json:"line_number"`
	Text       string `json:"text"` // HTML-escaped
	Flagged    bool   `json:"flagged"`
}

// Annotated is the two-pane diff preview. Original is shown as-is for reference and
// is never aligned against the modified lines.
type Annotated struct {
	Original string          `json:"original"`
	Lines    []AnnotatedLine `json:"lines"`
}

// FlaggedCount returns how many modified lines carry a violation.
func (a Annotated) FlaggedCount() int {
	n := 0
	for _, l := range a.Lines {
		if l.Flagged {
			n++
		}
	}
	return n
}

// Annotate numbers the lines of modified from 1 and flags those whose number is in
// violationLines. Matching is by line number only, not by content.
func Annotate(original, modified string, violationLines map[int]bool) Annotated {
	lines := SplitLines(modified)
	out := Annotated{
		Original: original,
		Lines:    make([]AnnotatedLine, len(lines)),
	}
	for i, ln := range lines {
		n := i + 1
		out.Lines[i] = AnnotatedLine{
			LineNumber: n,
			Text:       EscapeHTML(ln),
			Flagged:    violationLines[n],
		}
	}
	return out
}

// SplitLines splits text on line breaks. A single trailing newline terminates the
// last line rather than starting an empty one.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}

var htmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#039;",
)

// EscapeHTML escapes reviewed source before it is placed in markup.
func EscapeHTML(s string) string {
	return htmlReplacer.Replace(s)
}

// FromPatch applies a single-file unified diff to original and returns the modified text.
func FromPatch(original, patch string) (string, error) {
	files, _, err := gitdiff.Parse(strings.NewReader(patch))
	if err != nil {
		return "", fmt.Errorf("parsing patch: %w", err)
	}
	if len(files) == 0 {
		return "", fmt.Errorf("patch contains no file changes")
	}
	if len(files) > 1 {
		return "", fmt.Errorf("patch touches %d files, expected 1", len(files))
	}
	f := files[0]
	if f.IsBinary {
		return "", fmt.Errorf("binary patches are not supported")
	}

	var out bytes.Buffer
	if err := gitdiff.Apply(&out, strings.NewReader(original), f); err != nil {
		return "", fmt.Errorf("applying patch: %w", err)
	}
	return out.String(), nil
}

// PatchStats counts added and deleted lines in a unified diff.
func PatchStats(patch string) (added, deleted int, err error) {
	files, _, err := gitdiff.Parse(strings.NewReader(patch))
	if err != nil {
		return 0, 0, fmt.Errorf("parsing patch: %w", err)
	}
	for _, f := range files {
		for _, frag := range f.TextFragments {
			for _, line := range frag.Lines {
				switch line.Op {
				case gitdiff.OpAdd:
					added++
				case gitdiff.OpDelete:
					deleted++
				}
			}
		}
	}
	return added, deleted, nil
}

// GitShow returns the contents of path at rev, e.g. the HEAD version of a file
// used as the original side of a diff review.
func GitShow(repoDir, rev, path string) (string, error) {
	cmd := exec.Command("git", "show", rev+":"+path)
	cmd.Dir = repoDir
	cmd.Stderr = os.Stderr

	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git show %s:%s: %w", rev, path, err)
	}
	return string(out), nil
}

// GitPrefix returns the path of the working directory relative to the repo root,
// which `git show rev:path` expects.
func GitPrefix(dir string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "--show-prefix")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
