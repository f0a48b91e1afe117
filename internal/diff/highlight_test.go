package diff

import (
	"testing"
)

func TestHighlightLines(t *testing.T) {
	lines := []string{
		"import os",
		"",
		"def main():",
		`    api_key = os.getenv("API_KEY")`,
		"    print(api_key)",
	}

	highlighted := HighlightLines("review.py", lines)

	if len(highlighted) != len(lines) {
		t.Fatalf("expected %d highlighted lines, got %d", len(lines), len(highlighted))
	}

	if len(highlighted[0].Tokens) == 0 {
		t.Error("expected tokens in first line")
	}

	for i, want := range lines {
		if got := highlighted[i].Plain(); got != want {
			t.Errorf("line %d plain text = %q, want %q", i+1, got, want)
		}
	}
}

func TestHighlightLinesNoFilename(t *testing.T) {
	lines := []string{"some content", "more content"}
	highlighted := HighlightLines("", lines)

	if len(highlighted) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(highlighted))
	}
	if highlighted[0].Plain() != "some content" {
		t.Errorf("expected plain passthrough, got %q", highlighted[0].Plain())
	}
}

func TestHighlightLinesEmpty(t *testing.T) {
	if got := HighlightLines("a.py", nil); len(got) != 0 {
		t.Errorf("expected no lines, got %d", len(got))
	}
}
