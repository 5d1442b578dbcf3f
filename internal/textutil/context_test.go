package textutil

import (
	"strings"
	"testing"
)

func TestClassifyLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want LineType
	}{
		{"empty", "", LineEmpty},
		{"whitespace only", "   ", LineEmpty},
		{"prompt bare", ">", LinePrompt},
		{"prompt with cursor", "> _", LinePrompt},
		{"option dot", "1. Token bucket", LineOption},
		{"option paren", "2) Sliding window", LineOption},
		{"option hash", "#3 Fixed window", LineOption},
		{"option bracketed", "(4) Leaky bucket", LineOption},
		{"bullet dash", "- JWT validation", LineBullet},
		{"bullet star", "* middleware", LineBullet},
		{"diff added", "+added line", LineDiff},
		{"diff removed", "-removed line", LineDiff},
		{"diff hunk", "@@ -1,3 +1,4 @@", LineDiff},
		{"diff git header", "diff --git a/x b/x", LineDiff},
		{"file path", "src/app.js - Added auth", LineFilePath},
		{"indented code", "  const x = 5;", LineCode},
		{"plain text", "All 12 tests pass.", LineText},
		{"question", "Which approach do you prefer?", LineText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyLine(tt.line); got != tt.want {
				t.Errorf("ClassifyLine(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestExtractContext_Question(t *testing.T) {
	text := strings.Join([]string{
		"  const limiter = rate.NewLimiter(10, 1);",
		"",
		"Which rate limiting approach should I use?",
		"1. Token bucket",
		"2. Sliding window",
		"> _",
	}, "\n")

	got := ExtractContext(text, 500)

	if !strings.Contains(got, "Which rate limiting approach") {
		t.Errorf("question missing from context: %q", got)
	}
	if !strings.Contains(got, "1. Token bucket") || !strings.Contains(got, "2. Sliding window") {
		t.Errorf("options missing from context: %q", got)
	}
	if strings.Contains(got, "NewLimiter") {
		t.Errorf("code leaked into context: %q", got)
	}
	if strings.Contains(got, ">") {
		t.Errorf("prompt leaked into context: %q", got)
	}
}

func TestExtractContext_DropsIntroBeforeCode(t *testing.T) {
	text := strings.Join([]string{
		"I've made the following changes:",
		"  function handler() {",
		"  }",
		"All tests pass now.",
	}, "\n")

	got := ExtractContext(text, 500)

	if !strings.Contains(got, "All tests pass now.") {
		t.Errorf("trailing summary missing: %q", got)
	}
	if strings.Contains(got, "function handler") {
		t.Errorf("code leaked into context: %q", got)
	}
}

func TestExtractContext_Empty(t *testing.T) {
	if got := ExtractContext("", 500); got != "" {
		t.Errorf("expected empty context, got %q", got)
	}
	if got := ExtractContext("   \n  \n", 500); got != "" {
		t.Errorf("expected empty context for whitespace, got %q", got)
	}
}

func TestExtractContext_FallbackOnTooLittle(t *testing.T) {
	// Nothing but a diff: extraction yields nothing useful, so the fallback
	// returns the truncated raw text without prompt lines.
	text := "+added\n-removed\n> _"
	got := ExtractContext(text, 500)

	if got == "" {
		t.Fatal("fallback should return something")
	}
	if strings.Contains(got, "> _") {
		t.Errorf("fallback should drop prompt lines: %q", got)
	}
}

func TestExtractContext_BoundedLength(t *testing.T) {
	var lines []string
	for i := 0; i < 100; i++ {
		lines = append(lines, "This is a long natural language sentence for padding purposes.")
	}
	got := ExtractContext(strings.Join(lines, "\n"), 500)

	if len(got) > 520 {
		t.Errorf("context exceeds bound: %d chars", len(got))
	}
}

func TestOptionPattern_CapturesNumberAndText(t *testing.T) {
	m := OptionPattern.FindStringSubmatch("1. Restart the server")
	if m == nil {
		t.Fatal("pattern should match")
	}
	if m[1] != "1" {
		t.Errorf("captured number = %q, want 1", m[1])
	}
	if m[4] != "Restart the server" {
		t.Errorf("captured text = %q", m[4])
	}
}

func TestOptionPattern_NoMidSentenceMatch(t *testing.T) {
	if OptionPattern.MatchString("Pick item 1. or item 2. from the list") {
		t.Error("mid-sentence numbers should not match")
	}
}
