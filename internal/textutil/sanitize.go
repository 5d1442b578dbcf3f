// Package textutil provides text sanitization and extraction helpers used
// across the listener: terminal-input sanitization, filename cleaning,
// sensitive-value masking, and natural-language context extraction from
// captured terminal output.
package textutil

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// CSI sequences: colors, cursor movement, erase, etc.
	ansiCSI = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

	// OSC sequences: terminal title changes and similar, BEL-terminated.
	ansiOSC = regexp.MustCompile(`\x1b\][^\x07]*\x07`)

	// Any remaining escape-introduced run.
	ansiOther = regexp.MustCompile(`\x1b[^\x1b]*`)

	// SGR color codes only.
	ansiColor = regexp.MustCompile(`\x1b\[[0-9;]*m`)
)

// SanitizeTerminalInput strips ANSI escape sequences and control characters
// from text before it is injected into a tmux session.
//
// Removed:
//   - ANSI CSI escape sequences (colors, cursor movement)
//   - OSC sequences (terminal title changes)
//   - Other escape sequences
//   - Control and format characters, except newline and tab
//
// This prevents a chat message from carrying terminal escape injection into
// the target session.
func SanitizeTerminalInput(text string) string {
	if text == "" {
		return ""
	}

	text = ansiCSI.ReplaceAllString(text, "")
	text = ansiOSC.ReplaceAllString(text, "")
	text = ansiOther.ReplaceAllString(text, "")

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if r < 32 {
			continue
		}
		// Skip remaining control (Cc) and format (Cf) characters.
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			continue
		}
		b.WriteRune(r)
	}

	return b.String()
}

// StripANSIColors removes only SGR color codes. Used when relaying script
// output to chat, where the rest of the text should pass through untouched.
func StripANSIColors(text string) string {
	return ansiColor.ReplaceAllString(text, "")
}

// MaskSensitive masks a sensitive string for safe logging, keeping showStart
// characters at the front and showEnd at the back ("abc...xy"). Values too
// short to mask meaningfully become "***"; empty values become "(not set)".
func MaskSensitive(value string, showStart, showEnd int) string {
	if value == "" {
		return "(not set)"
	}
	if len(value) <= showStart+showEnd+3 {
		return "***"
	}
	return value[:showStart] + "..." + value[len(value)-showEnd:]
}

var (
	filenameUnsafe     = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
	filenameExtUnsafe  = regexp.MustCompile(`[^a-zA-Z0-9]`)
	filenameUnderscore = regexp.MustCompile(`_+`)
)

// SanitizeFilename removes unsafe characters from a filename, preserving the
// extension. Allowed characters are alphanumerics, underscore, and hyphen;
// everything else becomes an underscore. The name portion is capped at 100
// characters and the extension at 10.
func SanitizeFilename(filename string) string {
	if filename == "" {
		return "unnamed"
	}

	name := filename
	ext := ""
	if idx := strings.LastIndex(filename, "."); idx >= 0 {
		name = filename[:idx]
		cleaned := filenameExtUnsafe.ReplaceAllString(filename[idx+1:], "")
		if len(cleaned) > 10 {
			cleaned = cleaned[:10]
		}
		ext = "." + cleaned
	}

	sanitized := filenameUnsafe.ReplaceAllString(name, "_")
	sanitized = filenameUnderscore.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, "_")

	if sanitized == "" {
		sanitized = "file"
	}
	if len(sanitized) > 100 {
		sanitized = sanitized[:100]
	}

	return sanitized + ext
}

// TruncateLabel shortens text to max runes, appending an ellipsis when
// truncation happened. Used for inline keyboard button labels.
func TruncateLabel(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}
