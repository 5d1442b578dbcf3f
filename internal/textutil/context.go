package textutil

import (
	"regexp"
	"strings"
)

// LineType classifies a single line of captured terminal output.
type LineType int

// Line classifications, checked in order: prompt, option, bullet, diff,
// file path, code, then plain text.
const (
	LineEmpty LineType = iota
	LineCode
	LineDiff
	LineFilePath
	LinePrompt
	LineOption
	LineBullet
	LineText
)

var (
	codeSignals = regexp.MustCompile(`[{}\[\]();]|\b(import|from|def|class|function|const|let|var|return|if|else|for|while)\b|=>|->|::|&&|\|\|`)

	// word/word.ext followed by a dash, em-dash, or open paren.
	filePathLine = regexp.MustCompile(`^\s*\S+/\S+\.\w+\s*[-\x{2014}(]`)

	// +text / -text without a following space is diff content; +++/---/@@ and
	// "diff --git" are diff headers. "- text" is a bullet, checked earlier.
	diffLine = regexp.MustCompile(`^[+][^\s]|^[-][^\s]|^[+]{2,3}\s|^[-]{2,3}\s|^@@\s|^diff --git`)

	// The agent's idle input prompt ("> " or "> _").
	promptLine = regexp.MustCompile(`^>\s*[_\s]*$`)

	bulletLine = regexp.MustCompile(`^\s{0,1}[-*]\s`)

	// OptionPattern matches an enumerated-list line: "1. text", "2) text",
	// "#3 text", or "(4) text". Shared with the inline keyboard builder.
	OptionPattern = regexp.MustCompile(`^\s*(?:(\d+)[.)]\s+|#(\d+)\s+|\((\d+)\)\s+)(.+)$`)
)

// ClassifyLine determines the LineType of a single terminal output line.
func ClassifyLine(line string) LineType {
	stripped := strings.TrimRight(line, " \t\r")

	if stripped == "" {
		return LineEmpty
	}
	if promptLine.MatchString(stripped) {
		return LinePrompt
	}
	if OptionPattern.MatchString(stripped) {
		return LineOption
	}
	// Bullet before diff: both can start with '-', but "- text" is a bullet.
	if bulletLine.MatchString(stripped) {
		return LineBullet
	}
	if diffLine.MatchString(stripped) {
		return LineDiff
	}
	if filePathLine.MatchString(stripped) {
		return LineFilePath
	}

	leading := len(stripped) - len(strings.TrimLeft(stripped, " "))
	if leading >= 2 && codeSignals.MatchString(stripped) {
		return LineCode
	}

	return LineText
}

// ExtractContext extracts the natural-language portion of captured terminal
// output for use in a notification: questions, summaries, options, and
// bullets. Code blocks, diffs, file paths, and prompt lines are omitted.
//
// It works backwards from the end of the text (most recent output is most
// relevant) and stops at the first code/diff/filepath block. If extraction
// yields too little, it falls back to the truncated full text with prompt
// lines removed. maxChars bounds the result; 0 means the default of 500.
func ExtractContext(text string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = 500
	}
	if strings.TrimSpace(text) == "" {
		return ""
	}

	lines := strings.Split(text, "\n")
	type classified struct {
		line string
		typ  LineType
	}
	all := make([]classified, 0, len(lines))
	for _, line := range lines {
		all = append(all, classified{line, ClassifyLine(line)})
	}

	// Strip trailing prompt and empty lines.
	for len(all) > 0 {
		last := all[len(all)-1].typ
		if last != LinePrompt && last != LineEmpty {
			break
		}
		all = all[:len(all)-1]
	}
	if len(all) == 0 {
		return strings.TrimSpace(truncate(text, maxChars))
	}

	var collected []string
	total := 0
	hitNoise := false

scan:
	for i := len(all) - 1; i >= 0; i-- {
		switch all[i].typ {
		case LineCode, LineDiff, LineFilePath:
			hitNoise = true
			break scan
		case LineEmpty:
			// Keep blank lines between natural-language blocks.
			if len(collected) > 0 {
				collected = append(collected, all[i].line)
			}
		case LineText, LineBullet, LineOption:
			length := len(all[i].line) + 1
			if total+length > maxChars {
				break scan
			}
			collected = append(collected, all[i].line)
			total += length
		}
	}

	// A trailing "intro" line like "I've made the following changes:" right
	// before a code block describes the omitted block, so drop it.
	if hitNoise && len(collected) > 0 {
		last := strings.TrimSpace(collected[len(collected)-1])
		if strings.HasSuffix(last, ":") {
			collected = collected[:len(collected)-1]
		}
	}

	// Restore original order.
	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}

	// Trim surrounding empties and collapse consecutive blank lines.
	for len(collected) > 0 && strings.TrimSpace(collected[0]) == "" {
		collected = collected[1:]
	}
	for len(collected) > 0 && strings.TrimSpace(collected[len(collected)-1]) == "" {
		collected = collected[:len(collected)-1]
	}
	collapsed := collected[:0]
	prevEmpty := false
	for _, line := range collected {
		empty := strings.TrimSpace(line) == ""
		if empty && prevEmpty {
			continue
		}
		collapsed = append(collapsed, line)
		prevEmpty = empty
	}

	result := strings.TrimSpace(strings.Join(collapsed, "\n"))

	// Fallback: too little extracted, return truncated full text without
	// prompt lines.
	if len(result) < 10 {
		fallback := make([]string, 0, len(all))
		for _, c := range all {
			if c.typ != LinePrompt {
				fallback = append(fallback, c.line)
			}
		}
		return strings.TrimSpace(truncate(strings.Join(fallback, "\n"), maxChars))
	}

	return result
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
