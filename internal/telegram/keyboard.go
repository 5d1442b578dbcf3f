package telegram

import (
	"strconv"
	"strings"

	"github.com/telemux/telemux/internal/textutil"
)

const (
	// optionCallbackPrefix tags callback data produced by option keyboards.
	optionCallbackPrefix = "opt"

	// maxOptionButtons caps the keyboard size. More than this many options
	// is almost always a numbered list, not a question.
	maxOptionButtons = 8

	// maxButtonLabelRunes is the visible label budget per button.
	maxButtonLabelRunes = 40

	// maxCallbackDataBytes is the Bot API limit on callback_data.
	maxCallbackDataBytes = 64
)

// BuildOptionKeyboard scans notification text for a numbered option list
// and builds an inline keyboard for it. Returns nil unless at least two
// options are present: a single numbered line is prose, not a menu.
//
// Each button's callback data encodes the session and the option number so
// the press can be routed back and injected as that number. Buttons whose
// callback data would exceed the API limit are dropped.
func BuildOptionKeyboard(session, text string) *InlineKeyboardMarkup {
	var rows [][]InlineKeyboardButton

	for _, line := range strings.Split(text, "\n") {
		m := textutil.OptionPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		// The three alternations put the number in one of three groups.
		number := m[1]
		if number == "" {
			number = m[2]
		}
		if number == "" {
			number = m[3]
		}
		label := number + ". " + textutil.TruncateLabel(strings.TrimSpace(m[4]), maxButtonLabelRunes)

		data := optionCallbackPrefix + ":" + session + ":" + number
		if len(data) > maxCallbackDataBytes {
			continue
		}

		rows = append(rows, []InlineKeyboardButton{{Text: label, CallbackData: data}})
		if len(rows) == maxOptionButtons {
			break
		}
	}

	if len(rows) < 2 {
		return nil
	}
	return &InlineKeyboardMarkup{InlineKeyboard: rows}
}

// ParseOptionCallback decodes callback data produced by BuildOptionKeyboard.
// Returns ok=false for data this listener did not generate.
func ParseOptionCallback(data string) (session, number string, ok bool) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 || parts[0] != optionCallbackPrefix {
		return "", "", false
	}
	if parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	if _, err := strconv.Atoi(parts[2]); err != nil {
		return "", "", false
	}
	return parts[1], parts[2], true
}
