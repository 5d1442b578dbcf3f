// Package command interprets the slash-command vocabulary against a
// resolved session: status, preview, notify control, and the directives
// forwarded to the terminal agent.
//
// Commands never crash the poll loop. Anything that goes wrong while
// executing one turns into a reply in the originating chat; silence on
// error is treated as a defect.
package command

import (
	"context"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"

	"github.com/telemux/telemux/internal/errors"
	"github.com/telemux/telemux/internal/registry"
	"github.com/telemux/telemux/internal/textutil"
)

const (
	// previewPageSize is the capture depth for a bare /preview and the
	// page unit for "back N".
	previewPageSize = 30

	// previewMaxLines caps explicit /preview N requests.
	previewMaxLines = 500

	// previewDocumentBytes is the size above which a preview is delivered
	// as a document upload instead of chat text.
	previewDocumentBytes = 4000
)

// Terminal is the terminal-session surface commands act on.
// *tmux.Manager satisfies it.
type Terminal interface {
	IsRunning(target string) (bool, error)
	Inject(target, text string) error
	Capture(target string, lines int) (string, error)
}

// Responder sends replies back to the originating chat/thread.
// *telegram.Client satisfies it.
type Responder interface {
	SendMessage(ctx context.Context, chatID, threadID, text string) error
	SendMessageHTML(ctx context.Context, chatID, threadID, text string) error
	SendDocument(ctx context.Context, chatID, threadID, filename, caption string, content io.Reader) error
}

// NotifyStore persists the per-session notification preference.
// *state.Store satisfies it.
type NotifyStore interface {
	NotifyEnabled(session string) (bool, error)
	SetNotifyEnabled(session string, enabled bool) error
}

// Pauser flips a session's runtime pause state. *registry.Registry
// satisfies it.
type Pauser interface {
	SetPaused(name string, paused bool) bool
}

// Handler executes slash commands for sessions.
type Handler struct {
	terminal Terminal
	respond  Responder
	store    NotifyStore
	pauser   Pauser
}

// NewHandler wires a command handler.
func NewHandler(terminal Terminal, respond Responder, store NotifyStore, pauser Pauser) *Handler {
	return &Handler{
		terminal: terminal,
		respond:  respond,
		store:    store,
		pauser:   pauser,
	}
}

// IsCommand reports whether a message is a slash command.
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}

// IsResume reports whether a message is the resume command, the single
// input a paused session still accepts.
func IsResume(text string) bool {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) < 2 {
		return false
	}
	return stripBotSuffix(fields[0]) == "/notify" && fields[1] == "start"
}

// stripBotSuffix removes the @botname suffix group chats append to
// commands ("/status@telemux_bot" -> "/status").
func stripBotSuffix(word string) string {
	if idx := strings.Index(word, "@"); idx > 0 {
		return word[:idx]
	}
	return word
}

// Handle executes one command message against a session. The returned
// error is for logging; every user-visible outcome is already sent as a
// reply by the time Handle returns.
func (h *Handler) Handle(ctx context.Context, rec *registry.Record, text string) error {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return nil
	}
	cmd := stripBotSuffix(fields[0])
	args := fields[1:]

	switch cmd {
	case "/status":
		return h.status(ctx, rec)
	case "/ping":
		return h.reply(ctx, rec, fmt.Sprintf("pong (%s)", rec.Name))
	case "/help":
		return h.reply(ctx, rec, helpText)
	case "/clear", "/compact":
		return h.forward(ctx, rec, cmd)
	case "/preview", "/output":
		return h.preview(ctx, rec, args)
	case "/notify":
		return h.notify(ctx, rec, args)
	default:
		return h.reply(ctx, rec, fmt.Sprintf("Unknown command %s.\n\n%s", cmd, helpText))
	}
}

const helpText = `Commands:
/status - session and terminal state
/ping - connectivity check
/preview [N | back N] - recent terminal output (/output works too)
/clear - forward /clear to the agent
/compact - forward /compact to the agent
/notify on|off|status|start|stop - notifications and pause control
/help - this message`

func (h *Handler) reply(ctx context.Context, rec *registry.Record, text string) error {
	return h.respond.SendMessage(ctx, rec.ChatID, rec.ThreadID, text)
}

// status reports terminal state, pause state, notification preference, and
// a short tail of recent output. A dead target is a visible "not running"
// line, never an error.
func (h *Handler) status(ctx context.Context, rec *registry.Record) error {
	running, err := h.terminal.IsRunning(rec.Target)
	targetState := "not running"
	if err != nil {
		targetState = "unknown (" + errors.GetMessage(err) + ")"
	} else if running {
		targetState = "running"
	}

	sessionState := "active"
	if rec.Paused {
		sessionState = "paused"
	}

	notifyState := "on"
	if enabled, err := h.store.NotifyEnabled(rec.Name); err == nil && !enabled {
		notifyState = "off"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s\n", rec.Name)
	fmt.Fprintf(&b, "Target: %s (%s)\n", rec.Target, targetState)
	fmt.Fprintf(&b, "State: %s\n", sessionState)
	fmt.Fprintf(&b, "Notifications: %s", notifyState)

	if running {
		if capture, err := h.terminal.Capture(rec.Target, 10); err == nil {
			tail := strings.TrimRight(textutil.StripANSIColors(capture), "\n")
			if tail != "" {
				fmt.Fprintf(&b, "\n\nRecent output:\n%s", tail)
			}
		}
	}

	return h.reply(ctx, rec, b.String())
}

// forward injects a directive like /clear into the terminal agent. The
// target not running is an explicit error reply, not a silent failure.
func (h *Handler) forward(ctx context.Context, rec *registry.Record, directive string) error {
	running, err := h.terminal.IsRunning(rec.Target)
	if err != nil {
		return h.reply(ctx, rec, "Cannot reach terminal: "+errors.GetMessage(err))
	}
	if !running {
		return h.reply(ctx, rec, errors.GetMessage(errors.SessionNotRunning(rec.Target)))
	}

	if err := h.terminal.Inject(rec.Target, directive); err != nil {
		return h.reply(ctx, rec, fmt.Sprintf("Failed to send %s: %s", directive, errors.GetMessage(err)))
	}
	return h.reply(ctx, rec, fmt.Sprintf("Sent %s to %s", directive, rec.Target))
}

// preview captures recent terminal output and sends it as monospace text.
//
// Forms: bare (last page), "N" (last N lines), "back N" (the page N pages
// before the current one), "help".
func (h *Handler) preview(ctx context.Context, rec *registry.Record, args []string) error {
	lines := previewPageSize
	pagesBack := 0

	switch {
	case len(args) == 0:
	case args[0] == "help":
		return h.reply(ctx, rec, previewHelp)
	case args[0] == "back":
		if len(args) < 2 {
			return h.reply(ctx, rec, previewHelp)
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			return h.reply(ctx, rec, previewHelp)
		}
		pagesBack = n
	default:
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return h.reply(ctx, rec, previewHelp)
		}
		if n > previewMaxLines {
			n = previewMaxLines
		}
		lines = n
	}

	running, err := h.terminal.IsRunning(rec.Target)
	if err != nil {
		return h.reply(ctx, rec, "Cannot reach terminal: "+errors.GetMessage(err))
	}
	if !running {
		return h.reply(ctx, rec, errors.GetMessage(errors.SessionNotRunning(rec.Target)))
	}

	// For "back N", capture deep enough to include the requested page and
	// slice it out of the scrollback.
	depth := lines + pagesBack*previewPageSize
	capture, err := h.terminal.Capture(rec.Target, depth)
	if err != nil {
		return h.reply(ctx, rec, "Capture failed: "+errors.GetMessage(err))
	}

	text := strings.TrimRight(textutil.StripANSIColors(capture), "\n")
	if pagesBack > 0 {
		all := strings.Split(text, "\n")
		end := len(all) - pagesBack*previewPageSize
		start := end - previewPageSize
		if end < 1 {
			return h.reply(ctx, rec, "No output that far back.")
		}
		if start < 0 {
			start = 0
		}
		text = strings.Join(all[start:end], "\n")
	}

	if strings.TrimSpace(text) == "" {
		return h.reply(ctx, rec, "No output captured.")
	}

	// Deep captures go up as a file so the chat is not flooded with
	// split messages.
	if len(text) > previewDocumentBytes {
		err := h.respond.SendDocument(ctx, rec.ChatID, rec.ThreadID,
			rec.Name+"-preview.txt", fmt.Sprintf("Terminal output for %s", rec.Name),
			strings.NewReader(text))
		if err != nil {
			return h.reply(ctx, rec, "Preview upload failed: "+errors.GetMessage(err))
		}
		return nil
	}

	return h.respond.SendMessageHTML(ctx, rec.ChatID, rec.ThreadID,
		"<pre>"+html.EscapeString(text)+"</pre>")
}

const previewHelp = `Usage:
/preview - last 30 lines
/preview N - last N lines (max 500)
/preview back N - the page N pages back`

// notify handles the notification and pause controls.
//
// on/off persist the notification preference in the state store. stop and
// start are the pause/resume transitions: stop mutes the session entirely
// (except /notify start) without touching the process, and start resumes
// it, answering idempotently when there is nothing to resume.
func (h *Handler) notify(ctx context.Context, rec *registry.Record, args []string) error {
	if len(args) == 0 {
		return h.reply(ctx, rec, notifyHelp)
	}

	switch args[0] {
	case "on":
		if err := h.store.SetNotifyEnabled(rec.Name, true); err != nil {
			return h.reply(ctx, rec, "Failed to save preference: "+errors.GetMessage(err))
		}
		return h.reply(ctx, rec, "Notifications on for "+rec.Name)
	case "off":
		if err := h.store.SetNotifyEnabled(rec.Name, false); err != nil {
			return h.reply(ctx, rec, "Failed to save preference: "+errors.GetMessage(err))
		}
		return h.reply(ctx, rec, "Notifications off for "+rec.Name)
	case "status":
		enabled, _ := h.store.NotifyEnabled(rec.Name)
		state := "on"
		if !enabled {
			state = "off"
		}
		pause := "active"
		if rec.Paused {
			pause = "paused"
		}
		return h.reply(ctx, rec, fmt.Sprintf("Notifications %s, session %s", state, pause))
	case "stop":
		if rec.Paused {
			return h.reply(ctx, rec, rec.Name+" is already paused.")
		}
		h.pauser.SetPaused(rec.Name, true)
		return h.reply(ctx, rec, rec.Name+" paused. Only /notify start will be accepted.")
	case "start":
		if !rec.Paused {
			return h.reply(ctx, rec, rec.Name+" is already running.")
		}
		h.pauser.SetPaused(rec.Name, false)
		return h.reply(ctx, rec, rec.Name+" resumed.")
	case "help":
		return h.reply(ctx, rec, notifyHelp)
	default:
		return h.reply(ctx, rec, notifyHelp)
	}
}

const notifyHelp = `Usage:
/notify on|off - enable or disable idle notifications
/notify status - show notification and pause state
/notify stop - pause the session (mutes everything except /notify start)
/notify start - resume a paused session`
