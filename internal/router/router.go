// Package router is the dispatch core: each inbound update is resolved to
// a session by its (chat, thread) pair and walked through the dispatch
// order below. One misbehaving update never takes down the poll loop; the
// caller logs the returned error and moves on.
//
// Dispatch order per update:
//  1. resolve the session; no match discards the update
//  2. callback queries decode their option token and inject the number
//  3. paused sessions discard everything except the resume command
//  4. slash commands go to the command handler
//  5. photos and documents go through the attachment pipeline
//  6. other media get a friendly unsupported reply
//  7. remaining text is sanitized and injected literally
//
// Successful injections are acknowledged with a reaction rather than a
// reply, cancel any pending idle notification for the session, and arm a
// new debounced one that reports the terminal's response once it settles.
package router

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/telemux/telemux/internal/attachments"
	"github.com/telemux/telemux/internal/command"
	"github.com/telemux/telemux/internal/errors"
	"github.com/telemux/telemux/internal/notify"
	"github.com/telemux/telemux/internal/registry"
	"github.com/telemux/telemux/internal/telegram"
	"github.com/telemux/telemux/internal/textutil"
)

const (
	// Reactions acknowledging injected input.
	reactionOK   = "👀"
	reactionFail = "😱"

	// notifyCaptureLines is how much pane history the idle notification
	// looks at when extracting context.
	notifyCaptureLines = 60

	// notifyContextChars bounds the extracted context message.
	notifyContextChars = 500
)

// Transport is the chat-side surface the router needs.
// *telegram.Client satisfies it.
type Transport interface {
	SendMessage(ctx context.Context, chatID, threadID, text string) error
	SendMessageWithKeyboard(ctx context.Context, chatID, threadID, text string, markup *telegram.InlineKeyboardMarkup) error
	SetReaction(ctx context.Context, chatID string, messageID int64, emoji string) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
}

// Terminal is the terminal-side surface. *tmux.Manager satisfies it.
type Terminal interface {
	Inject(target, text string) error
	Capture(target string, lines int) (string, error)
}

// Commander executes slash commands. *command.Handler satisfies it.
type Commander interface {
	Handle(ctx context.Context, rec *registry.Record, text string) error
}

// Fetcher downloads attachments. *attachments.Pipeline satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, session, fileID, suggestedName string) (string, error)
}

// NotifyStore reads the per-session notification preference and the
// attachment cleanup registry. *state.Store satisfies it.
type NotifyStore interface {
	NotifyEnabled(session string) (bool, error)
	AttachmentsFor(session string) ([]string, error)
}

// Router dispatches inbound updates to sessions.
type Router struct {
	registry  *registry.Registry
	transport Transport
	terminal  Terminal
	commands  Commander
	fetcher   Fetcher
	store     NotifyStore
	debouncer *notify.Debouncer
	logger    *log.Logger
}

// New wires a router.
func New(reg *registry.Registry, transport Transport, terminal Terminal, commands Commander, fetcher Fetcher, store NotifyStore, debouncer *notify.Debouncer, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.Default()
	}
	return &Router{
		registry:  reg,
		transport: transport,
		terminal:  terminal,
		commands:  commands,
		fetcher:   fetcher,
		store:     store,
		debouncer: debouncer,
		logger:    logger,
	}
}

// Dispatch routes a single update. The returned error is for logging only;
// user-visible failures have already been reported to the originating chat.
func (r *Router) Dispatch(ctx context.Context, u telegram.Update) error {
	if u.CallbackQuery != nil {
		return r.dispatchCallback(ctx, u.CallbackQuery)
	}
	if u.Message == nil {
		return nil
	}
	return r.dispatchMessage(ctx, u.Message)
}

// dispatchCallback handles option-button presses. The token carries the
// session name directly, so no routing-table lookup is involved.
func (r *Router) dispatchCallback(ctx context.Context, cb *telegram.CallbackQuery) error {
	session, number, ok := telegram.ParseOptionCallback(cb.Data)
	if !ok {
		// Not a token this listener generated. Acknowledge so the client
		// stops spinning, then drop it.
		r.answerCallback(ctx, cb.ID, "")
		return nil
	}

	rec := r.registry.Get(session)
	if rec == nil {
		r.answerCallback(ctx, cb.ID, "Session "+session+" is no longer configured")
		return nil
	}

	if err := r.terminal.Inject(rec.Target, number); err != nil {
		r.answerCallback(ctx, cb.ID, "Failed: "+errors.GetMessage(err))
		return err
	}

	r.answerCallback(ctx, cb.ID, "Sent "+number)
	r.afterInjection(rec)
	return nil
}

func (r *Router) dispatchMessage(ctx context.Context, msg *telegram.Message) error {
	rec := r.registry.Lookup(msg.ChatIDString(), msg.ThreadIDString())
	if rec == nil {
		r.logger.Printf("no session for chat %s thread %q, discarding", msg.ChatIDString(), msg.ThreadIDString())
		return nil
	}

	// Pause is a total mute: while paused, the resume command is the only
	// input that gets through.
	if rec.Paused && !command.IsResume(msg.Text) {
		return nil
	}

	if command.IsCommand(msg.Text) {
		return r.commands.Handle(ctx, rec, msg.Text)
	}

	if msg.Document != nil || msg.LargestPhoto() != nil {
		return r.dispatchAttachment(ctx, rec, msg)
	}

	if msg.Voice != nil || msg.Audio != nil || msg.Video != nil || msg.Sticker != nil {
		return r.transport.SendMessage(ctx, rec.ChatID, rec.ThreadID,
			"This media type is not supported. Send text, a photo, or a document.")
	}

	if strings.TrimSpace(msg.Text) == "" {
		return nil
	}
	return r.injectText(ctx, rec, msg, textutil.SanitizeTerminalInput(msg.Text))
}

// dispatchAttachment downloads the file and injects its local path as
// synthetic text input, with the caption appended when present.
func (r *Router) dispatchAttachment(ctx context.Context, rec *registry.Record, msg *telegram.Message) error {
	var fileID, name, kind string
	switch {
	case msg.Document != nil:
		fileID, name, kind = msg.Document.FileID, msg.Document.FileName, "File"
	default:
		fileID, name, kind = msg.LargestPhoto().FileID, "", "Image"
	}

	local, err := r.fetcher.Fetch(ctx, rec.Name, fileID, name)
	if err != nil {
		r.react(ctx, rec, msg, reactionFail)
		return r.transport.SendMessage(ctx, rec.ChatID, rec.ThreadID,
			"Attachment failed: "+errors.GetMessage(err))
	}

	text := fmt.Sprintf("[%s: %s]", kind, local)
	if caption := textutil.SanitizeTerminalInput(msg.Caption); caption != "" {
		text += " " + caption
	}
	return r.injectText(ctx, rec, msg, text)
}

// injectText performs the literal injection and the reaction protocol:
// a reaction on the originating message instead of a noisy reply, with a
// visible error reply only on failure.
func (r *Router) injectText(ctx context.Context, rec *registry.Record, msg *telegram.Message, text string) error {
	if err := r.terminal.Inject(rec.Target, text); err != nil {
		r.react(ctx, rec, msg, reactionFail)
		if sendErr := r.transport.SendMessage(ctx, rec.ChatID, rec.ThreadID,
			"Injection failed: "+errors.GetMessage(err)); sendErr != nil {
			r.logger.Printf("error reply failed for %s: %v", rec.Name, sendErr)
		}
		return err
	}

	r.react(ctx, rec, msg, reactionOK)
	r.afterInjection(rec)
	return nil
}

// afterInjection resets the session's idle notification: the pending one
// (if any) is obsolete now that the user has typed, and a fresh debounced
// one is armed to report the terminal's response once output settles.
func (r *Router) afterInjection(rec *registry.Record) {
	r.debouncer.Cancel(rec.Name)

	// Capture the fields needed later; the record may be reloaded or
	// evicted before the timer fires.
	session, target := rec.Name, rec.Target
	chatID, threadID := rec.ChatID, rec.ThreadID

	r.debouncer.Schedule(session, rec.Debounce, func() {
		r.sendIdleNotification(session, target, chatID, threadID)
	})
}

// sendIdleNotification runs on the debounce timer goroutine. It respects
// the persisted notification preference and sends the extracted context of
// recent terminal output, with an option keyboard when the output ends in
// a numbered menu.
func (r *Router) sendIdleNotification(session, target, chatID, threadID string) {
	enabled, err := r.store.NotifyEnabled(session)
	if err != nil {
		r.logger.Printf("notify preference read failed for %s: %v", session, err)
	}
	if !enabled {
		return
	}

	capture, err := r.terminal.Capture(target, notifyCaptureLines)
	if err != nil {
		r.logger.Printf("notification capture failed for %s: %v", session, err)
		return
	}

	extracted := textutil.ExtractContext(textutil.StripANSIColors(capture), notifyContextChars)
	if strings.TrimSpace(extracted) == "" {
		return
	}

	text := fmt.Sprintf("%s:\n%s", session, extracted)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if kb := telegram.BuildOptionKeyboard(session, extracted); kb != nil {
		err = r.transport.SendMessageWithKeyboard(ctx, chatID, threadID, text, kb)
	} else {
		err = r.transport.SendMessage(ctx, chatID, threadID, text)
	}
	if err != nil {
		r.logger.Printf("notification send failed for %s: %v", session, err)
	}
}

// ReleaseSession frees the listener resources bound to a session whose
// record was removed from the registry: its pending idle notification and
// any downloaded attachments still in the scratch directory. Wired as the
// registry's eviction hook.
func (r *Router) ReleaseSession(name string) {
	r.debouncer.Cancel(name)

	paths, err := r.store.AttachmentsFor(name)
	if err != nil {
		r.logger.Printf("attachment lookup failed for removed session %s: %v", name, err)
		return
	}
	attachments.Remove(paths)
	if len(paths) > 0 {
		r.logger.Printf("session %s removed: deleted %d attachment(s)", name, len(paths))
	}
}

// react sets an acknowledgement reaction, best effort.
func (r *Router) react(ctx context.Context, rec *registry.Record, msg *telegram.Message, emoji string) {
	if err := r.transport.SetReaction(ctx, rec.ChatID, msg.MessageID, emoji); err != nil {
		r.logger.Printf("reaction failed for %s: %v", rec.Name, err)
	}
}

// answerCallback acknowledges a button press, best effort.
func (r *Router) answerCallback(ctx context.Context, id, text string) {
	if err := r.transport.AnswerCallbackQuery(ctx, id, text); err != nil {
		r.logger.Printf("callback answer failed: %v", err)
	}
}
