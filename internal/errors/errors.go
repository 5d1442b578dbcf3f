// Package errors provides standardized error codes for the listener.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (config, transport, resolve, ...)
//   - error: The specific error type within that domain
//
// The codes are stable so callers can branch on them programmatically.
// Human-readable messages are provided alongside codes and are what gets
// reported back to the originating chat.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes by domain.
const (
	// Config domain - session config loading and validation
	CodeConfigUntrusted   = "config.untrusted"    // File ownership or permissions fail the trust checks
	CodeConfigIncomplete  = "config.incomplete"   // Required key missing from config file
	CodeConfigCollision   = "config.collision"    // Two sessions claim the same (chat, thread) pair
	CodeConfigReadFailed  = "config.read_failed"  // Config file could not be read
	CodeConfigParseFailed = "config.parse_failed" // Host config file could not be parsed

	// Transport domain - Telegram API failures
	CodeTransportRequestFailed   = "transport.request_failed"   // HTTP request or non-2xx response
	CodeTransportAPIError        = "transport.api_error"        // Bot API returned ok=false
	CodeTransportWebhookConflict = "transport.webhook_conflict" // A webhook is registered, long-poll cannot run

	// Resolve domain - user-supplied identifier resolution
	CodeResolveNotFound  = "resolve.not_found" // Identifier matched no session
	CodeResolveAmbiguous = "resolve.ambiguous" // Identifier matched more than one session

	// Download domain - attachment handling
	CodeDownloadFailed   = "download.failed"    // getFile or file fetch failed
	CodeDownloadTooLarge = "download.too_large" // File exceeds the provider size limit

	// Command domain - slash-command execution
	CodeCommandSessionNotRunning = "command.session_not_running" // Target tmux session is not running
	CodeCommandInjectFailed      = "command.inject_failed"       // Writing to the tmux session failed

	// Session domain - terminal target interaction
	CodeSessionInjectFailed  = "session.inject_failed"  // tmux send-keys failed
	CodeSessionCaptureFailed = "session.capture_failed" // tmux capture-pane failed
	CodeTmuxNotInstalled     = "session.tmux_missing"   // tmux binary not found on host

	// State domain - runtime state store
	CodeStateOpenFailed  = "state.open_failed"  // SQLite open failed
	CodeStateQueryFailed = "state.query_failed" // SQLite query failed

	// General domain
	CodeUnknown  = "error.unknown"
	CodeInternal = "error.internal"
)

// CodedError wraps an error with a stable error code.
type CodedError struct {
	Code    string // Stable error code (e.g., "resolve.ambiguous")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// Falls back to CodeUnknown for unrecognized errors.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// GetMessage extracts a human-readable message from an error.
// If the error is a CodedError, returns its message.
// Otherwise, returns the error's Error() string.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}

	return err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// Common error constructors for frequently used error types.

// Untrusted creates a "config.untrusted" error for a file that fails the
// ownership or permission trust checks. The file is rejected, never loaded.
func Untrusted(path, reason string) *CodedError {
	return New(CodeConfigUntrusted, fmt.Sprintf("config %s rejected: %s", path, reason))
}

// Incomplete creates a "config.incomplete" error for a config file missing
// a required key.
func Incomplete(path, key string) *CodedError {
	return New(CodeConfigIncomplete, fmt.Sprintf("config %s is missing %s", path, key))
}

// Collision creates a "config.collision" error naming both sessions that
// claim the same routing key.
func Collision(existing, adding, chatID, threadID string) *CodedError {
	msg := fmt.Sprintf("sessions %s and %s both claim chat %s thread %s", existing, adding, chatID, threadID)
	return New(CodeConfigCollision, msg)
}

// RequestFailed creates a "transport.request_failed" error.
func RequestFailed(method string, cause error) *CodedError {
	return Wrap(CodeTransportRequestFailed, fmt.Sprintf("%s request failed", method), cause)
}

// APIError creates a "transport.api_error" error from a Bot API error description.
func APIError(method, description string) *CodedError {
	return New(CodeTransportAPIError, fmt.Sprintf("%s: %s", method, description))
}

// WebhookConflict creates a "transport.webhook_conflict" error. A registered
// webhook makes getUpdates return nothing, so the listener cannot run until
// the webhook is removed.
func WebhookConflict(url string) *CodedError {
	return New(CodeTransportWebhookConflict, fmt.Sprintf("webhook registered at %s - long polling is disabled server-side", url))
}

// NotFound creates a "resolve.not_found" error for an identifier that
// matched no configured session.
func NotFound(id string) *CodedError {
	return New(CodeResolveNotFound, fmt.Sprintf("no session matches %q", id))
}

// Ambiguous creates a "resolve.ambiguous" error naming all colliding sessions.
func Ambiguous(id string, names []string) *CodedError {
	msg := fmt.Sprintf("%q matches multiple sessions: %s", id, strings.Join(names, ", "))
	return New(CodeResolveAmbiguous, msg)
}

// DownloadFailed creates a "download.failed" error.
func DownloadFailed(what string, cause error) *CodedError {
	return Wrap(CodeDownloadFailed, fmt.Sprintf("failed to download %s", what), cause)
}

// TooLarge creates a "download.too_large" error. Size and limit are in bytes.
func TooLarge(size, limit int64) *CodedError {
	msg := fmt.Sprintf("file is %dMB, limit is %dMB", size/1024/1024, limit/1024/1024)
	return New(CodeDownloadTooLarge, msg)
}

// SessionNotRunning creates a "command.session_not_running" error.
func SessionNotRunning(target string) *CodedError {
	return New(CodeCommandSessionNotRunning, fmt.Sprintf("tmux session %q is not running", target))
}

// TmuxNotInstalled creates a "session.tmux_missing" error.
func TmuxNotInstalled() *CodedError {
	return New(CodeTmuxNotInstalled, "tmux is not installed on this system")
}

// Internal creates an "error.internal" error.
func Internal(message string, cause error) *CodedError {
	return Wrap(CodeInternal, message, cause)
}
