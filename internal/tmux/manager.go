// Package tmux provides the terminal side of the bridge: injecting text
// into tmux sessions and capturing pane output from them.
//
// Text injection is always literal. Input goes through `send-keys -l --`
// so tmux never interprets message content as key names, and the Enter
// keypress is a separate command. This is what keeps chat input from
// becoming key injection.
package tmux

import (
	"bufio"
	"fmt"
	"os/exec"
	"strings"

	"github.com/telemux/telemux/internal/errors"
)

// DefaultCaptureLines is the pane capture depth when the caller does not
// specify one.
const DefaultCaptureLines = 100

// Manager runs tmux commands against local sessions.
type Manager struct {
	// execCommand creates exec.Cmd instances. Tests inject a mock;
	// production uses exec.Command.
	execCommand func(name string, arg ...string) *exec.Cmd
}

// NewManager creates a Manager using the real exec.Command.
func NewManager() *Manager {
	return &Manager{execCommand: exec.Command}
}

// IsRunning reports whether the named tmux session exists.
//
// tmux not being installed is an error; the session merely not existing
// is not.
func (m *Manager) IsRunning(target string) (bool, error) {
	if target == "" {
		return false, nil
	}

	cmd := m.execCommand("tmux", "has-session", "-t", target)
	if _, err := cmd.CombinedOutput(); err != nil {
		if isCommandNotFound(err) {
			return false, errors.TmuxNotInstalled()
		}
		// has-session exits 1 when the session (or server) is absent.
		return false, nil
	}
	return true, nil
}

// Inject types text into the target session followed by Enter.
//
// The text is passed with -l (literal) and a -- terminator so neither tmux
// key-name expansion nor flag parsing applies to message content. Enter is
// sent as a second command: sending it together with literal text would
// type the word "Enter" instead of pressing the key.
func (m *Manager) Inject(target, text string) error {
	if target == "" {
		return errors.SessionNotRunning(target)
	}

	cmd := m.execCommand("tmux", "send-keys", "-t", target, "-l", "--", text)
	if output, err := cmd.CombinedOutput(); err != nil {
		return injectError(target, output, err)
	}

	cmd = m.execCommand("tmux", "send-keys", "-t", target, "Enter")
	if output, err := cmd.CombinedOutput(); err != nil {
		return injectError(target, output, err)
	}
	return nil
}

// Capture returns the last lines of the target session's active pane.
func (m *Manager) Capture(target string, lines int) (string, error) {
	if target == "" {
		return "", errors.SessionNotRunning(target)
	}
	if lines <= 0 {
		lines = DefaultCaptureLines
	}

	// -p prints to stdout, -S with a negative value reaches into scrollback.
	cmd := m.execCommand("tmux", "capture-pane", "-t", target, "-p", "-S", fmt.Sprintf("-%d", lines))
	output, err := cmd.CombinedOutput()
	if err != nil {
		if isCommandNotFound(err) {
			return "", errors.TmuxNotInstalled()
		}
		if isSessionMissing(string(output)) {
			return "", errors.SessionNotRunning(target)
		}
		return "", errors.Wrap(errors.CodeSessionCaptureFailed, fmt.Sprintf("capture-pane failed for %q", target), err)
	}
	return string(output), nil
}

// ListTargets returns the names of all running tmux sessions. A missing
// server means no sessions, not an error.
func (m *Manager) ListTargets() ([]string, error) {
	cmd := m.execCommand("tmux", "list-sessions", "-F", "#{session_name}")
	output, err := cmd.CombinedOutput()
	if err != nil {
		if isCommandNotFound(err) {
			return nil, errors.TmuxNotInstalled()
		}
		if isNoServerRunning(string(output)) {
			return []string{}, nil
		}
		return nil, errors.Wrap(errors.CodeSessionCaptureFailed, "failed to list tmux sessions", err)
	}

	var names []string
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func injectError(target string, output []byte, err error) error {
	if isCommandNotFound(err) {
		return errors.TmuxNotInstalled()
	}
	if isSessionMissing(string(output)) {
		return errors.SessionNotRunning(target)
	}
	return errors.Wrap(errors.CodeSessionInjectFailed, fmt.Sprintf("send-keys failed for %q", target), err)
}

// isSessionMissing checks tmux stderr for the session-absent messages.
// tmux wording varies across versions.
func isSessionMissing(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "can't find session") ||
		strings.Contains(lower, "session not found") ||
		strings.Contains(lower, "no server running") ||
		strings.Contains(lower, "error connecting to")
}

// isNoServerRunning checks whether the output means the tmux server itself
// is not up, which for listing purposes is the empty state.
func isNoServerRunning(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "no server running") ||
		strings.Contains(lower, "error connecting to") ||
		strings.Contains(lower, "no sessions")
}

// isCommandNotFound checks if the error indicates the tmux binary is not
// installed.
func isCommandNotFound(err error) bool {
	if err == nil {
		return false
	}
	if err == exec.ErrNotFound {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "executable file not found") ||
		strings.Contains(msg, "no such file or directory")
}
