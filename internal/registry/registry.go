// Package registry loads and maintains the table of session records that
// drive message routing.
//
// Each session is described by a <name>.conf file in the sessions directory.
// The files are plain key=value text, never executed or evaluated: the parser
// recognizes a fixed whitelist of keys and ignores everything else. Files
// that fail the trust checks (wrong owner, group- or world-writable) are
// rejected outright.
//
// The registry supports hot reload: a periodic rescan diffs the directory
// against the loaded table, replacing changed records, adding new ones, and
// evicting records whose backing file disappeared. Runtime-only state (the
// paused flag) survives reloads. The table is swapped wholesale under a
// mutex so dispatch never observes a half-built table.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/telemux/telemux/internal/errors"
)

// recognizedKeys is the whitelist of config keys. Anything else in a config
// file is silently ignored, matching the documented file format.
var recognizedKeys = map[string]bool{
	"BOT_TOKEN":       true,
	"CHAT_ID":         true,
	"TOPIC_ID":        true,
	"TERMINAL_TARGET": true,
	"NOTIFY_DEBOUNCE": true,
}

// Record is one session's routing configuration plus its runtime state.
type Record struct {
	// Name is the session name, derived from the config filename.
	Name string

	// BotToken is the bot credential. All loaded sessions must share one
	// token: the process runs a single poll loop per token.
	BotToken string

	// ChatID is the chat this session is bound to.
	ChatID string

	// ThreadID is the optional topic within the chat. Empty means default
	// routing: the session receives every message in the chat that no
	// thread-specific session claims.
	ThreadID string

	// Target is the tmux session that input is injected into.
	Target string

	// Debounce is the notification debounce window.
	Debounce time.Duration

	// Paused is runtime-only state: while true, every inbound update for
	// this session is discarded except the resume command. Never persisted.
	Paused bool
}

// RoutingKey returns the (chat, thread) pair this record claims.
func (r *Record) RoutingKey() string {
	return r.ChatID + "\x00" + r.ThreadID
}

// Registry holds the loaded session table.
type Registry struct {
	dir             string
	defaultDebounce time.Duration
	only            string

	// OnEvict, when set, is called with the name of each session whose
	// record a rescan removed, so the caller can release resources bound
	// to it (pending timers, scratch files). Set it before Load runs from
	// a background goroutine; it is invoked outside the table lock.
	OnEvict func(name string)

	mu       sync.RWMutex
	sessions map[string]*Record
}

// New creates a registry over the given sessions directory. Call Load before
// first use. defaultDebounce applies to sessions without NOTIFY_DEBOUNCE.
func New(dir string, defaultDebounce time.Duration) *Registry {
	return &Registry{
		dir:             dir,
		defaultDebounce: defaultDebounce,
		sessions:        make(map[string]*Record),
	}
}

// Load scans the sessions directory and swaps in a fresh table.
//
// Files are processed in lexicographic order. A file that fails trust checks,
// is missing required keys, carries a different bot token than the first
// loaded session, or collides with an already-loaded (chat, thread) pair is
// skipped; the corresponding error is returned so the caller can log it.
// One bad file never prevents the others from loading.
//
// Runtime pause state is carried over from the previous table by name, and
// OnEvict fires for every session the rescan removed.
func (r *Registry) Load() []error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			// No sessions directory yet: empty table, not an error.
			r.replace(make(map[string]*Record))
			return nil
		}
		return []error{errors.Wrap(errors.CodeConfigReadFailed, fmt.Sprintf("cannot read sessions directory %s", r.dir), err)}
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".conf") {
			continue
		}
		if r.only != "" && e.Name() != r.only+".conf" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	table := make(map[string]*Record, len(names))
	claimed := make(map[string]string) // routing key -> session name
	var errs []error
	var botToken string

	for _, filename := range names {
		path := filepath.Join(r.dir, filename)
		rec, err := r.loadOne(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if botToken == "" {
			botToken = rec.BotToken
		} else if rec.BotToken != botToken {
			errs = append(errs, errors.Untrusted(path, "bot token differs from other sessions (one poll loop per token)"))
			continue
		}

		if owner, ok := claimed[rec.RoutingKey()]; ok {
			errs = append(errs, errors.Collision(owner, rec.Name, rec.ChatID, rec.ThreadID))
			continue
		}
		claimed[rec.RoutingKey()] = rec.Name
		table[rec.Name] = rec
	}

	r.replace(table)

	return errs
}

// loadOne parses and validates a single session config file.
func (r *Registry) loadOne(path string) (*Record, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(errors.CodeConfigReadFailed, fmt.Sprintf("cannot stat %s", path), err)
	}

	if err := checkTrust(path, info); err != nil {
		return nil, err
	}

	values, err := parseFile(path)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSuffix(filepath.Base(path), ".conf")

	if values["BOT_TOKEN"] == "" {
		return nil, errors.Incomplete(path, "BOT_TOKEN")
	}
	if values["CHAT_ID"] == "" {
		return nil, errors.Incomplete(path, "CHAT_ID")
	}

	target := values["TERMINAL_TARGET"]
	if target == "" {
		target = name
	}

	debounce := r.defaultDebounce
	if raw := values["NOTIFY_DEBOUNCE"]; raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs < 0 {
			return nil, errors.New(errors.CodeConfigReadFailed, fmt.Sprintf("config %s: NOTIFY_DEBOUNCE must be a non-negative integer, got %q", path, raw))
		}
		debounce = time.Duration(secs) * time.Second
	}

	return &Record{
		Name:     name,
		BotToken: values["BOT_TOKEN"],
		ChatID:   values["CHAT_ID"],
		ThreadID: values["TOPIC_ID"],
		Target:   target,
		Debounce: debounce,
	}, nil
}

// checkTrust rejects config files that could have been tampered with by
// another local user. The file must be owned by the current user or root and
// must not be group- or world-writable. These are trust-boundary checks:
// reject rather than silently load.
func checkTrust(path string, info os.FileInfo) error {
	if info.Mode()&0o022 != 0 {
		return errors.Untrusted(path, fmt.Sprintf("group/world-writable (mode %04o)", info.Mode().Perm()))
	}

	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		// Non-Unix stat: ownership cannot be verified, fall back to the
		// permission check above.
		return nil
	}
	uid := int(stat.Uid)
	if uid != os.Getuid() && uid != 0 {
		return errors.Untrusted(path, fmt.Sprintf("owned by uid %d, not current user or root", uid))
	}
	return nil
}

// parseFile extracts whitelisted key=value pairs from a config file. The
// file content is never executed; unknown keys and comment lines are
// ignored, and values may be single- or double-quoted.
func parseFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.CodeConfigReadFailed, fmt.Sprintf("cannot read %s", path), err)
	}

	values := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if !recognizedKeys[key] {
			continue
		}
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		values[key] = value
	}
	return values, nil
}

// SetOnly restricts loading to a single session name (legacy
// single-session mode). Call before Load; an empty name clears the
// restriction.
func (r *Registry) SetOnly(name string) {
	r.only = name
}

// replace swaps in a fresh session table wholesale, carrying runtime pause
// state over by name and reporting removed sessions through OnEvict.
func (r *Registry) replace(table map[string]*Record) {
	var evicted []string

	r.mu.Lock()
	for name, old := range r.sessions {
		if fresh, ok := table[name]; ok {
			fresh.Paused = old.Paused
		} else {
			evicted = append(evicted, name)
		}
	}
	r.sessions = table
	r.mu.Unlock()

	if r.OnEvict == nil {
		return
	}
	sort.Strings(evicted)
	for _, name := range evicted {
		r.OnEvict(name)
	}
}

// Get returns the record for a session name, or nil if not loaded.
func (r *Registry) Get(name string) *Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[name]
}

// Lookup resolves an inbound (chat, thread) pair to a session record.
//
// An exact (chat, thread) match wins. If none exists and the update carries
// a thread id, a record bound to the chat with no thread id (default
// routing) matches. Returns nil when no session claims the update.
func (r *Registry) Lookup(chatID, threadID string) *Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var fallback *Record
	for _, rec := range r.sessions {
		if rec.ChatID != chatID {
			continue
		}
		if rec.ThreadID == threadID {
			return rec
		}
		if rec.ThreadID == "" {
			fallback = rec
		}
	}
	return fallback
}

// SetPaused updates a session's pause state. Returns false if the session
// is not loaded.
func (r *Registry) SetPaused(name string, paused bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.sessions[name]
	if !ok {
		return false
	}
	rec.Paused = paused
	return true
}

// Names returns the loaded session names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of loaded sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// BotToken returns the shared bot token, or empty if no sessions are loaded.
func (r *Registry) BotToken() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.sessions {
		return rec.BotToken
	}
	return ""
}

// ResolveIdentifier resolves a user-supplied identifier that could be either
// a session name or a numeric thread id.
//
// Resolution order:
//  1. An exact session-name match wins immediately, even if the same string
//     is also some other session's thread id. This priority is a fixed,
//     tested contract.
//  2. If the identifier is numeric, the thread ids of all records are
//     scanned: exactly one match resolves to that session; zero matches is
//     a resolve.not_found error; two or more is a resolve.ambiguous error
//     naming every colliding session.
//  3. Non-numeric input that matches nothing passes through unchanged; the
//     caller decides what to do with it.
func (r *Registry) ResolveIdentifier(id string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.sessions[id]; ok {
		return id, nil
	}

	if _, err := strconv.Atoi(id); err != nil {
		return id, nil
	}

	var matches []string
	for name, rec := range r.sessions {
		if rec.ThreadID == id {
			matches = append(matches, name)
		}
	}
	sort.Strings(matches)

	switch len(matches) {
	case 0:
		return "", errors.NotFound(id)
	case 1:
		return matches[0], nil
	default:
		return "", errors.Ambiguous(id, matches)
	}
}
