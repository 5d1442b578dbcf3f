package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/telemux/telemux/internal/attachments"
	"github.com/telemux/telemux/internal/command"
	"github.com/telemux/telemux/internal/config"
	"github.com/telemux/telemux/internal/errors"
	"github.com/telemux/telemux/internal/notify"
	"github.com/telemux/telemux/internal/registry"
	"github.com/telemux/telemux/internal/router"
	"github.com/telemux/telemux/internal/state"
	"github.com/telemux/telemux/internal/telegram"
	"github.com/telemux/telemux/internal/textutil"
	"github.com/telemux/telemux/internal/tmux"
)

const (
	// maxPollFailures is the consecutive poll failure budget. Exhausting
	// it ends the process rather than masking a broken credential behind
	// an infinite retry loop.
	maxPollFailures = 3

	// attachmentSweepInterval and attachmentMaxAge govern scratch-file
	// cleanup.
	attachmentSweepInterval = time.Hour
	attachmentMaxAge        = 24 * time.Hour
)

// runList prints the configured sessions with their routing and whether
// their tmux target is currently running.
func runList(configPath, session string, stdout, stderr io.Writer) int {
	_, reg, code := loadConfigs(configPath, session, stderr)
	if code != 0 {
		return code
	}

	if reg.Count() == 0 {
		fmt.Fprintln(stdout, "No sessions configured.")
		return 0
	}

	manager := tmux.NewManager()
	for _, name := range reg.Names() {
		rec := reg.Get(name)
		status := "not running"
		if running, err := manager.IsRunning(rec.Target); err == nil && running {
			status = "running"
		}
		topic := rec.ThreadID
		if topic == "" {
			topic = "-"
		}
		fmt.Fprintf(stdout, "%s\tchat=%s\ttopic=%s\ttarget=%s (%s)\n",
			rec.Name, rec.ChatID, topic, rec.Target, status)
	}
	return 0
}

// loadConfigs loads the host config and the session registry, reporting
// per-session config errors without failing the whole startup.
func loadConfigs(configPath, session string, stderr io.Writer) (*config.Config, *registry.Registry, int) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "telemux: %s\n", errors.GetMessage(err))
		return nil, nil, 1
	}
	cfg.ApplyDefaults()

	reg := registry.New(cfg.SessionsDir, time.Duration(cfg.DebounceSeconds)*time.Second)

	if session != "" {
		// The identifier may be a session name or a topic id; resolve it
		// against the full table before restricting the load. Load errors
		// are reported by the filtered pass below.
		reg.Load()
		resolved, err := reg.ResolveIdentifier(session)
		if err != nil {
			fmt.Fprintf(stderr, "telemux: %s\n", errors.GetMessage(err))
			return nil, nil, 1
		}
		session = resolved
		reg.SetOnly(session)
	}

	for _, loadErr := range reg.Load() {
		fmt.Fprintf(stderr, "telemux: %v\n", loadErr)
	}

	if session != "" && reg.Get(session) == nil {
		fmt.Fprintf(stderr, "telemux: session %q is not configured in %s\n", session, cfg.SessionsDir)
		return nil, nil, 1
	}
	return cfg, reg, 0
}

// runListen wires the components and runs the poll loop until a shutdown
// signal or retry exhaustion.
//
// Exit codes: 0 on clean shutdown, 1 on config problems, 2 on transport
// failure after the retry budget.
func runListen(configPath, session string, stdout, stderr io.Writer) int {
	cfg, reg, code := loadConfigs(configPath, session, stderr)
	if code != 0 {
		return code
	}
	if reg.Count() == 0 {
		fmt.Fprintf(stderr, "telemux: no sessions configured in %s\n", cfg.SessionsDir)
		return 1
	}

	logW := io.Writer(stderr)
	if cfg.LogFile != "" {
		if f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600); err == nil {
			defer f.Close()
			logW = io.MultiWriter(stderr, f)
		} else {
			fmt.Fprintf(stderr, "telemux: cannot open log file %s: %v\n", cfg.LogFile, err)
		}
	}
	logger := log.New(logW, "telemux: ", log.LstdFlags)

	if err := os.MkdirAll(filepath.Dir(cfg.StateDB), 0o700); err != nil {
		fmt.Fprintf(stderr, "telemux: cannot create state directory: %v\n", err)
		return 1
	}
	store, err := state.Open(cfg.StateDB)
	if err != nil {
		fmt.Fprintf(stderr, "telemux: %s\n", errors.GetMessage(err))
		return 1
	}
	defer store.Close()

	var clientOpts []telegram.Option
	if cfg.APIBaseURL != "" {
		clientOpts = append(clientOpts, telegram.WithBaseURL(cfg.APIBaseURL))
	}
	client := telegram.NewClient(reg.BotToken(), clientOpts...)
	manager := tmux.NewManager()
	debouncer := notify.NewDebouncer()
	defer debouncer.Stop()

	pipeline := attachments.NewPipeline(client, store, cfg.ScratchDir, cfg.MaxFileSizeBytes())
	commands := command.NewHandler(manager, client, store, reg)
	disp := router.New(reg, client, manager, commands, pipeline, store, debouncer,
		log.New(logW, "router: ", log.LstdFlags))

	// A reload that drops a session must also drop its pending
	// notification timer and scratch files.
	reg.OnEvict = disp.ReleaseSession

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Long polling needs the webhook slot free; a registered webhook is
	// removed once, and a recurring conflict is fatal.
	if err := client.EnsurePolling(ctx); err != nil {
		fmt.Fprintf(stderr, "telemux: %s\n", errors.GetMessage(err))
		return 2
	}

	logger.Printf("listening: %d session(s), token %s", reg.Count(),
		textutil.MaskSensitive(reg.BotToken(), 6, 4))

	code = pollLoop(ctx, cfg, reg, client, disp, store, logger)
	logger.Printf("shutdown (exit %d)", code)
	return code
}

// pollLoop is the single suspension point of the process: it long-polls
// for updates, dispatches each batch sequentially, and interleaves the
// registry reload and attachment sweep tickers between polls.
func pollLoop(ctx context.Context, cfg *config.Config, reg *registry.Registry, client *telegram.Client, disp *router.Router, store *state.Store, logger *log.Logger) int {
	reload := time.NewTicker(time.Duration(cfg.ReloadIntervalSeconds) * time.Second)
	defer reload.Stop()
	sweep := time.NewTicker(attachmentSweepInterval)
	defer sweep.Stop()

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0
	failures := 0
	var offset int64

	for {
		select {
		case <-ctx.Done():
			return 0
		case <-reload.C:
			for _, err := range reg.Load() {
				logger.Printf("reload: %v", err)
			}
		case <-sweep.C:
			paths, err := store.SweepAttachments(attachmentMaxAge)
			if err != nil {
				logger.Printf("attachment sweep: %v", err)
			}
			attachments.Remove(paths)
		default:
		}

		updates, err := client.GetUpdates(ctx, offset, cfg.PollTimeoutSeconds)
		if err != nil {
			if ctx.Err() != nil {
				return 0
			}
			failures++
			logger.Printf("poll failed (%d/%d): %v", failures, maxPollFailures, err)
			if failures >= maxPollFailures {
				announceFailure(reg, client, err, logger)
				return 2
			}
			wait := bo.NextBackOff()
			select {
			case <-ctx.Done():
				return 0
			case <-time.After(wait):
			}
			continue
		}
		failures = 0
		bo.Reset()

		for _, u := range updates {
			if u.UpdateID >= offset {
				// Advancing the offset is the implicit acknowledgement:
				// the next poll confirms everything before it.
				offset = u.UpdateID + 1
			}
			// One bad update never stops the batch.
			if err := disp.Dispatch(ctx, u); err != nil {
				logger.Printf("dispatch update %d: %v", u.UpdateID, err)
			}
		}
	}
}

// announceFailure sends one final message to every configured routing
// before the process gives up, so the chats are not left wondering.
func announceFailure(reg *registry.Registry, client *telegram.Client, cause error, logger *log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	text := "telemux is shutting down: transport failed repeatedly (" + errors.GetMessage(cause) + ")"
	for _, name := range reg.Names() {
		rec := reg.Get(name)
		if rec == nil {
			continue
		}
		if err := client.SendMessage(ctx, rec.ChatID, rec.ThreadID, text); err != nil {
			logger.Printf("failure notice to %s: %v", name, err)
		}
	}
}
