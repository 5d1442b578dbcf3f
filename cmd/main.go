// Command telemux runs the listener that bridges local tmux sessions to
// Telegram chats: one long-poll loop per bot token, routing each inbound
// message to its session by chat and topic.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags.
// Example: go build -ldflags="-X main.Version=v0.3.0" ./cmd
var Version = "dev"

const usage = `telemux - bridge tmux sessions to Telegram

Usage:
  telemux [options]

Options:
  --config PATH    host config file (default ~/.telemux/config.toml)
  --session NAME   run a single session instead of scanning all configs
  --list           print configured sessions and exit
  --version        print version and exit

Sessions are defined by <name>.conf files in the sessions directory
(default ~/.telemux/sessions), one file per tmux session to bridge.
`

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("telemux", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }

	configPath := fs.String("config", "", "host config file path")
	session := fs.String("session", "", "single-session mode")
	list := fs.Bool("list", false, "print configured sessions and exit")
	version := fs.Bool("version", false, "print version and exit")
	help := fs.Bool("help", false, "print usage and exit")

	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	if len(fs.Args()) > 0 {
		fmt.Fprintf(stderr, "unexpected argument: %s\n", fs.Args()[0])
		fmt.Fprint(stderr, usage)
		return 1
	}

	if *help {
		fmt.Fprint(stdout, usage)
		return 0
	}
	if *version {
		fmt.Fprintf(stdout, "telemux %s\n", Version)
		return 0
	}
	if *list {
		return runList(*configPath, *session, stdout, stderr)
	}
	return runListen(*configPath, *session, stdout, stderr)
}
