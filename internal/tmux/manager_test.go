package tmux

import (
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/telemux/telemux/internal/errors"
)

// mockExecCommand returns an execCommand that runs the test binary as a
// helper process emitting the given output and exit code. Invocations are
// recorded into calls so tests can assert on the exact tmux argv.
func mockExecCommand(output string, exitCode int, calls *[][]string) func(string, ...string) *exec.Cmd {
	return func(name string, args ...string) *exec.Cmd {
		if calls != nil {
			*calls = append(*calls, append([]string{name}, args...))
		}
		cs := []string{"-test.run=TestHelperProcess", "--", name}
		cs = append(cs, args...)
		cmd := exec.Command(os.Args[0], cs...)
		cmd.Env = []string{
			"GO_WANT_HELPER_PROCESS=1",
			"MOCK_OUTPUT=" + output,
			"MOCK_EXIT_CODE=" + string(rune('0'+exitCode)),
		}
		return cmd
	}
}

func mockExecCommandNotFound() func(string, ...string) *exec.Cmd {
	return func(name string, args ...string) *exec.Cmd {
		return exec.Command("/nonexistent/path/to/binary/that/does/not/exist")
	}
}

// TestHelperProcess is not a real test. It is the helper process run by
// mockExecCommand to stand in for tmux.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	_, _ = os.Stdout.WriteString(os.Getenv("MOCK_OUTPUT"))
	if os.Getenv("MOCK_EXIT_CODE") == "1" {
		os.Exit(1)
	}
	os.Exit(0)
}

func TestIsRunning(t *testing.T) {
	m := &Manager{execCommand: mockExecCommand("", 0, nil)}
	running, err := m.IsRunning("main")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !running {
		t.Error("expected running=true")
	}
}

func TestIsRunning_SessionMissing(t *testing.T) {
	m := &Manager{execCommand: mockExecCommand("can't find session: main", 1, nil)}
	running, err := m.IsRunning("main")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if running {
		t.Error("expected running=false")
	}
}

func TestIsRunning_EmptyTarget(t *testing.T) {
	m := &Manager{execCommand: mockExecCommandNotFound()}
	running, err := m.IsRunning("")
	if err != nil || running {
		t.Errorf("empty target should be not-running without error, got (%v, %v)", running, err)
	}
}

func TestIsRunning_TmuxMissing(t *testing.T) {
	m := &Manager{execCommand: mockExecCommandNotFound()}
	_, err := m.IsRunning("main")
	if !errors.IsCode(err, errors.CodeTmuxNotInstalled) {
		t.Errorf("expected session.tmux_missing, got %v", err)
	}
}

func TestInject_LiteralThenEnter(t *testing.T) {
	var calls [][]string
	m := &Manager{execCommand: mockExecCommand("", 0, &calls)}

	if err := m.Inject("main", "run the tests"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(calls) != 2 {
		t.Fatalf("expected 2 tmux invocations, got %d", len(calls))
	}

	first := strings.Join(calls[0], " ")
	if first != "tmux send-keys -t main -l -- run the tests" {
		t.Errorf("literal send argv = %q", first)
	}
	second := strings.Join(calls[1], " ")
	if second != "tmux send-keys -t main Enter" {
		t.Errorf("enter argv = %q", second)
	}
}

func TestInject_DashPrefixedTextStaysLiteral(t *testing.T) {
	// Text starting with a dash must land after the -- terminator so tmux
	// never parses it as a flag.
	var calls [][]string
	m := &Manager{execCommand: mockExecCommand("", 0, &calls)}

	if err := m.Inject("main", "-rf /tmp"); err != nil {
		t.Fatal(err)
	}

	argv := calls[0]
	sep := -1
	for i, a := range argv {
		if a == "--" {
			sep = i
			break
		}
	}
	if sep == -1 {
		t.Fatal("argv has no -- terminator")
	}
	if argv[sep+1] != "-rf /tmp" {
		t.Errorf("text not passed literally after --: %v", argv)
	}
}

func TestInject_SessionMissing(t *testing.T) {
	m := &Manager{execCommand: mockExecCommand("can't find session: main", 1, nil)}
	err := m.Inject("main", "hello")
	if !errors.IsCode(err, errors.CodeCommandSessionNotRunning) {
		t.Errorf("expected command.session_not_running, got %v", err)
	}
}

func TestInject_TmuxMissing(t *testing.T) {
	m := &Manager{execCommand: mockExecCommandNotFound()}
	err := m.Inject("main", "hello")
	if !errors.IsCode(err, errors.CodeTmuxNotInstalled) {
		t.Errorf("expected session.tmux_missing, got %v", err)
	}
}

func TestCapture(t *testing.T) {
	var calls [][]string
	m := &Manager{execCommand: mockExecCommand("line one\nline two\n", 0, &calls)}

	out, err := m.Capture("main", 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "line one\nline two\n" {
		t.Errorf("capture output = %q", out)
	}

	argv := strings.Join(calls[0], " ")
	if argv != "tmux capture-pane -t main -p -S -50" {
		t.Errorf("capture argv = %q", argv)
	}
}

func TestCapture_DefaultLines(t *testing.T) {
	var calls [][]string
	m := &Manager{execCommand: mockExecCommand("", 0, &calls)}

	if _, err := m.Capture("main", 0); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(strings.Join(calls[0], " "), "-S -100") {
		t.Errorf("default depth not applied: %v", calls[0])
	}
}

func TestCapture_SessionMissing(t *testing.T) {
	m := &Manager{execCommand: mockExecCommand("can't find session: main", 1, nil)}
	_, err := m.Capture("main", 50)
	if !errors.IsCode(err, errors.CodeCommandSessionNotRunning) {
		t.Errorf("expected command.session_not_running, got %v", err)
	}
}

func TestListTargets(t *testing.T) {
	m := &Manager{execCommand: mockExecCommand("main\ndev\n", 0, nil)}

	targets, err := m.ListTargets()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(targets) != 2 || targets[0] != "main" || targets[1] != "dev" {
		t.Errorf("targets = %v", targets)
	}
}

func TestListTargets_NoServer(t *testing.T) {
	m := &Manager{execCommand: mockExecCommand("no server running on /tmp/tmux-501/default", 1, nil)}

	targets, err := m.ListTargets()
	if err != nil {
		t.Fatalf("no server should not be an error: %v", err)
	}
	if len(targets) != 0 {
		t.Errorf("targets = %v", targets)
	}
}
