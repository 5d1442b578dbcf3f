package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeFixtures creates a host config and sessions directory with the
// given session files, returning the host config path.
func writeFixtures(t *testing.T, sessions map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	sessionsDir := filepath.Join(dir, "sessions")
	if err := os.MkdirAll(sessionsDir, 0o700); err != nil {
		t.Fatal(err)
	}
	for name, content := range sessions {
		if err := os.WriteFile(filepath.Join(sessionsDir, name+".conf"), []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}

	cfgPath := filepath.Join(dir, "config.toml")
	cfg := "sessions_dir = \"" + sessionsDir + "\"\nstate_db = \"" + filepath.Join(dir, "telemux.db") + "\"\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0600); err != nil {
		t.Fatal(err)
	}
	return cfgPath
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"telemux", "--version"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout.String(), "telemux") {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestRun_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"telemux", "--help"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout.String(), "Usage:") {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestRun_UnexpectedArgument(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"telemux", "frobnicate"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stderr.String(), "unexpected argument") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestRun_UnknownFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"telemux", "--bogus"}, &stdout, &stderr); code != 1 {
		t.Fatalf("exit code = %d", code)
	}
}

func TestRun_List(t *testing.T) {
	cfgPath := writeFixtures(t, map[string]string{
		"alpha": "BOT_TOKEN=123:ABC\nCHAT_ID=-100123\nTOPIC_ID=70\n",
		"beta":  "BOT_TOKEN=123:ABC\nCHAT_ID=-100123\nTOPIC_ID=71\nTERMINAL_TARGET=work\n",
	})

	var stdout, stderr bytes.Buffer
	code := run([]string{"telemux", "--config", cfgPath, "--list"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr.String())
	}

	out := stdout.String()
	if !strings.Contains(out, "alpha") || !strings.Contains(out, "beta") {
		t.Errorf("list output missing sessions: %q", out)
	}
	if !strings.Contains(out, "topic=70") || !strings.Contains(out, "target=work") {
		t.Errorf("list output missing routing details: %q", out)
	}
}

func TestRun_ListEmpty(t *testing.T) {
	cfgPath := writeFixtures(t, nil)

	var stdout, stderr bytes.Buffer
	code := run([]string{"telemux", "--config", cfgPath, "--list"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout.String(), "No sessions configured") {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestRun_ListSingleSession(t *testing.T) {
	cfgPath := writeFixtures(t, map[string]string{
		"alpha": "BOT_TOKEN=123:ABC\nCHAT_ID=-100123\nTOPIC_ID=70\n",
		"beta":  "BOT_TOKEN=123:ABC\nCHAT_ID=-100123\nTOPIC_ID=71\n",
	})

	var stdout, stderr bytes.Buffer
	code := run([]string{"telemux", "--config", cfgPath, "--session", "alpha", "--list"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr.String())
	}
	if strings.Contains(stdout.String(), "beta") {
		t.Errorf("single-session list leaked other sessions: %q", stdout.String())
	}
}

func TestRun_ListResolvesTopicID(t *testing.T) {
	cfgPath := writeFixtures(t, map[string]string{
		"alpha": "BOT_TOKEN=123:ABC\nCHAT_ID=-100123\nTOPIC_ID=70\n",
		"beta":  "BOT_TOKEN=123:ABC\nCHAT_ID=-100123\nTOPIC_ID=71\n",
	})

	// --session accepts a topic id and resolves it to the session name.
	var stdout, stderr bytes.Buffer
	code := run([]string{"telemux", "--config", cfgPath, "--session", "70", "--list"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "alpha") {
		t.Errorf("topic id should resolve to alpha: %q", stdout.String())
	}
}

func TestRun_SessionNotConfigured(t *testing.T) {
	cfgPath := writeFixtures(t, map[string]string{
		"alpha": "BOT_TOKEN=123:ABC\nCHAT_ID=-100123\nTOPIC_ID=70\n",
	})

	var stdout, stderr bytes.Buffer
	code := run([]string{"telemux", "--config", cfgPath, "--session", "ghost", "--list"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stderr.String(), "ghost") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestRun_MissingConfigFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"telemux", "--config", "/nonexistent/config.toml", "--list"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stderr.String(), "not found") {
		t.Errorf("stderr = %q", stderr.String())
	}
}
