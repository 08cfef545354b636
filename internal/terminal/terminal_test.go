package terminal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/HyphaGroup/crucible/internal/audit"
)

// stubTmux writes a shell script standing in for the tmux binary and
// returns a manager pointed at it.
func stubTmux(t *testing.T, script string) *Manager {
	t.Helper()
	dir := t.TempDir()
	bin := filepath.Join(dir, "tmux")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	m := NewManager(audit.New(dir), "")
	m.bin = bin
	m.sendWait = 0
	return m
}

const liveServer = `case "$1" in
list-sessions) printf '$0\n$3\n' ;;
new-session) printf '$3\n' ;;
capture-pane) printf 'prompt$ whoami\nubuntu\n\n' ;;
send-keys|set-option|kill-session) : ;;
*) echo "unknown command: $1" >&2; exit 1 ;;
esac`

func TestListSessionsStripsPrefix(t *testing.T) {
	m := stubTmux(t, liveServer)

	ids, err := m.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != "0" || ids[1] != "3" {
		t.Errorf("ids = %v, want [0 3]", ids)
	}
}

func TestListSessionsNoServer(t *testing.T) {
	m := stubTmux(t, `echo "no server running on /tmp/tmux-0/default" >&2; exit 1`)

	ids, err := m.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("ids = %v, want empty", ids)
	}
}

func TestListSessionsOtherError(t *testing.T) {
	m := stubTmux(t, `echo "server exited unexpectedly" >&2; exit 1`)

	if _, err := m.ListSessions(); err == nil {
		t.Error("ListSessions() = nil error, want tmux failure")
	}
}

func TestNewSession(t *testing.T) {
	m := stubTmux(t, liveServer)

	id, err := m.NewSession()
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if id != 3 {
		t.Errorf("id = %d, want 3", id)
	}

	// The event lands in the step log
	data, err := os.ReadFile(m.audit.Path())
	if err != nil {
		t.Fatalf("read step log: %v", err)
	}
	if !strings.Contains(string(data), `"new_session"`) {
		t.Errorf("step log missing new_session event: %s", data)
	}
}

func TestSendKeysCapturesPane(t *testing.T) {
	m := stubTmux(t, liveServer)

	out, err := m.SendKeys(0, "whoami", true)
	if err != nil {
		t.Fatalf("SendKeys() error = %v", err)
	}
	if out != "prompt$ whoami\nubuntu" {
		t.Errorf("SendKeys() = %q, want trimmed pane contents", out)
	}
}

func TestSendKeysUnknownSession(t *testing.T) {
	m := stubTmux(t, liveServer)

	_, err := m.SendKeys(7, "whoami", true)
	if err == nil {
		t.Fatal("SendKeys(unknown) = nil error")
	}
	if !strings.Contains(err.Error(), "no session found with id: 7") {
		t.Errorf("error = %v", err)
	}
	if !strings.Contains(err.Error(), "0, 3") {
		t.Errorf("error does not name live ids: %v", err)
	}
}

func TestGetOutput(t *testing.T) {
	m := stubTmux(t, liveServer)

	out, err := m.GetOutput(0, "-", "")
	if err != nil {
		t.Fatalf("GetOutput() error = %v", err)
	}
	if out != "prompt$ whoami\nubuntu" {
		t.Errorf("GetOutput() = %q", out)
	}
}

func TestKillSessionUnknown(t *testing.T) {
	m := stubTmux(t, liveServer)

	if err := m.KillSession(9); err == nil {
		t.Error("KillSession(unknown) = nil error")
	}
}

func TestKillSession(t *testing.T) {
	m := stubTmux(t, liveServer)

	if err := m.KillSession(3); err != nil {
		t.Errorf("KillSession() error = %v", err)
	}
}
