// Package terminal controls tmux sessions for interactive shell work.
//
// Unlike kernel sessions these are thin pass-throughs: tmux owns the
// process state, this package only shells out to the tmux binary and
// records events in the shared step log.
package terminal

import (
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/HyphaGroup/crucible/internal/audit"
)

// Manager wraps a local tmux server.
type Manager struct {
	bin      string
	startDir string
	audit    *audit.Logger
	sendWait time.Duration
}

// NewManager creates a tmux manager. startDir is the working directory for
// new sessions; empty uses tmux's default.
func NewManager(auditLogger *audit.Logger, startDir string) *Manager {
	return &Manager{
		bin:      "tmux",
		startDir: startDir,
		audit:    auditLogger,
		sendWait: time.Second,
	}
}

// ListSessions returns the numeric ids of live tmux sessions. A missing
// tmux server means no sessions.
func (m *Manager) ListSessions() ([]string, error) {
	out, err := m.run("list-sessions", "-F", "#{session_id}")
	if err != nil {
		if strings.Contains(err.Error(), "no server running") {
			return []string{}, nil
		}
		return nil, err
	}

	ids := []string{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		ids = append(ids, strings.TrimPrefix(line, "$"))
	}
	return ids, nil
}

// NewSession opens a detached tmux session and returns its id.
func (m *Manager) NewSession() (int, error) {
	args := []string{"new-session", "-d", "-P", "-F", "#{session_id}"}
	if m.startDir != "" {
		args = append(args, "-c", m.startDir)
	}
	out, err := m.run(args...)
	if err != nil {
		return 0, err
	}

	id, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(out), "$"))
	if err != nil {
		return 0, fmt.Errorf("unexpected tmux session id %q: %w", out, err)
	}
	_, _ = m.run("set-option", "-t", m.target(id), "status", "off")

	m.audit.LogTerminalEvent("new_session", id,
		fmt.Sprintf("new_session(start_directory=%s)", m.startDir),
		fmt.Sprintf("created session %d", id))
	return id, nil
}

// KillSession destroys a tmux session.
func (m *Manager) KillSession(id int) error {
	if err := m.checkSession(id); err != nil {
		return err
	}
	if _, err := m.run("kill-session", "-t", m.target(id)); err != nil {
		return err
	}
	m.audit.LogTerminalEvent("kill_session", id,
		fmt.Sprintf("kill_session(id=%d)", id), "session killed")
	return nil
}

// SendKeys types keys into a session's active pane. When enter is set an
// Enter keypress follows. Returns the pane contents after a short wait;
// long-running commands need a follow-up GetOutput.
func (m *Manager) SendKeys(id int, keys string, enter bool) (string, error) {
	if err := m.checkSession(id); err != nil {
		return "", err
	}

	args := []string{"send-keys", "-t", m.target(id), keys}
	if enter {
		args = append(args, "Enter")
	}
	if _, err := m.run(args...); err != nil {
		return "", err
	}

	time.Sleep(m.sendWait)
	out, err := m.capture(id, "", "")
	if err != nil {
		return "", err
	}

	action := keys
	if !enter {
		action = keys + " (no-enter)"
	}
	m.audit.LogTerminalEvent("send_keys", id, action, out)
	return out, nil
}

// GetOutput captures pane contents. start and end follow tmux capture-pane
// line addressing; empty means the visible pane.
func (m *Manager) GetOutput(id int, start, end string) (string, error) {
	if err := m.checkSession(id); err != nil {
		return "", err
	}

	out, err := m.capture(id, start, end)
	if err != nil {
		return "", err
	}
	m.audit.LogTerminalEvent("get_output", id,
		fmt.Sprintf("get_output(start=%q, end=%q)", start, end), out)
	return out, nil
}

func (m *Manager) capture(id int, start, end string) (string, error) {
	args := []string{"capture-pane", "-p", "-t", m.target(id)}
	if start != "" {
		args = append(args, "-S", start)
	}
	if end != "" {
		args = append(args, "-E", end)
	}
	out, err := m.run(args...)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(out, "\n"), nil
}

// checkSession verifies the id refers to a live session, returning an
// error that names the live ids otherwise.
func (m *Manager) checkSession(id int) error {
	ids, err := m.ListSessions()
	if err != nil {
		return err
	}
	target := strconv.Itoa(id)
	for _, sid := range ids {
		if sid == target {
			return nil
		}
	}
	return fmt.Errorf("no session found with id: %d. Here are session ids: %s", id, strings.Join(ids, ", "))
}

func (m *Manager) target(id int) string {
	return "$" + strconv.Itoa(id)
}

func (m *Manager) run(args ...string) (string, error) {
	cmd := exec.Command(m.bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("tmux %s: %s", args[0], msg)
	}
	return stdout.String(), nil
}
