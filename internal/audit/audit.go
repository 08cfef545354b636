// Package audit appends step records to the shared steps.jsonl log.
//
// Logging is best-effort: a full disk or missing directory never fails the
// execution that produced the entry. Setting DISABLE_STEP_LOG suppresses
// all writes.
package audit

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/HyphaGroup/crucible/internal/output"
)

const (
	logFileName      = "steps.jsonl"
	maxSummaryLength = 200
)

// executionEntry is one code_execution record.
type executionEntry struct {
	TS                   string  `json:"ts"`
	Tag                  string  `json:"tag"`
	Event                string  `json:"event"`
	SessionName          string  `json:"session_name"`
	Action               string  `json:"action"`
	Observation          string  `json:"observation"`
	ExecutionTimeSeconds float64 `json:"execution_time_seconds"`
	CodeLength           int     `json:"code_length"`
	HasError             bool    `json:"has_error"`
}

// terminalEntry is one terminal record. Every entry carries ts, action, and
// observation even when empty.
type terminalEntry struct {
	TS          string `json:"ts"`
	Tag         string `json:"tag"`
	Event       string `json:"event"`
	SessionID   string `json:"session_id"`
	Action      string `json:"action"`
	Observation string `json:"observation"`
}

// Logger appends JSONL entries to the step log.
type Logger struct {
	path string
	mu   sync.Mutex
}

// New creates a logger writing to logDir/steps.jsonl.
func New(logDir string) *Logger {
	return &Logger{path: filepath.Join(logDir, logFileName)}
}

// Path returns the step log location.
func (l *Logger) Path() string {
	return l.path
}

// LogExecution records one code execution.
func (l *Logger) LogExecution(sessionName, code string, outputs []output.Output, elapsed time.Duration) {
	if disabled() {
		return
	}

	l.append(executionEntry{
		TS:                   timestamp(),
		Tag:                  "code_execution",
		Event:                "execute_code",
		SessionName:          sessionName,
		Action:               CodeSummary(code),
		Observation:          output.Observation(outputs),
		ExecutionTimeSeconds: math.Round(elapsed.Seconds()*100) / 100,
		CodeLength:           len(code),
		HasError:             output.HasError(outputs),
	})
}

// LogTerminalEvent records one terminal session event.
func (l *Logger) LogTerminalEvent(event string, sessionID int, action, observation string) {
	if disabled() {
		return
	}

	l.append(terminalEntry{
		TS:          timestamp(),
		Tag:         "terminal",
		Event:       event,
		SessionID:   strconv.Itoa(sessionID),
		Action:      action,
		Observation: observation,
	})
}

// append marshals and appends one entry, swallowing every failure.
func (l *Logger) append(entry any) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	_, _ = f.Write(data)
	_ = f.Close()
}

// CodeSummary extracts a brief summary of the code for logging: the first
// meaningful line, skipping comments and imports within the first five
// lines, capped at 200 characters.
func CodeSummary(code string) string {
	lines := strings.Split(strings.TrimSpace(code), "\n")
	if len(lines) == 1 {
		return truncate(lines[0], maxSummaryLength)
	}

	limit := len(lines)
	if limit > 5 {
		limit = 5
	}
	for _, line := range lines[:limit] {
		stripped := strings.TrimSpace(line)
		if stripped != "" && !strings.HasPrefix(stripped, "#") && !strings.HasPrefix(stripped, "import") {
			return truncate(stripped, maxSummaryLength)
		}
	}
	return truncate(lines[0], maxSummaryLength)
}

func disabled() bool {
	return os.Getenv("DISABLE_STEP_LOG") != ""
}

func timestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000000Z")
}

// truncate caps s at limit bytes, backing up to a rune boundary so the
// summary stays valid UTF-8.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

