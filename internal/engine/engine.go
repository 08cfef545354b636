// Package engine runs code against kernel sessions and records the results.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HyphaGroup/crucible/internal/audit"
	"github.com/HyphaGroup/crucible/internal/history"
	"github.com/HyphaGroup/crucible/internal/kernel"
	"github.com/HyphaGroup/crucible/internal/logger"
	"github.com/HyphaGroup/crucible/internal/metrics"
	"github.com/HyphaGroup/crucible/internal/output"
	"github.com/HyphaGroup/crucible/internal/session"
)

// Engine executes code units against named sessions. One execution holds
// the session lock for its whole duration, so calls against the same
// session serialize while different sessions run concurrently.
type Engine struct {
	sessions *session.Manager
	audit    *audit.Logger
	history  *history.Store // optional

	defaultTimeout time.Duration
	pollSlice      time.Duration
	interruptWait  time.Duration
	drainGrace     time.Duration
}

// New creates an engine. historyStore may be nil.
func New(sessions *session.Manager, auditLogger *audit.Logger, historyStore *history.Store, defaultTimeout time.Duration) *Engine {
	if defaultTimeout <= 0 {
		defaultTimeout = 10 * time.Second
	}
	return &Engine{
		sessions:       sessions,
		audit:          auditLogger,
		history:        historyStore,
		defaultTimeout: defaultTimeout,
		pollSlice:      100 * time.Millisecond,
		interruptWait:  time.Second,
		drainGrace:     2 * time.Second,
	}
}

// Sessions returns the underlying session registry.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// Execute runs one unit of code in the named session, creating the session
// on first use. A timeout interrupts the kernel but never destroys the
// session; its state stays available to later calls. The execution counter
// advances exactly once per call regardless of outcome.
func (e *Engine) Execute(ctx context.Context, sessionName, code string, timeoutSeconds int) ([]output.Result, error) {
	timeout := e.defaultTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	timeoutLabel := int(timeout / time.Second)

	sess, err := e.sessions.Ensure(ctx, sessionName)
	if err != nil {
		return nil, err
	}

	sess.Lock()
	defer sess.Unlock()

	cell := sess.Document.AppendCell(code, sess.ExecutionCount)

	// Pending persist: the notebook shows the cell before results exist,
	// so a reader can see what a long-running session is doing.
	if err := sess.Document.Save(sess.Filepath); err != nil {
		logger.Error("Failed to persist pending notebook for %q: %v", sessionName, err)
	}

	start := time.Now()
	outputs, timedOut := e.run(sess, code, timeout, timeoutLabel)
	elapsed := time.Since(start)

	cell.Outputs = outputs
	if err := sess.Document.Save(sess.Filepath); err != nil {
		logger.Error("Failed to persist notebook for %q: %v", sessionName, err)
	}

	sess.ExecutionCount++

	e.record(sessionName, code, outputs, elapsed, timedOut)

	return output.Project(outputs), nil
}

// run submits the code and drives the poll loop until completion, timeout,
// or adapter fault.
func (e *Engine) run(sess *session.Session, code string, timeout time.Duration, timeoutLabel int) ([]output.Output, bool) {
	outputs := []output.Output{}

	msgID, err := sess.Transport.Submit(code)
	if err != nil {
		outputs = append(outputs, output.SystemNotice(fmt.Sprintf("Failed to execute code or retrieve output: %v", err)))
		return outputs, false
	}

	deadline := time.Now().Add(timeout)
	for {
		if time.Now().After(deadline) {
			outputs = append(outputs, output.SystemNotice(
				fmt.Sprintf("Execution timeout after %d seconds. Attempting to interrupt...", timeoutLabel)))
			outputs = append(outputs, e.interrupt(sess, msgID)...)
			return outputs, true
		}

		msg, err := sess.Transport.Poll(e.pollSlice)
		if err != nil {
			if errors.Is(err, kernel.ErrPollTimeout) {
				continue
			}
			outputs = append(outputs, output.SystemNotice(
				fmt.Sprintf("Failed to execute code or retrieve output: %v", err)))
			return outputs, false
		}

		// Discard leftovers from earlier submissions
		if msg.ParentID != msgID {
			continue
		}

		if msg.Type == "status" && msg.ExecutionState == "idle" {
			return outputs, false
		}

		if out, ok := output.Classify(msg, sess.ExecutionCount); ok {
			outputs = append(outputs, out)
		}
	}
}

// interrupt cuts a timed-out execution short: deliver the interrupt, give
// the kernel a moment to settle, then drain stale messages so the next
// call starts clean. The kernel itself stays up.
func (e *Engine) interrupt(sess *session.Session, msgID string) []output.Output {
	if err := sess.Transport.Interrupt(); err != nil {
		return []output.Output{output.SystemNotice(fmt.Sprintf("Failed to interrupt kernel: %v", err))}
	}

	time.Sleep(e.interruptWait)

	drainDeadline := time.Now().Add(e.drainGrace)
	for time.Now().Before(drainDeadline) {
		msg, err := sess.Transport.Poll(e.pollSlice)
		if err != nil {
			break
		}
		if msg.ParentID != msgID {
			continue
		}
		if msg.Type == "status" && msg.ExecutionState == "idle" {
			break
		}
	}

	return []output.Output{output.SystemNotice("Kernel interrupted. Session state preserved.")}
}

// record emits the audit entry, history row, and metrics for one
// execution. All best-effort.
func (e *Engine) record(sessionName, code string, outputs []output.Output, elapsed time.Duration, timedOut bool) {
	e.audit.LogExecution(sessionName, code, outputs, elapsed)

	status := "ok"
	switch {
	case timedOut:
		status = "timeout"
	case output.HasError(outputs):
		status = "error"
	}
	metrics.RecordExecution(status, elapsed.Seconds())

	if e.history != nil {
		rec := &history.Record{
			SessionName: sessionName,
			CodeSummary: audit.CodeSummary(code),
			CodeLength:  len(code),
			OutputCount: len(outputs),
			HasError:    output.HasError(outputs),
			TimedOut:    timedOut,
			DurationMs:  elapsed.Milliseconds(),
		}
		if err := e.history.Record(rec); err != nil {
			logger.Error("Failed to record execution history: %v", err)
		}
	}
}
