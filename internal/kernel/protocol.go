// Package kernel manages interpreter worker processes.
//
// The worker speaks newline-delimited JSON over stdin/stdout. After launch
// it announces itself with a single ready frame, then accepts execute
// requests and publishes asynchronous messages tagged with the id of the
// request that produced them. A status frame with execution_state "idle"
// marks the end of one execution.
package kernel

import "errors"

var (
	// ErrStartTimeout is returned when the worker does not announce
	// readiness within the startup window.
	ErrStartTimeout = errors.New("kernel did not start in time")

	// ErrPollTimeout is returned by Poll when no message arrives within
	// the given wait.
	ErrPollTimeout = errors.New("no kernel message available")

	// ErrClosed is returned when the worker process has gone away.
	ErrClosed = errors.New("kernel transport closed")
)

// Message is one frame read from the worker's stdout.
type Message struct {
	Type           string         `json:"type"`
	ParentID       string         `json:"parent_id,omitempty"`
	ExecutionState string         `json:"execution_state,omitempty"`
	Name           string         `json:"name,omitempty"`
	Text           string         `json:"text,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	Ename          string         `json:"ename,omitempty"`
	Evalue         string         `json:"evalue,omitempty"`
	Traceback      []string       `json:"traceback,omitempty"`
}

// executeRequest is the frame written to the worker's stdin for one
// execution.
type executeRequest struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Code string `json:"code"`
}
