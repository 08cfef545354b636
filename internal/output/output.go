// Package output classifies kernel messages into the closed set of
// execution outputs and renders them for notebooks, tool results, and the
// step log.
package output

import (
	"github.com/HyphaGroup/crucible/internal/kernel"
)

// Output kinds.
const (
	TypeStream        = "stream"
	TypeExecuteResult = "execute_result"
	TypeDisplayData   = "display_data"
	TypeError         = "error"
)

// Output is one classified execution output in notebook shape.
type Output struct {
	Type           string         `json:"output_type"`
	Name           string         `json:"name,omitempty"`
	Text           string         `json:"text,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	ExecutionCount int            `json:"execution_count,omitempty"`
	Ename          string         `json:"ename,omitempty"`
	Evalue         string         `json:"evalue,omitempty"`
	Traceback      []string       `json:"traceback,omitempty"`
}

// Stream builds a stream output.
func Stream(name, text string) Output {
	return Output{Type: TypeStream, Name: name, Text: text}
}

// ExecuteResult builds an execute_result output.
func ExecuteResult(data map[string]any, executionCount int) Output {
	return Output{Type: TypeExecuteResult, Data: data, ExecutionCount: executionCount}
}

// DisplayData builds a display_data output.
func DisplayData(data map[string]any) Output {
	return Output{Type: TypeDisplayData, Data: data}
}

// Error builds an error output.
func Error(ename, evalue string, traceback []string) Output {
	return Output{Type: TypeError, Ename: ename, Evalue: evalue, Traceback: traceback}
}

// SystemNotice builds a display_data output carrying an engine-generated
// message, marked so readers can tell it apart from worker output.
func SystemNotice(text string) Output {
	return DisplayData(map[string]any{"text/plain": "[SYSTEM] " + text})
}

// Classify maps a kernel message to an output. Returns false for message
// kinds outside the closed set, which are dropped.
func Classify(msg *kernel.Message, executionCount int) (Output, bool) {
	switch msg.Type {
	case TypeStream:
		name := msg.Name
		if name == "" {
			name = "stdout"
		}
		return Stream(name, msg.Text), true
	case TypeExecuteResult:
		return ExecuteResult(msg.Data, executionCount), true
	case TypeDisplayData:
		return DisplayData(msg.Data), true
	case TypeError:
		return Error(msg.Ename, msg.Evalue, msg.Traceback), true
	default:
		return Output{}, false
	}
}

// Result is the external projection of an Output returned from the tool
// surface. Same fields, but tagged with "type" instead of the notebook's
// "output_type".
type Result struct {
	Type           string         `json:"type"`
	Name           string         `json:"name,omitempty"`
	Text           string         `json:"text,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	ExecutionCount int            `json:"execution_count,omitempty"`
	Ename          string         `json:"ename,omitempty"`
	Evalue         string         `json:"evalue,omitempty"`
	Traceback      []string       `json:"traceback,omitempty"`
}

// Project converts outputs to their external shape.
func Project(outputs []Output) []Result {
	results := make([]Result, 0, len(outputs))
	for _, out := range outputs {
		switch out.Type {
		case TypeStream:
			results = append(results, Result{Type: TypeStream, Name: out.Name, Text: out.Text})
		case TypeExecuteResult:
			results = append(results, Result{Type: TypeExecuteResult, Data: out.Data, ExecutionCount: out.ExecutionCount})
		case TypeDisplayData:
			results = append(results, Result{Type: TypeDisplayData, Data: out.Data})
		case TypeError:
			results = append(results, Result{Type: TypeError, Ename: out.Ename, Evalue: out.Evalue, Traceback: out.Traceback})
		}
	}
	return results
}

// HasError reports whether any output is an error.
func HasError(outputs []Output) bool {
	for _, out := range outputs {
		if out.Type == TypeError {
			return true
		}
	}
	return false
}
