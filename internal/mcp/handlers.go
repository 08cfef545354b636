package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HyphaGroup/crucible/internal/metrics"
)

// ExecuteCodeParams are the arguments for execute_code
type ExecuteCodeParams struct {
	SessionName string `json:"session_name"`
	Code        string `json:"code"`
	Timeout     int    `json:"timeout,omitempty"`
}

// CloseSessionParams are the arguments for close_session
type CloseSessionParams struct {
	SessionName string `json:"session_name" description:"Session to close."`
}

// ExecutionHistoryParams are the arguments for execution_history
type ExecutionHistoryParams struct {
	SessionName string `json:"session_name,omitempty" description:"Filter by session name. Omit for all sessions."`
	Limit       int    `json:"limit,omitempty" description:"Max rows to return (default: 50)."`
}

// TerminalSessionParams identify one terminal session
type TerminalSessionParams struct {
	SessionID int `json:"session_id" description:"Terminal session id."`
}

// TerminalSendKeysParams are the arguments for terminal_send_keys
type TerminalSendKeysParams struct {
	SessionID int    `json:"session_id" description:"Terminal session id."`
	Keys      string `json:"keys" description:"Text or key chord to type into the terminal (e.g. \"whoami\" or \"C-c\")."`
	Enter     bool   `json:"enter" description:"Send Enter after the keys."`
}

// TerminalGetOutputParams are the arguments for terminal_get_output
type TerminalGetOutputParams struct {
	SessionID int    `json:"session_id" description:"Terminal session id."`
	Start     string `json:"start,omitempty" description:"Starting line. Zero is the first visible line, negative numbers address history, - is the start of history."`
	End       string `json:"end,omitempty" description:"Ending line. Zero is the first visible line, negative numbers address history, - is the end of the visible pane."`
}

// emptyParams is used by tools that take no arguments
type emptyParams struct{}

func (s *Server) handleExecuteCode(ctx context.Context, params ExecuteCodeParams) (*mcp_sdk.CallToolResult, error) {
	if params.Code == "" {
		return NewErrorResult("code is required"), nil
	}

	results, err := s.engine.Execute(ctx, params.SessionName, params.Code, params.Timeout)
	if err != nil {
		metrics.RecordToolCall("execute_code", "error")
		return NewErrorResult(err.Error()), nil
	}
	metrics.RecordToolCall("execute_code", "ok")
	return jsonResult(results)
}

func (s *Server) handleListSessions(ctx context.Context, _ emptyParams) (*mcp_sdk.CallToolResult, error) {
	metrics.RecordToolCall("list_sessions", "ok")
	return jsonResult(s.engine.Sessions().List())
}

func (s *Server) handleCloseSession(ctx context.Context, params CloseSessionParams) (*mcp_sdk.CallToolResult, error) {
	closed := s.engine.Sessions().Close(params.SessionName)
	metrics.RecordToolCall("close_session", "ok")
	return jsonResult(closed)
}

func (s *Server) handleExecutionHistory(ctx context.Context, params ExecutionHistoryParams) (*mcp_sdk.CallToolResult, error) {
	if s.history == nil {
		return NewErrorResult("execution history is not enabled"), nil
	}
	records, err := s.history.List(params.SessionName, params.Limit)
	if err != nil {
		metrics.RecordToolCall("execution_history", "error")
		return NewErrorResult(err.Error()), nil
	}
	metrics.RecordToolCall("execution_history", "ok")
	return jsonResult(records)
}

func (s *Server) handleTerminalNewSession(ctx context.Context, _ emptyParams) (*mcp_sdk.CallToolResult, error) {
	id, err := s.terminal.NewSession()
	if err != nil {
		metrics.RecordToolCall("terminal_new_session", "error")
		return NewErrorResult(err.Error()), nil
	}
	metrics.RecordToolCall("terminal_new_session", "ok")
	return jsonResult(id)
}

func (s *Server) handleTerminalListSessions(ctx context.Context, _ emptyParams) (*mcp_sdk.CallToolResult, error) {
	ids, err := s.terminal.ListSessions()
	if err != nil {
		metrics.RecordToolCall("terminal_list_sessions", "error")
		return NewErrorResult(err.Error()), nil
	}
	metrics.RecordToolCall("terminal_list_sessions", "ok")
	return jsonResult(ids)
}

func (s *Server) handleTerminalKillSession(ctx context.Context, params TerminalSessionParams) (*mcp_sdk.CallToolResult, error) {
	if err := s.terminal.KillSession(params.SessionID); err != nil {
		metrics.RecordToolCall("terminal_kill_session", "error")
		return NewErrorResult(err.Error()), nil
	}
	metrics.RecordToolCall("terminal_kill_session", "ok")
	return NewTextResult(fmt.Sprintf("session %d killed", params.SessionID)), nil
}

func (s *Server) handleTerminalSendKeys(ctx context.Context, params TerminalSendKeysParams) (*mcp_sdk.CallToolResult, error) {
	out, err := s.terminal.SendKeys(params.SessionID, params.Keys, params.Enter)
	if err != nil {
		metrics.RecordToolCall("terminal_send_keys", "error")
		return NewErrorResult(err.Error()), nil
	}
	metrics.RecordToolCall("terminal_send_keys", "ok")
	return NewTextResult(out), nil
}

func (s *Server) handleTerminalGetOutput(ctx context.Context, params TerminalGetOutputParams) (*mcp_sdk.CallToolResult, error) {
	out, err := s.terminal.GetOutput(params.SessionID, params.Start, params.End)
	if err != nil {
		metrics.RecordToolCall("terminal_get_output", "error")
		return NewErrorResult(err.Error()), nil
	}
	metrics.RecordToolCall("terminal_get_output", "ok")
	return NewTextResult(out), nil
}

// jsonResult marshals a value into a text result.
func jsonResult(v any) (*mcp_sdk.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return NewErrorResult(err.Error()), nil
	}
	return NewTextResult(string(data)), nil
}
