package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HyphaGroup/crucible/internal/audit"
	"github.com/HyphaGroup/crucible/internal/engine"
	"github.com/HyphaGroup/crucible/internal/kernel"
	"github.com/HyphaGroup/crucible/internal/session"
)

type fakeTransport struct{}

func (fakeTransport) Submit(code string) (string, error) { return "sub-1", nil }

func (fakeTransport) Poll(timeout time.Duration) (*kernel.Message, error) {
	return &kernel.Message{Type: "status", ParentID: "sub-1", ExecutionState: "idle"}, nil
}

func (fakeTransport) Interrupt() error { return nil }
func (fakeTransport) Stop() error      { return nil }

type fakeRuntime struct{}

func (fakeRuntime) Start(ctx context.Context) (kernel.Transport, error) {
	return fakeTransport{}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	mgr := session.NewManager(dir, fakeRuntime{})
	eng := engine.New(mgr, audit.New(dir), nil, 10*time.Second)
	return NewServer(eng, &ServerConfig{ScriptsDir: dir})
}

func callTool(t *testing.T, s *Server, name string, args string) *mcp_sdk.CallToolResult {
	t.Helper()
	result, err := s.GetRegistry().CallTool(context.Background(), name, json.RawMessage(args))
	if err != nil {
		t.Fatalf("CallTool(%s) error = %v", name, err)
	}
	return result
}

func resultText(t *testing.T, result *mcp_sdk.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	text, ok := result.Content[0].(*mcp_sdk.TextContent)
	if !ok {
		t.Fatalf("content is %T, want text", result.Content[0])
	}
	return text.Text
}

func TestExecuteCodeTool(t *testing.T) {
	s := newTestServer(t)

	result := callTool(t, s, "execute_code", `{"session_name":"demo","code":"a = 1"}`)
	if result.IsError {
		t.Fatalf("execute_code errored: %s", resultText(t, result))
	}

	var outputs []map[string]any
	if err := json.Unmarshal([]byte(resultText(t, result)), &outputs); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if len(outputs) != 0 {
		t.Errorf("outputs = %v, want empty for silent code", outputs)
	}
}

func TestExecuteCodeRequiresCode(t *testing.T) {
	s := newTestServer(t)

	result := callTool(t, s, "execute_code", `{"session_name":"demo"}`)
	if !result.IsError {
		t.Error("execute_code without code did not error")
	}
}

func TestListSessionsTool(t *testing.T) {
	s := newTestServer(t)

	result := callTool(t, s, "list_sessions", `{}`)
	if got := resultText(t, result); got != "null" && got != "[]" {
		t.Errorf("empty list = %q", got)
	}

	callTool(t, s, "execute_code", `{"session_name":"beta","code":"1"}`)
	callTool(t, s, "execute_code", `{"session_name":"alpha","code":"1"}`)

	result = callTool(t, s, "list_sessions", `{}`)
	var names []string
	if err := json.Unmarshal([]byte(resultText(t, result)), &names); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("sessions = %v, want [alpha beta]", names)
	}
}

func TestCloseSessionTool(t *testing.T) {
	s := newTestServer(t)

	result := callTool(t, s, "close_session", `{"session_name":"demo"}`)
	if resultText(t, result) != "false" {
		t.Errorf("closing missing session = %q, want false", resultText(t, result))
	}

	callTool(t, s, "execute_code", `{"session_name":"demo","code":"1"}`)

	result = callTool(t, s, "close_session", `{"session_name":"demo"}`)
	if resultText(t, result) != "true" {
		t.Errorf("closing live session = %q, want true", resultText(t, result))
	}
}

func TestExecutionHistoryToolDisabled(t *testing.T) {
	s := newTestServer(t)

	result := callTool(t, s, "execution_history", `{}`)
	if !result.IsError {
		t.Error("execution_history without a store did not error")
	}
}

func TestTerminalToolsAbsentWithoutManager(t *testing.T) {
	s := newTestServer(t)

	if _, ok := s.GetRegistry().GetTool("terminal_new_session"); ok {
		t.Error("terminal tools registered without a terminal manager")
	}
}

func TestCoreToolsRegistered(t *testing.T) {
	s := newTestServer(t)

	for _, name := range []string{"execute_code", "list_sessions", "close_session", "execution_history"} {
		if _, ok := s.GetRegistry().GetTool(name); !ok {
			t.Errorf("tool %q not registered", name)
		}
	}

	def, _ := s.GetRegistry().GetTool("execute_code")
	if def.Description == "" {
		t.Error("execute_code has no description")
	}
	if def.InputSchema == nil {
		t.Error("execute_code has no input schema")
	}
}
