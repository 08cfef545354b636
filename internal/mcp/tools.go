package mcp

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
)

// executeCodeSchema is written out explicitly so the timeout default and
// argument semantics reach the client.
func executeCodeSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"session_name": {
				Type:        "string",
				Description: "Unique session ID. Same name shares state (vars, imports).",
			},
			"code": {
				Type:        "string",
				Description: "Code to run (multi-line OK). Executes in a stateful kernel session.",
			},
			"timeout": {
				Type:        "integer",
				Description: "Max seconds (default: 10). Timeout interrupts but keeps session alive.",
				Default:     json.RawMessage("10"),
			},
		},
		Required: []string{"session_name", "code"},
	}
}

// registerAllTools registers all tool definitions with the registry.
func (s *Server) registerAllTools(r *Registry) {
	Register(r, ToolDef{
		Name: "execute_code",
		Description: "Run code in a stateful kernel session. Preserves variables and " +
			"functions across calls to the same session name. A timeout interrupts " +
			"the execution but keeps the session alive.",
		InputSchema: executeCodeSchema(),
	}, s.handleExecuteCode)

	Register(r, ToolDef{
		Name:        "list_sessions",
		Description: "Return list of active session names.",
	}, s.handleListSessions)

	Register(r, ToolDef{
		Name:        "close_session",
		Description: "Close a session. Returns true if the session existed.",
	}, s.handleCloseSession)

	Register(r, ToolDef{
		Name:        "execution_history",
		Description: "Query recent code executions (session, summary, duration, outcome).",
	}, s.handleExecutionHistory)

	if s.terminal != nil {
		Register(r, ToolDef{
			Name:        "terminal_new_session",
			Description: "Open a new detached terminal session. Returns its id.",
		}, s.handleTerminalNewSession)

		Register(r, ToolDef{
			Name:        "terminal_list_sessions",
			Description: "List terminal session ids.",
		}, s.handleTerminalListSessions)

		Register(r, ToolDef{
			Name: "terminal_send_keys",
			Description: "Send keys to a terminal session. Use enter=true to run a command, " +
				"or key chords like C-c with enter=false. Returns the pane contents after " +
				"a one second wait; call terminal_get_output again for slow commands.",
		}, s.handleTerminalSendKeys)

		Register(r, ToolDef{
			Name:        "terminal_get_output",
			Description: "Capture the output of a terminal session pane.",
		}, s.handleTerminalGetOutput)

		Register(r, ToolDef{
			Name:        "terminal_kill_session",
			Description: "Kill a terminal session.",
		}, s.handleTerminalKillSession)
	}
}
