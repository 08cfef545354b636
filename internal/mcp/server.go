package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"os"

	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HyphaGroup/crucible/internal/engine"
	"github.com/HyphaGroup/crucible/internal/history"
	"github.com/HyphaGroup/crucible/internal/logger"
	"github.com/HyphaGroup/crucible/internal/metrics"
	"github.com/HyphaGroup/crucible/internal/terminal"
)

// generateRequestID creates a unique request identifier
func generateRequestID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Server wraps the MCP server with the execution engine and its
// collaborators.
type Server struct {
	engine     *engine.Engine
	history    *history.Store    // optional
	terminal   *terminal.Manager // optional
	scriptsDir string
	version    string

	mcpServer *mcp_sdk.Server
	registry  *Registry
}

// ServerConfig holds optional server collaborators
type ServerConfig struct {
	History    *history.Store
	Terminal   *terminal.Manager
	ScriptsDir string
	Version    string
}

// NewServer creates a new MCP server instance
func NewServer(eng *engine.Engine, cfg *ServerConfig) *Server {
	s := &Server{
		engine:   eng,
		registry: NewRegistry(),
		version:  "dev",
	}
	if cfg != nil {
		s.history = cfg.History
		s.terminal = cfg.Terminal
		s.scriptsDir = cfg.ScriptsDir
		if cfg.Version != "" {
			s.version = cfg.Version
		}
	}

	s.registerAllTools(s.registry)
	return s
}

// GetRegistry returns the tool registry for external access
func (s *Server) GetRegistry() *Registry {
	return s.registry
}

// Close shuts down the server's sessions
func (s *Server) Close() {
	s.engine.Sessions().CloseAll()
}

// Serve starts the MCP HTTP server
func (s *Server) Serve(addr string) error {
	s.mcpServer = mcp_sdk.NewServer(&mcp_sdk.Implementation{
		Name:    "crucible",
		Version: s.version,
	}, nil)

	s.registry.RegisterWithMCPServer(s.mcpServer)

	// HTTP handler with streamable transport; EventStore enables SSE
	// stream resumption
	mcpHandler := mcp_sdk.NewStreamableHTTPHandler(func(req *http.Request) *mcp_sdk.Server {
		return s.mcpServer
	}, &mcp_sdk.StreamableHTTPOptions{
		EventStore: mcp_sdk.NewMemoryEventStore(nil),
	})

	// Request ID and logging middleware
	loggingHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), logger.ContextKeyRequestID, requestID)
		r = r.WithContext(ctx)

		logger.Info("HTTP %s %s from %s [request_id=%s]", r.Method, r.URL.Path, r.RemoteAddr, requestID)
		mcpHandler.ServeHTTP(w, r)
	})

	rateLimiter := DefaultRateLimiter() // 10 req/s, burst 20
	rateLimitedHandler := RateLimitMiddleware(rateLimiter)(loggingHandler)

	mainMux := http.NewServeMux()

	mainMux.HandleFunc("/health", s.handleHealthCheck)
	mainMux.HandleFunc("/ready", s.handleReadinessCheck)

	// Metrics endpoint for Prometheus scraping
	mainMux.Handle("/metrics", metrics.Handler())

	// MCP endpoints, rate limited and wrapped with metrics middleware
	mainMux.Handle("/mcp", metrics.Middleware(rateLimitedHandler))
	mainMux.Handle("/mcp/", metrics.Middleware(rateLimitedHandler))

	logger.Info("Crucible MCP server listening on %s", addr)
	logger.Info("Health check: http://localhost%s/health", addr)
	logger.Info("Metrics: http://localhost%s/metrics", addr)
	return http.ListenAndServe(addr, mainMux)
}

// handleHealthCheck is a basic liveness check
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleReadinessCheck verifies the server can persist notebooks
func (s *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if s.scriptsDir != "" {
		if _, err := os.Stat(s.scriptsDir); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"not ready","reason":"scripts directory unavailable"}`))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}
