// Package mcpserver is the MCP (Model Context Protocol) transport adapter:
// JSON-RPC 2.0 over stdio or HTTP/SSE, session management, and a middleware
// chain. It is transport plumbing only; tool lookup, validation, and
// execution live behind the Dispatcher interface.
//
// Quick start:
//
//	server := mcpserver.New("play-console-mcp", "1.0.0", catalog)
//	server.RunStdio(ctx) // or server.RunHTTP(ctx, ":8080")
package mcpserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Dispatcher is the call contract the transport delivers invocations to.
// Tools returns the ordered catalog for introspection; Dispatch executes one
// invocation and returns either a payload or a structured error.
type Dispatcher interface {
	Tools() []ToolDef
	Dispatch(ctx context.Context, name string, args map[string]any) (any, error)
}

// Server decodes JSON-RPC requests and routes tool calls to the dispatcher.
type Server struct {
	name            string
	version         string
	protocolVersion string
	dispatcher      Dispatcher
	sessions        map[string]time.Time
	sessionMu       sync.RWMutex
	middleware      []Middleware
	logger          *slog.Logger
	httpAuthToken   string
}

// New creates an MCP server over the given dispatcher.
func New(name, version string, d Dispatcher) *Server {
	return &Server{
		name:            name,
		version:         version,
		protocolVersion: "2024-11-05",
		dispatcher:      d,
		sessions:        make(map[string]time.Time),
		logger:          slog.Default(),
	}
}

// Use adds middleware to the server's processing chain.
func (s *Server) Use(mw Middleware) {
	s.middleware = append(s.middleware, mw)
}

// RunStdio serves requests from stdin to stdout until EOF or context
// cancellation.
func (s *Server) RunStdio(ctx context.Context) error {
	s.logger.Info("starting MCP server (stdio)", "name", s.name, "version", s.version, "tools", len(s.dispatcher.Tools()))

	decoder := json.NewDecoder(os.Stdin)
	encoder := json.NewEncoder(os.Stdout)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var req JSONRPCRequest
		if err := decoder.Decode(&req); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("decode request: %w", err)
		}

		resp := s.HandleRequest(ctx, &req)
		if resp == nil {
			continue // notification, no response needed
		}

		if err := encoder.Encode(resp); err != nil {
			return fmt.Errorf("encode response: %w", err)
		}
	}
}

// HandleRequest processes a single JSON-RPC request through the middleware
// chain and returns a response, or nil for notifications.
func (s *Server) HandleRequest(ctx context.Context, req *JSONRPCRequest) *JSONRPCResponse {
	handler := s.coreHandler
	for i := len(s.middleware) - 1; i >= 0; i-- {
		handler = s.middleware[i](handler)
	}
	return handler(ctx, req)
}

func (s *Server) coreHandler(ctx context.Context, req *JSONRPCRequest) *JSONRPCResponse {
	resp := &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
	}

	switch req.Method {
	case "initialize":
		resp.Result = s.handleInitialize()
	case "notifications/initialized":
		s.logger.Info("client initialized")
		return nil
	case "tools/list":
		resp.Result = &ToolsListResult{Tools: s.dispatcher.Tools()}
	case "tools/call":
		resp.Result = s.handleToolCall(ctx, req.Params)
	default:
		resp.Error = &RPCError{
			Code:    -32601,
			Message: fmt.Sprintf("Method not found: %s", req.Method),
		}
	}

	return resp
}

func (s *Server) handleInitialize() *InitializeResult {
	return &InitializeResult{
		ProtocolVersion: s.protocolVersion,
		Capabilities: ServerCapabilities{
			Tools: ToolsCapability{ListChanged: false},
		},
		ServerInfo: ServerInfo{
			Name:    s.name,
			Version: s.version,
		},
		SessionID: s.createSession(),
	}
}

func (s *Server) handleToolCall(ctx context.Context, params any) any {
	paramsBytes, err := json.Marshal(params)
	if err != nil {
		return ErrorResult(fmt.Errorf("parse params: %w", err))
	}

	var callParams struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal(paramsBytes, &callParams); err != nil {
		return ErrorResult(fmt.Errorf("unmarshal params: %w", err))
	}

	result, err := s.dispatcher.Dispatch(ctx, callParams.Name, callParams.Arguments)
	if err != nil {
		return ErrorResult(err)
	}
	return SuccessResult(result)
}

// Session management

func (s *Server) createSession() string {
	id := generateSessionID()
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	s.sessions[id] = time.Now()
	return id
}

// CheckSession verifies if a session ID is valid.
func (s *Server) CheckSession(id string) bool {
	s.sessionMu.RLock()
	defer s.sessionMu.RUnlock()
	_, ok := s.sessions[id]
	return ok
}

func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("sess-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
