package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/kestrel-tools/todomcp/internal/apperr"
	"github.com/kestrel-tools/todomcp/internal/identity"
)

// Server is the MCP protocol core shared by both transports. Under the
// stdio transport (Run), every call runs as the single subject verified
// once at startup; HTTPServer reuses the same core and attaches a
// per-request verified subject instead.
type Server struct {
	registry     *Registry
	info         ServerInfo
	logger       *slog.Logger
	subject      string
	callDeadline time.Duration
}

// defaultCallDeadline is used when NewServer is given a non-positive
// deadline, matching config's own default (spec.md §5).
const defaultCallDeadline = 2 * time.Second

// NewServer creates an MCP server bound to a single verified subject.
// callDeadline bounds each tools/call end-to-end (spec.md §5); a
// non-positive value falls back to defaultCallDeadline.
func NewServer(registry *Registry, info ServerInfo, logger *slog.Logger, subject string, callDeadline time.Duration) *Server {
	if callDeadline <= 0 {
		callDeadline = defaultCallDeadline
	}
	return &Server{
		registry:     registry,
		info:         info,
		logger:       logger,
		subject:      subject,
		callDeadline: callDeadline,
	}
}

// Run reads JSON-RPC requests from stdin and writes responses to stdout.
// It blocks until stdin is closed or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)
	encoder := json.NewEncoder(os.Stdout)

	s.logger.Info("todomcp server started", "name", s.info.Name, "version", s.info.Version)

	ctx = identity.WithSubject(ctx, s.subject)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := s.HandleMessage(ctx, line)
		if resp != nil {
			if err := encoder.Encode(resp); err != nil {
				s.logger.Error("failed to write response", "error", err)
				return fmt.Errorf("writing response: %w", err)
			}
		}
	}

	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("reading stdin: %w", err)
	}

	s.logger.Info("todomcp server stopped (stdin closed)")
	return nil
}

// HandleMessage parses a JSON-RPC request and dispatches to the
// appropriate handler. The subject attached to ctx (if any) is used for
// authorization; callers that have not yet verified a subject still reach
// the dispatcher, which fails closed in the Authorization Guard.
func (s *Server) HandleMessage(ctx context.Context, data []byte) *Response {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		s.logger.Error("failed to parse request", "error", err)
		return &Response{
			JSONRPC: "2.0",
			Error: &RPCError{
				Code:    ErrCodeParse,
				Message: "Parse error",
				Data:    err.Error(),
			},
		}
	}

	if req.ID == nil {
		s.logger.Debug("received notification", "method", req.Method)
		return nil
	}

	s.logger.Debug("handling request", "method", req.Method, "id", string(req.ID))

	result, rpcErr := s.dispatch(ctx, &req)
	resp := &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
	}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	return resp
}

func (s *Server) dispatch(ctx context.Context, req *Request) (any, *RPCError) {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req.Params)
	case "tools/list":
		return s.handleToolsList()
	case "tools/call":
		return s.handleToolsCall(ctx, req.Params)
	default:
		return nil, &RPCError{
			Code:    ErrCodeMethodNotFound,
			Message: fmt.Sprintf("method not found: %s", req.Method),
		}
	}
}

func (s *Server) handleInitialize(params json.RawMessage) (any, *RPCError) {
	var initParams InitializeParams
	if params != nil {
		if err := json.Unmarshal(params, &initParams); err != nil {
			return nil, &RPCError{
				Code:    ErrCodeInvalidParams,
				Message: "Invalid initialize params",
				Data:    err.Error(),
			}
		}
	}

	s.logger.Info("client connecting",
		"client", initParams.ClientInfo.Name,
		"client_version", initParams.ClientInfo.Version,
		"protocol_version", initParams.ProtocolVersion,
	)

	return &InitializeResult{
		ProtocolVersion: "2024-11-05",
		Capabilities:    ServerCapability{Tools: &ToolsCapability{}},
		ServerInfo:      s.info,
	}, nil
}

func (s *Server) handleToolsList() (any, *RPCError) {
	return &ToolsListResult{Tools: s.registry.List()}, nil
}

// handleToolsCall implements the C2 routing contract and the C8 structured
// log record (spec.md §4.2, §4.8): exactly one log line per call, keyed by
// subject/tool/outcome, with error_type/error_message only on failure.
func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (any, *RPCError) {
	var callParams ToolsCallParams
	if err := json.Unmarshal(params, &callParams); err != nil {
		return nil, &RPCError{
			Code:    ErrCodeInvalidParams,
			Message: "Invalid tools/call params",
			Data:    err.Error(),
		}
	}

	correlationID := uuid.NewString()
	subject := identity.SubjectFrom(ctx)
	started := time.Now()

	tool := s.registry.Get(callParams.Name)
	if tool == nil {
		appErr := apperr.Validationf("name", "unknown tool %q", callParams.Name)
		s.logCall(subject, callParams.Name, correlationID, started, appErr)
		return ErrorResult(string(appErr.ErrType), appErr.Message, appErr.Details), nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callDeadline)
	defer cancel()

	result, err := tool.Execute(callCtx, callParams.Arguments)
	if err != nil {
		appErr := apperr.As(err)
		s.logCall(subject, callParams.Name, correlationID, started, appErr)
		return ErrorResult(string(appErr.ErrType), appErr.Message, appErr.Details), nil
	}

	s.logCall(subject, callParams.Name, correlationID, started, nil)
	return result, nil
}

func (s *Server) logCall(subject, tool, correlationID string, started time.Time, appErr *apperr.Error) {
	attrs := []any{
		"tool", tool,
		"correlation_id", correlationID,
		"duration_ms", time.Since(started).Milliseconds(),
	}
	if subject != "" {
		attrs = append(attrs, "subject", subject)
	}
	if appErr == nil {
		attrs = append(attrs, "outcome", "success")
		s.logger.Info("tool_call", attrs...)
		return
	}
	attrs = append(attrs, "outcome", "failure", "error_type", string(appErr.ErrType), "error_message", appErr.Message)
	s.logger.Warn("tool_call", attrs...)
}
