package mcp

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-tools/todomcp/internal/apperr"
	"github.com/kestrel-tools/todomcp/internal/identity"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// stubTool is a minimal Tool used to exercise the registry and dispatcher
// without pulling in a real repository.
type stubTool struct {
	name   string
	result *ToolsCallResult
	err    error
}

func (s *stubTool) Name() string                    { return s.name }
func (s *stubTool) Description() string             { return "stub tool" }
func (s *stubTool) InputSchema() json.RawMessage    { return json.RawMessage(`{"type":"object"}`) }
func (s *stubTool) OutputSchema() json.RawMessage   { return json.RawMessage(`{"type":"object"}`) }
func (s *stubTool) Execute(_ context.Context, _ json.RawMessage) (*ToolsCallResult, error) {
	return s.result, s.err
}

func TestRegistryRegisterGetList(t *testing.T) {
	r := NewRegistry()
	require.Nil(t, r.Get("add_task"))

	r.Register(&stubTool{name: "add_task"})
	r.Register(&stubTool{name: "list_tasks"})

	require.NotNil(t, r.Get("add_task"))
	require.Nil(t, r.Get("unknown"))

	defs := r.List()
	require.Len(t, defs, 2)
	require.Equal(t, "add_task", defs[0].Name)
	require.Equal(t, "list_tasks", defs[1].Name)
}

func TestRegistryRegisterDuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "add_task"})
	require.Panics(t, func() {
		r.Register(&stubTool{name: "add_task"})
	})
}

func newTestServer(reg *Registry) *Server {
	return NewServer(reg, ServerInfo{Name: "todomcp", Version: "test"}, discardLogger(), "", time.Second)
}

func TestHandleMessageParseError(t *testing.T) {
	s := newTestServer(NewRegistry())
	resp := s.HandleMessage(context.Background(), []byte(`not json`))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	require.Equal(t, ErrCodeParse, resp.Error.Code)
}

func TestHandleMessageNotificationReturnsNil(t *testing.T) {
	s := newTestServer(NewRegistry())
	resp := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.Nil(t, resp)
}

func TestHandleMessageUnknownMethod(t *testing.T) {
	s := newTestServer(NewRegistry())
	resp := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"bogus"}`))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	require.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
}

func TestHandleMessageInitialize(t *testing.T) {
	s := newTestServer(NewRegistry())
	req := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"test-client"}}}`
	resp := s.HandleMessage(context.Background(), []byte(req))
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(*InitializeResult)
	require.True(t, ok)
	require.Equal(t, "todomcp", result.ServerInfo.Name)
}

func TestHandleMessageToolsList(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubTool{name: "add_task"})
	s := newTestServer(reg)

	resp := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(*ToolsListResult)
	require.True(t, ok)
	require.Len(t, result.Tools, 1)
	require.Equal(t, "add_task", result.Tools[0].Name)
}

func TestHandleMessageToolsCallUnknownToolIsValidationError(t *testing.T) {
	s := newTestServer(NewRegistry())
	req := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"no_such_tool","arguments":{}}}`
	resp := s.HandleMessage(context.Background(), []byte(req))
	require.Nil(t, resp.Error, "unknown tool must surface as a tool result, not a JSON-RPC protocol error")

	result, ok := resp.Result.(*ToolsCallResult)
	require.True(t, ok)
	require.True(t, result.IsError)

	envelope, ok := result.StructuredContent.(ErrorEnvelope)
	require.True(t, ok)
	require.Equal(t, string(apperr.Validation), envelope.ErrorType)
}

func TestHandleMessageToolsCallSuccess(t *testing.T) {
	reg := NewRegistry()
	want, err := JSONResult(map[string]string{"task_id": "abc"})
	require.NoError(t, err)
	reg.Register(&stubTool{name: "add_task", result: want})
	s := newTestServer(reg)

	req := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"add_task","arguments":{}}}`
	resp := s.HandleMessage(context.Background(), []byte(req))
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(*ToolsCallResult)
	require.True(t, ok)
	require.False(t, result.IsError)
}

func TestHandleMessageToolsCallExecuteErrorIsClassified(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubTool{name: "delete_task", err: apperr.NotFoundf("task not found")})
	s := newTestServer(reg)

	req := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"delete_task","arguments":{}}}`
	resp := s.HandleMessage(context.Background(), []byte(req))
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(*ToolsCallResult)
	require.True(t, ok)
	require.True(t, result.IsError)

	envelope, ok := result.StructuredContent.(ErrorEnvelope)
	require.True(t, ok)
	require.Equal(t, string(apperr.NotFound), envelope.ErrorType)
}

// --- HTTP transport auth ---

type fixedKeyProvider struct {
	key *rsa.PrivateKey
}

func (f fixedKeyProvider) Keyfunc(_ *jwt.Token) (any, error) {
	return &f.key.PublicKey, nil
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.RegisteredClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	s, err := token.SignedString(key)
	require.NoError(t, err)
	return s
}

func newTestHTTPServer(t *testing.T) (*HTTPServer, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	gate := identity.NewGate(fixedKeyProvider{key: key}, "todomcp", 60*time.Second, discardLogger())
	server := newTestServer(NewRegistry())
	return NewHTTPServer(server, gate, "*", discardLogger()), key
}

func TestHTTPServerRejectsMissingBearer(t *testing.T) {
	h, _ := newTestHTTPServer(t)

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHTTPServerAcceptsValidBearer(t *testing.T) {
	h, key := newTestHTTPServer(t)

	token := signToken(t, key, jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "todomcp",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTPServerRejectsExpiredBearer(t *testing.T) {
	h, key := newTestHTTPServer(t)

	token := signToken(t, key, jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "todomcp",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
