// Package testutils holds fakes shared by tests across packages.
package testutils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// RPCError is a JSON-RPC error object returned by a fake handler.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RPCHandler answers a single JSON-RPC method. Returning a non nil RPCError sends an error
// response instead of the result.
type RPCHandler func(params json.RawMessage) (any, *RPCError)

// RPCServer is an httptest server speaking JSON-RPC 2.0 with per-method handlers.
type RPCServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]RPCHandler
	calls    map[string]int
}

// NewRPCServer starts a fake JSON-RPC server that is closed when the test ends. Unknown methods
// get a -32601 error.
func NewRPCServer(t *testing.T) *RPCServer {
	t.Helper()

	s := &RPCServer{
		handlers: make(map[string]RPCHandler),
		calls:    make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)

	return s
}

// Handle registers h for method, replacing any previous handler.
func (s *RPCServer) Handle(method string, h RPCHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handlers[method] = h
}

// HandleResult registers a handler that always returns result.
func (s *RPCServer) HandleResult(method string, result any) {
	s.Handle(method, func(json.RawMessage) (any, *RPCError) { return result, nil })
}

// Calls returns how many times method was invoked.
func (s *RPCServer) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls[method]
}

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (s *RPCServer) serve(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.calls[req.Method]++
	h, ok := s.handlers[req.Method]
	s.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if !ok {
		resp["error"] = RPCError{Code: -32601, Message: "method not found: " + req.Method}
	} else if result, rerr := h(req.Params); rerr != nil {
		resp["error"] = rerr
	} else {
		resp["result"] = result
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
