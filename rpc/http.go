package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"energymarket/core"
	"energymarket/core/events"
	"energymarket/core/types"
	"energymarket/observability"
	"energymarket/observability/logging"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	requestIDHeader = "X-Request-ID"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeModuleError    = -32010
	codeRateLimited    = -32020
)

// Config controls the RPC server.
type Config struct {
	JWTSecret          []byte
	JWTIssuer          string
	RateLimitPerSecond float64
	RateLimitBurst     int
	ReadHeaderTimeout  time.Duration
	Logger             *slog.Logger
}

// Server exposes the node over JSON-RPC 2.0.
type Server struct {
	node    *core.Node
	feed    *events.Feed
	auth    *authenticator
	limits  *callerLimiter
	methods map[string]method
	logger  *slog.Logger
	timeout time.Duration

	serverMu   sync.Mutex
	httpServer *http.Server
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

// NewServer builds a server for node. feed may be nil, in which case the
// event stream endpoint is not mounted.
func NewServer(node *core.Node, feed *events.Feed, cfg Config) (*Server, error) {
	if node == nil {
		return nil, fmt.Errorf("rpc: node required")
	}
	auth, err := newAuthenticator(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.ReadHeaderTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	s := &Server{
		node:    node,
		feed:    feed,
		auth:    auth,
		limits:  newCallerLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		logger:  logger,
		timeout: timeout,
	}
	s.methods = s.registerMethods()
	return s, nil
}

// Handler returns the instrumented HTTP handler serving every endpoint.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Post("/", s.handle)
	router.Get("/healthz", s.handleHealth)
	router.Handle("/metrics", promhttp.Handler())
	if s.feed != nil {
		router.Get("/ws/events", s.handleEventsWS)
	}
	return otelhttp.NewHandler(router, "energy-rpc")
}

// Serve accepts connections on listener until Shutdown is called.
func (s *Server) Serve(listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.timeout,
	}
	s.serverMu.Lock()
	s.httpServer = srv
	s.serverMu.Unlock()
	s.logger.Info("rpc listening", slog.String("listen", listener.Addr().String()))
	err := srv.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops a running server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMu.Lock()
	srv := s.httpServer
	s.serverMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "ok",
		"height":   s.node.Height(),
		"sequence": s.node.Sequence(),
	})
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle decodes a JSON-RPC request and dispatches it to the method table.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")
	requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(requestIDHeader, requestID)

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	code := 0
	defer func() {
		observability.RPC().Observe(req.Method, code, time.Since(start))
	}()

	m, ok := s.methods[req.Method]
	if !ok {
		code = codeMethodNotFound
		writeError(w, http.StatusNotFound, req.ID, code, "method not found", req.Method)
		return
	}

	caller, authErr := s.auth.caller(r)
	if authErr != nil && (m.mutating || !errors.Is(authErr, errNoCredentials)) {
		code = codeUnauthorized
		s.logger.Debug("rpc call unauthorized",
			slog.String("request", requestID),
			slog.String("operation", req.Method),
			slog.String("reason", authErr.Error()),
			logging.MaskField("authorization", r.Header.Get("Authorization")))
		writeError(w, http.StatusUnauthorized, req.ID, code, "unauthorized", authErr.Error())
		return
	}

	source := caller.String()
	if source == "" {
		source = clientSource(r)
	}
	if !s.limits.allow(source) {
		code = codeRateLimited
		observability.RPC().RecordThrottle("caller")
		writeError(w, http.StatusTooManyRequests, req.ID, code, "rate limit exceeded", nil)
		return
	}

	result, err := m.fn(r.Context(), caller, req.Params)
	if err != nil {
		status, rpcErr := s.toRPCError(requestID, req.Method, err)
		code = rpcErr.Code
		writeError(w, status, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	writeResult(w, req.ID, result)
}

// clientSource identifies anonymous clients by remote address. Forwarding
// headers are not trusted.
func clientSource(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type method struct {
	fn       func(ctx context.Context, caller types.Principal, params []json.RawMessage) (interface{}, error)
	mutating bool
}
