package rpc

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"givepool/native/pool"
	"givepool/observability/logging"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeRateLimited    = -32020
	codeStateConflict  = -32030
	codeQuotaExceeded  = -32031
	codeResourceLimit  = -32032
	codeTransferFailed = -32034
	codeRetrySchedule  = -32035
)

// Options tunes the transport surface of the server.
type Options struct {
	// AuthToken protects privileged methods. Empty disables authentication,
	// which only test networks should allow.
	AuthToken string
	// RatePerMinute and Burst bound requests per client address.
	RatePerMinute int
	Burst         int
	Logger        *slog.Logger
}

// Server exposes the pool engine over JSON-RPC.
type Server struct {
	engine    *pool.Engine
	authToken string
	log       *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int

	httpSrv *http.Server
}

// NewServer wires the engine behind the RPC surface.
func NewServer(engine *pool.Engine, opts Options) *Server {
	perMinute := opts.RatePerMinute
	if perMinute <= 0 {
		perMinute = 600
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 20
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:    engine,
		authToken: strings.TrimSpace(opts.AuthToken),
		log:       logger.With(slog.String("component", "rpc")),
		limiters:  make(map[string]*rate.Limiter),
		limit:     rate.Limit(float64(perMinute) / 60.0),
		burst:     burst,
	}
}

// Handler returns the root HTTP handler, exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	return mux
}

// Start serves requests until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{Addr: addr, Handler: s.Handler()}
	s.log.Info("serving JSON-RPC", slog.String("addr", addr))
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
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

// writeEngineError translates the engine taxonomy into RPC error codes so
// clients can distinguish retryable quota pressure from hard validation
// failures.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	code := codeServerError
	status := http.StatusOK
	switch pool.Categorize(err) {
	case pool.CategoryValidation:
		code = codeInvalidParams
	case pool.CategoryAuthorization:
		code = codeUnauthorized
		status = http.StatusForbidden
	case pool.CategoryState:
		code = codeStateConflict
	case pool.CategoryQuota:
		code = codeQuotaExceeded
	case pool.CategoryResource:
		code = codeResourceLimit
	case pool.CategoryTransfer:
		code = codeTransferFailed
	case pool.CategoryRetry:
		code = codeRetrySchedule
	}
	writeError(w, status, id, code, err.Error(), nil)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	if !s.allowSource(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
		return
	}

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

	s.log.Debug("rpc request",
		slog.String("method", req.Method),
		slog.String("remote", clientIP(r)),
		logging.MaskField("authorization", r.Header.Get("Authorization")),
	)

	switch req.Method {
	case "pool_contribute":
		s.privileged(w, r, req, s.handleContribute)
	case "pool_withdraw":
		s.privileged(w, r, req, s.handleWithdraw)
	case "pool_enterReceiverPool":
		s.privileged(w, r, req, s.handleEnterReceiverPool)
	case "pool_leaveReceiverPool":
		s.privileged(w, r, req, s.handleLeaveReceiverPool)
	case "pool_emergencyExit":
		s.privileged(w, r, req, s.handleEmergencyExit)
	case "pool_startDistribution":
		s.privileged(w, r, req, s.handleStartDistribution)
	case "pool_continueDistribution":
		s.privileged(w, r, req, s.handleContinueDistribution)
	case "pool_emergencyStopDistribution":
		s.privileged(w, r, req, s.handleEmergencyStopDistribution)
	case "pool_distributeAll":
		s.privileged(w, r, req, s.handleDistributeAll)
	case "pool_retryFailedTransfer":
		s.privileged(w, r, req, s.handleRetryFailedTransfer)
	case "pool_forceFlush":
		s.privileged(w, r, req, s.handleForceFlush)
	case "pool_autoRetrySweep":
		s.handleAutoRetrySweep(w, r, req)
	case "pool_dailyStats":
		s.handleDailyStats(w, r, req)
	case "pool_withdrawable":
		s.handleWithdrawable(w, r, req)
	case "pool_withdrawalStats":
		s.handleWithdrawalStats(w, r, req)
	case "pool_unclaimedFunds":
		s.handleUnclaimedFunds(w, r, req)
	case "pool_distributionInfo":
		s.handleDistributionInfo(w, r, req)
	case "pool_failedTransfer":
		s.handleFailedTransfer(w, r, req)
	case "pool_receiverCount":
		s.handleReceiverCount(w, r, req)
	case "pool_balance":
		s.handleBalance(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
	}
}

type handlerFunc func(http.ResponseWriter, *http.Request, *RPCRequest)

// privileged gates operator methods behind the bearer token. Role checks still
// run inside the engine; the token only guards the transport.
func (s *Server) privileged(w http.ResponseWriter, r *http.Request, req *RPCRequest, next handlerFunc) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	next(w, r, req)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return nil
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func (s *Server) allowSource(source string) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(s.limit, s.burst)
		s.limiters[source] = limiter
	}
	return limiter.Allow()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
