// Package ledgerd serves a ledger.Store over HTTP so remote installs can share
// one canonical document.
//
// GET /ledger returns the document with its version as the ETag. PUT /ledger
// requires If-Match and answers 412 when the version has moved on. GET
// /healthz checks the backing store.
package ledgerd

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/logging"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

const maxBodyBytes = 8 << 20

// healthTimeout bounds the store check behind /healthz.
const healthTimeout = 2 * time.Second

// pinger is implemented by stores that can check their connection without
// reading the document.
type pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	Addr   string // listen address, default ":8080"
	Token  string // bearer token required on /ledger when non-empty
	Logger *zap.Logger
}

// Server exposes a store over HTTP.
type Server struct {
	store    ledger.Store
	token    string
	addr     string
	logger   *zap.Logger
	server   *http.Server
	listener net.Listener
}

// NewServer creates a server for store.
func NewServer(store ledger.Store, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	return &Server{
		store:  store,
		token:  opts.Token,
		addr:   opts.Addr,
		logger: logging.Component(opts.Logger, "ledgerd"),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ledger", s.ledgerHandler)
	mux.HandleFunc("/healthz", s.healthCheckHandler)
	return mux
}

// Start binds the listen address and serves in the background.
// Bind errors are returned synchronously.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ledger server error", zap.Error(err))
		}
	}()

	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) ledgerHandler(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Bearer realm="ledger"`)
		writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
		return
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		s.handleGet(w, r)
	case http.MethodPut:
		s.handlePut(w, r)
	default:
		w.Header().Set("Allow", "GET, HEAD, PUT")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	l, v, err := s.store.GetLatest(r.Context())
	if err != nil {
		s.logger.Warn("failed to read ledger", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "ledger backend unavailable")
		return
	}

	data, err := ledger.Encode(l)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("ETag", ledger.ETag(v))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		w.Write(data)
	}
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	ifMatch := r.Header.Get("If-Match")
	if ifMatch == "" {
		writeError(w, http.StatusPreconditionRequired, "If-Match header is required")
		return
	}
	expected, ok := ledger.ParseETag(ifMatch)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid If-Match value %q", ifMatch))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) > maxBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "ledger document too large")
		return
	}

	l, err := ledger.Decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid ledger document: %v", err))
		return
	}

	next, err := s.store.PutIfMatch(r.Context(), l, expected)
	if err != nil {
		var conflict *ledger.ConflictError
		if errors.As(err, &conflict) {
			if conflict.Current != "" {
				w.Header().Set("ETag", ledger.ETag(conflict.Current))
			}
			writeError(w, http.StatusPreconditionFailed, conflict.Error())
			return
		}
		if ledger.IsConflict(err) {
			writeError(w, http.StatusPreconditionFailed, err.Error())
			return
		}
		s.logger.Warn("failed to write ledger", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "ledger backend unavailable")
		return
	}

	s.logger.Info("ledger written",
		zap.String("previous_version", string(expected)),
		zap.String("version", string(next)),
		zap.Int("installs", len(l.Installs)))

	w.Header().Set("ETag", ledger.ETag(next))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"version": string(next)})
}

func (s *Server) authorized(r *http.Request) bool {
	if s.token == "" {
		return true
	}
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(auth, prefix)), []byte(s.token)) == 1
}

// healthCheckHandler handles GET /healthz requests.
// Returns 200 OK if the backend answers, 503 Service Unavailable otherwise.
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	response := HealthResponse{Status: "healthy"}

	// With a pinger, a failed read on a live connection means the document
	// itself is unreadable.
	backend := "disconnected"
	if p, ok := s.store.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			response.Status = "unhealthy"
			response.Backend = backend
			response.Error = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, response)
			return
		}
		backend = "connected"
	}

	l, v, err := s.store.GetLatest(ctx)
	if err != nil {
		response.Status = "unhealthy"
		response.Backend = backend
		response.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}

	response.Backend = "connected"
	response.Version = string(v)
	response.Installs = len(l.Installs)
	writeJSON(w, http.StatusOK, response)
}

// HealthResponse is the JSON response structure for health checks.
type HealthResponse struct {
	Status   string `json:"status"`
	Backend  string `json:"backend,omitempty"`
	Version  string `json:"version,omitempty"`
	Installs int    `json:"installs"`
	Error    string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
