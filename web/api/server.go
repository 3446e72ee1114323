package api

import (
	"context"
	"encoding/json"
	"net/http"

	"pkt.systems/pslog"

	"github.com/templatedoctor/validation-orchestrator/internal/domain"
	"github.com/templatedoctor/validation-orchestrator/internal/orchestrator"
)

// Orchestrator is the slice of the run orchestrator the API exposes.
type Orchestrator interface {
	Dispatch(ctx context.Context, req orchestrator.DispatchRequest) (*orchestrator.DispatchResult, error)
	Status(ctx context.Context, token string, remoteID int64) (*orchestrator.StatusReport, error)
	Cancel(ctx context.Context, token string, remoteID int64) (*orchestrator.CancelResult, error)
	HandleCallback(ctx context.Context, cb orchestrator.Callback) error
}

// BatchCoordinator is the slice of the batch coordinator the API
// exposes. Cancellation stays internal; it has no route.
type BatchCoordinator interface {
	Start(repos []string, mode string) (*domain.Batch, error)
	Status(id string) (*domain.Batch, bool)
}

// Server is the HTTP API server.
type Server struct {
	orch    Orchestrator
	batches BatchCoordinator
	addr    string
	mux     *http.ServeMux
	sseHub  *SSEHub
	logger  pslog.Logger
}

// NewServer creates a new API server.
func NewServer(orch Orchestrator, batches BatchCoordinator, addr string, logger pslog.Logger) *Server {
	s := &Server{
		orch:    orch,
		batches: batches,
		addr:    addr,
		mux:     http.NewServeMux(),
		sseHub:  NewSSEHub(),
		logger:  logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Every route answers under both /v4 and the older /api/v4 prefix.
	s.handleBoth("/validation-template", s.dispatchHandler())
	s.handleBoth("/validation-status", s.statusHandler())
	s.handleBoth("/validation-cancel", s.cancelHandler())
	s.handleBoth("/validation-callback", s.callbackHandler())
	s.handleBoth("/batch-scan-start", s.batchStartHandler())
	s.handleBoth("/batch-scan-status", s.batchStatusHandler())
	s.handleBoth("/ping", s.pingHandler())
	s.handleBoth("/events", s.sseHandler())

	s.mux.HandleFunc("/health", s.healthHandler())
}

func (s *Server) handleBoth(path string, h http.HandlerFunc) {
	s.mux.HandleFunc("/v4"+path, h)
	s.mux.HandleFunc("/api/v4"+path, h)
}

// Handler returns the full route tree with CORS applied.
func (s *Server) Handler() http.Handler {
	return withCORS(s.mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	go s.sseHub.Run()
	s.logger.Info("http server listening", "addr", s.addr)
	return http.ListenAndServe(s.addr, s.Handler())
}

// Broadcast sends an event to all SSE clients.
func (s *Server) Broadcast(event SSEEvent) {
	s.sseHub.Broadcast(event)
}

// withCORS leaves the surface open to any origin and short-circuits
// preflight requests.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
