package monitor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"apex_hunter_go/engine"
	"apex_hunter_go/logs"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StatusProvider is the read side of the engine.
type StatusProvider interface {
	Status() engine.Status
}

// Server is the optional status API.
type Server struct {
	provider StatusProvider
	hub      *Hub
	http     *http.Server
}

// NewServer wires the routes. hub may be nil, in which case /ws is not served.
func NewServer(addr string, provider StatusProvider, hub *Hub) *Server {
	s := &Server{provider: provider, hub: hub}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Routes() *mux.Router {
	router := mux.NewRouter()
	// Full paths on one router so a wrong method answers 405 rather than 404.
	router.HandleFunc("/api/v1/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/positions", s.handlePositions).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	if s.hub != nil {
		router.HandleFunc("/ws", s.hub.ServeWS)
	}
	return router
}

// Start serves until Shutdown. It returns immediately; listen errors are logged.
func (s *Server) Start() {
	go func() {
		logs.Infof("[Monitor] Status server listening on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logs.Errorf("[Monitor] Status server error: %v", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.provider.Status())
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.provider.Status().Positions)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logs.Warnf("[Monitor] Failed to write response: %v", err)
	}
}
