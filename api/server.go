// Package api serves the read-only dashboard endpoints. It aggregates
// through the portfolio service and the runtime state handle; it never
// mutates anything.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dawoonj/krwbot/core"
	"github.com/dawoonj/krwbot/portfolio"

	"github.com/gorilla/mux"
)

const requestTimeout = 15 * time.Second

type Server struct {
	state     *core.RuntimeState
	portfolio *portfolio.Service
	log       core.Logger
	http      *http.Server
}

func NewServer(addr string, state *core.RuntimeState, svc *portfolio.Service, log core.Logger) *Server {
	s := &Server{state: state, portfolio: svc, log: log}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/portfolio", s.handlePortfolio).Methods(http.MethodGet)
	router.HandleFunc("/api/orders", s.handleOrders).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  requestTimeout,
		WriteTimeout: requestTimeout,
	}
	return s
}

// Start serves until Shutdown. It blocks, so callers run it on a goroutine.
func (s *Server) Start() error {
	s.log.Infof("dashboard api listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Status())
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	summary, err := s.portfolio.Snapshot(ctx)
	if err != nil {
		s.log.WithError(err).Error("portfolio snapshot failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleOrders lists orders. ?state=open|done|cancel, default open.
func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var (
		history portfolio.History
		err     error
	)
	switch state := r.URL.Query().Get("state"); state {
	case "", "open":
		history, err = s.portfolio.Orders(ctx, true, nil)
	case "done", "cancel":
		history, err = s.portfolio.Orders(ctx, false, []string{state})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown state: " + state})
		return
	}
	if err != nil {
		s.log.WithError(err).Error("order listing failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
