// Package server is the inventory REST API the clients talk to.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"bdemetris/devicehub/pkg/store"
)

// Server serves devices, users and history out of a store.Store.
type Server struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithIDGenerator replaces the uuid generator for new records.
func WithIDGenerator(newID func() string) Option {
	return func(s *Server) { s.newID = newID }
}

func New(st store.Store, opts ...Option) *Server {
	s := &Server{
		store:  st,
		logger: slog.Default(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router registers every route. The fixed /devices paths come before
// /devices/{id} so they are not captured as ids.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	r.HandleFunc("/devices", s.listDevices).Methods(http.MethodGet)
	r.HandleFunc("/devices", s.createDevice).Methods(http.MethodPost)
	r.HandleFunc("/devices/search", s.searchDevices).Methods(http.MethodGet)
	r.HandleFunc("/devices/recommendations", s.recommendations).Methods(http.MethodGet)
	r.HandleFunc("/devices/{id}", s.getDevice).Methods(http.MethodGet)
	r.HandleFunc("/devices/{id}", s.updateDevice).Methods(http.MethodPut)
	r.HandleFunc("/devices/{id}/checkout", s.checkoutDevice).Methods(http.MethodPut)
	r.HandleFunc("/devices/{id}/checkin", s.checkinDevice).Methods(http.MethodPut)

	r.HandleFunc("/users", s.listUsers).Methods(http.MethodGet)
	r.HandleFunc("/users", s.createUser).Methods(http.MethodPost)

	r.HandleFunc("/history/{id}", s.deviceHistory).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	return r
}

// Handler is the router wrapped with CORS handling for browser clients.
func (s *Server) Handler() http.Handler {
	return withCORS(s.Router())
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// storeError maps a store failure onto a response.
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, notFound string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, notFound)
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("store operation failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
