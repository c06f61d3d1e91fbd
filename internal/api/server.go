package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bryanchriswhite/taskstrip/internal/appinfo"
	"github.com/bryanchriswhite/taskstrip/internal/host"
	"github.com/bryanchriswhite/taskstrip/internal/logger"
	"github.com/bryanchriswhite/taskstrip/internal/scheduler"
	"github.com/bryanchriswhite/taskstrip/internal/taskbar"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Version is reported by /api/health.
const Version = "0.1.0"

// Names looks up display names of installed applications.
type Names interface {
	Lookup(id host.AppID) (appinfo.Entry, bool)
}

// Server represents the HTTP API server
type Server struct {
	router   *mux.Router
	loop     *scheduler.Loop
	svc      *taskbar.Service
	names    Names
	upgrader websocket.Upgrader
	log      *zerolog.Logger

	// client is touched on the loop goroutine only
	client *taskbar.Client
	http   *http.Server
}

// NewServer creates a new API server. names may be nil.
func NewServer(loop *scheduler.Loop, svc *taskbar.Service, names Names) *Server {
	s := &Server{
		router: mux.NewRouter(),
		loop:   loop,
		svc:    svc,
		names:  names,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: logger.WithComponent("api"),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	api.HandleFunc("/applications", s.handleGetApplications).Methods("GET")
	api.HandleFunc("/windows", s.handleGetWindows).Methods("GET")

	api.HandleFunc("/favorites", s.handleGetFavorites).Methods("GET")
	api.HandleFunc("/favorites", s.handlePin).Methods("POST")
	api.HandleFunc("/favorites/{id}", s.handleUnpin).Methods("DELETE")
	api.HandleFunc("/favorites/{id}/position", s.handleMoveFavorite).Methods("PUT")

	api.HandleFunc("/stream", s.handleStream)
}

// Handler returns the routed handler with CORS headers.
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Attach registers the server's own taskbar client.
func (s *Server) Attach(ctx context.Context) error {
	return s.loop.Call(ctx, func() {
		if s.client == nil {
			s.client = s.svc.Attach("", nil)
		}
	})
}

// Detach drops the server's client.
func (s *Server) Detach(ctx context.Context) error {
	return s.loop.Call(ctx, func() {
		if s.client != nil {
			s.client.Detach()
			s.client = nil
		}
	})
}

// Start attaches and serves on port until ctx is done.
func (s *Server) Start(ctx context.Context, port int) error {
	if err := s.Attach(ctx); err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", "http://localhost"+addr).Msg("Starting server")
		errc <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.log.Warn().Err(err).Msg("Server shutdown failed")
	}
	if err := s.Detach(shutdownCtx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to detach server client")
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// onLoop runs fn on the engine loop for the duration of the request.
func (s *Server) onLoop(w http.ResponseWriter, r *http.Request, fn func(c *taskbar.Client) error) bool {
	var err error
	if cerr := s.loop.Call(r.Context(), func() {
		if s.client == nil {
			err = errNotAttached
			return
		}
		err = fn(s.client)
	}); cerr != nil {
		http.Error(w, cerr.Error(), http.StatusServiceUnavailable)
		return false
	}
	switch {
	case errors.Is(err, errNotAttached):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return false
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

var errNotAttached = errors.New("taskbar is not attached")

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func currentOnly(r *http.Request) bool {
	return r.URL.Query().Get("workspace") == "current"
}
