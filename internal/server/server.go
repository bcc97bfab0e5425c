// Package server is the web view of the users loader.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samvad-hq/userloader/internal/app"
	"github.com/samvad-hq/userloader/internal/domain"
	"github.com/samvad-hq/userloader/internal/logger"
	"github.com/samvad-hq/userloader/pkg/lifecycle"
)

const (
	defaultHistoryLimit = 20
	shutdownTimeout     = 10 * time.Second
	wsWriteTimeout      = 5 * time.Second
)

// Server serves the users page, its live state stream and the loader's history and metrics.
type Server struct {
	addr     string
	list     *app.UserList
	router   chi.Router
	upgrader websocket.Upgrader
	log      logger.Logger
}

// Snapshot is the JSON form of a lifecycle state.
type Snapshot struct {
	Idle    bool          `json:"idle"`
	Loading bool          `json:"loading"`
	Loaded  bool          `json:"loaded"`
	Error   string        `json:"error,omitempty"`
	Users   []domain.User `json:"users,omitempty"`
}

// New builds a server for list listening on addr.
func New(addr string, list *app.UserList, log logger.Logger) (*Server, error) {
	if list == nil {
		return nil, errors.New("user list must not be nil")
	}
	s := &Server{
		addr:   addr,
		list:   list,
		router: chi.NewRouter(),
		log:    logger.Ensure(log),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.Recoverer)

	r.Get("/", s.handlePage)
	r.Post("/load", s.handleLoad)
	r.Get("/state", s.handleState)
	r.Get("/ws", s.handleWS)
	r.Get("/history", s.handleHistory)
	r.Handle("/metrics", promhttp.HandlerFor(s.list.Registry(), promhttp.HandlerOpts{}))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.log.DebugObj("http request", "http_request", map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
	})
	s.router.ServeHTTP(w, r)
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s,
		ReadHeaderTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.InfoObj("http server listening", "http_server", map[string]any{"addr": s.addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.InfoObj("http server shutting down", "reason", ctx.Err())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func (s *Server) snapshot(st lifecycle.State) Snapshot {
	p := s.list.Renderer().Page(st)
	return Snapshot{
		Idle:    p.Idle,
		Loading: p.Loading,
		Loaded:  p.Loaded,
		Error:   p.Error,
		Users:   p.Users,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handlePage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.list.Renderer().HTML(w, s.list.Loader().State()); err != nil {
		s.log.ErrorObj("render page failed", "error", err.Error())
	}
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	// The call outlives the request that triggered it.
	if _, err := s.list.Loader().Trigger(context.WithoutCancel(r.Context())); err != nil {
		s.log.WarnObj("trigger rejected", "error", err.Error())
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot(s.list.Loader().State()))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if ls := r.URL.Query().Get("limit"); ls != "" {
		v, err := strconv.Atoi(ls)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = v
	}
	recent, err := s.list.History().Recent(limit)
	if err != nil {
		s.log.WarnObj("listing history", "error", err.Error())
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, recent)
}

// handleWS streams a snapshot on connect and after every transition. Transitions arriving
// faster than the client reads are coalesced; the latest state is always delivered.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WarnObj("upgrading to websocket", "error", err.Error())
		return
	}
	defer conn.Close()

	var (
		mu     sync.Mutex
		latest lifecycle.State
	)
	wake := make(chan struct{}, 1)
	unwatch := s.list.Loader().Watch(func(st lifecycle.State) {
		mu.Lock()
		latest = st
		mu.Unlock()
		select {
		case wake <- struct{}{}:
		default:
		}
	})
	defer unwatch()

	// Reads only to notice the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(st lifecycle.State) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(s.snapshot(st))
	}

	if err := send(s.list.Loader().State()); err != nil {
		return
	}
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-wake:
			mu.Lock()
			st := latest
			mu.Unlock()
			if err := send(st); err != nil {
				s.log.DebugObj("websocket client gone", "error", err.Error())
				return
			}
		}
	}
}
