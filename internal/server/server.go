// Package server exposes the local HTTP surface: the token bootstrap
// redirect, a link title lookup, metrics and a heartbeat.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"plaichat/internal/linktitle"
	"plaichat/internal/logger"
	"plaichat/internal/metrics"
	"plaichat/internal/tokens"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	store   tokens.Store
	uiURL   string
	metrics *metrics.Metrics
	client  *http.Client
	log     *logger.Logger
}

func New(store tokens.Store, uiURL string, m *metrics.Metrics, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Server{
		store:   store,
		uiURL:   uiURL,
		metrics: m,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.WithComponent("server"),
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Get("/chats", s.bootstrap)
	r.Get("/api/fetch-title", s.fetchTitle)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))

	return r
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("Server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errc
}

func (s *Server) bootstrap(w http.ResponseWriter, r *http.Request) {
	sessionID, err := tokens.Bootstrap(s.store, tokens.ParamsFromQuery(r.URL.Query()))
	if err != nil {
		var verr *tokens.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": verr.Fields})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string][]string{"access": {err.Error()}}})
		return
	}
	s.log.Info("session bootstrapped", "session_id", sessionID)
	http.Redirect(w, r, s.uiURL+"/chats/"+sessionID, http.StatusFound)
}

func (s *Server) fetchTitle(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "URL is required"})
		return
	}
	title, err := linktitle.Fetch(r.Context(), s.client, target)
	if err != nil {
		s.log.Warn("title lookup failed", "url", target, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch title"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"title": title})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
