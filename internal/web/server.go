package web

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hpungsan/herd/internal/campaign"
	"github.com/hpungsan/herd/internal/config"
	"github.com/hpungsan/herd/internal/sink"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Deps are the services the dashboard drives.
type Deps struct {
	Manager *campaign.Manager
	Board   *sink.Board
	Logger  *slog.Logger
}

// NewServer creates and configures the HTTP server for the Herd dashboard.
func NewServer(db *sql.DB, cfg *config.Config, deps Deps, version, addr string) (*http.Server, error) {
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, err
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handlers{
		db:       db,
		cfg:      cfg,
		manager:  deps.Manager,
		board:    deps.Board,
		renderer: NewRenderer(templateSub, version, logger),
	}

	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(h, staticSub),
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// NewRouter wires the dashboard routes.
func NewRouter(h *Handlers, static fs.FS) http.Handler {
	r := chi.NewRouter()
	r.Use(securityHeaders)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/campaigns", http.StatusFound)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		renderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/campaigns", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleStart)
		r.Get("/{id}", h.HandleDetail)
		r.Post("/{id}/stop", h.HandleStop)
	})
	r.Get("/tokens", h.HandleTokens)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(static)))

	return r
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run serves srv until ctx ends, then shuts it down gracefully.
func Run(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("dashboard running", "module", "web", "url", "http://"+srv.Addr)
	if strings.HasPrefix(srv.Addr, "0.0.0.0") || strings.HasPrefix(srv.Addr, ":") || strings.Contains(srv.Addr, "::") {
		logger.Warn("dashboard is binding to all interfaces and may be accessible from the network", "module", "web")
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("dashboard shutting down", "module", "web")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
