// Package server exposes the analysis pipeline and stored results over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/scopelabs/scopeintel/internal/db/gorm"
	"github.com/scopelabs/scopeintel/pkg/models"
)

// Runner executes one analysis and persists it.
type Runner interface {
	Run(ctx context.Context, system string, periodDays int) (*models.AnalysisResult, uint, error)
}

// RunStore reads persisted analyses.
type RunStore interface {
	ListRuns(ctx context.Context, system string, limit int) ([]gorm.RunSummary, error)
	GetRun(ctx context.Context, id uint) (*models.AnalysisResult, error)
}

// Service is the HTTP API server.
type Service struct {
	addr       string
	version    string
	runner     Runner
	store      RunStore
	router     chi.Router
	log        zerolog.Logger
	periodDays int
	startTime  time.Time
}

// Options configures the service.
type Options struct {
	Addr              string
	Version           string
	DefaultPeriodDays int
}

// NewService builds the service and wires its routes.
func NewService(runner Runner, store RunStore, opts Options, log zerolog.Logger) *Service {
	svc := &Service{
		addr:       opts.Addr,
		version:    opts.Version,
		runner:     runner,
		store:      store,
		router:     chi.NewRouter(),
		log:        log.With().Str("component", "server").Logger(),
		periodDays: opts.DefaultPeriodDays,
		startTime:  time.Now(),
	}
	svc.setupRoutes()
	return svc
}

func (s *Service) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLogger)

	s.router.Get("/health", s.handleHealth)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/analyses", s.handleListAnalyses)
		r.Get("/analyses/{id}", s.handleGetAnalysis)
		r.Post("/analyses", s.handleCreateAnalysis)
	})
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (s *Service) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Service) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
