package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"signalhub/internal/api/handlers/http/reports"
	"signalhub/internal/api/handlers/http/system"
	"signalhub/internal/config"
	"signalhub/internal/metrics"
	"signalhub/internal/middleware"
	"signalhub/internal/service"
)

type Server struct {
	logger *slog.Logger
	router *chi.Mux
	cfg    config.Config
}

func NewServer(cfg *config.Config, logger *slog.Logger, svc *service.Service, verifier middleware.Verifier, m *metrics.Metrics, checks map[string]system.Check) *Server {
	reportHandler := reports.NewHandler(logger, svc.Reports, svc.Photos, cfg.Photos.MaxBytes)
	systemHandler := system.NewHandler(logger, checks)

	r := InitRouter(reportHandler, systemHandler, verifier, m, logger)

	return &Server{
		logger: logger,
		router: r,
		cfg:    *cfg,
	}
}

func (s *Server) Handler() http.Handler { return s.router }

func InitRouter(reportHandler *reports.Handler, systemHandler *system.Handler, verifier middleware.Verifier, m *metrics.Metrics, logger *slog.Logger) *chi.Mux {
	r := chi.NewMux()

	// request_id must be set before chi's Logger runs
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Logger)
	r.Use(m.Middleware)

	requireAuth := middleware.RequireAuth(verifier, logger)

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/reports", func(rr chi.Router) {
			rr.Get("/", reportHandler.ReportList)
			rr.Get("/stream", reportHandler.ReportStream)
			rr.Get("/{id}", reportHandler.ReportGet)

			rr.Group(func(mr chi.Router) {
				mr.Use(requireAuth)
				mr.Use(middleware.Limit(5, 10, 10*time.Minute, logger))

				mr.Post("/", reportHandler.ReportCreate)
				mr.Put("/{id}", reportHandler.ReportUpdate)
				mr.Patch("/{id}", reportHandler.ReportUpdate)
				mr.Delete("/{id}", reportHandler.ReportDelete)
			})
		})

		api.Group(func(ar chi.Router) {
			ar.Use(requireAuth)

			ar.With(middleware.Limit(2, 5, 10*time.Minute, logger)).
				Post("/photos", reportHandler.PhotoUpload)
			ar.Get("/me", reportHandler.Me)
		})

		api.Get("/health", systemHandler.SystemHealth)
	})

	r.Handle("/metrics", m.Handler())

	return r
}

func (s *Server) Run(ctx context.Context) error {
	port := s.cfg.Http.Port
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	srv := &http.Server{
		Addr:         port,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Http.ReadTimeout,
		WriteTimeout: s.cfg.Http.WriteTimeout,
		IdleTimeout:  30 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("🚀 Starting HTTP server",
			slog.String("addr", srv.Addr),
			slog.Duration("read_timeout", s.cfg.Http.ReadTimeout),
			slog.Duration("write_timeout", s.cfg.Http.WriteTimeout),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("ListenAndServe error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("🛑 Shutting down HTTP server", slog.String("reason", ctx.Err().Error()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Http.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Server shutdown failed", slog.Any("error", err))
			return err
		}
		return nil

	case err := <-errChan:
		return err
	}
}
