// Пакет server — HTTP-сервер Converter Module с TLS и graceful shutdown.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/goartstore/converter-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/converter-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/converter-module/internal/config"
)

// Server — HTTP-сервер Converter Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// Options — необязательные компоненты сервера.
type Options struct {
	// Auth — JWT-аутентификация эндпоинтов обслуживания (nil — без защиты)
	Auth *middleware.JWTAuth
	// Validator — проверка запросов по OpenAPI-контракту (nil — без проверки)
	Validator func(http.Handler) http.Handler
}

// New создаёт HTTP-сервер с настроенными маршрутами и middleware.
func New(cfg *config.Config, logger *slog.Logger, h handlers.Handlers, opts Options) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(logger, h, opts),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	if cfg.TLSCert != "" && cfg.TLSKey != "" {
		srv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "http_server")),
		cfg:        cfg,
	}
}

// NewRouter собирает chi-маршрутизатор со всеми эндпоинтами.
func NewRouter(logger *slog.Logger, h handlers.Handlers, opts Options) chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		if opts.Validator != nil {
			r.Use(opts.Validator)
		}

		r.Get("/openapi.yaml", handlers.OpenAPISpec)

		r.Get("/formats", h.Formats.List)
		r.Get("/formats/{ext}", h.Formats.Get)
		r.Get("/formats/{ext}/targets", h.Formats.Targets)
		r.Get("/capabilities", h.Formats.Capabilities)

		r.Post("/validations", h.Conversions.Validate)
		r.Post("/conversions", h.Conversions.Create)
		r.Get("/conversions/{id}", h.Conversions.Get)

		r.Get("/files/{name}", h.Files.Download)

		r.Group(func(r chi.Router) {
			if opts.Auth != nil {
				r.Use(opts.Auth.Protect(middleware.ScopeAdmin))
			}
			r.Post("/maintenance/sweep", h.Maintenance.Sweep)
		})
	})

	return router
}

// Run запускает сервер и блокируется до отмены ctx или ошибки сервера.
// При отмене ctx выполняется graceful shutdown с таймаутом CM_SHUTDOWN_TIMEOUT.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	tlsEnabled := s.cfg.TLSCert != "" && s.cfg.TLSKey != ""

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
			slog.Bool("tls", tlsEnabled),
		)

		var err error
		if tlsEnabled {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Получен сигнал завершения")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
