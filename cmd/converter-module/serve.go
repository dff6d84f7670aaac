package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/goartstore/converter-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/converter-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/converter-module/internal/api/openapi"
	"github.com/bigkaa/goartstore/converter-module/internal/config"
	"github.com/bigkaa/goartstore/converter-module/internal/server"
	"github.com/bigkaa/goartstore/converter-module/internal/service"
)

func newServeCommand(cc *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP API и фоновую очистку",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cc)
		},
	}
}

// runServe собирает компоненты, запускает HTTP-сервер и очистку
// и ждёт SIGINT/SIGTERM.
func runServe(ctx context.Context, cc *cliContext) error {
	cfg := cc.cfg
	logger := config.SetupLogger(cfg)
	logger.Info("Converter Module запускается",
		slog.String("service_id", cfg.ServiceID),
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("incoming_dir", cfg.IncomingDir),
		slog.String("converted_dir", cfg.ConvertedDir),
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cc.fs, cfg, logger)
	if err != nil {
		return err
	}

	// OpenAPI-контракт: отдаётся клиентам и проверяет входящие запросы
	doc, err := openapi.Load(ctx)
	if err != nil {
		return err
	}
	requestValidator, err := middleware.RequestValidator(doc)
	if err != nil {
		return err
	}
	opts := server.Options{Validator: requestValidator}

	if cfg.JWKSUrl != "" {
		auth, err := middleware.NewJWTAuth(middleware.JWTAuthConfig{
			JWKSURL:         cfg.JWKSUrl,
			CACertPath:      cfg.JWKSCACert,
			TLSSkipVerify:   cfg.TLSSkipVerify,
			ClientTimeout:   cfg.JWKSClientTimeout,
			RefreshInterval: cfg.JWKSRefreshInterval,
			JWTLeeway:       cfg.JWTLeeway,
		}, logger)
		if err != nil {
			return fmt.Errorf("инициализация JWT: %w", err)
		}
		opts.Auth = auth

		dephealthSvc := startDephealth(ctx, cfg, logger)
		if dephealthSvc != nil {
			defer dephealthSvc.Stop()
		}
	} else {
		logger.Warn("CM_JWKS_URL не задан, эндпоинты обслуживания доступны без аутентификации")
	}

	h := handlers.Handlers{
		Health:      handlers.NewHealthHandler(cfg.ServiceID, a.incoming, a.converted, a.engine),
		Formats:     handlers.NewFormatsHandler(a.engine),
		Conversions: handlers.NewConversionsHandler(a.conversion, a.validator, a.incoming, logger),
		Files:       handlers.NewFilesHandler(a.converted, logger),
		Maintenance: handlers.NewMaintenanceHandler(a.sweeper),
	}
	srv := server.New(cfg, logger, h, opts)

	g, gctx := errgroup.WithContext(ctx)

	a.sweeper.Start(gctx)
	g.Go(func() error {
		<-gctx.Done()
		a.sweeper.Stop()
		return nil
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		return err
	}
	logger.Info("Converter Module остановлен")
	return nil
}

// startDephealth запускает мониторинг JWKS endpoint.
// Ошибки не фатальны: сервис работает без мониторинга зависимостей.
func startDephealth(ctx context.Context, cfg *config.Config, logger *slog.Logger) *service.DephealthService {
	name := cfg.DephealthName
	if name == "" {
		name = cfg.ServiceID
	}

	svc, err := service.NewDephealthService(service.DephealthConfig{
		Name:          name,
		Group:         cfg.DephealthGroup,
		DepName:       cfg.DephealthDepName,
		URL:           cfg.JWKSUrl,
		CheckInterval: cfg.DephealthCheckInterval,
		TLSSkipVerify: cfg.TLSSkipVerify,
	}, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if err := svc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
		return nil
	}

	logger.Info("topologymetrics запущен",
		slog.String("jwks_url", cfg.JWKSUrl),
		slog.String("check_interval", cfg.DephealthCheckInterval.String()),
	)
	return svc
}
