package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/bigkaa/rbxverifier/internal/api/handlers"
	"github.com/bigkaa/rbxverifier/internal/api/middleware"
	"github.com/bigkaa/rbxverifier/internal/config"
	"github.com/bigkaa/rbxverifier/internal/server"
	"github.com/bigkaa/rbxverifier/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Запустить HTTP API проверки",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	cfg, logger := a.cfg, a.logger
	logger.Info("Сервис проверки запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// Мониторинг зависимостей. Сбой topologymetrics не мешает запуску.
	var platformChecker handlers.ReadinessChecker
	if cfg.DephealthEnabled {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		dh, dhErr := service.NewDephealthService(config.ServiceName, cfg.DephealthGroup,
			a.client.Endpoints(), cfg.DephealthCheckInterval, logger)
		switch {
		case dhErr != nil:
			logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
				slog.String("error", dhErr.Error()),
			)
		default:
			if startErr := dh.Start(ctx); startErr != nil {
				logger.Warn("Ошибка запуска topologymetrics",
					slog.String("error", startErr.Error()),
				)
			} else {
				defer dh.Stop()
				platformChecker = handlers.NewPlatformReadinessChecker(dh)
				logger.Info("topologymetrics запущен",
					slog.String("check_interval", cfg.DephealthCheckInterval.String()),
				)
			}
		}
	}

	// JWT (опционально)
	var (
		auth        func(http.Handler) http.Handler
		jwksChecker handlers.ReadinessChecker
	)
	if cfg.AuthEnabled() {
		jwtAuth, err := middleware.NewJWTAuth(cfg.JWKSURL, cfg.JWTIssuer, cfg.JWTRequiredRole,
			cfg.JWKSClientTimeout, cfg.JWKSRefreshInterval, cfg.JWTLeeway, logger)
		if err != nil {
			return fmt.Errorf("создание JWT middleware: %w", err)
		}
		auth = jwtAuth.Middleware()
		jwksChecker = middleware.NewJWKSReadinessChecker(cfg.JWKSURL, cfg.JWKSClientTimeout)
		logger.Info("JWT-аутентификация включена",
			slog.String("jwks_url", cfg.JWKSURL),
			slog.String("required_role", cfg.JWTRequiredRole),
		)
	} else {
		logger.Warn("JWT-аутентификация выключена (RV_JWKS_URL не задан)")
	}

	srv := server.New(cfg, logger, server.Routes{
		Health:       handlers.NewHealthHandler(platformChecker, jwksChecker),
		Verification: handlers.NewVerificationHandler(a.verifier, logger),
		Auth:         auth,
	})

	if err := srv.Run(); err != nil {
		return fmt.Errorf("сервер завершился с ошибкой: %w", err)
	}

	logger.Info("Сервис проверки остановлен")
	return nil
}
