// main.go — точка входа сервиса проверки аккаунтов.
// Команды: serve (по умолчанию) — HTTP API; check <username> — разовая проверка из консоли.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bigkaa/rbxverifier/internal/blacklist"
	"github.com/bigkaa/rbxverifier/internal/config"
	"github.com/bigkaa/rbxverifier/internal/platform"
	"github.com/bigkaa/rbxverifier/internal/rules"
	"github.com/bigkaa/rbxverifier/internal/service"
)

var rootCmd = &cobra.Command{
	Use:           "rbx-verifier",
	Short:         "Проверка аккаунтов платформы по настраиваемым правилам",
	Version:       config.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd, checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Ошибка:", err)
		os.Exit(1)
	}
}

// app — собранные компоненты, общие для serve и check.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   *platform.Client
	verifier *service.Verifier
	kafka    *service.KafkaSink
}

// buildApp загружает конфигурацию и правила и собирает оркестратор.
// Ошибка в документе правил фатальна.
func buildApp() (*app, error) {
	// 1. Конфигурация из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("загрузка конфигурации: %w", err)
	}

	// 2. Логгер
	logger := config.SetupLogger(cfg)

	// 3. Документ правил
	params, err := rules.LoadFile(cfg.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("загрузка правил %s: %w", cfg.RulesPath, err)
	}
	logger.Info("Правила загружены",
		slog.String("path", cfg.RulesPath),
		slog.Any("summary", params.Summary()),
	)

	// 4. Клиент API платформы (с кэшем, если включён)
	client := platform.New(platform.Endpoints{
		Users:   cfg.UsersAPIURL,
		Friends: cfg.FriendsAPIURL,
		Groups:  cfg.GroupsAPIURL,
		Badges:  cfg.BadgesAPIURL,
	}, cfg.APITimeout, logger)

	var source service.Platform = client
	if cfg.CacheEnabled() {
		source = service.NewCachedSource(client, cfg.CacheSize, cfg.CacheTTL)
		logger.Info("Кэш ответов платформы включён",
			slog.Int("size", cfg.CacheSize),
			slog.Duration("ttl", cfg.CacheTTL),
		)
	}

	// 5. Дополнительный чёрный список
	fetcher := blacklist.NewFetcher(cfg.BlacklistTrustedHost, cfg.BlacklistRedirectDomains,
		cfg.BlacklistAllowHTTP, cfg.APITimeout, logger)

	// 6. Приёмники событий: лог и, если заданы брокеры, Kafka
	a := &app{cfg: cfg, logger: logger, client: client}
	sinks := service.MultiSink{service.NewSlogSink(logger)}
	if len(cfg.KafkaBrokers) > 0 {
		a.kafka, err = service.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			return nil, fmt.Errorf("создание Kafka sink: %w", err)
		}
		sinks = append(sinks, a.kafka)
		logger.Info("Публикация результатов в Kafka включена",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.String("topic", cfg.KafkaTopic),
		)
	}

	a.verifier = service.NewVerifier(source, fetcher, params, sinks, logger)
	return a, nil
}

// close освобождает ресурсы приложения.
func (a *app) close() {
	if a.kafka == nil {
		return
	}
	if err := a.kafka.Close(); err != nil {
		a.logger.Warn("Ошибка закрытия Kafka writer", slog.String("error", err.Error()))
	}
}
