// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Сервис мониторит четыре API платформы HTTP checker'ом:
//   - users, groups — critical: без них прогон невозможен (ErrUserNotFound / ErrFetchFailed)
//   - friends, badges — non-critical: их сбой только ухудшает данные social-правил
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
package service

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bigkaa/rbxverifier/internal/platform"
)

// platformHealthPath — путь проверки API платформы.
const platformHealthPath = "/"

// Имена зависимостей в метриках и в Health().
const (
	DepUsers   = "platform-users"
	DepGroups  = "platform-groups"
	DepFriends = "platform-friends"
	DepBadges  = "platform-badges"
)

// CriticalDependencies — зависимости, без которых прогон невозможен.
var CriticalDependencies = []string{DepUsers, DepGroups}

// OptionalDependencies — зависимости, сбой которых только ухудшает данные social-правил.
var OptionalDependencies = []string{DepFriends, DepBadges}

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга API платформы.
// Метрики регистрируются в глобальном Prometheus registry.
//
// Параметры:
//   - serviceID — имя вершины графа текущего приложения (e.g. "rbx-verifier")
//   - group — имя группы в метриках (RV_DEPHEALTH_GROUP)
//   - endpoints — базовые URL API платформы
//   - checkInterval — интервал проверки (RV_DEPHEALTH_CHECK_INTERVAL)
func NewDephealthService(
	serviceID string,
	group string,
	endpoints platform.Endpoints,
	checkInterval time.Duration,
	logger *slog.Logger,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, endpoints, checkInterval, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	serviceID string,
	group string,
	endpoints platform.Endpoints,
	checkInterval time.Duration,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, endpoints, checkInterval, logger,
		dephealth.WithRegisterer(registerer))
}

func newDephealthService(
	serviceID string,
	group string,
	endpoints platform.Endpoints,
	checkInterval time.Duration,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*DephealthService, error) {
	deps := []struct {
		name     string
		url      string
		critical bool
	}{
		{DepUsers, endpoints.Users, true},
		{DepGroups, endpoints.Groups, true},
		{DepFriends, endpoints.Friends, false},
		{DepBadges, endpoints.Badges, false},
	}

	opts := make([]dephealth.Option, 0, 1+len(deps)+len(extraOpts))
	opts = append(opts, dephealth.WithLogger(logger))
	for _, d := range deps {
		depOpts := []dephealth.DependencyOption{
			dephealth.FromURL(d.url),
			dephealth.WithHTTPHealthPath(platformHealthPath),
			dephealth.CheckInterval(checkInterval),
			dephealth.Critical(d.critical),
		}
		if parsed, err := url.Parse(d.url); err == nil && parsed.Scheme == "https" {
			depOpts = append(depOpts, dephealth.WithHTTPTLSSkipVerify(false))
		}
		opts = append(opts, dephealth.HTTP(d.name, depOpts...))
	}
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(serviceID, group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен (API платформы)")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — "dependency:host:port", значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
