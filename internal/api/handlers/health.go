// health.go — обработчики health endpoints.
// /health/live — проверка живости (процесс жив)
// /health/ready — проверка готовности (API платформы и, если включён, JWKS)
// /metrics — Prometheus метрики
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/rbxverifier/internal/config"
	"github.com/bigkaa/rbxverifier/internal/service"
)

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status, message string)
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	platformChecker ReadinessChecker
	jwksChecker     ReadinessChecker
	promHandler     http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// platformChecker — состояние API платформы (nil — мониторинг выключен, считается ok).
// jwksChecker — доступность JWKS (nil — аутентификация выключена, проверка не выводится).
func NewHealthHandler(platformChecker, jwksChecker ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		platformChecker: platformChecker,
		jwksChecker:     jwksChecker,
		promHandler:     promhttp.Handler(),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

type healthReadyResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
	Checks    struct {
		Platform healthCheckResult  `json:"platform"`
		JWKS     *healthCheckResult `json:"jwks,omitempty"`
	} `json:"checks"`
}

// HealthLive — проверка живости. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthLiveResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   config.ServiceName,
	})
}

// HealthReady — проверка готовности.
// Возвращает 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   config.ServiceName,
	}

	statuses := make([]string, 0, 2)

	if h.platformChecker != nil {
		st, msg := h.platformChecker.CheckReady()
		resp.Checks.Platform = healthCheckResult{Status: st, Message: msg}
	} else {
		resp.Checks.Platform = healthCheckResult{Status: statusOK, Message: "мониторинг зависимостей выключен"}
	}
	statuses = append(statuses, resp.Checks.Platform.Status)

	if h.jwksChecker != nil {
		st, msg := h.jwksChecker.CheckReady()
		resp.Checks.JWKS = &healthCheckResult{Status: st, Message: msg}
		statuses = append(statuses, st)
	}

	resp.Status = overallStatus(statuses...)

	code := http.StatusOK
	if resp.Status == statusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// Константы статусов health check.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// overallStatus определяет итоговый статус из статусов зависимостей.
// Если хотя бы одна зависимость fail — итог fail.
// Если хотя бы одна degraded — итог degraded.
// Иначе — ok.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == statusFail {
			return statusFail
		}
		if s == statusDegraded {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return statusDegraded
	}
	return statusOK
}

// --- ReadinessChecker для API платформы ---

// DependencyHealth — источник состояния зависимостей (service.DephealthService).
type DependencyHealth interface {
	Health() map[string]bool
}

// PlatformReadinessChecker сводит состояние API платформы в один статус:
// сбой critical-зависимости — fail, сбой остальных — degraded.
type PlatformReadinessChecker struct {
	deps DependencyHealth
}

// NewPlatformReadinessChecker создаёт checker поверх мониторинга зависимостей.
func NewPlatformReadinessChecker(deps DependencyHealth) *PlatformReadinessChecker {
	return &PlatformReadinessChecker{deps: deps}
}

// CheckReady возвращает сводный статус API платформы.
func (c *PlatformReadinessChecker) CheckReady() (status, message string) {
	health := c.deps.Health()
	if len(health) == 0 {
		return statusDegraded, "проверки зависимостей ещё не выполнялись"
	}

	var failed, degraded []string
	for _, name := range service.CriticalDependencies {
		if !findHealthByPrefix(health, name) {
			failed = append(failed, name)
		}
	}
	for _, name := range service.OptionalDependencies {
		if !findHealthByPrefix(health, name) {
			degraded = append(degraded, name)
		}
	}

	switch {
	case len(failed) > 0:
		return statusFail, "недоступны: " + strings.Join(append(failed, degraded...), ", ")
	case len(degraded) > 0:
		return statusDegraded, "недоступны: " + strings.Join(degraded, ", ")
	default:
		return statusOK, "API платформы доступны"
	}
}

// findHealthByPrefix ищет статус зависимости по префиксу имени.
// Health() возвращает ключи формата "dependency:host:port",
// поэтому ищем ключ, начинающийся с имени зависимости + ":".
// Если найдено несколько — возвращает true только если все healthy.
func findHealthByPrefix(health map[string]bool, prefix string) bool {
	found := false
	for key, ok := range health {
		if strings.HasPrefix(key, prefix+":") || key == prefix {
			if !ok {
				return false
			}
			found = true
		}
	}
	return found
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
