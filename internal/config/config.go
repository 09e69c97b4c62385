// Пакет config — загрузка и валидация конфигурации сервиса проверки аккаунтов
// из переменных окружения (префикс RV_).
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// ServiceName — имя сервиса в логах, health и dephealth.
const ServiceName = "rbx-verifier"

// Config содержит все параметры конфигурации сервиса.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// Таймаут graceful shutdown (по умолчанию 5s)
	ShutdownTimeout time.Duration

	// --- Правила ---

	// Путь к документу правил (JSON или YAML)
	RulesPath string

	// --- API платформы ---

	UsersAPIURL   string
	FriendsAPIURL string
	GroupsAPIURL  string
	BadgesAPIURL  string
	// Таймаут одного запроса к платформе (по умолчанию 12s)
	APITimeout time.Duration

	// --- Дополнительный чёрный список ---

	// Единственный хост, с которого разрешено загружать списки
	BlacklistTrustedHost string
	// Домены, на которые разрешены редиректы при загрузке (вместе с поддоменами)
	BlacklistRedirectDomains []string
	// Разрешить http (только dev/тесты)
	BlacklistAllowHTTP bool

	// --- Кэш ---

	// Максимальное количество записей LRU-кэша ответов платформы
	CacheSize int
	// TTL записи; 0 — кэш выключен
	CacheTTL time.Duration

	// --- JWT (опционально) ---

	// URL JWKS; пустой — аутентификация выключена
	JWKSURL             string
	JWTIssuer           string
	JWTRequiredRole     string
	JWKSClientTimeout   time.Duration
	JWKSRefreshInterval time.Duration
	JWTLeeway           time.Duration

	// --- Kafka (опционально) ---

	// Брокеры; пустой список — публикация выключена
	KafkaBrokers []string
	KafkaTopic   string

	// --- dephealth ---

	DephealthEnabled       bool
	DephealthGroup         string
	DephealthCheckInterval time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку с именем переменной, если значение некорректно.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("RV_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("RV_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("RV_PORT: значение %d вне диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("RV_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("RV_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("RV_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("RV_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	durations := []struct {
		key string
		dst *time.Duration
		def time.Duration
	}{
		{"RV_HTTP_READ_TIMEOUT", &cfg.HTTPReadTimeout, 30 * time.Second},
		{"RV_HTTP_WRITE_TIMEOUT", &cfg.HTTPWriteTimeout, 60 * time.Second},
		{"RV_HTTP_IDLE_TIMEOUT", &cfg.HTTPIdleTimeout, 120 * time.Second},
		{"RV_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout, 5 * time.Second},
		{"RV_API_TIMEOUT", &cfg.APITimeout, 12 * time.Second},
		{"RV_JWKS_CLIENT_TIMEOUT", &cfg.JWKSClientTimeout, 10 * time.Second},
		{"RV_JWKS_REFRESH_INTERVAL", &cfg.JWKSRefreshInterval, 15 * time.Minute},
		{"RV_DEPHEALTH_CHECK_INTERVAL", &cfg.DephealthCheckInterval, 30 * time.Second},
	}
	for _, d := range durations {
		*d.dst, err = getEnvPositiveDuration(d.key, d.def)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
	}

	// --- Правила ---

	cfg.RulesPath = getEnvDefault("RV_RULES_PATH", "config.json")

	// --- API платформы ---

	apis := []struct {
		key string
		dst *string
		def string
	}{
		{"RV_USERS_API_URL", &cfg.UsersAPIURL, "https://users.roblox.com"},
		{"RV_FRIENDS_API_URL", &cfg.FriendsAPIURL, "https://friends.roblox.com"},
		{"RV_GROUPS_API_URL", &cfg.GroupsAPIURL, "https://groups.roblox.com"},
		{"RV_BADGES_API_URL", &cfg.BadgesAPIURL, "https://badges.roblox.com"},
	}
	for _, a := range apis {
		*a.dst = getEnvDefault(a.key, a.def)
		if err := validateBaseURL(*a.dst); err != nil {
			return nil, fmt.Errorf("%s: %w", a.key, err)
		}
	}

	// --- Дополнительный чёрный список ---

	cfg.BlacklistTrustedHost = strings.ToLower(getEnvDefault("RV_BLACKLIST_TRUSTED_HOST", "docs.google.com"))
	// Пустое значение запрещает любые редиректы.
	redirectDomains := "googleusercontent.com"
	if v, ok := os.LookupEnv("RV_BLACKLIST_REDIRECT_DOMAINS"); ok {
		redirectDomains = v
	}
	cfg.BlacklistRedirectDomains = parseCSV(strings.ToLower(redirectDomains))
	cfg.BlacklistAllowHTTP, err = getEnvBool("RV_BLACKLIST_ALLOW_HTTP", false)
	if err != nil {
		return nil, fmt.Errorf("RV_BLACKLIST_ALLOW_HTTP: %w", err)
	}

	// --- Кэш ---

	cfg.CacheSize, err = getEnvInt("RV_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("RV_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize <= 0 {
		return nil, fmt.Errorf("RV_CACHE_SIZE: значение должно быть > 0")
	}

	cfg.CacheTTL, err = getEnvDuration("RV_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("RV_CACHE_TTL: %w", err)
	}
	if cfg.CacheTTL < 0 {
		return nil, fmt.Errorf("RV_CACHE_TTL: значение должно быть >= 0")
	}

	// --- JWT ---

	cfg.JWKSURL = os.Getenv("RV_JWKS_URL")
	cfg.JWTIssuer = os.Getenv("RV_JWT_ISSUER")
	cfg.JWTRequiredRole = os.Getenv("RV_JWT_REQUIRED_ROLE")
	cfg.JWTLeeway, err = getEnvDuration("RV_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RV_JWT_LEEWAY: %w", err)
	}
	if cfg.JWKSURL != "" {
		if err := validateBaseURL(cfg.JWKSURL); err != nil {
			return nil, fmt.Errorf("RV_JWKS_URL: %w", err)
		}
	}

	// --- Kafka ---

	cfg.KafkaBrokers = parseCSV(os.Getenv("RV_KAFKA_BROKERS"))
	cfg.KafkaTopic = getEnvDefault("RV_KAFKA_TOPIC", "verification.completed")

	// --- dephealth ---

	cfg.DephealthEnabled, err = getEnvBool("RV_DEPHEALTH_ENABLED", true)
	if err != nil {
		return nil, fmt.Errorf("RV_DEPHEALTH_ENABLED: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("RV_DEPHEALTH_GROUP", ServiceName)

	return cfg, nil
}

// AuthEnabled сообщает, включена ли JWT-аутентификация.
func (c *Config) AuthEnabled() bool {
	return c.JWKSURL != ""
}

// CacheEnabled сообщает, включён ли кэш ответов платформы.
func (c *Config) CacheEnabled() bool {
	return c.CacheTTL > 0
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// getEnvPositiveDuration — как getEnvDuration, но значение должно быть > 0.
func getEnvPositiveDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("значение должно быть > 0")
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// validateBaseURL проверяет абсолютный http(s) URL.
func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("некорректный URL %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("ожидается абсолютный http(s) URL, получено %q", raw)
	}
	return nil
}
