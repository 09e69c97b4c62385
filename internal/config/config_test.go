package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// setEnvs устанавливает переменные окружения на время теста.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 8040 {
		t.Errorf("Port = %d, ожидается 8040", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидается json", cfg.LogFormat)
	}
	if cfg.RulesPath != "config.json" {
		t.Errorf("RulesPath = %q, ожидается config.json", cfg.RulesPath)
	}
	if cfg.APITimeout != 12*time.Second {
		t.Errorf("APITimeout = %v, ожидается 12s", cfg.APITimeout)
	}
	if cfg.UsersAPIURL != "https://users.roblox.com" {
		t.Errorf("UsersAPIURL = %q", cfg.UsersAPIURL)
	}
	if cfg.BlacklistTrustedHost != "docs.google.com" || cfg.BlacklistAllowHTTP {
		t.Errorf("чёрный список: host=%q allowHTTP=%v", cfg.BlacklistTrustedHost, cfg.BlacklistAllowHTTP)
	}
	if !cmp.Equal(cfg.BlacklistRedirectDomains, []string{"googleusercontent.com"}) {
		t.Errorf("BlacklistRedirectDomains = %v", cfg.BlacklistRedirectDomains)
	}
	if cfg.CacheSize != 1000 || cfg.CacheTTL != 5*time.Minute || !cfg.CacheEnabled() {
		t.Errorf("кэш: size=%d ttl=%v", cfg.CacheSize, cfg.CacheTTL)
	}
	if cfg.AuthEnabled() {
		t.Error("аутентификация должна быть выключена без RV_JWKS_URL")
	}
	if cfg.KafkaBrokers != nil || cfg.KafkaTopic != "verification.completed" {
		t.Errorf("kafka: brokers=%v topic=%q", cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	if !cfg.DephealthEnabled || cfg.DephealthGroup != ServiceName || cfg.DephealthCheckInterval != 30*time.Second {
		t.Errorf("dephealth: enabled=%v group=%q interval=%v",
			cfg.DephealthEnabled, cfg.DephealthGroup, cfg.DephealthCheckInterval)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 5s", cfg.ShutdownTimeout)
	}
}

func TestLoad_Overrides(t *testing.T) {
	setEnvs(t, map[string]string{
		"RV_PORT":                       "9000",
		"RV_LOG_LEVEL":                  "debug",
		"RV_LOG_FORMAT":                 "text",
		"RV_RULES_PATH":                 "/etc/rv/rules.yaml",
		"RV_USERS_API_URL":              "http://localhost:9999",
		"RV_API_TIMEOUT":                "3s",
		"RV_BLACKLIST_TRUSTED_HOST":     "Sheets.Example.COM",
		"RV_BLACKLIST_ALLOW_HTTP":       "true",
		"RV_BLACKLIST_REDIRECT_DOMAINS": "",
		"RV_CACHE_TTL":                  "0",
		"RV_JWKS_URL":                   "https://kc.example.com/realms/rv/protocol/openid-connect/certs",
		"RV_JWT_REQUIRED_ROLE":          "verifier",
		"RV_KAFKA_BROKERS":              "kafka-1:9092, kafka-2:9092,",
		"RV_DEPHEALTH_ENABLED":          "false",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 9000 || cfg.LogLevel != slog.LevelDebug || cfg.LogFormat != "text" {
		t.Errorf("сервер: port=%d level=%v format=%q", cfg.Port, cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.RulesPath != "/etc/rv/rules.yaml" {
		t.Errorf("RulesPath = %q", cfg.RulesPath)
	}
	if cfg.UsersAPIURL != "http://localhost:9999" || cfg.APITimeout != 3*time.Second {
		t.Errorf("API: url=%q timeout=%v", cfg.UsersAPIURL, cfg.APITimeout)
	}
	if cfg.BlacklistTrustedHost != "sheets.example.com" || !cfg.BlacklistAllowHTTP {
		t.Errorf("чёрный список: host=%q allowHTTP=%v", cfg.BlacklistTrustedHost, cfg.BlacklistAllowHTTP)
	}
	if len(cfg.BlacklistRedirectDomains) != 0 {
		t.Errorf("пустой RV_BLACKLIST_REDIRECT_DOMAINS должен запрещать редиректы: %v", cfg.BlacklistRedirectDomains)
	}
	if cfg.CacheEnabled() {
		t.Error("RV_CACHE_TTL=0 должен выключать кэш")
	}
	if !cfg.AuthEnabled() || cfg.JWTRequiredRole != "verifier" {
		t.Errorf("JWT: enabled=%v role=%q", cfg.AuthEnabled(), cfg.JWTRequiredRole)
	}
	if diff := cmp.Diff([]string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers); diff != "" {
		t.Errorf("KafkaBrokers (-want +got):\n%s", diff)
	}
	if cfg.DephealthEnabled {
		t.Error("DephealthEnabled = true, ожидается false")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"порт не число", "RV_PORT", "abc"},
		{"порт вне диапазона", "RV_PORT", "70000"},
		{"уровень логирования", "RV_LOG_LEVEL", "verbose"},
		{"формат логов", "RV_LOG_FORMAT", "xml"},
		{"длительность", "RV_API_TIMEOUT", "12"},
		{"нулевой таймаут", "RV_API_TIMEOUT", "0s"},
		{"относительный URL", "RV_GROUPS_API_URL", "groups.roblox.com"},
		{"булево", "RV_BLACKLIST_ALLOW_HTTP", "yes"},
		{"размер кэша", "RV_CACHE_SIZE", "0"},
		{"отрицательный TTL", "RV_CACHE_TTL", "-1s"},
		{"JWKS URL", "RV_JWKS_URL", "not a url"},
		{"dephealth", "RV_DEPHEALTH_ENABLED", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Errorf("%s=%q: ожидалась ошибка", tt.key, tt.val)
			}
		})
	}
}

func TestParseCSV(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{" a , ,b ", []string{"a", "b"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, parseCSV(tt.in)); diff != "" {
			t.Errorf("parseCSV(%q) (-want +got):\n%s", tt.in, diff)
		}
	}
}
