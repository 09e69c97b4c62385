package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bigkaa/rbxverifier/internal/api/handlers"
	"github.com/bigkaa/rbxverifier/internal/rules"
	"github.com/bigkaa/rbxverifier/internal/service"
)

type nopVerifier struct{ params *rules.Params }

func (v nopVerifier) Verify(context.Context, string, string) (*service.Result, error) {
	return nil, service.ErrUserNotFound
}

func (v nopVerifier) Params() *rules.Params { return v.params }

func newTestRouter(t *testing.T, auth func(http.Handler) http.Handler) http.Handler {
	t.Helper()
	params, err := rules.NewParams(rules.DefaultThresholds(), rules.Sets{}, rules.Labels{})
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(logger, Routes{
		Health:       handlers.NewHealthHandler(nil, nil),
		Verification: handlers.NewVerificationHandler(nopVerifier{params: params}, logger),
		Auth:         auth,
	})
}

// denyAll — middleware, отклоняющий любой запрос.
func denyAll(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
}

func TestRouter_Routes(t *testing.T) {
	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/health/live", "", http.StatusOK},
		{http.MethodGet, "/health/ready", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodGet, "/api/v1/rules/summary", "", http.StatusOK},
		{http.MethodPost, "/api/v1/verifications", `{"username":"ghost"}`, http.StatusNotFound},
		{http.MethodGet, "/api/v1/verifications", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", "", http.StatusNotFound},
	}

	router := newTestRouter(t, nil)
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("ожидался %d, получен %d", tt.want, rec.Code)
			}
		})
	}
}

func TestRouter_AuthOnlyOnAPI(t *testing.T) {
	router := newTestRouter(t, denyAll)

	tests := []struct {
		path string
		want int
	}{
		{"/health/live", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/api/v1/rules/summary", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s: ожидался %d, получен %d", tt.path, tt.want, rec.Code)
		}
	}
}
