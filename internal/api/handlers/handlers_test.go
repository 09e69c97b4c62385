package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bigkaa/rbxverifier/internal/blacklist"
	"github.com/bigkaa/rbxverifier/internal/domain/model"
	"github.com/bigkaa/rbxverifier/internal/rules"
	"github.com/bigkaa/rbxverifier/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubVerifier возвращает заданный результат и запоминает аргументы.
type stubVerifier struct {
	params *rules.Params
	result *service.Result
	err    error

	calls        int
	username     string
	blacklistURL string
}

func (s *stubVerifier) Verify(_ context.Context, username, blacklistURL string) (*service.Result, error) {
	s.calls++
	s.username = username
	s.blacklistURL = blacklistURL
	return s.result, s.err
}

func (s *stubVerifier) Params() *rules.Params {
	return s.params
}

func doVerify(t *testing.T, v *stubVerifier, body string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewVerificationHandler(v, testLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/verifications", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateVerification(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("невалидное тело ошибки: %v", err)
	}
	return body.Error.Code
}

func TestCreateVerification_OK(t *testing.T) {
	fc := 40
	v := &stubVerifier{result: &service.Result{
		RunID:  "run-1",
		Status: model.StatusVerified,
		Report: model.Report{
			UserID:            42,
			Username:          "Tommy",
			InstantDismissals: []string{},
			RedFlags:          []string{},
			GroupCount:        20,
			FriendCount:       &fc,
		},
		Blacklist: service.BlacklistSummary{Outcome: blacklist.OutcomeApplied, Added: 3},
	}}

	rec := doVerify(t, v, `{"username":"  Tommy ","blacklist_url":"https://docs.google.com/x"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d: %s", rec.Code, rec.Body.String())
	}
	if v.username != "Tommy" || v.blacklistURL != "https://docs.google.com/x" {
		t.Errorf("аргументы Verify: %q %q", v.username, v.blacklistURL)
	}

	var got map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got["run_id"] != "run-1" || got["status"] != "VERIFIED" {
		t.Errorf("ответ: %v", got)
	}
	report, _ := got["report"].(map[string]any)
	if report["friend_count"] != float64(40) || report["group_count"] != float64(20) {
		t.Errorf("report: %v", report)
	}
	bl, _ := got["blacklist"].(map[string]any)
	if bl["outcome"] != "applied" || bl["added"] != float64(3) {
		t.Errorf("blacklist: %v", bl)
	}
}

func TestCreateVerification_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"пустое тело", ``},
		{"не JSON", `username=Tommy`},
		{"нет username", `{"blacklist_url":"https://docs.google.com/x"}`},
		{"пробелы вместо username", `{"username":"   "}`},
		{"неизвестное поле", `{"username":"Tommy","extra":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &stubVerifier{}
			rec := doVerify(t, v, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("ожидался 400, получен %d", rec.Code)
			}
			if code := errorCode(t, rec); code != "VALIDATION_ERROR" {
				t.Errorf("code = %q", code)
			}
			if v.calls != 0 {
				t.Error("Verify не должен вызываться")
			}
		})
	}
}

func TestCreateVerification_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"не найден", fmt.Errorf("%w: %q", service.ErrUserNotFound, "ghost"), http.StatusNotFound, "USER_NOT_FOUND"},
		{"платформа недоступна", fmt.Errorf("%w: профиль: 500", service.ErrFetchFailed), http.StatusBadGateway, "UPSTREAM_UNAVAILABLE"},
		{"таймаут", context.DeadlineExceeded, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE"},
		{"прочее", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doVerify(t, &stubVerifier{err: tt.err}, `{"username":"ghost"}`)
			if rec.Code != tt.wantCode {
				t.Errorf("ожидался %d, получен %d", tt.wantCode, rec.Code)
			}
			if code := errorCode(t, rec); code != tt.wantErr {
				t.Errorf("code = %q, ожидается %q", code, tt.wantErr)
			}
		})
	}
}

func TestGetRulesSummary(t *testing.T) {
	params, err := rules.NewParams(rules.DefaultThresholds(), rules.Sets{
		AffiliatedGroupIDs:  []int64{1, 2},
		PrimaryBlacklistIDs: []int64{13},
		NSFWWords:           []string{"a", "A", "b"},
	}, rules.Labels{})
	if err != nil {
		t.Fatal(err)
	}

	h := NewVerificationHandler(&stubVerifier{params: params}, testLogger())
	rec := httptest.NewRecorder()
	h.GetRulesSummary(rec, httptest.NewRequest(http.MethodGet, "/api/v1/rules/summary", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d", rec.Code)
	}
	var got rules.Summary
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.AffiliatedGroupIDs != 2 || got.PrimaryBlacklistIDs != 1 || got.NSFWWords != 2 {
		t.Errorf("сводка: %+v", got)
	}
	if got.Thresholds != rules.DefaultThresholds() {
		t.Errorf("пороги: %+v", got.Thresholds)
	}
}

// --- health ---

type staticChecker struct{ status string }

func (c staticChecker) CheckReady() (string, string) { return c.status, "" }

type staticHealth map[string]bool

func (h staticHealth) Health() map[string]bool { return h }

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name     string
		platform ReadinessChecker
		jwks     ReadinessChecker
		want     string
		wantCode int
	}{
		{"мониторинг выключен", nil, nil, statusOK, http.StatusOK},
		{"всё ok", staticChecker{statusOK}, staticChecker{statusOK}, statusOK, http.StatusOK},
		{"jwks degraded", staticChecker{statusOK}, staticChecker{statusDegraded}, statusDegraded, http.StatusOK},
		{"платформа fail", staticChecker{statusFail}, nil, statusFail, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.platform, tt.jwks)
			rec := httptest.NewRecorder()
			h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("ожидался %d, получен %d", tt.wantCode, rec.Code)
			}
			var resp healthReadyResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != tt.want || resp.Service != "rbx-verifier" {
				t.Errorf("status=%q service=%q", resp.Status, resp.Service)
			}
			if (tt.jwks == nil) != (resp.Checks.JWKS == nil) {
				t.Errorf("проверка JWKS: %+v", resp.Checks.JWKS)
			}
		})
	}
}

func TestHealthLive(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(nil, nil).HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("ожидался 200, получен %d", rec.Code)
	}
}

func TestPlatformReadinessChecker(t *testing.T) {
	tests := []struct {
		name   string
		health staticHealth
		want   string
	}{
		{"ещё не проверялось", staticHealth{}, statusDegraded},
		{"всё ok", staticHealth{
			"platform-users:users.roblox.com:443":     true,
			"platform-groups:groups.roblox.com:443":   true,
			"platform-friends:friends.roblox.com:443": true,
			"platform-badges:badges.roblox.com:443":   true,
		}, statusOK},
		{"badges недоступен", staticHealth{
			"platform-users:users.roblox.com:443":     true,
			"platform-groups:groups.roblox.com:443":   true,
			"platform-friends:friends.roblox.com:443": true,
			"platform-badges:badges.roblox.com:443":   false,
		}, statusDegraded},
		{"users недоступен", staticHealth{
			"platform-users:users.roblox.com:443":     false,
			"platform-groups:groups.roblox.com:443":   true,
			"platform-friends:friends.roblox.com:443": true,
			"platform-badges:badges.roblox.com:443":   true,
		}, statusFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := NewPlatformReadinessChecker(tt.health).CheckReady()
			if status != tt.want {
				t.Errorf("status = %q (%s), ожидается %q", status, msg, tt.want)
			}
		})
	}
}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{nil, statusOK},
		{[]string{statusOK, statusDegraded}, statusDegraded},
		{[]string{statusDegraded, statusFail}, statusFail},
	}
	for _, tt := range tests {
		if got := overallStatus(tt.in...); got != tt.want {
			t.Errorf("overallStatus(%v) = %q, ожидается %q", tt.in, got, tt.want)
		}
	}
}
