package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// testKeyID — идентификатор ключа для тестов.
const testKeyID = "test-key"

func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func generateTestToken(t *testing.T, key *rsa.PrivateKey, claims tokenClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// buildJWKSetJSON строит JWKS JSON из RSA публичного ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}
	data, _ := json.Marshal(jwks)
	return data
}

func newTestJWTAuth(t *testing.T, key *rsa.PrivateKey, requiredRole string) *JWTAuth {
	t.Helper()
	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(&key.PublicKey, testKeyID))
	if err != nil {
		t.Fatalf("не удалось создать keyfunc из JWKS JSON: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewJWTAuthWithKeyfunc(kf, requiredRole, logger)
}

func validClaims(sub string, roles ...string) tokenClaims {
	return tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		PreferredUsername: "moderator",
		RealmAccess:       &realmAccess{Roles: roles},
	}
}

func serve(auth *JWTAuth, authHeader string, next http.HandlerFunc) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/verifications", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	auth.Middleware()(next).ServeHTTP(rec, req)
	return rec
}

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestJWTAuth_ValidToken(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key, "")

	var got *AuthClaims
	rec := serve(auth, "Bearer "+generateTestToken(t, key, validClaims("user-1", "verifier")),
		func(w http.ResponseWriter, r *http.Request) {
			got = ClaimsFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		})

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d: %s", rec.Code, rec.Body.String())
	}
	if got == nil || got.Subject != "user-1" || got.PreferredUsername != "moderator" || !got.HasRole("verifier") {
		t.Errorf("неожиданные claims: %+v", got)
	}
}

func TestJWTAuth_Rejections(t *testing.T) {
	key := generateTestKey(t)
	otherKey := generateTestKey(t)
	auth := newTestJWTAuth(t, key, "")

	expired := validClaims("user-1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	noExp := validClaims("user-1")
	noExp.ExpiresAt = nil
	noSub := validClaims("")

	tests := []struct {
		name   string
		header string
	}{
		{"нет заголовка", ""},
		{"не Bearer", "Basic dXNlcjpwYXNz"},
		{"пустой токен", "Bearer "},
		{"мусор", "Bearer not.a.jwt"},
		{"просрочен", "Bearer " + generateTestToken(t, key, expired)},
		{"без exp", "Bearer " + generateTestToken(t, key, noExp)},
		{"чужой ключ", "Bearer " + generateTestToken(t, otherKey, validClaims("user-1"))},
		{"без sub", "Bearer " + generateTestToken(t, key, noSub)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(auth, tt.header, func(http.ResponseWriter, *http.Request) {
				t.Error("обработчик не должен вызываться")
			})
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("ожидался 401, получен %d", rec.Code)
			}
		})
	}
}

func TestJWTAuth_RequiredRole(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key, "verifier")

	tests := []struct {
		name  string
		roles []string
		want  int
	}{
		{"есть роль", []string{"offline_access", "verifier"}, http.StatusOK},
		{"нет роли", []string{"offline_access"}, http.StatusForbidden},
		{"нет ролей", nil, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := generateTestToken(t, key, validClaims("user-1", tt.roles...))
			rec := serve(auth, "Bearer "+token, okHandler)
			if rec.Code != tt.want {
				t.Errorf("ожидался %d, получен %d", tt.want, rec.Code)
			}
		})
	}
}

func TestSubjectFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if sub := SubjectFromContext(req.Context()); sub != "" {
		t.Errorf("ожидалась пустая строка, получено %q", sub)
	}
}

func TestJWKSReadinessChecker(t *testing.T) {
	key := generateTestKey(t)
	jwks := buildJWKSetJSON(&key.PublicKey, testKeyID)

	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"ok", http.StatusOK, string(jwks), "ok"},
		{"нет ключей", http.StatusOK, `{"keys":[]}`, "degraded"},
		{"невалидный JSON", http.StatusOK, `{`, "degraded"},
		{"ошибка сервера", http.StatusInternalServerError, ``, "fail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			status, msg := NewJWKSReadinessChecker(srv.URL, time.Second).CheckReady()
			if status != tt.want {
				t.Errorf("status = %q (%s), ожидается %q", status, msg, tt.want)
			}
		})
	}
}
