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

	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/scope"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/session"
)

const (
	testKeyID  = "test-key-rc"
	testIssuer = "https://idp.test/realms/circle"
)

// generateTestKey генерирует RSA ключ для тестов.
func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
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

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestJWTAuth(t *testing.T, key *rsa.PrivateKey, paths ClaimPaths) *JWTAuth {
	t.Helper()
	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(&key.PublicKey, testKeyID))
	if err != nil {
		t.Fatalf("не удалось создать keyfunc: %v", err)
	}
	return NewJWTAuthWithKeyfunc(kf, testIssuer, paths, testLogger())
}

// signToken подписывает claims; exp/iss/iat добавляются, если не заданы.
func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = jwt.NewNumericDate(time.Now().Add(time.Hour))
	}
	if _, ok := claims["iss"]; !ok {
		claims["iss"] = testIssuer
	}
	claims["iat"] = jwt.NewNumericDate(time.Now())

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// captureScope — обработчик, сохраняющий область видимости и токен запроса.
func captureScope(got *scope.Scope, token *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store := session.FromContext(r.Context())
		*got = scope.Resolve(store)
		*token, _ = store.Get(session.KeyToken)
		w.WriteHeader(http.StatusOK)
	})
}

func TestJWTAuth_Middleware(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key, ClaimPaths{})

	t.Run("участник отделения", func(t *testing.T) {
		tokenStr := signToken(t, key, jwt.MapClaims{
			"sub":     "u-1",
			"email":   "m@example.com",
			"role":    "member",
			"chapter": map[string]any{"name": "Achievers"},
		})
		var got scope.Scope
		var token string
		req := httptest.NewRequest(http.MethodGet, "/api/v1/me/scope", nil)
		req.Header.Set("Authorization", "Bearer "+tokenStr)
		rec := httptest.NewRecorder()

		auth.Middleware()(captureScope(&got, &token)).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("ожидался статус 200, получен %d: %s", rec.Code, rec.Body.String())
		}
		if got.Chapter != "Achievers" || !got.Restricted() {
			t.Errorf("ожидалась ограниченная область Achievers, получено %+v", got)
		}
		if got.Actor != "m@example.com" {
			t.Errorf("ожидался actor m@example.com, получен %q", got.Actor)
		}
		if token != tokenStr {
			t.Error("токен должен попасть в сессию для запросов к backend")
		}
	})

	t.Run("список ролей", func(t *testing.T) {
		tokenStr := signToken(t, key, jwt.MapClaims{
			"sub":  "u-2",
			"role": []string{"member", scope.RoleExecutiveDirector},
		})
		var got scope.Scope
		var token string
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+tokenStr)
		rec := httptest.NewRecorder()

		auth.Middleware()(captureScope(&got, &token)).ServeHTTP(rec, req)

		if !got.IsExecutiveDirector {
			t.Errorf("ожидалась роль executiveDirector, получено %+v", got)
		}
	})

	tests := []struct {
		name   string
		header func() string
	}{
		{"без заголовка", func() string { return "" }},
		{"не Bearer", func() string { return "Basic dXNlcjpwYXNz" }},
		{"мусорный токен", func() string { return "Bearer abc.def.ghi" }},
		{"просроченный", func() string {
			return "Bearer " + signToken(t, key, jwt.MapClaims{
				"sub": "u-3",
				"exp": jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			})
		}},
		{"чужой issuer", func() string {
			return "Bearer " + signToken(t, key, jwt.MapClaims{"sub": "u-4", "iss": "https://evil.test"})
		}},
		{"без sub", func() string {
			return "Bearer " + signToken(t, key, jwt.MapClaims{"email": "x@example.com"})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if h := tt.header(); h != "" {
				req.Header.Set("Authorization", h)
			}
			rec := httptest.NewRecorder()
			called := false
			next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })

			auth.Middleware()(next).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("ожидался статус 401, получен %d", rec.Code)
			}
			if called {
				t.Error("обработчик не должен вызываться")
			}
		})
	}
}

// TestJWTAuth_NestedClaims — роль и отделение во вложенных claims.
func TestJWTAuth_NestedClaims(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key, ClaimPaths{Role: "realm_access.roles", Chapter: "profile.chapter_name"})

	tokenStr := signToken(t, key, jwt.MapClaims{
		"sub":                "u-5",
		"preferred_username": "ravi",
		"realm_access":       map[string]any{"roles": []string{"offline_access", scope.RoleAdmin}},
		"profile":            map[string]any{"chapter_name": "Believers"},
	})

	values, err := auth.Authenticate(t.Context(), tokenStr)
	if err != nil {
		t.Fatalf("Authenticate() вернул ошибку: %v", err)
	}
	sc := scope.Resolve(values)
	if !sc.IsAdmin || sc.Chapter != "Believers" || sc.Actor != "ravi" {
		t.Errorf("неожиданная область: %+v", sc)
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
		{"ключи есть", http.StatusOK, string(jwks), "ok"},
		{"нет ключей", http.StatusOK, `{"keys":[]}`, "degraded"},
		{"ошибка сервера", http.StatusServiceUnavailable, "", "fail"},
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
				t.Errorf("ожидался статус %q, получен %q (%s)", tt.want, status, msg)
			}
		})
	}
}
