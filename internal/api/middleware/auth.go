// auth.go — JWT middleware для API Referral Console.
// Проверяет подпись токена через JWKS, строит из claims хранилище сессии
// (JSON-блок пользователя и сам токен для запросов к backend)
// и помещает его в контекст запроса.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/sitfuturz/newAdminCircle-sub000/internal/api/errors"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/model"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/scope"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/session"
)

// Ошибки извлечения bearer-токена.
var (
	ErrNoAuthorization  = errors.New("отсутствует заголовок Authorization")
	ErrBadAuthorization = errors.New("неверный формат Authorization: ожидается Bearer <token>")
	ErrInvalidToken     = errors.New("невалидный или просроченный токен")
	ErrMissingSubject   = errors.New("отсутствует sub в токене")
)

// rolePreference — порядок выбора роли из списка в claim.
var rolePreference = []string{scope.RoleSuperAdmin, scope.RoleAdmin, scope.RoleExecutiveDirector}

// defaultJWKSTimeout — таймаут HTTP-клиента JWKS по умолчанию.
const defaultJWKSTimeout = 10 * time.Second

// ClaimPaths — пути к claims роли и отделения (через точку для вложенных).
type ClaimPaths struct {
	Role    string
	Chapter string
}

// JWTAuth — middleware для JWT-аутентификации через JWKS.
type JWTAuth struct {
	jwks   keyfunc.Keyfunc
	paths  ClaimPaths
	issuer string
	leeway time.Duration
	logger *slog.Logger
}

// NewJWTAuth создаёт JWT middleware с JWKS по адресу jwksURL.
// httpClient может быть nil — тогда используется клиент с таймаутом 10s.
func NewJWTAuth(
	jwksURL string,
	httpClient *http.Client,
	issuer string,
	paths ClaimPaths,
	refreshInterval time.Duration,
	leeway time.Duration,
	logger *slog.Logger,
) (*JWTAuth, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultJWKSTimeout}
	}

	// NoErrorReturnFirstHTTPReq — стартуем даже если IdP ещё недоступен.
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           refreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	auth := NewJWTAuthWithKeyfunc(k, issuer, paths, logger)
	auth.leeway = leeway
	return auth, nil
}

// NewJWTAuthWithKeyfunc создаёт JWT middleware с предоставленной keyfunc.
// Используется в тестах для подстановки mock JWKS.
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, issuer string, paths ClaimPaths, logger *slog.Logger) *JWTAuth {
	if paths.Role == "" {
		paths.Role = "role"
	}
	if paths.Chapter == "" {
		paths.Chapter = "chapter"
	}
	return &JWTAuth{
		jwks:   kf,
		paths:  paths,
		issuer: issuer,
		logger: logger.With(slog.String("component", "jwt_auth")),
	}
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := BearerToken(r)
			if err != nil {
				apierrors.Unauthorized(w, err.Error())
				return
			}

			values, err := j.Authenticate(r.Context(), tokenString)
			if err != nil {
				j.logger.Debug("JWT валидация не пройдена",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(session.WithStore(r.Context(), values)))
		})
	}
}

// Authenticate проверяет токен и возвращает значения сессии:
// user — JSON с _id, name, email, role и chapter; token — исходный токен.
func (j *JWTAuth) Authenticate(ctx context.Context, tokenString string) (session.Values, error) {
	claims := jwt.MapClaims{}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(j.leeway),
	}
	if j.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, j.jwks.KeyfuncCtx(ctx), parserOpts...)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, ErrMissingSubject
	}

	user, err := j.userJSON(subject, claims)
	if err != nil {
		return nil, err
	}
	return session.Values{session.KeyUser: user, session.KeyToken: tokenString}, nil
}

// userJSON собирает JSON-блок пользователя в формате, который читает scope.
func (j *JWTAuth) userJSON(subject string, claims jwt.MapClaims) (string, error) {
	doc := model.Record(claims)

	name := doc.String("name")
	if name == "" {
		name = doc.String("preferred_username")
	}

	user := map[string]any{
		"_id":   subject,
		"name":  name,
		"email": doc.String("email"),
	}
	if raw, ok := doc.Lookup(j.paths.Role); ok {
		user["role"] = pickRole(raw)
	}
	// отделение передаётся как есть: строка или объект {"name": ...}
	if raw, ok := doc.Lookup(j.paths.Chapter); ok && raw != nil {
		user["chapter"] = raw
	}

	data, err := json.Marshal(user)
	if err != nil {
		return "", fmt.Errorf("сериализация пользователя: %w", err)
	}
	return string(data), nil
}

// pickRole извлекает роль из claim: строка или список ролей.
// Из списка выбирается самая широкая известная роль, иначе первая.
func pickRole(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case []any:
		roles := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				roles = append(roles, s)
			}
		}
		for _, preferred := range rolePreference {
			if slices.Contains(roles, preferred) {
				return preferred
			}
		}
		if len(roles) > 0 {
			return roles[0]
		}
	}
	return ""
}

// BearerToken извлекает токен из заголовка Authorization.
func BearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrNoAuthorization
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", ErrBadAuthorization
	}
	return parts[1], nil
}

// --- ReadinessChecker для JWKS ---

// JWKSReadinessChecker — проверка доступности JWKS endpoint.
type JWKSReadinessChecker struct {
	jwksURL string
	client  *http.Client
}

// NewJWKSReadinessChecker создаёт checker доступности JWKS.
func NewJWKSReadinessChecker(jwksURL string, timeout time.Duration) *JWKSReadinessChecker {
	return &JWKSReadinessChecker{
		jwksURL: jwksURL,
		client:  &http.Client{Timeout: timeout},
	}
}

const statusFail = "fail"

// CheckReady проверяет, что JWKS endpoint отвечает набором ключей.
func (k *JWKSReadinessChecker) CheckReady() (status, message string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, k.jwksURL, http.NoBody)
	if err != nil {
		return statusFail, "ошибка создания запроса: " + err.Error()
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return statusFail, fmt.Sprintf("JWKS недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusFail, fmt.Sprintf("JWKS вернул статус %d", resp.StatusCode)
	}

	var jwksResp struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwksResp); err != nil {
		return "degraded", fmt.Sprintf("JWKS: невалидный JSON: %v", err)
	}
	if len(jwksResp.Keys) == 0 {
		return "degraded", "JWKS: нет ключей"
	}

	return "ok", fmt.Sprintf("JWKS доступен, ключей: %d", len(jwksResp.Keys))
}
