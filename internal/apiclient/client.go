// Пакет apiclient — HTTP-клиент к REST backend организации.
// Превращает критерии фильтрации в один запрос (GET — query string,
// POST — JSON body) и нормализует ответ в канонический Page[T].
// Клиент не показывает пользователю ничего: ошибки возвращаются как *FetchError.
package apiclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/model"
)

// Prometheus-метрики запросов к backend.
var (
	backendRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rc_backend_requests_total",
		Help: "Количество запросов к backend по endpoint и статусу",
	}, []string{"endpoint", "status"})

	backendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rc_backend_request_duration_seconds",
		Help:    "Длительность запросов к backend в секундах",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)

// Максимальный размер тела ошибки, сохраняемого в FetchError.
const maxErrorBody = 512

// TokenProvider возвращает bearer-токен для запроса к backend.
type TokenProvider func(ctx context.Context) (string, error)

// Endpoint — адрес ресурса backend и способ передачи критериев.
type Endpoint struct {
	// Name — имя endpoint в реестре конвертов.
	Name string
	// Path — путь относительно базового URL backend.
	Path string
	// Method — http.MethodGet (query string) или http.MethodPost (JSON body).
	Method string
}

// Client — HTTP-клиент backend.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	tokenProvider TokenProvider
	registry      *Registry
	logger        *slog.Logger
}

// New создаёт клиент backend.
// httpClient может быть nil — тогда используется клиент с таймаутом 30s.
// tokenProvider может быть nil — запросы уходят без Authorization.
func New(
	baseURL string,
	httpClient *http.Client,
	registry *Registry,
	tokenProvider TokenProvider,
	logger *slog.Logger,
) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    httpClient,
		tokenProvider: tokenProvider,
		registry:      registry,
		logger:        logger.With(slog.String("component", "backend_client")),
	}
}

// NewHTTPClient создаёт HTTP-клиент с таймаутом и, при необходимости,
// кастомным CA-сертификатом.
func NewHTTPClient(caCertPath string, timeout time.Duration) (*http.Client, error) {
	client := &http.Client{Timeout: timeout}
	if caCertPath == "" {
		return client, nil
	}

	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("CA-сертификат %s не содержит PEM-блоков", caCertPath)
	}

	client.Transport = &http.Transport{
		TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12},
	}
	return client, nil
}

// Registry возвращает реестр конвертов клиента.
func (c *Client) Registry() *Registry {
	return c.registry
}

// BaseURL возвращает базовый URL backend.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Fetch запрашивает одну страницу endpoint и приводит её к Page[T].
// Соседние со страницей поля ответа возвращаются в Meta.
func Fetch[T any](ctx context.Context, c *Client, ep Endpoint, criteria model.FilterCriteria) (*model.Page[T], Meta, error) {
	criteria.Normalize()

	body, err := c.do(ctx, ep, criteria)
	if err != nil {
		return nil, nil, err
	}

	env, _ := c.registry.Lookup(ep.Name)
	raw, meta, err := env.Unwrap(body)
	if err != nil {
		return nil, nil, &FetchError{Endpoint: ep.Name, Kind: ErrDecode, Err: err}
	}

	page, err := decodePage[T](raw, criteria.Page, criteria.Limit)
	if err != nil {
		return nil, nil, &FetchError{Endpoint: ep.Name, Kind: ErrDecode, Err: err}
	}

	c.logger.Debug("Страница получена",
		slog.String("endpoint", ep.Name),
		slog.Int("page", page.Page),
		slog.Int("limit", page.Limit),
		slog.Int("docs", len(page.Docs)),
		slog.Int("total_docs", page.TotalDocs),
	)
	return page, meta, nil
}

// FetchRecords — Fetch для записей без фиксированной схемы.
func (c *Client) FetchRecords(ctx context.Context, ep Endpoint, criteria model.FilterCriteria) (*model.Page[model.Record], Meta, error) {
	return Fetch[model.Record](ctx, c, ep, criteria)
}

// do выполняет HTTP-запрос и возвращает тело успешного ответа.
func (c *Client) do(ctx context.Context, ep Endpoint, criteria model.FilterCriteria) ([]byte, error) {
	req, err := c.newRequest(ctx, ep, criteria)
	if err != nil {
		return nil, &FetchError{Endpoint: ep.Name, Kind: ErrTransport, Err: err}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	backendRequestDuration.WithLabelValues(ep.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		backendRequestsTotal.WithLabelValues(ep.Name, "error").Inc()
		return nil, &FetchError{Endpoint: ep.Name, Kind: ErrTransport, Err: err}
	}
	defer resp.Body.Close()

	backendRequestsTotal.WithLabelValues(ep.Name, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Endpoint: ep.Name, Kind: ErrTransport, Err: fmt.Errorf("чтение ответа: %w", err)}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		msg := truncateBody(body, maxErrorBody)
		c.logger.Warn("Backend вернул ошибку",
			slog.String("endpoint", ep.Name),
			slog.Int("status", resp.StatusCode),
		)
		return nil, &FetchError{Endpoint: ep.Name, Kind: ErrStatus, StatusCode: resp.StatusCode, Body: msg}
	}

	return body, nil
}

// newRequest собирает HTTP-запрос: GET — критерии в query string,
// POST — в JSON body. Незаданные фильтры не передаются.
func (c *Client) newRequest(ctx context.Context, ep Endpoint, criteria model.FilterCriteria) (*http.Request, error) {
	method := ep.Method
	if method == "" {
		method = http.MethodGet
	}
	reqURL := c.baseURL + "/" + strings.TrimLeft(ep.Path, "/")

	var req *http.Request
	var err error
	switch method {
	case http.MethodGet:
		q := EncodeQuery(criteria)
		req, err = http.NewRequestWithContext(ctx, method, reqURL+"?"+q.Encode(), nil)
	case http.MethodPost:
		var payload []byte
		payload, err = EncodeBody(criteria)
		if err != nil {
			return nil, err
		}
		req, err = http.NewRequestWithContext(ctx, method, reqURL, bytes.NewReader(payload))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	default:
		return nil, fmt.Errorf("неподдерживаемый метод %s для endpoint %s", method, ep.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if c.tokenProvider != nil {
		token, err := c.tokenProvider(ctx)
		if err != nil {
			return nil, fmt.Errorf("получение токена backend: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req, nil
}

// EncodeQuery сериализует критерии в query string.
func EncodeQuery(criteria model.FilterCriteria) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(criteria.Page))
	q.Set("limit", strconv.Itoa(criteria.Limit))
	for _, k := range criteria.Keys() {
		v, _ := criteria.Get(k)
		q.Set(k, v)
	}
	return q
}

// EncodeBody сериализует критерии в JSON body.
func EncodeBody(criteria model.FilterCriteria) ([]byte, error) {
	body := make(map[string]any, len(criteria.Keys())+2)
	body["page"] = criteria.Page
	body["limit"] = criteria.Limit
	for k, v := range criteria.Filters() {
		body[k] = v
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("сериализация критериев: %w", err)
	}
	return data, nil
}

// truncateBody обрезает тело ответа до n байт по границе руны
// и заменяет невалидные последовательности UTF-8.
func truncateBody(body []byte, n int) string {
	if len(body) > n {
		body = body[:n]
		// хвост разрезанной руны — не больше UTFMax-1 байт
		for i := 0; i < utf8.UTFMax-1 && len(body) > 0; i++ {
			if r, size := utf8.DecodeLastRune(body); r != utf8.RuneError || size != 1 {
				break
			}
			body = body[:len(body)-1]
		}
	}
	return strings.ToValidUTF8(string(body), "\uFFFD")
}
