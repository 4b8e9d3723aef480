// Пакет export — сбор полного отфильтрованного набора записей
// постраничным обходом backend.
// Аккумулятор принадлежит одному вызову All: параллельные экспорты независимы.
// Ошибка любой страницы отменяет экспорт целиком, частичный результат
// не возвращается.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/model"
)

// Значения по умолчанию.
const (
	DefaultPageSize = 500
	DefaultMaxPages = 1000
)

// ErrTooManyPages — превышен лимит страниц одного экспорта.
var ErrTooManyPages = errors.New("превышен лимит страниц экспорта")

var exportPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rc_export_pages_fetched_total",
	Help: "Количество страниц, полученных при экспорте",
}, []string{"resource"})

// AggregationError — экспорт прерван на странице Page.
type AggregationError struct {
	Resource string
	Page     int
	Err      error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("экспорт %s: страница %d: %v", e.Resource, e.Page, e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }

// PageFetcher получает одну страницу по критериям.
type PageFetcher[T any] func(ctx context.Context, criteria model.FilterCriteria) (*model.Page[T], error)

// Request — параметры одного экспорта.
type Request[T any] struct {
	// Resource — имя ресурса для логов и метрик.
	Resource string
	// Criteria — критерии фильтра; страница и лимит игнорируются.
	Criteria model.FilterCriteria
	Fetch    PageFetcher[T]
	// Key — ключ записи для устранения дубликатов при сдвиге страниц
	// на backend. nil — без устранения.
	Key func(T) string
	// SingleLimit — если > 0, запрашивается одна страница с этим limit.
	// Если backend урежет limit, обход продолжится по hasNextPage.
	SingleLimit int
}

// Aggregator — настройки постраничного обхода.
type Aggregator struct {
	pageSize int
	maxPages int
	logger   *slog.Logger
}

// NewAggregator создаёт Aggregator. Неположительные значения заменяются
// значениями по умолчанию.
func NewAggregator(pageSize, maxPages int, logger *slog.Logger) *Aggregator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &Aggregator{
		pageSize: pageSize,
		maxPages: maxPages,
		logger:   logger.With(slog.String("component", "export_aggregator")),
	}
}

// PageSize возвращает размер страницы обхода.
func (a *Aggregator) PageSize() int {
	return a.pageSize
}

// All собирает все записи, начиная с page=1, пока backend сообщает
// hasNextPage и собрано меньше totalDocs первой страницы.
func All[T any](ctx context.Context, a *Aggregator, req Request[T]) ([]T, error) {
	limit := a.pageSize
	if req.SingleLimit > 0 {
		limit = req.SingleLimit
	}
	base := req.Criteria.WithLimit(limit)

	var (
		out      []T
		seen     map[string]struct{}
		expected int
		dups     int
	)
	if req.Key != nil {
		seen = make(map[string]struct{})
	}

	for page := 1; ; page++ {
		if page > a.maxPages {
			return nil, &AggregationError{Resource: req.Resource, Page: page, Err: ErrTooManyPages}
		}
		if err := ctx.Err(); err != nil {
			return nil, &AggregationError{Resource: req.Resource, Page: page, Err: err}
		}

		p, err := req.Fetch(ctx, base.WithPage(page))
		if err != nil {
			a.logger.Warn("Экспорт прерван",
				slog.String("resource", req.Resource),
				slog.Int("page", page),
				slog.String("error", err.Error()),
			)
			return nil, &AggregationError{Resource: req.Resource, Page: page, Err: err}
		}
		exportPagesTotal.WithLabelValues(req.Resource).Inc()

		if page == 1 {
			expected = p.TotalDocs
			// totalDocs приходит от backend, ёмкость ограничена пределом обхода
			out = make([]T, 0, max(min(expected, limit*a.maxPages), 0))
		}

		for _, doc := range p.Docs {
			if seen != nil {
				k := req.Key(doc)
				if k != "" {
					if _, dup := seen[k]; dup {
						dups++
						continue
					}
					seen[k] = struct{}{}
				}
			}
			out = append(out, doc)
		}

		if len(p.Docs) == 0 || !p.HasNextPage || len(out) >= expected {
			break
		}
	}

	if len(out) != expected || dups > 0 {
		// набор изменился на backend во время обхода
		a.logger.Warn("Число записей экспорта не совпало с totalDocs",
			slog.String("resource", req.Resource),
			slog.Int("expected", expected),
			slog.Int("collected", len(out)),
			slog.Int("duplicates", dups),
		)
	}

	a.logger.Debug("Экспорт собран",
		slog.String("resource", req.Resource),
		slog.Int("records", len(out)),
	)
	return out, nil
}
