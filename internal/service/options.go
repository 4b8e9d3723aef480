// options.go — варианты выпадающих фильтров списка.
// Список отделений кэшируется в LRU с TTL (hashicorp/golang-lru/v2/expirable)
// и ограничивается областью видимости вызывающего.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/model"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/resource"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/scope"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/export"
)

// Prometheus-метрики кэша вариантов.
var (
	optionsCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rc_options_cache_hits_total",
		Help: "Попадания в кэш вариантов фильтра.",
	})
	optionsCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rc_options_cache_misses_total",
		Help: "Промахи кэша вариантов фильтра.",
	})
)

const chaptersCacheKey = "chapters"

// Options — варианты фильтров ресурса для вызывающего.
type Options struct {
	Resource      string   `json:"resource"`
	Chapters      []string `json:"chapters"`
	ChapterLocked bool     `json:"chapterLocked"`
	Statuses      []string `json:"statuses"`
	Filters       []string `json:"filters"`
}

// OptionsService — сервис вариантов фильтров.
type OptionsService struct {
	records    *RecordService
	aggregator *export.Aggregator
	cache      *expirable.LRU[string, []string]
	logger     *slog.Logger
}

// NewOptionsService создаёт сервис вариантов с кэшем размера cacheSize и TTL ttl.
func NewOptionsService(
	records *RecordService,
	aggregator *export.Aggregator,
	cacheSize int,
	ttl time.Duration,
	logger *slog.Logger,
) *OptionsService {
	return &OptionsService{
		records:    records,
		aggregator: aggregator,
		cache:      expirable.NewLRU[string, []string](cacheSize, nil, ttl),
		logger:     logger.With(slog.String("component", "options_service")),
	}
}

// Options возвращает варианты фильтров ресурса.
// Для ограниченной области список отделений — только своё отделение,
// и backend не запрашивается.
func (s *OptionsService) Options(ctx context.Context, sc scope.Scope, res *resource.Resource) (*Options, error) {
	opts := &Options{
		Resource:      res.Name,
		Chapters:      []string{},
		ChapterLocked: res.ChapterScoped() && sc.ChapterLocked(),
		Statuses:      slices.Clone(res.StatusOptions),
		Filters:       slices.Clone(res.Filters),
	}
	if opts.Statuses == nil {
		opts.Statuses = []string{}
	}
	if !res.ChapterScoped() {
		return opts, nil
	}
	opts.Filters = append(opts.Filters, model.FilterChapter)

	if sc.Restricted() {
		opts.Chapters = sc.ChapterOptions(nil)
		return opts, nil
	}

	all, err := s.chapters(ctx, sc)
	if err != nil {
		return nil, err
	}
	opts.Chapters = sc.ChapterOptions(all)
	return opts, nil
}

// chapters возвращает отсортированные имена всех отделений.
func (s *OptionsService) chapters(ctx context.Context, sc scope.Scope) ([]string, error) {
	if names, ok := s.cache.Get(chaptersCacheKey); ok {
		optionsCacheHitsTotal.Inc()
		return names, nil
	}
	optionsCacheMissesTotal.Inc()

	res, err := s.records.Resource(resource.Chapters)
	if err != nil {
		return nil, err
	}
	records, err := export.All(ctx, s.aggregator, export.Request[model.Record]{
		Resource: res.Name,
		Criteria: model.NewCriteria(model.DefaultPage, s.aggregator.PageSize()),
		Fetch:    s.records.PageFunc(sc, res),
		Key:      model.Record.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("получение списка отделений: %w", err)
	}

	seen := make(map[string]bool, len(records))
	names := make([]string, 0, len(records))
	for _, rec := range records {
		name := strings.TrimSpace(res.ChapterOf(rec))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})

	s.cache.Add(chaptersCacheKey, names)
	s.logger.Debug("Список отделений обновлён", slog.Int("chapters", len(names)))
	return names, nil
}

// Invalidate сбрасывает кэш вариантов.
func (s *OptionsService) Invalidate() {
	s.cache.Purge()
}
