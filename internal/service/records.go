// records.go — сервис страниц ресурсов.
// Применяет область видимости к критериям, запрашивает backend
// и отбрасывает записи чужих отделений для ограниченной области.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sitfuturz/newAdminCircle-sub000/internal/apiclient"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/model"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/resource"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/scope"
)

var scopeDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rc_scope_dropped_records_total",
	Help: "Записи чужих отделений, отброшенные из ответа backend.",
}, []string{"resource"})

// PageFunc получает одну страницу ресурса по критериям консоли.
// Совместим с listview.Fetcher и export.PageFetcher.
type PageFunc = func(ctx context.Context, criteria model.FilterCriteria) (*model.Page[model.Record], error)

// RecordService — сервис страниц ресурсов.
type RecordService struct {
	client      *apiclient.Client
	catalog     *resource.Catalog
	pageSize    int
	maxPageSize int
	logger      *slog.Logger
}

// NewRecordService создаёт сервис страниц ресурсов.
func NewRecordService(
	client *apiclient.Client,
	catalog *resource.Catalog,
	pageSize, maxPageSize int,
	logger *slog.Logger,
) *RecordService {
	return &RecordService{
		client:      client,
		catalog:     catalog,
		pageSize:    pageSize,
		maxPageSize: maxPageSize,
		logger:      logger.With(slog.String("component", "record_service")),
	}
}

// Resources возвращает каталог ресурсов.
func (s *RecordService) Resources() []*resource.Resource {
	return s.catalog.All()
}

// Resource возвращает ресурс по имени.
func (s *RecordService) Resource(name string) (*resource.Resource, error) {
	res, err := s.catalog.Get(name)
	if err != nil {
		if errors.Is(err, resource.ErrUnknown) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownResource, name)
		}
		return nil, err
	}
	return res, nil
}

// PageSize возвращает размер страницы по умолчанию.
func (s *RecordService) PageSize() int {
	return s.pageSize
}

// MaxPageSize возвращает максимальный размер страницы, запрашиваемый клиентом.
func (s *RecordService) MaxPageSize() int {
	return s.maxPageSize
}

// Criteria строит критерии из параметров запроса.
// page = 0 и limit = 0 означают значения по умолчанию.
// Фильтр, не поддерживаемый ресурсом, — ErrValidation.
func (s *RecordService) Criteria(res *resource.Resource, page, limit int, filters map[string]string) (model.FilterCriteria, error) {
	if page < 0 {
		return model.FilterCriteria{}, fmt.Errorf("%w: page должен быть >= 1", ErrValidation)
	}
	if limit < 0 || limit > s.maxPageSize {
		return model.FilterCriteria{}, fmt.Errorf("%w: limit должен быть от 1 до %d", ErrValidation, s.maxPageSize)
	}
	if page == 0 {
		page = model.DefaultPage
	}
	if limit == 0 {
		limit = s.pageSize
	}

	c := model.NewCriteria(page, limit)
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if !res.Allows(k) {
			return model.FilterCriteria{}, fmt.Errorf("%w: фильтр %q не поддерживается ресурсом %s", ErrValidation, k, res.Name)
		}
		c.Set(k, filters[k])
	}
	return c, nil
}

// Page возвращает страницу ресурса в пределах области видимости.
// Ограниченная область без отделения получает пустую страницу без запроса к backend.
func (s *RecordService) Page(
	ctx context.Context,
	sc scope.Scope,
	res *resource.Resource,
	criteria model.FilterCriteria,
) (*model.Page[model.Record], apiclient.Meta, error) {
	criteria = sc.Apply(criteria)
	criteria.Normalize()

	if sc.Closed() {
		s.logger.Debug("Область видимости без отделения — запрос не выполняется",
			slog.String("resource", res.Name),
			slog.String("role", sc.Role),
		)
		return model.EmptyPage[model.Record](criteria.Limit), apiclient.Meta{}, nil
	}

	page, meta, err := s.client.FetchRecords(ctx, res.Endpoint(), res.BackendCriteria(criteria))
	if err != nil {
		return nil, nil, err
	}
	s.guard(sc, res, page)
	return page, meta, nil
}

// PageFunc возвращает функцию получения страниц с фиксированной областью.
func (s *RecordService) PageFunc(sc scope.Scope, res *resource.Resource) PageFunc {
	return func(ctx context.Context, criteria model.FilterCriteria) (*model.Page[model.Record], error) {
		page, _, err := s.Page(ctx, sc, res, criteria)
		return page, err
	}
}

// guard удаляет из страницы записи чужих отделений.
// Записи без распознаваемого отделения сохраняются: backend уже
// отфильтровал их по параметру отделения.
func (s *RecordService) guard(sc scope.Scope, res *resource.Resource, page *model.Page[model.Record]) {
	if !sc.Restricted() || !res.ChapterScoped() {
		return
	}

	kept := page.Docs[:0]
	dropped := 0
	for _, rec := range page.Docs {
		chapter := res.ChapterOf(rec)
		if chapter != "" && !sc.Allows(chapter) {
			dropped++
			continue
		}
		kept = append(kept, rec)
	}
	page.Docs = kept

	if dropped > 0 {
		scopeDroppedTotal.WithLabelValues(res.Name).Add(float64(dropped))
		s.logger.Warn("Backend вернул записи чужого отделения",
			slog.String("resource", res.Name),
			slog.String("chapter", sc.Chapter),
			slog.Int("dropped", dropped),
		)
	}
}
