// views.go — реестр живых списочных представлений.
// Представление живёт на сервере: фильтры применяются с debounce,
// изменения рассылаются подписчикам (SSE). Реестр — LRU с TTL;
// вытеснение закрывает представление.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/model"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/resource"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/scope"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/listview"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/session"
)

var viewsOpen = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "rc_views_open",
	Help: "Открытые списочные представления.",
})

// ViewEntry — представление в реестре.
type ViewEntry struct {
	ID        string
	Owner     string
	Resource  *resource.Resource
	View      *listview.View[model.Record]
	CreatedAt time.Time
}

// ViewService — реестр представлений.
type ViewService struct {
	records  *RecordService
	views    *expirable.LRU[string, *ViewEntry]
	debounce time.Duration
	clock    listview.Clock
	logger   *slog.Logger
}

// NewViewService создаёт реестр не более чем на maxViews представлений.
// Представление, к которому не обращались дольше ttl, закрывается.
func NewViewService(
	records *RecordService,
	maxViews int,
	ttl time.Duration,
	debounce time.Duration,
	logger *slog.Logger,
) *ViewService {
	s := &ViewService{
		records:  records,
		debounce: debounce,
		clock:    listview.RealClock{},
		logger:   logger.With(slog.String("component", "view_service")),
	}
	s.views = expirable.NewLRU[string, *ViewEntry](maxViews, s.evicted, ttl)
	return s
}

// evicted закрывает вытесненное представление.
func (s *ViewService) evicted(id string, entry *ViewEntry) {
	entry.View.Close()
	viewsOpen.Dec()
	s.logger.Debug("Представление закрыто",
		slog.String("view_id", id),
		slog.String("resource", entry.Resource.Name),
	)
}

// Create открывает представление ресурса для сессии store и запрашивает
// первую страницу. Область видимости вычисляется один раз.
func (s *ViewService) Create(
	store session.Store,
	resourceName string,
	filters map[string]string,
	limit int,
) (*ViewEntry, error) {
	res, err := s.records.Resource(resourceName)
	if err != nil {
		return nil, err
	}
	// проверка фильтров и лимита
	if _, err := s.records.Criteria(res, 0, limit, filters); err != nil {
		return nil, err
	}
	if limit == 0 {
		limit = s.records.PageSize()
	}

	sc, resErr := scope.TryResolve(store)
	if resErr != nil {
		s.logger.Debug("Сессия не разобрана — самая узкая область",
			slog.String("error", resErr.Error()),
		)
	}

	fetch := s.records.PageFunc(sc, res)
	entry := &ViewEntry{
		ID:        uuid.New().String(),
		Owner:     sc.Actor,
		Resource:  res,
		CreatedAt: s.clock.Now(),
	}
	entry.View = listview.New(listview.Config[model.Record]{
		Name:  res.Name,
		Scope: sc,
		Fetch: func(ctx context.Context, c model.FilterCriteria) (*model.Page[model.Record], error) {
			return fetch(session.WithStore(ctx, store), c)
		},
		Filters:  filters,
		Limit:    limit,
		Debounce: s.debounce,
		Clock:    s.clock,
		Logger:   s.logger,
	})

	s.views.Add(entry.ID, entry)
	viewsOpen.Inc()
	entry.View.Refresh()

	s.logger.Info("Представление открыто",
		slog.String("view_id", entry.ID),
		slog.String("resource", res.Name),
		slog.String("actor", sc.Actor),
		slog.String("chapter", sc.Chapter),
	)
	return entry, nil
}

// Get возвращает представление владельца owner и продлевает его TTL.
// Чужое представление считается ненайденным.
func (s *ViewService) Get(id, owner string) (*ViewEntry, error) {
	entry, ok := s.views.Get(id)
	if !ok || entry.Owner != owner {
		return nil, fmt.Errorf("%w: представление %s", ErrNotFound, id)
	}
	s.views.Add(id, entry)
	return entry, nil
}

// Filter применяет патч фильтра с debounce. Недопустимый ключ — ErrValidation.
func (s *ViewService) Filter(id, owner string, patch map[string]string) (*ViewEntry, error) {
	entry, err := s.Get(id, owner)
	if err != nil {
		return nil, err
	}
	if _, err := s.records.Criteria(entry.Resource, 0, 0, patch); err != nil {
		return nil, err
	}
	entry.View.SetFilter(patch)
	return entry, nil
}

// SetPage переходит на страницу n.
func (s *ViewService) SetPage(id, owner string, n int) (*ViewEntry, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: номер страницы должен быть >= 1", ErrValidation)
	}
	entry, err := s.Get(id, owner)
	if err != nil {
		return nil, err
	}
	entry.View.SetPage(n)
	return entry, nil
}

// Reset возвращает фильтры по умолчанию.
func (s *ViewService) Reset(id, owner string) (*ViewEntry, error) {
	entry, err := s.Get(id, owner)
	if err != nil {
		return nil, err
	}
	entry.View.Reset()
	return entry, nil
}

// Delete закрывает представление.
func (s *ViewService) Delete(id, owner string) error {
	if _, err := s.Get(id, owner); err != nil {
		return err
	}
	if !s.views.Remove(id) {
		return fmt.Errorf("%w: представление %s", ErrNotFound, id)
	}
	return nil
}

// Len возвращает число открытых представлений.
func (s *ViewService) Len() int {
	return s.views.Len()
}

// Close закрывает все представления.
func (s *ViewService) Close() {
	s.views.Purge()
}
