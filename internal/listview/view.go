// Пакет listview — состояние одного списочного представления:
// критерии фильтра, курсор страницы, последняя полученная страница.
//
// SetFilter откладывает запрос на интервал debounce (trailing edge, каждый
// вызов перезапускает таймер, страница сбрасывается на 1). SetPage, SetLimit,
// Reset и Refresh запрашивают сразу. Каждый запрос получает возрастающий
// номер; ответ с номером меньше последнего выданного отбрасывается.
// При ошибке представление сохраняет последнюю успешную страницу.
package listview

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/model"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/scope"
)

// DefaultDebounce — интервал debounce по умолчанию.
const DefaultDebounce = 400 * time.Millisecond

var (
	staleResponsesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rc_view_stale_responses_total",
		Help: "Количество отброшенных устаревших ответов",
	})

	viewFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rc_view_fetches_total",
		Help: "Количество запросов представлений по результату",
	}, []string{"result"})
)

// State — состояние представления.
type State int

const (
	// StateIdle — запросов нет.
	StateIdle State = iota
	// StatePending — изменение фильтра ожидает истечения debounce.
	StatePending
	// StateFetching — запрос выполняется.
	StateFetching
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFetching:
		return "fetching"
	default:
		return "idle"
	}
}

// Fetcher получает страницу по критериям.
type Fetcher[T any] func(ctx context.Context, criteria model.FilterCriteria) (*model.Page[T], error)

// Config — параметры представления.
type Config[T any] struct {
	Name  string
	Scope scope.Scope
	Fetch Fetcher[T]
	// Filters — начальные фильтры. Reset к ним не возвращает.
	Filters  map[string]string
	Limit    int
	Debounce time.Duration
	Clock    Clock
	Logger   *slog.Logger
}

// Snapshot — копия состояния представления.
type Snapshot[T any] struct {
	State    State
	Criteria model.FilterCriteria
	Page     *model.Page[T]
	Err      error
	// Seq — номер запроса, результат которого отображается.
	Seq uint64
	// Version растёт при каждом изменении состояния.
	Version   uint64
	UpdatedAt time.Time
}

// View — одно списочное представление.
type View[T any] struct {
	name     string
	scope    scope.Scope
	fetch    Fetcher[T]
	debounce time.Duration
	clock    Clock
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	defaults  model.FilterCriteria
	criteria  model.FilterCriteria
	state     State
	timer     Timer
	timerGen  uint64
	issued    uint64
	applied   uint64
	page      *model.Page[T]
	err       error
	version   uint64
	updatedAt time.Time
	subs      map[int]chan Snapshot[T]
	nextSub   int
	closed    bool
	wg        sync.WaitGroup
}

// New создаёт представление с критериями по умолчанию из области видимости.
// Первый запрос выполняется вызовом Refresh.
func New[T any](cfg Config[T]) *View[T] {
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	defaults := cfg.Scope.DefaultCriteria(cfg.Limit)
	initial := defaults.Clone()
	initial.Apply(cfg.Filters)
	v := &View[T]{
		name:     cfg.Name,
		scope:    cfg.Scope,
		fetch:    cfg.Fetch,
		debounce: cfg.Debounce,
		clock:    cfg.Clock,
		logger:   cfg.Logger.With(slog.String("component", "listview"), slog.String("view", cfg.Name)),
		ctx:      ctx,
		cancel:   cancel,
		defaults: defaults,
		criteria: cfg.Scope.Apply(initial),
		page:     model.EmptyPage[T](defaults.Limit),
		subs:     make(map[int]chan Snapshot[T]),
	}
	v.updatedAt = v.clock.Now()
	return v
}

// Name возвращает имя представления (ресурс).
func (v *View[T]) Name() string {
	return v.name
}

// Scope возвращает область видимости представления.
func (v *View[T]) Scope() scope.Scope {
	return v.scope
}

// SetFilter применяет патч фильтра и откладывает запрос на интервал debounce.
// Пустое значение в патче сбрасывает поле. Страница сбрасывается на 1.
func (v *View[T]) SetFilter(patch map[string]string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}

	next := v.criteria.Clone()
	next.Apply(patch)
	next.Page = model.DefaultPage
	v.criteria = v.restrict(next)

	v.stopTimerLocked()
	v.timerGen++
	gen := v.timerGen
	v.timer = v.clock.AfterFunc(v.debounce, func() { v.fire(gen) })
	v.state = StatePending
	v.changedLocked()
}

// SetPage переходит на страницу n без debounce.
func (v *View[T]) SetPage(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.criteria = v.criteria.WithPage(n)
	v.triggerLocked()
}

// SetLimit меняет размер страницы и возвращает на первую страницу.
func (v *View[T]) SetLimit(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.criteria = v.criteria.WithLimit(n).WithPage(model.DefaultPage)
	v.triggerLocked()
}

// Reset возвращает критерии по умолчанию и запрашивает первую страницу.
func (v *View[T]) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.criteria = v.defaults.Clone()
	v.triggerLocked()
}

// Refresh повторяет запрос с текущими критериями.
func (v *View[T]) Refresh() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.triggerLocked()
}

// Snapshot возвращает копию текущего состояния.
func (v *View[T]) Snapshot() Snapshot[T] {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

// Subscribe возвращает канал снимков состояния. В канале хранится только
// последний снимок: медленный подписчик пропускает промежуточные.
// Канал закрывается функцией отписки или Close.
func (v *View[T]) Subscribe() (<-chan Snapshot[T], func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ch := make(chan Snapshot[T], 1)
	if v.closed {
		close(ch)
		return ch, func() {}
	}
	id := v.nextSub
	v.nextSub++
	v.subs[id] = ch
	ch <- v.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			if c, ok := v.subs[id]; ok {
				delete(v.subs, id)
				close(c)
			}
		})
	}
}

// Close останавливает таймер, отменяет выполняющиеся запросы
// и закрывает подписки. Повторный вызов безопасен.
func (v *View[T]) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.stopTimerLocked()
	v.cancel()
	for id, ch := range v.subs {
		delete(v.subs, id)
		close(ch)
	}
	v.mu.Unlock()

	v.wg.Wait()
}

// Closed сообщает, закрыто ли представление.
func (v *View[T]) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

// fire вызывается таймером debounce. Таймер, остановленный или
// заменённый после срабатывания, игнорируется по номеру поколения.
func (v *View[T]) fire(gen uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || v.timer == nil || gen != v.timerGen {
		return
	}
	v.timer = nil
	v.triggerLocked()
}

// restrict применяет область видимости к критериям. Заблокированное
// отделение изменить нельзя.
func (v *View[T]) restrict(c model.FilterCriteria) model.FilterCriteria {
	if v.scope.ChapterLocked() {
		if want, _ := c.Get(model.FilterChapter); want != v.scope.Chapter {
			v.logger.Debug("Фильтр отделения заблокирован областью видимости",
				slog.String("requested", want),
				slog.String("chapter", v.scope.Chapter),
			)
		}
	}
	return v.scope.Apply(c)
}

// triggerLocked выдаёт новый номер запроса и запускает его.
func (v *View[T]) triggerLocked() {
	v.stopTimerLocked()
	v.criteria = v.restrict(v.criteria)

	v.issued++
	seq := v.issued
	criteria := v.criteria.Clone()

	if v.scope.Closed() {
		// ограниченная область без отделения: запрос не выполняется
		v.applyLocked(seq, model.EmptyPage[T](criteria.Limit), nil)
		return
	}

	v.state = StateFetching
	v.changedLocked()

	v.wg.Add(1)
	go v.run(seq, criteria)
}

func (v *View[T]) run(seq uint64, criteria model.FilterCriteria) {
	defer v.wg.Done()
	page, err := v.fetch(v.ctx, criteria)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	if seq != v.issued {
		staleResponsesTotal.Inc()
		v.logger.Debug("Устаревший ответ отброшен",
			slog.Uint64("seq", seq),
			slog.Uint64("latest", v.issued),
		)
		return
	}
	v.applyLocked(seq, page, err)
}

// applyLocked применяет результат последнего запроса.
func (v *View[T]) applyLocked(seq uint64, page *model.Page[T], err error) {
	if err != nil {
		viewFetchesTotal.WithLabelValues("error").Inc()
		v.logger.Warn("Ошибка получения страницы",
			slog.Uint64("seq", seq),
			slog.String("error", err.Error()),
		)
		v.err = err
	} else {
		viewFetchesTotal.WithLabelValues("ok").Inc()
		if page == nil {
			page = model.EmptyPage[T](v.criteria.Limit)
		}
		v.page = page
		v.err = nil
	}
	v.applied = seq

	if v.timer != nil {
		v.state = StatePending
	} else {
		v.state = StateIdle
	}
	v.changedLocked()
}

func (v *View[T]) stopTimerLocked() {
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
}

func (v *View[T]) snapshotLocked() Snapshot[T] {
	return Snapshot[T]{
		State:     v.state,
		Criteria:  v.criteria.Clone(),
		Page:      v.page,
		Err:       v.err,
		Seq:       v.applied,
		Version:   v.version,
		UpdatedAt: v.updatedAt,
	}
}

// changedLocked увеличивает версию и рассылает снимок подписчикам.
func (v *View[T]) changedLocked() {
	v.version++
	v.updatedAt = v.clock.Now()
	snap := v.snapshotLocked()
	for _, ch := range v.subs {
		select {
		case ch <- snap:
		default:
			// заменить непрочитанный снимок последним
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
