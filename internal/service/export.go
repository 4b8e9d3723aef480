// export.go — сервис экспорта отчётов.
// Собирает весь отфильтрованный набор записей, проецирует строки,
// формирует XLSX или PDF в памяти и ведёт журнал экспорта.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/model"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/resource"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/scope"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/export"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/projector"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/report"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/repository"
)

var (
	exportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rc_exports_total",
		Help: "Экспорты по ресурсу, формату и результату.",
	}, []string{"resource", "format", "result"})
	exportDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rc_export_duration_seconds",
		Help:    "Длительность экспорта от первой страницы до готового файла.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"resource", "format"})
	exportRows = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rc_export_rows",
		Help:    "Число строк в файле экспорта.",
		Buckets: prometheus.ExponentialBuckets(10, 4, 7),
	}, []string{"resource"})
)

// ExportResult — готовый файл отчёта.
type ExportResult struct {
	ID          string
	FileName    string
	ContentType string
	Rows        int
	Data        []byte
}

// ExportService — сервис экспорта отчётов.
type ExportService struct {
	records    *RecordService
	aggregator *export.Aggregator
	sink       report.Sink
	history    repository.ExportHistoryRepository
	now        func() time.Time
	logger     *slog.Logger
}

// NewExportService создаёт сервис экспорта.
// history может быть nil — тогда журнал не ведётся.
func NewExportService(
	records *RecordService,
	aggregator *export.Aggregator,
	sink report.Sink,
	history repository.ExportHistoryRepository,
	logger *slog.Logger,
) *ExportService {
	return &ExportService{
		records:    records,
		aggregator: aggregator,
		sink:       sink,
		history:    history,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "export_service")),
	}
}

// Export формирует файл отчёта по всем записям, удовлетворяющим критериям.
// Страница и лимит критериев игнорируются. При ошибке любой страницы
// файл не формируется.
func (s *ExportService) Export(
	ctx context.Context,
	sc scope.Scope,
	res *resource.Resource,
	criteria model.FilterCriteria,
	format report.Format,
) (*ExportResult, error) {
	if format != report.FormatXLSX && format != report.FormatPDF {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	criteria = sc.Apply(criteria)
	started := s.now().UTC()
	chapter, _ := criteria.Get(model.FilterChapter)

	rec := &model.ExportRecord{
		ID:        uuid.New().String(),
		Resource:  res.Name,
		Format:    string(format),
		Actor:     sc.Actor,
		Chapter:   chapter,
		Filters:   criteria.Filters(),
		Status:    model.ExportRunning,
		StartedAt: started,
	}
	s.recordStart(ctx, rec)

	result, err := s.build(ctx, sc, res, criteria, format, started)
	finished := s.now().UTC()
	rec.FinishedAt = &finished
	exportDuration.WithLabelValues(res.Name, string(format)).Observe(finished.Sub(started).Seconds())

	if err != nil {
		exportsTotal.WithLabelValues(res.Name, string(format), "error").Inc()
		rec.Status = model.ExportFailed
		rec.Error = err.Error()
		s.recordFinish(ctx, rec)
		s.logger.Error("Ошибка экспорта",
			slog.String("export_id", rec.ID),
			slog.String("resource", res.Name),
			slog.String("actor", sc.Actor),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	exportsTotal.WithLabelValues(res.Name, string(format), "ok").Inc()
	exportRows.WithLabelValues(res.Name).Observe(float64(result.Rows))
	result.ID = rec.ID
	rec.Status = model.ExportCompleted
	rec.RowCount = result.Rows
	rec.FileName = result.FileName
	s.recordFinish(ctx, rec)

	s.logger.Info("Экспорт выполнен",
		slog.String("export_id", rec.ID),
		slog.String("resource", res.Name),
		slog.String("format", string(format)),
		slog.String("actor", sc.Actor),
		slog.Int("rows", result.Rows),
	)
	return result, nil
}

// build собирает записи и формирует файл.
func (s *ExportService) build(
	ctx context.Context,
	sc scope.Scope,
	res *resource.Resource,
	criteria model.FilterCriteria,
	format report.Format,
	generatedAt time.Time,
) (*ExportResult, error) {
	var records []model.Record
	if !sc.Closed() {
		var err error
		records, err = export.All(ctx, s.aggregator, export.Request[model.Record]{
			Resource:    res.Name,
			Criteria:    criteria,
			Fetch:       s.records.PageFunc(sc, res),
			Key:         model.Record.ID,
			SingleLimit: res.ExportLimit,
		})
		if err != nil {
			return nil, err
		}
	}

	doc := report.Document{
		Title:        res.Title,
		Subtitle:     subtitle(criteria),
		FileNameBase: res.FileNameBase,
		Columns:      res.Columns,
		Rows:         projector.ProjectAll(records, res.Columns),
		GeneratedAt:  generatedAt,
	}

	var buf bytes.Buffer
	if err := report.Write(s.sink, &buf, format, doc); err != nil {
		if errors.Is(err, report.ErrUnsupportedFormat) {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
		}
		return nil, fmt.Errorf("формирование отчёта %s: %w", res.Name, err)
	}

	return &ExportResult{
		FileName:    doc.FileName(format),
		ContentType: format.ContentType(),
		Rows:        len(doc.Rows),
		Data:        buf.Bytes(),
	}, nil
}

// subtitle описывает применённые фильтры.
func subtitle(c model.FilterCriteria) string {
	keys := c.Keys()
	if len(keys) == 0 {
		return "All records"
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, _ := c.Get(k)
		parts = append(parts, k+": "+v)
	}
	return strings.Join(parts, "  |  ")
}

// recordStart сохраняет начало экспорта. Ошибка журнала не прерывает экспорт.
func (s *ExportService) recordStart(ctx context.Context, rec *model.ExportRecord) {
	if s.history == nil {
		return
	}
	if err := s.history.Create(ctx, rec); err != nil {
		s.logger.Warn("Не удалось записать начало экспорта в журнал",
			slog.String("export_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
}

// recordFinish сохраняет результат экспорта. Контекст запроса может быть
// уже отменён, поэтому используется отдельный таймаут.
func (s *ExportService) recordFinish(ctx context.Context, rec *model.ExportRecord) {
	if s.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.history.Finish(ctx, rec); err != nil {
		s.logger.Warn("Не удалось записать результат экспорта в журнал",
			slog.String("export_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
}

// History возвращает страницу журнала экспорта в пределах области видимости.
// Ограниченная область видит только экспорты своего отделения.
func (s *ExportService) History(
	ctx context.Context,
	sc scope.Scope,
	filters repository.ExportListFilters,
	page, limit int,
) (*model.Page[*model.ExportRecord], error) {
	if page <= 0 {
		page = model.DefaultPage
	}
	if limit <= 0 {
		limit = s.records.PageSize()
	}
	if sc.Closed() || s.history == nil {
		return model.EmptyPage[*model.ExportRecord](limit), nil
	}
	if sc.Restricted() {
		filters.Chapter = sc.Chapter
	}

	items, err := s.history.List(ctx, filters, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("получение журнала экспорта: %w", err)
	}
	total, err := s.history.Count(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("подсчёт журнала экспорта: %w", err)
	}
	return model.NewPage(items, total, page, limit), nil
}

// HistoryEntry возвращает одну запись журнала. Запись чужого отделения
// для ограниченной области считается ненайденной.
func (s *ExportService) HistoryEntry(ctx context.Context, sc scope.Scope, id string) (*model.ExportRecord, error) {
	if s.history == nil {
		return nil, ErrNotFound
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: некорректный идентификатор экспорта %q", ErrValidation, id)
	}
	rec, err := s.history.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение записи журнала: %w", err)
	}
	if sc.Restricted() && !sc.Allows(rec.Chapter) {
		return nil, ErrNotFound
	}
	return rec, nil
}
