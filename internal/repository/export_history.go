package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/model"
)

// ExportListFilters — фильтры журнала экспорта. Пустые поля не применяются.
type ExportListFilters struct {
	Chapter  string
	Resource string
	Actor    string
	Status   model.ExportStatus
}

// ExportHistoryRepository — интерфейс для таблицы export_history.
type ExportHistoryRepository interface {
	// Create сохраняет начатый экспорт.
	Create(ctx context.Context, rec *model.ExportRecord) error
	// Finish фиксирует результат экспорта. Если запись не найдена — ErrNotFound.
	Finish(ctx context.Context, rec *model.ExportRecord) error
	// GetByID возвращает запись. Если не найдена — ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.ExportRecord, error)
	// List возвращает записи, новые первыми.
	List(ctx context.Context, filters ExportListFilters, limit, offset int) ([]*model.ExportRecord, error)
	// Count возвращает число записей по фильтрам.
	Count(ctx context.Context, filters ExportListFilters) (int, error)
}

// exportHistoryRepo — реализация ExportHistoryRepository.
type exportHistoryRepo struct {
	db DBTX
}

// NewExportHistoryRepository создаёт репозиторий журнала экспорта.
func NewExportHistoryRepository(db DBTX) ExportHistoryRepository {
	return &exportHistoryRepo{db: db}
}

const exportColumns = `id, resource, format, actor, chapter, filters, status,
	row_count, file_name, error, started_at, finished_at`

// Create сохраняет начатый экспорт.
func (r *exportHistoryRepo) Create(ctx context.Context, rec *model.ExportRecord) error {
	filters, err := json.Marshal(nonNilFilters(rec.Filters))
	if err != nil {
		return fmt.Errorf("сериализация фильтров экспорта: %w", err)
	}

	query := `
		INSERT INTO export_history (id, resource, format, actor, chapter, filters, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.db.Exec(ctx, query,
		rec.ID, rec.Resource, rec.Format, rec.Actor, rec.Chapter, filters, rec.Status, rec.StartedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("экспорт %s: %w", rec.ID, ErrConflict)
		}
		return fmt.Errorf("ошибка создания export_history[%s]: %w", rec.ID, err)
	}
	return nil
}

// Finish фиксирует статус, число строк, имя файла и ошибку.
func (r *exportHistoryRepo) Finish(ctx context.Context, rec *model.ExportRecord) error {
	query := `
		UPDATE export_history
		SET status = $2, row_count = $3, file_name = $4, error = $5, finished_at = $6
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		rec.ID, rec.Status, rec.RowCount, rec.FileName, rec.Error, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления export_history[%s]: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID возвращает запись по идентификатору.
func (r *exportHistoryRepo) GetByID(ctx context.Context, id string) (*model.ExportRecord, error) {
	query := `SELECT ` + exportColumns + ` FROM export_history WHERE id = $1`

	rec, err := scanExport(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения export_history[%s]: %w", id, err)
	}
	return rec, nil
}

// buildExportWhere формирует WHERE-условие по фильтрам.
func buildExportWhere(filters ExportListFilters, startArg int) (string, []any) {
	var conditions []string
	var args []any
	argNum := startArg

	add := func(column string, value any) {
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, argNum))
		args = append(args, value)
		argNum++
	}
	if filters.Chapter != "" {
		add("chapter", filters.Chapter)
	}
	if filters.Resource != "" {
		add("resource", filters.Resource)
	}
	if filters.Actor != "" {
		add("actor", filters.Actor)
	}
	if filters.Status != "" {
		add("status", string(filters.Status))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args
}

// List возвращает записи с фильтрацией и пагинацией.
func (r *exportHistoryRepo) List(ctx context.Context, filters ExportListFilters, limit, offset int) ([]*model.ExportRecord, error) {
	where, args := buildExportWhere(filters, 1)
	argNum := len(args) + 1

	query := fmt.Sprintf(`
		SELECT %s
		FROM export_history
		%s
		ORDER BY started_at DESC, id
		LIMIT $%d OFFSET $%d`, exportColumns, where, argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка export_history: %w", err)
	}
	defer rows.Close()

	result := []*model.ExportRecord{}
	for rows.Next() {
		rec, err := scanExport(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования export_history: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// Count возвращает число записей по фильтрам.
func (r *exportHistoryRepo) Count(ctx context.Context, filters ExportListFilters) (int, error) {
	where, args := buildExportWhere(filters, 1)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM export_history %s`, where)

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта export_history: %w", err)
	}
	return count, nil
}

func scanExport(row pgx.Row) (*model.ExportRecord, error) {
	rec := &model.ExportRecord{}
	var (
		filters []byte
		status  string
	)
	if err := row.Scan(
		&rec.ID, &rec.Resource, &rec.Format, &rec.Actor, &rec.Chapter, &filters, &status,
		&rec.RowCount, &rec.FileName, &rec.Error, &rec.StartedAt, &rec.FinishedAt,
	); err != nil {
		return nil, err
	}
	rec.Status = model.ExportStatus(status)
	if err := json.Unmarshal(filters, &rec.Filters); err != nil {
		return nil, fmt.Errorf("разбор фильтров экспорта %s: %w", rec.ID, err)
	}
	return rec, nil
}

func nonNilFilters(f map[string]string) map[string]string {
	if f == nil {
		return map[string]string{}
	}
	return f
}
