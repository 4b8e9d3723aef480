// Пакет projector — проекция записи ресурса в плоскую строку экспорта.
// Функции пакета чистые: без I/O, одинаковый вход даёт одинаковый выход.
package projector

import (
	"fmt"

	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/model"
)

// DefaultFallback — значение ячейки при отсутствующем или null-поле.
const DefaultFallback = "N/A"

// Format — способ преобразования значения колонки.
type Format int

const (
	// FormatText — строка с очисткой управляющих символов.
	FormatText Format = iota
	// FormatNumber — число (в строке остаётся числом).
	FormatNumber
	// FormatDate — дата "Jan 2, 2006".
	FormatDate
	// FormatDateTime — дата и время "Jan 2, 2006 15:04".
	FormatDateTime
	// FormatCurrency — сумма с символом валюты и разделителями разрядов.
	FormatCurrency
	// FormatBool — "Yes"/"No".
	FormatBool
	// FormatCount — длина массива.
	FormatCount
)

// ColumnSpec — колонка отчёта: заголовок и ключ в ExportRow.
// Порядок колонок задаёт порядок вывода. Поля с тегом "-" — подсказки
// проекции, они не передаются потребителю.
type ColumnSpec struct {
	Header  string `json:"header"`
	DataKey string `json:"dataKey"`

	// Source — путь к значению в записи через точку. Пусто — DataKey.
	Source string `json:"-"`
	// Alternates — запасные пути, если Source отсутствует.
	Alternates []string `json:"-"`
	Format     Format   `json:"-"`
	// Fallback — значение при отсутствии данных. Пусто — DefaultFallback.
	Fallback string `json:"-"`
	// Currency — фиксированный код валюты для FormatCurrency.
	Currency string `json:"-"`
	// CurrencyKey — путь к коду валюты в записи; имеет приоритет над Currency.
	CurrencyKey string `json:"-"`
}

// fallback возвращает значение-заглушку колонки.
func (c ColumnSpec) fallback() string {
	if c.Fallback != "" {
		return c.Fallback
	}
	return DefaultFallback
}

// paths возвращает пути поиска значения в порядке приоритета.
func (c ColumnSpec) paths() []string {
	src := c.Source
	if src == "" {
		src = c.DataKey
	}
	return append([]string{src}, c.Alternates...)
}

// ExportRow — плоская строка экспорта: ключ колонки → string или число.
// Вложенных объектов не содержит.
type ExportRow map[string]any

// Project преобразует запись в строку по спецификациям колонок.
// Каждая колонка присутствует в результате.
func Project(record model.Record, columns []ColumnSpec) ExportRow {
	row := make(ExportRow, len(columns))
	for _, col := range columns {
		row[col.DataKey] = projectValue(record, col)
	}
	return row
}

// ProjectAll проецирует записи с сохранением порядка.
func ProjectAll(records []model.Record, columns []ColumnSpec) []ExportRow {
	rows := make([]ExportRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, Project(r, columns))
	}
	return rows
}

// Headers возвращает заголовки колонок по порядку.
func Headers(columns []ColumnSpec) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.Header
	}
	return out
}

func projectValue(record model.Record, col ColumnSpec) any {
	raw, ok := lookupFirst(record, col.paths())

	if col.Format == FormatCount {
		return countOf(raw, ok)
	}
	if !ok {
		return col.fallback()
	}

	var (
		v     any
		valid bool
	)
	switch col.Format {
	case FormatNumber:
		v, valid = formatNumber(raw)
	case FormatDate:
		v, valid = formatDate(raw, dateLayout)
	case FormatDateTime:
		v, valid = formatDate(raw, dateTimeLayout)
	case FormatCurrency:
		code := col.Currency
		if col.CurrencyKey != "" {
			if c := record.String(col.CurrencyKey); c != "" {
				code = c
			}
		}
		v, valid = formatCurrency(raw, code)
	case FormatBool:
		v, valid = formatBool(raw)
	default:
		v, valid = formatText(raw)
	}

	if !valid {
		return col.fallback()
	}
	return v
}

// lookupFirst возвращает первое непустое значение по списку путей.
func lookupFirst(record model.Record, paths []string) (any, bool) {
	for _, p := range paths {
		v, ok := record.Lookup(p)
		if !ok {
			continue
		}
		if s, isStr := v.(string); isStr && sanitize(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

// Text — строковое представление значения ячейки для табличного вывода.
func Text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
