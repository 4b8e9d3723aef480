// Пакет report — файлы отчётов из спроецированных строк: XLSX и PDF.
// Ядро передаёт колонки и строки раздельно; Validate гарантирует,
// что каждая строка содержит каждую колонку.
package report

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/sitfuturz/newAdminCircle-sub000/internal/projector"
)

// Format — формат файла отчёта.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ErrUnsupportedFormat — неизвестный формат отчёта.
var ErrUnsupportedFormat = errors.New("неподдерживаемый формат отчёта")

// ParseFormat разбирает формат из параметра запроса. Пусто — XLSX.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "xlsx", "excel":
		return FormatXLSX, nil
	case "pdf":
		return FormatPDF, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// ContentType возвращает MIME-тип файла.
func (f Format) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Document — входные данные отчёта.
type Document struct {
	Title        string
	Subtitle     string
	FileNameBase string
	Columns      []projector.ColumnSpec
	Rows         []projector.ExportRow
	GeneratedAt  time.Time
}

// Validate проверяет колонки и наличие каждой колонки в каждой строке.
func (d Document) Validate() error {
	if len(d.Columns) == 0 {
		return errors.New("отчёт без колонок")
	}
	keys := make(map[string]bool, len(d.Columns))
	for _, c := range d.Columns {
		if c.DataKey == "" || keys[c.DataKey] {
			return fmt.Errorf("пустой или повторный ключ колонки %q", c.DataKey)
		}
		keys[c.DataKey] = true
	}
	for i, row := range d.Rows {
		for _, c := range d.Columns {
			v, ok := row[c.DataKey]
			if !ok || v == nil {
				return fmt.Errorf("строка %d: нет значения колонки %q", i, c.DataKey)
			}
		}
	}
	return nil
}

// FileName возвращает имя файла вида <base>_<YYYY-MM-DD>.<ext>.
func (d Document) FileName(f Format) string {
	base := slug(d.FileNameBase)
	if base == "" {
		base = "report"
	}
	at := d.GeneratedAt
	if at.IsZero() {
		at = time.Now()
	}
	return fmt.Sprintf("%s_%s.%s", base, at.Format("2006-01-02"), f)
}

// slug оставляет в имени файла буквы, цифры, '-' и '_'.
func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_':
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Sink — получатель отчёта.
type Sink interface {
	Spreadsheet(w io.Writer, doc Document) error
	PDF(w io.Writer, doc Document) error
}

// Write пишет документ в формате f.
func Write(s Sink, w io.Writer, f Format, doc Document) error {
	switch f {
	case FormatXLSX:
		return s.Spreadsheet(w, doc)
	case FormatPDF:
		return s.PDF(w, doc)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
}
