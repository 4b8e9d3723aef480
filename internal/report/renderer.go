// renderer.go — Sink на основе excelize (XLSX) и fpdf (PDF).
package report

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"

	"github.com/sitfuturz/newAdminCircle-sub000/internal/projector"
)

const (
	maxSheetName = 31
	minColWidth  = 10
	maxColWidth  = 60

	pdfFont       = "Helvetica"
	pdfRowHeight  = 6.0
	pdfHeadHeight = 7.0
)

// Renderer — реализация Sink.
type Renderer struct {
	logger *slog.Logger
}

// NewRenderer создаёт Renderer.
func NewRenderer(logger *slog.Logger) *Renderer {
	return &Renderer{logger: logger.With(slog.String("component", "report"))}
}

// Spreadsheet пишет XLSX: строка заголовков, закреплённая шапка,
// автофильтр, ширина колонок по содержимому. Числа остаются числами.
func (r *Renderer) Spreadsheet(w io.Writer, doc Document) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("проверка отчёта: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := sheetName(doc.Title)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("имя листа: %w", err)
	}

	header := make([]any, len(doc.Columns))
	widths := make([]int, len(doc.Columns))
	for i, c := range doc.Columns {
		header[i] = c.Header
		widths[i] = utf8.RuneCountInString(c.Header)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("строка заголовков: %w", err)
	}

	for i, row := range doc.Rows {
		values := make([]any, len(doc.Columns))
		for j, c := range doc.Columns {
			values[j] = row[c.DataKey]
			widths[j] = max(widths[j], utf8.RuneCountInString(projector.Text(values[j])))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("строка %d: %w", i+1, err)
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(doc.Columns))
	if err != nil {
		return err
	}

	style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Alignment: &excelize.Alignment{Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("стиль заголовков: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", style); err != nil {
		return fmt.Errorf("стиль заголовков: %w", err)
	}

	for i, width := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheet, col, col, float64(min(max(width+2, minColWidth), maxColWidth))); err != nil {
			return fmt.Errorf("ширина колонки %s: %w", col, err)
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("закрепление шапки: %w", err)
	}
	if len(doc.Rows) > 0 {
		if err := f.AutoFilter(sheet, fmt.Sprintf("A1:%s%d", lastCol, len(doc.Rows)+1), nil); err != nil {
			return fmt.Errorf("автофильтр: %w", err)
		}
	}

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:       doc.Title,
		Subject:     doc.Subtitle,
		Creator:     "referral-console",
		Created:     doc.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z"),
		Description: doc.Subtitle,
	}); err != nil {
		return fmt.Errorf("свойства документа: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("запись XLSX: %w", err)
	}
	r.logger.Debug("XLSX сформирован", slog.String("title", doc.Title), slog.Int("rows", len(doc.Rows)))
	return nil
}

// PDF пишет альбомную таблицу A4. Заголовок, подзаголовок и шапка таблицы
// повторяются на каждой странице, внизу — номер страницы.
func (r *Renderer) PDF(w io.Writer, doc Document) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("проверка отчёта: %w", err)
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(doc.Title, true)
	pdf.SetCreator("referral-console", true)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AliasNbPages("")
	tr := pdfTranslator(pdf)

	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	colW := (pageW - left - right) / float64(len(doc.Columns))

	pdf.SetHeaderFunc(func() {
		pdf.SetFont(pdfFont, "B", 14)
		pdf.CellFormat(0, 8, tr(doc.Title), "", 1, "L", false, 0, "")
		if doc.Subtitle != "" {
			pdf.SetFont(pdfFont, "", 10)
			pdf.CellFormat(0, 6, tr(doc.Subtitle), "", 1, "L", false, 0, "")
		}
		pdf.Ln(2)

		pdf.SetFont(pdfFont, "B", 9)
		pdf.SetFillColor(221, 235, 247)
		for _, c := range doc.Columns {
			pdf.CellFormat(colW, pdfHeadHeight, fit(pdf, tr(c.Header), colW), "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont(pdfFont, "I", 8)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont(pdfFont, "", 8)
	for _, row := range doc.Rows {
		for _, c := range doc.Columns {
			pdf.CellFormat(colW, pdfRowHeight, fit(pdf, tr(projector.Text(row[c.DataKey])), colW), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
	if len(doc.Rows) == 0 {
		pdf.CellFormat(0, pdfRowHeight, "No records", "", 1, "C", false, 0, "")
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("запись PDF: %w", err)
	}
	r.logger.Debug("PDF сформирован",
		slog.String("title", doc.Title),
		slog.Int("rows", len(doc.Rows)),
		slog.Int("pages", pdf.PageNo()),
	)
	return nil
}

// pdfTranslator переводит UTF-8 в cp1252 встроенных шрифтов.
// Символы вне cp1252 заменяются текстовыми эквивалентами.
func pdfTranslator(pdf *fpdf.Fpdf) func(string) string {
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	replacer := strings.NewReplacer("₹", "Rs.")
	return func(s string) string {
		return tr(replacer.Replace(s))
	}
}

// fit обрезает текст до ширины ячейки.
func fit(pdf *fpdf.Fpdf, s string, width float64) string {
	const pad = 2.0
	if pdf.GetStringWidth(s) <= width-pad {
		return s
	}
	for len(s) > 0 && pdf.GetStringWidth(s+"...") > width-pad {
		s = s[:len(s)-1]
	}
	return s + "..."
}

// sheetName приводит заголовок к допустимому имени листа Excel.
func sheetName(title string) string {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return -1
		}
		return r
	}, strings.TrimSpace(title))
	if name == "" {
		return "Report"
	}
	if utf8.RuneCountInString(name) > maxSheetName {
		name = string([]rune(name)[:maxSheetName])
	}
	return name
}
