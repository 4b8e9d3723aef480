package report

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"github.com/sitfuturz/newAdminCircle-sub000/internal/projector"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testDocument(rows int) Document {
	doc := Document{
		Title:        "Referrals Report",
		Subtitle:     "Chapter: Believers | Status: pending",
		FileNameBase: "referrals",
		Columns: []projector.ColumnSpec{
			{Header: "Giver", DataKey: "giver"},
			{Header: "Chapter", DataKey: "chapter"},
			{Header: "Amount", DataKey: "amount"},
			{Header: "Count", DataKey: "count"},
		},
		GeneratedAt: time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC),
	}
	for i := range rows {
		doc.Rows = append(doc.Rows, projector.ExportRow{
			"giver":   fmt.Sprintf("Member %d", i+1),
			"chapter": "Believers",
			"amount":  "₹1,000.00",
			"count":   int64(i),
		})
	}
	return doc
}

func TestValidate(t *testing.T) {
	doc := testDocument(2)
	if err := doc.Validate(); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	missing := testDocument(2)
	delete(missing.Rows[1], "chapter")
	if err := missing.Validate(); err == nil {
		t.Error("строка без колонки должна отклоняться")
	}

	nilValue := testDocument(1)
	nilValue.Rows[0]["giver"] = nil
	if err := nilValue.Validate(); err == nil {
		t.Error("nil-значение должно отклоняться")
	}

	noCols := Document{}
	if err := noCols.Validate(); err == nil {
		t.Error("документ без колонок должен отклоняться")
	}
}

func TestFileName(t *testing.T) {
	doc := testDocument(0)
	if got := doc.FileName(FormatXLSX); got != "referrals_2024-03-05.xlsx" {
		t.Errorf("получено %s", got)
	}
	doc.FileNameBase = "One To One/Report"
	if got := doc.FileName(FormatPDF); got != "one_to_onereport_2024-03-05.pdf" {
		t.Errorf("получено %s", got)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		err  bool
	}{
		{"", FormatXLSX, false},
		{"XLSX", FormatXLSX, false},
		{"pdf", FormatPDF, false},
		{"csv", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
		if tt.err && !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("ожидалась ErrUnsupportedFormat, получено %v", err)
		}
	}
}

func TestSpreadsheet(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(testLogger())
	if err := Write(r, &buf, FormatXLSX, testDocument(3)); err != nil {
		t.Fatalf("ошибка XLSX: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("XLSX не читается: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Referrals Report")
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"Giver", "Chapter", "Amount", "Count"},
		{"Member 1", "Believers", "₹1,000.00", "0"},
		{"Member 2", "Believers", "₹1,000.00", "1"},
		{"Member 3", "Believers", "₹1,000.00", "2"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("содержимое листа (-ожидалось +получено):\n%s", diff)
	}
}

func TestSpreadsheet_InvalidDocument(t *testing.T) {
	doc := testDocument(1)
	delete(doc.Rows[0], "amount")

	var buf bytes.Buffer
	if err := NewRenderer(testLogger()).Spreadsheet(&buf, doc); err == nil {
		t.Fatal("ожидалась ошибка проверки")
	}
	if buf.Len() != 0 {
		t.Error("при ошибке файл не должен формироваться")
	}
}

func TestPDF(t *testing.T) {
	for _, rows := range []int{0, 3, 200} {
		t.Run(fmt.Sprint(rows), func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewRenderer(testLogger()).PDF(&buf, testDocument(rows)); err != nil {
				t.Fatalf("ошибка PDF: %v", err)
			}
			if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
				t.Error("результат не является PDF")
			}
		})
	}
}

func TestSheetName(t *testing.T) {
	if got := sheetName("Fees: 2024/25 [draft]"); got != "Fees 202425 draft" {
		t.Errorf("получено %q", got)
	}
	if got := sheetName(""); got != "Report" {
		t.Errorf("получено %q", got)
	}
	long := sheetName("A very long report title that exceeds the limit")
	if len([]rune(long)) != 31 {
		t.Errorf("ожидалось 31 символ, получено %d", len([]rune(long)))
	}
}
