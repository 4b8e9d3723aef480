// Пакет partials — HTML-фрагменты консоли для частичного обновления страницы.
package partials

import (
	"context"
	"io"
	"strconv"

	"github.com/a-h/templ"

	"github.com/sitfuturz/newAdminCircle-sub000/internal/projector"
)

// TableData — данные таблицы представления.
type TableData struct {
	ViewID     string
	Headers    []string
	Keys       []string
	Rows       []projector.ExportRow
	Page       int
	TotalPages int
	TotalDocs  int
	HasPrev    bool
	HasNext    bool
	// Loading — запрос выполняется или ожидает debounce.
	Loading bool
	// Error — текст ошибки последнего запроса; таблица показывает
	// последнюю успешную страницу.
	Error string
}

// RecordsTable — таблица записей с пагинацией.
func RecordsTable(data TableData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		sw := &stickyWriter{w: w}

		sw.write(`<div class="records-table" id="view-` + templ.EscapeString(data.ViewID) + `"`)
		if data.Loading {
			sw.write(` aria-busy="true"`)
		}
		sw.write(`>`)

		if data.Error != "" {
			sw.write(`<div class="alert alert-error" role="alert">` + templ.EscapeString(data.Error) + `</div>`)
		}

		sw.write(`<table><thead><tr>`)
		for _, h := range data.Headers {
			sw.write(`<th>` + templ.EscapeString(h) + `</th>`)
		}
		sw.write(`</tr></thead><tbody>`)

		if len(data.Rows) == 0 {
			sw.write(`<tr><td class="empty" colspan="` + strconv.Itoa(max(len(data.Headers), 1)) + `">No records found</td></tr>`)
		}
		for _, row := range data.Rows {
			sw.write(`<tr>`)
			for _, k := range data.Keys {
				sw.write(`<td>` + templ.EscapeString(projector.Text(row[k])) + `</td>`)
			}
			sw.write(`</tr>`)
		}
		sw.write(`</tbody></table>`)

		sw.write(`<nav class="pagination" data-total="` + strconv.Itoa(data.TotalDocs) + `">`)
		if data.HasPrev {
			sw.write(`<button type="button" data-page="` + strconv.Itoa(data.Page-1) + `">Prev</button>`)
		}
		sw.write(`<span>Page ` + strconv.Itoa(data.Page) + ` of ` + strconv.Itoa(max(data.TotalPages, 1)) + `</span>`)
		if data.HasNext {
			sw.write(`<button type="button" data-page="` + strconv.Itoa(data.Page+1) + `">Next</button>`)
		}
		sw.write(`</nav></div>`)

		return sw.err
	})
}

// stickyWriter запоминает первую ошибку записи и пропускает последующие.
type stickyWriter struct {
	w   io.Writer
	err error
}

func (s *stickyWriter) write(str string) {
	if s.err != nil {
		return
	}
	_, s.err = io.WriteString(s.w, str)
}
