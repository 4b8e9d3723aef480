// resources.go — обработчики /api/v1/resources и /api/v1/me/scope.
// Списки ресурсов backend в пределах области видимости вызывающего,
// варианты фильтров и экспорт полного набора в XLSX/PDF.
package handlers

import (
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/sitfuturz/newAdminCircle-sub000/internal/api/errors"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/api/middleware"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/apiclient"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/model"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/resource"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/scope"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/report"
)

// resourceInfo — описание ресурса для клиента.
type resourceInfo struct {
	Name          string   `json:"name"`
	Title         string   `json:"title"`
	ChapterScoped bool     `json:"chapterScoped"`
	Filters       []string `json:"filters"`
	Statuses      []string `json:"statuses,omitempty"`
	Columns       []string `json:"columns"`
}

// scopeResponse — ответ GET /api/v1/me/scope.
type scopeResponse struct {
	scope.Scope
	Restricted    bool `json:"restricted"`
	ChapterLocked bool `json:"chapterLocked"`
}

// pageResponse — страница ресурса и соседние поля ответа backend.
type pageResponse struct {
	*model.Page[model.Record]
	Meta apiclient.Meta `json:"meta,omitempty"`
}

// GetScope — GET /api/v1/me/scope.
// Возвращает эффективную область видимости вызывающего.
func (h *APIHandler) GetScope(w http.ResponseWriter, r *http.Request) {
	sc := h.scopeOf(r)
	writeJSON(w, http.StatusOK, scopeResponse{
		Scope:         sc,
		Restricted:    sc.Restricted(),
		ChapterLocked: sc.ChapterLocked(),
	})
}

// ListResources — GET /api/v1/resources.
func (h *APIHandler) ListResources(w http.ResponseWriter, _ *http.Request) {
	all := h.records.Resources()
	items := make([]resourceInfo, 0, len(all))
	for _, res := range all {
		items = append(items, mapResource(res))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// ListRecords — GET /api/v1/resources/{resource}.
// Параметры: page, limit и фильтры ресурса (search, chapter, status, ...).
func (h *APIHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resource(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, limit, err := bindPaging(q)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	criteria, err := h.records.Criteria(res, page, limit, queryFilters(q))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, meta, err := h.records.Page(r.Context(), h.scopeOf(r), res, criteria)
	if err != nil {
		h.logger.Warn("Ошибка получения страницы",
			slog.String("resource", res.Name),
			slog.String("error", err.Error()),
		)
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse{Page: result, Meta: meta})
}

// GetOptions — GET /api/v1/resources/{resource}/options.
// Варианты выпадающих списков: отделения (с учётом области) и статусы.
func (h *APIHandler) GetOptions(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resource(w, r)
	if !ok {
		return
	}
	opts, err := h.options.Options(r.Context(), h.scopeOf(r), res)
	if err != nil {
		h.logger.Warn("Ошибка получения вариантов фильтра",
			slog.String("resource", res.Name),
			slog.String("error", err.Error()),
		)
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

// ExportRecords — GET /api/v1/resources/{resource}/export?format=xlsx|pdf.
// Файл формируется только если получены все страницы.
func (h *APIHandler) ExportRecords(w http.ResponseWriter, r *http.Request) {
	res, ok := h.resource(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	format, err := report.ParseFormat(q.Get("format"))
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	criteria, err := h.records.Criteria(res, 0, 0, queryFilters(q))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// обход всех страниц может занять больше WriteTimeout сервера
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	result, err := h.exports.Export(r.Context(), h.scopeOf(r), res, criteria, format)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": result.FileName}))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.Header().Set("X-Export-Id", result.ID)
	w.Header().Set(middleware.ExportRowsHeader, strconv.Itoa(result.Rows))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Data); err != nil {
		h.logger.Warn("Ошибка отправки файла экспорта",
			slog.String("export_id", result.ID),
			slog.String("error", err.Error()),
		)
	}
}

// resource находит ресурс из URL; при ошибке отвечает 404.
func (h *APIHandler) resource(w http.ResponseWriter, r *http.Request) (*resource.Resource, bool) {
	name := chi.URLParam(r, "resource")
	res, err := h.records.Resource(name)
	if err != nil {
		apierrors.NotFound(w, fmt.Sprintf("Ресурс %q не найден", name))
		return nil, false
	}
	return res, true
}

func mapResource(res *resource.Resource) resourceInfo {
	filters := append([]string(nil), res.Filters...)
	if res.ChapterScoped() {
		filters = append(filters, model.FilterChapter)
	}
	columns := make([]string, 0, len(res.Columns))
	for _, c := range res.Columns {
		columns = append(columns, c.Header)
	}
	return resourceInfo{
		Name:          res.Name,
		Title:         res.Title,
		ChapterScoped: res.ChapterScoped(),
		Filters:       filters,
		Statuses:      res.StatusOptions,
		Columns:       columns,
	}
}
