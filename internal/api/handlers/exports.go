// exports.go — обработчики /api/v1/exports (журнал экспорта).
package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/sitfuturz/newAdminCircle-sub000/internal/api/errors"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/model"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/repository"
)

// validExportStatuses — допустимые значения фильтра status журнала.
var validExportStatuses = map[model.ExportStatus]bool{
	model.ExportRunning:   true,
	model.ExportCompleted: true,
	model.ExportFailed:    true,
}

// ListExports — GET /api/v1/exports.
// Параметры: page, limit, resource, status, actor, chapter.
// Ограниченная область видит только экспорты своего отделения.
func (h *APIHandler) ListExports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, limit, err := bindPaging(q)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	if limit > h.records.MaxPageSize() {
		apierrors.ValidationError(w, fmt.Sprintf("limit должен быть от 1 до %d", h.records.MaxPageSize()))
		return
	}

	var filters repository.ExportListFilters
	var status *string
	for name, dest := range map[string]*string{
		"resource": &filters.Resource,
		"actor":    &filters.Actor,
		"chapter":  &filters.Chapter,
	} {
		var v *string
		if err := runtime.BindQueryParameter("form", true, false, name, q, &v); err != nil {
			apierrors.ValidationError(w, fmt.Sprintf("%s: %v", name, err))
			return
		}
		if v != nil {
			*dest = *v
		}
	}
	if err := runtime.BindQueryParameter("form", true, false, "status", q, &status); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("status: %v", err))
		return
	}
	if status != nil {
		filters.Status = model.ExportStatus(*status)
		if !validExportStatuses[filters.Status] {
			apierrors.ValidationError(w, fmt.Sprintf("недопустимый status %q", *status))
			return
		}
	}

	result, err := h.exports.History(r.Context(), h.scopeOf(r), filters, page, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetExport — GET /api/v1/exports/{id}.
func (h *APIHandler) GetExport(w http.ResponseWriter, r *http.Request) {
	rec, err := h.exports.HistoryEntry(r.Context(), h.scopeOf(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
