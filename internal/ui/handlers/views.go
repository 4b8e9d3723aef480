// Пакет handlers — HTTP-обработчики браузерной части консоли.
// Файл views.go — серверные списочные представления: создание, фильтр
// с debounce, пагинация, сброс, HTML-фрагмент таблицы.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/sitfuturz/newAdminCircle-sub000/internal/api/errors"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/model"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/scope"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/listview"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/projector"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/service"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/session"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/ui/partials"
)

// maxBodyBytes — ограничение тела JSON-запроса.
const maxBodyBytes = 64 << 10

const defaultKeepalive = 15 * time.Second

// ViewsHandler — обработчик /ui/views.
type ViewsHandler struct {
	views     *service.ViewService
	keepalive time.Duration
	logger    *slog.Logger
}

// NewViewsHandler создаёт обработчик представлений.
// keepalive — интервал SSE-комментариев для удержания соединения (RC_SSE_KEEPALIVE).
func NewViewsHandler(views *service.ViewService, keepalive time.Duration, logger *slog.Logger) *ViewsHandler {
	if keepalive <= 0 {
		keepalive = defaultKeepalive
	}
	return &ViewsHandler{
		views:     views,
		keepalive: keepalive,
		logger:    logger.With(slog.String("component", "ui.views")),
	}
}

// createViewRequest — тело POST /ui/views.
type createViewRequest struct {
	Resource string            `json:"resource"`
	Filters  map[string]string `json:"filters"`
	Limit    int               `json:"limit"`
}

// viewResponse — состояние представления для клиента.
type viewResponse struct {
	ID            string                    `json:"id"`
	Resource      string                    `json:"resource"`
	State         string                    `json:"state"`
	Seq           uint64                    `json:"seq"`
	Version       uint64                    `json:"version"`
	Page          int                       `json:"page"`
	Limit         int                       `json:"limit"`
	Filters       map[string]string         `json:"filters"`
	ChapterLocked bool                      `json:"chapterLocked"`
	Result        *model.Page[model.Record] `json:"result"`
	Error         string                    `json:"error,omitempty"`
	UpdatedAt     time.Time                 `json:"updatedAt"`
}

func toResponse(entry *service.ViewEntry, snap listview.Snapshot[model.Record]) viewResponse {
	resp := viewResponse{
		ID:            entry.ID,
		Resource:      entry.Resource.Name,
		State:         snap.State.String(),
		Seq:           snap.Seq,
		Version:       snap.Version,
		Page:          snap.Criteria.Page,
		Limit:         snap.Criteria.Limit,
		Filters:       snap.Criteria.Filters(),
		ChapterLocked: entry.View.Scope().ChapterLocked(),
		Result:        snap.Page,
		UpdatedAt:     snap.UpdatedAt,
	}
	if snap.Err != nil {
		resp.Error = snap.Err.Error()
	}
	return resp
}

// owner — идентификатор владельца представлений из сессии запроса.
func owner(r *http.Request) string {
	return scope.Resolve(session.FromContext(r.Context())).Actor
}

// HandleCreate обрабатывает POST /ui/views.
func (h *ViewsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createViewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	entry, err := h.views.Create(session.FromContext(r.Context()), req.Resource, req.Filters, req.Limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/ui/views/"+entry.ID)
	writeJSON(w, http.StatusCreated, toResponse(entry, entry.View.Snapshot()))
}

// HandleGet обрабатывает GET /ui/views/{id}.
func (h *ViewsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	entry, err := h.views.Get(chi.URLParam(r, "id"), owner(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(entry, entry.View.Snapshot()))
}

// HandleDelete обрабатывает DELETE /ui/views/{id}.
func (h *ViewsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.views.Delete(chi.URLParam(r, "id"), owner(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleFilter обрабатывает PATCH /ui/views/{id}/filter.
// Тело — патч фильтров; пустое значение снимает фильтр.
// Запрос к backend выполняется после debounce, ответ — 202.
func (h *ViewsHandler) HandleFilter(w http.ResponseWriter, r *http.Request) {
	var patch map[string]string
	if err := decodeJSON(w, r, &patch); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	entry, err := h.views.Filter(chi.URLParam(r, "id"), owner(r), patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toResponse(entry, entry.View.Snapshot()))
}

// HandlePage обрабатывает POST /ui/views/{id}/page/{n}.
func (h *ViewsHandler) HandlePage(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		apierrors.ValidationError(w, "номер страницы должен быть целым числом")
		return
	}

	entry, err := h.views.SetPage(chi.URLParam(r, "id"), owner(r), n)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toResponse(entry, entry.View.Snapshot()))
}

// HandleReset обрабатывает POST /ui/views/{id}/reset.
func (h *ViewsHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	entry, err := h.views.Reset(chi.URLParam(r, "id"), owner(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toResponse(entry, entry.View.Snapshot()))
}

// HandleTable обрабатывает GET /ui/views/{id}/table — HTML-фрагмент таблицы.
func (h *ViewsHandler) HandleTable(w http.ResponseWriter, r *http.Request) {
	entry, err := h.views.Get(chi.URLParam(r, "id"), owner(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := partials.RecordsTable(tableData(entry, entry.View.Snapshot())).Render(r.Context(), w); err != nil {
		h.logger.Error("Ошибка рендеринга таблицы представления",
			slog.String("view_id", entry.ID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Ошибка рендеринга", http.StatusInternalServerError)
	}
}

// tableData проецирует текущую страницу в строки таблицы.
func tableData(entry *service.ViewEntry, snap listview.Snapshot[model.Record]) partials.TableData {
	cols := entry.Resource.Columns
	keys := make([]string, len(cols))
	for i, c := range cols {
		keys[i] = c.DataKey
	}

	data := partials.TableData{
		ViewID:  entry.ID,
		Headers: projector.Headers(cols),
		Keys:    keys,
		Page:    snap.Criteria.Page,
		Loading: snap.State != listview.StateIdle,
	}
	if snap.Page != nil {
		data.Rows = projector.ProjectAll(snap.Page.Docs, cols)
		data.Page = snap.Page.Page
		data.TotalPages = snap.Page.TotalPages
		data.TotalDocs = snap.Page.TotalDocs
		data.HasPrev = snap.Page.HasPrevPage
		data.HasNext = snap.Page.HasNextPage
	}
	if snap.Err != nil {
		data.Error = "Не удалось загрузить данные, показана последняя полученная страница"
	}
	return data
}

// writeError отвечает ошибкой сервисного слоя.
func (h *ViewsHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if apierrors.FromError(w, err) {
		h.logger.Error("Ошибка обработки запроса",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON разбирает тело запроса; пустое тело допустимо.
func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errors.New("тело запроса слишком большое")
		}
		return errors.New("некорректный JSON в теле запроса")
	}
	return nil
}
