// events.go — SSE-поток состояния представления.
// Каждое изменение состояния (debounce, запрос, ответ, ошибка) отправляется
// событием snapshot; промежуточные снимки медленному клиенту не доставляются.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/model"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/listview"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/service"
)

// HandleEvents обрабатывает GET /ui/views/{id}/events — SSE endpoint.
// Формат: event: snapshot\ndata: {json}\n\n; keepalive — комментарий ": keepalive".
// Keepalive продлевает TTL представления. Поток завершается при отключении
// клиента или закрытии представления (событие closed).
func (h *ViewsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	id, who := chi.URLParam(r, "id"), owner(r)
	entry, err := h.views.Get(id, who)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// ResponseController находит http.Flusher через Unwrap() обёрток middleware.
	rc := http.NewResponseController(w)
	// поток живёт дольше WriteTimeout сервера
	_ = rc.SetWriteDeadline(time.Time{})
	if err := rc.Flush(); err != nil {
		http.Error(w, "SSE не поддерживается", http.StatusInternalServerError)
		return
	}

	snapshots, unsubscribe := entry.View.Subscribe()
	defer unsubscribe()

	ctx := r.Context()
	h.logger.Debug("SSE клиент подключён",
		slog.String("view_id", id),
		slog.String("remote_addr", r.RemoteAddr),
	)

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE клиент отключён", slog.String("view_id", id))
			return

		case snap, ok := <-snapshots:
			if !ok {
				fmt.Fprint(w, "event: closed\ndata: {}\n\n")
				_ = rc.Flush()
				return
			}
			if err := h.sendSnapshot(w, rc, entry, snap); err != nil {
				h.logger.Debug("Ошибка отправки SSE",
					slog.String("view_id", id),
					slog.String("error", err.Error()),
				)
				return
			}

		case <-ticker.C:
			if _, err := h.views.Get(id, who); err != nil {
				if errors.Is(err, service.ErrNotFound) {
					fmt.Fprint(w, "event: closed\ndata: {}\n\n")
					_ = rc.Flush()
				}
				return
			}
			fmt.Fprint(w, ": keepalive\n\n")
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// sendSnapshot отправляет SSE-событие со снимком состояния.
func (h *ViewsHandler) sendSnapshot(
	w http.ResponseWriter,
	rc *http.ResponseController,
	entry *service.ViewEntry,
	snap listview.Snapshot[model.Record],
) error {
	data, err := json.Marshal(toResponse(entry, snap))
	if err != nil {
		return fmt.Errorf("сериализация снимка: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: snapshot\nid: %d\ndata: %s\n\n", snap.Version, data); err != nil {
		return err
	}
	return rc.Flush()
}
