package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"slices"
	"strconv"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/sitfuturz/newAdminCircle-sub000/internal/apiclient"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/model"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/resource"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/repository"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeOrg — имитация REST API организации: рефералы (POST, конверт data)
// и отделения (GET, конверт data).
type fakeOrg struct {
	mu        sync.Mutex
	referrals []map[string]any
	chapters  []string
	// requests — критерии каждого запроса: endpoint → список.
	requests map[string][]map[string]string
	// failPage — номер страницы рефералов, на которой backend отвечает 500.
	failPage int
	// ignoreChapter — backend не фильтрует по отделению.
	ignoreChapter bool
}

func newFakeOrg() *fakeOrg {
	return &fakeOrg{requests: make(map[string][]map[string]string)}
}

func (f *fakeOrg) addReferral(chapter, status, receiver string) {
	doc := map[string]any{
		"_id":          uuid.New().String(),
		"giver_id":     map[string]any{"name": "Ravi"},
		"chapter_name": chapter,
		"status":       status,
		"createdAt":    "2026-03-01T10:00:00Z",
	}
	if receiver != "" {
		doc["receiver_id"] = map[string]any{"name": receiver}
	} else {
		doc["receiver_id"] = nil
	}
	f.referrals = append(f.referrals, doc)
}

func (f *fakeOrg) count(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests[endpoint])
}

func (f *fakeOrg) last(endpoint string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	reqs := f.requests[endpoint]
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}

func (f *fakeOrg) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /admin/referrals/list", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("некорректное тело запроса: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		params := make(map[string]string, len(body))
		for k, v := range body {
			params[k] = fmt.Sprint(v)
		}
		f.mu.Lock()
		f.requests["referrals"] = append(f.requests["referrals"], params)
		f.mu.Unlock()

		page, _ := strconv.Atoi(params["page"])
		limit, _ := strconv.Atoi(params["limit"])
		if page == f.failPage {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"database timeout"}`))
			return
		}

		var matched []map[string]any
		for _, doc := range f.referrals {
			if c, ok := params["chapter_name"]; ok && !f.ignoreChapter && doc["chapter_name"] != c {
				continue
			}
			if s, ok := params["status"]; ok && doc["status"] != s {
				continue
			}
			matched = append(matched, doc)
		}
		writePage(w, matched, page, limit)
	})

	mux.HandleFunc("GET /admin/chapters", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		params := map[string]string{"page": q.Get("page"), "limit": q.Get("limit")}
		f.mu.Lock()
		f.requests["chapters"] = append(f.requests["chapters"], params)
		f.mu.Unlock()

		page, _ := strconv.Atoi(q.Get("page"))
		limit, _ := strconv.Atoi(q.Get("limit"))
		docs := make([]map[string]any, 0, len(f.chapters))
		for _, name := range f.chapters {
			docs = append(docs, map[string]any{"_id": name, "chapterName": name})
		}
		writePage(w, docs, page, limit)
	})

	return mux
}

// writePage отвечает страницей в конверте data.
func writePage(w http.ResponseWriter, all []map[string]any, page, limit int) {
	start := min((page-1)*limit, len(all))
	end := min(start+limit, len(all))
	docs := all[start:end]
	if docs == nil {
		docs = []map[string]any{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data": map[string]any{
			"docs":      docs,
			"totalDocs": len(all),
			"page":      page,
			"limit":     limit,
		},
	})
}

// newTestRecords поднимает fake backend и сервис страниц.
func newTestRecords(t *testing.T, org *fakeOrg) *RecordService {
	t.Helper()
	server := httptest.NewServer(org.handler(t))
	t.Cleanup(server.Close)

	catalog := resource.Builtin()
	registry := apiclient.NewRegistry()
	if err := catalog.RegisterEnvelopes(registry); err != nil {
		t.Fatalf("регистрация конвертов: %v", err)
	}
	client := apiclient.New(server.URL, server.Client(), registry, session.TokenFromContext, testLogger())
	return NewRecordService(client, catalog, 20, 200, testLogger())
}

// sessionOf возвращает сессию пользователя с ролью role и отделением chapter.
func sessionOf(role, chapter, email string) session.Values {
	user, _ := json.Marshal(map[string]string{
		"role":         role,
		"chapter_name": chapter,
		"email":        email,
	})
	return session.Values{session.KeyUser: string(user), session.KeyToken: "test-token"}
}

func ctxWith(store session.Store) context.Context {
	return session.WithStore(context.Background(), store)
}

// memoryHistory — журнал экспорта в памяти.
type memoryHistory struct {
	mu      sync.Mutex
	records map[string]*model.ExportRecord
	order   []string
}

func newMemoryHistory() *memoryHistory {
	return &memoryHistory{records: make(map[string]*model.ExportRecord)}
}

func (h *memoryHistory) Create(_ context.Context, rec *model.ExportRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.records[rec.ID]; ok {
		return repository.ErrConflict
	}
	cp := *rec
	h.records[rec.ID] = &cp
	h.order = append(h.order, rec.ID)
	return nil
}

func (h *memoryHistory) Finish(_ context.Context, rec *model.ExportRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.records[rec.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *rec
	h.records[rec.ID] = &cp
	return nil
}

func (h *memoryHistory) GetByID(_ context.Context, id string) (*model.ExportRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (h *memoryHistory) match(filters repository.ExportListFilters) []*model.ExportRecord {
	var out []*model.ExportRecord
	for _, id := range slices.Backward(h.order) {
		rec := h.records[id]
		if filters.Chapter != "" && rec.Chapter != filters.Chapter {
			continue
		}
		if filters.Resource != "" && rec.Resource != filters.Resource {
			continue
		}
		if filters.Actor != "" && rec.Actor != filters.Actor {
			continue
		}
		if filters.Status != "" && rec.Status != filters.Status {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (h *memoryHistory) List(_ context.Context, filters repository.ExportListFilters, limit, offset int) ([]*model.ExportRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	all := h.match(filters)
	start := min(offset, len(all))
	end := min(start+limit, len(all))
	return all[start:end], nil
}

func (h *memoryHistory) Count(_ context.Context, filters repository.ExportListFilters) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.match(filters)), nil
}
