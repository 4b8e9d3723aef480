package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sitfuturz/newAdminCircle-sub000/internal/apiclient"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/resource"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/service"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeBackend — рефералы организации (POST, конверт data).
type fakeBackend struct {
	mu        sync.Mutex
	referrals []map[string]any
	calls     int
}

func (b *fakeBackend) add(chapter, status, receiver string, n int) {
	for i := range n {
		b.referrals = append(b.referrals, map[string]any{
			"_id":          fmt.Sprintf("%s-%s-%d", chapter, status, i),
			"giver_id":     map[string]any{"name": "Ravi"},
			"receiver_id":  map[string]any{"name": receiver},
			"chapter_name": chapter,
			"status":       status,
			"createdAt":    "2026-03-01T10:00:00Z",
		})
	}
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	page, _ := strconv.Atoi(fmt.Sprint(body["page"]))
	limit, _ := strconv.Atoi(fmt.Sprint(body["limit"]))

	b.mu.Lock()
	b.calls++
	var matched []map[string]any
	for _, doc := range b.referrals {
		if c, ok := body["chapter_name"]; ok && doc["chapter_name"] != c {
			continue
		}
		if s, ok := body["status"]; ok && doc["status"] != s {
			continue
		}
		matched = append(matched, doc)
	}
	b.mu.Unlock()

	start := min((page-1)*limit, len(matched))
	docs := matched[start:min(start+limit, len(matched))]
	if docs == nil {
		docs = []map[string]any{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": map[string]any{"docs": docs, "totalDocs": len(matched), "page": page, "limit": limit},
	})
}

func newTestViews(t *testing.T, backend *fakeBackend) *service.ViewService {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle("POST /admin/referrals/list", backend)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	catalog := resource.Builtin()
	registry := apiclient.NewRegistry()
	if err := catalog.RegisterEnvelopes(registry); err != nil {
		t.Fatalf("регистрация конвертов: %v", err)
	}
	client := apiclient.New(server.URL, server.Client(), registry, session.TokenFromContext, testLogger())
	records := service.NewRecordService(client, catalog, 20, 100, testLogger())
	views := service.NewViewService(records, 8, time.Minute, 10*time.Millisecond, testLogger())
	t.Cleanup(views.Close)
	return views
}

func sessionOf(role, chapter, email string) session.Values {
	user, _ := json.Marshal(map[string]string{"role": role, "chapter_name": chapter, "email": email})
	return session.Values{session.KeyUser: string(user), session.KeyToken: "test-token"}
}

// viewsRouter собирает маршруты представлений с фиксированной сессией.
func viewsRouter(h *ViewsHandler, store session.Values) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(session.WithStore(req.Context(), store)))
		})
	})
	r.Post("/views", h.HandleCreate)
	r.Get("/views/{id}", h.HandleGet)
	r.Delete("/views/{id}", h.HandleDelete)
	r.Patch("/views/{id}/filter", h.HandleFilter)
	r.Post("/views/{id}/page/{n}", h.HandlePage)
	r.Post("/views/{id}/reset", h.HandleReset)
	r.Get("/views/{id}/events", h.HandleEvents)
	r.Get("/views/{id}/table", h.HandleTable)
	return r
}

func do(t *testing.T, router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) viewResponse {
	t.Helper()
	var v viewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("некорректный JSON ответа: %v\n%s", err, rec.Body.String())
	}
	return v
}

// waitView опрашивает представление, пока не выполнится условие.
func waitView(t *testing.T, router http.Handler, id string, cond func(viewResponse) bool) viewResponse {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var last viewResponse
	for time.Now().Before(deadline) {
		rec := do(t, router, http.MethodGet, "/views/"+id, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("GET представления: ожидался 200, получен %d", rec.Code)
		}
		last = decodeView(t, rec)
		if cond(last) {
			return last
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("условие не выполнено, состояние: %+v", last)
	return last
}

func idle(v viewResponse) bool { return v.State == "idle" && v.Seq >= 1 }

func TestViewsHandler_Lifecycle(t *testing.T) {
	backend := &fakeBackend{}
	backend.add("Believers", "pending", "Kiran", 3)
	backend.add("Believers", "accepted", "<b>Meera</b>", 1)
	backend.add("Achievers", "pending", "Arjun", 2)

	h := NewViewsHandler(newTestViews(t, backend), time.Second, testLogger())
	router := viewsRouter(h, sessionOf("member", "Believers", "m@example.com"))

	rec := do(t, router, http.MethodPost, "/views", `{"resource":"referrals","filters":{"status":"pending","chapter":"Achievers"},"limit":2}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("ожидался 201, получен %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeView(t, rec)
	if rec.Header().Get("Location") != "/ui/views/"+created.ID {
		t.Errorf("неожиданный Location %q", rec.Header().Get("Location"))
	}
	if !created.ChapterLocked {
		t.Error("для участника отделение заблокировано")
	}

	v := waitView(t, router, created.ID, idle)
	if v.Result == nil || v.Result.TotalDocs != 3 || len(v.Result.Docs) != 2 {
		t.Fatalf("ожидалось 3 записи Believers/pending по 2 на странице, получено %+v", v.Result)
	}
	if v.Filters["chapter"] != "Believers" {
		t.Errorf("отделение должно быть заменено своим, получено %q", v.Filters["chapter"])
	}

	t.Run("таблица", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/views/"+created.ID+"/table", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("ожидался 200, получен %d", rec.Code)
		}
		html := rec.Body.String()
		for _, want := range []string{"<th>Giver</th>", "<td>Kiran</td>", "Page 1 of 2", `data-page="2"`} {
			if !strings.Contains(html, want) {
				t.Errorf("в таблице нет %q", want)
			}
		}
	})

	t.Run("фильтр", func(t *testing.T) {
		rec := do(t, router, http.MethodPatch, "/views/"+created.ID+"/filter", `{"status":""}`)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("ожидался 202, получен %d", rec.Code)
		}
		v := waitView(t, router, created.ID, func(v viewResponse) bool {
			return v.State == "idle" && v.Result != nil && v.Result.TotalDocs == 4
		})
		if _, ok := v.Filters["status"]; ok {
			t.Error("пустое значение должно снять фильтр status")
		}
	})

	t.Run("недопустимый фильтр", func(t *testing.T) {
		if rec := do(t, router, http.MethodPatch, "/views/"+created.ID+"/filter", `{"category":"IT"}`); rec.Code != http.StatusBadRequest {
			t.Errorf("ожидался 400, получен %d", rec.Code)
		}
		if rec := do(t, router, http.MethodPatch, "/views/"+created.ID+"/filter", `{"status":1}`); rec.Code != http.StatusBadRequest {
			t.Errorf("некорректный JSON: ожидался 400, получен %d", rec.Code)
		}
	})

	t.Run("страница", func(t *testing.T) {
		if rec := do(t, router, http.MethodPost, "/views/"+created.ID+"/page/x", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("ожидался 400, получен %d", rec.Code)
		}
		if rec := do(t, router, http.MethodPost, "/views/"+created.ID+"/page/0", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("ожидался 400, получен %d", rec.Code)
		}
		if rec := do(t, router, http.MethodPost, "/views/"+created.ID+"/page/2", ""); rec.Code != http.StatusAccepted {
			t.Fatalf("ожидался 202, получен %d", rec.Code)
		}
		v := waitView(t, router, created.ID, func(v viewResponse) bool {
			return v.State == "idle" && v.Result != nil && v.Result.Page == 2
		})
		if !v.Result.HasPrevPage || v.Result.HasNextPage {
			t.Errorf("вторая страница из двух: %+v", v.Result)
		}

		html := do(t, router, http.MethodGet, "/views/"+created.ID+"/table", "").Body.String()
		if strings.Contains(html, "<b>Meera</b>") || !strings.Contains(html, "&lt;b&gt;Meera&lt;/b&gt;") {
			t.Error("значения ячеек должны экранироваться")
		}
	})

	t.Run("сброс", func(t *testing.T) {
		if rec := do(t, router, http.MethodPost, "/views/"+created.ID+"/reset", ""); rec.Code != http.StatusAccepted {
			t.Fatalf("ожидался 202, получен %d", rec.Code)
		}
		v := waitView(t, router, created.ID, func(v viewResponse) bool {
			return v.State == "idle" && v.Page == 1
		})
		if v.Filters["chapter"] != "Believers" {
			t.Errorf("после сброса отделение остаётся Believers, получено %q", v.Filters["chapter"])
		}
	})

	t.Run("чужой владелец", func(t *testing.T) {
		other := viewsRouter(h, sessionOf("member", "Believers", "other@example.com"))
		if rec := do(t, other, http.MethodGet, "/views/"+created.ID, ""); rec.Code != http.StatusNotFound {
			t.Errorf("ожидался 404, получен %d", rec.Code)
		}
	})

	t.Run("удаление", func(t *testing.T) {
		if rec := do(t, router, http.MethodDelete, "/views/"+created.ID, ""); rec.Code != http.StatusNoContent {
			t.Fatalf("ожидался 204, получен %d", rec.Code)
		}
		if rec := do(t, router, http.MethodGet, "/views/"+created.ID, ""); rec.Code != http.StatusNotFound {
			t.Errorf("после удаления ожидался 404, получен %d", rec.Code)
		}
	})
}

func TestViewsHandler_CreateValidation(t *testing.T) {
	h := NewViewsHandler(newTestViews(t, &fakeBackend{}), 0, testLogger())
	router := viewsRouter(h, sessionOf("admin", "", "a@example.com"))

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"некорректный JSON", `{"resource":`, http.StatusBadRequest},
		{"неизвестное поле", `{"resource":"referrals","sort":"asc"}`, http.StatusBadRequest},
		{"неизвестный ресурс", `{"resource":"unknown"}`, http.StatusNotFound},
		{"недопустимый фильтр", `{"resource":"badges","filters":{"chapter":"Believers"}}`, http.StatusBadRequest},
		{"limit больше максимума", `{"resource":"referrals","limit":500}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, router, http.MethodPost, "/views", tt.body); rec.Code != tt.wantCode {
				t.Errorf("ожидался %d, получен %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
		})
	}
}

// readEvent читает одно SSE-событие: имя и data.
func readEvent(t *testing.T, r *bufio.Reader) (event, data string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("чтение SSE: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if event != "" {
				return event, data
			}
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

// TestViewsHandler_Events — первый снимок при подключении,
// событие closed при удалении представления.
func TestViewsHandler_Events(t *testing.T) {
	backend := &fakeBackend{}
	backend.add("Believers", "pending", "Kiran", 2)
	views := newTestViews(t, backend)
	h := NewViewsHandler(views, 50*time.Millisecond, testLogger())
	store := sessionOf("admin", "", "a@example.com")

	server := httptest.NewServer(viewsRouter(h, store))
	t.Cleanup(server.Close)

	entry, err := views.Create(store, resource.Referrals, nil, 0)
	if err != nil {
		t.Fatalf("Create() вернул ошибку: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/views/"+entry.ID+"/events", nil)
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("подключение к SSE: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, ожидался text/event-stream", ct)
	}

	reader := bufio.NewReader(resp.Body)
	event, data := readEvent(t, reader)
	if event != "snapshot" {
		t.Fatalf("первым ожидалось событие snapshot, получено %q", event)
	}
	var snap viewResponse
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		t.Fatalf("некорректный JSON снимка: %v", err)
	}
	if snap.ID != entry.ID || snap.Resource != resource.Referrals {
		t.Errorf("снимок другого представления: %+v", snap)
	}

	if err := views.Delete(entry.ID, "a@example.com"); err != nil {
		t.Fatalf("Delete() вернул ошибку: %v", err)
	}
	for {
		event, _ := readEvent(t, reader)
		if event == "closed" {
			break
		}
		if event != "snapshot" {
			t.Fatalf("неожиданное событие %q", event)
		}
	}
}

func TestViewsHandler_EventsNotFound(t *testing.T) {
	h := NewViewsHandler(newTestViews(t, &fakeBackend{}), time.Second, testLogger())
	router := viewsRouter(h, sessionOf("admin", "", "a@example.com"))
	if rec := do(t, router, http.MethodGet, "/views/missing/events", ""); rec.Code != http.StatusNotFound {
		t.Errorf("ожидался 404, получен %d", rec.Code)
	}
}

// stubAuth — Authenticator, принимающий один токен.
type stubAuth struct {
	token  string
	values session.Values
}

func (s stubAuth) Authenticate(_ context.Context, token string) (session.Values, error) {
	if token != s.token {
		return nil, errors.New("невалидный токен")
	}
	return s.values, nil
}

func TestSessionHandler(t *testing.T) {
	mgr, err := session.NewManager("test-secret", false)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	values := sessionOf("member", "Believers", "m@example.com")
	h := NewSessionHandler(stubAuth{token: "good", values: values}, mgr, testLogger())

	t.Run("создание", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/ui/session", nil)
		req.Header.Set("Authorization", "Bearer good")
		rec := httptest.NewRecorder()
		h.HandleCreate(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("ожидался 200, получен %d", rec.Code)
		}
		cookies := rec.Result().Cookies()
		if len(cookies) != 1 || cookies[0].Value == "" || !cookies[0].HttpOnly {
			t.Fatalf("ожидался HttpOnly cookie сессии, получено %+v", cookies)
		}

		next := httptest.NewRequest(http.MethodGet, "/ui/views", nil)
		next.AddCookie(cookies[0])
		got, err := mgr.FromRequest(next)
		if err != nil {
			t.Fatalf("cookie не расшифрован: %v", err)
		}
		if user, _ := got.Get(session.KeyUser); user != values[session.KeyUser] {
			t.Errorf("в cookie другой пользователь: %q", user)
		}

		var sc struct {
			Chapter string `json:"chapter"`
			Actor   string `json:"actor"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &sc)
		if sc.Chapter != "Believers" || sc.Actor != "m@example.com" {
			t.Errorf("неожиданная область в ответе: %+v", sc)
		}
	})

	t.Run("отказ", func(t *testing.T) {
		for _, header := range []string{"", "Basic abc", "Bearer bad"} {
			req := httptest.NewRequest(http.MethodPost, "/ui/session", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			h.HandleCreate(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("%q: ожидался 401, получен %d", header, rec.Code)
			}
			if len(rec.Result().Cookies()) != 0 {
				t.Errorf("%q: cookie не должен выставляться", header)
			}
		}
	})

	t.Run("выход", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.HandleDelete(rec, httptest.NewRequest(http.MethodDelete, "/ui/session", nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("ожидался 204, получен %d", rec.Code)
		}
		cookies := rec.Result().Cookies()
		if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
			t.Errorf("ожидалось удаление cookie, получено %+v", cookies)
		}
	})
}
