// envelope.go — нормализация разнородных конвертов ответа backend.
//
// Одни endpoints возвращают страницу напрямую, другие вкладывают её в "data",
// третьи — в доменный ключ ("complaints", "suggestions"). Конверт задаётся
// явно для каждого endpoint и разворачивается ровно на один уровень.
// Соседние поля (аналитика, счётчики, success/message) возвращаются в Meta.
package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/model"
)

// EnvelopeKind — вариант конверта ответа.
type EnvelopeKind int

const (
	// EnvelopeBare — поля страницы на верхнем уровне ответа.
	EnvelopeBare EnvelopeKind = iota
	// EnvelopeData — страница вложена в "data".
	EnvelopeData
	// EnvelopeKeyed — страница вложена в доменный ключ (Envelope.Key).
	EnvelopeKeyed
)

func (k EnvelopeKind) String() string {
	switch k {
	case EnvelopeBare:
		return "bare"
	case EnvelopeData:
		return "data"
	case EnvelopeKeyed:
		return "keyed"
	default:
		return fmt.Sprintf("EnvelopeKind(%d)", int(k))
	}
}

// Envelope — tagged union конверта: Kind и, для EnvelopeKeyed, имя ключа.
type Envelope struct {
	Kind EnvelopeKind
	Key  string
}

// Bare — конверт без вложенности.
func Bare() Envelope { return Envelope{Kind: EnvelopeBare} }

// Data — страница в "data".
func Data() Envelope { return Envelope{Kind: EnvelopeData, Key: "data"} }

// Keyed — страница под доменным ключом.
func Keyed(key string) Envelope { return Envelope{Kind: EnvelopeKeyed, Key: key} }

// Meta — поля ответа, соседние со страницей (аналитика, сводки, статус).
type Meta map[string]json.RawMessage

// pageFields — поля конверта пагинации; на уровне Bare они не попадают в Meta.
var pageFields = map[string]bool{
	"docs": true, "totalDocs": true, "page": true, "limit": true,
	"totalPages": true, "hasNextPage": true, "hasPrevPage": true,
	"pagingCounter": true, "nextPage": true, "prevPage": true, "offset": true,
}

// rawPage — страница в том виде, в каком её присылает backend.
// totalPages, hasNextPage, pagingCounter не читаются: они выводятся заново.
type rawPage struct {
	Docs      json.RawMessage `json:"docs"`
	TotalDocs *int            `json:"totalDocs"`
	Page      *int            `json:"page"`
	Limit     *int            `json:"limit"`
}

// Unwrap разворачивает тело ответа согласно конверту: возвращает JSON страницы
// и соседние поля.
func (e Envelope) Unwrap(body []byte) (json.RawMessage, Meta, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, nil, fmt.Errorf("ответ не является JSON-объектом: %w", err)
	}

	meta := make(Meta)
	switch e.Kind {
	case EnvelopeBare:
		for k, v := range top {
			if !pageFields[k] {
				meta[k] = v
			}
		}
		return json.RawMessage(body), meta, nil

	case EnvelopeData, EnvelopeKeyed:
		key := e.Key
		if key == "" {
			key = "data"
		}
		inner, ok := top[key]
		if !ok || isNull(inner) {
			return nil, nil, fmt.Errorf("в ответе нет ключа %q", key)
		}
		for k, v := range top {
			if k != key {
				meta[k] = v
			}
		}
		return inner, meta, nil

	default:
		return nil, nil, fmt.Errorf("неизвестный тип конверта %s", e.Kind)
	}
}

// decodePage разбирает JSON страницы в канонический Page[T].
// requestedLimit используется, если backend не сообщил limit.
func decodePage[T any](raw json.RawMessage, requestedPage, requestedLimit int) (*model.Page[T], error) {
	var rp rawPage
	if err := json.Unmarshal(raw, &rp); err != nil {
		return nil, fmt.Errorf("разбор страницы: %w", err)
	}
	if len(rp.Docs) == 0 || isNull(rp.Docs) {
		return nil, fmt.Errorf("в странице отсутствует массив docs")
	}

	var docs []T
	dec := json.NewDecoder(bytes.NewReader(rp.Docs))
	dec.UseNumber()
	if err := dec.Decode(&docs); err != nil {
		return nil, fmt.Errorf("разбор docs: %w", err)
	}

	page := requestedPage
	if rp.Page != nil && *rp.Page > 0 {
		page = *rp.Page
	}
	limit := requestedLimit
	if rp.Limit != nil && *rp.Limit > 0 {
		limit = *rp.Limit
	}
	totalDocs := len(docs)
	if rp.TotalDocs != nil {
		totalDocs = *rp.TotalDocs
	}

	if limit > 0 && len(docs) > limit {
		return nil, fmt.Errorf("страница содержит %d записей при limit=%d", len(docs), limit)
	}
	if totalDocs < len(docs) {
		return nil, fmt.Errorf("totalDocs=%d меньше числа записей %d", totalDocs, len(docs))
	}

	return model.NewPage(docs, totalDocs, page, limit), nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

// Registry — центральный реестр конвертов по имени endpoint.
type Registry struct {
	mu        sync.RWMutex
	envelopes map[string]Envelope
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{envelopes: make(map[string]Envelope)}
}

// Register регистрирует конверт endpoint. Повторная регистрация — ошибка.
func (r *Registry) Register(endpoint string, env Envelope) error {
	if env.Kind == EnvelopeKeyed && env.Key == "" {
		return fmt.Errorf("endpoint %q: для keyed-конверта нужен ключ", endpoint)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.envelopes[endpoint]; exists {
		return fmt.Errorf("endpoint %q уже зарегистрирован", endpoint)
	}
	r.envelopes[endpoint] = env
	return nil
}

// Lookup возвращает конверт endpoint. Незарегистрированный endpoint — Bare.
func (r *Registry) Lookup(endpoint string) (Envelope, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	env, ok := r.envelopes[endpoint]
	if !ok {
		return Bare(), false
	}
	return env, true
}
