// Пакет resource — каталог ресурсов backend: endpoint, конверт ответа,
// параметр и поле отделения, допустимые фильтры, колонки экспорта.
// Каталог — единственное место, где описаны соглашения конкретных endpoints.
package resource

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/sitfuturz/newAdminCircle-sub000/internal/apiclient"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/model"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/projector"
)

// ErrUnknown — ресурс не найден в каталоге.
var ErrUnknown = errors.New("неизвестный ресурс")

// Resource — описание одного списочного ресурса.
type Resource struct {
	// Name — идентификатор в URL консоли и имя endpoint в реестре конвертов.
	Name string
	// Title — заголовок PDF-отчёта.
	Title string
	// FileNameBase — основа имени файла экспорта.
	FileNameBase string

	Path     string
	Method   string
	Envelope apiclient.Envelope

	// ChapterParam — имя параметра фильтра отделения в запросе backend.
	// Пусто — ресурс не фильтруется по отделению.
	ChapterParam string
	// ChapterFields — пути к имени отделения в записи, по приоритету.
	ChapterFields []string

	// Filters — допустимые ключи фильтра помимо chapter.
	Filters []string
	// StatusOptions — варианты фильтра status.
	StatusOptions []string

	Columns []projector.ColumnSpec

	// ExportLimit — если > 0, backend отдаёт весь набор одним запросом
	// с этим limit.
	ExportLimit int
}

// Endpoint возвращает адрес ресурса для клиента backend.
func (r *Resource) Endpoint() apiclient.Endpoint {
	return apiclient.Endpoint{Name: r.Name, Path: r.Path, Method: r.Method}
}

// ChapterScoped — ресурс фильтруется по отделению.
func (r *Resource) ChapterScoped() bool {
	return r.ChapterParam != ""
}

// Allows проверяет, допустим ли ключ фильтра.
func (r *Resource) Allows(key string) bool {
	if key == model.FilterChapter {
		return r.ChapterScoped()
	}
	return slices.Contains(r.Filters, key)
}

// BackendCriteria отбрасывает недопустимые фильтры и переименовывает
// chapter в параметр backend.
func (r *Resource) BackendCriteria(c model.FilterCriteria) model.FilterCriteria {
	out := model.NewCriteria(c.Page, c.Limit)
	for _, k := range c.Keys() {
		if !r.Allows(k) {
			continue
		}
		v, _ := c.Get(k)
		if k == model.FilterChapter {
			k = r.ChapterParam
		}
		out.Set(k, v)
	}
	return out
}

// ChapterOf возвращает имя отделения записи или "".
func (r *Resource) ChapterOf(rec model.Record) string {
	for _, p := range r.ChapterFields {
		if v := strings.TrimSpace(rec.String(p)); v != "" {
			return v
		}
	}
	return ""
}

// Catalog — упорядоченный набор ресурсов.
type Catalog struct {
	byName map[string]*Resource
	order  []string
}

// NewCatalog проверяет описания и строит каталог.
func NewCatalog(resources ...Resource) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]*Resource, len(resources))}
	for i := range resources {
		r := resources[i]
		if r.Name == "" || r.Path == "" {
			return nil, fmt.Errorf("ресурс #%d: name и path обязательны", i)
		}
		if _, dup := c.byName[r.Name]; dup {
			return nil, fmt.Errorf("ресурс %q описан дважды", r.Name)
		}
		if len(r.Columns) == 0 {
			return nil, fmt.Errorf("ресурс %q: нет колонок экспорта", r.Name)
		}
		keys := make(map[string]bool, len(r.Columns))
		for _, col := range r.Columns {
			if col.DataKey == "" || keys[col.DataKey] {
				return nil, fmt.Errorf("ресурс %q: пустой или повторный dataKey %q", r.Name, col.DataKey)
			}
			keys[col.DataKey] = true
		}
		if r.FileNameBase == "" {
			r.FileNameBase = r.Name
		}
		c.byName[r.Name] = &r
		c.order = append(c.order, r.Name)
	}
	return c, nil
}

// Get возвращает ресурс по имени.
func (c *Catalog) Get(name string) (*Resource, error) {
	r, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	return r, nil
}

// All возвращает ресурсы в порядке описания.
func (c *Catalog) All() []*Resource {
	out := make([]*Resource, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.byName[name])
	}
	return out
}

// RegisterEnvelopes регистрирует конверты всех ресурсов в реестре клиента.
func (c *Catalog) RegisterEnvelopes(reg *apiclient.Registry) error {
	for _, r := range c.All() {
		if err := reg.Register(r.Name, r.Envelope); err != nil {
			return fmt.Errorf("регистрация конверта: %w", err)
		}
	}
	return nil
}
