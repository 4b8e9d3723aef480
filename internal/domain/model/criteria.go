// criteria.go — критерии фильтрации списка и курсор пагинации.
package model

import (
	"maps"
	"slices"
	"strings"
)

// Имена общих полей фильтра. Ресурсы могут объявлять дополнительные ключи.
const (
	FilterSearch    = "search"
	FilterChapter   = "chapter"
	FilterCategory  = "category"
	FilterStatus    = "status"
	FilterStartDate = "startDate"
	FilterEndDate   = "endDate"
)

// Значения пагинации по умолчанию.
const (
	DefaultPage  = 1
	DefaultLimit = 20
)

// FilterCriteria — именованные необязательные поля фильтра и курсор страницы.
// Незаданные поля не хранятся: пустая строка означает «не задано»
// и никогда не уходит в запрос.
type FilterCriteria struct {
	Page    int
	Limit   int
	filters map[string]string
}

// NewCriteria создаёт критерии с указанными страницей и лимитом.
func NewCriteria(page, limit int) FilterCriteria {
	c := FilterCriteria{Page: page, Limit: limit}
	c.Normalize()
	return c
}

// Normalize приводит Page ≥ 1 и Limit > 0.
func (c *FilterCriteria) Normalize() {
	if c.Page < 1 {
		c.Page = DefaultPage
	}
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
}

// Get возвращает значение фильтра и признак его наличия.
func (c FilterCriteria) Get(key string) (string, bool) {
	v, ok := c.filters[key]
	return v, ok
}

// Set задаёт значение фильтра. Пустое (после TrimSpace) значение удаляет ключ.
func (c *FilterCriteria) Set(key, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		delete(c.filters, key)
		return
	}
	if c.filters == nil {
		c.filters = make(map[string]string)
	}
	c.filters[key] = value
}

// Delete удаляет фильтр.
func (c *FilterCriteria) Delete(key string) {
	delete(c.filters, key)
}

// Apply применяет патч: каждое значение задаёт или (если пустое) сбрасывает ключ.
func (c *FilterCriteria) Apply(patch map[string]string) {
	for k, v := range patch {
		c.Set(k, v)
	}
}

// Keys возвращает отсортированный список заданных ключей.
func (c FilterCriteria) Keys() []string {
	return slices.Sorted(maps.Keys(c.filters))
}

// Filters возвращает копию заданных фильтров.
func (c FilterCriteria) Filters() map[string]string {
	return maps.Clone(c.filters)
}

// Clone возвращает независимую копию критериев.
func (c FilterCriteria) Clone() FilterCriteria {
	return FilterCriteria{Page: c.Page, Limit: c.Limit, filters: maps.Clone(c.filters)}
}

// WithPage возвращает копию с другой страницей.
func (c FilterCriteria) WithPage(page int) FilterCriteria {
	out := c.Clone()
	out.Page = page
	out.Normalize()
	return out
}

// WithLimit возвращает копию с другим лимитом.
func (c FilterCriteria) WithLimit(limit int) FilterCriteria {
	out := c.Clone()
	out.Limit = limit
	out.Normalize()
	return out
}

// Equal сравнивает критерии по странице, лимиту и фильтрам.
func (c FilterCriteria) Equal(other FilterCriteria) bool {
	return c.Page == other.Page && c.Limit == other.Limit && maps.Equal(c.filters, other.filters)
}
