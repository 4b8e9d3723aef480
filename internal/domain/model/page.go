// Пакет model — доменные значения конвейера списков и экспорта:
// критерии фильтрации, нормализованная страница Page[T], запись ресурса.
package model

// Page — нормализованный срез отфильтрованного списка ресурса.
// Инварианты: len(Docs) ≤ Limit; TotalPages = ceil(TotalDocs/Limit);
// HasNextPage ⇔ Page < TotalPages; HasPrevPage ⇔ Page > 1.
type Page[T any] struct {
	Docs          []T  `json:"docs"`
	TotalDocs     int  `json:"totalDocs"`
	Page          int  `json:"page"`
	Limit         int  `json:"limit"`
	TotalPages    int  `json:"totalPages"`
	HasNextPage   bool `json:"hasNextPage"`
	HasPrevPage   bool `json:"hasPrevPage"`
	PagingCounter int  `json:"pagingCounter,omitempty"`
}

// TotalPages вычисляет ceil(totalDocs/limit). При limit ≤ 0 возвращает 0.
func TotalPages(totalDocs, limit int) int {
	if limit <= 0 || totalDocs <= 0 {
		return 0
	}
	pages := totalDocs / limit
	if totalDocs%limit != 0 {
		pages++
	}
	return pages
}

// NewPage собирает страницу и выводит производные поля из totalDocs/page/limit.
func NewPage[T any](docs []T, totalDocs, page, limit int) *Page[T] {
	p := &Page[T]{
		Docs:      docs,
		TotalDocs: totalDocs,
		Page:      page,
		Limit:     limit,
	}
	p.Derive()
	return p
}

// EmptyPage — пустая первая страница (используется для закрытой области видимости).
func EmptyPage[T any](limit int) *Page[T] {
	return NewPage[T]([]T{}, 0, 1, limit)
}

// Derive пересчитывает TotalPages, HasNextPage, HasPrevPage и PagingCounter.
// Значения, присланные backend, не используются: разные endpoints заполняют
// их непоследовательно.
func (p *Page[T]) Derive() {
	if p.Docs == nil {
		p.Docs = []T{}
	}
	if p.Page < 1 {
		p.Page = 1
	}
	p.TotalPages = TotalPages(p.TotalDocs, p.Limit)
	p.HasNextPage = p.Page < p.TotalPages
	p.HasPrevPage = p.Page > 1
	if p.Limit > 0 {
		p.PagingCounter = (p.Page-1)*p.Limit + 1
	}
}

// Len возвращает количество записей на странице.
func (p *Page[T]) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Docs)
}
