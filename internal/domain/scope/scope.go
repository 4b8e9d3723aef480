// Пакет scope — вычисление области видимости вызывающего пользователя
// по данным сессии: администратор, исполнительный директор или участник,
// ограниченный своим отделением (chapter).
// Ошибки разбора сессии не выходят наружу: при любой проблеме
// возвращается самая узкая область видимости.
package scope

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/model"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/session"
)

// Роли, распознаваемые резолвером.
const (
	RoleSuperAdmin        = "superadmin"
	RoleAdmin             = "admin"
	RoleExecutiveDirector = "executiveDirector"
)

// adminRoles — фиксированный allow-list административных ролей.
var adminRoles = map[string]bool{
	RoleSuperAdmin: true,
	RoleAdmin:      true,
}

// Scope — эффективная область видимости вызывающего.
// Если IsAdmin и IsExecutiveDirector ложны, все фильтры и результаты
// ограничены Chapter.
type Scope struct {
	IsAdmin             bool   `json:"isAdmin"`
	IsExecutiveDirector bool   `json:"isExecutiveDirector"`
	Chapter             string `json:"chapter"`
	Role                string `json:"role,omitempty"`
	// Actor — идентификатор пользователя для журнала экспорта.
	Actor string `json:"actor,omitempty"`
}

// User — разобранный JSON-блок "user" из сессии.
type User struct {
	ID          string `json:"_id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	Chapter     string `json:"-"`
	ChapterName string `json:"-"`
}

// ResolutionError — сессия отсутствует или повреждена.
// Обрабатывается локально: вызывающий получает самую узкую область.
type ResolutionError struct {
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("разбор сессии: %s: %v", e.Reason, e.Err)
	}
	return "разбор сессии: " + e.Reason
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Resolve вычисляет Scope из хранилища сессии. Никогда не возвращает ошибку.
func Resolve(store session.Store) Scope {
	s, _ := TryResolve(store)
	return s
}

// TryResolve — как Resolve, но дополнительно возвращает причину отката
// к самой узкой области (*ResolutionError) для логирования.
func TryResolve(store session.Store) (Scope, error) {
	if store == nil {
		return Scope{}, &ResolutionError{Reason: "хранилище сессии не задано"}
	}
	raw, ok := store.Get(session.KeyUser)
	if !ok {
		return Scope{}, &ResolutionError{Reason: "ключ user отсутствует"}
	}
	user, err := ParseUser(raw)
	if err != nil {
		return Scope{}, err
	}
	return FromUser(user), nil
}

// FromUser строит Scope из разобранного пользователя.
func FromUser(u User) Scope {
	chapter := u.Chapter
	if chapter == "" {
		chapter = u.ChapterName
	}

	actor := u.Email
	if actor == "" {
		actor = u.Name
	}
	if actor == "" {
		actor = u.ID
	}

	return Scope{
		IsAdmin:             adminRoles[u.Role],
		IsExecutiveDirector: u.Role == RoleExecutiveDirector,
		Chapter:             chapter,
		Role:                u.Role,
		Actor:               actor,
	}
}

// ParseUser разбирает JSON-блок пользователя.
// chapter и chapter_name допускаются строкой или объектом с полем name.
func ParseUser(raw string) (User, error) {
	var doc struct {
		User
		Chapter     json.RawMessage `json:"chapter"`
		ChapterName json.RawMessage `json:"chapter_name"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return User{}, &ResolutionError{Reason: "некорректный JSON пользователя", Err: err}
	}

	u := doc.User
	u.Role = strings.TrimSpace(u.Role)
	u.Chapter = chapterName(doc.Chapter)
	u.ChapterName = chapterName(doc.ChapterName)
	return u, nil
}

// chapterName извлекает имя отделения из строки или объекта {"name": ...}.
func chapterName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Name        string `json:"name"`
		ChapterName string `json:"chapter_name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Name != "" {
			return strings.TrimSpace(obj.Name)
		}
		return strings.TrimSpace(obj.ChapterName)
	}
	return ""
}

// Restricted — область ограничена одним отделением.
func (s Scope) Restricted() bool {
	return !s.IsAdmin && !s.IsExecutiveDirector
}

// ChapterLocked — выбор отделения в фильтрах заблокирован.
func (s Scope) ChapterLocked() bool {
	return s.Restricted()
}

// Closed — ограниченная область без отделения: показывать нечего.
func (s Scope) Closed() bool {
	return s.Restricted() && s.Chapter == ""
}

// Allows проверяет, доступна ли запись отделения chapter.
func (s Scope) Allows(chapter string) bool {
	if !s.Restricted() {
		return true
	}
	return s.Chapter != "" && strings.EqualFold(strings.TrimSpace(chapter), s.Chapter)
}

// DefaultCriteria возвращает критерии по умолчанию для нового списка.
// Для ограниченной области фильтр отделения предустановлен.
func (s Scope) DefaultCriteria(limit int) model.FilterCriteria {
	c := model.NewCriteria(model.DefaultPage, limit)
	return s.Apply(c)
}

// Apply принудительно выставляет фильтр отделения для ограниченной области.
// Для неограниченной области критерии возвращаются без изменений.
func (s Scope) Apply(c model.FilterCriteria) model.FilterCriteria {
	if !s.Restricted() {
		return c
	}
	out := c.Clone()
	out.Set(model.FilterChapter, s.Chapter)
	return out
}

// ChapterOptions ограничивает варианты выпадающего списка отделений.
func (s Scope) ChapterOptions(all []string) []string {
	if !s.Restricted() {
		return slices.Clone(all)
	}
	if s.Chapter == "" {
		return []string{}
	}
	return []string{s.Chapter}
}
