package scope

import (
	"errors"
	"testing"

	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/model"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/session"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		store     session.Store
		admin     bool
		ed        bool
		chapter   string
		wantError bool
	}{
		{
			name:    "superadmin",
			store:   session.Values{session.KeyUser: `{"role":"superadmin","chapter":"HQ"}`},
			admin:   true,
			chapter: "HQ",
		},
		{
			name:    "admin с chapter_name",
			store:   session.Values{session.KeyUser: `{"role":"admin","chapter_name":"Believers"}`},
			admin:   true,
			chapter: "Believers",
		},
		{
			name:  "исполнительный директор",
			store: session.Values{session.KeyUser: `{"role":"executiveDirector"}`},
			ed:    true,
		},
		{
			name:    "участник",
			store:   session.Values{session.KeyUser: `{"role":"member","chapter":"Achievers"}`},
			chapter: "Achievers",
		},
		{
			name:    "chapter объектом",
			store:   session.Values{session.KeyUser: `{"role":"member","chapter":{"_id":"c1","name":"Achievers"}}`},
			chapter: "Achievers",
		},
		{
			name:    "роль вне allow-list",
			store:   session.Values{session.KeyUser: `{"role":"Admin","chapter":"Achievers"}`},
			chapter: "Achievers",
		},
		{
			name:      "сессия отсутствует",
			store:     session.Values{},
			wantError: true,
		},
		{
			name:      "повреждённый JSON",
			store:     session.Values{session.KeyUser: `{"role":`},
			wantError: true,
		},
		{
			name:      "nil store",
			store:     nil,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TryResolve(tt.store)
			if tt.wantError {
				var resErr *ResolutionError
				if !errors.As(err, &resErr) {
					t.Fatalf("ожидалась ResolutionError, получено %v", err)
				}
			} else if err != nil {
				t.Fatalf("неожиданная ошибка: %v", err)
			}

			if got.IsAdmin != tt.admin || got.IsExecutiveDirector != tt.ed || got.Chapter != tt.chapter {
				t.Errorf("получено %+v, ожидалось admin=%v ed=%v chapter=%q", got, tt.admin, tt.ed, tt.chapter)
			}

			// Resolve никогда не возвращает ошибку и совпадает с TryResolve
			if Resolve(tt.store) != got {
				t.Error("Resolve и TryResolve расходятся")
			}
		})
	}
}

func TestResolve_MostRestrictedOnFailure(t *testing.T) {
	s := Resolve(session.Values{session.KeyUser: "not json"})
	if !s.Restricted() || !s.Closed() || s.Chapter != "" {
		t.Errorf("ожидалась самая узкая область, получено %+v", s)
	}
	if s.Allows("Achievers") {
		t.Error("закрытая область не должна пропускать записи")
	}
	if opts := s.ChapterOptions([]string{"Achievers", "Believers"}); len(opts) != 0 {
		t.Errorf("ChapterOptions = %v, ожидался пустой список", opts)
	}
}

// TestScope_RestrictionAchievers — для ограниченной области «Achievers»
// фильтры и варианты выбора содержат только «Achievers».
func TestScope_RestrictionAchievers(t *testing.T) {
	s := Scope{Chapter: "Achievers"}

	c := model.NewCriteria(1, 20)
	c.Set(model.FilterChapter, "Believers")
	c = s.Apply(c)
	if v, _ := c.Get(model.FilterChapter); v != "Achievers" {
		t.Errorf("Apply: chapter = %q, ожидалось Achievers", v)
	}

	d := s.DefaultCriteria(50)
	if v, _ := d.Get(model.FilterChapter); v != "Achievers" || d.Limit != 50 {
		t.Errorf("DefaultCriteria: chapter = %q, limit = %d", v, d.Limit)
	}

	opts := s.ChapterOptions([]string{"Believers", "Achievers", "Champions"})
	if len(opts) != 1 || opts[0] != "Achievers" {
		t.Errorf("ChapterOptions = %v", opts)
	}

	if !s.Allows("achievers") || s.Allows("Believers") {
		t.Error("Allows работает неверно")
	}
	if !s.ChapterLocked() {
		t.Error("выбор отделения должен быть заблокирован")
	}
}

func TestScope_AdminUnrestricted(t *testing.T) {
	s := Scope{IsAdmin: true, Chapter: "HQ"}

	c := model.NewCriteria(1, 20)
	c.Set(model.FilterChapter, "Believers")
	if v, _ := s.Apply(c).Get(model.FilterChapter); v != "Believers" {
		t.Errorf("администратор должен выбирать отделение, получено %q", v)
	}
	if _, ok := s.DefaultCriteria(20).Get(model.FilterChapter); ok {
		t.Error("администратор по умолчанию видит все отделения")
	}
	if len(s.ChapterOptions([]string{"A", "B"})) != 2 {
		t.Error("администратору доступны все варианты")
	}
}

func TestFromUser_Actor(t *testing.T) {
	s := FromUser(User{ID: "u1", Name: "Ravi", Role: "member", ChapterName: "Achievers"})
	if s.Actor != "Ravi" || s.Chapter != "Achievers" {
		t.Errorf("получено %+v", s)
	}
}
