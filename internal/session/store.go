// Пакет session — хранилище сессии вызывающего пользователя.
// Ядро читает сессию только через Store и никогда её не изменяет.
// Источники: claims JWT (API-клиенты) и зашифрованный cookie (браузер).
package session

import (
	"context"
	"errors"
)

// Ключи хранилища сессии.
const (
	// KeyUser — JSON-блок пользователя: role, chapter/chapter_name, _id, name, email.
	KeyUser = "user"
	// KeyToken — bearer-токен для запросов к backend.
	KeyToken = "token"
)

// ErrNoToken — в сессии нет токена backend.
var ErrNoToken = errors.New("в сессии отсутствует токен backend")

// Store — read-only доступ к значениям сессии.
type Store interface {
	Get(key string) (string, bool)
}

// Values — Store поверх map. Нулевое значение — пустая сессия.
type Values map[string]string

// Get возвращает значение по ключу. Пустая строка считается отсутствующей.
func (v Values) Get(key string) (string, bool) {
	val, ok := v[key]
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

type contextKey struct{}

// WithStore помещает хранилище сессии в контекст запроса.
func WithStore(ctx context.Context, s Store) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext извлекает хранилище сессии. Если его нет — пустая сессия.
func FromContext(ctx context.Context) Store {
	s, ok := ctx.Value(contextKey{}).(Store)
	if !ok || s == nil {
		return Values(nil)
	}
	return s
}

// TokenFromContext — TokenProvider, читающий токен backend из сессии запроса.
func TokenFromContext(ctx context.Context) (string, error) {
	token, ok := FromContext(ctx).Get(KeyToken)
	if !ok {
		return "", ErrNoToken
	}
	return token, nil
}
