// cookie.go — зашифрованный cookie браузерной сессии консоли.
// Шифрование AES-256-GCM; внутри — JSON со значениями Values.
package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Имя cookie сессии консоли.
const CookieName = "rc_session"

// Максимальный возраст cookie сессии (12 часов).
const CookieMaxAge = 12 * 60 * 60

// cookiePayload — содержимое cookie.
type cookiePayload struct {
	Values    Values `json:"values"`
	ExpiresAt int64  `json:"expires_at"`
}

// Manager шифрует и дешифрует значения сессии в HTTP cookie.
type Manager struct {
	gcm    cipher.AEAD
	secure bool
	path   string
	now    func() time.Time
}

// NewManager создаёт менеджер сессий.
// key — base64 32-байтового ключа или произвольная строка (хешируется SHA-256).
// Пустой key — случайный ключ, сессии не переживают рестарт.
func NewManager(key string, secure bool) (*Manager, error) {
	var keyBytes []byte

	if key == "" {
		keyBytes = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, keyBytes); err != nil {
			return nil, fmt.Errorf("генерация ключа сессии: %w", err)
		}
	} else {
		var err error
		keyBytes, err = base64.StdEncoding.DecodeString(key)
		if err != nil || len(keyBytes) != 32 {
			h := sha256.Sum256([]byte(key))
			keyBytes = h[:]
		}
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("создание AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("создание GCM: %w", err)
	}

	return &Manager{gcm: gcm, secure: secure, path: "/", now: time.Now}, nil
}

// Encrypt шифрует значения сессии в base64-строку.
func (m *Manager) Encrypt(values Values) (string, error) {
	plaintext, err := json.Marshal(cookiePayload{
		Values:    values,
		ExpiresAt: m.now().Add(CookieMaxAge * time.Second).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("сериализация сессии: %w", err)
	}

	nonce := make([]byte, m.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("генерация nonce: %w", err)
	}

	return base64.URLEncoding.EncodeToString(m.gcm.Seal(nonce, nonce, plaintext, nil)), nil
}

// Decrypt дешифрует строку cookie. Просроченная сессия — ошибка.
func (m *Manager) Decrypt(encrypted string) (Values, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("декодирование base64: %w", err)
	}

	nonceSize := m.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("зашифрованные данные слишком короткие")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := m.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("дешифрование сессии: %w", err)
	}

	var payload cookiePayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, fmt.Errorf("десериализация сессии: %w", err)
	}
	if m.now().Unix() >= payload.ExpiresAt {
		return nil, errors.New("сессия истекла")
	}

	return payload.Values, nil
}

// SetCookie записывает зашифрованную сессию в ответ.
func (m *Manager) SetCookie(w http.ResponseWriter, values Values) error {
	encrypted, err := m.Encrypt(values)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    encrypted,
		Path:     m.path,
		MaxAge:   CookieMaxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// FromRequest извлекает сессию из cookie запроса.
// Возвращает nil, nil, если cookie отсутствует.
func (m *Manager) FromRequest(r *http.Request) (Values, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return nil, nil
		}
		return nil, err
	}
	return m.Decrypt(cookie.Value)
}

// ClearCookie удаляет cookie сессии (logout).
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     m.path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
