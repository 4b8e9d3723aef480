// record.go — запись ресурса backend в виде JSON-объекта.
package model

import (
	"encoding/json"
	"strings"
)

// Record — одна запись ресурса (документ backend) без фиксированной схемы.
// Числа декодируются как json.Number, чтобы не терять точность.
type Record map[string]any

// Lookup извлекает значение по пути через точку ("receiver_id.name").
// Возвращает false, если сегмент отсутствует, равен null или не является объектом.
func (r Record) Lookup(path string) (any, bool) {
	if r == nil || path == "" {
		return nil, false
	}
	var cur any = map[string]any(r)
	for _, seg := range strings.Split(path, ".") {
		obj, ok := asObject(cur)
		if !ok {
			return nil, false
		}
		v, ok := obj[seg]
		if !ok || v == nil {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// String возвращает строковое значение по пути или "".
func (r Record) String(path string) string {
	v, ok := r.Lookup(path)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	}
	return ""
}

// ID возвращает идентификатор записи (_id или id).
func (r Record) ID() string {
	if id := r.String("_id"); id != "" {
		return id
	}
	return r.String("id")
}

func asObject(v any) (map[string]any, bool) {
	switch o := v.(type) {
	case map[string]any:
		return o, true
	case Record:
		return o, true
	}
	return nil, false
}
