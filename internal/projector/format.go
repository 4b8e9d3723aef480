// format.go — преобразования значений колонок.
package projector

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	dateLayout     = "Jan 2, 2006"
	dateTimeLayout = "Jan 2, 2006 15:04"
)

// inputLayouts — форматы дат, которые присылает backend.
var inputLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// currencySymbols — символы поддерживаемых валют.
var currencySymbols = map[string]string{
	"INR": "₹",
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"AED": "AED ",
}

// sanitize схлопывает переводы строк, табуляции, управляющие символы
// и повторяющиеся пробелы в один пробел.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

func formatText(v any) (any, bool) {
	switch t := v.(type) {
	case string:
		s := sanitize(t)
		return s, s != ""
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return boolText(t), true
	case map[string]any:
		// ссылка на документ: берётся её имя
		for _, k := range []string{"name", "chapterName", "title"} {
			if s, ok := t[k].(string); ok && sanitize(s) != "" {
				return sanitize(s), true
			}
		}
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := formatText(item); ok {
				parts = append(parts, s.(string))
			}
		}
		return strings.Join(parts, ", "), len(parts) > 0
	}
	return nil, false
}

// toFloat приводит число из JSON или строки к float64.
func toFloat(v any) (float64, bool) {
	var (
		f   float64
		err error
	)
	switch t := v.(type) {
	case json.Number:
		f, err = t.Float64()
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		f, err = strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(t), ",", ""), 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// formatNumber оставляет значение числом: целые — int64, дробные — float64.
func formatNumber(v any) (any, bool) {
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	}
	f, ok := toFloat(v)
	if !ok {
		return nil, false
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f), true
	}
	return f, true
}

func formatDate(v any, layout string) (any, bool) {
	t, ok := parseTime(v)
	if !ok {
		return nil, false
	}
	return t.UTC().Format(layout), true
}

// parseTime разбирает дату из строки или unix-времени в миллисекундах.
func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range inputLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
	case json.Number, float64:
		ms, ok := toFloat(t)
		if ok && ms > 0 {
			return time.UnixMilli(int64(ms)), true
		}
	}
	return time.Time{}, false
}

func formatCurrency(v any, code string) (any, bool) {
	amount, ok := toFloat(v)
	if !ok {
		return nil, false
	}
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	symbol := currencySymbols[strings.ToUpper(strings.TrimSpace(code))]
	return sign + symbol + groupDigits(amount, 2), true
}

func formatBool(v any) (any, bool) {
	switch t := v.(type) {
	case bool:
		return boolText(t), true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return nil, false
		}
		return boolText(b), true
	}
	return nil, false
}

func boolText(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// countOf возвращает длину массива; отсутствующее значение — 0.
func countOf(v any, ok bool) int64 {
	if !ok {
		return 0
	}
	if arr, isArr := v.([]any); isArr {
		return int64(len(arr))
	}
	if n, isNum := formatNumber(v); isNum {
		if i, isInt := n.(int64); isInt {
			return i
		}
	}
	return 0
}

// groupDigits форматирует неотрицательное число с decimals знаками после
// точки и запятыми между тысячами: 1234567.5 → "1,234,567.50".
func groupDigits(f float64, decimals int) string {
	s := strconv.FormatFloat(f, 'f', decimals, 64)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	pre := len(intPart) % 3
	if pre > 0 {
		b.WriteString(intPart[:pre])
	}
	for i := pre; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
