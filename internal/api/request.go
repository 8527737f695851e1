package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// maxRequestBody ограничение размера тела запроса озвучки
const maxRequestBody = 64 * 1024

var errIDMissing = errors.New("id не указан")

// parseID извлекает id из тела {"id": ...}.
// Допускается строка или число; отсутствие, null, "", 0 и false считаются пустым id.
func parseID(body io.Reader) (string, error) {
	decoder := json.NewDecoder(io.LimitReader(body, maxRequestBody))
	decoder.UseNumber()

	var req map[string]any
	if err := decoder.Decode(&req); err != nil {
		return "", fmt.Errorf("ошибка чтения JSON: %w", err)
	}

	switch v := req["id"].(type) {
	case string:
		if v == "" {
			return "", errIDMissing
		}
		return v, nil
	case json.Number:
		return numericID(v)
	case nil:
		return "", errIDMissing
	case bool:
		if !v {
			return "", errIDMissing
		}
		return "", fmt.Errorf("некорректный тип id: %T", v)
	default:
		return "", fmt.Errorf("некорректный тип id: %T", v)
	}
}

// numericID приводит числовой id к виду первичного ключа: 42.0 и 4.2e1 дают "42"
func numericID(v json.Number) (string, error) {
	if i, err := v.Int64(); err == nil {
		if i == 0 {
			return "", errIDMissing
		}
		return strconv.FormatInt(i, 10), nil
	}

	f, err := strconv.ParseFloat(v.String(), 64)
	if err != nil {
		return "", fmt.Errorf("некорректный id %q: %w", v, err)
	}
	if f == 0 {
		return "", errIDMissing
	}
	// целые вне диапазона int64 передаются как есть
	if f == math.Trunc(f) && math.Abs(f) < math.MaxInt64 {
		return strconv.FormatInt(int64(f), 10), nil
	}
	return v.String(), nil
}
