package tts

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// ErrAPIKeyNotSet ключ ElevenLabs не задан, запрос не отправлялся
var ErrAPIKeyNotSet = errors.New("Eleven Labs API Key not set")

// ProviderError ошибка сервиса синтеза речи.
// StatusCode равен 0, если ответ не был получен (ошибка сети, таймаут).
type ProviderError struct {
	StatusCode int
	Status     string
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("Eleven Labs API Error: %v", e.Err)
	}
	return fmt.Sprintf("Eleven Labs API Error: %s", e.StatusText())
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// StatusText возвращает текст статуса без числового кода
func (e *ProviderError) StatusText() string {
	text := strings.TrimSpace(strings.TrimPrefix(e.Status, strconv.Itoa(e.StatusCode)))
	if text == "" {
		text = http.StatusText(e.StatusCode)
	}
	return text
}
