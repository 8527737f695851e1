package tts

import (
	"context"

	"text-to-voice/pkg/models"
)

// TTSService представляет интерфейс для Text-to-Speech сервиса
type TTSService interface {
	// Synthesize преобразует текст в аудио с заданными голосом, моделью и настройками
	Synthesize(ctx context.Context, req models.SynthesisRequest) ([]byte, error)
}
