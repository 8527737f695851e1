package models

import (
	"errors"
	"time"
)

// ErrTextKeyMissing возвращается, когда запись помечена как файловая, но ключ текста не задан
var ErrTextKeyMissing = errors.New("запись помечена is_file, но bucket_key_text не задан")

// ProcessRecord представляет запись задачи озвучивания в таблице process
type ProcessRecord struct {
	ID             string    `json:"id" db:"id"`
	Content        *string   `json:"content" db:"content"`                   // текст, если запись не файловая
	IsFile         bool      `json:"is_file" db:"is_file"`                   // текст лежит в хранилище
	BucketKeyText  *string   `json:"bucket_key_text" db:"bucket_key_text"`   // ключ текстового файла
	BucketKeyVoice *string   `json:"bucket_key_voice" db:"bucket_key_voice"` // публичный URL аудио
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// TextSourceKind различает источники текста
type TextSourceKind int

const (
	// TextSourceInline текст хранится в самой записи
	TextSourceInline TextSourceKind = iota
	// TextSourceFile текст хранится в хранилище под ключом
	TextSourceFile
)

// TextSource описывает, откуда брать текст для синтеза.
// Для Inline значим только Text, для File только Key.
type TextSource struct {
	Kind TextSourceKind
	Text string
	Key  string
}

// InlineText создает источник с текстом из записи
func InlineText(text string) TextSource {
	return TextSource{Kind: TextSourceInline, Text: text}
}

// FileText создает источник с текстом из хранилища
func FileText(key string) TextSource {
	return TextSource{Kind: TextSourceFile, Key: key}
}

// TextSource определяет источник текста по флагу is_file
func (r *ProcessRecord) TextSource() (TextSource, error) {
	if r.IsFile {
		if r.BucketKeyText == nil || *r.BucketKeyText == "" {
			return TextSource{}, ErrTextKeyMissing
		}
		return FileText(*r.BucketKeyText), nil
	}

	if r.Content == nil {
		return InlineText(""), nil
	}
	return InlineText(*r.Content), nil
}

// VoiceSettings параметры качества голоса
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// SynthesisRequest представляет запрос на синтез речи
type SynthesisRequest struct {
	Text          string
	VoiceID       string
	ModelID       string
	VoiceSettings VoiceSettings
}

// AudioArtifact представляет сгенерированный аудио файл
type AudioArtifact struct {
	Name        string
	Data        []byte
	ContentType string
	URL         string
}

// TextToVoiceResponse ответ при успешной озвучке
type TextToVoiceResponse struct {
	Audio    string `json:"audio"`
	AudioURL string `json:"audioUrl"`
}

// ErrorResponse тело ответа с ошибкой
type ErrorResponse struct {
	Error string `json:"error"`
}
