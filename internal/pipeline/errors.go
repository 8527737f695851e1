package pipeline

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind тип ошибки озвучки
type Kind string

const (
	KindInvalidRequest         Kind = "InvalidRequest"
	KindRecordNotFound         Kind = "RecordNotFound"
	KindStoreUnavailable       Kind = "StoreUnavailable"
	KindBlobDownloadFailed     Kind = "BlobDownloadFailed"
	KindBlobEmpty              Kind = "BlobEmpty"
	KindConfigurationError     Kind = "ConfigurationError"
	KindSynthesisProviderError Kind = "SynthesisProviderError"
	KindArtifactStoreError     Kind = "ArtifactStoreError"
)

// Stage этап конвейера
type Stage string

const (
	StageRequest     Stage = "request"
	StageLoadRecord  Stage = "load_record"
	StageResolveText Stage = "resolve_text"
	StageSynthesize  Stage = "synthesize"
	StagePublish     Stage = "publish"
)

// Сообщения, возвращаемые клиенту
const (
	MsgIDRequired     = "Id parameter is required"
	MsgRowNotFound    = "Row not found or error occurred."
	MsgBlobEmpty      = "File download was successful, but data is null."
	MsgPublicURLError = "Failed to generate public URL for audio"
)

// Error завершающая ошибка запуска. Повторов нет, каждая ошибка прерывает конвейер.
type Error struct {
	Kind      Kind
	Stage     Stage
	ProcessID string
	Message   string // текст для клиента
	Status    int    // HTTP статус ответа
	Err       error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf возвращает тип ошибки или пустую строку, если это не ошибка конвейера
func KindOf(err error) Kind {
	var pipelineErr *Error
	if errors.As(err, &pipelineErr) {
		return pipelineErr.Kind
	}
	return ""
}

// StatusOf возвращает HTTP статус для ошибки
func StatusOf(err error) int {
	var pipelineErr *Error
	if errors.As(err, &pipelineErr) && pipelineErr.Status != 0 {
		return pipelineErr.Status
	}
	return http.StatusInternalServerError
}

func newError(kind Kind, stage Stage, id string, status int, message string, cause error) *Error {
	return &Error{
		Kind:      kind,
		Stage:     stage,
		ProcessID: id,
		Message:   message,
		Status:    status,
		Err:       cause,
	}
}

func storageMessage(cause error) string {
	return fmt.Sprintf("Storage Error: %v", cause)
}
