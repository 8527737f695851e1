package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"text-to-voice/pkg/models"

	"go.uber.org/zap"
)

const (
	headerAPIKey    = "xi-api-key"
	contentTypeJSON = "application/json"
	contentTypeMPEG = "audio/mpeg"

	// maxErrorBody ограничивает тело ошибки, попадающее в логи
	maxErrorBody = 4096
)

// elevenLabsRequest тело запроса к /text-to-speech/{voice_id}
type elevenLabsRequest struct {
	Text          string               `json:"text"`
	ModelID       string               `json:"model_id"`
	VoiceSettings models.VoiceSettings `json:"voice_settings"`
}

// ElevenLabsService предоставляет синтез речи через ElevenLabs API
type ElevenLabsService struct {
	logger  *zap.Logger
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewElevenLabsService создает новый клиент ElevenLabs
func NewElevenLabsService(logger *zap.Logger, apiKey, baseURL string, timeout time.Duration) *ElevenLabsService {
	return &ElevenLabsService{
		logger:  logger,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Synthesize отправляет текст в ElevenLabs и возвращает mp3 целиком
func (s *ElevenLabsService) Synthesize(ctx context.Context, req models.SynthesisRequest) ([]byte, error) {
	if s.apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	s.logger.Info("🎵 генерируем аудио через ElevenLabs",
		zap.String("voice_id", req.VoiceID),
		zap.String("model_id", req.ModelID),
		zap.Int("text_length", len(req.Text)))

	audioData, err := s.generateAudio(ctx, req)
	if err != nil {
		return nil, err
	}

	s.logger.Info("🎵 аудио успешно сгенерировано",
		zap.String("voice_id", req.VoiceID),
		zap.Int("audio_size", len(audioData)))

	return audioData, nil
}

// generateAudio выполняет POST запрос и читает ответ
func (s *ElevenLabsService) generateAudio(ctx context.Context, req models.SynthesisRequest) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/text-to-speech/%s", s.baseURL, url.PathEscape(req.VoiceID))

	body, err := json.Marshal(elevenLabsRequest{
		Text:          req.Text,
		ModelID:       req.ModelID,
		VoiceSettings: req.VoiceSettings,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации запроса: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	httpReq.Header.Set(headerAPIKey, s.apiKey)
	httpReq.Header.Set("Content-Type", contentTypeJSON)
	httpReq.Header.Set("Accept", contentTypeMPEG)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Err: fmt.Errorf("ошибка выполнения запроса: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		s.logger.Error("Eleven Labs API Error",
			zap.Int("status", resp.StatusCode),
			zap.String("status_text", resp.Status),
			zap.String("body", string(respBody)))

		return nil, &ProviderError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(respBody),
		}
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Err: fmt.Errorf("ошибка чтения аудио данных: %w", err)}
	}

	return audioData, nil
}
