// Package pipeline озвучивает запись process: загрузка записи, получение текста,
// синтез речи, сохранение аудио и запись ссылки обратно в process.
//
// Этапы выполняются строго последовательно, ошибка любого этапа завершает запуск.
// Уже загруженное аудио при последующей ошибке не удаляется: такие файлы
// подбирает cleanup.Sweeper.
package pipeline

import (
	"context"
	"errors"
	"net/http"
	"time"

	"text-to-voice/internal/blobstore"
	"text-to-voice/internal/store"
	"text-to-voice/internal/tts"
	"text-to-voice/pkg/models"

	"go.uber.org/zap"
)

// ContentTypeMPEG тип содержимого сохраняемого аудио
const ContentTypeMPEG = "audio/mpeg"

// RecordStore чтение и обновление записей process
type RecordStore interface {
	GetByID(ctx context.Context, id string) (*models.ProcessRecord, error)
	UpdateVoiceKey(ctx context.Context, id, voiceURL string) (*models.ProcessRecord, error)
}

// BlobStore хранилище текстовых и аудио файлов
type BlobStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, name string, data []byte, contentType string) error
	PublicURL(name string) (string, error)
}

// Recorder принимает метрики запуска
type Recorder interface {
	ObserveStage(stage string, duration time.Duration)
	RecordRun(kind string, success bool)
	RecordAudio(size int)
}

// Config параметры синтеза, одинаковые для всех запусков
type Config struct {
	VoiceID       string
	ModelID       string
	VoiceSettings models.VoiceSettings
}

// Service выполняет озвучку записей
type Service struct {
	records     RecordStore
	blobs       BlobStore
	synthesizer tts.TTSService
	namer       *Namer
	cfg         Config
	recorder    Recorder
	logger      *zap.Logger
}

// Option настраивает Service
type Option func(*Service)

// WithRecorder подключает метрики
func WithRecorder(recorder Recorder) Option {
	return func(s *Service) {
		s.recorder = recorder
	}
}

// WithNamer задает генератор имен файлов
func WithNamer(namer *Namer) Option {
	return func(s *Service) {
		s.namer = namer
	}
}

// NewService создает сервис озвучки
func NewService(records RecordStore, blobs BlobStore, synthesizer tts.TTSService, cfg Config, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		records:     records,
		blobs:       blobs,
		synthesizer: synthesizer,
		namer:       NewNamer(),
		cfg:         cfg,
		recorder:    nopRecorder{},
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run озвучивает запись с указанным id и возвращает сохраненный артефакт
func (s *Service) Run(ctx context.Context, id string) (*models.AudioArtifact, error) {
	artifact, err := s.run(ctx, id)
	if err != nil {
		var pipelineErr *Error
		if !errors.As(err, &pipelineErr) {
			pipelineErr = newError(KindArtifactStoreError, StagePublish, id, http.StatusInternalServerError, err.Error(), err)
		}

		s.logger.Error("ошибка озвучки записи",
			zap.String("stage", string(pipelineErr.Stage)),
			zap.String("process_id", id),
			zap.String("kind", string(pipelineErr.Kind)),
			zap.Int("status", pipelineErr.Status),
			zap.Error(pipelineErr.Err))
		s.recorder.RecordRun(string(pipelineErr.Kind), false)

		return nil, pipelineErr
	}

	s.recorder.RecordRun("", true)
	s.logger.Info("запись озвучена",
		zap.String("process_id", id),
		zap.String("audio", artifact.Name),
		zap.String("audio_url", artifact.URL))

	return artifact, nil
}

func (s *Service) run(ctx context.Context, id string) (*models.AudioArtifact, error) {
	if id == "" {
		return nil, newError(KindInvalidRequest, StageRequest, id, http.StatusBadRequest, MsgIDRequired, nil)
	}

	record, err := s.loadRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	text, err := s.resolveText(ctx, record)
	if err != nil {
		return nil, err
	}

	audio, err := s.synthesize(ctx, id, text)
	if err != nil {
		return nil, err
	}

	return s.publish(ctx, id, audio)
}

// loadRecord получает запись из базы
func (s *Service) loadRecord(ctx context.Context, id string) (*models.ProcessRecord, error) {
	defer s.observe(StageLoadRecord, time.Now())

	record, err := s.records.GetByID(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrProcessNotFound):
		return nil, newError(KindRecordNotFound, StageLoadRecord, id, http.StatusBadRequest, MsgRowNotFound, err)
	case errors.Is(err, store.ErrStoreUnavailable):
		return nil, newError(KindStoreUnavailable, StageLoadRecord, id, http.StatusBadRequest, store.ErrorMessage(err), err)
	default:
		return nil, newError(KindRecordNotFound, StageLoadRecord, id, http.StatusBadRequest, store.ErrorMessage(err), err)
	}

	if record == nil {
		return nil, newError(KindRecordNotFound, StageLoadRecord, id, http.StatusBadRequest, MsgRowNotFound, store.ErrProcessNotFound)
	}

	s.logger.Debug("запись загружена", zap.String("process_id", id), zap.Bool("is_file", record.IsFile))
	return record, nil
}

// resolveText возвращает текст для синтеза без каких-либо преобразований
func (s *Service) resolveText(ctx context.Context, record *models.ProcessRecord) (string, error) {
	defer s.observe(StageResolveText, time.Now())

	source, err := record.TextSource()
	if err != nil {
		return "", newError(KindBlobDownloadFailed, StageResolveText, record.ID, http.StatusInternalServerError,
			"Error downloading file: "+err.Error(), err)
	}

	if source.Kind == models.TextSourceInline {
		return source.Text, nil
	}

	data, err := s.blobs.Download(ctx, source.Key)
	if err != nil {
		return "", newError(KindBlobDownloadFailed, StageResolveText, record.ID, http.StatusInternalServerError,
			"Error downloading file: "+err.Error(), err)
	}
	if len(data) == 0 {
		return "", newError(KindBlobEmpty, StageResolveText, record.ID, http.StatusBadRequest, MsgBlobEmpty, nil)
	}

	s.logger.Debug("текст получен из хранилища",
		zap.String("process_id", record.ID),
		zap.String("bucket_key_text", source.Key),
		zap.Int("size", len(data)))

	return string(data), nil
}

// synthesize вызывает сервис синтеза речи
func (s *Service) synthesize(ctx context.Context, id, text string) ([]byte, error) {
	defer s.observe(StageSynthesize, time.Now())

	audio, err := s.synthesizer.Synthesize(ctx, models.SynthesisRequest{
		Text:          text,
		VoiceID:       s.cfg.VoiceID,
		ModelID:       s.cfg.ModelID,
		VoiceSettings: s.cfg.VoiceSettings,
	})
	if err != nil {
		if errors.Is(err, tts.ErrAPIKeyNotSet) {
			return nil, newError(KindConfigurationError, StageSynthesize, id, http.StatusInternalServerError, err.Error(), err)
		}

		status := http.StatusBadGateway
		var providerErr *tts.ProviderError
		if errors.As(err, &providerErr) && providerErr.StatusCode != 0 {
			status = providerErr.StatusCode
		}
		return nil, newError(KindSynthesisProviderError, StageSynthesize, id, status, err.Error(), err)
	}

	s.recorder.RecordAudio(len(audio))
	return audio, nil
}

// publish сохраняет аудио, получает публичную ссылку и записывает ее в process
func (s *Service) publish(ctx context.Context, id string, audio []byte) (*models.AudioArtifact, error) {
	defer s.observe(StagePublish, time.Now())

	artifact := &models.AudioArtifact{
		Name:        s.namer.Next(),
		Data:        audio,
		ContentType: ContentTypeMPEG,
	}

	if err := s.blobs.Upload(ctx, artifact.Name, artifact.Data, artifact.ContentType); err != nil {
		return nil, newError(KindArtifactStoreError, StagePublish, id, http.StatusInternalServerError, storageMessage(err), err)
	}

	publicURL, err := s.blobs.PublicURL(artifact.Name)
	if err != nil || publicURL == "" {
		if err == nil {
			err = blobstore.ErrPublicURLUnavailable
		}
		s.logger.Warn("аудио сохранено без ссылки", zap.String("process_id", id), zap.String("audio", artifact.Name))
		return nil, newError(KindArtifactStoreError, StagePublish, id, http.StatusInternalServerError, MsgPublicURLError, err)
	}
	artifact.URL = publicURL

	if _, err := s.records.UpdateVoiceKey(ctx, id, publicURL); err != nil {
		s.logger.Warn("аудио сохранено, но запись не обновлена", zap.String("process_id", id), zap.String("audio", artifact.Name))
		message := store.ErrorMessage(err)
		if errors.Is(err, store.ErrProcessNotFound) {
			message = MsgRowNotFound
		}
		return nil, newError(KindArtifactStoreError, StagePublish, id, http.StatusInternalServerError, message, err)
	}

	return artifact, nil
}

func (s *Service) observe(stage Stage, start time.Time) {
	s.recorder.ObserveStage(string(stage), time.Since(start))
}

type nopRecorder struct{}

func (nopRecorder) ObserveStage(string, time.Duration) {}
func (nopRecorder) RecordRun(string, bool)             {}
func (nopRecorder) RecordAudio(int)                    {}
