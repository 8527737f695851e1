package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"text-to-voice/internal/api"
	"text-to-voice/internal/blobstore"
	"text-to-voice/internal/cleanup"
	"text-to-voice/internal/config"
	"text-to-voice/internal/metrics"
	"text-to-voice/internal/migrations"
	"text-to-voice/internal/pipeline"
	"text-to-voice/internal/scheduler"
	"text-to-voice/internal/store"
	"text-to-voice/internal/tts"
	"text-to-voice/pkg/models"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	// Инициализация логгера
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	logger, err := initLogger(level)
	if err != nil {
		fmt.Printf("Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("запуск сервиса Text to Voice")

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("ошибка загрузки конфигурации", zap.Error(err))
	}
	level.SetLevel(cfg.App.GetLogLevel().Level())

	// Инициализация базы данных
	store, err := store.NewStore(cfg, logger)
	if err != nil {
		logger.Fatal("ошибка инициализации базы данных", zap.Error(err))
	}
	defer store.Close()

	// Применение миграций
	if err := migrations.RunMigrations(cfg, logger); err != nil {
		logger.Fatal("ошибка применения миграций", zap.Error(err))
	}

	// Подключение к NATS и бакету файлов
	natsConn, err := nats.Connect(cfg.Storage.NATSURL, nats.Name("text-to-voice"))
	if err != nil {
		logger.Fatal("ошибка подключения к NATS", zap.String("url", cfg.Storage.NATSURL), zap.Error(err))
	}
	defer natsConn.Close()

	js, err := natsConn.JetStream()
	if err != nil {
		logger.Fatal("ошибка получения контекста JetStream", zap.Error(err))
	}

	blobs, err := blobstore.New(js, cfg.Storage.Bucket, cfg.Storage.PublicBaseURL, logger)
	if err != nil {
		logger.Fatal("ошибка инициализации хранилища файлов", zap.Error(err))
	}

	// Инициализация TTS сервиса
	if cfg.ElevenLabs.APIKey == "" {
		logger.Warn("ELEVEN_LABS_API_KEY не установлен, озвучка будет завершаться ошибкой")
	}
	ttsService := tts.NewElevenLabsService(logger, cfg.ElevenLabs.APIKey, cfg.ElevenLabs.BaseURL, cfg.ElevenLabs.HTTPTimeout())

	logger.Info("конфигурация ElevenLabs",
		zap.String("voice_id", cfg.ElevenLabs.VoiceID),
		zap.String("model_id", cfg.ElevenLabs.ModelID))

	// Инициализация метрик
	metricsSystem := metrics.New(logger, prometheus.DefaultRegisterer)
	metricsHandler := metrics.NewHandler(prometheus.DefaultGatherer, logger)

	// Конвейер озвучки
	service := pipeline.NewService(store.Process(), blobs, ttsService, pipeline.Config{
		VoiceID: cfg.ElevenLabs.VoiceID,
		ModelID: cfg.ElevenLabs.ModelID,
		VoiceSettings: models.VoiceSettings{
			Stability:       cfg.ElevenLabs.Stability,
			SimilarityBoost: cfg.ElevenLabs.Similarity,
		},
	}, logger, pipeline.WithRecorder(metricsSystem))

	// Создание канала для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Планировщик очистки осиротевших аудио
	taskScheduler := scheduler.NewScheduler(logger)
	sweeper := cleanup.NewSweeper(store.Process(), blobs, cleanup.Options{MinAge: cfg.Cleanup.MinAge}, metricsSystem, logger)
	taskScheduler.AddJob("orphan_audio_cleanup", sweeper)
	go taskScheduler.Start(ctx, cfg.Cleanup.Interval)

	// HTTP сервер
	server := api.NewServer(service, blobs, metricsHandler, logger)
	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.App.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ошибка HTTP сервера", zap.Error(err))
			sigChan <- syscall.SIGTERM
		}
	}()

	logger.Info("сервис запущен и готов к работе",
		zap.String("address", fmt.Sprintf("http://localhost:%d", cfg.App.Port)),
		zap.String("bucket", cfg.Storage.Bucket))

	// Ожидание сигнала завершения
	<-sigChan
	logger.Info("получен сигнал завершения, начинаем graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("ошибка при остановке HTTP сервера", zap.Error(err))
	}

	logger.Info("сервис остановлен")
}

// initLogger инициализирует логгер
func initLogger(level zap.AtomicLevel) (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.Level = level
	config.OutputPaths = []string{"stdout", "logs/app.log"}
	config.ErrorOutputPaths = []string{"stderr", "logs/error.log"}

	// Создаем директорию для логов если её нет
	if err := os.MkdirAll("logs", 0755); err != nil {
		return nil, fmt.Errorf("ошибка создания директории логов: %w", err)
	}

	return config.Build()
}
