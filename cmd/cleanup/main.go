package main

import (
	"context"
	"flag"
	"log"
	"time"

	"text-to-voice/internal/blobstore"
	"text-to-voice/internal/cleanup"
	"text-to-voice/internal/config"
	"text-to-voice/internal/store"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

func main() {
	var (
		dryRun = flag.Bool("dry-run", false, "Показать что будет удалено без фактического удаления")
		minAge = flag.Duration("min-age", 0, "Минимальный возраст файла для удаления (0 = CLEANUP_MIN_AGE)")
	)
	flag.Parse()

	// Инициализация логгера
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Ошибка инициализации логгера:", err)
	}
	defer logger.Sync()

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}

	// Подключение к базе данных
	store, err := store.NewStore(cfg, logger)
	if err != nil {
		logger.Fatal("Ошибка подключения к базе данных", zap.Error(err))
	}
	defer store.Close()

	// Подключение к хранилищу файлов
	natsConn, err := nats.Connect(cfg.Storage.NATSURL, nats.Name("text-to-voice-cleanup"))
	if err != nil {
		logger.Fatal("Ошибка подключения к NATS", zap.Error(err))
	}
	defer natsConn.Close()

	js, err := natsConn.JetStream()
	if err != nil {
		logger.Fatal("Ошибка получения контекста JetStream", zap.Error(err))
	}

	blobs, err := blobstore.New(js, cfg.Storage.Bucket, cfg.Storage.PublicBaseURL, logger)
	if err != nil {
		logger.Fatal("Ошибка инициализации хранилища файлов", zap.Error(err))
	}

	age := cfg.Cleanup.MinAge
	if *minAge > 0 {
		age = *minAge
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	sweeper := cleanup.NewSweeper(store.Process(), blobs, cleanup.Options{MinAge: age, DryRun: *dryRun}, nil, logger)
	result, err := sweeper.Sweep(ctx)
	if err != nil {
		logger.Fatal("Ошибка очистки осиротевших аудио", zap.Error(err))
	}

	if *dryRun {
		logger.Info("Dry run завершен",
			zap.Int("checked", result.Checked),
			zap.Strings("would_delete", result.Orphans))
		return
	}

	logger.Info("Очистка осиротевших аудио завершена успешно",
		zap.Int("checked", result.Checked),
		zap.Int("deleted", result.Deleted))
}
