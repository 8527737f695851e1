// Package cleanup удаляет аудио файлы, на которые не ссылается ни одна запись process.
//
// Такие файлы остаются, когда аудио загружено, а ссылка не получена или запись
// не обновлена, а также после повторной озвучки той же записи.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"text-to-voice/internal/blobstore"

	"go.uber.org/zap"
)

// DefaultMinAge файлы моложе этого возраста не трогаем: конвейер мог еще не записать ссылку
const DefaultMinAge = time.Hour

const (
	audioPrefix = "tts-"
	audioSuffix = ".mp3"
)

// VoiceKeyLister возвращает все сохраненные ссылки на аудио
type VoiceKeyLister interface {
	ListVoiceKeys(ctx context.Context) ([]string, error)
}

// ObjectStore список и удаление объектов бакета
type ObjectStore interface {
	List(ctx context.Context) ([]blobstore.ObjectInfo, error)
	Delete(ctx context.Context, name string) error
}

// Recorder принимает количество удаленных файлов
type Recorder interface {
	RecordOrphansDeleted(count int)
}

// Options параметры очистки
type Options struct {
	MinAge time.Duration
	DryRun bool
}

// Result итог одного прохода
type Result struct {
	Checked int
	Orphans []string
	Deleted int
}

// Sweeper находит и удаляет осиротевшие аудио файлы
type Sweeper struct {
	records  VoiceKeyLister
	objects  ObjectStore
	opts     Options
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewSweeper создает очистку. recorder может быть nil.
func NewSweeper(records VoiceKeyLister, objects ObjectStore, opts Options, recorder Recorder, logger *zap.Logger) *Sweeper {
	if opts.MinAge < 0 {
		opts.MinAge = 0
	}
	return &Sweeper{
		records:  records,
		objects:  objects,
		opts:     opts,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Run выполняет один проход; подходит как задача планировщика
func (s *Sweeper) Run(ctx context.Context) error {
	_, err := s.Sweep(ctx)
	return err
}

// Sweep выполняет один проход и возвращает его итог
func (s *Sweeper) Sweep(ctx context.Context) (*Result, error) {
	s.logger.Info("запуск очистки осиротевших аудио",
		zap.Duration("min_age", s.opts.MinAge),
		zap.Bool("dry_run", s.opts.DryRun))

	// объекты читаем раньше ссылок: файл, загруженный после чтения ссылок, не попадет в список
	objects, err := s.objects.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка файлов: %w", err)
	}

	keys, err := s.records.ListVoiceKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения ссылок на аудио: %w", err)
	}

	referenced := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if name := objectName(key); name != "" {
			referenced[name] = struct{}{}
		}
	}

	result := &Result{}
	cutoff := s.now().Add(-s.opts.MinAge)

	for _, obj := range objects {
		if !isAudio(obj.Name) {
			continue
		}
		result.Checked++

		if _, ok := referenced[obj.Name]; ok {
			continue
		}
		if obj.ModTime.After(cutoff) {
			s.logger.Debug("файл слишком свежий, пропускаем", zap.String("name", obj.Name))
			continue
		}
		result.Orphans = append(result.Orphans, obj.Name)
	}

	if s.opts.DryRun {
		s.logger.Info("найдены осиротевшие аудио (dry-run)",
			zap.Int("checked", result.Checked),
			zap.Strings("orphans", result.Orphans))
		return result, nil
	}

	var errs []error
	for _, name := range result.Orphans {
		if err := s.objects.Delete(ctx, name); err != nil {
			if errors.Is(err, blobstore.ErrObjectNotFound) {
				continue
			}
			s.logger.Error("ошибка удаления файла", zap.String("name", name), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		result.Deleted++
	}

	if s.recorder != nil && result.Deleted > 0 {
		s.recorder.RecordOrphansDeleted(result.Deleted)
	}

	s.logger.Info("очистка осиротевших аудио завершена",
		zap.Int("checked", result.Checked),
		zap.Int("orphans", len(result.Orphans)),
		zap.Int("deleted", result.Deleted))

	return result, errors.Join(errs...)
}

// objectName имя файла из публичной ссылки
func objectName(voiceKey string) string {
	voiceKey = strings.TrimSpace(voiceKey)
	if voiceKey == "" {
		return ""
	}

	if u, err := url.Parse(voiceKey); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(voiceKey)
}

func isAudio(name string) bool {
	return strings.HasPrefix(name, audioPrefix) && strings.HasSuffix(name, audioSuffix)
}
