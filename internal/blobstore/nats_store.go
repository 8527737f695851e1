// Package blobstore хранит текстовые и аудио файлы в JetStream Object Store
// и выдает для них публичные ссылки.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// PublicPathPrefix префикс публичных ссылок на объекты
const PublicPathPrefix = "/storage/v1/object/public"

const headerContentType = "Content-Type"

var (
	// ErrObjectExists объект с таким именем уже загружен
	ErrObjectExists = errors.New("объект уже существует")
	// ErrObjectNotFound объект не найден в бакете
	ErrObjectNotFound = errors.New("объект не найден")
	// ErrPublicURLUnavailable публичная ссылка не может быть построена
	ErrPublicURLUnavailable = errors.New("публичная ссылка недоступна")
)

// Object содержимое объекта с метаданными
type Object struct {
	Name        string
	Data        []byte
	ContentType string
}

// ObjectInfo краткие сведения об объекте
type ObjectInfo struct {
	Name    string
	Size    uint64
	ModTime time.Time
}

// NatsStore реализует хранилище поверх NATS JetStream Object Store
type NatsStore struct {
	store         nats.ObjectStore
	names         nats.KeyValue // резервирование имен перед загрузкой
	bucket        string
	publicBaseURL string
	logger        *zap.Logger
}

// New создает бакет или подключается к существующему
func New(js nats.JetStreamContext, bucket, publicBaseURL string, logger *zap.Logger) (*NatsStore, error) {
	store, err := js.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucket,
		Description: fmt.Sprintf("Файлы озвучки бакета %s", bucket),
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		// Бакет мог быть создан с другими настройками, пробуем подключиться
		existing, bindErr := js.ObjectStore(bucket)
		if bindErr != nil {
			return nil, fmt.Errorf("ошибка создания бакета '%s': %w", bucket, err)
		}
		store = existing
	}

	names, err := openNames(js, bucket)
	if err != nil {
		return nil, err
	}

	logger.Info("подключено хранилище файлов",
		zap.String("bucket", bucket),
		zap.String("public_base_url", publicBaseURL))

	return &NatsStore{
		store:         store,
		names:         names,
		bucket:        bucket,
		publicBaseURL: publicBaseURL,
		logger:        logger,
	}, nil
}

// namesBucket имя KV бакета с зарезервированными именами объектов
func namesBucket(bucket string) string {
	return bucket + "_names"
}

// openNames создает KV бакет резервирования имен или подключается к существующему
func openNames(js nats.JetStreamContext, bucket string) (nats.KeyValue, error) {
	kv, err := js.CreateKeyValue(&nats.KeyValueConfig{
		Bucket:      namesBucket(bucket),
		Description: fmt.Sprintf("Занятые имена объектов бакета %s", bucket),
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		existing, bindErr := js.KeyValue(namesBucket(bucket))
		if bindErr != nil {
			return nil, fmt.Errorf("ошибка создания бакета имен '%s': %w", namesBucket(bucket), err)
		}
		kv = existing
	}
	return kv, nil
}

// Bucket возвращает имя бакета
func (s *NatsStore) Bucket() string {
	return s.bucket
}

// Download скачивает содержимое объекта
func (s *NatsStore) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return obj.Data, nil
}

// Get скачивает объект вместе с типом содержимого
func (s *NatsStore) Get(ctx context.Context, name string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := s.store.Get(name)
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return nil, fmt.Errorf("объект '%s' в бакете '%s': %w", name, s.bucket, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("ошибка получения объекта '%s' из бакета '%s': %w", name, s.bucket, err)
	}

	data, readErr := io.ReadAll(result)
	closeErr := result.Close()

	if readErr != nil {
		return nil, fmt.Errorf("ошибка чтения объекта '%s': %w", name, readErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("ошибка закрытия объекта '%s': %w", name, closeErr)
	}

	obj := &Object{Name: name, Data: data}
	if info, err := result.Info(); err == nil && info.Headers != nil {
		obj.ContentType = info.Headers.Get(headerContentType)
	}

	return obj, nil
}

// Upload загружает объект. Существующий объект не перезаписывается.
func (s *NatsStore) Upload(ctx context.Context, name string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Put в Object Store перезаписывает объект, поэтому имя сначала резервируется
	// атомарным Create: из конкурентных загрузок одного имени проходит только одна.
	if _, err := s.names.Create(name, nil); err != nil {
		if errors.Is(err, nats.ErrKeyExists) {
			return fmt.Errorf("объект '%s' в бакете '%s': %w", name, s.bucket, ErrObjectExists)
		}
		return fmt.Errorf("ошибка резервирования имени '%s': %w", name, err)
	}

	// объект мог быть загружен до появления резервирования
	_, err := s.store.GetInfo(name)
	switch {
	case err == nil:
		return fmt.Errorf("объект '%s' в бакете '%s': %w", name, s.bucket, ErrObjectExists)
	case !errors.Is(err, nats.ErrObjectNotFound):
		s.release(name)
		return fmt.Errorf("ошибка проверки объекта '%s': %w", name, err)
	}

	headers := nats.Header{}
	headers.Set(headerContentType, contentType)

	_, err = s.store.Put(&nats.ObjectMeta{
		Name:    name,
		Headers: headers,
	}, bytes.NewReader(data))
	if err != nil {
		s.release(name)
		return fmt.Errorf("ошибка загрузки объекта '%s' в бакет '%s': %w", name, s.bucket, err)
	}

	s.logger.Debug("объект загружен",
		zap.String("bucket", s.bucket),
		zap.String("name", name),
		zap.Int("size", len(data)))

	return nil
}

// PublicURL строит публичную ссылку на объект
func (s *NatsStore) PublicURL(name string) (string, error) {
	if s.publicBaseURL == "" || name == "" {
		return "", ErrPublicURLUnavailable
	}

	base, err := url.Parse(strings.TrimRight(s.publicBaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("некорректный адрес '%s': %w", s.publicBaseURL, ErrPublicURLUnavailable)
	}

	return base.JoinPath(PublicPathPrefix, s.bucket, name).String(), nil
}

// List возвращает список объектов бакета
func (s *NatsStore) List(ctx context.Context) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	infos, err := s.store.List()
	if err != nil {
		if errors.Is(err, nats.ErrNoObjectsFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка получения списка объектов бакета '%s': %w", s.bucket, err)
	}

	objects := make([]ObjectInfo, 0, len(infos))
	for _, info := range infos {
		if info.Deleted {
			continue
		}
		objects = append(objects, ObjectInfo{
			Name:    info.Name,
			Size:    info.Size,
			ModTime: info.ModTime,
		})
	}

	return objects, nil
}

// Delete удаляет объект
func (s *NatsStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.store.Delete(name); err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return fmt.Errorf("объект '%s' в бакете '%s': %w", name, s.bucket, ErrObjectNotFound)
		}
		return fmt.Errorf("ошибка удаления объекта '%s': %w", name, err)
	}

	s.release(name)

	s.logger.Info("объект удален", zap.String("bucket", s.bucket), zap.String("name", name))
	return nil
}

// release снимает резервирование имени
func (s *NatsStore) release(name string) {
	if err := s.names.Delete(name); err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		s.logger.Warn("не удалось снять резервирование имени",
			zap.String("bucket", s.bucket),
			zap.String("name", name),
			zap.Error(err))
	}
}
