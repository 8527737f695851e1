package store

import (
	"context"
	"errors"
	"fmt"
	"net"

	"text-to-voice/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var (
	// ErrProcessNotFound запись process с таким id отсутствует
	ErrProcessNotFound = errors.New("запись process не найдена")
	// ErrStoreUnavailable база данных недоступна
	ErrStoreUnavailable = errors.New("база данных недоступна")
)

// ProcessRepository интерфейс для работы с задачами озвучивания
type ProcessRepository interface {
	GetByID(ctx context.Context, id string) (*models.ProcessRecord, error)
	UpdateVoiceKey(ctx context.Context, id, voiceURL string) (*models.ProcessRecord, error)
	ListVoiceKeys(ctx context.Context) ([]string, error)
}

const processColumns = `id, content, is_file, bucket_key_text, bucket_key_voice, created_at`

// processRepository реализует ProcessRepository
type processRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewProcessRepository создает новый репозиторий задач озвучивания
func NewProcessRepository(db *pgxpool.Pool, logger *zap.Logger) ProcessRepository {
	return &processRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID получает запись по id
func (r *processRepository) GetByID(ctx context.Context, id string) (*models.ProcessRecord, error) {
	query := `SELECT ` + processColumns + ` FROM process WHERE id = $1`

	record, err := scanProcess(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, classifyError("ошибка получения записи process", err)
	}

	r.logger.Debug("получена запись process",
		zap.String("process_id", record.ID),
		zap.Bool("is_file", record.IsFile))

	return record, nil
}

// UpdateVoiceKey сохраняет URL аудио в bucket_key_voice.
// Выигрывает последний записавший, конкурентные изменения не отслеживаются.
func (r *processRepository) UpdateVoiceKey(ctx context.Context, id, voiceURL string) (*models.ProcessRecord, error) {
	query := `
		UPDATE process
		SET bucket_key_voice = $2
		WHERE id = $1
		RETURNING ` + processColumns

	record, err := scanProcess(r.db.QueryRow(ctx, query, id, voiceURL))
	if err != nil {
		return nil, classifyError("ошибка обновления записи process", err)
	}

	r.logger.Info("обновлена запись process",
		zap.String("process_id", record.ID),
		zap.String("bucket_key_voice", voiceURL))

	return record, nil
}

// ListVoiceKeys возвращает все непустые bucket_key_voice
func (r *processRepository) ListVoiceKeys(ctx context.Context) ([]string, error) {
	query := `SELECT bucket_key_voice FROM process WHERE bucket_key_voice IS NOT NULL`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, classifyError("ошибка получения ссылок на аудио", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("ошибка сканирования ссылки на аудио: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, classifyError("ошибка чтения ссылок на аудио", err)
	}

	return keys, nil
}

func scanProcess(row pgx.Row) (*models.ProcessRecord, error) {
	record := &models.ProcessRecord{}
	err := row.Scan(
		&record.ID,
		&record.Content,
		&record.IsFile,
		&record.BucketKeyText,
		&record.BucketKeyVoice,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// classifyError отделяет отсутствие строки и недоступность базы от прочих ошибок
func classifyError(msg string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrProcessNotFound
	}
	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", msg, ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func isUnavailable(err error) bool {
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// ErrorMessage текст ошибки базы для ответа клиенту: сообщение PostgreSQL
// или исходная причина без оберток репозитория
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Message
	}

	cause := err
	for {
		switch e := cause.(type) {
		case interface{ Unwrap() []error }:
			errs := e.Unwrap()
			if len(errs) == 0 {
				return cause.Error()
			}
			cause = errs[len(errs)-1]
		case interface{ Unwrap() error }:
			next := e.Unwrap()
			if next == nil {
				return cause.Error()
			}
			cause = next
		default:
			return cause.Error()
		}
	}
}
