package migrations

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"text-to-voice/internal/config"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// RunMigrations применяет миграции к базе данных
func RunMigrations(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("начало применения миграций")

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("ошибка установки диалекта: %w", err)
	}

	// Отдельное подключение через database/sql, goose не работает с pgxpool
	db, err := sql.Open("postgres", cfg.Database.GetURL())
	if err != nil {
		return fmt.Errorf("ошибка подключения к базе данных для миграций: %w", err)
	}
	defer db.Close()

	migrationPath := getMigrationPath(cfg.Database.MigrationPath, logger)

	if err := goose.Up(db, migrationPath); err != nil {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}

	version, err := goose.GetDBVersion(db)
	if err != nil {
		logger.Warn("не удалось получить версию схемы", zap.Error(err))
	} else {
		logger.Info("миграции успешно применены", zap.Int64("version", version))
	}

	return nil
}

// maxParentLookup сколько родительских директорий просматривается при поиске миграций
const maxParentLookup = 3

// getMigrationPath возвращает путь из конфигурации, если он существует.
// Относительный путь дополнительно ищется в родительских директориях:
// бинарник и тесты могут запускаться из cmd/ или internal/<пакет>.
func getMigrationPath(configPath string, logger *zap.Logger) string {
	if isDir(configPath) {
		logger.Info("используем путь к миграциям из конфигурации", zap.String("path", configPath))
		return configPath
	}
	if filepath.IsAbs(configPath) {
		logger.Warn("директория миграций не найдена", zap.String("path", configPath))
		return configPath
	}

	dir, err := os.Getwd()
	if err != nil {
		logger.Warn("не удалось получить текущую директорию, используем путь из конфигурации", zap.Error(err))
		return configPath
	}

	for i := 0; i < maxParentLookup; i++ {
		dir = filepath.Dir(dir)
		candidate := filepath.Join(dir, configPath)
		if isDir(candidate) {
			logger.Info("найден путь к миграциям", zap.String("path", candidate))
			return candidate
		}
	}

	logger.Warn("не удалось найти директорию с миграциями, используем путь из конфигурации", zap.String("path", configPath))
	return configPath
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
