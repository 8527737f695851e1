package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Значения по умолчанию для ElevenLabs
const (
	DefaultElevenLabsBaseURL = "https://api.elevenlabs.io/v1"
	DefaultVoiceID           = "x5IDPSl4ZUbhosMmVFTk"
	DefaultModelID           = "eleven_monolingual_v1"
	DefaultStability         = 0.5
	DefaultSimilarity        = 0.5
)

// Config содержит все конфигурационные параметры приложения
type Config struct {
	Database   DatabaseConfig
	Storage    StorageConfig
	ElevenLabs ElevenLabsConfig
	Cleanup    CleanupConfig
	App        AppConfig
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MigrationPath string
}

// StorageConfig содержит настройки хранилища файлов
type StorageConfig struct {
	NATSURL       string
	Bucket        string
	PublicBaseURL string
}

// ElevenLabsConfig содержит настройки синтеза речи
type ElevenLabsConfig struct {
	APIKey         string
	BaseURL        string
	VoiceID        string
	ModelID        string
	Stability      float64
	Similarity     float64
	TimeoutSeconds int
}

// CleanupConfig содержит настройки очистки осиротевших аудио файлов
type CleanupConfig struct {
	Interval time.Duration // 0 отключает периодическую очистку
	MinAge   time.Duration
}

type AppConfig struct {
	Env      string
	LogLevel string
	Port     int
}

// Load загружает конфигурацию из переменных окружения и .env
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Database
	cfg.Database.Host = getEnvDefault("DB_HOST", "localhost")
	cfg.Database.Port = getEnvIntDefault("DB_PORT", 5432)
	cfg.Database.User = os.Getenv("DB_USER")
	cfg.Database.Password = os.Getenv("DB_PASSWORD")
	cfg.Database.Name = os.Getenv("DB_NAME")
	cfg.Database.SSLMode = getEnvDefault("DB_SSL_MODE", "disable")
	cfg.Database.MigrationPath = getEnvDefault("MIGRATION_PATH", "scripts/migrations")

	// App
	cfg.App.Env = getEnvDefault("APP_ENV", "development")
	cfg.App.LogLevel = getEnvDefault("LOG_LEVEL", "info")
	cfg.App.Port = getEnvIntDefault("APP_PORT", 8080)

	// Storage
	cfg.Storage.NATSURL = getEnvDefault("NATS_URL", "nats://127.0.0.1:4222")
	cfg.Storage.Bucket = os.Getenv("BUCKET_NAME")
	cfg.Storage.PublicBaseURL = getEnvDefault("PUBLIC_BASE_URL", fmt.Sprintf("http://localhost:%d", cfg.App.Port))

	// ElevenLabs
	cfg.ElevenLabs.APIKey = os.Getenv("ELEVEN_LABS_API_KEY")
	cfg.ElevenLabs.BaseURL = getEnvDefault("ELEVEN_LABS_API_BASE_URL", DefaultElevenLabsBaseURL)
	cfg.ElevenLabs.VoiceID = getEnvDefault("ELEVEN_LABS_VOICE_ID", DefaultVoiceID)
	cfg.ElevenLabs.ModelID = getEnvDefault("ELEVEN_LABS_MODEL_ID", DefaultModelID)
	cfg.ElevenLabs.Stability = getEnvFloatDefault("ELEVEN_LABS_STABILITY", DefaultStability)
	cfg.ElevenLabs.Similarity = getEnvFloatDefault("ELEVEN_LABS_SIMILARITY", DefaultSimilarity)
	cfg.ElevenLabs.TimeoutSeconds = getEnvIntDefault("ELEVEN_LABS_TIMEOUT_SECONDS", 60)

	// Cleanup
	cfg.Cleanup.Interval = getEnvDurationDefault("CLEANUP_INTERVAL", 0)
	cfg.Cleanup.MinAge = getEnvDurationDefault("CLEANUP_MIN_AGE", time.Hour)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("ошибка валидации конфигурации: %w", err)
	}

	return cfg, nil
}

func getEnvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvFloatDefault(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// validateConfig проверяет корректность конфигурации.
// Ключ ElevenLabs не обязателен: его отсутствие проверяется при каждой озвучке.
func validateConfig(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("DB_HOST не установлен")
	}
	if config.Database.User == "" {
		return fmt.Errorf("DB_USER не установлен")
	}
	if config.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD не установлен")
	}
	if config.Database.Name == "" {
		return fmt.Errorf("DB_NAME не установлен")
	}
	if config.Storage.NATSURL == "" {
		return fmt.Errorf("NATS_URL не установлен")
	}
	if config.Storage.Bucket == "" {
		return fmt.Errorf("BUCKET_NAME не установлен")
	}
	if config.ElevenLabs.Stability < 0 || config.ElevenLabs.Stability > 1 {
		return fmt.Errorf("ELEVEN_LABS_STABILITY должен быть в диапазоне [0,1], получено %f", config.ElevenLabs.Stability)
	}
	if config.ElevenLabs.Similarity < 0 || config.ElevenLabs.Similarity > 1 {
		return fmt.Errorf("ELEVEN_LABS_SIMILARITY должен быть в диапазоне [0,1], получено %f", config.ElevenLabs.Similarity)
	}
	if config.ElevenLabs.TimeoutSeconds <= 0 {
		return fmt.Errorf("ELEVEN_LABS_TIMEOUT_SECONDS должен быть положительным")
	}
	if config.Cleanup.Interval < 0 {
		return fmt.Errorf("CLEANUP_INTERVAL не может быть отрицательным")
	}

	return nil
}

// GetDSN возвращает строку подключения к базе данных
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// GetURL возвращает строку подключения в формате URL (для goose)
func (c *DatabaseConfig) GetURL() string {
	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// HTTPTimeout возвращает таймаут запросов к ElevenLabs
func (c *ElevenLabsConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// IsDevelopment проверяет, запущено ли приложение в режиме разработки
func (c *AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction проверяет, запущено ли приложение в продакшн режиме
func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}

// GetLogLevel возвращает уровень логирования в формате zap
func (c *AppConfig) GetLogLevel() zap.AtomicLevel {
	switch c.LogLevel {
	case "debug":
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
}
