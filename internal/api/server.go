// Package api HTTP шлюз сервиса озвучки
package api

import (
	"context"
	"net/http"

	"text-to-voice/internal/blobstore"
	"text-to-voice/internal/metrics"
	"text-to-voice/internal/pipeline"
	"text-to-voice/pkg/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Runner запускает озвучку записи
type Runner interface {
	Run(ctx context.Context, id string) (*models.AudioArtifact, error)
}

// ObjectReader отдает сохраненные объекты по имени
type ObjectReader interface {
	Bucket() string
	Get(ctx context.Context, name string) (*blobstore.Object, error)
}

// Заголовки, разрешенные для CORS запросов
var allowedHeaders = []string{"authorization", "x-client-info", "apikey", "content-type"}

// Server HTTP сервер с маршрутами озвучки, публичных файлов и метрик
type Server struct {
	echo    *echo.Echo
	runner  Runner
	objects ObjectReader
	metrics *metrics.Handler
	logger  *zap.Logger
}

// NewServer создает сервер и регистрирует маршруты
func NewServer(runner Runner, objects ObjectReader, metricsHandler *metrics.Handler, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: allowedHeaders,
	}))

	s := &Server{
		echo:    e,
		runner:  runner,
		objects: objects,
		metrics: metricsHandler,
		logger:  logger,
	}
	s.initRoutes()

	return s
}

func (s *Server) initRoutes() {
	s.echo.POST("/text-to-voice", s.textToVoice)
	s.echo.POST("/", s.textToVoice)

	s.echo.GET(blobstore.PublicPathPrefix+"/:bucket/:name", s.publicObject)

	s.echo.GET("/health", echo.WrapHandler(http.HandlerFunc(s.metrics.HealthHandler)))
	s.echo.GET("/metrics", echo.WrapHandler(s.metrics.MetricsHandler()))
}

// Handler возвращает http.Handler сервера
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start запускает прослушивание адреса. Возвращает http.ErrServerClosed после Shutdown.
func (s *Server) Start(address string) error {
	s.logger.Info("HTTP сервер запущен", zap.String("address", address))
	return s.echo.Start(address)
}

// Shutdown останавливает сервер, дожидаясь активных запросов
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}

func errorJSON(c echo.Context, status int, message string) error {
	return c.JSON(status, models.ErrorResponse{Error: message})
}

// pipelineStatus статус ответа для ошибки конвейера
func pipelineStatus(err error) int {
	status := pipeline.StatusOf(err)
	if status < 100 || status > 599 {
		return http.StatusInternalServerError
	}
	return status
}
