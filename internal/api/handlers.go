package api

import (
	"context"
	"errors"
	"net/http"

	"text-to-voice/internal/blobstore"
	"text-to-voice/internal/pipeline"
	"text-to-voice/pkg/models"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// textToVoice озвучивает запись, id берется из JSON тела
func (s *Server) textToVoice(c echo.Context) error {
	id, err := parseID(c.Request().Body)
	if err != nil {
		s.logger.Warn("некорректный запрос озвучки",
			zap.String("request_id", requestID(c)),
			zap.Error(err))
		return errorJSON(c, http.StatusBadRequest, pipeline.MsgIDRequired)
	}

	// запуск доводится до конца даже после отключения клиента
	artifact, err := s.runner.Run(context.WithoutCancel(c.Request().Context()), id)
	if err != nil {
		// подробности уже залогированы конвейером
		return errorJSON(c, pipelineStatus(err), err.Error())
	}

	s.logger.Info("озвучка выполнена",
		zap.String("request_id", requestID(c)),
		zap.String("process_id", id),
		zap.String("audio", artifact.Name))

	return c.JSON(http.StatusOK, models.TextToVoiceResponse{
		Audio:    artifact.Name,
		AudioURL: artifact.URL,
	})
}

// publicObject отдает объект бакета по публичной ссылке
func (s *Server) publicObject(c echo.Context) error {
	bucket := c.Param("bucket")
	name := c.Param("name")

	if bucket != s.objects.Bucket() {
		return errorJSON(c, http.StatusNotFound, "Bucket not found")
	}

	obj, err := s.objects.Get(c.Request().Context(), name)
	if err != nil {
		if errors.Is(err, blobstore.ErrObjectNotFound) {
			return errorJSON(c, http.StatusNotFound, "Object not found")
		}
		s.logger.Error("ошибка получения объекта",
			zap.String("request_id", requestID(c)),
			zap.String("bucket", bucket),
			zap.String("name", name),
			zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "Storage Error: "+err.Error())
	}

	contentType := obj.ContentType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}

	return c.Blob(http.StatusOK, contentType, obj.Data)
}
