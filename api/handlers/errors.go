package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/elearning-factory/internal/models"
	"github.com/feichai0017/elearning-factory/internal/service/document"
	"github.com/feichai0017/elearning-factory/internal/service/pipeline"
	"github.com/feichai0017/elearning-factory/internal/service/sketch"
	"github.com/feichai0017/elearning-factory/internal/session"
	"github.com/feichai0017/elearning-factory/internal/utils/validator"
	"github.com/feichai0017/elearning-factory/pkg/converters"
	"github.com/feichai0017/elearning-factory/pkg/logger"
	"github.com/feichai0017/elearning-factory/pkg/queue"
	"github.com/feichai0017/elearning-factory/pkg/storage"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, validator.ErrNoFiles),
		errors.Is(err, validator.ErrTooManyFiles),
		errors.Is(err, validator.ErrInvalidUpload),
		errors.Is(err, pipeline.ErrNoFiles),
		errors.Is(err, pipeline.ErrEmptyFeedback),
		errors.Is(err, document.ErrInvalidOptions),
		errors.Is(err, converters.ErrUnsupportedFormat),
		errors.Is(err, sketch.ErrEmptyPrompt),
		errors.Is(err, sketch.ErrEmptyCriteria):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, queue.ErrTaskNotFound),
		errors.Is(err, queue.ErrResultNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionBusy),
		errors.Is(err, queue.ErrTaskNotCancellable),
		errors.Is(err, document.ErrTaskNotCompleted),
		errors.Is(err, pipeline.ErrNoConversation),
		errors.Is(err, converters.ErrEmptyContent):
		return http.StatusConflict
	case errors.Is(err, session.ErrRunLimitReached):
		return http.StatusTooManyRequests
	case errors.Is(err, models.ErrNotConfigured),
		errors.Is(err, storage.ErrNotConfigured),
		errors.Is(err, document.ErrJobsDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, pipeline.ErrEmptyContext):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleError logs err with the request's logger and writes an ErrorResponse.
func handleError(c *gin.Context, log logger.Logger, status int, message string, err error) {
	log = logger.FromContext(c.Request.Context(), log)
	fields := []logger.Field{
		logger.String("path", c.Request.URL.Path),
		logger.Int("status", status),
		logger.Error(err),
	}
	if status >= http.StatusInternalServerError {
		log.Error(message, fields...)
	} else {
		log.Warn(message, fields...)
	}

	response := ErrorResponse{
		Message: message,
	}
	if err != nil {
		response.Error = err.Error()
	}

	c.AbortWithStatusJSON(status, response)
}

// fail is handleError with the status derived from err.
func fail(c *gin.Context, log logger.Logger, message string, err error) {
	handleError(c, log, statusFor(err), message, err)
}
