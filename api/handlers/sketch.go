package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/elearning-factory/internal/models"
	"github.com/feichai0017/elearning-factory/internal/service/sketch"
	"github.com/feichai0017/elearning-factory/pkg/logger"
)

type SketchHandler struct {
	service Sketcher
	logger  logger.Logger
}

func NewSketchHandler(service Sketcher, log logger.Logger) *SketchHandler {
	return &SketchHandler{
		service: service,
		logger:  log,
	}
}

// Generate runs the image critique loop. Images are returned base64 encoded.
func (h *SketchHandler) Generate(c *gin.Context) {
	if h.service == nil {
		fail(c, h.logger, "Image generation is disabled", models.ErrNotConfigured)
		return
	}

	var req sketch.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, h.logger, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		fail(c, h.logger, "Failed to generate images", err)
		return
	}
	c.JSON(http.StatusOK, result)
}
