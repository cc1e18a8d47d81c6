package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/elearning-factory/internal/service/document"
	"github.com/feichai0017/elearning-factory/internal/utils/validator"
	"github.com/feichai0017/elearning-factory/pkg/converters"
	"github.com/feichai0017/elearning-factory/pkg/logger"
)

type DocumentHandler struct {
	service document.DocumentProcessor
	uploads *validator.DocumentValidator
	logger  logger.Logger
}

type ExtractResponse struct {
	SessionID  string `json:"sessionId"`
	Text       string `json:"text"`
	TokenCount int    `json:"tokenCount"`
	Files      any    `json:"files"`
}

type ChatRequest struct {
	Message string `json:"message" binding:"required"`
}

func NewDocumentHandler(service document.DocumentProcessor, uploads *validator.DocumentValidator, log logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		service: service,
		uploads: uploads,
		logger:  log,
	}
}

// Extract runs the extraction pipeline and returns the aggregate context
// without generating anything.
func (h *DocumentHandler) Extract(c *gin.Context) {
	sessionID := c.Param("sessionId")
	files, err := readUploads(c, h.uploads)
	if err != nil {
		fail(c, h.logger, "Invalid file upload", err)
		return
	}

	agg, err := h.service.Extract(c.Request.Context(), sessionID, files)
	if err != nil {
		fail(c, h.logger, "Failed to extract documents", err)
		return
	}

	c.JSON(http.StatusOK, ExtractResponse{
		SessionID:  sessionID,
		Text:       agg.Text,
		TokenCount: agg.TokenCount,
		Files:      agg.Tasks,
	})
}

// Generate extracts the uploaded files and generates the requested document.
// With ?stream=true the reply is sent as server-sent events.
func (h *DocumentHandler) Generate(c *gin.Context) {
	sessionID := c.Param("sessionId")

	var form GenerateForm
	if err := c.ShouldBind(&form); err != nil {
		handleError(c, h.logger, http.StatusBadRequest, "Invalid form data", err)
		return
	}
	files, err := readUploads(c, h.uploads)
	if err != nil {
		fail(c, h.logger, "Invalid file upload", err)
		return
	}

	if c.Query("stream") == "true" {
		streamReply(c, h.logger, func(onDelta func(string)) (any, error) {
			return h.service.Generate(c.Request.Context(), sessionID, files, form.options(), onDelta)
		})
		return
	}

	result, err := h.service.Generate(c.Request.Context(), sessionID, files, form.options(), nil)
	if err != nil {
		fail(c, h.logger, "Failed to generate document", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Chat refines the last generated document with the user's feedback.
func (h *DocumentHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, h.logger, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	out, err := h.service.Refine(c.Request.Context(), c.Param("sessionId"), req.Message, nil)
	if err != nil {
		fail(c, h.logger, "Failed to refine document", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *DocumentHandler) ChatStream(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, h.logger, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	sessionID := c.Param("sessionId")
	streamReply(c, h.logger, func(onDelta func(string)) (any, error) {
		return h.service.Refine(c.Request.Context(), sessionID, req.Message, onDelta)
	})
}

// Export downloads the session as docx, pdf or json. With store=true the file
// is written to blob storage and a presigned link is returned instead.
func (h *DocumentHandler) Export(c *gin.Context) {
	format, err := converters.ParseFormat(c.DefaultQuery("format", string(converters.FormatDOCX)))
	if err != nil {
		fail(c, h.logger, "Invalid export format", err)
		return
	}
	store := c.Query("store") == "true"

	res, err := h.service.Export(c.Request.Context(), c.Param("sessionId"), format, store)
	if err != nil {
		fail(c, h.logger, "Failed to export session", err)
		return
	}

	if store {
		c.JSON(http.StatusOK, res)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.FileName))
	c.Data(http.StatusOK, res.ContentType, res.Data)
}

// streamReply runs fn and forwards its deltas as "delta" events. The final
// value is sent as a "done" event; a failure after the stream has started is
// reported as an "error" event.
func streamReply(c *gin.Context, log logger.Logger, fn func(onDelta func(string)) (any, error)) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	onDelta := func(delta string) {
		c.SSEvent("delta", delta)
		c.Writer.Flush()
	}

	res, err := fn(onDelta)
	if err != nil {
		logger.FromContext(c.Request.Context(), log).Warn("Streamed generation failed",
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", statusFor(err)),
			logger.Error(err),
		)
		c.SSEvent("error", ErrorResponse{Error: err.Error(), Message: http.StatusText(statusFor(err))})
		c.Writer.Flush()
		return
	}
	c.SSEvent("done", res)
	c.Writer.Flush()
}
