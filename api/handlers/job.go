package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/elearning-factory/internal/service/document"
	"github.com/feichai0017/elearning-factory/internal/utils/validator"
	"github.com/feichai0017/elearning-factory/pkg/logger"
)

type JobHandler struct {
	service document.DocumentProcessor
	uploads *validator.DocumentValidator
	logger  logger.Logger
}

type JobResponse struct {
	TaskID    string            `json:"taskId"`
	SessionID string            `json:"sessionId,omitempty"`
	Status    string            `json:"status"`
	Progress  float64           `json:"progress"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt string            `json:"createdAt"`
	UpdatedAt string            `json:"updatedAt,omitempty"`
}

func NewJobHandler(service document.DocumentProcessor, uploads *validator.DocumentValidator, log logger.Logger) *JobHandler {
	return &JobHandler{
		service: service,
		uploads: uploads,
		logger:  log,
	}
}

// Enqueue queues a generation job for the worker.
func (h *JobHandler) Enqueue(c *gin.Context) {
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

	task, err := h.service.EnqueueGenerate(c.Request.Context(), c.Param("sessionId"), files, form.options())
	if err != nil {
		fail(c, h.logger, "Failed to queue generation", err)
		return
	}

	c.JSON(http.StatusAccepted, JobResponse{
		TaskID:    task.ID,
		SessionID: task.SessionID,
		Status:    string(task.Status),
		Metadata:  task.Metadata,
		CreatedAt: task.CreatedAt.Format(time.RFC3339),
	})
}

func (h *JobHandler) GetStatus(c *gin.Context) {
	task, err := h.service.GetProcessingStatus(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		fail(c, h.logger, "Failed to get status", err)
		return
	}

	resp := JobResponse{
		TaskID:    task.ID,
		SessionID: task.SessionID,
		Status:    string(task.Status),
		Progress:  task.Progress,
		Error:     task.Error,
		CreatedAt: task.CreatedAt.Format(time.RFC3339),
	}
	if !task.UpdatedAt.IsZero() {
		resp.UpdatedAt = task.UpdatedAt.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *JobHandler) GetResult(c *gin.Context) {
	result, err := h.service.GetResult(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		fail(c, h.logger, "Failed to get result", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Cancel removes a job that has not started yet.
func (h *JobHandler) Cancel(c *gin.Context) {
	taskID := c.Param("taskId")
	if err := h.service.CancelTask(c.Request.Context(), taskID); err != nil {
		fail(c, h.logger, "Failed to cancel task", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Task cancelled successfully",
		"taskId":  taskID,
	})
}
