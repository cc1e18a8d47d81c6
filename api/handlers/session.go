package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/elearning-factory/internal/models"
	"github.com/feichai0017/elearning-factory/internal/service/document"
	"github.com/feichai0017/elearning-factory/pkg/logger"
)

type SessionHandler struct {
	service document.DocumentProcessor
	logger  logger.Logger
}

type SessionResponse struct {
	SessionID    string    `json:"sessionId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Turns        int       `json:"turns"`
	Runs         int       `json:"runs"`
	Operation    string    `json:"operation,omitempty"`
	LastResponse string    `json:"lastResponse,omitempty"`
}

func newSessionResponse(s *models.Session) SessionResponse {
	return SessionResponse{
		SessionID:    s.ID,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		Turns:        len(s.History),
		Runs:         s.Runs,
		Operation:    s.Operation,
		LastResponse: s.LastResponse,
	}
}

func NewSessionHandler(service document.DocumentProcessor, log logger.Logger) *SessionHandler {
	return &SessionHandler{
		service: service,
		logger:  log,
	}
}

func (h *SessionHandler) Create(c *gin.Context) {
	sess, err := h.service.CreateSession(c.Request.Context())
	if err != nil {
		fail(c, h.logger, "Failed to create session", err)
		return
	}
	c.JSON(http.StatusCreated, newSessionResponse(sess))
}

func (h *SessionHandler) Get(c *gin.Context) {
	sess, err := h.service.GetSession(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		fail(c, h.logger, "Failed to get session", err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(sess))
}

func (h *SessionHandler) History(c *gin.Context) {
	sess, err := h.service.GetSession(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		fail(c, h.logger, "Failed to get session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId": sess.ID,
		"history":   sess.History,
	})
}

func (h *SessionHandler) Delete(c *gin.Context) {
	sessionID := c.Param("sessionId")
	if err := h.service.DeleteSession(c.Request.Context(), sessionID); err != nil {
		fail(c, h.logger, "Failed to delete session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Session deleted",
		"sessionId": sessionID,
	})
}
