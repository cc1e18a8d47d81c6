package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	capabilities map[string]bool
}

func NewHealthHandler(capabilities map[string]bool) *HealthHandler {
	return &HealthHandler{capabilities: capabilities}
}

func (h *HealthHandler) Check(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"capabilities": h.capabilities,
	})
}
