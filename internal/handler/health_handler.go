package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	environment string
}

func NewHealthHandler(environment string) *HealthHandler {
	return &HealthHandler{environment: environment}
}

func (h *HealthHandler) HandleRoot(c *gin.Context) {
	c.String(http.StatusOK, "PDF Q&A API is running")
}

func (h *HealthHandler) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"message":     "Server is healthy",
		"environment": h.environment,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) HandleNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, DataResponse{Success: false, Message: "Route not found"})
}
