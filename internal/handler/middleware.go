package handler

import (
	"net/http"
	"time"

	"pdf-qa/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type CorsHandler struct {
	clientURL string
}

func NewCorsHandler(clientURL string) *CorsHandler {
	return &CorsHandler{clientURL: clientURL}
}

// CorsMiddleware allows the configured client origin to call the API with its cookies
func (h *CorsHandler) CorsMiddleware(c *gin.Context) {
	origin := c.GetHeader("Origin")
	if origin != "" && (h.clientURL == "*" || origin == h.clientURL) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		c.Writer.Header().Add("Vary", "Origin")
	}

	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}

// RequestLogger logs every request once it has been served
func RequestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()

	event := log.Info()
	if c.Writer.Status() >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Int("status", c.Writer.Status()).
		Dur("latency", time.Since(start)).
		Str("client_ip", c.ClientIP()).
		Msg("request")
}

// BodyLimit rejects request bodies larger than cfg.MaxUploadBytes
func BodyLimit(cfg config.ServerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > cfg.MaxUploadBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, DataResponse{Success: false, Message: "File too large"})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, cfg.MaxUploadBytes)
		c.Next()
	}
}

func recovery(c *gin.Context, recovered interface{}) {
	log.Error().Interface("panic", recovered).Str("path", c.Request.URL.Path).Msg("Recovered from panic")
	c.AbortWithStatusJSON(http.StatusInternalServerError, DataResponse{Success: false, Message: internalErrorMessage})
}
