package handler

import (
	"pdf-qa/internal/config"
	"pdf-qa/internal/service"
	"pdf-qa/internal/session"

	"github.com/gin-gonic/gin"
)

// NewRouter wires every route of the API
func NewRouter(cfg *config.Config, svc *service.Service, store session.Store) *gin.Engine {
	sessions := NewSessionManager(store, cfg.Session)
	corsHandler := NewCorsHandler(cfg.Server.ClientURL)
	healthHandler := NewHealthHandler(cfg.Server.Environment)
	documentHandler := NewDocumentHandler(svc, sessions)
	queryHandler := NewQueryHandler(svc, sessions)
	wsHandler := NewWebSocketHandler(svc, sessions, cfg.Server.ClientURL)

	router := gin.New()
	router.MaxMultipartMemory = cfg.Server.MaxUploadBytes
	router.Use(gin.CustomRecovery(recovery), RequestLogger, corsHandler.CorsMiddleware, BodyLimit(cfg.Server))

	router.GET("/", healthHandler.HandleRoot)
	router.GET("/api/health", healthHandler.HandleHealth)

	router.POST("/upload", documentHandler.HandleUpload)
	router.POST("/query", queryHandler.HandleQuery)
	router.POST("/clear-vector-data", documentHandler.HandleClear)

	router.GET("/documents", documentHandler.HandleList)
	router.DELETE("/documents/:filename", documentHandler.HandleDelete)
	router.GET("/uploads/:filename", documentHandler.ServeDocument)
	router.GET("/history", queryHandler.HandleHistory)
	router.GET("/ws", wsHandler.HandleWebSocket)

	router.NoRoute(healthHandler.HandleNotFound)
	return router
}
