package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/dawask/rag-backend/internal/handlers"
)

type RouterConfig struct {
	IngestHandler   *handlers.IngestHandler
	QueryHandler    *handlers.QueryHandler
	DocumentHandler *handlers.DocumentHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	router.POST("/ingest-bulk", cfg.IngestHandler.IngestBulk)
	router.GET("/query", cfg.QueryHandler.Query)
	router.POST("/clear-history", cfg.QueryHandler.ClearHistory)
	router.GET("/documents", cfg.DocumentHandler.ListDocuments)

	return router
}
