package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all routes of the service.
func RegisterRoutes(router *gin.Engine, api *API, middleware []gin.HandlerFunc) {
	for _, mw := range middleware {
		router.Use(mw)
	}

	router.GET("/health", api.HealthHandler)
	router.POST("/ingest", api.IngestHandler)
	router.POST("/query", api.QueryHandler)

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/documents", api.DocumentsHandler)
	}
}
