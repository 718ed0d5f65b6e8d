package rest

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler) {
	// Health check endpoint (no version prefix)
	router.GET("/health", handler.HealthCheck)

	// API v1 routes, read only
	v1 := router.Group("/api/v1")
	{
		v1.GET("/stewards/:id", handler.GetSteward)
		v1.GET("/stewards/:id/patrons", handler.ListStewardPatrons)
		v1.GET("/stewards/:id/events", handler.ListStewardEvents)

		v1.GET("/patrons/:id/stewards", handler.ListPatronStewards)
	}
}
