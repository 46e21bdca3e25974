package router

import (
	"github.com/cuongbtq/printcheck-station/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	h := handler.NewPrintcheckHandler(deps)

	r.GET("/health", h.Health)

	// POST /printcheck - start (cmdCode 3) or poll (cmdCode 2)
	r.POST("/printcheck", h.Printcheck)

	return r
}
