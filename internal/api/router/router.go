package router

import (
	"github.com/gin-gonic/gin"

	"github.com/docpipe/extractd/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	documentHandler := handler.NewDocumentHandler(deps)

	// Health check endpoint
	r.GET("/health", documentHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		documents := v1.Group("/documents")
		{
			// POST /api/v1/documents - Upload a document for extraction
			documents.POST("", documentHandler.SubmitDocument)

			// POST /api/v1/documents/enqueue - Enqueue a stored document by key
			documents.POST("/enqueue", documentHandler.EnqueueDocument)

			// GET /api/v1/documents/:job_id/status - Poll extraction status
			documents.GET("/:job_id/status", documentHandler.GetStatus)

			// GET /api/v1/documents/:job_id/result - Fetch the full result
			documents.GET("/:job_id/result", documentHandler.GetResult)
		}
	}

	return r
}
