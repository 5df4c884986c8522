package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/CerberoGS/CATAI-sub000/internal/middleware"
)

type RouterDeps struct {
	Auth          *AuthHandler
	Documents     *DocumentHandler
	Extraction    *ExtractionHandler
	Knowledge     *KnowledgeHandler
	Settings      *SettingsHandler
	Usage         *UsageHandler
	JWTSecret     []byte
	ExtractWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/auth/register", deps.Auth.Register)
	api.POST("/auth/login", deps.Auth.Login)

	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))
	authGroup.POST("/documents", deps.Documents.Upload)
	authGroup.GET("/documents", deps.Documents.List)
	authGroup.GET("/documents/:id", deps.Documents.Get)
	authGroup.DELETE("/documents/:id", deps.Documents.Delete)

	extractLimit := middleware.RateLimit(deps.ExtractWindow)
	authGroup.POST("/documents/:id/extract", extractLimit, deps.Extraction.Extract)
	authGroup.POST("/documents/:id/extract/direct", extractLimit, deps.Extraction.ExtractDirect)
	authGroup.GET("/documents/:id/result", deps.Extraction.Result)
	authGroup.GET("/documents/:id/diagnosis", deps.Extraction.Diagnosis)

	authGroup.GET("/knowledge", deps.Knowledge.List)
	authGroup.GET("/knowledge/:id", deps.Knowledge.Get)
	authGroup.DELETE("/knowledge/:id", deps.Knowledge.Delete)

	authGroup.GET("/settings", deps.Settings.Get)
	authGroup.PUT("/settings/api-key", deps.Settings.PutAPIKey)
	authGroup.DELETE("/settings/api-key/:provider", deps.Settings.DeleteAPIKey)
	authGroup.PUT("/settings/prompt", deps.Settings.PutPrompt)

	authGroup.GET("/usage", deps.Usage.List)
}
