package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pdfquiz/internal/bootstrap"
	"pdfquiz/internal/transport/http/handler"
	"pdfquiz/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLog(app.Logger), middleware.Recovery(app.Logger))

	checks := map[string]handler.Check{}
	for name, check := range app.HealthChecks() {
		checks[name] = check
	}
	healthHandler := handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, checks)
	router.GET("/healthz", healthHandler.Check)
	if app.Config.App.MetricsEnable {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	documentHandler := handler.NewDocumentHandler(app.Documents, app.Config.App.MaxUploadMB, app.Config.Ingest.Async)
	RegisterRoutes(router, documentHandler)
	return router
}

func RegisterRoutes(router *gin.Engine, documents *handler.DocumentHandler) {
	v1 := router.Group("/api/v1")
	v1.POST("/documents", documents.Upload)
	v1.GET("/documents/:id", documents.Get)

	chats := v1.Group("/chats/:chat_id")
	chats.GET("/documents", documents.ListByChat)
	chats.POST("/context", documents.Context)
	chats.POST("/ask", documents.Ask)
	chats.POST("/ask/stream", documents.AskStream)
}
