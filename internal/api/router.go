package api

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "visitor-forecast/docs"
	"visitor-forecast/internal/api/handler"
	"visitor-forecast/pkg/router"
)

func RegisterRoutes(r *router.Router, h *handler.RunHandler) {
	r.POST("/api/v1/runs", h.CreateRun)
	r.GET("/api/v1/runs", h.ListRuns)
	r.GET("/api/v1/runs/{id}", h.GetRun)
	r.GET("/api/v1/runs/{id}/errors", h.GetRunErrors)
	r.GET("/api/v1/runs/{id}/evaluations", h.GetEvaluations)
	r.GET("/api/v1/runs/{id}/predictions", h.GetPredictions)
	r.GET("/api/v1/runs/{id}/logs", h.GetRunLogs)
	r.GET("/api/v1/runs/{id}/progress", h.GetRunProgress)
	r.GET("/api/v1/runs/{id}/files", h.ListRunFiles)
	r.GET("/api/v1/runs/{id}/files/{name}", h.DownloadFile)
	r.GET("/health", h.Health)

	r.Handle("/metrics", promhttp.Handler())
	r.GET("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("list"),
	))
}
