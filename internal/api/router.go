package api

import (
	httpSwagger "github.com/swaggo/http-swagger"

	"ga4-export/internal/api/handler"
	"ga4-export/pkg/router"
)

// RegisterRoutes wires the export-run API. More specific routes first.
func RegisterRoutes(r *router.Router) {
	r.POST("/api/v1/exports", handler.CreateExport)
	r.GET("/api/v1/exports", handler.ListExports)
	r.GET("/api/v1/exports/*/errors", handler.GetExportErrors)
	r.GET("/api/v1/exports/*/logs", handler.GetExportLogs)
	r.GET("/api/v1/exports/*/files", handler.GetExportFiles)
	r.POST("/api/v1/exports/*/retry", handler.RetryExport)
	r.GET("/api/v1/exports/*", handler.GetExport)
	r.GET("/api/v1/download/*", handler.DownloadFile)

	r.Mount("/swagger/", httpSwagger.WrapHandler)
}
