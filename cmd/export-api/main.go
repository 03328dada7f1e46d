package main

import (
	"ga4-export/internal/api"
	"ga4-export/internal/store"
	"ga4-export/pkg/router"

	_ "ga4-export/docs"
)

// @title GA4 Export API
// @version 1.0
// @description REST API for triggering and monitoring GA4 report exports.
// @BasePath /api/v1
func main() {
	// Init DB
	if err := store.InitDB("exports.db"); err != nil {
		panic(err)
	}

	// Create router
	r := router.New()

	// Register API routes
	api.RegisterRoutes(r)

	// Start server
	r.Start(":8080")
}
