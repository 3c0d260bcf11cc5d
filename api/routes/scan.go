package routes

import (
	"github.com/gin-gonic/gin"

	"scanhub/internal/handlers"
)

func InitScanRoutes(router *gin.RouterGroup, deps RouterDeps) {
	handlers := handlers.NewScanHandler(deps.ScanService, deps.VulnService, deps.Logger)

	scanRoutes := router.Group("/scans")
	{
		scanRoutes.POST("/start", handlers.StartScan)
		scanRoutes.GET("", handlers.ListScans)
		scanRoutes.GET("/:id", handlers.GetScan)
		scanRoutes.DELETE("/:id", handlers.DeleteScan)
		scanRoutes.POST("/:id/stop", handlers.StopScan)
		scanRoutes.POST("/:id/pause", handlers.PauseScan)
		scanRoutes.POST("/:id/resume", handlers.ResumeScan)
		scanRoutes.POST("/:id/recompute", handlers.RecomputeCounts)
		scanRoutes.GET("/:id/issues", handlers.ListIssues)
		scanRoutes.GET("/:id/vulnerabilities-with-snippet", handlers.ListWithSnippets)
	}
}

func InitVulnerabilityRoutes(router *gin.RouterGroup, deps RouterDeps) {
	handlers := handlers.NewVulnerabilityHandler(deps.VulnService, deps.Logger)

	vulnRoutes := router.Group("/vulnerabilities")
	{
		vulnRoutes.GET("/:id", handlers.GetVulnerability)
		vulnRoutes.PATCH("/:id/status", handlers.UpdateStatus)
	}
}

func InitToolRoutes(router *gin.RouterGroup, deps RouterDeps) {
	handlers := handlers.NewToolHandler(deps.ToolService)
	router.GET("/tools", handlers.ListTools)
}
