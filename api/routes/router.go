package routes

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"scanhub/internal/services"
	"scanhub/pkg/logger"
)

// RouterDeps are the services the REST API is served from.
type RouterDeps struct {
	ScanService services.ScanServiceMethods
	VulnService services.VulnerabilityServiceMethods
	ToolService services.ToolServiceMethods
	Logger      *logger.Logger
	CORSOrigins []string
}

func InitRouter(deps RouterDeps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = logger.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(deps.Logger))

	if len(deps.CORSOrigins) > 0 {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowOrigins = deps.CORSOrigins
		corsCfg.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
		router.Use(cors.New(corsCfg))
	}

	// REST APIs
	api := router.Group("/api")
	{
		InitToolRoutes(api, deps)
		InitScanRoutes(api, deps)
		InitVulnerabilityRoutes(api, deps)
	}

	return router
}

// requestLogger tags every request with an id and logs its outcome.
func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logger.RequestIDKey, requestID))

		c.Next()

		entry := log.WithFields(logger.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"duration":   time.Since(start).String(),
		})
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("Request failed")
		case c.Writer.Status() >= 400:
			entry.Warn("Request rejected")
		default:
			entry.Debug("Request served")
		}
	}
}
