package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title Catalog Sync API
// @version 1.0
// @description API for importing and syncing POS catalogs into the product database
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

// SetupRouter configures the API routes
func SetupRouter(h *Handler, registry *prometheus.Registry) *gin.Engine {
	r := gin.Default()

	// API documentation
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API v1 group
	v1 := r.Group("/api/v1")
	{
		integrations := v1.Group("/integrations")
		{
			integrations.GET("", h.ListIntegrations)
			integrations.POST("", h.SaveIntegration)
			integrations.GET("/:id", h.GetIntegration)
			integrations.DELETE("/:id", h.DeleteIntegration)
			integrations.POST("/:id/imports", h.StartImport)
		}

		imports := v1.Group("/imports")
		{
			imports.GET("", h.ListImports)
			imports.GET("/:id", h.GetImport)
			imports.POST("/:id/abort", h.AbortImport)
			imports.POST("/:id/resume", h.ResumeImport)
		}

		v1.GET("/products", h.ListProducts)

		v1.POST("/watchdog/check", h.CheckStalledRuns)
	}

	return r
}
