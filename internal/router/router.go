package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/samidalouche/imgserver/internal/bootstrap"
	"github.com/samidalouche/imgserver/internal/config"
	"github.com/samidalouche/imgserver/internal/handlers"
	"github.com/samidalouche/imgserver/internal/middleware"
)

// Setup creates and configures the Gin router over a wired Bootstrapper.
func Setup(b *bootstrap.Bootstrapper) *gin.Engine {
	imageHandler := handlers.NewImageHandler(b.Coordinator, b.Layout)

	router := setupBaseRouter()

	router.GET("/health", healthCheck(b))

	v1 := router.Group("/api/v1")
	{
		images := v1.Group("/images")
		{
			images.POST("/:id", imageHandler.SaveOriginal)
			images.GET("/:id", imageHandler.GetOriginal)
			images.POST("/:id/renditions", imageHandler.PrepareTransformation)
		}
	}

	router.GET("/api", apiDocumentation())

	return router
}

func setupBaseRouter() *gin.Engine {
	router := gin.New()

	router.Use(otelgin.Middleware("imgserver"))
	router.Use(middleware.Observability())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RateLimit())

	// Trusted proxies left unset (nil) so X-Forwarded-For/etc are never
	// trusted unless explicitly configured for a known proxy.
	router.SetTrustedProxies(nil)

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = config.GetAllowedOrigins()
	corsConfig.AllowHeaders = []string{
		"Origin", "Content-Type", "Authorization", "Accept", "User-Agent",
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	return router
}

func healthCheck(b *bootstrap.Bootstrapper) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := b.DB.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now().Unix(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "postgresql",
			"timestamp": time.Now().Unix(),
		})
	}
}

func apiDocumentation() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":        "imgserver",
			"description": "On-demand image transformation cache",
			"endpoints": map[string]string{
				"health":       "GET /health",
				"save":         "POST /api/v1/images/:id (multipart field \"file\")",
				"get_original": "GET /api/v1/images/:id",
				"render":       "POST /api/v1/images/:id/renditions?width=&height=&format=",
			},
		})
	}
}
