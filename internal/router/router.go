package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/EnkiSilicium/artisan-hub/internal/handler"
	"github.com/EnkiSilicium/artisan-hub/internal/middleware"
	"github.com/EnkiSilicium/artisan-hub/pkg/validator"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Config struct {
	RateLimit rate.Limit
	RateBurst int
	JWTSecret string
	Debug     bool
}

// New assembles the gin engine: ambient middleware first, then public
// health/metrics, then the authenticated API surface.
func New(config Config, health *handler.HealthHandler, apiHandlers ...Handler) *gin.Engine {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := validator.Register(); err != nil {
		panic(err)
	}

	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.Recovery(),
		middleware.ErrorHandler(),
	)

	if config.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(limiter.RateLimit())
	}

	health.RegisterRoutes(engine)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api/v1")
	if config.JWTSecret != "" {
		auth := middleware.NewAuthMiddleware(config.JWTSecret)
		api.Use(auth.Authenticate())
	}
	for _, h := range apiHandlers {
		h.RegisterRoutes(api)
	}

	return engine
}
