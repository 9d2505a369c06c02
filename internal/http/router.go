package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"rdw-proxy/internal/http/middleware"
	"rdw-proxy/internal/metrics"
)

type RouterOptions struct {
	Environment    string
	AllowOrigins   []string
	// TrustedProxies lists the proxies whose forwarding headers decide the
	// client IP. Empty means the socket peer is the client.
	TrustedProxies []string
	RateLimiter    *middleware.RateLimiter
	Metrics        *metrics.Metrics
	Registry       *prometheus.Registry
	Log            zerolog.Logger
}

func NewRouter(handler *Handler, opts RouterOptions) *gin.Engine {
	if opts.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if err := router.SetTrustedProxies(opts.TrustedProxies); err != nil {
		opts.Log.Warn().Err(err).Strs("trusted_proxies", opts.TrustedProxies).Msg("invalid trusted proxies, trusting none")
		_ = router.SetTrustedProxies(nil)
	}
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		opts.Log.Error().Interface("panic", recovered).Str("path", c.Request.URL.Path).Msg("recovered from panic")
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse("internal error"))
	}))
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(opts.Log))
	router.Use(cors.New(corsConfig(opts.AllowOrigins)))

	health := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/_health", health)
	router.GET("/health/live", health)
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"endpoints": []string{"/api/vehicle?plate=", "/api/kenteken/:kenteken", "/api/kenteken/:kenteken/export.xlsx"},
		})
	})

	if opts.Registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})))
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse("not found"))
	})

	if opts.RateLimiter != nil {
		router.Use(middleware.RateLimit(opts.RateLimiter, opts.Metrics))
	}
	handler.Register(router)

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Type", "Retry-After", "RateLimit-Limit", "RateLimit-Remaining", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
