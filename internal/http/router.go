// Package httpapi wires the HTTP transport (Gin) to the sync engine,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as correlation IDs, logging, panic recovery, metrics, CORS, compression,
// and rate limiting.
//
// The API is a local shim: it runs next to the UI process and exposes the
// engine's read views and mutations over loopback HTTP. Middleware ordering
// is safe-by-default (RequestID → logging → recovery).
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tbourn/go-diary-sync/internal/config"
	"github.com/tbourn/go-diary-sync/internal/http/handlers"
	"github.com/tbourn/go-diary-sync/internal/http/middleware"
	"github.com/tbourn/go-diary-sync/internal/store"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures metrics, rate limiting, CORS, compression, health
// and metrics endpoints, and then mounts the versioned API under /v1.
//
// Middleware order matters:
//  1. RequestID: generate/propagate correlation id
//  2. Logger: structured access logs
//  3. Recovery: capture panics after logger
//  4. Body size limiter
//  5. Metrics
//  6. Rate limiter (per user/IP)
//  7. CORS and gzip
func RegisterRoutes(r *gin.Engine, eng *store.Engine, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 2) Structured logging
	r.Use(middleware.Logger())

	// 3) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 4) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 5) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 6) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 7) CORS posture (safe defaults: allow all if none configured) and gzip
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	h := handlers.New(eng)

	api := r.Group("/v1")
	{
		// Posts
		api.POST("/posts", h.CreatePost)
		api.GET("/posts", h.ListPosts)
		api.GET("/posts/recent", h.RecentPosts)
		api.GET("/posts/dates", h.ActiveDates)
		api.PATCH("/posts/:id", h.UpdatePost)
		api.DELETE("/posts/:id", h.DeletePost)
		api.GET("/posts/:id/detail", h.GetDetail)

		// Window control
		api.POST("/window", h.Recenter)
		api.POST("/refresh", h.Refresh)

		// Characters
		api.GET("/characters", h.ListCharacters)
		api.GET("/characters/:id", h.GetCharacter)
		api.POST("/characters/:id/follow", h.ToggleFollow)

		// Stats, images, session
		api.GET("/stats/:month", h.MonthStats)
		api.GET("/images", h.GetImage)
		api.POST("/images/prefetch", h.PrefetchImages)
		api.POST("/session/user", h.SwitchUser)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
