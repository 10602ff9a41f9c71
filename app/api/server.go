package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler, apiAccessKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(requestLogger("/health", "/metrics"))
	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-API-Key")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, apiAccessKey)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string) {
	r.GET("/health", handler.GetHealth)
	r.GET("/feeds/catalog.xml", handler.GetCatalogFeed)
	r.GET("/api/search", handler.Search)
	r.GET("/api/listings", handler.ListListings)

	if handler.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(handler.gatherer, promhttp.HandlerOpts{})))
	}

	// Trigger and admin endpoints require the shared secret
	if apiAccessKey != "" {
		api := r.Group("/api")
		api.Use(authMiddleware(apiAccessKey))
		{
			api.POST("/ingest", handler.Ingest)
			api.POST("/crawl/process", handler.ProcessCrawlPage)
			api.POST("/crawl/trigger", handler.TriggerCrawl)
			api.POST("/crawl/run", handler.RunCrawl)
			api.GET("/crawl/runs", handler.ListRuns)
			api.GET("/crawl/sources", handler.ListSources)
		}
		slog.Info("API endpoints enabled with authentication")
	} else {
		slog.Warn("Trigger endpoints disabled (CRON_SECRET not set)")
	}

	r.GET("/", func(c *gin.Context) {
		endpoints := map[string]string{
			"search":   "/api/search?query=<text>",
			"listings": "/api/listings",
			"feed":     "/feeds/catalog.xml",
			"health":   "/health",
		}

		if apiAccessKey != "" {
			endpoints["ingest"] = "/api/ingest (POST, requires bearer secret)"
			endpoints["crawl_process"] = "/api/crawl/process (POST, requires bearer secret)"
			endpoints["crawl_trigger"] = "/api/crawl/trigger (POST, requires bearer secret)"
			endpoints["crawl_run"] = "/api/crawl/run (POST, requires bearer secret)"
			endpoints["crawl_runs"] = "/api/crawl/runs (requires bearer secret)"
			endpoints["crawl_sources"] = "/api/crawl/sources (requires bearer secret)"
		}

		c.JSON(http.StatusOK, gin.H{
			"service":     "Curio",
			"version":     handler.channel.Version,
			"description": "Vintage catalog ingestion, ranking and hybrid search",
			"endpoints":   endpoints,
			"api_status": map[string]any{
				"enabled":       apiAccessKey != "",
				"auth_required": apiAccessKey != "",
				"header":        "Authorization: Bearer <secret>",
			},
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}

func requestLogger(skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if _, ok := skipped[c.Request.URL.Path]; ok {
			return
		}

		slog.Info("HTTP request",
			"client_ip", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"user_agent", c.Request.UserAgent(),
			"error", c.Errors.ByType(gin.ErrorTypePrivate).String())
	}
}

// authMiddleware accepts the secret as a bearer token or in X-API-Key.
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		if subtle.ConstantTimeCompare([]byte(providedKey), []byte(apiAccessKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Next()
	}
}
