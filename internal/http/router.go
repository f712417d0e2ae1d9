// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/weliakcay/mirrorly-app/internal/config"
	"github.com/weliakcay/mirrorly-app/internal/fetch"
	"github.com/weliakcay/mirrorly-app/internal/http/handlers"
	"github.com/weliakcay/mirrorly-app/internal/http/middleware"
	"github.com/weliakcay/mirrorly-app/internal/imaging"
	"github.com/weliakcay/mirrorly-app/internal/repo"
	"github.com/weliakcay/mirrorly-app/internal/services"
	"github.com/weliakcay/mirrorly-app/internal/tryon"
)

// maxBodyBytes caps request bodies. Photo submissions carry a base64 data URI
// of an already client-side-compressed JPEG, so 15 MiB leaves generous room.
const maxBodyBytes = 15 << 20

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and rate
// limiting, CORS and security headers, health and metrics endpoints, and then
// mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with API-key/PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Gzip (JSON bodies with base64 images compress well)
//  6. Body size limiter
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per session/IP, bypass on replay)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction (Gemini keys must never hit logs)
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Compress responses; data-URI results shrink well under gzip
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 6) Global body size limit
	r.Use(limitBody(maxBodyBytes))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, sessionID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, sessionID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 9) Token-bucket rate limiter per session/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyBySessionOrIP())
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	corsHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps
		// tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist.
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db/pipeline
	ledger := services.NewCreditLedger(db)
	history := services.NewHistoryService(db, cfg.HistoryLimit)
	garments := services.NewGarmentService(db)
	profile := services.NewProfileService(db)

	preparer := imaging.Preparer{
		MaxDimension: cfg.Imaging.MaxDimension,
		Quality:      cfg.Imaging.JPEGQuality,
	}
	fetcher := fetch.New(cfg.Fetch.DirectTimeout, cfg.Fetch.ProxyTimeout, cfg.Fetch.ProxyBase)
	invoker := &tryon.Invoker{
		NewCaller: tryon.GeminiCallerFactory(cfg.Gemini.Model, tryon.NewGenerationConfig(float32(cfg.Gemini.Temperature))),
		Timeout:   cfg.Gemini.Timeout,
	}
	tryonSvc := services.NewTryOnService(db, ledger, history, preparer, fetcher, invoker,
		cfg.Gemini.APIKey, cfg.CancelGrace, cfg.IdempotencyTTL)

	h := handlers.New(tryonSvc, garments, profile, ledger, history, cfg.CreditPack)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath) // e.g. "/api/v1"
	{
		// Try-on sessions
		api.POST("/tryon/sessions", h.CreateSession)
		api.GET("/tryon/sessions/:id", h.GetSession)
		api.POST("/tryon/sessions/:id/photo", h.SubmitPhoto)
		api.POST("/tryon/sessions/:id/cancel", h.CancelSession)
		api.POST("/tryon/sessions/:id/retry", h.RetrySession)
		api.POST("/tryon/sessions/:id/retake", h.RetakeSession)
		api.POST("/tryon/sessions/:id/reset", h.ResetSession)

		// Garments + QR deep links
		api.GET("/garments", h.ListGarments)
		api.POST("/garments", h.CreateGarment)
		api.GET("/garments/resolve", h.ResolveGarment)
		api.GET("/garments/:id", h.GetGarment)
		api.PUT("/garments/:id", h.UpdateGarment)
		api.DELETE("/garments/:id", h.DeleteGarment)

		// Merchant profile + credits
		api.GET("/profile", h.GetProfile)
		api.PUT("/profile", h.UpdateProfile)
		api.POST("/profile/credits/purchase", h.PurchaseCredits)

		// History gallery
		api.GET("/history", h.ListHistory)
		api.DELETE("/history", h.ClearHistory)
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

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
