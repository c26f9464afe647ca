// Package httpapi wires the HTTP transport (Gin) to the routing services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and submission throttling.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Operator routes isolated behind a bearer token
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/support-router/internal/channels"
	"github.com/tbourn/support-router/internal/config"
	"github.com/tbourn/support-router/internal/generator"
	"github.com/tbourn/support-router/internal/http/handlers"
	"github.com/tbourn/support-router/internal/http/middleware"
	"github.com/tbourn/support-router/internal/ratelimit"
	"github.com/tbourn/support-router/internal/repo"
	"github.com/tbourn/support-router/internal/rules"
	"github.com/tbourn/support-router/internal/services"
)

// Deps are the collaborators the routes are built from.
type Deps struct {
	DB        *gorm.DB
	Rules     rules.Evaluator
	Generator generator.Generator
	Alerts    services.Alerter
	Channels  *channels.Registry // must include the web adapter backed by Hub
	Hub       *channels.Hub
	Counter   ratelimit.Counter // nil disables submission throttling
}

// corsHeaders are the request headers browsers may send cross-origin.
var corsHeaders = []string{
	"Origin", "Content-Type", "Accept", "Authorization",
	middleware.HeaderCustomerID, middleware.HeaderAgentName, middleware.HeaderIdempotencyKey,
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and returns the handler set so the caller can drain background
// webhook turns on shutdown.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII and webhook-secret scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before the throttle so replays bypass it)
//  8. CORS and Security headers
//  9. Gzip (websocket and metrics paths excluded)
//
// Submission throttling is applied per route to POST /turns only.
func RegisterRoutes(r *gin.Engine, cfg config.Config, deps Deps) *handlers.Handlers {
	r.HandleMethodNotAllowed = true
	apiBase := cfg.APIBasePath // e.g. "/api/v1"

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging, with redaction unless disabled
	if cfg.LogRedact {
		r.Use(middleware.RedactingLogger(middleware.RedactOptions{
			MaskHeaders: []string{"X-API-Key"},
		}))
	} else {
		r.Use(middleware.Logger())
	}

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Idempotency validation; a stored response for the key marks the
	// request as a replay.
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, customerID, channel, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, deps.DB, customerID, channel, key, now)
			if errors.Is(err, repo.ErrNotFound) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			return rec != nil, nil
		},
	))

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", middleware.HeaderIdempotencyReplayed},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
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
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", middleware.HeaderIdempotencyReplayed},
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

	// 9) Compression. Upgraded connections cannot sit behind a gzip writer.
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{"/metrics", joinPath(apiBase, "/ws")}),
	))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// API docs
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := newHandlers(cfg, deps)

	// Public API
	api := groupWithPrefix(r, apiBase)
	{
		// Turns
		api.POST("/turns", middleware.Throttle(deps.Counter, middleware.ThrottleOptions{
			Limit:  cfg.Rate.Limit,
			Window: cfg.Rate.Window,
			Key:    middleware.KeyByCustomerOrIP(),
		}), h.SubmitTurn)
		api.GET("/ws/widget", h.Widget)

		// Conversations
		api.GET("/conversations/:id/messages",
			middleware.SecurityHeaders(middleware.SecurityOptions{NoStore: true}), h.ListHistory)
		api.POST("/conversations/:id/contact", h.SubmitContact)

		// Feedback
		api.POST("/messages/:id/feedback", h.LeaveFeedback)
	}

	// Channel webhooks (signature-checked by the adapters)
	hooks := r.Group("/webhooks")
	{
		hooks.GET("/messenger", h.VerifyMessenger)
		hooks.POST("/:channel", h.Webhook)
	}

	// Operator API
	admin := groupWithPrefix(r, joinPath(apiBase, "/admin"))
	admin.Use(
		middleware.AdminAuth(cfg.AdminToken),
		middleware.SecurityHeaders(middleware.SecurityOptions{NoStore: true, CSP: middleware.APIContentSecurityPolicy}),
	)
	{
		admin.GET("/conversations", h.AdminListConversations)
		admin.GET("/conversations/:id", h.AdminGetConversation)
		admin.DELETE("/conversations/:id", h.DeleteConversation)
		admin.GET("/conversations/:id/messages", h.AdminListMessages)
		admin.POST("/conversations/:id/messages", h.AgentReply)
		admin.GET("/conversations/:id/handovers", h.AdminListHandovers)
		admin.POST("/conversations/:id/takeover", h.Takeover)
		admin.POST("/conversations/:id/release", h.Release)
		admin.POST("/conversations/:id/close", h.CloseConversation)
	}

	return h
}

// newHandlers builds the services over one shared per-conversation lock so
// customer turns and operator actions on a conversation never interleave.
func newHandlers(cfg config.Config, deps Deps) *handlers.Handlers {
	if deps.Hub == nil {
		deps.Hub = channels.NewHub()
	}
	if deps.Channels == nil {
		deps.Channels = channels.NewRegistry(channels.NewWeb(deps.Hub))
	}
	locks := services.NewKeyedMutex()

	router := services.NewRouterService(deps.DB, deps.Rules, deps.Generator, deps.Alerts)
	router.Locks = locks
	if cfg.Generator.Timeout > 0 {
		router.GenerateTimeout = cfg.Generator.Timeout
	}
	if cfg.HistoryWindow > 0 {
		router.HistoryWindow = cfg.HistoryWindow
	}
	if cfg.MaxTextRunes > 0 {
		router.MaxTextRunes = cfg.MaxTextRunes
	}
	if cfg.ContactChannel != "" {
		router.ContactChannel = cfg.ContactChannel
	}

	convs := &services.ConversationService{
		DB:           deps.DB,
		Channels:     deps.Channels,
		Locks:        locks,
		MaxTextRunes: router.MaxTextRunes,
	}
	handovers := &services.HandoverService{DB: deps.DB, Locks: locks}
	feedback := &services.FeedbackService{DB: deps.DB}

	return handlers.New(router, convs, handovers, feedback, handlers.Options{
		DB:             deps.DB,
		IdempotencyTTL: cfg.IdempotencyTTL,
		Channels:       deps.Channels,
		Hub:            deps.Hub,
		CheckOrigin:    originChecker(cfg.CORS.AllowedOrigins),
	})
}

// originChecker allows websocket upgrades from the CORS allowlist, or from
// anywhere when the allowlist is empty.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
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

func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	return base + p
}
