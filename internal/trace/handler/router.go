package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/agriledger/internal/audit"
	"github.com/jmerrifield20/agriledger/internal/trace/service"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// RouterConfig holds the HTTP surface settings.
type RouterConfig struct {
	CORSOrigins  []string
	RateLimitRPS int // 0 disables rate limiting

	// Audit, when set, adds the latest background audit to /healthz.
	Audit *audit.Auditor
}

// NewRouter builds the gin engine serving the trace and ledger APIs under
// /api/v1, plus /healthz and /metrics. ctx bounds background middleware work.
func NewRouter(ctx context.Context, svc *service.Service, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: !containsWildcard(cfg.CORSOrigins),
			MaxAge:           12 * time.Hour,
		}))
	}

	router.Use(securityHeaders())
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
		c.Next()
	})
	if cfg.RateLimitRPS > 0 {
		router.Use(RateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitRPS*2))
	}
	router.Use(PrometheusMiddleware())
	router.Use(RequestLogger(logger))

	router.GET("/healthz", healthz(cfg.Audit))
	router.GET("/metrics", MetricsHandler())

	v1 := router.Group("/api/v1")
	NewTraceHandler(svc, logger).Register(v1)
	NewLedgerHandler(svc, logger).Register(v1)
	return router
}

// healthz answers 200 while the process is up, tampered ledger or not.
func healthz(a *audit.Auditor) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if a != nil {
			if res, ok := a.Last(); ok {
				body["audit"] = res
			}
		}
		c.JSON(http.StatusOK, body)
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// RequestLogger returns a Gin middleware that logs each request with zap.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
