package observability

import (
	"net/http"
	"time"

	"github.com/danmuck/groupctl/internal/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// StatusSource is the read side of a session.
type StatusSource interface {
	Snapshot() session.Snapshot
}

type StatusRouterConfig struct {
	Logger      zerolog.Logger
	Metrics     *SessionMetrics
	Gatherer    prometheus.Gatherer
	CORSOrigins []string
}

// NewStatusRouter serves session health, a JSON snapshot and prometheus
// metrics for a running client.
func NewStatusRouter(src StatusSource, cfg StatusRouterConfig) *gin.Engine {
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	startedAt := time.Now()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(cfg.Logger))
	r.Use(RequestMetricsMiddleware(cfg.Metrics))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/healthz", func(c *gin.Context) {
		snap := src.Snapshot()
		code := http.StatusOK
		status := "ok"
		if !snap.Connected {
			code = http.StatusServiceUnavailable
			status = "disconnected"
		}
		c.JSON(code, gin.H{
			"status":  status,
			"uptime":  time.Since(startedAt).String(),
			"service": "groupctl",
			"version": session.Version(),
		})
	})
	r.GET("/v1/session", func(c *gin.Context) {
		c.JSON(http.StatusOK, src.Snapshot())
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return r
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
