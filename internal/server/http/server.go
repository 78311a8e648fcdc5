// Package httpserver serves the HTTP sweep trigger, health and metrics endpoints.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/and161185/garage-keeper/internal/errs"
	"github.com/and161185/garage-keeper/internal/service"
)

// SecretChecker authorizes the sweep trigger.
type SecretChecker interface {
	CheckSecret(ctx context.Context, client string, candidates ...string) error
}

// Pinger reports backing store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configure the router. DB and Gatherer are optional; /metrics is
// mounted only with a Gatherer. X-Forwarded-For is honoured only from
// TrustedProxies, so by default the lockout keys on the peer address.
type Options struct {
	Sweeps         service.SweepService
	Secrets        SecretChecker
	DB             Pinger
	Gatherer       prometheus.Gatherer
	Grace          time.Duration
	Log            *zap.Logger
	TrustedProxies []string
}

type handler struct {
	sweeps  service.SweepService
	secrets SecretChecker
	db      Pinger
	grace   time.Duration
	log     *zap.Logger
	now     func() time.Time
}

// NewRouter builds the gin engine.
func NewRouter(opts Options) *gin.Engine {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	h := &handler{
		sweeps:  opts.Sweeps,
		secrets: opts.Secrets,
		db:      opts.DB,
		grace:   opts.Grace,
		log:     log,
		now:     time.Now,
	}

	r := gin.New()
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		log.Warn("trusted proxies rejected, trusting none", zap.Error(err))
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery(), accessLog(log))

	r.GET("/healthz", h.health)
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	{
		api.GET("/cron/reminders", h.requireSecret, h.sweep)
		api.POST("/cron/reminders", h.requireSecret, h.sweep)
	}
	return r
}

// accessLog logs method, path, status and latency; bodies and headers are never logged.
func accessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", c.ClientIP()),
		}
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("http", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("http", fields...)
		default:
			log.Info("http", fields...)
		}
	}
}

// requireSecret aborts with 401 unless X-Cron-Secret or the bearer token is
// the cron secret.
func (h *handler) requireSecret(c *gin.Context) {
	var candidates []string
	if v := strings.TrimSpace(c.GetHeader("X-Cron-Secret")); v != "" {
		candidates = append(candidates, v)
	}
	if tok, ok := bearerToken(c.GetHeader("Authorization")); ok {
		candidates = append(candidates, tok)
	}
	err := h.secrets.CheckSecret(c.Request.Context(), c.ClientIP(), candidates...)
	switch {
	case err == nil:
		c.Next()
	case errors.Is(err, errs.ErrLocked):
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"ok": false, "error": "too many failed attempts"})
	case errors.Is(err, errs.ErrUnauthorized):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "unauthorized"})
	default:
		h.log.Error("cron secret check", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "internal error"})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

func (h *handler) sweep(c *gin.Context) {
	res, err := h.sweeps.Sweep(c.Request.Context(), h.now(), h.grace)
	if err != nil {
		h.log.Error("sweep", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "sweep failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"created":    res.Created,
		"candidates": res.Candidates,
		"duplicates": res.Duplicates,
		"failed":     res.Failed,
		"truncated":  res.Truncated,
	})
}

func (h *handler) health(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.log.Warn("health: db ping", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
