// Package server exposes the ledger over HTTP using fasthttp.
//
// Routes:
//
//	POST /v1/flyts                 post a message
//	POST /v1/flyts/{id}/replies    reply to message id
//	GET  /v1/flyts/{id}            read a message
//	GET  /v1/flyts/{id}/stats      read its counters
//	POST /v1/flyts/{id}/likes      like it
//	POST /v1/flyts/{id}/tips       tip it
//	GET  /v1/count                 highest assigned id
//	GET  /healthz                  liveness
//	GET  /metrics                  prometheus
//
// Callers identify with X-User-ID, signed by X-User-Signature when signing
// keys are configured. Every call is submitted to a host.Host.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/roach88/flyter/internal/config"
	"github.com/roach88/flyter/internal/host"
)

const (
	defaultCallTimeout = 10 * time.Second

	// Request bodies carry content as JSON text or base64, so allow
	// headroom over the content limit.
	bodyOverhead = 4096
)

// Server serves the ledger API.
type Server struct {
	host        *host.Host
	cfg         config.ServerConfig
	gatherer    prometheus.Gatherer
	limiters    *limiterPool
	baseCtx     context.Context
	callTimeout time.Duration
	handler     fasthttp.RequestHandler
}

// New creates a server that submits calls to h. Metrics are served from
// gatherer; nil disables /metrics.
func New(h *host.Host, cfg config.ServerConfig, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		host:        h,
		cfg:         cfg,
		gatherer:    gatherer,
		limiters:    newLimiterPool(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		baseCtx:     context.Background(),
		callTimeout: defaultCallTimeout,
	}
	s.handler = s.routes()
	return s
}

// Handler returns the root request handler.
func (s *Server) Handler() fasthttp.RequestHandler {
	return s.handler
}

func (s *Server) routes() fasthttp.RequestHandler {
	api := newRouter()
	api.POST("/v1/flyts", s.handlePost)
	api.POST("/v1/flyts/{id}/replies", s.handleReply)
	api.GET("/v1/flyts/{id}", s.handleGet)
	api.GET("/v1/flyts/{id}/stats", s.handleStats)
	api.POST("/v1/flyts/{id}/likes", s.handleLike)
	api.POST("/v1/flyts/{id}/tips", s.handleTip)
	api.GET("/v1/count", s.handleCount)
	api.NotFound(func(ctx *fasthttp.RequestCtx) {
		writeError(ctx, fasthttp.StatusNotFound, "not_found", "not found")
	})
	guarded := s.authenticate(s.rateLimit(api.Handler))

	var metrics fasthttp.RequestHandler
	if s.gatherer != nil {
		metrics = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	// Probes and scrapes bypass auth and rate limiting.
	return func(ctx *fasthttp.RequestCtx) {
		switch path := string(ctx.Path()); {
		case path == "/healthz" && ctx.IsGet():
			s.handleHealthz(ctx)
		case path == "/metrics" && ctx.IsGet() && metrics != nil:
			metrics(ctx)
		default:
			guarded(ctx)
		}
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.baseCtx = ctx

	srv := &fasthttp.Server{
		Handler:            s.handler,
		Name:               "flyter",
		MaxRequestBodySize: int(s.cfg.MaxContentBytes)*2 + bodyOverhead,
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       10 * time.Second,
		IdleTimeout:        30 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		errc <- srv.ListenAndServe(addr)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("http server shutting down")
		if err := srv.Shutdown(); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}
