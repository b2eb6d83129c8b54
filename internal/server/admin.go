package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-gateway/internal/middleware"
	"github.com/noah-isme/campus-gateway/internal/service"
	"github.com/noah-isme/campus-gateway/pkg/logger"
	"github.com/noah-isme/campus-gateway/pkg/middleware/requestid"
)

const readinessTimeout = 2 * time.Second

type adminMetrics interface {
	Snapshot() service.MetricsSnapshot
	Handler() http.Handler
	ObserveHTTPRequest(method, path string, status int, duration time.Duration)
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// AdminConfig wires the admin HTTP surface.
type AdminConfig struct {
	Addr          string
	WebSocketPath string
	WebSocket     *WebSocketAcceptor
	Checks        map[string]ReadinessCheck
}

// AdminServer exposes health, readiness, Prometheus metrics and the optional websocket
// endpoint.
type AdminServer struct {
	server *http.Server
	logger *zap.Logger
}

// NewAdminRouter builds the gin engine behind AdminServer.
func NewAdminRouter(cfg AdminConfig, metrics adminMetrics, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestid.Middleware())
	r.Use(logger.GinMiddleware(log))
	if metrics != nil {
		r.Use(middleware.Metrics(metrics, cfg.WebSocketPath))
	}

	r.GET("/health", func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if metrics != nil {
			body["metrics"] = metrics.Snapshot()
		}
		c.JSON(http.StatusOK, body)
	})

	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()

		failures := gin.H{}
		for name, check := range cfg.Checks {
			if err := check(ctx); err != nil {
				log.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
				failures[name] = err.Error()
			}
		}
		if len(failures) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": failures})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	if cfg.WebSocket != nil && cfg.WebSocketPath != "" {
		r.GET(cfg.WebSocketPath, cfg.WebSocket.Handle)
	}
	return r
}

// NewAdminServer constructs the admin HTTP server.
func NewAdminServer(cfg AdminConfig, metrics adminMetrics, log *zap.Logger) *AdminServer {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminServer{
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           NewAdminRouter(cfg, metrics, log),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: log,
	}
}

// Serve runs the server on ln until Shutdown.
func (s *AdminServer) Serve(ln net.Listener) error {
	s.logger.Info("admin http listening", zap.String("addr", ln.Addr().String()))
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting admin requests and waits for in-flight ones.
func (s *AdminServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
