package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-gateway/pkg/protocol"
)

// WebSocketAcceptor upgrades admin HTTP requests and runs the same session loop over
// one websocket message per envelope.
type WebSocketAcceptor struct {
	base       context.Context
	upgrader   websocket.Upgrader
	dispatcher Dispatcher
	opts       SessionOptions
	maxFrame   int
	metrics    sessionMetrics
	logger     *zap.Logger

	wg sync.WaitGroup
}

// NewWebSocketAcceptor constructs a websocket acceptor. Sessions are closed when base is
// cancelled; hijacked connections are not tracked by http.Server.Shutdown.
func NewWebSocketAcceptor(base context.Context, dispatcher Dispatcher, opts SessionOptions, maxFrame int, checkOrigin func(*http.Request) bool, metrics sessionMetrics, logger *zap.Logger) *WebSocketAcceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketAcceptor{
		base: base,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		dispatcher: dispatcher,
		opts:       opts,
		maxFrame:   maxFrame,
		metrics:    metrics,
		logger:     logger,
	}
}

// Handle is the gin handler for the websocket endpoint.
func (a *WebSocketAcceptor) Handle(c *gin.Context) {
	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.logger.Debug("websocket upgrade failed", zap.Error(err), zap.String("ip", c.ClientIP()))
		return
	}

	a.wg.Add(1)
	defer a.wg.Done()

	session := NewSession(protocol.NewWebSocketConn(conn, a.maxFrame), TransportWebSocket, a.dispatcher, a.opts, a.metrics, a.logger)
	if err := session.Serve(a.base); err != nil {
		a.logger.Debug("session ended with error", zap.String("session_id", session.ID()), zap.Error(err))
	}
}

// Shutdown waits for websocket sessions to return, or for ctx to expire.
func (a *WebSocketAcceptor) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
