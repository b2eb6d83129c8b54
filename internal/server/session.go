// Package server owns connection lifecycles: the per-connection session loop and the
// acceptors that create sessions for TCP and websocket clients.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/noah-isme/campus-gateway/internal/dispatch"
	"github.com/noah-isme/campus-gateway/internal/models"
	"github.com/noah-isme/campus-gateway/pkg/config"
	appErrors "github.com/noah-isme/campus-gateway/pkg/errors"
	"github.com/noah-isme/campus-gateway/pkg/protocol"
	"github.com/noah-isme/campus-gateway/pkg/response"
)

// Transport names reported to metrics.
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
)

// State is the lifecycle position of a session.
type State int32

const (
	StateConnecting State = iota
	StateUnauthenticated
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Dispatcher answers one request envelope.
type Dispatcher interface {
	Dispatch(ctx context.Context, env protocol.Envelope, session dispatch.SessionState) protocol.Envelope
}

type sessionMetrics interface {
	SessionOpened(transport string)
	SessionClosed()
	RateLimited()
	FrameError()
}

// SessionOptions tunes a session. Zero durations disable the matching deadline and a zero
// RateLimit disables limiting.
type SessionOptions struct {
	Greeting     string
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
	RateLimit    float64
	RateBurst    int
}

// SessionOptionsFromConfig maps environment configuration onto SessionOptions.
func SessionOptionsFromConfig(cfg config.SessionConfig) SessionOptions {
	return SessionOptions{
		Greeting:     cfg.Greeting,
		IdleTimeout:  cfg.IdleTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RateLimit:    cfg.RateLimit,
		RateBurst:    cfg.RateBurst,
	}
}

// Session serves one connection. Requests are read, dispatched and answered strictly in
// order; only the session goroutine writes to the connection.
type Session struct {
	id         string
	conn       protocol.Conn
	transport  string
	dispatcher Dispatcher
	opts       SessionOptions
	limiter    *rate.Limiter
	metrics    sessionMetrics
	logger     *zap.Logger

	mu        sync.RWMutex
	principal *models.Principal
	state     State
}

// NewSession constructs a session in the Connecting state.
func NewSession(conn protocol.Conn, transport string, dispatcher Dispatcher, opts SessionOptions, metrics sessionMetrics, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		id:         uuid.NewString(),
		conn:       conn,
		transport:  transport,
		dispatcher: dispatcher,
		opts:       opts,
		metrics:    metrics,
		state:      StateConnecting,
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	s.logger = logger.With(
		zap.String("session_id", s.id),
		zap.String("remote", conn.RemoteAddr()),
		zap.String("transport", transport),
	)
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Principal() *models.Principal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.principal
}

// SetPrincipal binds or clears the authenticated identity and moves the state accordingly.
func (s *Session) SetPrincipal(principal *models.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.principal = principal
	if principal != nil {
		s.state = StateAuthenticated
	} else {
		s.state = StateUnauthenticated
	}
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Serve writes the greeting and then runs the request loop until the peer disconnects, an
// I/O operation fails, the idle timeout expires, or ctx is cancelled. The connection is
// always closed on return.
func (s *Session) Serve(ctx context.Context) error {
	if s.metrics != nil {
		s.metrics.SessionOpened(s.transport)
		defer s.metrics.SessionClosed()
	}
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()
	defer s.close()

	greeting := response.Success(protocol.OpServerGreeting, protocol.Greeting{
		Message:   s.opts.Greeting,
		Version:   protocol.Version,
		SessionID: s.id,
	})
	if err := s.write(greeting); err != nil {
		return fmt.Errorf("write greeting: %w", err)
	}
	s.setState(StateUnauthenticated)
	s.logger.Info("session opened")

	for {
		if s.opts.IdleTimeout > 0 {
			if err := s.conn.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout)); err != nil {
				return s.finish(ctx, err)
			}
		}
		env, err := s.conn.ReadEnvelope()
		if err != nil {
			var frameErr *protocol.FrameError
			if errors.As(err, &frameErr) {
				if s.metrics != nil {
					s.metrics.FrameError()
				}
				s.logger.Debug("malformed frame", zap.Error(err))
				if werr := s.write(response.Error("", frameErr)); werr != nil {
					return s.finish(ctx, werr)
				}
				continue
			}
			return s.finish(ctx, err)
		}

		if err := s.write(s.handle(ctx, env)); err != nil {
			return s.finish(ctx, err)
		}
	}
}

func (s *Session) handle(ctx context.Context, env protocol.Envelope) protocol.Envelope {
	if s.limiter != nil && !s.limiter.Allow() {
		if s.metrics != nil {
			s.metrics.RateLimited()
		}
		return response.Error(env.Op, appErrors.ErrRateLimited)
	}

	// Closing the connection must not abort a request that is already running. The only
	// bound on a request is the store's pool checkout timeout.
	return s.dispatcher.Dispatch(context.WithoutCancel(ctx), env, s)
}

func (s *Session) write(env protocol.Envelope) error {
	if s.opts.WriteTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
			return err
		}
	}
	return s.conn.WriteEnvelope(env)
}

// finish classifies the terminating error. Peer disconnects, idle timeouts and shutdown
// end the session cleanly.
func (s *Session) finish(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		s.logger.Info("session closed by shutdown")
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), protocol.IsNormalClose(err):
		s.logger.Info("session closed by peer")
		return nil
	case isTimeout(err):
		s.logger.Info("session idle timeout", zap.Duration("idle_timeout", s.opts.IdleTimeout))
		return nil
	}
	s.logger.Warn("session terminated", zap.Error(err))
	return err
}

func (s *Session) close() {
	s.mu.Lock()
	s.state = StateClosed
	s.principal = nil
	s.mu.Unlock()
	_ = s.conn.Close()
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
