package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-gateway/pkg/protocol"
)

const (
	acceptBackoffMin = 5 * time.Millisecond
	acceptBackoffMax = time.Second
)

// Acceptor runs one session goroutine per accepted TCP connection. The accept loop never
// performs request work.
type Acceptor struct {
	dispatcher Dispatcher
	opts       SessionOptions
	maxFrame   int
	metrics    sessionMetrics
	logger     *zap.Logger

	wg sync.WaitGroup
}

// NewAcceptor constructs an Acceptor sharing dispatcher across sessions.
func NewAcceptor(dispatcher Dispatcher, opts SessionOptions, maxFrame int, metrics sessionMetrics, logger *zap.Logger) *Acceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Acceptor{
		dispatcher: dispatcher,
		opts:       opts,
		maxFrame:   maxFrame,
		metrics:    metrics,
		logger:     logger,
	}
}

// Serve accepts connections until ctx is cancelled or the listener fails permanently.
// Cancelling ctx closes the listener and every open session connection.
func (a *Acceptor) Serve(ctx context.Context, ln net.Listener) error {
	a.logger.Info("acceptor listening", zap.String("addr", ln.Addr().String()))

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if isTemporary(err) {
				backoff = nextBackoff(backoff)
				a.logger.Warn("accept failed, retrying", zap.Error(err), zap.Duration("backoff", backoff))
				select {
				case <-time.After(backoff):
					continue
				case <-ctx.Done():
					return nil
				}
			}
			return err
		}
		backoff = 0

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.serveConn(ctx, conn)
		}()
	}
}

func (a *Acceptor) serveConn(ctx context.Context, conn net.Conn) {
	session := NewSession(protocol.NewStreamConn(conn, a.maxFrame), TransportTCP, a.dispatcher, a.opts, a.metrics, a.logger)
	if err := session.Serve(ctx); err != nil {
		a.logger.Debug("session ended with error", zap.String("session_id", session.ID()), zap.Error(err))
	}
}

// Shutdown waits for every session started by Serve to return, or for ctx to expire.
func (a *Acceptor) Shutdown(ctx context.Context) error {
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

func isTemporary(err error) bool {
	var netErr net.Error
	if !errors.As(err, &netErr) {
		return false
	}
	// Accept errors such as EMFILE still report Temporary.
	type temporary interface{ Temporary() bool }
	if t, ok := netErr.(temporary); ok && t.Temporary() {
		return true
	}
	return netErr.Timeout()
}

func nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return acceptBackoffMin
	}
	current *= 2
	if current > acceptBackoffMax {
		return acceptBackoffMax
	}
	return current
}
