// Package dispatch routes decoded envelopes to domain handlers after enforcing
// authentication and role preconditions.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-gateway/internal/dto"
	"github.com/noah-isme/campus-gateway/internal/models"
	appErrors "github.com/noah-isme/campus-gateway/pkg/errors"
	"github.com/noah-isme/campus-gateway/pkg/protocol"
	"github.com/noah-isme/campus-gateway/pkg/response"
)

// SessionState is the per-connection state the dispatcher reads and, for login and
// logout only, writes.
type SessionState interface {
	ID() string
	Principal() *models.Principal
	SetPrincipal(principal *models.Principal)
}

// Authenticator performs the credential check behind USER_LOGIN.
type Authenticator interface {
	Login(ctx context.Context, req dto.LoginRequest) (*models.Principal, *dto.LoginResponse, error)
	Logout(ctx context.Context, principal *models.Principal)
}

type metricsObserver interface {
	ObserveDispatch(op, code string, duration time.Duration)
}

// HandlerFunc serves one operation. The returned value becomes the SUCCESS payload.
type HandlerFunc func(ctx context.Context, req *Request) (interface{}, error)

// Route binds a handler to its preconditions. Non-public routes require a principal;
// a non-empty Roles requires the principal to hold at least one of them.
type Route struct {
	Handler HandlerFunc
	Public  bool
	Roles   []models.UserRole
}

// HeartbeatResponse answers HEARTBEAT.
type HeartbeatResponse struct {
	ServerTime time.Time `json:"serverTime"`
}

// Dispatcher maps operation tags to routes. Routes are registered at startup and
// shared read-only by every session.
type Dispatcher struct {
	mu       sync.RWMutex
	routes   map[protocol.OpTag]Route
	auth     Authenticator
	validate *validator.Validate
	metrics  metricsObserver
	logger   *zap.Logger
}

// New constructs a dispatcher.
func New(auth Authenticator, validate *validator.Validate, metrics metricsObserver, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &Dispatcher{
		routes:   make(map[protocol.OpTag]Route),
		auth:     auth,
		validate: validate,
		metrics:  metrics,
		logger:   logger,
	}
}

// Handle registers route for op, replacing any previous registration.
func (d *Dispatcher) Handle(op protocol.OpTag, route Route) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routes[op] = route
}

func (d *Dispatcher) route(op protocol.OpTag) (Route, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	route, ok := d.routes[op]
	return route, ok
}

// Dispatch answers env with exactly one envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, env protocol.Envelope, session SessionState) protocol.Envelope {
	start := time.Now()
	resp := d.dispatch(ctx, env, session)
	duration := time.Since(start)

	if d.metrics != nil {
		d.metrics.ObserveDispatch(string(env.Op), string(resp.Code), duration)
	}
	fields := []zap.Field{
		zap.String("session_id", session.ID()),
		zap.String("op", string(env.Op)),
		zap.String("code", string(resp.Code)),
		zap.Duration("latency", duration),
	}
	if principal := session.Principal(); principal != nil {
		fields = append(fields, zap.String("user_id", principal.UserID))
	}
	d.logger.Debug("dispatch", fields...)
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, env protocol.Envelope, session SessionState) protocol.Envelope {
	if !env.Op.Valid() || env.Op == protocol.OpServerGreeting {
		return response.Error(env.Op, appErrors.Clone(appErrors.ErrDecode, fmt.Sprintf("unknown operation %q", env.Op)))
	}

	switch env.Op {
	case protocol.OpHeartbeat:
		return response.Success(env.Op, HeartbeatResponse{ServerTime: time.Now().UTC()})
	case protocol.OpUserLogin:
		return d.login(ctx, env, session)
	case protocol.OpUserLogout:
		return d.logout(ctx, env, session)
	}

	route, registered := d.route(env.Op)
	principal := session.Principal()
	if !(registered && route.Public) && principal == nil {
		return response.Error(env.Op, appErrors.ErrUnauthorized)
	}
	if registered && len(route.Roles) > 0 && !principal.HasRole(route.Roles...) {
		return response.Error(env.Op, appErrors.Clone(appErrors.ErrForbidden, "insufficient role for operation"))
	}
	if !registered || route.Handler == nil {
		return response.Error(env.Op, appErrors.ErrUnsupported)
	}

	result, err := d.invoke(ctx, route.Handler, &Request{Op: env.Op, Principal: principal, envelope: env, validate: d.validate})
	if err != nil {
		return d.failure(env.Op, session, err)
	}
	return response.Success(env.Op, result)
}

// login is the one operation that mutates the session: on success the principal is bound.
func (d *Dispatcher) login(ctx context.Context, env protocol.Envelope, session SessionState) protocol.Envelope {
	if d.auth == nil {
		return response.Error(env.Op, appErrors.ErrUnsupported)
	}
	req := &Request{Op: env.Op, envelope: env, validate: d.validate}
	result, err := d.invoke(ctx, func(ctx context.Context, req *Request) (interface{}, error) {
		var payload dto.LoginRequest
		if err := req.Bind(&payload); err != nil {
			return nil, err
		}
		principal, resp, err := d.auth.Login(ctx, payload)
		if err != nil {
			return nil, err
		}
		session.SetPrincipal(principal)
		return resp, nil
	}, req)
	if err != nil {
		return d.failure(env.Op, session, err)
	}
	return response.Success(env.Op, result)
}

func (d *Dispatcher) logout(ctx context.Context, env protocol.Envelope, session SessionState) protocol.Envelope {
	principal := session.Principal()
	if principal == nil {
		return response.Error(env.Op, appErrors.ErrUnauthorized)
	}
	if d.auth != nil {
		d.auth.Logout(ctx, principal)
	}
	session.SetPrincipal(nil)
	return response.Success(env.Op, dto.LogoutResponse{Message: "logged out"})
}

// invoke runs h, converting a panic into an internal error.
func (d *Dispatcher) invoke(ctx context.Context, h HandlerFunc, req *Request) (result interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("handler panic",
				zap.String("op", string(req.Op)),
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
			result = nil
			err = appErrors.Clone(appErrors.ErrInternal, "")
		}
	}()
	return h(ctx, req)
}

func (d *Dispatcher) failure(op protocol.OpTag, session SessionState, err error) protocol.Envelope {
	appErr := response.FromError(err)
	if appErr.Code == appErrors.CodeInternal {
		d.logger.Error("handler failed",
			zap.String("session_id", session.ID()),
			zap.String("op", string(op)),
			zap.Error(err),
		)
	}
	return response.Error(op, err)
}
