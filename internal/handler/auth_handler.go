package handler

import (
	"context"

	"github.com/noah-isme/campus-gateway/internal/dispatch"
	"github.com/noah-isme/campus-gateway/internal/dto"
	"github.com/noah-isme/campus-gateway/internal/models"
	"github.com/noah-isme/campus-gateway/pkg/protocol"
)

type accountService interface {
	Register(ctx context.Context, req dto.RegisterRequest) (*dto.UserInfo, error)
	UpdateUser(ctx context.Context, principal *models.Principal, req dto.UpdateUserRequest) (*dto.UserInfo, error)
}

// AuthHandler serves account operations. Login and logout are handled by the dispatcher.
type AuthHandler struct {
	accounts accountService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(accounts accountService) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

// Register creates a student account.
func (h *AuthHandler) Register(ctx context.Context, _ *models.Principal, req dto.RegisterRequest) (interface{}, error) {
	return h.accounts.Register(ctx, req)
}

// Update changes the caller's own account.
func (h *AuthHandler) Update(ctx context.Context, principal *models.Principal, req dto.UpdateUserRequest) (interface{}, error) {
	return h.accounts.UpdateUser(ctx, principal, req)
}

// Routes registers the account operations.
func (h *AuthHandler) Routes(d *dispatch.Dispatcher) {
	d.Handle(protocol.OpUserRegister, dispatch.Route{Public: true, Handler: dispatch.Typed(h.Register)})
	d.Handle(protocol.OpUserUpdate, dispatch.Route{Handler: dispatch.Typed(h.Update)})
}
