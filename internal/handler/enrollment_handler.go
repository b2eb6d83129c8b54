package handler

import (
	"context"

	"github.com/noah-isme/campus-gateway/internal/dispatch"
	"github.com/noah-isme/campus-gateway/internal/dto"
	"github.com/noah-isme/campus-gateway/internal/models"
	"github.com/noah-isme/campus-gateway/pkg/protocol"
)

type changeRequestService interface {
	Submit(ctx context.Context, actor *models.Principal, req dto.SubmitChangeRequest) (*models.ChangeRequest, error)
	ListForUser(ctx context.Context, actor *models.Principal, studentID string, limit, offset int) ([]models.ChangeRequest, error)
	ListPending(ctx context.Context, actor *models.Principal, limit, offset int) ([]models.ChangeRequest, error)
	Detail(ctx context.Context, actor *models.Principal, id int64) (*models.ChangeRequestDetail, error)
	Approve(ctx context.Context, reviewer *models.Principal, id int64, comment string) (*models.ChangeRequest, error)
	Reject(ctx context.Context, reviewer *models.Principal, id int64, comment string) (*models.ChangeRequest, error)
}

type studentProfileService interface {
	Get(ctx context.Context, actor *models.Principal, studentID string) (*models.StudentProfile, error)
}

// EnrollmentHandler serves profile reads and the change-request workflow.
type EnrollmentHandler struct {
	requests changeRequestService
	profiles studentProfileService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(requests changeRequestService, profiles studentProfileService) *EnrollmentHandler {
	return &EnrollmentHandler{requests: requests, profiles: profiles}
}

// Profile returns a student profile.
func (h *EnrollmentHandler) Profile(ctx context.Context, principal *models.Principal, req dto.ProfileGetRequest) (interface{}, error) {
	return h.profiles.Get(ctx, principal, req.StudentID)
}

// Submit opens a change request.
func (h *EnrollmentHandler) Submit(ctx context.Context, principal *models.Principal, req dto.SubmitChangeRequest) (interface{}, error) {
	return h.requests.Submit(ctx, principal, req)
}

// List returns the caller's requests or, with scope "pending", the review queue.
func (h *EnrollmentHandler) List(ctx context.Context, principal *models.Principal, req dto.ListChangeRequests) (interface{}, error) {
	var (
		items []models.ChangeRequest
		err   error
	)
	if req.Scope == dto.ListScopePending {
		items, err = h.requests.ListPending(ctx, principal, req.Limit, req.Offset)
	} else {
		items, err = h.requests.ListForUser(ctx, principal, req.StudentID, req.Limit, req.Offset)
	}
	if err != nil {
		return nil, err
	}
	return dto.ChangeRequestList{Items: items, Count: len(items)}, nil
}

// Detail returns one request with its history.
func (h *EnrollmentHandler) Detail(ctx context.Context, principal *models.Principal, req dto.ChangeRequestRef) (interface{}, error) {
	return h.requests.Detail(ctx, principal, req.ID)
}

// Approve applies a pending request.
func (h *EnrollmentHandler) Approve(ctx context.Context, principal *models.Principal, req dto.ReviewChangeRequest) (interface{}, error) {
	return h.requests.Approve(ctx, principal, req.ID, req.Comment)
}

// Reject closes a pending request without effect.
func (h *EnrollmentHandler) Reject(ctx context.Context, principal *models.Principal, req dto.ReviewChangeRequest) (interface{}, error) {
	return h.requests.Reject(ctx, principal, req.ID, req.Comment)
}

// Routes registers the enrollment operations.
func (h *EnrollmentHandler) Routes(d *dispatch.Dispatcher) {
	admin := []models.UserRole{models.RoleAdmin}
	d.Handle(protocol.OpEnrollmentProfileGet, dispatch.Route{Handler: dispatch.Typed(h.Profile)})
	d.Handle(protocol.OpEnrollmentRequestSubmit, dispatch.Route{
		Handler: dispatch.Typed(h.Submit),
		Roles:   []models.UserRole{models.RoleStudent, models.RoleAdmin},
	})
	d.Handle(protocol.OpEnrollmentRequestList, dispatch.Route{Handler: dispatch.Typed(h.List)})
	d.Handle(protocol.OpEnrollmentRequestDetail, dispatch.Route{Handler: dispatch.Typed(h.Detail)})
	d.Handle(protocol.OpEnrollmentRequestApprove, dispatch.Route{Handler: dispatch.Typed(h.Approve), Roles: admin})
	d.Handle(protocol.OpEnrollmentRequestReject, dispatch.Route{Handler: dispatch.Typed(h.Reject), Roles: admin})
}
