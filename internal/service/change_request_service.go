package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-gateway/internal/dto"
	"github.com/noah-isme/campus-gateway/internal/models"
	"github.com/noah-isme/campus-gateway/internal/repository"
	appErrors "github.com/noah-isme/campus-gateway/pkg/errors"
)

type changeRequestStore interface {
	Submit(ctx context.Context, req *models.ChangeRequest, entry *models.ChangeHistoryEntry) error
	GetByID(ctx context.Context, id int64) (*models.ChangeRequest, error)
	List(ctx context.Context, filter models.ChangeRequestFilter) ([]models.ChangeRequest, error)
	ListHistory(ctx context.Context, id int64) ([]models.ChangeHistoryEntry, error)
	Review(ctx context.Context, fn func(repository.ReviewTx) error) error
}

type profileInvalidator interface {
	Invalidate(ctx context.Context, studentID string) error
}

// ChangeRequestService runs the enrollment change-request workflow:
// PENDING moves to APPROVED or REJECTED exactly once.
type ChangeRequestService struct {
	store    changeRequestStore
	profiles profileInvalidator
	effects  map[models.ChangeType]ProfileEffect
	logger   *zap.Logger
}

// ChangeRequestServiceOption configures the service.
type ChangeRequestServiceOption func(*ChangeRequestService)

// WithProfileEffects overrides effects per change type.
func WithProfileEffects(effects map[models.ChangeType]ProfileEffect) ChangeRequestServiceOption {
	return func(s *ChangeRequestService) {
		for k, v := range effects {
			s.effects[k] = v
		}
	}
}

// WithProfileInvalidator sets the component notified after an approval commits.
func WithProfileInvalidator(profiles profileInvalidator) ChangeRequestServiceOption {
	return func(s *ChangeRequestService) {
		s.profiles = profiles
	}
}

// NewChangeRequestService constructs the service with the default effect table.
func NewChangeRequestService(store changeRequestStore, logger *zap.Logger, opts ...ChangeRequestServiceOption) *ChangeRequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ChangeRequestService{
		store:   store,
		effects: DefaultProfileEffects(),
		logger:  logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Submit records a new PENDING request together with its SUBMIT history entry.
func (s *ChangeRequestService) Submit(ctx context.Context, actor *models.Principal, req dto.SubmitChangeRequest) (*models.ChangeRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	studentID := strings.TrimSpace(req.StudentID)
	if studentID == "" {
		studentID = actor.UserID
	}
	if studentID != actor.UserID && !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only submit requests for themselves")
	}
	if !req.ChangeType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported change type")
	}
	reason := strings.TrimSpace(req.Reason)

	payload := models.ChangePayload(req.Fields).Clone()
	changeType, err := json.Marshal(req.ChangeType)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, "failed to encode change type")
	}
	payload[models.PayloadChangeTypeKey] = changeType

	now := time.Now().UTC()
	changeRequest := &models.ChangeRequest{
		StudentID:   studentID,
		ChangeType:  req.ChangeType,
		Payload:     payload,
		Reason:      reason,
		Status:      models.ChangeStatusPending,
		SubmittedAt: now,
	}
	entry := &models.ChangeHistoryEntry{
		Action:          models.HistoryActionSubmit,
		ActorID:         actor.UserID,
		ActedAt:         now,
		PayloadSnapshot: payload.Clone(),
	}
	if err := s.store.Submit(ctx, changeRequest, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, "failed to submit change request")
	}

	s.logger.Info("change request submitted",
		zap.Int64("change_request_id", changeRequest.ID),
		zap.String("student_id", studentID),
		zap.String("change_type", string(req.ChangeType)),
		zap.String("actor_id", actor.UserID),
	)
	return changeRequest, nil
}

// ListForUser returns the requests of studentID; students only see their own.
func (s *ChangeRequestService) ListForUser(ctx context.Context, actor *models.Principal, studentID string, limit, offset int) ([]models.ChangeRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if studentID == "" {
		studentID = actor.UserID
	}
	if studentID != actor.UserID && !actor.HasRole(models.RoleTeacher, models.RoleAdmin) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only list their own requests")
	}
	return s.list(ctx, models.ChangeRequestFilter{StudentID: studentID, Limit: limit, Offset: offset})
}

// ListPending returns the review queue. Administrators only.
func (s *ChangeRequestService) ListPending(ctx context.Context, actor *models.Principal, limit, offset int) ([]models.ChangeRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators may list pending requests")
	}
	return s.list(ctx, models.ChangeRequestFilter{
		Status: []models.ChangeStatus{models.ChangeStatusPending},
		Limit:  limit,
		Offset: offset,
	})
}

func (s *ChangeRequestService) list(ctx context.Context, filter models.ChangeRequestFilter) ([]models.ChangeRequest, error) {
	requests, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, "failed to list change requests")
	}
	if requests == nil {
		requests = []models.ChangeRequest{}
	}
	return requests, nil
}

// Detail returns a request with its history. Unknown ids are NOT_FOUND.
func (s *ChangeRequestService) Detail(ctx context.Context, actor *models.Principal, id int64) (*models.ChangeRequestDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	req, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "change request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, "failed to load change request")
	}
	if req.StudentID != actor.UserID && !actor.HasRole(models.RoleTeacher, models.RoleAdmin) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only view their own requests")
	}
	history, err := s.store.ListHistory(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, "failed to load change history")
	}
	if history == nil {
		history = []models.ChangeHistoryEntry{}
	}
	return &models.ChangeRequestDetail{ChangeRequest: *req, History: history}, nil
}

// Approve applies the request's business effect and marks it APPROVED.
func (s *ChangeRequestService) Approve(ctx context.Context, reviewer *models.Principal, id int64, comment string) (*models.ChangeRequest, error) {
	return s.review(ctx, reviewer, id, comment, models.ChangeStatusApproved)
}

// Reject marks the request REJECTED without touching the profile.
func (s *ChangeRequestService) Reject(ctx context.Context, reviewer *models.Principal, id int64, comment string) (*models.ChangeRequest, error) {
	return s.review(ctx, reviewer, id, comment, models.ChangeStatusRejected)
}

// review runs fetch, effect, compare-and-set and history on one transaction.
// Losing the compare-and-set rolls the effect back.
func (s *ChangeRequestService) review(ctx context.Context, reviewer *models.Principal, id int64, comment string, decision models.ChangeStatus) (*models.ChangeRequest, error) {
	if reviewer == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !reviewer.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators may review change requests")
	}
	action := models.HistoryActionApprove
	if decision == models.ChangeStatusRejected {
		action = models.HistoryActionReject
	}

	var reviewed *models.ChangeRequest
	err := s.store.Review(ctx, func(tx repository.ReviewTx) error {
		req, err := tx.GetChangeRequest(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "change request not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, "failed to load change request")
		}
		if req.Status != models.ChangeStatusPending {
			return appErrors.ErrAlreadyProcessed
		}

		if decision == models.ChangeStatusApproved {
			if err := s.applyEffect(ctx, tx, req); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		note := optionalString(comment)
		if err := tx.MarkReviewed(ctx, repository.ReviewParams{
			ID:         req.ID,
			Status:     decision,
			ReviewedBy: reviewer.UserID,
			ReviewedAt: now,
			Comment:    note,
		}); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.ErrAlreadyProcessed
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, "failed to update change request")
		}

		if err := tx.AppendHistory(ctx, &models.ChangeHistoryEntry{
			ChangeRequestID: req.ID,
			Action:          action,
			ActorID:         reviewer.UserID,
			ActedAt:         now,
			Comment:         note,
			PayloadSnapshot: req.Payload.Clone(),
		}); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, "failed to append change history")
		}

		req.Status = decision
		req.ReviewedBy = &reviewer.UserID
		req.ReviewedAt = &now
		req.ReviewComment = note
		reviewed = req
		return nil
	})
	if err != nil {
		var appErr *appErrors.Error
		if !errors.As(err, &appErr) {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, "failed to review change request")
		}
		s.logger.Info("change request review failed",
			zap.Int64("change_request_id", id),
			zap.String("decision", string(decision)),
			zap.String("reviewer_id", reviewer.UserID),
			zap.Error(err),
		)
		return nil, err
	}

	if decision == models.ChangeStatusApproved && s.profiles != nil {
		if err := s.profiles.Invalidate(ctx, reviewed.StudentID); err != nil {
			s.logger.Warn("failed to invalidate cached profile", zap.String("student_id", reviewed.StudentID), zap.Error(err))
		}
	}

	s.logger.Info("change request reviewed",
		zap.Int64("change_request_id", reviewed.ID),
		zap.String("student_id", reviewed.StudentID),
		zap.String("decision", string(decision)),
		zap.String("reviewer_id", reviewer.UserID),
	)
	return reviewed, nil
}

func (s *ChangeRequestService) applyEffect(ctx context.Context, tx repository.ReviewTx, req *models.ChangeRequest) error {
	effect := s.effects[req.ChangeType]
	if effect == nil {
		return appErrors.Clone(appErrors.ErrValidation, "unsupported change type")
	}
	profile, err := tx.LockProfile(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "student profile missing")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, "failed to load student profile")
	}
	if err := effect.Apply(profile, req.Payload); err != nil {
		return err
	}
	if err := tx.SaveProfile(ctx, profile); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, "failed to update student profile")
	}
	return nil
}

func optionalString(value string) *string {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	return &v
}
