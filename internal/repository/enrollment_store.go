package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-gateway/internal/models"
	"github.com/noah-isme/campus-gateway/pkg/database"
)

// ReviewTx exposes the statements a review decision runs on one transaction.
type ReviewTx interface {
	GetChangeRequest(ctx context.Context, id int64) (*models.ChangeRequest, error)
	LockProfile(ctx context.Context, studentID string) (*models.StudentProfile, error)
	SaveProfile(ctx context.Context, profile *models.StudentProfile) error
	MarkReviewed(ctx context.Context, params ReviewParams) error
	AppendHistory(ctx context.Context, entry *models.ChangeHistoryEntry) error
}

// EnrollmentStore groups the multi-table writes of the enrollment workflow.
// Every write runs in a transaction scoped by database.WithTxTimeout.
type EnrollmentStore struct {
	db             *sqlx.DB
	users          *UserRepository
	requests       *ChangeRequestRepository
	profiles       *StudentProfileRepository
	acquireTimeout time.Duration
}

// EnrollmentStoreOption customises an EnrollmentStore.
type EnrollmentStoreOption func(*EnrollmentStore)

// WithAcquireTimeout bounds how long a write waits for a pooled connection.
func WithAcquireTimeout(d time.Duration) EnrollmentStoreOption {
	return func(s *EnrollmentStore) {
		s.acquireTimeout = d
	}
}

// NewEnrollmentStore wires the store over the shared pool.
func NewEnrollmentStore(db *sqlx.DB, users *UserRepository, requests *ChangeRequestRepository, profiles *StudentProfileRepository, opts ...EnrollmentStoreOption) *EnrollmentStore {
	s := &EnrollmentStore{db: db, users: users, requests: requests, profiles: profiles}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *EnrollmentStore) withTx(ctx context.Context, fn database.TxFunc) error {
	return database.WithTxTimeout(ctx, s.db, s.acquireTimeout, fn)
}

// Submit inserts the change request and its SUBMIT history entry atomically.
func (s *EnrollmentStore) Submit(ctx context.Context, req *models.ChangeRequest, entry *models.ChangeHistoryEntry) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.requests.Create(ctx, tx, req); err != nil {
			return err
		}
		entry.ChangeRequestID = req.ID
		return s.requests.AppendHistory(ctx, tx, entry)
	})
}

// GetByID loads a change request outside any transaction.
func (s *EnrollmentStore) GetByID(ctx context.Context, id int64) (*models.ChangeRequest, error) {
	return s.requests.GetByID(ctx, nil, id)
}

// List returns change requests matching filter.
func (s *EnrollmentStore) List(ctx context.Context, filter models.ChangeRequestFilter) ([]models.ChangeRequest, error) {
	return s.requests.List(ctx, filter)
}

// ListHistory returns the audit trail of a request.
func (s *EnrollmentStore) ListHistory(ctx context.Context, id int64) ([]models.ChangeHistoryEntry, error) {
	return s.requests.ListHistory(ctx, id)
}

// Review runs fn on a single transaction. Any error returned by fn rolls back every
// statement fn issued, including profile changes.
func (s *EnrollmentStore) Review(ctx context.Context, fn func(ReviewTx) error) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		return fn(&reviewTx{tx: tx, store: s})
	})
}

// RegisterStudent creates a STUDENT account and its profile atomically.
func (s *EnrollmentStore) RegisterStudent(ctx context.Context, user *models.User, profile *models.StudentProfile) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.users.Create(ctx, tx, user); err != nil {
			return err
		}
		profile.StudentID = user.ID
		return s.profiles.Create(ctx, tx, profile)
	})
}

// UpdateAccount stores display attributes and, when passwordHash is set, the new password
// hash in one transaction. A missing user surfaces as sql.ErrNoRows.
func (s *EnrollmentStore) UpdateAccount(ctx context.Context, user *models.User, passwordHash string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if passwordHash != "" {
			if err := s.users.UpdatePassword(ctx, tx, user.ID, passwordHash, time.Now().UTC()); err != nil {
				return err
			}
		}
		return s.users.UpdateProfile(ctx, tx, user)
	})
}

type reviewTx struct {
	tx    *sqlx.Tx
	store *EnrollmentStore
}

func (t *reviewTx) GetChangeRequest(ctx context.Context, id int64) (*models.ChangeRequest, error) {
	return t.store.requests.GetByID(ctx, t.tx, id)
}

func (t *reviewTx) LockProfile(ctx context.Context, studentID string) (*models.StudentProfile, error) {
	return t.store.profiles.FindForUpdate(ctx, t.tx, studentID)
}

func (t *reviewTx) SaveProfile(ctx context.Context, profile *models.StudentProfile) error {
	return t.store.profiles.Update(ctx, t.tx, profile)
}

func (t *reviewTx) MarkReviewed(ctx context.Context, params ReviewParams) error {
	return t.store.requests.UpdateReviewIfPending(ctx, t.tx, params)
}

func (t *reviewTx) AppendHistory(ctx context.Context, entry *models.ChangeHistoryEntry) error {
	return t.store.requests.AppendHistory(ctx, t.tx, entry)
}
