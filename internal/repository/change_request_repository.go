package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-gateway/internal/models"
)

const changeRequestColumns = `id, student_id, payload, reason, status, submitted_at, reviewed_by, reviewed_at, review_comment`

// ChangeRequestRepository persists enrollment change requests and their audit trail.
type ChangeRequestRepository struct {
	db *sqlx.DB
}

// NewChangeRequestRepository constructs the repository.
func NewChangeRequestRepository(db *sqlx.DB) *ChangeRequestRepository {
	return &ChangeRequestRepository{db: db}
}

func (r *ChangeRequestRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a change request and assigns its store-generated id.
func (r *ChangeRequestRepository) Create(ctx context.Context, exec sqlx.ExtContext, req *models.ChangeRequest) error {
	if req.Status == "" {
		req.Status = models.ChangeStatusPending
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now().UTC()
	}
	const query = `INSERT INTO enrollment_change_requests (student_id, payload, reason, status, submitted_at)
	VALUES ($1, $2, $3, $4, $5) RETURNING id`
	if err := sqlx.GetContext(ctx, r.exec(exec), &req.ID, query,
		req.StudentID, req.Payload, req.Reason, req.Status, req.SubmittedAt); err != nil {
		return fmt.Errorf("create change request: %w", err)
	}
	return nil
}

// GetByID fetches a change request by identifier.
func (r *ChangeRequestRepository) GetByID(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.ChangeRequest, error) {
	query := `SELECT ` + changeRequestColumns + ` FROM enrollment_change_requests WHERE id = $1`
	var req models.ChangeRequest
	if err := sqlx.GetContext(ctx, r.exec(exec), &req, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get change request: %w", err)
	}
	hydrateChangeType(&req)
	return &req, nil
}

// List returns change requests matching the filter, newest first.
func (r *ChangeRequestRepository) List(ctx context.Context, filter models.ChangeRequestFilter) ([]models.ChangeRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT ` + changeRequestColumns + ` FROM enrollment_change_requests`)

	conditions := make([]string, 0, 2)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY id DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var requests []models.ChangeRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list change requests: %w", err)
	}
	for i := range requests {
		hydrateChangeType(&requests[i])
	}
	return requests, nil
}

// ReviewParams groups the columns written by a review decision.
type ReviewParams struct {
	ID         int64
	Status     models.ChangeStatus
	ReviewedBy string
	ReviewedAt time.Time
	Comment    *string
}

// UpdateReviewIfPending records the decision only while the row is still PENDING.
// It returns sql.ErrNoRows when no row matched.
func (r *ChangeRequestRepository) UpdateReviewIfPending(ctx context.Context, exec sqlx.ExtContext, params ReviewParams) error {
	query := fmt.Sprintf(`UPDATE enrollment_change_requests
	SET status = $2, reviewed_by = $3, reviewed_at = $4, review_comment = $5
	WHERE id = $1 AND status = '%s'`, models.ChangeStatusPending)
	result, err := r.exec(exec).ExecContext(ctx, query,
		params.ID, params.Status, params.ReviewedBy, params.ReviewedAt, params.Comment)
	if err != nil {
		return fmt.Errorf("update change request review: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check change request update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AppendHistory inserts one audit row and assigns its id.
func (r *ChangeRequestRepository) AppendHistory(ctx context.Context, exec sqlx.ExtContext, entry *models.ChangeHistoryEntry) error {
	if entry.ActedAt.IsZero() {
		entry.ActedAt = time.Now().UTC()
	}
	const query = `INSERT INTO enrollment_change_history (change_request_id, action, actor_id, acted_at, comment, payload_snapshot)
	VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	if err := sqlx.GetContext(ctx, r.exec(exec), &entry.ID, query,
		entry.ChangeRequestID, entry.Action, entry.ActorID, entry.ActedAt, entry.Comment, entry.PayloadSnapshot); err != nil {
		return fmt.Errorf("append change history: %w", err)
	}
	return nil
}

// ListHistory returns the audit trail of a change request in insertion order.
func (r *ChangeRequestRepository) ListHistory(ctx context.Context, changeRequestID int64) ([]models.ChangeHistoryEntry, error) {
	const query = `SELECT id, change_request_id, action, actor_id, acted_at, comment, payload_snapshot
	FROM enrollment_change_history WHERE change_request_id = $1 ORDER BY id ASC`
	var entries []models.ChangeHistoryEntry
	if err := r.db.SelectContext(ctx, &entries, query, changeRequestID); err != nil {
		return nil, fmt.Errorf("list change history: %w", err)
	}
	return entries, nil
}

func hydrateChangeType(req *models.ChangeRequest) {
	if changeType, err := req.Payload.ChangeType(); err == nil {
		req.ChangeType = changeType
	}
}
