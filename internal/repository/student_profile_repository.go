package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-gateway/internal/models"
)

const profileColumns = `student_id, student_number, admission_year, graduation_year, advisor_id, status, gpa, total_credits, updated_at`

// StudentProfileRepository persists enrollment profiles.
type StudentProfileRepository struct {
	db *sqlx.DB
}

// NewStudentProfileRepository constructs the repository.
func NewStudentProfileRepository(db *sqlx.DB) *StudentProfileRepository {
	return &StudentProfileRepository{db: db}
}

func (r *StudentProfileRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByStudentID loads a profile without locking it.
func (r *StudentProfileRepository) FindByStudentID(ctx context.Context, exec sqlx.ExtContext, studentID string) (*models.StudentProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM student_profiles WHERE student_id = $1`
	return r.get(ctx, r.exec(exec), query, studentID)
}

// FindForUpdate loads and row-locks a profile; exec must be a transaction.
func (r *StudentProfileRepository) FindForUpdate(ctx context.Context, exec sqlx.ExtContext, studentID string) (*models.StudentProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM student_profiles WHERE student_id = $1 FOR UPDATE`
	return r.get(ctx, r.exec(exec), query, studentID)
}

func (r *StudentProfileRepository) get(ctx context.Context, exec sqlx.ExtContext, query, studentID string) (*models.StudentProfile, error) {
	var profile models.StudentProfile
	if err := sqlx.GetContext(ctx, exec, &profile, query, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find student profile: %w", err)
	}
	return &profile, nil
}

// Create inserts a new profile.
func (r *StudentProfileRepository) Create(ctx context.Context, exec sqlx.ExtContext, profile *models.StudentProfile) error {
	if profile.Status == "" {
		profile.Status = models.ProfileStatusActive
	}
	profile.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO student_profiles (` + profileColumns + `)
	VALUES (:student_id, :student_number, :admission_year, :graduation_year, :advisor_id, :status, :gpa, :total_credits, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, profile); err != nil {
		return fmt.Errorf("create student profile: %w", err)
	}
	return nil
}

// Update overwrites every mutable column of the profile.
func (r *StudentProfileRepository) Update(ctx context.Context, exec sqlx.ExtContext, profile *models.StudentProfile) error {
	profile.UpdatedAt = time.Now().UTC()
	const query = `UPDATE student_profiles SET student_number = :student_number, admission_year = :admission_year,
	graduation_year = :graduation_year, advisor_id = :advisor_id, status = :status, gpa = :gpa,
	total_credits = :total_credits, updated_at = :updated_at WHERE student_id = :student_id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, profile)
	if err != nil {
		return fmt.Errorf("update student profile: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check student profile update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
