package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-gateway/internal/models"
	appErrors "github.com/noah-isme/campus-gateway/pkg/errors"
)

const profileCachePrefix = "enrollment:profile:"

type studentProfileReader interface {
	FindByStudentID(ctx context.Context, exec sqlx.ExtContext, studentID string) (*models.StudentProfile, error)
}

// ProfileCacheKey returns the cache key of a student's profile.
func ProfileCacheKey(studentID string) string {
	return profileCachePrefix + studentID
}

// StudentProfileService reads enrollment profiles through the optional cache.
type StudentProfileService struct {
	repo   studentProfileReader
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewStudentProfileService constructs the service. cache may be nil.
func NewStudentProfileService(repo studentProfileReader, cache *CacheService, ttl time.Duration, logger *zap.Logger) *StudentProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentProfileService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// Get returns the profile of studentID. Students may only read their own profile.
func (s *StudentProfileService) Get(ctx context.Context, actor *models.Principal, studentID string) (*models.StudentProfile, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if studentID == "" {
		studentID = actor.UserID
	}
	if !actor.HasRole(models.RoleTeacher, models.RoleAdmin) && studentID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only read their own profile")
	}

	key := ProfileCacheKey(studentID)
	var cached models.StudentProfile
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	profile, err := s.repo.FindByStudentID(ctx, nil, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, "failed to load student profile")
	}

	_ = s.cache.Set(ctx, key, profile, s.ttl)
	return profile, nil
}

// Invalidate drops the cached profile of studentID.
func (s *StudentProfileService) Invalidate(ctx context.Context, studentID string) error {
	return s.cache.Invalidate(ctx, ProfileCacheKey(studentID))
}
