package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-gateway/internal/models"
	appErrors "github.com/noah-isme/campus-gateway/pkg/errors"
)

type profileRepoStub struct {
	profiles map[string]*models.StudentProfile
	calls    int
}

func (p *profileRepoStub) FindByStudentID(ctx context.Context, exec sqlx.ExtContext, studentID string) (*models.StudentProfile, error) {
	p.calls++
	profile, ok := p.profiles[studentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *profile
	return &out, nil
}

type memoryCache struct {
	values map[string][]byte
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	return nil
}

func (m *memoryCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func TestStudentProfileServiceReadThroughCache(t *testing.T) {
	repo := &profileRepoStub{profiles: map[string]*models.StudentProfile{
		"stu-s": {StudentID: "stu-s", StudentNumber: "S-001", Status: models.ProfileStatusActive},
	}}
	cacheRepo := &memoryCache{values: map[string][]byte{}}
	metrics := NewMetricsService()
	cache := NewCacheService(cacheRepo, metrics, time.Minute, nil, true)
	svc := NewStudentProfileService(repo, cache, time.Minute, nil)
	ctx := context.Background()

	profile, err := svc.Get(ctx, studentS, "")
	require.NoError(t, err)
	assert.Equal(t, "S-001", profile.StudentNumber)
	assert.Contains(t, cacheRepo.values, "enrollment:profile:stu-s")

	_, err = svc.Get(ctx, studentS, "stu-s")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.calls)

	require.NoError(t, svc.Invalidate(ctx, "stu-s"))
	_, err = svc.Get(ctx, adminA, "stu-s")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
	assert.Greater(t, metrics.Snapshot().CacheHitRatio, 0.0)
}

func TestStudentProfileServiceAccess(t *testing.T) {
	repo := &profileRepoStub{profiles: map[string]*models.StudentProfile{}}
	svc := NewStudentProfileService(repo, nil, 0, nil)
	ctx := context.Background()

	_, err := svc.Get(ctx, studentT, "stu-s")
	assert.True(t, appErrors.HasCode(err, appErrors.CodeForbidden))

	_, err = svc.Get(ctx, teacher, "stu-s")
	assert.True(t, appErrors.HasCode(err, appErrors.CodeNotFound))

	_, err = svc.Get(ctx, nil, "stu-s")
	assert.True(t, appErrors.HasCode(err, appErrors.CodeUnauthorized))
	assert.NoError(t, svc.Invalidate(ctx, "stu-s"))
}
