package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/campus-gateway/internal/dto"
	"github.com/noah-isme/campus-gateway/internal/models"
	"github.com/noah-isme/campus-gateway/internal/repository"
	appErrors "github.com/noah-isme/campus-gateway/pkg/errors"
)

type mockAuthRepo struct {
	users            map[string]*models.User
	lastLoginUpdated bool
	registered       []*models.User
	registerErr      error
	updateErr        error
}

func newMockAuthRepo(users ...*models.User) *mockAuthRepo {
	repo := &mockAuthRepo{users: make(map[string]*models.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (m *mockAuthRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		out := *u
		return &out, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := m.FindByUsername(ctx, username)
	return err == nil, nil
}

// UpdateAccount commits both writes or neither.
func (m *mockAuthRepo) UpdateAccount(ctx context.Context, user *models.User, passwordHash string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.users[user.ID]
	if !ok {
		return sql.ErrNoRows
	}
	next := *user
	next.PasswordHash = stored.PasswordHash
	if passwordHash != "" {
		next.PasswordHash = passwordHash
	}
	m.users[user.ID] = &next
	return nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) RegisterStudent(ctx context.Context, user *models.User, profile *models.StudentProfile) error {
	if m.registerErr != nil {
		return m.registerErr
	}
	user.ID = fmt.Sprintf("u-%d", len(m.users)+1)
	profile.StudentID = user.ID
	m.users[user.ID] = user
	m.registered = append(m.registered, user)
	return nil
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newAuthService(repo *mockAuthRepo) *AuthService {
	return NewAuthService(repo, repo, nil, nil, AuthConfig{TokenSecret: "secret", TokenTTL: time.Hour, Issuer: "campus-test"})
}

func TestLoginSuccess(t *testing.T) {
	repo := newMockAuthRepo(&models.User{ID: "u-1", Username: "alice", PasswordHash: hashPassword(t, "password123"), FullName: "Alice", Role: models.RoleStudent, Active: true})
	svc := newAuthService(repo)

	principal, resp, err := svc.Login(context.Background(), dto.LoginRequest{Username: "alice", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, "u-1", principal.UserID)
	assert.True(t, principal.HasRole(models.RoleStudent))
	assert.NotEmpty(t, resp.SessionToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.True(t, repo.lastLoginUpdated)

	claims, err := svc.ValidateToken(resp.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
}

func TestLoginFailures(t *testing.T) {
	repo := newMockAuthRepo(
		&models.User{ID: "u-1", Username: "alice", PasswordHash: hashPassword(t, "password123"), Role: models.RoleStudent, Active: true},
		&models.User{ID: "u-2", Username: "bob", PasswordHash: hashPassword(t, "password123"), Role: models.RoleStudent, Active: false},
	)
	svc := newAuthService(repo)
	ctx := context.Background()

	_, _, err := svc.Login(ctx, dto.LoginRequest{Username: "alice", Password: "wrong"})
	assert.True(t, appErrors.HasCode(err, appErrors.CodeInvalidCredentials))

	_, _, err = svc.Login(ctx, dto.LoginRequest{Username: "nobody", Password: "password123"})
	assert.True(t, appErrors.HasCode(err, appErrors.CodeInvalidCredentials))

	_, _, err = svc.Login(ctx, dto.LoginRequest{Username: "bob", Password: "password123"})
	assert.True(t, appErrors.HasCode(err, appErrors.CodeInactiveAccount))

	_, _, err = svc.Login(ctx, dto.LoginRequest{})
	assert.True(t, appErrors.HasCode(err, appErrors.CodeValidation))

	_, _, err = svc.Login(ctx, dto.LoginRequest{Token: "not-a-jwt"})
	assert.True(t, appErrors.HasCode(err, appErrors.CodeInvalidCredentials))
}

func TestLoginWithResumeToken(t *testing.T) {
	user := &models.User{ID: "u-1", Username: "alice", Role: models.RoleAdmin, Active: true}
	repo := newMockAuthRepo(user)
	svc := newAuthService(repo)

	token, err := svc.IssueToken(user)
	require.NoError(t, err)

	principal, _, err := svc.Login(context.Background(), dto.LoginRequest{Token: token})
	require.NoError(t, err)
	assert.True(t, principal.IsAdmin())

	other := NewAuthService(repo, repo, nil, nil, AuthConfig{TokenSecret: "different"})
	_, _, err = other.Login(context.Background(), dto.LoginRequest{Token: token})
	assert.True(t, appErrors.HasCode(err, appErrors.CodeInvalidCredentials))
}

func TestRegister(t *testing.T) {
	repo := newMockAuthRepo(&models.User{ID: "u-1", Username: "alice", Role: models.RoleStudent, Active: true})
	svc := newAuthService(repo)
	ctx := context.Background()

	req := dto.RegisterRequest{Username: "carol", Password: "longpassword", FullName: "Carol", Email: "carol@campus.test", StudentNumber: "S-100", AdmissionYear: 2025}
	info, err := svc.Register(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, info.Role)
	assert.Equal(t, "carol@campus.test", info.Email)
	require.Len(t, repo.registered, 1)
	assert.NotEqual(t, "longpassword", repo.registered[0].PasswordHash)

	req.Username = "alice"
	_, err = svc.Register(ctx, req)
	assert.True(t, appErrors.HasCode(err, appErrors.CodeConflict))

	repo.registerErr = fmt.Errorf("create user: %w", repository.ErrDuplicateKey)
	req.Username = "dave"
	_, err = svc.Register(ctx, req)
	assert.True(t, appErrors.HasCode(err, appErrors.CodeConflict))

	_, err = svc.Register(ctx, dto.RegisterRequest{Username: "x"})
	assert.True(t, appErrors.HasCode(err, appErrors.CodeValidation))
}

func TestUpdateUser(t *testing.T) {
	repo := newMockAuthRepo(&models.User{ID: "u-1", Username: "alice", PasswordHash: hashPassword(t, "password123"), FullName: "Alice", Role: models.RoleStudent, Active: true})
	svc := newAuthService(repo)
	ctx := context.Background()
	principal := &models.Principal{UserID: "u-1", Roles: []models.UserRole{models.RoleStudent}}

	name := "Alice Liddell"
	info, err := svc.UpdateUser(ctx, principal, dto.UpdateUserRequest{FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, name, info.FullName)

	_, err = svc.UpdateUser(ctx, principal, dto.UpdateUserRequest{CurrentPassword: "wrong", NewPassword: "newpassword1"})
	assert.True(t, appErrors.HasCode(err, appErrors.CodeForbidden))

	_, err = svc.UpdateUser(ctx, principal, dto.UpdateUserRequest{CurrentPassword: "password123", NewPassword: "newpassword1"})
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.users["u-1"].PasswordHash), []byte("newpassword1")))

	_, err = svc.UpdateUser(ctx, principal, dto.UpdateUserRequest{})
	assert.True(t, appErrors.HasCode(err, appErrors.CodeValidation))
}

func TestUpdateUserFailureKeepsPasswordAndName(t *testing.T) {
	oldHash := hashPassword(t, "password123")
	repo := newMockAuthRepo(&models.User{ID: "u-1", Username: "alice", PasswordHash: oldHash, FullName: "Alice", Role: models.RoleStudent, Active: true})
	repo.updateErr = errors.New("connection reset")
	svc := newAuthService(repo)
	principal := &models.Principal{UserID: "u-1", Roles: []models.UserRole{models.RoleStudent}}

	name := "Alice Liddell"
	_, err := svc.UpdateUser(context.Background(), principal, dto.UpdateUserRequest{
		FullName:        &name,
		CurrentPassword: "password123",
		NewPassword:     "newpassword1",
	})
	assert.True(t, appErrors.HasCode(err, appErrors.CodeInternal))
	assert.Equal(t, oldHash, repo.users["u-1"].PasswordHash)
	assert.Equal(t, "Alice", repo.users["u-1"].FullName)
}

func TestUpdateUserPasswordAndNameTogether(t *testing.T) {
	repo := newMockAuthRepo(&models.User{ID: "u-1", Username: "alice", PasswordHash: hashPassword(t, "password123"), FullName: "Alice", Role: models.RoleStudent, Active: true})
	svc := newAuthService(repo)
	principal := &models.Principal{UserID: "u-1", Roles: []models.UserRole{models.RoleStudent}}

	name := "Alice Liddell"
	info, err := svc.UpdateUser(context.Background(), principal, dto.UpdateUserRequest{
		FullName:        &name,
		CurrentPassword: "password123",
		NewPassword:     "newpassword1",
	})
	require.NoError(t, err)
	assert.Equal(t, name, info.FullName)
	assert.Equal(t, name, repo.users["u-1"].FullName)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.users["u-1"].PasswordHash), []byte("newpassword1")))
}
