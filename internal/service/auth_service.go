package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/campus-gateway/internal/dto"
	"github.com/noah-isme/campus-gateway/internal/models"
	"github.com/noah-isme/campus-gateway/internal/repository"
	appErrors "github.com/noah-isme/campus-gateway/pkg/errors"
)

type authUserRepository interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
}

// accountStore performs the multi-statement account writes atomically.
type accountStore interface {
	RegisterStudent(ctx context.Context, user *models.User, profile *models.StudentProfile) error
	UpdateAccount(ctx context.Context, user *models.User, passwordHash string) error
}

// AuthConfig defines configuration for session resume tokens.
type AuthConfig struct {
	TokenSecret string
	TokenTTL    time.Duration
	Issuer      string
}

// SessionClaims are carried by a session resume token.
type SessionClaims struct {
	UserID string          `json:"uid"`
	Role   models.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// AuthService authenticates principals and manages accounts.
type AuthService struct {
	repo      authUserRepository
	accounts  accountStore
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authUserRepository, accounts accountStore, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.TokenTTL <= 0 {
		config.TokenTTL = 12 * time.Hour
	}
	return &AuthService{repo: repo, accounts: accounts, validator: validate, logger: logger, config: config}
}

// Login checks credentials or a resume token and returns the principal to bind to the session.
func (s *AuthService) Login(ctx context.Context, req dto.LoginRequest) (*models.Principal, *dto.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, "invalid login payload")
	}

	var (
		user *models.User
		err  error
	)
	if req.Token != "" {
		user, err = s.userFromToken(ctx, req.Token)
	} else {
		user, err = s.userFromCredentials(ctx, req.Username, req.Password)
	}
	if err != nil {
		return nil, nil, err
	}

	if !user.Active {
		return nil, nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, "failed to create session token")
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	}

	s.logger.Info("user logged in", zap.String("user_id", user.ID), zap.String("role", string(user.Role)), zap.Bool("resumed", req.Token != ""))

	return models.NewPrincipal(user, now), &dto.LoginResponse{
		User:         dto.NewUserInfo(user),
		SessionToken: token,
		ExpiresIn:    int64(s.config.TokenTTL.Seconds()),
	}, nil
}

func (s *AuthService) userFromCredentials(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.repo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid username or password")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, "failed to fetch user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid username or password")
	}
	return user, nil
}

func (s *AuthService) userFromToken(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.ValidateToken(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid or expired session token")
	}
	user, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid or expired session token")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, "failed to fetch user")
	}
	return user, nil
}

// Logout records the end of an authenticated period. Tokens are not revoked server side.
func (s *AuthService) Logout(ctx context.Context, principal *models.Principal) {
	if principal == nil {
		return
	}
	s.logger.Info("user logged out", zap.String("user_id", principal.UserID))
}

// Register creates a STUDENT account and its ACTIVE enrollment profile.
func (s *AuthService) Register(ctx context.Context, req dto.RegisterRequest) (*dto.UserInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, "invalid registration payload")
	}

	username := strings.TrimSpace(req.Username)
	exists, err := s.repo.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, "failed to check username")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "username already taken")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, "failed to hash password")
	}

	user := &models.User{
		Username:     username,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(req.FullName),
		Role:         models.RoleStudent,
		Active:       true,
	}
	if email := strings.TrimSpace(req.Email); email != "" {
		user.Email = &email
	}
	profile := &models.StudentProfile{
		StudentNumber: strings.TrimSpace(req.StudentNumber),
		AdmissionYear: req.AdmissionYear,
		Status:        models.ProfileStatusActive,
	}

	if err := s.accounts.RegisterStudent(ctx, user, profile); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "username already taken")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, "failed to register student")
	}

	s.logger.Info("student registered", zap.String("user_id", user.ID), zap.String("username", user.Username))
	info := dto.NewUserInfo(user)
	return &info, nil
}

// UpdateUser changes the caller's display attributes and optionally the password.
func (s *AuthService) UpdateUser(ctx context.Context, principal *models.Principal, req dto.UpdateUserRequest) (*dto.UserInfo, error) {
	if principal == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, "invalid update payload")
	}
	if req.FullName == nil && req.Email == nil && req.NewPassword == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no changes provided")
	}

	user, err := s.repo.FindByID(ctx, principal.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, "failed to load user")
	}

	var passwordHash string
	if req.NewPassword != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "current password does not match")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, "failed to hash password")
		}
		passwordHash = string(hash)
	}

	updated := *user
	if req.FullName != nil {
		updated.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		updated.Email = &email
		if email == "" {
			updated.Email = nil
		}
	}

	if err := s.accounts.UpdateAccount(ctx, &updated, passwordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, "failed to update user")
	}
	if passwordHash != "" {
		updated.PasswordHash = passwordHash
	}

	info := dto.NewUserInfo(&updated)
	return &info, nil
}

// IssueToken signs a session resume token for user.
func (s *AuthService) IssueToken(user *models.User) (string, error) {
	issuedAt := time.Now().UTC()
	claims := &SessionClaims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.config.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.TokenSecret))
}

// ValidateToken parses and validates a session resume token.
func (s *AuthService) ValidateToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.TokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, "invalid token")
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}
