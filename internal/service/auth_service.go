package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/leadership-program/nomination-api/internal/models"
	appErrors "github.com/leadership-program/nomination-api/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
}

// AuthService signs program administrators in.
type AuthService struct {
	repo        authUserRepository
	credentials *CredentialService
	validator   *validator.Validate
	audit       auditTrail
	sessionTTL  time.Duration
	logger      *zap.Logger
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authUserRepository, credentials *CredentialService, audit auditStore, validate *validator.Validate, sessionTTL time.Duration, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &AuthService{
		repo:        repo,
		credentials: credentials,
		validator:   validate,
		audit:       newAuditTrail(audit, logger),
		sessionTTL:  sessionTTL,
		logger:      logger,
	}
}

// Login authenticates an administrator and returns a session token.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	var principal *Principal
	if user != nil {
		principal = &Principal{
			ID:           user.ID,
			Email:        user.Email,
			FullName:     user.FullName,
			PasswordHash: user.PasswordHash,
			Role:         user.Role,
			Active:       user.Active,
		}
	}

	resp, err := s.credentials.Authenticate(principal, req.Password, s.sessionTTL)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateLastLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}
	s.audit.record(WithActor(ctx, Actor{UserID: user.ID, IP: req.IP, UserAgent: req.UserAgent}),
		models.AuditActionLogin, models.AuditResourceUser, user.ID, nil, map[string]string{"status": "success"})
	return resp, nil
}

// Me returns the profile of the signed-in administrator.
func (s *AuthService) Me(ctx context.Context, userID string) (*models.UserInfo, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return &models.UserInfo{ID: user.ID, Email: user.Email, FullName: user.FullName, Role: user.Role}, nil
}
