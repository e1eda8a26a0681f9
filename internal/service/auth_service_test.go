package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/leadership-program/nomination-api/internal/models"
	appErrors "github.com/leadership-program/nomination-api/pkg/errors"
)

type mockAuthRepo struct {
	userByEmail      *models.User
	findByEmailErr   error
	lastLoginUpdated bool
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	if m.userByEmail == nil || m.userByEmail.Email != email {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.userByEmail == nil || m.userByEmail.ID != id {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func adminUser(t *testing.T, active bool) *models.User {
	t.Helper()
	password, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{ID: "123", Email: "admin@example.com", FullName: "Program Admin", PasswordHash: string(password), Active: active, Role: models.RoleAdmin}
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: adminUser(t, true)}
	audit := &auditStoreStub{}
	svc := NewAuthService(repo, testCredentials(), audit, validator.New(), time.Hour, zap.NewNop())

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@example.com", Password: "password", IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, int64(3600), res.ExpiresIn)
	assert.Equal(t, models.RoleAdmin, res.User.Role)
	assert.True(t, repo.lastLoginUpdated)

	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionLogin, audit.logs[0].Action)
	assert.Equal(t, "10.0.0.1", audit.logs[0].IPAddress)
	require.NotNil(t, audit.logs[0].UserID)
	assert.Equal(t, "123", *audit.logs[0].UserID)
}

func TestAuthServiceLoginInactive(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: adminUser(t, false)}
	svc := NewAuthService(repo, testCredentials(), nil, validator.New(), time.Hour, zap.NewNop())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@example.com", Password: "password"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErr.Code)
	assert.False(t, repo.lastLoginUpdated)
}

func TestAuthServiceLoginInvalidCredentials(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: adminUser(t, true)}
	svc := NewAuthService(repo, testCredentials(), nil, validator.New(), time.Hour, zap.NewNop())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@example.com", Password: "nope"})
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "stranger@example.com", Password: "password"})
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email", Password: "password"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceMe(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: adminUser(t, true)}
	svc := NewAuthService(repo, testCredentials(), nil, nil, 0, nil)

	info, err := svc.Me(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, "Program Admin", info.FullName)

	_, err = svc.Me(context.Background(), "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
