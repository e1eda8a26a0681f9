package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadership-program/nomination-api/internal/models"
	"github.com/leadership-program/nomination-api/internal/repository"
	appErrors "github.com/leadership-program/nomination-api/pkg/errors"
	"github.com/leadership-program/nomination-api/pkg/storage"
)

func newMemberFixture(t *testing.T) (*MemberService, *memberStoreStub, *notifierStub, *auditStoreStub) {
	t.Helper()
	store := newMemberStoreStub()
	notifier := &notifierStub{}
	audit := &auditStoreStub{}
	svc := NewMemberService(store, testCredentials(), notifier, storage.NewSignedURLSigner("secret", time.Hour), audit, nil,
		MemberConfig{DownloadPath: "/api/v1/diplomas/download/"}, nil)
	return svc, store, notifier, audit
}

func TestMemberServiceProvisionCreatesOnce(t *testing.T) {
	svc, store, notifier, audit := newMemberFixture(t)
	n := attendedNomination("n1", "Maria@Example.com", 21)

	member, created, err := svc.Provision(context.Background(), n, "nominations/n1/diploma_maria_svensson.pdf")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "maria@example.com", member.Email)
	assert.Equal(t, "Maria Svensson", member.FullName)
	require.NotNil(t, member.ChurchName)
	assert.Equal(t, "Domkyrkan", *member.ChurchName)

	welcome, ok := notifier.last(NotifyMemberWelcome)
	require.True(t, ok)
	stored, err := store.FindByID(context.Background(), member.ID)
	require.NoError(t, err)
	assert.True(t, testCredentials().Verify(stored.PasswordHash, welcome.Password))
	assert.Equal(t, []string{models.AuditActionMemberProvision}, audit.actions())

	again, created, err := svc.Provision(context.Background(), n, "nominations/n1/diploma_maria_svensson.pdf")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, member.ID, again.ID)
	assert.Equal(t, 1, store.creates)
	assert.Len(t, store.diplomas, 1)
	assert.Equal(t, 1, notifier.count(NotifyMemberWelcome))
}

func TestMemberServiceProvisionLeavesExistingAccountUnchanged(t *testing.T) {
	svc, store, notifier, _ := newMemberFixture(t)
	first := attendedNomination("n1", "maria@example.com", 21)
	member, _, err := svc.Provision(context.Background(), first, "")
	require.NoError(t, err)
	before, err := store.FindByID(context.Background(), member.ID)
	require.NoError(t, err)
	snapshot := *before

	second := attendedNomination("n2", "Maria@Example.com", 25)
	second.EventTitle = "Advanced Program"
	data := *second.RegistrationData
	data.FullName = "Maria S. Lind"
	second.RegistrationData = &data

	again, created, err := svc.Provision(context.Background(), second, "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, member.ID, again.ID)

	after, err := store.FindByID(context.Background(), member.ID)
	require.NoError(t, err)
	assert.Equal(t, snapshot.PasswordHash, after.PasswordHash)
	assert.Equal(t, "Maria Svensson", after.FullName)
	assert.Equal(t, snapshot.NominationID, after.NominationID)
	assert.Equal(t, 1, notifier.count(NotifyMemberWelcome))
	assert.Len(t, store.diplomas, 2)
}

func TestMemberServiceProvisionDuplicateRace(t *testing.T) {
	svc, store, notifier, _ := newMemberFixture(t)
	existing := &models.Member{Email: "maria@example.com", FullName: "Maria Svensson", Active: true}
	require.NoError(t, store.CreateWithDiploma(context.Background(), existing, nil))

	racing := &racingMemberStore{memberStoreStub: store}
	svc.store = racing

	member, created, err := svc.Provision(context.Background(), attendedNomination("n1", "maria@example.com", 21), "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existing.ID, member.ID)
	assert.Zero(t, notifier.count(NotifyMemberWelcome))
	assert.Len(t, store.diplomas, 1)
}

// racingMemberStore hides the member on the first lookup to simulate a concurrent creator.
type racingMemberStore struct {
	*memberStoreStub
	lookups int
}

func (r *racingMemberStore) FindByEmail(ctx context.Context, email string) (*models.Member, error) {
	r.lookups++
	if r.lookups == 1 {
		return nil, sql.ErrNoRows
	}
	return r.memberStoreStub.FindByEmail(ctx, email)
}

func (r *racingMemberStore) CreateWithDiploma(ctx context.Context, m *models.Member, diploma *models.MemberDiploma) error {
	return repository.ErrDuplicateEmail
}

func TestMemberServiceLoginAndMe(t *testing.T) {
	svc, _, notifier, _ := newMemberFixture(t)
	member, _, err := svc.Provision(context.Background(), attendedNomination("n1", "maria@example.com", 21), "nominations/n1/diploma_maria_svensson.pdf")
	require.NoError(t, err)
	welcome, _ := notifier.last(NotifyMemberWelcome)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "maria@example.com", Password: welcome.Password})
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, resp.User.Role)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "maria@example.com", Password: "wrong"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))

	profile, err := svc.Me(context.Background(), member.ID)
	require.NoError(t, err)
	require.Len(t, profile.Diplomas, 1)
	assert.Equal(t, "TEST Program", profile.Diplomas[0].ProgramTitle)
	assert.Contains(t, profile.Diplomas[0].DownloadURL, "/api/v1/diplomas/download/")
	assert.NotNil(t, profile.Diplomas[0].ExpiresAt)

	_, err = svc.Me(context.Background(), "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestMemberServiceDiplomaWithoutFileHasNoLink(t *testing.T) {
	svc, _, _, _ := newMemberFixture(t)
	member, _, err := svc.Provision(context.Background(), attendedNomination("n1", "maria@example.com", 21), "")
	require.NoError(t, err)

	views, err := svc.Diplomas(context.Background(), member.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Empty(t, views[0].DownloadURL)
}

func TestMemberServiceForgotPassword(t *testing.T) {
	svc, _, notifier, audit := newMemberFixture(t)
	_, _, err := svc.Provision(context.Background(), attendedNomination("n1", "maria@example.com", 21), "")
	require.NoError(t, err)
	welcome, _ := notifier.last(NotifyMemberWelcome)

	require.NoError(t, svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "maria@example.com"}))
	reset, ok := notifier.last(NotifyMemberPasswordReset)
	require.True(t, ok)
	assert.NotEqual(t, welcome.Password, reset.Password)
	assert.Contains(t, audit.actions(), models.AuditActionMemberPasswordReissue)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "maria@example.com", Password: welcome.Password})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))
	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "maria@example.com", Password: reset.Password})
	assert.NoError(t, err)

	require.NoError(t, svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "nobody@example.com"}))
	assert.Equal(t, 1, notifier.count(NotifyMemberPasswordReset))

	err = svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "nope"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}
