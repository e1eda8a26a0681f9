package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadership-program/nomination-api/internal/dto"
	"github.com/leadership-program/nomination-api/internal/models"
	appErrors "github.com/leadership-program/nomination-api/pkg/errors"
	"github.com/leadership-program/nomination-api/pkg/lock"
)

type participantFixture struct {
	nominations  *nominationStoreStub
	participants *participantStoreStub
	notifier     *notifierStub
	audit        *auditStoreStub
	svc          *ParticipantService
}

func newParticipantFixture(t *testing.T, cfg ParticipantConfig, items ...*models.Nomination) *participantFixture {
	t.Helper()
	f := &participantFixture{
		nominations:  newNominationStoreStub(items...),
		participants: newParticipantStoreStub(),
		notifier:     &notifierStub{},
		audit:        &auditStoreStub{},
	}
	f.svc = NewParticipantService(f.nominations, f.participants, testCredentials(), f.notifier,
		lock.NewLocalLocker(time.Second), nil, NewMetricsService(), f.audit, nil, cfg, nil)
	return f
}

func registeredNomination(id, email string) *models.Nomination {
	n := pendingNomination(id)
	n.ReviewStatus = models.ReviewApproved
	data := completeRegistration(email)
	n.RegistrationData = &data
	n.RegistrationCompleted = true
	n.ParticipantStatus = models.ParticipantPendingApproval
	now := time.Now().UTC()
	n.RegisteredAt = &now
	return n
}

func approvedParticipant(id, email string) *models.Nomination {
	n := registeredNomination(id, email)
	n.ParticipantStatus = models.ParticipantApproved
	return n
}

func TestParticipantServiceApproveCreatesAccount(t *testing.T) {
	f := newParticipantFixture(t, ParticipantConfig{}, registeredNomination("n1", "Maria@Example.com"))

	res, err := f.svc.DecideRegistration(context.Background(), "n1", dto.RegistrationDecisionRequest{Decision: dto.DecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, models.ParticipantApproved, res.ParticipantStatus)
	assert.True(t, res.AccountCreated)
	assert.Equal(t, "maria@example.com", res.Email)
	require.NotNil(t, res.ParticipantID)

	sent, ok := f.notifier.last(NotifyParticipantApproved)
	require.True(t, ok)
	assert.NotEmpty(t, sent.Password)

	participant, err := f.participants.FindByID(context.Background(), *res.ParticipantID)
	require.NoError(t, err)
	assert.True(t, testCredentials().Verify(participant.PasswordHash, sent.Password))
	assert.Equal(t, "Maria Svensson", participant.FullName)
	assert.Equal(t, "n1", participant.NominationID)

	stored, err := f.nominations.GetByID(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, *res.ParticipantID, *stored.ParticipantID)
	assert.Contains(t, f.audit.actions(), models.AuditActionRegistrationApprove)
}

func TestParticipantServiceApproveReusesExistingAccount(t *testing.T) {
	f := newParticipantFixture(t, ParticipantConfig{},
		registeredNomination("first", "maria@example.com"),
		registeredNomination("second", "maria@example.com"))

	first, err := f.svc.DecideRegistration(context.Background(), "first", dto.RegistrationDecisionRequest{Decision: dto.DecisionApprove})
	require.NoError(t, err)
	second, err := f.svc.DecideRegistration(context.Background(), "second", dto.RegistrationDecisionRequest{Decision: dto.DecisionApprove})
	require.NoError(t, err)

	assert.False(t, second.AccountCreated)
	assert.Equal(t, *first.ParticipantID, *second.ParticipantID)
	assert.Equal(t, 1, f.participants.creates)

	sent, ok := f.notifier.last(NotifyParticipantApproved)
	require.True(t, ok)
	assert.Equal(t, "second", sent.NominationID)
	assert.Empty(t, sent.Password)
}

func TestParticipantServiceRejectRegistration(t *testing.T) {
	f := newParticipantFixture(t, ParticipantConfig{}, registeredNomination("n1", "maria@example.com"))

	res, err := f.svc.DecideRegistration(context.Background(), "n1", dto.RegistrationDecisionRequest{
		Decision: dto.DecisionReject,
		Reason:   strPtr("program is full"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ParticipantRejected, res.ParticipantStatus)
	assert.Nil(t, res.ParticipantID)
	assert.Equal(t, []string{NotifyParticipantRejected}, f.notifier.kinds())
	assert.Zero(t, f.participants.creates)

	_, err = f.svc.DecideRegistration(context.Background(), "n1", dto.RegistrationDecisionRequest{Decision: dto.DecisionApprove})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidStateTransition))
}

func TestParticipantServiceDecideErrors(t *testing.T) {
	unregistered := pendingNomination("unregistered")
	unregistered.ReviewStatus = models.ReviewApproved
	rejected := registeredNomination("rejected", "maria@example.com")
	rejected.ReviewStatus = models.ReviewRejected
	f := newParticipantFixture(t, ParticipantConfig{}, unregistered, rejected)

	_, err := f.svc.DecideRegistration(context.Background(), "unregistered", dto.RegistrationDecisionRequest{Decision: dto.DecisionApprove})
	assert.True(t, errors.Is(err, appErrors.ErrNoRegistration))

	_, err = f.svc.DecideRegistration(context.Background(), "rejected", dto.RegistrationDecisionRequest{Decision: dto.DecisionApprove})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidStateTransition))

	_, err = f.svc.DecideRegistration(context.Background(), "missing", dto.RegistrationDecisionRequest{Decision: dto.DecisionApprove})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = f.svc.DecideRegistration(context.Background(), "unregistered", dto.RegistrationDecisionRequest{Decision: "maybe"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, f.notifier.kinds())
}

func TestParticipantServiceAttendanceBeforeRegistrationStaysCompleted(t *testing.T) {
	approved := pendingNomination("n1")
	approved.ReviewStatus = models.ReviewApproved
	f := newParticipantFixture(t, ParticipantConfig{AttendanceThreshold: 21}, approved)
	nominations := NewNominationService(f.nominations, f.notifier, nil, nil, NewMetricsService(), nil, nil, NominationConfig{}, nil)
	ctx := context.Background()

	n, err := f.svc.RecordAttendance(ctx, "n1", dto.AttendanceRequest{Hours: floatPtr(21)})
	require.NoError(t, err)
	assert.Equal(t, models.ParticipantCompleted, n.ParticipantStatus)

	ack, err := nominations.Register(ctx, "n1", completeRegistration("maria@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "completed", ack.Status)

	res, err := f.svc.DecideRegistration(ctx, "n1", dto.RegistrationDecisionRequest{Decision: dto.DecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, models.ParticipantCompleted, res.ParticipantStatus)
	assert.True(t, res.AccountCreated)
	require.NotNil(t, res.ParticipantID)

	stored, err := f.nominations.GetByID(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, models.ParticipantCompleted, stored.ParticipantStatus)
	assert.Equal(t, 21.0, stored.AttendanceHours)
	assert.Equal(t, *res.ParticipantID, *stored.ParticipantID)

	_, err = f.svc.DecideRegistration(ctx, "n1", dto.RegistrationDecisionRequest{Decision: dto.DecisionApprove})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidStateTransition))
	assert.Equal(t, 1, f.notifier.count(NotifyParticipantApproved))
}

func TestParticipantServiceDecideBusyLock(t *testing.T) {
	f := newParticipantFixture(t, ParticipantConfig{}, registeredNomination("n1", "maria@example.com"))
	locker := lock.NewLocalLocker(time.Minute)
	f.svc.locker = locker

	release, err := locker.Acquire(context.Background(), "nomination:n1")
	require.NoError(t, err)
	defer func() { _ = release(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = f.svc.DecideRegistration(ctx, "n1", dto.RegistrationDecisionRequest{Decision: dto.DecisionApprove})
	require.Error(t, err)
	assert.Empty(t, f.notifier.kinds())
}

func TestParticipantServiceAttendanceThreshold(t *testing.T) {
	f := newParticipantFixture(t, ParticipantConfig{AttendanceThreshold: 21}, approvedParticipant("n1", "maria@example.com"))

	n, err := f.svc.RecordAttendance(context.Background(), "n1", dto.AttendanceRequest{Hours: floatPtr(20)})
	require.NoError(t, err)
	assert.Equal(t, 20.0, n.AttendanceHours)
	assert.Equal(t, models.ParticipantApproved, n.ParticipantStatus)

	n, err = f.svc.RecordAttendance(context.Background(), "n1", dto.AttendanceRequest{Hours: floatPtr(21)})
	require.NoError(t, err)
	assert.Equal(t, 21.0, n.AttendanceHours)
	assert.Equal(t, models.ParticipantCompleted, n.ParticipantStatus)
	assert.Equal(t, "completed", n.Status())
}

func TestParticipantServiceAttendanceOverwritesTotal(t *testing.T) {
	f := newParticipantFixture(t, ParticipantConfig{}, approvedParticipant("n1", "maria@example.com"))

	_, err := f.svc.RecordAttendance(context.Background(), "n1", dto.AttendanceRequest{Hours: floatPtr(12)})
	require.NoError(t, err)
	n, err := f.svc.RecordAttendance(context.Background(), "n1", dto.AttendanceRequest{Hours: floatPtr(6.5)})
	require.NoError(t, err)
	assert.Equal(t, 6.5, n.AttendanceHours)
}

func TestParticipantServiceAttendanceValidation(t *testing.T) {
	f := newParticipantFixture(t, ParticipantConfig{}, approvedParticipant("n1", "maria@example.com"))

	_, err := f.svc.RecordAttendance(context.Background(), "n1", dto.AttendanceRequest{Hours: floatPtr(-1)})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.RecordAttendance(context.Background(), "n1", dto.AttendanceRequest{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.RecordAttendance(context.Background(), "missing", dto.AttendanceRequest{Hours: floatPtr(3)})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestParticipantServiceAttendanceGuardOnRejected(t *testing.T) {
	rejected := registeredNomination("n1", "maria@example.com")
	rejected.ParticipantStatus = models.ParticipantRejected

	guarded := newParticipantFixture(t, ParticipantConfig{GuardRejectedAttendance: true}, rejected)
	n, err := guarded.svc.RecordAttendance(context.Background(), "n1", dto.AttendanceRequest{Hours: floatPtr(30)})
	require.NoError(t, err)
	assert.Equal(t, 30.0, n.AttendanceHours)
	assert.Equal(t, models.ParticipantRejected, n.ParticipantStatus)

	open := newParticipantFixture(t, ParticipantConfig{}, rejected)
	n, err = open.svc.RecordAttendance(context.Background(), "n1", dto.AttendanceRequest{Hours: floatPtr(30)})
	require.NoError(t, err)
	assert.Equal(t, models.ParticipantCompleted, n.ParticipantStatus)
}

func TestParticipantServiceAttendanceMirrorsToAccount(t *testing.T) {
	f := newParticipantFixture(t, ParticipantConfig{}, registeredNomination("n1", "maria@example.com"))
	res, err := f.svc.DecideRegistration(context.Background(), "n1", dto.RegistrationDecisionRequest{Decision: dto.DecisionApprove})
	require.NoError(t, err)

	_, err = f.svc.RecordAttendance(context.Background(), "n1", dto.AttendanceRequest{Hours: floatPtr(14)})
	require.NoError(t, err)

	participant, err := f.participants.FindByID(context.Background(), *res.ParticipantID)
	require.NoError(t, err)
	assert.Equal(t, 14.0, participant.AttendanceHours)
}

func TestParticipantServiceTrainingList(t *testing.T) {
	f := newParticipantFixture(t, ParticipantConfig{AttendanceThreshold: 21},
		pendingNomination("unregistered"),
		registeredNomination("n1", "maria@example.com"),
		approvedParticipant("n2", "erik@example.com"))

	items, page, err := f.svc.ListTrainingParticipants(context.Background(), dto.TrainingParticipantQuery{})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 2, page.TotalCount)
	for _, item := range items {
		assert.Equal(t, 21.0, item.RequiredHours)
		assert.False(t, item.DiplomaEligible)
	}

	items, _, err = f.svc.ListTrainingParticipants(context.Background(), dto.TrainingParticipantQuery{Status: "approved"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "n2", items[0].NominationID)

	_, _, err = f.svc.ListTrainingParticipants(context.Background(), dto.TrainingParticipantQuery{Status: "contacted"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.GetTrainingParticipant(context.Background(), "unregistered")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	tp, err := f.svc.GetTrainingParticipant(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, "Maria Svensson", tp.FullName)
}

func TestParticipantServiceLoginAndMe(t *testing.T) {
	f := newParticipantFixture(t, ParticipantConfig{}, registeredNomination("n1", "maria@example.com"))
	_, err := f.svc.DecideRegistration(context.Background(), "n1", dto.RegistrationDecisionRequest{Decision: dto.DecisionApprove})
	require.NoError(t, err)
	sent, _ := f.notifier.last(NotifyParticipantApproved)

	_, err = f.svc.Login(context.Background(), models.LoginRequest{Email: "maria@example.com", Password: "wrong-password"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))

	_, err = f.svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.com", Password: "whatever1"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))

	resp, err := f.svc.Login(context.Background(), models.LoginRequest{Email: "maria@example.com", Password: sent.Password})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, models.RoleParticipant, resp.User.Role)

	claims, err := testCredentials().VerifySessionToken(resp.AccessToken)
	require.NoError(t, err)

	profile, err := f.svc.Me(context.Background(), claims.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.ParticipantApproved, profile.ParticipantStatus)
	assert.Equal(t, 21.0, profile.RequiredHours)
}
