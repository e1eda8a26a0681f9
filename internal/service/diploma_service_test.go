package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadership-program/nomination-api/internal/models"
	appErrors "github.com/leadership-program/nomination-api/pkg/errors"
	"github.com/leadership-program/nomination-api/pkg/export"
	"github.com/leadership-program/nomination-api/pkg/lock"
	"github.com/leadership-program/nomination-api/pkg/storage"
)

type diplomaFixture struct {
	nominations  *nominationStoreStub
	participants *participantStoreStub
	members      *memberStoreStub
	notifier     *notifierStub
	archive      *storage.LocalStorage
	signer       *storage.SignedURLSigner
	memberSvc    *MemberService
	svc          *DiplomaService
}

func newDiplomaFixture(t *testing.T, cfg DiplomaConfig, items ...*models.Nomination) *diplomaFixture {
	t.Helper()
	archive, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	f := &diplomaFixture{
		nominations:  newNominationStoreStub(items...),
		participants: newParticipantStoreStub(),
		members:      newMemberStoreStub(),
		notifier:     &notifierStub{},
		archive:      archive,
		signer:       storage.NewSignedURLSigner("download-secret", time.Hour),
	}
	f.memberSvc = NewMemberService(f.members, testCredentials(), f.notifier, f.signer, &auditStoreStub{}, nil,
		MemberConfig{DownloadPath: "/api/v1/diplomas/download"}, nil)
	f.svc = NewDiplomaService(f.nominations, f.participants, f.memberSvc, export.NewDiplomaRenderer(), archive, f.signer,
		f.notifier, lock.NewLocalLocker(time.Second), nil, NewMetricsService(), &auditStoreStub{}, cfg, nil)
	return f
}

func attendedNomination(id, email string, hours float64) *models.Nomination {
	n := approvedParticipant(id, email)
	n.AttendanceHours = hours
	if hours >= 21 {
		n.ParticipantStatus = models.ParticipantCompleted
	}
	return n
}

func TestDiplomaServicePreviewThreshold(t *testing.T) {
	f := newDiplomaFixture(t, DiplomaConfig{AttendanceThreshold: 21},
		attendedNomination("short", "maria@example.com", 20),
		attendedNomination("done", "erik@example.com", 21))

	_, err := f.svc.Preview(context.Background(), "short")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
	assert.Equal(t, 20.0, appErr.Details["attendance_hours"])
	assert.Equal(t, 21.0, appErr.Details["required_hours"])

	artifact, err := f.svc.Preview(context.Background(), "done")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(artifact.Data, []byte("%PDF")))
	assert.Equal(t, "application/pdf", artifact.ContentType)
	assert.Equal(t, "diploma_maria_svensson.pdf", artifact.Filename)
	assert.False(t, f.archive.Exists("nominations/done/diploma_maria_svensson.pdf"))
}

func TestDiplomaServiceGenerateArchives(t *testing.T) {
	f := newDiplomaFixture(t, DiplomaConfig{}, attendedNomination("n1", "maria@example.com", 24))

	artifact, err := f.svc.Generate(context.Background(), "n1")
	require.NoError(t, err)
	stored, err := f.archive.Read("nominations/n1/" + artifact.Filename)
	require.NoError(t, err)
	assert.Equal(t, artifact.Data, stored)
	assert.Empty(t, f.notifier.kinds())

	n, err := f.nominations.GetByID(context.Background(), "n1")
	require.NoError(t, err)
	assert.False(t, n.DiplomaSent)
}

func TestDiplomaServiceSendBelowThreshold(t *testing.T) {
	f := newDiplomaFixture(t, DiplomaConfig{AttendanceThreshold: 21}, attendedNomination("n1", "maria@example.com", 20))

	_, err := f.svc.Send(context.Background(), "n1")
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))
	assert.Zero(t, f.members.creates)
	assert.Empty(t, f.notifier.kinds())
}

func TestDiplomaServiceSendProvisionsMember(t *testing.T) {
	f := newDiplomaFixture(t, DiplomaConfig{}, attendedNomination("n1", "maria@example.com", 21))
	participantID := "p1"
	require.NoError(t, f.participants.Create(context.Background(), &models.Participant{ID: participantID, Email: "maria@example.com", NominationID: "n1"}))
	require.NoError(t, f.nominations.mutate("n1", func(n *models.Nomination) bool {
		n.ParticipantID = &participantID
		return true
	}))

	res, err := f.svc.Send(context.Background(), "n1")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.MemberCreated)
	assert.Equal(t, "maria@example.com", res.SentTo)
	assert.Equal(t, []string{NotifyMemberWelcome, NotifyDiploma}, f.notifier.kinds())

	n, err := f.nominations.GetByID(context.Background(), "n1")
	require.NoError(t, err)
	assert.True(t, n.DiplomaSent)
	require.NotNil(t, n.MemberID)
	assert.Equal(t, res.MemberID, *n.MemberID)

	participant, err := f.participants.FindByID(context.Background(), participantID)
	require.NoError(t, err)
	assert.True(t, participant.DiplomaReceived)

	require.Len(t, f.members.diplomas, 1)
	require.NotNil(t, f.members.diplomas[0].FilePath)
	assert.True(t, f.archive.Exists(*f.members.diplomas[0].FilePath))
}

func TestDiplomaServiceResendKeepsSingleMember(t *testing.T) {
	f := newDiplomaFixture(t, DiplomaConfig{}, attendedNomination("n1", "maria@example.com", 22))

	first, err := f.svc.Send(context.Background(), "n1")
	require.NoError(t, err)
	firstSentAt := first.DiplomaSentAt

	second, err := f.svc.Send(context.Background(), "n1")
	require.NoError(t, err)
	assert.False(t, second.MemberCreated)
	assert.Equal(t, first.MemberID, second.MemberID)
	assert.True(t, second.DiplomaSentAt.Equal(firstSentAt))

	assert.Equal(t, 1, f.members.creates)
	assert.Equal(t, 1, f.notifier.count(NotifyMemberWelcome))
	assert.Equal(t, 2, f.notifier.count(NotifyDiploma))
	assert.Len(t, f.members.diplomas, 1)
}

func TestDiplomaServiceSecondProgramAddsDiploma(t *testing.T) {
	second := attendedNomination("n2", "maria@example.com", 30)
	second.EventTitle = "Advanced Program"
	f := newDiplomaFixture(t, DiplomaConfig{}, attendedNomination("n1", "maria@example.com", 22), second)

	a, err := f.svc.Send(context.Background(), "n1")
	require.NoError(t, err)
	b, err := f.svc.Send(context.Background(), "n2")
	require.NoError(t, err)

	assert.Equal(t, a.MemberID, b.MemberID)
	assert.False(t, b.MemberCreated)
	assert.Len(t, f.members.diplomas, 2)
	assert.Equal(t, 1, f.notifier.count(NotifyMemberWelcome))
}

func TestDiplomaServiceSendEmailFailureLeavesUnsent(t *testing.T) {
	f := newDiplomaFixture(t, DiplomaConfig{}, attendedNomination("n1", "maria@example.com", 25))
	f.notifier.diplomaErr = appErrors.Clone(appErrors.ErrExternalService, "failed to send diploma email")

	_, err := f.svc.Send(context.Background(), "n1")
	assert.True(t, errors.Is(err, appErrors.ErrExternalService))

	n, err := f.nominations.GetByID(context.Background(), "n1")
	require.NoError(t, err)
	assert.False(t, n.DiplomaSent)
	assert.Nil(t, n.DiplomaSentAt)
	assert.Equal(t, 1, f.members.creates)

	f.notifier.diplomaErr = nil
	res, err := f.svc.Send(context.Background(), "n1")
	require.NoError(t, err)
	assert.False(t, res.MemberCreated)
	assert.Equal(t, 1, f.members.creates)
}

func TestDiplomaServiceGuardRejected(t *testing.T) {
	rejected := attendedNomination("n1", "maria@example.com", 30)
	rejected.ReviewStatus = models.ReviewRejected

	guarded := newDiplomaFixture(t, DiplomaConfig{GuardRejectedAttendance: true}, rejected)
	_, err := guarded.svc.Send(context.Background(), "n1")
	assert.True(t, errors.Is(err, appErrors.ErrInvalidStateTransition))

	open := newDiplomaFixture(t, DiplomaConfig{}, rejected)
	_, err = open.svc.Preview(context.Background(), "n1")
	assert.NoError(t, err)
}

func TestDiplomaServiceSendRequiresEmail(t *testing.T) {
	n := attendedNomination("n1", "", 25)
	n.NomineeEmail = nil
	f := newDiplomaFixture(t, DiplomaConfig{}, n)

	_, err := f.svc.Send(context.Background(), "n1")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Zero(t, f.members.creates)
}

func TestDiplomaServiceDownload(t *testing.T) {
	f := newDiplomaFixture(t, DiplomaConfig{}, attendedNomination("n1", "maria@example.com", 25))
	res, err := f.svc.Send(context.Background(), "n1")
	require.NoError(t, err)

	views, err := f.memberSvc.Diplomas(context.Background(), res.MemberID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.True(t, strings.HasPrefix(views[0].DownloadURL, "/api/v1/diplomas/download/"))
	token := strings.TrimPrefix(views[0].DownloadURL, "/api/v1/diplomas/download/")

	artifact, err := f.svc.Download(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(artifact.Data, []byte("%PDF")))
	assert.Equal(t, "diploma_maria_svensson.pdf", artifact.Filename)

	_, err = f.svc.Download(context.Background(), token+"x")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	missing, _, err := f.signer.Generate(res.MemberID, "nominations/ghost/diploma.pdf")
	require.NoError(t, err)
	_, err = f.svc.Download(context.Background(), missing)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
