package service

import (
	"context"
	"database/sql"
	"errors"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/leadership-program/nomination-api/internal/dto"
	"github.com/leadership-program/nomination-api/internal/models"
	appErrors "github.com/leadership-program/nomination-api/pkg/errors"
	"github.com/leadership-program/nomination-api/pkg/export"
	"github.com/leadership-program/nomination-api/pkg/lock"
)

// Diploma actions, used as metric labels.
const (
	DiplomaPreview  = "preview"
	DiplomaGenerate = "generate"
	DiplomaSend     = "send"
)

type diplomaStore interface {
	GetByID(ctx context.Context, id string) (*models.Nomination, error)
	MarkDiplomaSent(ctx context.Context, id, memberID string, at time.Time) error
}

type diplomaRecipientStore interface {
	MarkDiplomaReceived(ctx context.Context, id string, at time.Time) error
}

type certificateRenderer interface {
	Render(cert export.Certificate) ([]byte, error)
	Filename(name string) string
}

type diplomaArchive interface {
	Save(name string, data []byte) (string, error)
	Read(name string) ([]byte, error)
}

type tokenParser interface {
	Parse(token string) (owner, relPath string, expiresAt time.Time, err error)
}

type memberProvisioner interface {
	Provision(ctx context.Context, n *models.Nomination, filePath string) (*models.Member, bool, error)
}

// DiplomaConfig carries the completion rule and certificate issuer.
type DiplomaConfig struct {
	AttendanceThreshold     float64
	Issuer                  string
	GuardRejectedAttendance bool
}

// DiplomaService renders, archives and delivers completion diplomas.
type DiplomaService struct {
	nominations  diplomaStore
	participants diplomaRecipientStore
	members      memberProvisioner
	renderer     certificateRenderer
	archive      diplomaArchive
	tokens       tokenParser
	notifier     Notifier
	locker       lock.Locker
	cache        *CacheService
	metrics      *MetricsService
	audit        auditTrail
	config       DiplomaConfig
	logger       *zap.Logger
	now          func() time.Time
}

// NewDiplomaService constructs a DiplomaService.
func NewDiplomaService(nominations diplomaStore, participants diplomaRecipientStore, members memberProvisioner, renderer certificateRenderer, archive diplomaArchive, tokens tokenParser, notifier Notifier, locker lock.Locker, cache *CacheService, metrics *MetricsService, audit auditStore, config DiplomaConfig, logger *zap.Logger) *DiplomaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if renderer == nil {
		renderer = export.NewDiplomaRenderer()
	}
	if config.AttendanceThreshold <= 0 {
		config.AttendanceThreshold = 21
	}
	return &DiplomaService{
		nominations:  nominations,
		participants: participants,
		members:      members,
		renderer:     renderer,
		archive:      archive,
		tokens:       tokens,
		notifier:     notifier,
		locker:       locker,
		cache:        cache,
		metrics:      metrics,
		audit:        newAuditTrail(audit, logger),
		config:       config,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Preview renders the diploma without side effects.
func (s *DiplomaService) Preview(ctx context.Context, id string) (*dto.Artifact, error) {
	n, err := s.eligible(ctx, id)
	if err != nil {
		return nil, err
	}
	artifact, err := s.render(n)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordDiploma(DiplomaPreview)
	return artifact, nil
}

// Generate renders the diploma for download and archives a copy.
func (s *DiplomaService) Generate(ctx context.Context, id string) (*dto.Artifact, error) {
	n, err := s.eligible(ctx, id)
	if err != nil {
		return nil, err
	}
	artifact, err := s.render(n)
	if err != nil {
		return nil, err
	}
	s.store(n, artifact)
	s.metrics.RecordDiploma(DiplomaGenerate)
	return artifact, nil
}

// Send provisions the member account, emails the diploma and marks it sent. Provisioning runs
// first so a delivered diploma always has a member account behind it; a failed email leaves the
// nomination unsent and can be retried.
func (s *DiplomaService) Send(ctx context.Context, id string) (*dto.SendDiplomaResult, error) {
	var result *dto.SendDiplomaResult
	err := withNominationLock(ctx, s.locker, id, func() error {
		var err error
		result, err = s.send(ctx, id)
		return err
	})
	s.metrics.RecordTransition(transitionDiploma, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *DiplomaService) send(ctx context.Context, id string) (*dto.SendDiplomaResult, error) {
	n, err := s.eligible(ctx, id)
	if err != nil {
		return nil, err
	}
	artifact, err := s.render(n)
	if err != nil {
		return nil, err
	}
	filePath := s.store(n, artifact)

	member, created, err := s.members.Provision(ctx, n, filePath)
	if err != nil {
		return nil, err
	}
	if err := s.notifier.Diploma(ctx, n, *artifact); err != nil {
		s.logger.Error("diploma email failed", zap.String("nomination_id", id), zap.String("member_id", member.ID), zap.Error(err))
		return nil, err
	}
	s.metrics.RecordDiploma(DiplomaSend)

	now := s.now()
	if err := s.nominations.MarkDiplomaSent(ctx, id, member.ID, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "nomination not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark diploma sent")
	}
	if n.ParticipantID != nil {
		if err := s.participants.MarkDiplomaReceived(ctx, *n.ParticipantID, now); err != nil {
			s.logger.Warn("failed to flag participant diploma", zap.String("participant_id", *n.ParticipantID), zap.Error(err))
		}
	}

	sentAt := now
	if n.DiplomaSentAt != nil {
		sentAt = *n.DiplomaSentAt
	}
	s.audit.record(ctx, models.AuditActionDiplomaSend, models.AuditResourceNomination, id,
		map[string]interface{}{"diploma_sent": n.DiplomaSent},
		map[string]interface{}{"diploma_sent": true, "member_id": member.ID, "member_created": created})
	invalidateStats(ctx, s.cache)
	s.logger.Info("diploma sent", zap.String("nomination_id", id), zap.String("member_id", member.ID), zap.Bool("member_created", created))

	return &dto.SendDiplomaResult{
		Success:       true,
		Message:       "diploma sent",
		MemberID:      member.ID,
		MemberCreated: created,
		SentTo:        n.ContactEmail(),
		DiplomaSentAt: sentAt,
	}, nil
}

// Download serves an archived diploma for a signed token.
func (s *DiplomaService) Download(ctx context.Context, token string) (*dto.Artifact, error) {
	_, relPath, _, err := s.tokens.Parse(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "download link is invalid or expired")
	}
	data, err := s.archive.Read(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "diploma file not found")
	}
	return &dto.Artifact{Filename: path.Base(relPath), ContentType: "application/pdf", Data: data}, nil
}

func (s *DiplomaService) eligible(ctx context.Context, id string) (*models.Nomination, error) {
	n, err := loadNomination(ctx, s.nominations, id)
	if err != nil {
		return nil, err
	}
	if s.config.GuardRejectedAttendance && isRejected(n) {
		return nil, stateError(appErrors.ErrInvalidStateTransition, n, transitionDiploma, "rejected nomination cannot receive a diploma")
	}
	if err := belowThreshold(n, s.config.AttendanceThreshold); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *DiplomaService) render(n *models.Nomination) (*dto.Artifact, error) {
	name := n.DisplayName()
	data, err := s.renderer.Render(export.Certificate{
		RecipientName: name,
		ProgramTitle:  n.EventTitle,
		ProgramDate:   n.ProgramDate(),
		Hours:         n.AttendanceHours,
		Issuer:        s.config.Issuer,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render diploma")
	}
	return &dto.Artifact{Filename: s.renderer.Filename(name), ContentType: "application/pdf", Data: data}, nil
}

// store archives the artifact and returns its relative path, or "" when archiving failed.
func (s *DiplomaService) store(n *models.Nomination, artifact *dto.Artifact) string {
	if s.archive == nil {
		return ""
	}
	rel, err := s.archive.Save(path.Join("nominations", n.ID, artifact.Filename), artifact.Data)
	if err != nil {
		s.logger.Warn("failed to archive diploma", zap.String("nomination_id", n.ID), zap.Error(err))
		return ""
	}
	return rel
}
