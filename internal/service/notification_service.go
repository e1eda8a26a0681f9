package service

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"go.uber.org/zap"

	"github.com/leadership-program/nomination-api/internal/dto"
	"github.com/leadership-program/nomination-api/internal/models"
	appErrors "github.com/leadership-program/nomination-api/pkg/errors"
	"github.com/leadership-program/nomination-api/pkg/jobs"
	"github.com/leadership-program/nomination-api/pkg/mail"
)

//go:embed templates/*.html
var templateFS embed.FS

// Notification kinds, used as job types and metric labels.
const (
	NotifyNomineeInvitation     = "nominee_invitation"
	NotifyNominatorConfirmation = "nominator_confirmation"
	NotifyNominatorRejection    = "nominator_rejection"
	NotifyRegistrationReceived  = "registration_received"
	NotifyParticipantApproved   = "participant_approved"
	NotifyParticipantRejected   = "participant_rejected"
	NotifyMemberWelcome         = "member_welcome"
	NotifyMemberPasswordReset   = "member_password_reset"
	NotifyDiploma               = "diploma"
)

// Notifier is the set of outbound messages the nomination lifecycle produces. Every method except
// Diploma is fire-and-forget.
type Notifier interface {
	NomineeInvitation(ctx context.Context, n *models.Nomination)
	NominatorConfirmation(ctx context.Context, n *models.Nomination)
	NominatorRejection(ctx context.Context, n *models.Nomination)
	RegistrationReceived(ctx context.Context, n *models.Nomination)
	ParticipantApproved(ctx context.Context, n *models.Nomination, email string, password *string)
	ParticipantRejected(ctx context.Context, n *models.Nomination)
	MemberWelcome(ctx context.Context, m *models.Member, programTitle, password string)
	MemberPasswordReset(ctx context.Context, m *models.Member, password string)
	Diploma(ctx context.Context, n *models.Nomination, artifact dto.Artifact) error
}

type jobEnqueuer interface {
	Enqueue(ctx context.Context, job jobs.Job) error
}

// NotificationConfig carries recipients and links embedded in messages.
type NotificationConfig struct {
	AdminEmail           string
	RegistrationURL      string
	ParticipantPortalURL string
	MemberPortalURL      string
}

// NotificationService renders notification emails. Detached messages go through the job queue;
// the diploma is sent synchronously so the caller sees delivery failures.
type NotificationService struct {
	queue     jobEnqueuer
	sender    mail.Sender
	config    NotificationConfig
	templates *template.Template
	metrics   *MetricsService
	logger    *zap.Logger
}

type mailData struct {
	Nomination   *models.Nomination
	Name         string
	Email        string
	Password     string
	Reason       string
	Link         string
	ProgramTitle string
}

// NewNotificationService parses the embedded templates and constructs the service.
func NewNotificationService(queue jobEnqueuer, sender mail.Sender, config NotificationConfig, metrics *MetricsService, logger *zap.Logger) (*NotificationService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	tmpl, err := template.New("notifications").Funcs(template.FuncMap{
		"deref": func(b *bool) bool { return b != nil && *b },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse notification templates: %w", err)
	}
	return &NotificationService{queue: queue, sender: sender, config: config, templates: tmpl, metrics: metrics, logger: logger}, nil
}

// MailJobHandler delivers queued messages through sender.
func MailJobHandler(sender mail.Sender) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		msg, ok := job.Payload.(mail.Message)
		if !ok {
			return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.Type)
		}
		return sender.Send(ctx, msg)
	}
}

// RegistrationLink is the personal registration URL for a nomination.
func (s *NotificationService) RegistrationLink(nominationID string) string {
	return registrationLink(s.config.RegistrationURL, nominationID)
}

// NomineeInvitation sends the registration link to the nominee.
func (s *NotificationService) NomineeInvitation(ctx context.Context, n *models.Nomination) {
	s.dispatch(ctx, NotifyNomineeInvitation, deref(n.NomineeEmail),
		fmt.Sprintf("You have been nominated for %s", n.EventTitle),
		mailData{Nomination: n, Name: n.NomineeName, Link: s.RegistrationLink(n.ID)})
}

// NominatorConfirmation tells the nominator the nomination was approved.
func (s *NotificationService) NominatorConfirmation(ctx context.Context, n *models.Nomination) {
	s.dispatch(ctx, NotifyNominatorConfirmation, deref(n.NominatorEmail),
		fmt.Sprintf("Your nomination of %s has been approved", n.NomineeName),
		mailData{Nomination: n, Name: deref(n.NominatorName)})
}

// NominatorRejection tells the nominator the nomination was not accepted.
func (s *NotificationService) NominatorRejection(ctx context.Context, n *models.Nomination) {
	s.dispatch(ctx, NotifyNominatorRejection, deref(n.NominatorEmail),
		fmt.Sprintf("Update on your nomination of %s", n.NomineeName),
		mailData{Nomination: n, Name: deref(n.NominatorName), Reason: deref(n.RejectionReason)})
}

// RegistrationReceived forwards the full registration profile to the program administrator.
func (s *NotificationService) RegistrationReceived(ctx context.Context, n *models.Nomination) {
	s.dispatch(ctx, NotifyRegistrationReceived, s.config.AdminEmail,
		fmt.Sprintf("New registration: %s (%s)", n.DisplayName(), n.EventTitle),
		mailData{Nomination: n, Name: n.DisplayName()})
}

// ParticipantApproved sends portal access. password is nil when the account already existed.
func (s *NotificationService) ParticipantApproved(ctx context.Context, n *models.Nomination, email string, password *string) {
	s.dispatch(ctx, NotifyParticipantApproved, email,
		fmt.Sprintf("Your participation in %s is confirmed", n.EventTitle),
		mailData{Nomination: n, Name: n.DisplayName(), Email: email, Password: deref(password), Link: s.config.ParticipantPortalURL})
}

// ParticipantRejected tells the nominee their registration was declined.
func (s *NotificationService) ParticipantRejected(ctx context.Context, n *models.Nomination) {
	s.dispatch(ctx, NotifyParticipantRejected, n.ContactEmail(),
		fmt.Sprintf("Your registration for %s", n.EventTitle),
		mailData{Nomination: n, Name: n.DisplayName(), Reason: deref(n.RejectionReason)})
}

// MemberWelcome sends member portal credentials to a newly created member.
func (s *NotificationService) MemberWelcome(ctx context.Context, m *models.Member, programTitle, password string) {
	s.dispatch(ctx, NotifyMemberWelcome, m.Email, "Welcome to the leadership community",
		mailData{Name: m.FullName, Email: m.Email, Password: password, Link: s.config.MemberPortalURL, ProgramTitle: programTitle})
}

// MemberPasswordReset sends a freshly issued member password.
func (s *NotificationService) MemberPasswordReset(ctx context.Context, m *models.Member, password string) {
	s.dispatch(ctx, NotifyMemberPasswordReset, m.Email, "Your new member password",
		mailData{Name: m.FullName, Email: m.Email, Password: password, Link: s.config.MemberPortalURL})
}

// Diploma emails the rendered diploma and waits for the relay to accept it.
func (s *NotificationService) Diploma(ctx context.Context, n *models.Nomination, artifact dto.Artifact) error {
	recipient := n.ContactEmail()
	if recipient == "" {
		return appErrors.Clone(appErrors.ErrValidation, "nominee has no email address")
	}
	msg, err := s.render(NotifyDiploma, recipient, fmt.Sprintf("Your diploma for %s", n.EventTitle), mailData{Nomination: n, Name: n.DisplayName()})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render diploma email")
	}
	msg.Attachments = []mail.Attachment{{Filename: artifact.Filename, ContentType: artifact.ContentType, Data: artifact.Data}}

	err = s.sender.Send(ctx, msg)
	s.metrics.RecordNotification(NotifyDiploma, err)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrExternalService.Code, appErrors.ErrExternalService.Status, "failed to send diploma email")
	}
	return nil
}

func (s *NotificationService) dispatch(ctx context.Context, kind, recipient, subject string, data mailData) {
	if recipient == "" {
		s.logger.Info("notification skipped, no recipient", zap.String("kind", kind), zap.String("nomination_id", nominationIDOf(data)))
		return
	}
	msg, err := s.render(kind, recipient, subject, data)
	if err != nil {
		s.metrics.RecordNotification(kind, err)
		s.logger.Error("failed to render notification", zap.String("kind", kind), zap.Error(err))
		return
	}
	if err := s.queue.Enqueue(ctx, jobs.Job{Type: kind, Payload: msg}); err != nil {
		s.metrics.RecordNotification(kind, err)
		s.logger.Warn("failed to enqueue notification", zap.String("kind", kind), zap.Error(err))
	}
}

func (s *NotificationService) render(kind, recipient, subject string, data mailData) (mail.Message, error) {
	var body bytes.Buffer
	if err := s.templates.ExecuteTemplate(&body, kind, data); err != nil {
		return mail.Message{}, fmt.Errorf("render %s: %w", kind, err)
	}
	return mail.Message{To: []string{recipient}, Subject: subject, HTMLBody: body.String()}, nil
}

func nominationIDOf(data mailData) string {
	if data.Nomination == nil {
		return ""
	}
	return data.Nomination.ID
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
