package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/leadership-program/nomination-api/internal/dto"
	"github.com/leadership-program/nomination-api/internal/models"
	"github.com/leadership-program/nomination-api/internal/repository"
	appErrors "github.com/leadership-program/nomination-api/pkg/errors"
	"github.com/leadership-program/nomination-api/pkg/lock"
)

type trainingStore interface {
	GetByID(ctx context.Context, id string) (*models.Nomination, error)
	List(ctx context.Context, filter models.NominationFilter) ([]models.Nomination, int, error)
	DecideParticipant(ctx context.Context, id string, status models.ParticipantStatus, participantID, reason *string, at time.Time) error
	RecordAttendance(ctx context.Context, id string, hours float64, complete, guardRejected bool, at time.Time) (*models.Nomination, error)
}

type participantStore interface {
	Create(ctx context.Context, p *models.Participant) error
	FindByEmail(ctx context.Context, email string) (*models.Participant, error)
	FindByID(ctx context.Context, id string) (*models.Participant, error)
	UpdateAttendance(ctx context.Context, id string, hours float64, at time.Time) error
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
}

// ParticipantConfig carries the program rules the approval gate and attendance tracker apply.
type ParticipantConfig struct {
	AttendanceThreshold     float64
	GuardRejectedAttendance bool
	SessionTTL              time.Duration
}

// ParticipantService runs the participant approval gate, attendance tracking and the participant portal.
type ParticipantService struct {
	nominations  trainingStore
	participants participantStore
	credentials  *CredentialService
	notifier     Notifier
	locker       lock.Locker
	cache        *CacheService
	metrics      *MetricsService
	validator    *validator.Validate
	audit        auditTrail
	config       ParticipantConfig
	logger       *zap.Logger
	now          func() time.Time
}

// NewParticipantService constructs a ParticipantService.
func NewParticipantService(nominations trainingStore, participants participantStore, credentials *CredentialService, notifier Notifier, locker lock.Locker, cache *CacheService, metrics *MetricsService, audit auditStore, validate *validator.Validate, config ParticipantConfig, logger *zap.Logger) *ParticipantService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.AttendanceThreshold <= 0 {
		config.AttendanceThreshold = 21
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = 7 * 24 * time.Hour
	}
	return &ParticipantService{
		nominations:  nominations,
		participants: participants,
		credentials:  credentials,
		notifier:     notifier,
		locker:       locker,
		cache:        cache,
		metrics:      metrics,
		validator:    validate,
		audit:        newAuditTrail(audit, logger),
		config:       config,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// DecideRegistration approves or rejects a registered nominee. Approval reuses or creates the
// participant account for the registration email; a password is generated only on creation.
// Approving a nominee who already completed the hours links the account and keeps completed.
func (s *ParticipantService) DecideRegistration(ctx context.Context, id string, req dto.RegistrationDecisionRequest) (*dto.DecisionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "decision must be approve or reject")
	}
	var result *dto.DecisionResult
	err := withNominationLock(ctx, s.locker, id, func() error {
		var err error
		if req.Decision == dto.DecisionApprove {
			result, err = s.approveRegistration(ctx, id)
		} else {
			result, err = s.rejectRegistration(ctx, id, req.Reason)
		}
		return err
	})
	s.metrics.RecordTransition(transitionDecide, err)
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx)
	return result, nil
}

func (s *ParticipantService) approveRegistration(ctx context.Context, id string) (*dto.DecisionResult, error) {
	n, err := loadNomination(ctx, s.nominations, id)
	if err != nil {
		return nil, err
	}
	if err := canDecide(n); err != nil {
		return nil, err
	}

	participant, password, err := s.ensureParticipant(ctx, n)
	if err != nil {
		return nil, err
	}
	if err := s.nominations.DecideParticipant(ctx, id, models.ParticipantApproved, &participant.ID, nil, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, lostRace(ctx, s.nominations, id, transitionDecide, canDecide)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve registration")
	}
	updated, err := loadNomination(ctx, s.nominations, id)
	if err != nil {
		return nil, err
	}

	s.notifier.ParticipantApproved(ctx, updated, participant.Email, password)
	s.audit.record(ctx, models.AuditActionRegistrationApprove, models.AuditResourceNomination, id,
		map[string]interface{}{"participant_status": n.ParticipantStatus},
		map[string]interface{}{"participant_status": updated.ParticipantStatus, "participant_id": participant.ID})

	message := "participant approved, portal access sent"
	if password == nil {
		message = "participant approved with existing account"
	}
	return &dto.DecisionResult{
		NominationID:      id,
		ParticipantStatus: updated.ParticipantStatus,
		ParticipantID:     &participant.ID,
		Email:             participant.Email,
		AccountCreated:    password != nil,
		Message:           message,
	}, nil
}

func (s *ParticipantService) rejectRegistration(ctx context.Context, id string, reason *string) (*dto.DecisionResult, error) {
	n, err := loadNomination(ctx, s.nominations, id)
	if err != nil {
		return nil, err
	}
	if err := canDecide(n); err != nil {
		return nil, err
	}
	if err := s.nominations.DecideParticipant(ctx, id, models.ParticipantRejected, nil, reason, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, lostRace(ctx, s.nominations, id, transitionDecide, canDecide)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject registration")
	}
	updated, err := loadNomination(ctx, s.nominations, id)
	if err != nil {
		return nil, err
	}

	s.notifier.ParticipantRejected(ctx, updated)
	s.audit.record(ctx, models.AuditActionRegistrationReject, models.AuditResourceNomination, id,
		map[string]interface{}{"participant_status": n.ParticipantStatus},
		map[string]interface{}{"participant_status": updated.ParticipantStatus, "rejection_reason": reason})
	return &dto.DecisionResult{
		NominationID:      id,
		ParticipantStatus: updated.ParticipantStatus,
		Message:           "registration rejected",
	}, nil
}

// ensureParticipant returns the account for the registration email, creating it when missing.
// The generated password is returned only when the account was created here.
func (s *ParticipantService) ensureParticipant(ctx context.Context, n *models.Nomination) (*models.Participant, *string, error) {
	email := strings.ToLower(strings.TrimSpace(n.ContactEmail()))
	if email == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "registration has no email address")
	}

	existing, err := s.participants.FindByEmail(ctx, email)
	if err == nil {
		return existing, nil, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up participant")
	}

	password, err := s.credentials.GenerateSecret()
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate participant password")
	}
	hash, err := s.credentials.Hash(password)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash participant password")
	}

	participant := &models.Participant{
		NominationID:    n.ID,
		Email:           email,
		PasswordHash:    hash,
		FullName:        n.DisplayName(),
		EventID:         n.EventID,
		EventTitle:      n.EventTitle,
		AttendanceHours: n.AttendanceHours,
		Active:          true,
	}
	if reg := n.RegistrationData; reg != nil {
		participant.Phone = optional(reg.Phone)
		participant.ChurchName = optional(reg.ChurchName)
		participant.ChurchRole = optional(reg.ChurchRole)
	}
	if err := s.participants.Create(ctx, participant); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			winner, findErr := s.participants.FindByEmail(ctx, email)
			if findErr != nil {
				return nil, nil, appErrors.Wrap(findErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up participant")
			}
			return winner, nil, nil
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create participant")
	}
	return participant, &password, nil
}

// RecordAttendance overwrites the attendance total. Reaching the threshold completes the
// participant unless the nomination was rejected and the rejection guard is on.
func (s *ParticipantService) RecordAttendance(ctx context.Context, id string, req dto.AttendanceRequest) (*models.Nomination, error) {
	n, err := s.recordAttendance(ctx, id, req)
	s.metrics.RecordTransition(transitionAttendance, err)
	return n, err
}

func (s *ParticipantService) recordAttendance(ctx context.Context, id string, req dto.AttendanceRequest) (*models.Nomination, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "attendance_hours is required")
	}
	hours := *req.Hours
	if hours < 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "attendance hours cannot be negative", map[string]interface{}{"attendance_hours": hours})
	}

	before, err := loadNomination(ctx, s.nominations, id)
	if err != nil {
		return nil, err
	}
	complete := hours >= s.config.AttendanceThreshold
	updated, err := s.nominations.RecordAttendance(ctx, id, hours, complete, s.config.GuardRejectedAttendance, s.now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "nomination not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}

	if updated.ParticipantID != nil {
		if err := s.participants.UpdateAttendance(ctx, *updated.ParticipantID, hours, s.now()); err != nil {
			s.logger.Warn("failed to mirror attendance to participant", zap.String("participant_id", *updated.ParticipantID), zap.Error(err))
		}
	}
	if complete && isRejected(updated) {
		s.logger.Info("attendance recorded on rejected nomination, status kept", zap.String("nomination_id", id))
	}
	s.audit.record(ctx, models.AuditActionAttendanceRecord, models.AuditResourceNomination, id,
		map[string]interface{}{"attendance_hours": before.AttendanceHours, "participant_status": before.ParticipantStatus},
		map[string]interface{}{"attendance_hours": updated.AttendanceHours, "participant_status": updated.ParticipantStatus})
	s.invalidateStats(ctx)
	return updated, nil
}

// ListTrainingParticipants returns registered nominations.
func (s *ParticipantService) ListTrainingParticipants(ctx context.Context, query dto.TrainingParticipantQuery) ([]dto.TrainingParticipant, *models.Pagination, error) {
	filter, err := trainingFilter(query)
	if err != nil {
		return nil, nil, err
	}
	items, total, err := s.nominations.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list training participants")
	}
	out := make([]dto.TrainingParticipant, len(items))
	for i := range items {
		out[i] = dto.NewTrainingParticipant(&items[i], s.config.AttendanceThreshold)
	}
	return out, paginationFor(filter, total), nil
}

// GetTrainingParticipant returns one registered nomination.
func (s *ParticipantService) GetTrainingParticipant(ctx context.Context, id string) (*dto.TrainingParticipant, error) {
	n, err := loadNomination(ctx, s.nominations, id)
	if err != nil {
		return nil, err
	}
	if !n.RegistrationCompleted {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "training participant not found")
	}
	tp := dto.NewTrainingParticipant(n, s.config.AttendanceThreshold)
	return &tp, nil
}

// Login signs a participant in.
func (s *ParticipantService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}
	participant, err := s.participants.FindByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch participant")
	}
	var principal *Principal
	if participant != nil {
		principal = &Principal{
			ID:           participant.ID,
			Email:        participant.Email,
			FullName:     participant.FullName,
			PasswordHash: participant.PasswordHash,
			Role:         models.RoleParticipant,
			Active:       participant.Active,
			NominationID: participant.NominationID,
		}
	}
	resp, err := s.credentials.Authenticate(principal, req.Password, s.config.SessionTTL)
	if err != nil {
		return nil, err
	}
	if err := s.participants.UpdateLastLogin(ctx, participant.ID, s.now()); err != nil {
		s.logger.Warn("failed to update participant last login", zap.Error(err))
	}
	return resp, nil
}

// Me returns the signed-in participant's progress.
func (s *ParticipantService) Me(ctx context.Context, participantID string) (*dto.ParticipantProfile, error) {
	participant, err := s.participants.FindByID(ctx, participantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "participant not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load participant")
	}
	profile := &dto.ParticipantProfile{
		ID:              participant.ID,
		Email:           participant.Email,
		FullName:        participant.FullName,
		EventTitle:      participant.EventTitle,
		AttendanceHours: participant.AttendanceHours,
		RequiredHours:   s.config.AttendanceThreshold,
		DiplomaReceived: participant.DiplomaReceived,
	}
	if n, err := s.nominations.GetByID(ctx, participant.NominationID); err == nil {
		profile.EventDate = n.EventDate
		profile.AttendanceHours = n.AttendanceHours
		profile.ParticipantStatus = n.ParticipantStatus
	} else if !errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("failed to load participant nomination", zap.String("participant_id", participantID), zap.Error(err))
	}
	return profile, nil
}

func (s *ParticipantService) invalidateStats(ctx context.Context) {
	invalidateStats(ctx, s.cache)
}

func trainingFilter(query dto.TrainingParticipantQuery) (models.NominationFilter, error) {
	filter := models.NominationFilter{
		RegisteredOnly: true,
		EventID:        strings.TrimSpace(query.EventID),
		Search:         strings.TrimSpace(query.Search),
		Page:           query.Page,
		PageSize:       query.PageSize,
	}
	status := strings.TrimSpace(strings.ToLower(query.Status))
	switch models.ParticipantStatus(status) {
	case "":
	case models.ParticipantPendingApproval, models.ParticipantApproved, models.ParticipantRejected, models.ParticipantCompleted:
		ps := models.ParticipantStatus(status)
		filter.ParticipantStatus = &ps
	default:
		if status != "all" {
			return filter, appErrors.WithDetails(appErrors.ErrValidation, "unknown participant status", map[string]interface{}{"status": status})
		}
	}
	return filter, nil
}
