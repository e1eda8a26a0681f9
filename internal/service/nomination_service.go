package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/leadership-program/nomination-api/internal/dto"
	"github.com/leadership-program/nomination-api/internal/models"
	appErrors "github.com/leadership-program/nomination-api/pkg/errors"
	"github.com/leadership-program/nomination-api/pkg/lock"
)

type nominationStore interface {
	Create(ctx context.Context, n *models.Nomination) error
	GetByID(ctx context.Context, id string) (*models.Nomination, error)
	List(ctx context.Context, filter models.NominationFilter) ([]models.Nomination, int, error)
	UpdateDetails(ctx context.Context, id string, adminNotes, motivation *string, at time.Time) error
	Delete(ctx context.Context, id string) error
	ApproveReview(ctx context.Context, id string, adminNotes *string, at time.Time) error
	RejectReview(ctx context.Context, id string, reason *string, at time.Time) error
	CompleteRegistration(ctx context.Context, id string, data models.RegistrationData, at time.Time) error
	Stats(ctx context.Context) (*models.NominationStats, error)
}

// NominationConfig tunes the review gate.
type NominationConfig struct {
	RegistrationURL         string
	NotifyNominatorOnReject bool
	StatsTTL                time.Duration
}

// NominationService runs the admin review gate and registration capture.
type NominationService struct {
	store     nominationStore
	notifier  Notifier
	locker    lock.Locker
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	audit     auditTrail
	config    NominationConfig
	logger    *zap.Logger
	group     singleflight.Group
	now       func() time.Time
}

// NewNominationService constructs a NominationService.
func NewNominationService(store nominationStore, notifier Notifier, locker lock.Locker, cache *CacheService, metrics *MetricsService, audit auditStore, validate *validator.Validate, config NominationConfig, logger *zap.Logger) *NominationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &NominationService{
		store:     store,
		notifier:  notifier,
		locker:    locker,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		audit:     newAuditTrail(audit, logger),
		config:    config,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new nomination submitted through the public form.
func (s *NominationService) Create(ctx context.Context, req dto.CreateNominationRequest) (*models.Nomination, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid nomination payload")
	}
	n := &models.Nomination{
		Source:            models.SourceNomination,
		EventID:           strings.TrimSpace(req.EventID),
		EventTitle:        strings.TrimSpace(req.EventTitle),
		EventDate:         req.EventDate,
		NominatorName:     &req.NominatorName,
		NominatorEmail:    &req.NominatorEmail,
		NominatorPhone:    req.NominatorPhone,
		NominatorChurch:   req.NominatorChurch,
		NominatorRelation: req.NominatorRelation,
		NomineeName:       strings.TrimSpace(req.NomineeName),
		NomineeEmail:      req.NomineeEmail,
		NomineePhone:      req.NomineePhone,
		NomineeChurch:     req.NomineeChurch,
		NomineeRole:       req.NomineeRole,
		NomineeActivities: req.NomineeActivities,
		Motivation:        req.Motivation,
		ReviewStatus:      models.ReviewPending,
		CreatedAt:         s.now(),
	}
	if err := s.store.Create(ctx, n); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create nomination")
	}
	s.audit.record(ctx, models.AuditActionNominationCreate, models.AuditResourceNomination, n.ID, nil, n)
	s.invalidateStats(ctx)
	return n, nil
}

// CreateDirectInvitation creates an already approved nomination without a nominator. No
// notification is sent; the admin hands out the returned registration link.
func (s *NominationService) CreateDirectInvitation(ctx context.Context, req dto.DirectInvitationRequest) (*dto.InvitationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid invitation payload")
	}
	now := s.now()
	email := strings.TrimSpace(req.NomineeEmail)
	n := &models.Nomination{
		Source:       models.SourceDirectInvitation,
		EventID:      strings.TrimSpace(req.EventID),
		EventTitle:   strings.TrimSpace(req.EventTitle),
		EventDate:    req.EventDate,
		NomineeName:  strings.TrimSpace(req.NomineeName),
		NomineeEmail: &email,
		NomineePhone: req.NomineePhone,
		AdminNotes:   req.AdminNotes,
		ReviewStatus: models.ReviewApproved,
		ApprovedAt:   &now,
		CreatedAt:    now,
	}
	if err := s.store.Create(ctx, n); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create invitation")
	}
	s.audit.record(ctx, models.AuditActionDirectInvitation, models.AuditResourceNomination, n.ID, nil, n)
	s.invalidateStats(ctx)
	return &dto.InvitationResult{Nomination: n, RegistrationURL: registrationLink(s.config.RegistrationURL, n.ID)}, nil
}

// Get returns a nomination by id.
func (s *NominationService) Get(ctx context.Context, id string) (*models.Nomination, error) {
	return loadNomination(ctx, s.store, id)
}

// GetPublic returns the limited view the registration page needs.
func (s *NominationService) GetPublic(ctx context.Context, id string) (*dto.RegistrationView, error) {
	n, err := loadNomination(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	return &dto.RegistrationView{
		ID:                    n.ID,
		EventID:               n.EventID,
		EventTitle:            n.EventTitle,
		EventDate:             n.EventDate,
		NomineeName:           n.NomineeName,
		NomineeEmail:          n.NomineeEmail,
		RegistrationCompleted: n.RegistrationCompleted,
		Open:                  canRegister(n) == nil,
	}, nil
}

// List returns nominations newest first.
func (s *NominationService) List(ctx context.Context, query dto.NominationQuery) ([]models.Nomination, *models.Pagination, error) {
	filter := models.NominationFilter{
		EventID:  strings.TrimSpace(query.EventID),
		Search:   strings.TrimSpace(query.Search),
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	if err := applyStatusFilter(&filter, query.Status); err != nil {
		return nil, nil, err
	}
	items, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list nominations")
	}
	return items, paginationFor(filter, total), nil
}

// Stats returns pipeline counters and whether they came from cache. Concurrent callers share one
// computation.
func (s *NominationService) Stats(ctx context.Context) (*models.NominationStats, bool, error) {
	var cached models.NominationStats
	if hit, _ := s.cache.Get(ctx, statsCacheKey, &cached); hit {
		return &cached, true, nil
	}

	v, err, _ := s.group.Do(statsCacheKey, func() (interface{}, error) {
		stats, err := s.store.Stats(ctx)
		if err != nil {
			return nil, err
		}
		stats.GeneratedAt = s.now()
		_ = s.cache.Set(ctx, statsCacheKey, stats, s.config.StatsTTL)
		return stats, nil
	})
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute nomination stats")
	}
	return v.(*models.NominationStats), false, nil
}

// Update edits admin notes and motivation.
func (s *NominationService) Update(ctx context.Context, id string, req dto.UpdateNominationRequest) (*models.Nomination, error) {
	before, err := loadNomination(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateDetails(ctx, id, req.AdminNotes, req.Motivation, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "nomination not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update nomination")
	}
	after, err := loadNomination(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	s.audit.record(ctx, models.AuditActionNominationUpdate, models.AuditResourceNomination, id,
		map[string]interface{}{"admin_notes": before.AdminNotes, "motivation": before.Motivation},
		map[string]interface{}{"admin_notes": after.AdminNotes, "motivation": after.Motivation})
	return after, nil
}

// Delete removes a nomination. Linked accounts are kept.
func (s *NominationService) Delete(ctx context.Context, id string) error {
	before, err := loadNomination(ctx, s.store, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "nomination not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete nomination")
	}
	s.audit.record(ctx, models.AuditActionNominationDelete, models.AuditResourceNomination, id, before, nil)
	s.invalidateStats(ctx)
	return nil
}

// Approve passes the review gate and invites the nominee to register.
func (s *NominationService) Approve(ctx context.Context, id string, notes *string) (*models.Nomination, error) {
	n, err := s.approve(ctx, id, notes)
	s.metrics.RecordTransition(transitionApprove, err)
	return n, err
}

func (s *NominationService) approve(ctx context.Context, id string, notes *string) (*models.Nomination, error) {
	current, err := loadNomination(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	if err := canApprove(current); err != nil {
		return nil, err
	}
	if err := s.store.ApproveReview(ctx, id, notes, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, lostRace(ctx, s.store, id, transitionApprove, canApprove)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve nomination")
	}
	updated, err := loadNomination(ctx, s.store, id)
	if err != nil {
		return nil, err
	}

	s.notifier.NomineeInvitation(ctx, updated)
	s.notifier.NominatorConfirmation(ctx, updated)
	s.audit.record(ctx, models.AuditActionNominationApprove, models.AuditResourceNomination, id,
		map[string]interface{}{"review_status": current.ReviewStatus},
		map[string]interface{}{"review_status": updated.ReviewStatus, "admin_notes": notes})
	s.invalidateStats(ctx)
	s.logger.Info("nomination approved", zap.String("nomination_id", id))
	return updated, nil
}

// Reject closes the nomination at the review gate from any state. Rejecting again overwrites the
// reason and timestamp.
func (s *NominationService) Reject(ctx context.Context, id string, reason *string) (*models.Nomination, error) {
	var n *models.Nomination
	err := withNominationLock(ctx, s.locker, id, func() error {
		var err error
		n, err = s.reject(ctx, id, reason)
		return err
	})
	s.metrics.RecordTransition(transitionReject, err)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (s *NominationService) reject(ctx context.Context, id string, reason *string) (*models.Nomination, error) {
	current, err := loadNomination(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.RejectReview(ctx, id, reason, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "nomination not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject nomination")
	}
	updated, err := loadNomination(ctx, s.store, id)
	if err != nil {
		return nil, err
	}

	if s.config.NotifyNominatorOnReject {
		s.notifier.NominatorRejection(ctx, updated)
	}
	s.audit.record(ctx, models.AuditActionNominationReject, models.AuditResourceNomination, id,
		map[string]interface{}{"review_status": current.ReviewStatus},
		map[string]interface{}{"review_status": updated.ReviewStatus, "rejection_reason": reason})
	s.invalidateStats(ctx)
	s.logger.Info("nomination rejected", zap.String("nomination_id", id))
	return updated, nil
}

// Register stores the nominee's profile. It succeeds at most once per nomination.
func (s *NominationService) Register(ctx context.Context, id string, data models.RegistrationData) (*dto.RegistrationAck, error) {
	ack, err := s.register(ctx, id, data)
	s.metrics.RecordTransition(transitionRegister, err)
	return ack, err
}

func (s *NominationService) register(ctx context.Context, id string, data models.RegistrationData) (*dto.RegistrationAck, error) {
	current, err := loadNomination(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	if err := canRegister(current); err != nil {
		return nil, err
	}
	data.FullName = strings.TrimSpace(data.FullName)
	data.Email = strings.TrimSpace(data.Email)
	if err := s.validator.Struct(data); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "registration is missing required fields")
	}

	now := s.now()
	if err := s.store.CompleteRegistration(ctx, id, data, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, lostRace(ctx, s.store, id, transitionRegister, canRegister)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store registration")
	}
	updated, err := loadNomination(ctx, s.store, id)
	if err != nil {
		return nil, err
	}

	s.notifier.RegistrationReceived(ctx, updated)
	s.audit.record(ctx, models.AuditActionRegistrationSubmit, models.AuditResourceNomination, id, nil, data)
	s.invalidateStats(ctx)

	registeredAt := now
	if updated.RegisteredAt != nil {
		registeredAt = *updated.RegisteredAt
	}
	return &dto.RegistrationAck{
		NominationID: id,
		Status:       updated.Status(),
		Message:      "registration received, the program team will confirm your participation",
		RegisteredAt: registeredAt,
	}, nil
}

func (s *NominationService) invalidateStats(ctx context.Context) {
	invalidateStats(ctx, s.cache)
}

// applyStatusFilter maps a combined display status onto the two status columns.
func applyStatusFilter(filter *models.NominationFilter, status string) error {
	status = strings.TrimSpace(strings.ToLower(status))
	switch status {
	case "", "all":
		return nil
	case string(models.ReviewPending), string(models.ReviewApproved), string(models.ReviewRejected):
		rs := models.ReviewStatus(status)
		filter.ReviewStatus = &rs
	case string(models.ParticipantPendingApproval), string(models.ParticipantCompleted):
		ps := models.ParticipantStatus(status)
		filter.ParticipantStatus = &ps
	case "registered":
		filter.RegisteredOnly = true
	default:
		return appErrors.WithDetails(appErrors.ErrValidation, "unknown status filter", map[string]interface{}{"status": status})
	}
	return nil
}

func paginationFor(filter models.NominationFilter, total int) *models.Pagination {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
