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
)

type memberStore interface {
	CreateWithDiploma(ctx context.Context, m *models.Member, diploma *models.MemberDiploma) error
	AddDiploma(ctx context.Context, diploma *models.MemberDiploma) (bool, error)
	SetDiplomaFile(ctx context.Context, memberID, nominationID, path string) error
	FindByEmail(ctx context.Context, email string) (*models.Member, error)
	FindByID(ctx context.Context, id string) (*models.Member, error)
	ListDiplomas(ctx context.Context, memberID string) ([]models.MemberDiploma, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
}

type urlSigner interface {
	Generate(owner, relPath string) (string, time.Time, error)
}

// MemberConfig configures member sessions and diploma download links.
type MemberConfig struct {
	SessionTTL time.Duration
	// DownloadPath is the URL prefix signed download tokens are appended to.
	DownloadPath string
}

// MemberService provisions member accounts and serves the member portal.
type MemberService struct {
	store       memberStore
	credentials *CredentialService
	notifier    Notifier
	signer      urlSigner
	validator   *validator.Validate
	audit       auditTrail
	config      MemberConfig
	logger      *zap.Logger
}

// NewMemberService constructs a MemberService.
func NewMemberService(store memberStore, credentials *CredentialService, notifier Notifier, signer urlSigner, audit auditStore, validate *validator.Validate, config MemberConfig, logger *zap.Logger) *MemberService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = 30 * 24 * time.Hour
	}
	return &MemberService{
		store:       store,
		credentials: credentials,
		notifier:    notifier,
		signer:      signer,
		validator:   validate,
		audit:       newAuditTrail(audit, logger),
		config:      config,
		logger:      logger,
	}
}

// Provision looks up the member for the nominee's email or creates one. A new member gets a
// generated password, the diploma entry and a welcome email. An existing member only gains the
// diploma entry, once per nomination. created reports whether the account was new.
func (s *MemberService) Provision(ctx context.Context, n *models.Nomination, filePath string) (*models.Member, bool, error) {
	email := strings.ToLower(strings.TrimSpace(n.ContactEmail()))
	if email == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "nominee has no email address")
	}
	diploma := s.diplomaFor(n, filePath)

	existing, err := s.store.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if err := s.attachDiploma(ctx, existing, diploma); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up member")
	}

	password, err := s.credentials.GenerateSecret()
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate member password")
	}
	hash, err := s.credentials.Hash(password)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash member password")
	}

	member := &models.Member{
		NominationID: &n.ID,
		Email:        email,
		PasswordHash: hash,
		FullName:     n.DisplayName(),
		Active:       true,
	}
	if reg := n.RegistrationData; reg != nil {
		member.Phone = optional(reg.Phone)
		member.ChurchName = optional(reg.ChurchName)
	}

	if err := s.store.CreateWithDiploma(ctx, member, diploma); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			// Another request created the member first.
			winner, findErr := s.store.FindByEmail(ctx, email)
			if findErr != nil {
				return nil, false, appErrors.Wrap(findErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up member")
			}
			if err := s.attachDiploma(ctx, winner, s.diplomaFor(n, filePath)); err != nil {
				return nil, false, err
			}
			return winner, false, nil
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create member")
	}

	s.notifier.MemberWelcome(ctx, member, n.EventTitle, password)
	s.audit.record(ctx, models.AuditActionMemberProvision, models.AuditResourceMember, member.ID, nil,
		map[string]interface{}{"email": member.Email, "nomination_id": n.ID})
	s.logger.Info("member provisioned", zap.String("member_id", member.ID), zap.String("nomination_id", n.ID))
	return member, true, nil
}

func (s *MemberService) diplomaFor(n *models.Nomination, filePath string) *models.MemberDiploma {
	return &models.MemberDiploma{
		NominationID: &n.ID,
		ProgramTitle: n.EventTitle,
		ProgramDate:  n.EventDate,
		FilePath:     optional(filePath),
	}
}

func (s *MemberService) attachDiploma(ctx context.Context, member *models.Member, diploma *models.MemberDiploma) error {
	diploma.MemberID = member.ID
	added, err := s.store.AddDiploma(ctx, diploma)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add member diploma")
	}
	if !added && diploma.FilePath != nil && diploma.NominationID != nil {
		if err := s.store.SetDiplomaFile(ctx, member.ID, *diploma.NominationID, *diploma.FilePath); err != nil {
			s.logger.Warn("failed to update diploma file", zap.String("member_id", member.ID), zap.Error(err))
		}
	}
	return nil
}

// Login signs a member in.
func (s *MemberService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}
	member, err := s.store.FindByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch member")
	}
	var principal *Principal
	if member != nil {
		principal = &Principal{
			ID:           member.ID,
			Email:        member.Email,
			FullName:     member.FullName,
			PasswordHash: member.PasswordHash,
			Role:         models.RoleMember,
			Active:       member.Active,
		}
		if member.NominationID != nil {
			principal.NominationID = *member.NominationID
		}
	}
	resp, err := s.credentials.Authenticate(principal, req.Password, s.config.SessionTTL)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateLastLogin(ctx, member.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to update member last login", zap.Error(err))
	}
	return resp, nil
}

// Me returns the member profile including diplomas.
func (s *MemberService) Me(ctx context.Context, memberID string) (*dto.MemberProfile, error) {
	member, err := s.store.FindByID(ctx, memberID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "member not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load member")
	}
	diplomas, err := s.Diplomas(ctx, memberID)
	if err != nil {
		return nil, err
	}
	return &dto.MemberProfile{
		ID:         member.ID,
		Email:      member.Email,
		FullName:   member.FullName,
		Phone:      member.Phone,
		ChurchName: member.ChurchName,
		MemberedAt: member.CreatedAt,
		Diplomas:   diplomas,
	}, nil
}

// Diplomas lists the member's diplomas with short-lived signed download links.
func (s *MemberService) Diplomas(ctx context.Context, memberID string) ([]dto.MemberDiplomaView, error) {
	items, err := s.store.ListDiplomas(ctx, memberID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list diplomas")
	}
	views := make([]dto.MemberDiplomaView, 0, len(items))
	for _, item := range items {
		view := dto.MemberDiplomaView{
			ID:           item.ID,
			ProgramTitle: item.ProgramTitle,
			ProgramDate:  item.ProgramDate,
			CompletedAt:  item.CompletedAt,
		}
		if item.FilePath != nil && s.signer != nil {
			token, expiresAt, err := s.signer.Generate(memberID, *item.FilePath)
			if err != nil {
				s.logger.Warn("failed to sign diploma download", zap.String("diploma_id", item.ID), zap.Error(err))
			} else {
				view.DownloadURL = strings.TrimRight(s.config.DownloadPath, "/") + "/" + token
				view.ExpiresAt = &expiresAt
			}
		}
		views = append(views, view)
	}
	return views, nil
}

// ForgotPassword emails a fresh password when the address belongs to a member. The outcome is
// the same whether or not the member exists.
func (s *MemberService) ForgotPassword(ctx context.Context, req models.ForgotPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid email")
	}
	member, err := s.store.FindByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Error("failed to look up member for password reset", zap.Error(err))
		}
		return nil
	}
	if !member.Active {
		return nil
	}

	password, err := s.credentials.GenerateSecret()
	if err != nil {
		s.logger.Error("failed to generate member password", zap.Error(err))
		return nil
	}
	hash, err := s.credentials.Hash(password)
	if err != nil {
		s.logger.Error("failed to hash member password", zap.Error(err))
		return nil
	}
	if err := s.store.UpdatePassword(ctx, member.ID, hash, time.Now().UTC()); err != nil {
		s.logger.Error("failed to store member password", zap.String("member_id", member.ID), zap.Error(err))
		return nil
	}
	s.notifier.MemberPasswordReset(ctx, member, password)
	s.audit.record(ctx, models.AuditActionMemberPasswordReissue, models.AuditResourceMember, member.ID, nil, map[string]string{"status": "reissued"})
	return nil
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
