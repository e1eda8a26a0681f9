package service

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/leadership-program/nomination-api/internal/dto"
	"github.com/leadership-program/nomination-api/internal/models"
	"github.com/leadership-program/nomination-api/internal/repository"
)

// nominationStoreStub mirrors the compare-and-swap guards of the SQL repository in memory.
type nominationStoreStub struct {
	mu        sync.Mutex
	items     map[string]*models.Nomination
	createErr error
	statsErr  error
	statsHook func()
	statsRuns int
}

func newNominationStoreStub(items ...*models.Nomination) *nominationStoreStub {
	s := &nominationStoreStub{items: make(map[string]*models.Nomination)}
	for _, n := range items {
		cp := *n
		s.items[n.ID] = &cp
	}
	return s
}

func (s *nominationStoreStub) Create(ctx context.Context, n *models.Nomination) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	n.UpdatedAt = n.CreatedAt
	cp := *n
	s.items[n.ID] = &cp
	return nil
}

func (s *nominationStoreStub) GetByID(ctx context.Context, id string) (*models.Nomination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *n
	return &cp, nil
}

func (s *nominationStoreStub) List(ctx context.Context, filter models.NominationFilter) ([]models.Nomination, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Nomination
	for _, n := range s.items {
		if filter.ReviewStatus != nil && n.ReviewStatus != *filter.ReviewStatus {
			continue
		}
		if filter.ParticipantStatus != nil && n.ParticipantStatus != *filter.ParticipantStatus {
			continue
		}
		if filter.EventID != "" && n.EventID != filter.EventID {
			continue
		}
		if filter.RegisteredOnly && !n.RegistrationCompleted {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(n.NomineeName), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	page, size := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	start := (page - 1) * size
	if start >= total {
		return nil, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (s *nominationStoreStub) UpdateDetails(ctx context.Context, id string, adminNotes, motivation *string, at time.Time) error {
	return s.mutate(id, func(n *models.Nomination) bool {
		if adminNotes != nil {
			n.AdminNotes = adminNotes
		}
		if motivation != nil {
			n.Motivation = motivation
		}
		n.UpdatedAt = at
		return true
	})
}

func (s *nominationStoreStub) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.items, id)
	return nil
}

func (s *nominationStoreStub) ApproveReview(ctx context.Context, id string, adminNotes *string, at time.Time) error {
	return s.mutate(id, func(n *models.Nomination) bool {
		if n.ReviewStatus != models.ReviewPending {
			return false
		}
		n.ReviewStatus = models.ReviewApproved
		n.ApprovedAt = &at
		if adminNotes != nil {
			n.AdminNotes = adminNotes
		}
		return true
	})
}

func (s *nominationStoreStub) RejectReview(ctx context.Context, id string, reason *string, at time.Time) error {
	return s.mutate(id, func(n *models.Nomination) bool {
		n.ReviewStatus = models.ReviewRejected
		n.RejectionReason = reason
		n.RejectedAt = &at
		return true
	})
}

func (s *nominationStoreStub) CompleteRegistration(ctx context.Context, id string, data models.RegistrationData, at time.Time) error {
	return s.mutate(id, func(n *models.Nomination) bool {
		if n.RegistrationCompleted || n.ReviewStatus == models.ReviewRejected {
			return false
		}
		d := data
		n.RegistrationData = &d
		n.RegistrationCompleted = true
		if n.ParticipantStatus != models.ParticipantCompleted {
			n.ParticipantStatus = models.ParticipantPendingApproval
		}
		if n.NomineeEmail == nil || *n.NomineeEmail == "" {
			email := data.Email
			n.NomineeEmail = &email
		}
		n.RegisteredAt = &at
		return true
	})
}

func (s *nominationStoreStub) DecideParticipant(ctx context.Context, id string, status models.ParticipantStatus, participantID, reason *string, at time.Time) error {
	return s.mutate(id, func(n *models.Nomination) bool {
		if !n.RegistrationCompleted || !awaitingDecision(n) || n.ReviewStatus == models.ReviewRejected {
			return false
		}
		if !(n.ParticipantStatus == models.ParticipantCompleted && status == models.ParticipantApproved) {
			n.ParticipantStatus = status
		}
		if participantID != nil {
			n.ParticipantID = participantID
		}
		if reason != nil {
			n.RejectionReason = reason
		}
		n.ParticipantDecidedAt = &at
		return true
	})
}

func (s *nominationStoreStub) RecordAttendance(ctx context.Context, id string, hours float64, complete, guardRejected bool, at time.Time) (*models.Nomination, error) {
	var result models.Nomination
	err := s.mutate(id, func(n *models.Nomination) bool {
		n.AttendanceHours = hours
		rejected := n.ParticipantStatus == models.ParticipantRejected || n.ReviewStatus == models.ReviewRejected
		if complete && !(guardRejected && rejected) {
			n.ParticipantStatus = models.ParticipantCompleted
		}
		n.UpdatedAt = at
		result = *n
		return true
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *nominationStoreStub) MarkDiplomaSent(ctx context.Context, id, memberID string, at time.Time) error {
	return s.mutate(id, func(n *models.Nomination) bool {
		n.DiplomaSent = true
		if n.DiplomaSentAt == nil {
			n.DiplomaSentAt = &at
		}
		n.MemberID = &memberID
		return true
	})
}

func (s *nominationStoreStub) Stats(ctx context.Context) (*models.NominationStats, error) {
	if s.statsHook != nil {
		s.statsHook()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statsRuns++
	if s.statsErr != nil {
		return nil, s.statsErr
	}
	stats := &models.NominationStats{}
	for _, n := range s.items {
		stats.Total++
		switch n.ReviewStatus {
		case models.ReviewPending:
			stats.Pending++
		case models.ReviewApproved:
			stats.Approved++
		case models.ReviewRejected:
			stats.Rejected++
		}
		if n.DiplomaSent {
			stats.DiplomasSent++
		}
	}
	return stats, nil
}

func (s *nominationStoreStub) mutate(id string, fn func(n *models.Nomination) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	cp := *n
	if !fn(&cp) {
		return sql.ErrNoRows
	}
	s.items[id] = &cp
	return nil
}

type participantStoreStub struct {
	mu        sync.Mutex
	byID      map[string]*models.Participant
	createErr error
	creates   int
}

func newParticipantStoreStub() *participantStoreStub {
	return &participantStoreStub{byID: make(map[string]*models.Participant)}
}

func (s *participantStoreStub) Create(ctx context.Context, p *models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	for _, existing := range s.byID {
		if strings.EqualFold(existing.Email, p.Email) {
			return repository.ErrDuplicateEmail
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.creates++
	cp := *p
	s.byID[p.ID] = &cp
	return nil
}

func (s *participantStoreStub) FindByEmail(ctx context.Context, email string) (*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.byID {
		if strings.EqualFold(p.Email, email) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *participantStoreStub) FindByID(ctx context.Context, id string) (*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (s *participantStoreStub) UpdateAttendance(ctx context.Context, id string, hours float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.AttendanceHours = hours
	return nil
}

func (s *participantStoreStub) MarkDiplomaReceived(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.DiplomaReceived = true
	return nil
}

func (s *participantStoreStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.byID[id]; ok {
		p.LastLogin = &ts
	}
	return nil
}

type memberStoreStub struct {
	mu        sync.Mutex
	byID      map[string]*models.Member
	diplomas  []models.MemberDiploma
	creates   int
	createErr error
}

func newMemberStoreStub() *memberStoreStub {
	return &memberStoreStub{byID: make(map[string]*models.Member)}
}

func (s *memberStoreStub) CreateWithDiploma(ctx context.Context, m *models.Member, diploma *models.MemberDiploma) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	for _, existing := range s.byID {
		if strings.EqualFold(existing.Email, m.Email) {
			return repository.ErrDuplicateEmail
		}
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now().UTC()
	s.creates++
	cp := *m
	s.byID[m.ID] = &cp
	if diploma != nil {
		diploma.MemberID = m.ID
		s.appendDiploma(diploma)
	}
	return nil
}

func (s *memberStoreStub) AddDiploma(ctx context.Context, diploma *models.MemberDiploma) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.diplomas {
		if d.MemberID == diploma.MemberID && d.NominationID != nil && diploma.NominationID != nil && *d.NominationID == *diploma.NominationID {
			return false, nil
		}
	}
	s.appendDiploma(diploma)
	return true, nil
}

func (s *memberStoreStub) appendDiploma(diploma *models.MemberDiploma) {
	if diploma.ID == "" {
		diploma.ID = uuid.NewString()
	}
	if diploma.CompletedAt.IsZero() {
		diploma.CompletedAt = time.Now().UTC()
	}
	s.diplomas = append(s.diplomas, *diploma)
}

func (s *memberStoreStub) SetDiplomaFile(ctx context.Context, memberID, nominationID, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.diplomas {
		d := &s.diplomas[i]
		if d.MemberID == memberID && d.NominationID != nil && *d.NominationID == nominationID {
			p := path
			d.FilePath = &p
		}
	}
	return nil
}

func (s *memberStoreStub) FindByEmail(ctx context.Context, email string) (*models.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.byID {
		if strings.EqualFold(m.Email, email) {
			cp := *m
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memberStoreStub) FindByID(ctx context.Context, id string) (*models.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *m
	return &cp, nil
}

func (s *memberStoreStub) ListDiplomas(ctx context.Context, memberID string) ([]models.MemberDiploma, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.MemberDiploma
	for _, d := range s.diplomas {
		if d.MemberID == memberID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *memberStoreStub) UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	m.PasswordHash = passwordHash
	return nil
}

func (s *memberStoreStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

type sentNotification struct {
	Kind         string
	NominationID string
	Email        string
	Password     string
}

type notifierStub struct {
	mu         sync.Mutex
	sent       []sentNotification
	diplomaErr error
}

func (s *notifierStub) record(kind string, n *models.Nomination, email, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := sentNotification{Kind: kind, Email: email, Password: password}
	if n != nil {
		entry.NominationID = n.ID
	}
	s.sent = append(s.sent, entry)
}

func (s *notifierStub) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, n := range s.sent {
		out[i] = n.Kind
	}
	return out
}

func (s *notifierStub) count(kind string) int {
	total := 0
	for _, k := range s.kinds() {
		if k == kind {
			total++
		}
	}
	return total
}

func (s *notifierStub) last(kind string) (sentNotification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sent) - 1; i >= 0; i-- {
		if s.sent[i].Kind == kind {
			return s.sent[i], true
		}
	}
	return sentNotification{}, false
}

func (s *notifierStub) NomineeInvitation(ctx context.Context, n *models.Nomination) {
	s.record(NotifyNomineeInvitation, n, n.ContactEmail(), "")
}

func (s *notifierStub) NominatorConfirmation(ctx context.Context, n *models.Nomination) {
	s.record(NotifyNominatorConfirmation, n, deref(n.NominatorEmail), "")
}

func (s *notifierStub) NominatorRejection(ctx context.Context, n *models.Nomination) {
	s.record(NotifyNominatorRejection, n, deref(n.NominatorEmail), "")
}

func (s *notifierStub) RegistrationReceived(ctx context.Context, n *models.Nomination) {
	s.record(NotifyRegistrationReceived, n, "admin@example.com", "")
}

func (s *notifierStub) ParticipantApproved(ctx context.Context, n *models.Nomination, email string, password *string) {
	s.record(NotifyParticipantApproved, n, email, deref(password))
}

func (s *notifierStub) ParticipantRejected(ctx context.Context, n *models.Nomination) {
	s.record(NotifyParticipantRejected, n, n.ContactEmail(), "")
}

func (s *notifierStub) MemberWelcome(ctx context.Context, m *models.Member, programTitle, password string) {
	s.record(NotifyMemberWelcome, nil, m.Email, password)
}

func (s *notifierStub) MemberPasswordReset(ctx context.Context, m *models.Member, password string) {
	s.record(NotifyMemberPasswordReset, nil, m.Email, password)
}

func (s *notifierStub) Diploma(ctx context.Context, n *models.Nomination, artifact dto.Artifact) error {
	if s.diplomaErr != nil {
		return s.diplomaErr
	}
	s.record(NotifyDiploma, n, n.ContactEmail(), "")
	return nil
}

type auditStoreStub struct {
	mu   sync.Mutex
	logs []*models.AuditLog
}

func (s *auditStoreStub) Create(ctx context.Context, log *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, log)
	return nil
}

func (s *auditStoreStub) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.logs))
	for i, l := range s.logs {
		out[i] = l.Action
	}
	return out
}

func testCredentials() *CredentialService {
	return NewCredentialService(CredentialConfig{TokenSecret: "test-secret", Issuer: "test", HashCost: bcrypt.MinCost})
}

func boolPtr(v bool) *bool { return &v }

func strPtr(v string) *string { return &v }

func floatPtr(v float64) *float64 { return &v }

func completeRegistration(email string) models.RegistrationData {
	return models.RegistrationData{
		FullName:             "Maria Svensson",
		Gender:               "female",
		DateOfBirth:          "1990-04-12",
		Phone:                "+46 70 123 45 67",
		Email:                email,
		FullAddress:          "Storgatan 1, Uppsala",
		MaritalStatus:        "married",
		PlaceOfBirth:         "Uppsala",
		WorkField:            "Education",
		CurrentProfession:    "Teacher",
		EmployerName:         "Uppsala kommun",
		ChurchName:           "Domkyrkan",
		ChurchRole:           "Youth leader",
		CommitmentAttendance: boolPtr(true),
		CommitmentActiveRole: boolPtr(true),
	}
}
