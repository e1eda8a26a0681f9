package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/leadership-program/nomination-api/internal/models"
)

const participantColumns = `id, nomination_id, email, password_hash, full_name, phone, church_name, church_role,
	event_id, event_title, attendance_hours, diploma_received, active, last_login, created_at, updated_at`

// ParticipantRepository stores participant login accounts. Emails are unique case-insensitively.
type ParticipantRepository struct {
	db *sqlx.DB
}

// NewParticipantRepository constructs the repository.
func NewParticipantRepository(db *sqlx.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// Create inserts an account. A clash on email returns ErrDuplicateEmail.
func (r *ParticipantRepository) Create(ctx context.Context, p *models.Participant) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))

	const query = `INSERT INTO participants
	(id, nomination_id, email, password_hash, full_name, phone, church_name, church_role, event_id, event_title,
	 attendance_hours, diploma_received, active, created_at, updated_at)
	VALUES (:id, :nomination_id, :email, :password_hash, :full_name, :phone, :church_name, :church_role, :event_id, :event_title,
	 :attendance_hours, :diploma_received, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create participant: %w", err)
	}
	return nil
}

// FindByEmail returns the participant with the given email.
func (r *ParticipantRepository) FindByEmail(ctx context.Context, email string) (*models.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE LOWER(email) = LOWER($1) LIMIT 1`
	var p models.Participant
	if err := r.db.GetContext(ctx, &p, query, strings.TrimSpace(email)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find participant by email: %w", err)
	}
	return &p, nil
}

// FindByID returns the participant with the given id.
func (r *ParticipantRepository) FindByID(ctx context.Context, id string) (*models.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE id = $1`
	var p models.Participant
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find participant by id: %w", err)
	}
	return &p, nil
}

// UpdateAttendance mirrors the nomination hour total onto the account.
func (r *ParticipantRepository) UpdateAttendance(ctx context.Context, id string, hours float64, at time.Time) error {
	const query = `UPDATE participants SET attendance_hours = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, hours, at); err != nil {
		return fmt.Errorf("update participant attendance: %w", err)
	}
	return nil
}

// MarkDiplomaReceived flags that the participant's diploma was delivered.
func (r *ParticipantRepository) MarkDiplomaReceived(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE participants SET diploma_received = TRUE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("mark diploma received: %w", err)
	}
	return nil
}

// UpdateLastLogin stamps a successful login.
func (r *ParticipantRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE participants SET last_login = $2, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts); err != nil {
		return fmt.Errorf("update participant last login: %w", err)
	}
	return nil
}
