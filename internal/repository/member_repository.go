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

const memberColumns = `id, nomination_id, email, password_hash, full_name, phone, city, church_name, active, last_login, created_at, updated_at`

// MemberRepository stores community member accounts and their diplomas.
type MemberRepository struct {
	db *sqlx.DB
}

// NewMemberRepository constructs the repository.
func NewMemberRepository(db *sqlx.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// CreateWithDiploma inserts the member and its first diploma in one transaction.
// A clash on email returns ErrDuplicateEmail and nothing is written.
func (r *MemberRepository) CreateWithDiploma(ctx context.Context, m *models.Member, diploma *models.MemberDiploma) (err error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	m.Email = strings.ToLower(strings.TrimSpace(m.Email))

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin member tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const memberQuery = `INSERT INTO members
	(id, nomination_id, email, password_hash, full_name, phone, city, church_name, active, created_at, updated_at)
	VALUES (:id, :nomination_id, :email, :password_hash, :full_name, :phone, :city, :church_name, :active, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, memberQuery, m); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create member: %w", err)
	}

	if diploma != nil {
		diploma.MemberID = m.ID
		if err = insertDiploma(ctx, tx, diploma); err != nil {
			return err
		}
		m.Diplomas = []models.MemberDiploma{*diploma}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit member tx: %w", err)
	}
	return nil
}

// AddDiploma attaches a diploma to an existing member unless one already exists for the nomination.
func (r *MemberRepository) AddDiploma(ctx context.Context, diploma *models.MemberDiploma) (bool, error) {
	if diploma.NominationID != nil {
		var exists bool
		const existsQuery = `SELECT EXISTS (SELECT 1 FROM member_diplomas WHERE member_id = $1 AND nomination_id = $2)`
		if err := r.db.GetContext(ctx, &exists, existsQuery, diploma.MemberID, *diploma.NominationID); err != nil {
			return false, fmt.Errorf("check member diploma: %w", err)
		}
		if exists {
			return false, nil
		}
	}
	if err := insertDiploma(ctx, r.db, diploma); err != nil {
		return false, err
	}
	return true, nil
}

// SetDiplomaFile records where the rendered diploma for a nomination is archived.
func (r *MemberRepository) SetDiplomaFile(ctx context.Context, memberID, nominationID, path string) error {
	const query = `UPDATE member_diplomas SET file_path = $3 WHERE member_id = $1 AND nomination_id = $2`
	if _, err := r.db.ExecContext(ctx, query, memberID, nominationID, path); err != nil {
		return fmt.Errorf("set diploma file: %w", err)
	}
	return nil
}

func insertDiploma(ctx context.Context, exec sqlx.ExtContext, diploma *models.MemberDiploma) error {
	if diploma.ID == "" {
		diploma.ID = uuid.NewString()
	}
	if diploma.CompletedAt.IsZero() {
		diploma.CompletedAt = time.Now().UTC()
	}
	const query = `INSERT INTO member_diplomas (id, member_id, nomination_id, program_title, program_date, file_path, completed_at)
	VALUES (:id, :member_id, :nomination_id, :program_title, :program_date, :file_path, :completed_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, diploma); err != nil {
		return fmt.Errorf("create member diploma: %w", err)
	}
	return nil
}

// FindByEmail returns the member with the given email.
func (r *MemberRepository) FindByEmail(ctx context.Context, email string) (*models.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE LOWER(email) = LOWER($1) LIMIT 1`
	var m models.Member
	if err := r.db.GetContext(ctx, &m, query, strings.TrimSpace(email)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find member by email: %w", err)
	}
	return &m, nil
}

// FindByID returns the member with the given id.
func (r *MemberRepository) FindByID(ctx context.Context, id string) (*models.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = $1`
	var m models.Member
	if err := r.db.GetContext(ctx, &m, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find member by id: %w", err)
	}
	return &m, nil
}

// ListDiplomas returns the member's diplomas, most recent first.
func (r *MemberRepository) ListDiplomas(ctx context.Context, memberID string) ([]models.MemberDiploma, error) {
	const query = `SELECT id, member_id, nomination_id, program_title, program_date, file_path, completed_at
	FROM member_diplomas WHERE member_id = $1 ORDER BY completed_at DESC`
	var diplomas []models.MemberDiploma
	if err := r.db.SelectContext(ctx, &diplomas, query, memberID); err != nil {
		return nil, fmt.Errorf("list member diplomas: %w", err)
	}
	return diplomas, nil
}

// UpdatePassword replaces the stored password hash.
func (r *MemberRepository) UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error {
	const query = `UPDATE members SET password_hash = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, at); err != nil {
		return fmt.Errorf("update member password: %w", err)
	}
	return nil
}

// UpdateLastLogin stamps a successful login.
func (r *MemberRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE members SET last_login = $2, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts); err != nil {
		return fmt.Errorf("update member last login: %w", err)
	}
	return nil
}
