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

const nominationColumns = `id, source, event_id, event_title, event_date,
	nominator_name, nominator_email, nominator_phone, nominator_church, nominator_relation,
	nominee_name, nominee_email, nominee_phone, nominee_church, nominee_role, nominee_activities,
	motivation, admin_notes, review_status, participant_status, rejection_reason,
	registration_completed, registration_data, attendance_hours, diploma_sent, participant_id, member_id,
	approved_at, rejected_at, registered_at, participant_decided_at, diploma_sent_at, created_at, updated_at`

// NominationRepository persists nominations. Every status change is a compare-and-swap on the
// expected prior status; a lost race surfaces as sql.ErrNoRows.
type NominationRepository struct {
	db *sqlx.DB
}

// NewNominationRepository constructs the repository.
func NewNominationRepository(db *sqlx.DB) *NominationRepository {
	return &NominationRepository{db: db}
}

// Create inserts a new nomination.
func (r *NominationRepository) Create(ctx context.Context, n *models.Nomination) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Source == "" {
		n.Source = models.SourceNomination
	}
	if n.ReviewStatus == "" {
		n.ReviewStatus = models.ReviewPending
	}
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = n.CreatedAt

	const query = `INSERT INTO nominations
	(id, source, event_id, event_title, event_date, nominator_name, nominator_email, nominator_phone, nominator_church,
	 nominator_relation, nominee_name, nominee_email, nominee_phone, nominee_church, nominee_role, nominee_activities,
	 motivation, admin_notes, review_status, participant_status, approved_at, created_at, updated_at)
	VALUES (:id, :source, :event_id, :event_title, :event_date, :nominator_name, :nominator_email, :nominator_phone, :nominator_church,
	 :nominator_relation, :nominee_name, :nominee_email, :nominee_phone, :nominee_church, :nominee_role, :nominee_activities,
	 :motivation, :admin_notes, :review_status, :participant_status, :approved_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("create nomination: %w", err)
	}
	return nil
}

// GetByID fetches a nomination by identifier.
func (r *NominationRepository) GetByID(ctx context.Context, id string) (*models.Nomination, error) {
	query := `SELECT ` + nominationColumns + ` FROM nominations WHERE id = $1`
	var n models.Nomination
	if err := r.db.GetContext(ctx, &n, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get nomination: %w", err)
	}
	return &n, nil
}

// List returns nominations matching the filter, newest first, with the total count.
func (r *NominationRepository) List(ctx context.Context, filter models.NominationFilter) ([]models.Nomination, int, error) {
	conditions := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)

	if filter.ReviewStatus != nil {
		args = append(args, *filter.ReviewStatus)
		conditions = append(conditions, fmt.Sprintf("review_status = $%d", len(args)))
	}
	if filter.ParticipantStatus != nil {
		args = append(args, *filter.ParticipantStatus)
		conditions = append(conditions, fmt.Sprintf("participant_status = $%d", len(args)))
	}
	if filter.EventID != "" {
		args = append(args, filter.EventID)
		conditions = append(conditions, fmt.Sprintf("event_id = $%d", len(args)))
	}
	if filter.RegisteredOnly {
		conditions = append(conditions, "registration_completed = TRUE")
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(nominee_name) LIKE $%d OR LOWER(COALESCE(nominee_email, '')) LIKE $%d)", len(args), len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s FROM nominations%s ORDER BY created_at DESC LIMIT %d OFFSET %d", nominationColumns, where, pageSize, offset)
	var nominations []models.Nomination
	if err := r.db.SelectContext(ctx, &nominations, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list nominations: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM nominations"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count nominations: %w", err)
	}
	return nominations, total, nil
}

// UpdateDetails changes the free-text fields an admin may edit at any stage.
func (r *NominationRepository) UpdateDetails(ctx context.Context, id string, adminNotes, motivation *string, at time.Time) error {
	setParts := []string{"updated_at = :updated_at"}
	if adminNotes != nil {
		setParts = append(setParts, "admin_notes = :admin_notes")
	}
	if motivation != nil {
		setParts = append(setParts, "motivation = :motivation")
	}
	query := fmt.Sprintf("UPDATE nominations SET %s WHERE id = :id", strings.Join(setParts, ", "))
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":          id,
		"admin_notes": adminNotes,
		"motivation":  motivation,
		"updated_at":  at,
	})
	if err != nil {
		return fmt.Errorf("update nomination: %w", err)
	}
	return expectOneRow(result, "update nomination")
}

// Delete removes a nomination row. Linked accounts are left untouched.
func (r *NominationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM nominations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete nomination: %w", err)
	}
	return expectOneRow(result, "delete nomination")
}

// ApproveReview moves a pending nomination to approved.
func (r *NominationRepository) ApproveReview(ctx context.Context, id string, adminNotes *string, at time.Time) error {
	const query = `UPDATE nominations
	SET review_status = 'approved', approved_at = $2, admin_notes = COALESCE($3, admin_notes), updated_at = $2
	WHERE id = $1 AND review_status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, id, at, adminNotes)
	if err != nil {
		return fmt.Errorf("approve nomination: %w", err)
	}
	return expectOneRow(result, "approve nomination")
}

// RejectReview marks a nomination rejected. A repeated reject overwrites the reason and timestamp.
func (r *NominationRepository) RejectReview(ctx context.Context, id string, reason *string, at time.Time) error {
	const query = `UPDATE nominations
	SET review_status = 'rejected', rejection_reason = $2, rejected_at = $3, updated_at = $3
	WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, reason, at)
	if err != nil {
		return fmt.Errorf("reject nomination: %w", err)
	}
	return expectOneRow(result, "reject nomination")
}

// CompleteRegistration stores the nominee profile exactly once. A nominee already completed by
// attendance keeps that status.
func (r *NominationRepository) CompleteRegistration(ctx context.Context, id string, data models.RegistrationData, at time.Time) error {
	const query = `UPDATE nominations
	SET registration_completed = TRUE, registration_data = $2,
	    participant_status = CASE WHEN participant_status = 'completed' THEN participant_status ELSE 'pending_approval' END,
	    nominee_email = COALESCE(NULLIF(nominee_email, ''), $3), nominee_phone = COALESCE(NULLIF(nominee_phone, ''), $4),
	    registered_at = $5, updated_at = $5
	WHERE id = $1 AND registration_completed = FALSE AND review_status <> 'rejected'`
	result, err := r.db.ExecContext(ctx, query, id, data, data.Email, data.Phone, at)
	if err != nil {
		return fmt.Errorf("complete registration: %w", err)
	}
	return expectOneRow(result, "complete registration")
}

// DecideParticipant records the participant gate outcome for a nomination awaiting approval. An
// approval on a completed nomination only links the participant account.
func (r *NominationRepository) DecideParticipant(ctx context.Context, id string, status models.ParticipantStatus, participantID, reason *string, at time.Time) error {
	const query = `UPDATE nominations
	SET participant_status = CASE
	        WHEN participant_status = 'completed' AND $2::text = 'approved' THEN participant_status
	        ELSE $2
	    END,
	    participant_id = COALESCE($3, participant_id),
	    rejection_reason = COALESCE($4, rejection_reason), participant_decided_at = $5, updated_at = $5
	WHERE id = $1 AND registration_completed = TRUE AND review_status <> 'rejected'
	  AND (participant_status = 'pending_approval' OR (participant_status = 'completed' AND participant_id IS NULL))`
	result, err := r.db.ExecContext(ctx, query, id, status, participantID, reason, at)
	if err != nil {
		return fmt.Errorf("decide participant: %w", err)
	}
	return expectOneRow(result, "decide participant")
}

// RecordAttendance overwrites the hour total. When complete is set the participant status moves to
// completed, except for rejected nominations when guardRejected is set.
func (r *NominationRepository) RecordAttendance(ctx context.Context, id string, hours float64, complete, guardRejected bool, at time.Time) (*models.Nomination, error) {
	query := `UPDATE nominations
	SET attendance_hours = $2,
	    participant_status = CASE
	        WHEN $3 AND NOT ($4 AND (participant_status = 'rejected' OR review_status = 'rejected')) THEN 'completed'
	        ELSE participant_status
	    END,
	    updated_at = $5
	WHERE id = $1
	RETURNING ` + nominationColumns
	var n models.Nomination
	if err := r.db.GetContext(ctx, &n, query, id, hours, complete, guardRejected, at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("record attendance: %w", err)
	}
	return &n, nil
}

// MarkDiplomaSent flags the diploma as delivered and links the member account. Resends keep the
// first delivery timestamp.
func (r *NominationRepository) MarkDiplomaSent(ctx context.Context, id, memberID string, at time.Time) error {
	const query = `UPDATE nominations
	SET diploma_sent = TRUE, diploma_sent_at = COALESCE(diploma_sent_at, $3), member_id = $2, updated_at = $3
	WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, memberID, at)
	if err != nil {
		return fmt.Errorf("mark diploma sent: %w", err)
	}
	return expectOneRow(result, "mark diploma sent")
}

// Stats aggregates pipeline counters, the most active nominators and nominations per program.
func (r *NominationRepository) Stats(ctx context.Context) (*models.NominationStats, error) {
	const countsQuery = `SELECT
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE review_status = 'pending') AS pending,
		COUNT(*) FILTER (WHERE review_status = 'approved') AS approved,
		COUNT(*) FILTER (WHERE review_status = 'rejected') AS rejected,
		COUNT(*) FILTER (WHERE registration_completed) AS registered,
		COUNT(*) FILTER (WHERE participant_status = 'pending_approval') AS awaiting_approval,
		COUNT(*) FILTER (WHERE participant_status = 'approved') AS active_participants,
		COUNT(*) FILTER (WHERE participant_status = 'completed') AS completed,
		COUNT(*) FILTER (WHERE diploma_sent) AS diplomas_sent
	FROM nominations`
	var stats models.NominationStats
	if err := r.db.GetContext(ctx, &stats, countsQuery); err != nil {
		return nil, fmt.Errorf("nomination counts: %w", err)
	}

	const nominatorsQuery = `SELECT nominator_email AS email, MIN(COALESCE(nominator_name, '')) AS name, COUNT(*) AS count
	FROM nominations WHERE nominator_email IS NOT NULL AND nominator_email <> ''
	GROUP BY nominator_email ORDER BY count DESC, email ASC LIMIT 10`
	if err := r.db.SelectContext(ctx, &stats.TopNominators, nominatorsQuery); err != nil {
		return nil, fmt.Errorf("top nominators: %w", err)
	}

	const eventsQuery = `SELECT event_title, COUNT(*) AS count FROM nominations GROUP BY event_title ORDER BY count DESC, event_title ASC`
	if err := r.db.SelectContext(ctx, &stats.ByEvent, eventsQuery); err != nil {
		return nil, fmt.Errorf("nominations by event: %w", err)
	}
	return &stats, nil
}
