package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ReviewStatus is the outcome of the admin review gate.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// ParticipantStatus tracks the nominee after registration. Empty until the nominee registers.
type ParticipantStatus string

const (
	ParticipantUnset           ParticipantStatus = ""
	ParticipantPendingApproval ParticipantStatus = "pending_approval"
	ParticipantApproved        ParticipantStatus = "approved"
	ParticipantRejected        ParticipantStatus = "rejected"
	ParticipantCompleted       ParticipantStatus = "completed"
)

// NominationSource records how a nomination entered the system.
type NominationSource string

const (
	SourceNomination       NominationSource = "nomination"
	SourceDirectInvitation NominationSource = "direct_invitation"
)

// Nomination is one nominee's journey from nomination to member.
type Nomination struct {
	ID     string           `db:"id" json:"id"`
	Source NominationSource `db:"source" json:"source"`

	EventID    string  `db:"event_id" json:"event_id"`
	EventTitle string  `db:"event_title" json:"event_title"`
	EventDate  *string `db:"event_date" json:"event_date,omitempty"`

	NominatorName     *string `db:"nominator_name" json:"nominator_name,omitempty"`
	NominatorEmail    *string `db:"nominator_email" json:"nominator_email,omitempty"`
	NominatorPhone    *string `db:"nominator_phone" json:"nominator_phone,omitempty"`
	NominatorChurch   *string `db:"nominator_church" json:"nominator_church,omitempty"`
	NominatorRelation *string `db:"nominator_relation" json:"nominator_relation,omitempty"`

	NomineeName       string  `db:"nominee_name" json:"nominee_name"`
	NomineeEmail      *string `db:"nominee_email" json:"nominee_email,omitempty"`
	NomineePhone      *string `db:"nominee_phone" json:"nominee_phone,omitempty"`
	NomineeChurch     *string `db:"nominee_church" json:"nominee_church,omitempty"`
	NomineeRole       *string `db:"nominee_role" json:"nominee_role,omitempty"`
	NomineeActivities *string `db:"nominee_activities" json:"nominee_activities,omitempty"`
	Motivation        *string `db:"motivation" json:"motivation,omitempty"`
	AdminNotes        *string `db:"admin_notes" json:"admin_notes,omitempty"`

	ReviewStatus      ReviewStatus      `db:"review_status" json:"review_status"`
	ParticipantStatus ParticipantStatus `db:"participant_status" json:"participant_status,omitempty"`
	RejectionReason   *string           `db:"rejection_reason" json:"rejection_reason,omitempty"`

	RegistrationCompleted bool              `db:"registration_completed" json:"registration_completed"`
	RegistrationData      *RegistrationData `db:"registration_data" json:"registration_data,omitempty"`
	AttendanceHours       float64           `db:"attendance_hours" json:"attendance_hours"`
	DiplomaSent           bool              `db:"diploma_sent" json:"diploma_sent"`
	ParticipantID         *string           `db:"participant_id" json:"participant_id,omitempty"`
	MemberID              *string           `db:"member_id" json:"member_id,omitempty"`

	ApprovedAt           *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	RejectedAt           *time.Time `db:"rejected_at" json:"rejected_at,omitempty"`
	RegisteredAt         *time.Time `db:"registered_at" json:"registered_at,omitempty"`
	ParticipantDecidedAt *time.Time `db:"participant_decided_at" json:"participant_decided_at,omitempty"`
	DiplomaSentAt        *time.Time `db:"diploma_sent_at" json:"diploma_sent_at,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// Status combines both status columns into the single label shown in the admin panel.
// Participant progress wins over the review outcome once the nominee has registered.
func (n *Nomination) Status() string {
	if n.ReviewStatus == ReviewRejected {
		return string(ReviewRejected)
	}
	if n.ParticipantStatus != ParticipantUnset {
		return string(n.ParticipantStatus)
	}
	return string(n.ReviewStatus)
}

// DisplayName prefers the legal name from the registration over the name the nominator typed.
func (n *Nomination) DisplayName() string {
	if n.RegistrationData != nil && strings.TrimSpace(n.RegistrationData.FullName) != "" {
		return strings.TrimSpace(n.RegistrationData.FullName)
	}
	return n.NomineeName
}

// ContactEmail is the address the nominee is reached at: the registration email when registered.
func (n *Nomination) ContactEmail() string {
	if n.RegistrationData != nil && n.RegistrationData.Email != "" {
		return n.RegistrationData.Email
	}
	if n.NomineeEmail != nil {
		return *n.NomineeEmail
	}
	return ""
}

// ProgramDate returns the denormalised event date or an empty string.
func (n *Nomination) ProgramDate() string {
	if n.EventDate == nil {
		return ""
	}
	return *n.EventDate
}

// RegistrationData is the profile a nominee submits through the registration link. Stored as JSONB.
type RegistrationData struct {
	FullName             string  `json:"full_name" validate:"required"`
	Gender               string  `json:"gender" validate:"required"`
	DateOfBirth          string  `json:"date_of_birth" validate:"required"`
	Phone                string  `json:"phone" validate:"required"`
	Email                string  `json:"email" validate:"required"`
	FullAddress          string  `json:"full_address" validate:"required"`
	MaritalStatus        string  `json:"marital_status" validate:"required"`
	PlaceOfBirth         string  `json:"place_of_birth" validate:"required"`
	WorkField            string  `json:"work_field" validate:"required"`
	CurrentProfession    string  `json:"current_profession" validate:"required"`
	EmployerName         string  `json:"employer_name" validate:"required"`
	ChurchName           string  `json:"church_name" validate:"required"`
	ChurchRole           string  `json:"church_role" validate:"required"`
	CommitmentAttendance *bool   `json:"commitment_attendance" validate:"required"`
	CommitmentActiveRole *bool   `json:"commitment_active_role" validate:"required"`
	FeeSupportRequest    *string `json:"fee_support_request,omitempty"`
	Notes                *string `json:"notes,omitempty"`
	ProfileImage         *string `json:"profile_image,omitempty"`
}

// Value marshals the profile to JSON for persistence.
func (r RegistrationData) Value() (driver.Value, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal registration data: %w", err)
	}
	return string(data), nil
}

// Scan unmarshals a JSONB column into the profile.
func (r *RegistrationData) Scan(value interface{}) error {
	if value == nil {
		*r = RegistrationData{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported registration data type %T", value)
	}
	if len(data) == 0 {
		*r = RegistrationData{}
		return nil
	}
	return json.Unmarshal(data, r)
}

// NominationFilter narrows nomination listings.
type NominationFilter struct {
	ReviewStatus      *ReviewStatus
	ParticipantStatus *ParticipantStatus
	EventID           string
	RegisteredOnly    bool
	Search            string
	Page              int
	PageSize          int
}

// NominatorCount is one row of the top-nominators table.
type NominatorCount struct {
	Email string `db:"email" json:"email"`
	Name  string `db:"name" json:"name"`
	Count int    `db:"count" json:"count"`
}

// EventCount counts nominations per program.
type EventCount struct {
	EventTitle string `db:"event_title" json:"event_title"`
	Count      int    `db:"count" json:"count"`
}

// NominationStats summarises the pipeline for the admin dashboard.
type NominationStats struct {
	Total              int              `db:"total" json:"total"`
	Pending            int              `db:"pending" json:"pending"`
	Approved           int              `db:"approved" json:"approved"`
	Rejected           int              `db:"rejected" json:"rejected"`
	Registered         int              `db:"registered" json:"registered"`
	AwaitingApproval   int              `db:"awaiting_approval" json:"awaiting_approval"`
	ActiveParticipants int              `db:"active_participants" json:"active_participants"`
	Completed          int              `db:"completed" json:"completed"`
	DiplomasSent       int              `db:"diplomas_sent" json:"diplomas_sent"`
	TopNominators      []NominatorCount `db:"-" json:"top_nominators"`
	ByEvent            []EventCount     `db:"-" json:"by_event"`
	GeneratedAt        time.Time        `db:"-" json:"generated_at"`
}
