package dto

import (
	"time"

	"github.com/leadership-program/nomination-api/internal/models"
)

// CreateNominationRequest is the public nomination form.
type CreateNominationRequest struct {
	EventID           string  `json:"event_id" validate:"required"`
	EventTitle        string  `json:"event_title" validate:"required"`
	EventDate         *string `json:"event_date"`
	NominatorName     string  `json:"nominator_name" validate:"required"`
	NominatorEmail    string  `json:"nominator_email" validate:"required,email"`
	NominatorPhone    *string `json:"nominator_phone"`
	NominatorChurch   *string `json:"nominator_church"`
	NominatorRelation *string `json:"nominator_relation"`
	NomineeName       string  `json:"nominee_name" validate:"required"`
	NomineeEmail      *string `json:"nominee_email" validate:"omitempty,email"`
	NomineePhone      *string `json:"nominee_phone"`
	NomineeChurch     *string `json:"nominee_church"`
	NomineeRole       *string `json:"nominee_role"`
	NomineeActivities *string `json:"nominee_activities"`
	Motivation        *string `json:"motivation"`
}

// DirectInvitationRequest lets an admin invite someone without a nominator.
type DirectInvitationRequest struct {
	EventID      string  `json:"event_id" validate:"required"`
	EventTitle   string  `json:"event_title" validate:"required"`
	EventDate    *string `json:"event_date"`
	NomineeName  string  `json:"nominee_name" validate:"required"`
	NomineeEmail string  `json:"nominee_email" validate:"required,email"`
	NomineePhone *string `json:"nominee_phone"`
	AdminNotes   *string `json:"admin_notes"`
}

// InvitationResult returns the created nomination and the link to hand to the invitee.
type InvitationResult struct {
	Nomination      *models.Nomination `json:"nomination"`
	RegistrationURL string             `json:"registration_url"`
}

// UpdateNominationRequest edits admin-owned free text.
type UpdateNominationRequest struct {
	AdminNotes *string `json:"admin_notes"`
	Motivation *string `json:"motivation"`
}

// ReviewRequest carries optional notes for approve and the reason for reject.
type ReviewRequest struct {
	Notes  *string `json:"notes"`
	Reason *string `json:"reason"`
}

// NominationQuery mirrors supported listing filters.
type NominationQuery struct {
	Status   string `form:"status"`
	EventID  string `form:"event_id"`
	Search   string `form:"search"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// NominationResponse adds the combined display status to a nomination.
type NominationResponse struct {
	*models.Nomination
	Status string `json:"status"`
}

// NewNominationResponse wraps n for output.
func NewNominationResponse(n *models.Nomination) NominationResponse {
	return NominationResponse{Nomination: n, Status: n.Status()}
}

// NewNominationResponses wraps a slice for output.
func NewNominationResponses(items []models.Nomination) []NominationResponse {
	out := make([]NominationResponse, len(items))
	for i := range items {
		out[i] = NewNominationResponse(&items[i])
	}
	return out
}

// RegistrationView is what the public registration page may see about a nomination.
type RegistrationView struct {
	ID                    string  `json:"id"`
	EventID               string  `json:"event_id"`
	EventTitle            string  `json:"event_title"`
	EventDate             *string `json:"event_date,omitempty"`
	NomineeName           string  `json:"nominee_name"`
	NomineeEmail          *string `json:"nominee_email,omitempty"`
	RegistrationCompleted bool    `json:"registration_completed"`
	Open                  bool    `json:"open"`
}

// RegistrationAck confirms a submitted registration.
type RegistrationAck struct {
	NominationID string    `json:"nomination_id"`
	Status       string    `json:"status"`
	Message      string    `json:"message"`
	RegisteredAt time.Time `json:"registered_at"`
}
