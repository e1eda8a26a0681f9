package dto

import (
	"time"

	"github.com/leadership-program/nomination-api/internal/models"
)

// Registration decisions.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// RegistrationDecisionRequest is the participant approval gate input.
type RegistrationDecisionRequest struct {
	Decision string  `json:"decision" validate:"required,oneof=approve reject"`
	Reason   *string `json:"reason"`
}

// DecisionResult reports the outcome of the participant approval gate.
type DecisionResult struct {
	NominationID      string                   `json:"nomination_id"`
	ParticipantStatus models.ParticipantStatus `json:"participant_status"`
	ParticipantID     *string                  `json:"participant_id,omitempty"`
	Email             string                   `json:"email,omitempty"`
	AccountCreated    bool                     `json:"account_created"`
	Message           string                   `json:"message"`
}

// AttendanceRequest overwrites the attendance hour total.
type AttendanceRequest struct {
	Hours *float64 `json:"attendance_hours" validate:"required"`
}

// TrainingParticipantQuery filters the registered-nominee list.
type TrainingParticipantQuery struct {
	Status   string `form:"status"`
	EventID  string `form:"event_id"`
	Search   string `form:"search"`
	Format   string `form:"format"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// TrainingParticipant is a registered nominee as shown on the admin training page.
type TrainingParticipant struct {
	NominationID      string                   `json:"nomination_id"`
	FullName          string                   `json:"full_name"`
	Email             string                   `json:"email"`
	Phone             string                   `json:"phone,omitempty"`
	ChurchName        string                   `json:"church_name,omitempty"`
	EventID           string                   `json:"event_id"`
	EventTitle        string                   `json:"event_title"`
	EventDate         *string                  `json:"event_date,omitempty"`
	ParticipantStatus models.ParticipantStatus `json:"participant_status"`
	Status            string                   `json:"status"`
	AttendanceHours   float64                  `json:"attendance_hours"`
	RequiredHours     float64                  `json:"required_hours"`
	DiplomaEligible   bool                     `json:"diploma_eligible"`
	DiplomaSent       bool                     `json:"diploma_sent"`
	DiplomaSentAt     *time.Time               `json:"diploma_sent_at,omitempty"`
	ParticipantID     *string                  `json:"participant_id,omitempty"`
	MemberID          *string                  `json:"member_id,omitempty"`
	Registration      *models.RegistrationData `json:"registration_data,omitempty"`
	RegisteredAt      *time.Time               `json:"registered_at,omitempty"`
}

// NewTrainingParticipant projects a registered nomination.
func NewTrainingParticipant(n *models.Nomination, threshold float64) TrainingParticipant {
	tp := TrainingParticipant{
		NominationID:      n.ID,
		FullName:          n.DisplayName(),
		Email:             n.ContactEmail(),
		EventID:           n.EventID,
		EventTitle:        n.EventTitle,
		EventDate:         n.EventDate,
		ParticipantStatus: n.ParticipantStatus,
		Status:            n.Status(),
		AttendanceHours:   n.AttendanceHours,
		RequiredHours:     threshold,
		DiplomaEligible:   n.AttendanceHours >= threshold,
		DiplomaSent:       n.DiplomaSent,
		DiplomaSentAt:     n.DiplomaSentAt,
		ParticipantID:     n.ParticipantID,
		MemberID:          n.MemberID,
		Registration:      n.RegistrationData,
		RegisteredAt:      n.RegisteredAt,
	}
	if n.RegistrationData != nil {
		tp.Phone = n.RegistrationData.Phone
		tp.ChurchName = n.RegistrationData.ChurchName
	}
	return tp
}

// ParticipantProfile is returned to a logged-in participant.
type ParticipantProfile struct {
	ID                string                   `json:"id"`
	Email             string                   `json:"email"`
	FullName          string                   `json:"full_name"`
	EventTitle        string                   `json:"event_title"`
	EventDate         *string                  `json:"event_date,omitempty"`
	AttendanceHours   float64                  `json:"attendance_hours"`
	RequiredHours     float64                  `json:"required_hours"`
	ParticipantStatus models.ParticipantStatus `json:"participant_status"`
	DiplomaReceived   bool                     `json:"diploma_received"`
}
