package models

import "time"

// Participant is the login identity a nominee receives once their registration is approved.
type Participant struct {
	ID              string     `db:"id" json:"id"`
	NominationID    string     `db:"nomination_id" json:"nomination_id"`
	Email           string     `db:"email" json:"email"`
	PasswordHash    string     `db:"password_hash" json:"-"`
	FullName        string     `db:"full_name" json:"full_name"`
	Phone           *string    `db:"phone" json:"phone,omitempty"`
	ChurchName      *string    `db:"church_name" json:"church_name,omitempty"`
	ChurchRole      *string    `db:"church_role" json:"church_role,omitempty"`
	EventID         string     `db:"event_id" json:"event_id"`
	EventTitle      string     `db:"event_title" json:"event_title"`
	AttendanceHours float64    `db:"attendance_hours" json:"attendance_hours"`
	DiplomaReceived bool       `db:"diploma_received" json:"diploma_received"`
	Active          bool       `db:"active" json:"active"`
	LastLogin       *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}
