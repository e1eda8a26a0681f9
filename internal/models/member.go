package models

import "time"

// Member is the long-lived community account created when a diploma is sent.
type Member struct {
	ID           string     `db:"id" json:"id"`
	NominationID *string    `db:"nomination_id" json:"nomination_id,omitempty"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Phone        *string    `db:"phone" json:"phone,omitempty"`
	City         *string    `db:"city" json:"city,omitempty"`
	ChurchName   *string    `db:"church_name" json:"church_name,omitempty"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`

	Diplomas []MemberDiploma `db:"-" json:"diplomas,omitempty"`
}

// MemberDiploma records one completed program on a member's profile.
type MemberDiploma struct {
	ID           string    `db:"id" json:"id"`
	MemberID     string    `db:"member_id" json:"member_id"`
	NominationID *string   `db:"nomination_id" json:"nomination_id,omitempty"`
	ProgramTitle string    `db:"program_title" json:"program_title"`
	ProgramDate  *string   `db:"program_date" json:"program_date,omitempty"`
	FilePath     *string   `db:"file_path" json:"-"`
	CompletedAt  time.Time `db:"completed_at" json:"completed_at"`
}
