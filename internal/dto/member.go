package dto

import "time"

// MemberProfile is returned to a logged-in member.
type MemberProfile struct {
	ID         string              `json:"id"`
	Email      string              `json:"email"`
	FullName   string              `json:"full_name"`
	Phone      *string             `json:"phone,omitempty"`
	ChurchName *string             `json:"church_name,omitempty"`
	MemberedAt time.Time           `json:"member_since"`
	Diplomas   []MemberDiplomaView `json:"diplomas"`
}

// MemberDiplomaView is a diploma entry with an optional signed download link.
type MemberDiplomaView struct {
	ID           string     `json:"id"`
	ProgramTitle string     `json:"program_title"`
	ProgramDate  *string    `json:"program_date,omitempty"`
	CompletedAt  time.Time  `json:"completed_at"`
	DownloadURL  string     `json:"download_url,omitempty"`
	ExpiresAt    *time.Time `json:"download_expires_at,omitempty"`
}
