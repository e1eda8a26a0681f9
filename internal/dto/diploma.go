package dto

import "time"

// Artifact is a rendered binary document.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

// SendDiplomaResult reports a completed diploma delivery.
type SendDiplomaResult struct {
	Success       bool      `json:"success"`
	Message       string    `json:"message"`
	MemberID      string    `json:"member_id"`
	MemberCreated bool      `json:"member_created"`
	SentTo        string    `json:"sent_to"`
	DiplomaSentAt time.Time `json:"diploma_sent_at"`
}
