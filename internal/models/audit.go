package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin                 = "LOGIN"
	AuditActionNominationCreate      = "NOMINATION_CREATE"
	AuditActionDirectInvitation      = "NOMINATION_DIRECT_INVITATION"
	AuditActionNominationUpdate      = "NOMINATION_UPDATE"
	AuditActionNominationDelete      = "NOMINATION_DELETE"
	AuditActionNominationApprove     = "NOMINATION_APPROVE"
	AuditActionNominationReject      = "NOMINATION_REJECT"
	AuditActionRegistrationSubmit    = "REGISTRATION_SUBMIT"
	AuditActionRegistrationApprove   = "REGISTRATION_APPROVE"
	AuditActionRegistrationReject    = "REGISTRATION_REJECT"
	AuditActionAttendanceRecord      = "ATTENDANCE_RECORD"
	AuditActionDiplomaSend           = "DIPLOMA_SEND"
	AuditActionMemberProvision       = "MEMBER_PROVISION"
	AuditActionMemberPasswordReissue = "MEMBER_PASSWORD_REISSUE"
)

// Audit resources.
const (
	AuditResourceNomination = "nomination"
	AuditResourceMember     = "member"
	AuditResourceUser       = "user"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  JSONText  `db:"old_values" json:"old_values,omitempty"`
	NewValues  JSONText  `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// JSONText is raw JSON stored in a JSONB column.
type JSONText []byte

// Value sends the JSON as text so the driver does not encode it as bytea.
func (j JSONText) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

// Scan copies a JSONB column into j.
func (j *JSONText) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSONText(v)
	default:
		return fmt.Errorf("unsupported json type %T", value)
	}
	return nil
}

// MarshalJSON embeds the raw document.
func (j JSONText) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}
