package models

import "time"

// Audit actions recorded in operator_logs.
const (
	AuditActionLogin           = "LOGIN"
	AuditActionOperatorCreated = "OPERATOR_CREATED"
	AuditActionPasswordReset   = "PASSWORD_RESET"
	AuditActionTest            = "TEST"
)

// AuditRecord is an append-only operator activity entry. Writes are
// best-effort: a failed audit write is logged locally and never
// surfaced to the caller.
type AuditRecord struct {
	LogBucket     int               `db:"log_bucket" json:"-"`
	Day           string            `db:"day" json:"-"`
	RecordID      string            `db:"record_id" json:"record_id"`
	OperatorID    string            `db:"operator_id" json:"operator_id"`
	OperatorEmail string            `db:"operator_email" json:"operator_email"`
	Action        string            `db:"action" json:"action"`
	Description   string            `db:"description" json:"description"`
	CameraID      string            `db:"camera_id" json:"camera_id,omitempty"`
	IPAddress     string            `db:"ip_address" json:"ip_address,omitempty"`
	Metadata      map[string]string `db:"metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
}
