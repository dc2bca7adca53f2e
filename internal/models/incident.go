package models

import "time"

// Incident severity values, lowest to highest.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// EscalationReasonAutoRule marks incidents promoted by the automatic
// escalation rule rather than by a human.
const EscalationReasonAutoRule = "AUTO_RULE"

type Incident struct {
	IncidentID       string     `db:"incident_id" json:"incident_id"`
	CameraID         string     `db:"camera_id" json:"camera_id"`
	Severity         string     `db:"severity" json:"severity"`
	ThreatLevel      string     `db:"threat_level" json:"threat_level"`
	Confidence       float64    `db:"confidence" json:"confidence"`
	Confirmations    int        `db:"confirmations" json:"confirmations"`
	Description      string     `db:"description" json:"description"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        *time.Time `db:"updated_at" json:"updated_at,omitempty"`
	EscalatedAt      *time.Time `db:"escalated_at" json:"escalated_at,omitempty"`
	EscalationReason string     `db:"escalation_reason" json:"escalation_reason,omitempty"`
}

// Escalated reports whether the incident has already been promoted.
// A set EscalatedAt is the idempotency guard: once present the
// escalation engine never touches the incident again.
func (i *Incident) Escalated() bool {
	return i.EscalatedAt != nil && !i.EscalatedAt.IsZero()
}
