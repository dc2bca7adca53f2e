package models

import "time"

// Operator status values. Operators are never hard-deleted; an
// administrator toggles them inactive instead.
const (
	OperatorStatusActive   = "active"
	OperatorStatusInactive = "inactive"
)

// RoleOperator is the only role this service provisions. The same value
// is written to the identity provider as a custom claim and to the
// profile row; the claim is authoritative for access control, the row
// for display and queries.
const RoleOperator = "operator"

// Operator is the queryable profile half of an operator. The hash and
// the envelope-encrypted email are storage-only; they never serialize
// into API responses.
type Operator struct {
	OperatorID     string    `db:"operator_id" json:"operator_id"`
	Email          string    `db:"-" json:"email,omitempty"`
	EmailHash      string    `db:"email_hash" json:"-"`
	EmailEncrypted []byte    `db:"email_encrypted" json:"-"`
	EmailKeyID     string    `db:"email_key_id" json:"-"`
	Role           string    `db:"role" json:"role"`
	Cameras        []string  `db:"cameras" json:"cameras"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	CreatedBy      string    `db:"created_by" json:"created_by"`
}
