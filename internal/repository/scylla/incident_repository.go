package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"incident-console/internal/models"
	"incident-console/internal/util"
)

var (
	ErrIncidentNotFound = errors.New("incident not found")
)

// IncidentRepository reads incidents and applies the one permitted
// mutation: the guarded warning-to-critical escalation.
type IncidentRepository interface {
	GetByID(ctx context.Context, incidentID string) (*models.Incident, error)

	// Escalate promotes the incident in a single conditional write.
	// It returns false with a nil error when the condition did not hold,
	// meaning some concurrent evaluation already escalated the incident.
	Escalate(ctx context.Context, incidentID string, at time.Time, reason string) (bool, error)
}

type incidentRepository struct {
	client *ScyllaClient
}

func NewIncidentRepository(client *ScyllaClient, logger *zap.Logger) IncidentRepository {
	return &incidentRepository{client: client}
}

func (r *incidentRepository) GetByID(ctx context.Context, incidentID string) (*models.Incident, error) {
	incident := &models.Incident{}
	var updatedAt, escalatedAt time.Time

	query := r.client.Session.Query(`
        SELECT incident_id, camera_id, severity, threat_level, confidence,
               confirmations, description, created_at, updated_at,
               escalated_at, escalation_reason
        FROM incidents WHERE incident_id = ?`, incidentID).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&incident.IncidentID, &incident.CameraID, &incident.Severity, &incident.ThreatLevel,
		&incident.Confidence, &incident.Confirmations, &incident.Description,
		&incident.CreatedAt, &updatedAt, &escalatedAt, &incident.EscalationReason)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrIncidentNotFound
		}
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}

	// Scylla returns zero timestamps for unset columns.
	if !updatedAt.IsZero() {
		incident.UpdatedAt = &updatedAt
	}
	if !escalatedAt.IsZero() {
		incident.EscalatedAt = &escalatedAt
	}
	return incident, nil
}

// Escalate runs a lightweight transaction so two concurrent evaluations
// of the same incident can never both apply: the IF clause re-checks
// the idempotency guard at write time.
func (r *incidentRepository) Escalate(ctx context.Context, incidentID string, at time.Time, reason string) (bool, error) {
	prev := make(map[string]interface{})

	applied, err := r.client.Session.Query(`
        UPDATE incidents
        SET severity = ?, escalated_at = ?, escalation_reason = ?, updated_at = ?
        WHERE incident_id = ?
        IF escalated_at = null`,
		models.SeverityCritical, at, reason, at, incidentID).
		WithContext(ctx).
		SerialConsistency(gocql.Serial).
		MapScanCAS(prev)
	if err != nil {
		return false, fmt.Errorf("failed to escalate incident: %w", err)
	}

	if !applied {
		util.Debug("Escalation not applied, guard already set",
			zap.String("incident_id", incidentID))
	}
	return applied, nil
}
