package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"incident-console/internal/config"
	"incident-console/internal/models"
	"incident-console/internal/repository/scylla"
)

// EscalationService promotes warning incidents to critical exactly
// once. It is invoked on every incident write; the persisted
// escalated_at marker plus a conditional store update make the
// transition idempotent under concurrent triggers and replays.
//
// State machine: (warning, not-escalated) -> (critical, escalated) is
// the only transition. Info and critical incidents, and already
// escalated warnings, are never touched.
type EscalationService struct {
	incidents scylla.IncidentRepository
	config    config.EscalationConfig
	logger    *zap.Logger
	now       func() time.Time
}

func NewEscalationService(incidentRepo scylla.IncidentRepository, cfg config.EscalationConfig, logger *zap.Logger) *EscalationService {
	return &EscalationService{
		incidents: incidentRepo,
		config:    cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// ResolveSeverity derives the effective severity of an incident. An
// explicit severity wins; otherwise the detection threat level maps
// onto the severity scale. Unknown levels resolve to "" and are
// non-actionable.
func ResolveSeverity(incident *models.Incident) string {
	if explicit := strings.ToLower(strings.TrimSpace(incident.Severity)); explicit != "" {
		return explicit
	}
	switch strings.ToLower(strings.TrimSpace(incident.ThreatLevel)) {
	case "critical":
		return models.SeverityCritical
	case "high", "medium":
		return models.SeverityWarning
	case "low":
		return models.SeverityInfo
	default:
		return ""
	}
}

// eligible applies the escalation rule to a warning incident: old
// enough, confident enough, or corroborated enough.
func (s *EscalationService) eligible(incident *models.Incident) bool {
	if ResolveSeverity(incident) != models.SeverityWarning {
		return false
	}
	if incident.Escalated() {
		return false
	}
	if incident.CreatedAt.IsZero() {
		return false
	}

	age := s.now().Sub(incident.CreatedAt)
	return age > s.config.MaxWarningAge ||
		incident.Confidence > s.config.MinConfidence ||
		incident.Confirmations >= s.config.MinConfirmations
}

// OnIncidentWrite is the change-feed hook, fired after every incident
// create or update. It has no caller awaiting a result, so it never
// returns an error; everything is resolved here or logged.
func (s *EscalationService) OnIncidentWrite(ctx context.Context, incident *models.Incident) {
	if incident == nil || incident.IncidentID == "" {
		return
	}

	// Re-read rather than trusting the delivered document: the trigger
	// may be a replay and the store is the only source of truth.
	current, err := s.incidents.GetByID(ctx, incident.IncidentID)
	if err != nil {
		if errors.Is(err, scylla.ErrIncidentNotFound) {
			s.logger.Debug("incident gone before evaluation",
				zap.String("incident_id", incident.IncidentID))
			return
		}
		s.logger.Error("failed to read incident for escalation",
			zap.String("incident_id", incident.IncidentID),
			zap.Error(err))
		return
	}

	if !s.eligible(current) {
		return
	}

	// The store re-checks the guard at write time, so two concurrent
	// evaluations can both reach this point and still only one apply.
	applied, err := s.incidents.Escalate(ctx, current.IncidentID, s.now().UTC(), models.EscalationReasonAutoRule)
	if err != nil {
		s.logger.Error("incident escalation failed",
			zap.String("incident_id", current.IncidentID),
			zap.Error(err))
		return
	}

	if applied {
		s.logger.Info("incident escalated to critical",
			zap.String("incident_id", current.IncidentID),
			zap.String("reason", models.EscalationReasonAutoRule),
			zap.Float64("confidence", current.Confidence),
			zap.Int("confirmations", current.Confirmations))
	} else {
		s.logger.Debug("incident already escalated by concurrent evaluation",
			zap.String("incident_id", current.IncidentID))
	}
}
