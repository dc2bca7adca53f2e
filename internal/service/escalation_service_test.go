package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"incident-console/internal/config"
	"incident-console/internal/models"
	"incident-console/internal/repository/scylla"
)

// fakeIncidentRepo mimics the store's conditional escalation: the
// guard is re-checked under a lock, so concurrent Escalate calls
// behave like the real lightweight transaction.
type fakeIncidentRepo struct {
	mu            sync.Mutex
	incidents     map[string]*models.Incident
	getErr        error
	escalateErr   error
	escalateCalls int
	appliedCount  int
}

func newFakeIncidentRepo(incidents ...*models.Incident) *fakeIncidentRepo {
	repo := &fakeIncidentRepo{incidents: make(map[string]*models.Incident)}
	for _, incident := range incidents {
		repo.incidents[incident.IncidentID] = incident
	}
	return repo
}

func (f *fakeIncidentRepo) GetByID(ctx context.Context, incidentID string) (*models.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	incident, ok := f.incidents[incidentID]
	if !ok {
		return nil, scylla.ErrIncidentNotFound
	}
	copied := *incident
	return &copied, nil
}

func (f *fakeIncidentRepo) Escalate(ctx context.Context, incidentID string, at time.Time, reason string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.escalateCalls++
	if f.escalateErr != nil {
		return false, f.escalateErr
	}
	incident, ok := f.incidents[incidentID]
	if !ok || incident.Escalated() {
		return false, nil
	}
	incident.Severity = models.SeverityCritical
	incident.EscalatedAt = &at
	incident.EscalationReason = reason
	f.appliedCount++
	return true, nil
}

func newTestEscalationService(repo *fakeIncidentRepo, now time.Time) *EscalationService {
	svc := NewEscalationService(repo, config.EscalationConfig{
		MaxWarningAge:    10 * time.Minute,
		MinConfidence:    0.85,
		MinConfirmations: 2,
	}, zap.NewNop())
	svc.now = func() time.Time { return now }
	return svc
}

func TestResolveSeverity(t *testing.T) {
	tests := []struct {
		name     string
		incident models.Incident
		want     string
	}{
		{"explicit severity wins", models.Incident{Severity: "warning", ThreatLevel: "critical"}, "warning"},
		{"explicit severity normalized", models.Incident{Severity: " CRITICAL "}, "critical"},
		{"critical threat", models.Incident{ThreatLevel: "critical"}, "critical"},
		{"high threat", models.Incident{ThreatLevel: "high"}, "warning"},
		{"medium threat", models.Incident{ThreatLevel: "medium"}, "warning"},
		{"low threat", models.Incident{ThreatLevel: "low"}, "info"},
		{"unknown threat", models.Incident{ThreatLevel: "elevated"}, ""},
		{"nothing set", models.Incident{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveSeverity(&tt.incident))
		})
	}
}

func TestEscalatesHighConfidenceWarning(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	incident := &models.Incident{
		IncidentID:  "inc-1",
		ThreatLevel: "high",
		Confidence:  0.9,
		CreatedAt:   now.Add(-2 * time.Minute),
	}
	repo := newFakeIncidentRepo(incident)
	svc := newTestEscalationService(repo, now)

	svc.OnIncidentWrite(context.Background(), incident)

	stored := repo.incidents["inc-1"]
	assert.Equal(t, models.SeverityCritical, stored.Severity)
	require.NotNil(t, stored.EscalatedAt)
	assert.Equal(t, now.UTC(), stored.EscalatedAt.UTC())
	assert.Equal(t, models.EscalationReasonAutoRule, stored.EscalationReason)
}

func TestEscalatesAgedWarning(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	incident := &models.Incident{
		IncidentID:  "inc-2",
		ThreatLevel: "medium",
		Confidence:  0.2,
		CreatedAt:   now.Add(-11 * time.Minute),
	}
	repo := newFakeIncidentRepo(incident)
	svc := newTestEscalationService(repo, now)

	svc.OnIncidentWrite(context.Background(), incident)

	assert.Equal(t, models.SeverityCritical, repo.incidents["inc-2"].Severity)
	assert.Equal(t, models.EscalationReasonAutoRule, repo.incidents["inc-2"].EscalationReason)
}

func TestEscalatesConfirmedWarning(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	incident := &models.Incident{
		IncidentID:    "inc-3",
		ThreatLevel:   "high",
		Confidence:    0.3,
		Confirmations: 2,
		CreatedAt:     now.Add(-1 * time.Minute),
	}
	repo := newFakeIncidentRepo(incident)
	svc := newTestEscalationService(repo, now)

	svc.OnIncidentWrite(context.Background(), incident)

	assert.Equal(t, models.SeverityCritical, repo.incidents["inc-3"].Severity)
}

func TestNeverEscalatesNonWarnings(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		incident *models.Incident
	}{
		{"low threat", &models.Incident{
			IncidentID:    "inc-low",
			ThreatLevel:   "low",
			Confidence:    0.99,
			Confirmations: 5,
			CreatedAt:     now.Add(-time.Hour),
		}},
		{"already critical", &models.Incident{
			IncidentID: "inc-crit",
			Severity:   models.SeverityCritical,
			Confidence: 0.99,
			CreatedAt:  now.Add(-time.Hour),
		}},
		{"unknown threat level", &models.Incident{
			IncidentID:    "inc-unknown",
			ThreatLevel:   "elevated",
			Confidence:    0.99,
			Confirmations: 5,
			CreatedAt:     now.Add(-time.Hour),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeIncidentRepo(tt.incident)
			svc := newTestEscalationService(repo, now)

			svc.OnIncidentWrite(context.Background(), tt.incident)

			assert.Equal(t, 0, repo.escalateCalls)
			assert.False(t, repo.incidents[tt.incident.IncidentID].Escalated())
		})
	}
}

func TestDoesNotEscalateQuietRecentWarning(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	incident := &models.Incident{
		IncidentID:    "inc-4",
		ThreatLevel:   "high",
		Confidence:    0.5,
		Confirmations: 1,
		CreatedAt:     now.Add(-5 * time.Minute),
	}
	repo := newFakeIncidentRepo(incident)
	svc := newTestEscalationService(repo, now)

	svc.OnIncidentWrite(context.Background(), incident)

	assert.Equal(t, 0, repo.escalateCalls)
}

func TestThresholdsAreExclusive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// Exactly at the age and confidence thresholds with a single
	// confirmation: none of the three conditions holds.
	incident := &models.Incident{
		IncidentID:    "inc-edge",
		ThreatLevel:   "high",
		Confidence:    0.85,
		Confirmations: 1,
		CreatedAt:     now.Add(-10 * time.Minute),
	}
	repo := newFakeIncidentRepo(incident)
	svc := newTestEscalationService(repo, now)

	svc.OnIncidentWrite(context.Background(), incident)

	assert.Equal(t, 0, repo.escalateCalls)
}

func TestAlreadyEscalatedIsNoOp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	escalatedAt := now.Add(-time.Minute)
	// Still warning-severity, but the guard is already set: a replayed
	// trigger for an escalation someone else applied.
	incident := &models.Incident{
		IncidentID:       "inc-5",
		ThreatLevel:      "high",
		Confidence:       0.99,
		CreatedAt:        now.Add(-time.Hour),
		EscalatedAt:      &escalatedAt,
		EscalationReason: models.EscalationReasonAutoRule,
	}
	repo := newFakeIncidentRepo(incident)
	svc := newTestEscalationService(repo, now)

	svc.OnIncidentWrite(context.Background(), incident)

	assert.Equal(t, 0, repo.escalateCalls)
	assert.Equal(t, escalatedAt, *repo.incidents["inc-5"].EscalatedAt)
}

func TestRepeatedDeliveryEscalatesOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	incident := &models.Incident{
		IncidentID:  "inc-6",
		ThreatLevel: "high",
		Confidence:  0.9,
		CreatedAt:   now.Add(-time.Minute),
	}
	repo := newFakeIncidentRepo(incident)
	svc := newTestEscalationService(repo, now)

	for i := 0; i < 5; i++ {
		svc.OnIncidentWrite(context.Background(), incident)
	}

	assert.Equal(t, 1, repo.appliedCount)
}

func TestConcurrentEvaluationsApplyExactlyOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	incident := &models.Incident{
		IncidentID:  "inc-7",
		ThreatLevel: "high",
		Confidence:  0.9,
		CreatedAt:   now.Add(-time.Minute),
	}
	repo := newFakeIncidentRepo(incident)
	svc := newTestEscalationService(repo, now)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.OnIncidentWrite(context.Background(), incident)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, repo.appliedCount)
	assert.Equal(t, models.SeverityCritical, repo.incidents["inc-7"].Severity)
}

func TestMissingIncidentIsIgnored(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeIncidentRepo()
	svc := newTestEscalationService(repo, now)

	svc.OnIncidentWrite(context.Background(), &models.Incident{IncidentID: "inc-gone"})

	assert.Equal(t, 0, repo.escalateCalls)
}

func TestStoreErrorsAreSwallowed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	incident := &models.Incident{
		IncidentID:  "inc-8",
		ThreatLevel: "high",
		Confidence:  0.9,
		CreatedAt:   now.Add(-time.Minute),
	}
	repo := newFakeIncidentRepo(incident)
	repo.escalateErr = errors.New("store unavailable")
	svc := newTestEscalationService(repo, now)

	// Must not panic and must not mutate the incident.
	svc.OnIncidentWrite(context.Background(), incident)
	assert.False(t, repo.incidents["inc-8"].Escalated())
}

func TestNilAndEmptyWritesAreIgnored(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeIncidentRepo()
	svc := newTestEscalationService(repo, now)

	svc.OnIncidentWrite(context.Background(), nil)
	svc.OnIncidentWrite(context.Background(), &models.Incident{})

	assert.Equal(t, 0, repo.escalateCalls)
}
