package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"incident-console/internal/models"
)

type recordingSink struct {
	mu      sync.Mutex
	name    string
	records []*models.AuditRecord
	err     error
	ctxErr  error
}

func (s *recordingSink) Write(ctx context.Context, record *models.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	s.ctxErr = ctx.Err()
	return s.err
}

func (s *recordingSink) Name() string { return s.name }

func TestRecordFansOutToAllSinks(t *testing.T) {
	store := &recordingSink{name: "store"}
	stream := &recordingSink{name: "stream"}
	search := &recordingSink{name: "search"}

	l := NewLogger(zap.NewNop(), store, stream, search)
	l.Record(context.Background(), &models.AuditRecord{
		OperatorID: "op-1",
		Action:     models.AuditActionLogin,
	})

	for _, sink := range []*recordingSink{store, stream, search} {
		require.Len(t, sink.records, 1, sink.name)
		assert.Equal(t, "op-1", sink.records[0].OperatorID)
	}
}

func TestRecordStampsIDAndTimestamp(t *testing.T) {
	sink := &recordingSink{name: "store"}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	l := NewLogger(zap.NewNop(), sink)
	l.now = func() time.Time { return fixed }

	l.Record(context.Background(), &models.AuditRecord{Action: models.AuditActionTest})

	require.Len(t, sink.records, 1)
	assert.NotEmpty(t, sink.records[0].RecordID)
	assert.Equal(t, fixed, sink.records[0].CreatedAt)
}

func TestRecordKeepsCallerStamps(t *testing.T) {
	sink := &recordingSink{name: "store"}
	l := NewLogger(zap.NewNop(), sink)

	at := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	l.Record(context.Background(), &models.AuditRecord{
		RecordID:  "rec-1",
		CreatedAt: at,
	})

	require.Len(t, sink.records, 1)
	assert.Equal(t, "rec-1", sink.records[0].RecordID)
	assert.Equal(t, at, sink.records[0].CreatedAt)
}

func TestFailingSinkDoesNotBlockOthers(t *testing.T) {
	failing := &recordingSink{name: "failing", err: errors.New("sink down")}
	healthy := &recordingSink{name: "healthy"}

	l := NewLogger(zap.NewNop(), failing, healthy)

	// Must return normally; audit errors never surface.
	l.Record(context.Background(), &models.AuditRecord{Action: models.AuditActionTest})

	assert.Len(t, failing.records, 1)
	assert.Len(t, healthy.records, 1)
}

func TestRecordSurvivesCancelledRequestContext(t *testing.T) {
	sink := &recordingSink{name: "store"}
	l := NewLogger(zap.NewNop(), sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l.Record(ctx, &models.AuditRecord{Action: models.AuditActionTest})

	// The write context is detached from the request context.
	require.Len(t, sink.records, 1)
	assert.NoError(t, sink.ctxErr)
}
