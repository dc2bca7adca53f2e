package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"incident-console/internal/models"
)

// Sink is one destination for operator activity records.
type Sink interface {
	Write(ctx context.Context, record *models.AuditRecord) error
	Name() string
}

// Logger fans an activity record out to every configured sink. All
// writes are best-effort: a failing sink is logged and skipped, and no
// caller ever sees an audit error. Observability must never fail the
// operation it observes.
type Logger struct {
	sinks        []Sink
	logger       *zap.Logger
	writeTimeout time.Duration
	now          func() time.Time
}

func NewLogger(logger *zap.Logger, sinks ...Sink) *Logger {
	return &Logger{
		sinks:        sinks,
		logger:       logger.Named("audit"),
		writeTimeout: 5 * time.Second,
		now:          time.Now,
	}
}

// Record stamps and persists an activity record. It has no error
// return: every failure is resolved here, not in the caller.
func (l *Logger) Record(ctx context.Context, record *models.AuditRecord) {
	if record.RecordID == "" {
		record.RecordID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = l.now().UTC()
	}

	// The record must outlive the request that produced it, but not by
	// much: each sink gets a bounded window.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.writeTimeout)
	defer cancel()

	g, writeCtx := errgroup.WithContext(writeCtx)
	for _, sink := range l.sinks {
		sink := sink
		g.Go(func() error {
			if err := sink.Write(writeCtx, record); err != nil {
				l.logger.Warn("audit sink write failed",
					zap.String("sink", sink.Name()),
					zap.String("action", record.Action),
					zap.String("record_id", record.RecordID),
					zap.Error(err))
			}
			// Sink failures never propagate.
			return nil
		})
	}
	_ = g.Wait()
}
