package listener

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"incident-console/internal/client"
	"incident-console/internal/models"
)

// IncidentSink receives every incident document observed on the change
// feed. The escalation service satisfies this.
type IncidentSink interface {
	OnIncidentWrite(ctx context.Context, incident *models.Incident)
}

// IncidentListener consumes the incident change feed and hands each
// decoded document to the sink. Malformed messages are logged and
// skipped; the feed must keep moving regardless of any single payload.
type IncidentListener struct {
	consumer *client.KafkaConsumer
	sink     IncidentSink
	logger   *zap.Logger
}

func NewIncidentListener(consumer *client.KafkaConsumer, sink IncidentSink, logger *zap.Logger) *IncidentListener {
	return &IncidentListener{
		consumer: consumer,
		sink:     sink,
		logger:   logger.Named("incident_listener"),
	}
}

// Run blocks consuming the feed until ctx is cancelled. It returns nil
// on cancellation and the consumer error otherwise.
func (l *IncidentListener) Run(ctx context.Context) error {
	l.logger.Info("incident listener started")

	for {
		msg, err := l.consumer.ConsumeMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				l.logger.Info("incident listener stopped")
				return nil
			}
			l.logger.Error("failed to consume incident message", zap.Error(err))
			return err
		}

		var incident models.Incident
		if err := json.Unmarshal(msg.Value, &incident); err != nil {
			l.logger.Warn("skipping malformed incident message",
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			continue
		}

		l.sink.OnIncidentWrite(ctx, &incident)
	}
}
