package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"incident-console/internal/client"
	"incident-console/internal/models"
	"incident-console/internal/repository/scylla"
)

// StoreSink writes to the authoritative operator_logs table.
type StoreSink struct {
	repo scylla.AuditRepository
}

func NewStoreSink(repo scylla.AuditRepository) *StoreSink {
	return &StoreSink{repo: repo}
}

func (s *StoreSink) Write(ctx context.Context, record *models.AuditRecord) error {
	return s.repo.Append(ctx, record)
}

func (s *StoreSink) Name() string { return "store" }

// KafkaSink publishes activity events for downstream consumers.
type KafkaSink struct {
	producer *client.KafkaProducer
	topic    string
}

func NewKafkaSink(producer *client.KafkaProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Write(ctx context.Context, record *models.AuditRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode audit record: %w", err)
	}
	return s.producer.ProduceMessage(ctx, s.topic, []byte(record.OperatorID), payload, map[string]string{
		"action": record.Action,
	})
}

func (s *KafkaSink) Name() string { return "kafka" }

// ClickHouseSink lands activity rows in the analytics table the
// dashboard charts aggregate over.
type ClickHouseSink struct {
	ch *client.ClickHouseClient
}

func NewClickHouseSink(ch *client.ClickHouseClient) *ClickHouseSink {
	return &ClickHouseSink{ch: ch}
}

func (s *ClickHouseSink) Write(ctx context.Context, record *models.AuditRecord) error {
	return s.ch.Exec(ctx, `
        INSERT INTO operator_activity (
            record_id, operator_id, operator_email, action,
            description, camera_id, ip_address, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.RecordID, record.OperatorID, record.OperatorEmail, record.Action,
		record.Description, record.CameraID, record.IPAddress, record.CreatedAt)
}

func (s *ClickHouseSink) Name() string { return "clickhouse" }

// ElasticSink indexes records for the operator-logs search page.
type ElasticSink struct {
	es    *client.ESClient
	index string
}

func NewElasticSink(es *client.ESClient, index string) *ElasticSink {
	return &ElasticSink{es: es, index: index}
}

func (s *ElasticSink) Write(ctx context.Context, record *models.AuditRecord) error {
	res, err := s.es.IndexDocument(ctx, s.index, record.RecordID, record)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch index error: %s", res.Status())
	}
	return nil
}

func (s *ElasticSink) Name() string { return "elastic" }
