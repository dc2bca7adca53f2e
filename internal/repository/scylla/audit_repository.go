package scylla

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"incident-console/internal/bucketing"
	"incident-console/internal/models"
	"incident-console/internal/util"
)

// AuditRepository is the append-only operator_logs table. Rows are
// partitioned by (bucket, day) so a single busy operator cannot grow
// one partition without bound.
type AuditRepository interface {
	Append(ctx context.Context, record *models.AuditRecord) error
}

type auditRepository struct {
	client       *ScyllaClient
	bucketingMgr *bucketing.Manager
}

func NewAuditRepository(client *ScyllaClient, bucketingMgr *bucketing.Manager, logger *zap.Logger) AuditRepository {
	return &auditRepository{
		client:       client,
		bucketingMgr: bucketingMgr,
	}
}

func (r *auditRepository) Append(ctx context.Context, record *models.AuditRecord) error {
	record.LogBucket = r.bucketingMgr.LogBucket(record.OperatorID)
	record.Day = r.bucketingMgr.DayBucket(record.CreatedAt)

	err := r.client.Session.Query(`
        INSERT INTO operator_logs (
            log_bucket, day, created_at, record_id, operator_id,
            operator_email, action, description, camera_id, ip_address, metadata
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.LogBucket, record.Day, record.CreatedAt, record.RecordID, record.OperatorID,
		record.OperatorEmail, record.Action, record.Description, record.CameraID,
		record.IPAddress, record.Metadata).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}

	util.Debug("Audit record appended",
		zap.String("record_id", record.RecordID),
		zap.String("action", record.Action))
	return nil
}
