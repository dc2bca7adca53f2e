package scylla

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"incident-console/internal/encryption"
	"incident-console/internal/models"
	"incident-console/internal/util"
)

var (
	ErrOperatorNotFound = errors.New("operator not found")
)

// OperatorRepository is the profile side of an operator. The identity
// provider owns the credential; this store owns the queryable profile
// (email, cameras, status).
type OperatorRepository interface {
	Create(ctx context.Context, operator *models.Operator) error
	GetByID(ctx context.Context, operatorID string) (*models.Operator, error)
	GetIDByEmail(ctx context.Context, email string) (string, error)
	UpdateStatus(ctx context.Context, operatorID, status string) error
	ReplaceCameras(ctx context.Context, operatorID string, cameras []string) error
}

type operatorRepository struct {
	client        *ScyllaClient
	encryptionMgr *encryption.Manager
}

func NewOperatorRepository(client *ScyllaClient, encryptionMgr *encryption.Manager, logger *zap.Logger) OperatorRepository {
	return &operatorRepository{
		client:        client,
		encryptionMgr: encryptionMgr,
	}
}

// EmailHash normalizes and hashes an email for the lookup table. The
// plaintext email is only stored envelope-encrypted.
func EmailHash(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func (r *operatorRepository) Create(ctx context.Context, operator *models.Operator) error {
	encrypted, keyID, err := r.encryptionMgr.EncryptField(ctx, operator.Email)
	if err != nil {
		return fmt.Errorf("failed to encrypt operator email: %w", err)
	}
	operator.EmailHash = EmailHash(operator.Email)
	operator.EmailEncrypted = encrypted
	operator.EmailKeyID = keyID

	batch := r.client.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`
        INSERT INTO operators (
            operator_id, email_hash, email_encrypted, email_key_id,
            role, cameras, status, created_at, created_by
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		operator.OperatorID, operator.EmailHash, operator.EmailEncrypted, operator.EmailKeyID,
		operator.Role, operator.Cameras, operator.Status, operator.CreatedAt, operator.CreatedBy)
	batch.Query(`
        INSERT INTO email_to_operator (email_hash, operator_id, created_at)
        VALUES (?, ?, ?)`,
		operator.EmailHash, operator.OperatorID, operator.CreatedAt)

	if err := r.client.Session.ExecuteBatch(batch); err != nil {
		util.Error("Failed to create operator profile",
			zap.String("operator_id", operator.OperatorID),
			zap.Error(err))
		return fmt.Errorf("failed to create operator profile: %w", err)
	}

	util.Info("Operator profile created",
		zap.String("operator_id", operator.OperatorID),
		zap.Int("cameras", len(operator.Cameras)))
	return nil
}

func (r *operatorRepository) GetByID(ctx context.Context, operatorID string) (*models.Operator, error) {
	operator := &models.Operator{}

	query := r.client.Session.Query(`
        SELECT operator_id, email_hash, email_encrypted, email_key_id,
               role, cameras, status, created_at, created_by
        FROM operators WHERE operator_id = ?`, operatorID).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&operator.OperatorID, &operator.EmailHash, &operator.EmailEncrypted, &operator.EmailKeyID,
		&operator.Role, &operator.Cameras, &operator.Status, &operator.CreatedAt, &operator.CreatedBy)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrOperatorNotFound
		}
		return nil, fmt.Errorf("failed to get operator by id: %w", err)
	}

	if len(operator.EmailEncrypted) > 0 {
		email, err := r.encryptionMgr.DecryptField(ctx, operator.EmailEncrypted)
		if err != nil {
			util.Error("Failed to decrypt operator email",
				zap.String("operator_id", operatorID),
				zap.Error(err))
		} else {
			operator.Email = email
		}
	}
	return operator, nil
}

func (r *operatorRepository) GetIDByEmail(ctx context.Context, email string) (string, error) {
	var operatorID string

	query := r.client.Session.Query(`
        SELECT operator_id FROM email_to_operator WHERE email_hash = ?`,
		EmailHash(email)).WithContext(ctx)

	if err := r.client.ScanWithRetry(query, &operatorID); err != nil {
		if err == gocql.ErrNotFound {
			return "", ErrOperatorNotFound
		}
		return "", fmt.Errorf("failed to look up operator by email: %w", err)
	}
	return operatorID, nil
}

func (r *operatorRepository) UpdateStatus(ctx context.Context, operatorID, status string) error {
	err := r.client.Session.Query(`
        UPDATE operators SET status = ? WHERE operator_id = ?`,
		status, operatorID).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to update operator status: %w", err)
	}

	util.Info("Operator status updated",
		zap.String("operator_id", operatorID),
		zap.String("status", status))
	return nil
}

func (r *operatorRepository) ReplaceCameras(ctx context.Context, operatorID string, cameras []string) error {
	err := r.client.Session.Query(`
        UPDATE operators SET cameras = ? WHERE operator_id = ?`,
		cameras, operatorID).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to replace operator cameras: %w", err)
	}

	util.Info("Operator cameras replaced",
		zap.String("operator_id", operatorID),
		zap.Int("cameras", len(cameras)))
	return nil
}
