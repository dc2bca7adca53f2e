package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"incident-console/internal/config"
	"incident-console/internal/util"
)

// ScyllaClient owns the session shared by the operator, incident and
// audit repositories.
//
// Expected schema:
//
//	operators         (operator_id text PRIMARY KEY, email_hash text,
//	                   email_encrypted blob, email_key_id text, role text,
//	                   cameras set<text>, status text, created_at timestamp,
//	                   created_by text)
//	email_to_operator (email_hash text PRIMARY KEY, operator_id text,
//	                   created_at timestamp)
//	incidents         (incident_id text PRIMARY KEY, camera_id text,
//	                   severity text, threat_level text, confidence double,
//	                   confirmations int, description text,
//	                   created_at timestamp, updated_at timestamp,
//	                   escalated_at timestamp, escalation_reason text)
//	operator_logs     (log_bucket int, day text, created_at timestamp,
//	                   record_id text, operator_id text, operator_email text,
//	                   action text, description text, camera_id text,
//	                   ip_address text, metadata map<text,text>,
//	                   PRIMARY KEY ((log_bucket, day), created_at, record_id))
type ScyllaClient struct {
	Session *gocql.Session
	config  *config.ScyllaConfig
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	util.Info("ScyllaDB client initialized",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}, nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

// ScanWithRetry re-runs a read a few times with a short linear backoff.
// Reads are always safe to repeat.
func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if err := query.Scan(dest...); err != nil {
			lastErr = err
			if err == gocql.ErrNotFound {
				return err
			}
			if i < 2 {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}
