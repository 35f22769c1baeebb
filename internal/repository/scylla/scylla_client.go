package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"carhistory/internal/config"
	"carhistory/internal/util"
)

// ErrNotFound is returned by repositories when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// Every table is independently creatable so a fresh keyspace boots without
// migrations. Hashed lookup keys are partition keys, which is the index.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_bucket int,
		user_id text,
		email_hmac text,
		role text,
		status text,
		created_at timestamp,
		updated_at timestamp,
		PRIMARY KEY ((user_bucket), user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS email_to_user (
		email_hmac text PRIMARY KEY,
		user_bucket int,
		user_id text,
		created_at timestamp
	)`,
	`CREATE TABLE IF NOT EXISTS challenges (
		challenge_id text PRIMARY KEY,
		email_hmac text,
		ua_hmac text,
		otp_hash text,
		attempts int,
		created_at timestamp,
		expires_at timestamp,
		used_at timestamp
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		token_hash text PRIMARY KEY,
		session_id text,
		user_id text,
		created_at timestamp,
		expires_at timestamp,
		revoked_at timestamp
	)`,
	`CREATE TABLE IF NOT EXISTS export_grants (
		resource_type text,
		resource_id text,
		token_hmac text,
		id text,
		issued_by_role text,
		issued_by_user_id text,
		expires_at timestamp,
		remaining_uses int,
		created_at timestamp,
		PRIMARY KEY ((resource_type, resource_id), token_hmac)
	)`,
	`CREATE TABLE IF NOT EXISTS consents (
		user_id text,
		doc_type text,
		version text,
		ip_hmac text,
		ua_hmac text,
		accepted_at timestamp,
		PRIMARY KEY ((user_id), doc_type)
	)`,
	`CREATE TABLE IF NOT EXISTS audit_events (
		event_bucket int,
		event_date text,
		event_id text,
		at timestamp,
		action text,
		result text,
		actor_user_id text,
		target_id text,
		reason_code text,
		request_id text,
		metadata text,
		PRIMARY KEY ((event_bucket, event_date), at, event_id)
	) WITH CLUSTERING ORDER BY (at DESC)`,
	`CREATE TABLE IF NOT EXISTS vehicles (
		vehicle_id text PRIMARY KEY,
		vin text,
		plate text,
		make text,
		model text,
		year int,
		mileage_km int,
		owner_email text,
		service_notes text,
		created_at timestamp,
		updated_at timestamp
	)`,
}

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

	return &ScyllaClient{Session: session, config: &scyllaConfig}, nil
}

// EnsureSchema creates every table if it does not exist. Safe to run on
// every startup.
func (s *ScyllaClient) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if err := s.Session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	util.Info("Scylla schema ensured", zap.Int("tables", len(schemaStatements)))
	return nil
}

func (s *ScyllaClient) HealthCheck(ctx context.Context) error {
	var release string
	if err := s.Session.Query(`SELECT release_version FROM system.local`).WithContext(ctx).Scan(&release); err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}
	return nil
}

func (s *ScyllaClient) Close() {
	s.Session.Close()
}
