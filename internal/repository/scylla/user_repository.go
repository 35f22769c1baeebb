package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"carhistory/internal/bucketing"
	"carhistory/internal/models"
	"carhistory/internal/util"
)

type userRepository struct {
	client    *ScyllaClient
	bucketing *bucketing.BucketingManager
}

func NewUserRepository(client *ScyllaClient, bm *bucketing.BucketingManager) UserRepository {
	return &userRepository{client: client, bucketing: bm}
}

// UpsertByEmailHash inserts a user for a previously unseen email hash, or
// returns the existing one. Uniqueness of email_hmac is enforced by the
// conditional insert into the mapping table, not by caller discipline.
func (r *userRepository) UpsertByEmailHash(ctx context.Context, emailHMAC string) (*models.User, error) {
	userID := uuid.New().String()
	bucket := r.bucketing.GetUserBucket(userID)
	now := time.Now().UTC()

	previous := make(map[string]interface{})
	applied, err := r.client.Session.Query(`
		INSERT INTO email_to_user (email_hmac, user_bucket, user_id, created_at)
		VALUES (?, ?, ?, ?) IF NOT EXISTS`,
		emailHMAC, bucket, userID, now).
		WithContext(ctx).MapScanCAS(previous)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert email mapping: %w", err)
	}

	if !applied {
		existingID, _ := previous["user_id"].(string)
		if existingID == "" {
			return nil, fmt.Errorf("email mapping exists without user_id")
		}
		return r.GetByID(ctx, existingID)
	}

	user := &models.User{
		UserBucket: bucket,
		UserID:     userID,
		EmailHMAC:  emailHMAC,
		Role:       models.RoleUser,
		Status:     models.UserStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := r.client.Session.Query(`
		INSERT INTO users (user_bucket, user_id, email_hmac, role, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.UserBucket, user.UserID, user.EmailHMAC, user.Role, user.Status,
		user.CreatedAt, user.UpdatedAt).
		WithContext(ctx).Exec(); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	util.Info("User created",
		zap.String("user_id", user.UserID),
		zap.Int("user_bucket", user.UserBucket))

	return user, nil
}

func (r *userRepository) GetByID(ctx context.Context, userID string) (*models.User, error) {
	bucket := r.bucketing.GetUserBucket(userID)

	user := &models.User{}
	err := r.client.Session.Query(`
		SELECT user_bucket, user_id, email_hmac, role, status, created_at, updated_at
		FROM users WHERE user_bucket = ? AND user_id = ?`,
		bucket, userID).
		WithContext(ctx).Scan(
		&user.UserBucket, &user.UserID, &user.EmailHMAC, &user.Role,
		&user.Status, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (r *userRepository) GetByEmailHash(ctx context.Context, emailHMAC string) (*models.User, error) {
	var userID string
	var bucket int
	err := r.client.Session.Query(`
		SELECT user_bucket, user_id FROM email_to_user WHERE email_hmac = ?`,
		emailHMAC).
		WithContext(ctx).Scan(&bucket, &userID)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve email hash: %w", err)
	}
	return r.GetByID(ctx, userID)
}

func (r *userRepository) UpdateRole(ctx context.Context, userID, role string) error {
	bucket := r.bucketing.GetUserBucket(userID)

	if err := r.client.Session.Query(`
		UPDATE users SET role = ?, updated_at = ? WHERE user_bucket = ? AND user_id = ?`,
		role, time.Now().UTC(), bucket, userID).
		WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	util.Info("User role updated",
		zap.String("user_id", userID),
		zap.String("role", role))

	return nil
}
