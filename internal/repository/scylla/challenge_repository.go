package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"carhistory/internal/models"
)

const attemptsCASRetries = 3

type challengeRepository struct {
	client *ScyllaClient
}

func NewChallengeRepository(client *ScyllaClient) ChallengeRepository {
	return &challengeRepository{client: client}
}

func (r *challengeRepository) Create(ctx context.Context, ch *models.Challenge) error {
	if err := r.client.Session.Query(`
		INSERT INTO challenges (challenge_id, email_hmac, ua_hmac, otp_hash, attempts, created_at, expires_at, used_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, null)`,
		ch.ChallengeID, ch.EmailHMAC, ch.UAHMAC, ch.OTPHash, ch.CreatedAt, ch.ExpiresAt).
		WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to create challenge: %w", err)
	}
	return nil
}

func (r *challengeRepository) Get(ctx context.Context, challengeID string) (*models.Challenge, error) {
	ch := &models.Challenge{}
	var usedAt time.Time
	err := r.client.Session.Query(`
		SELECT challenge_id, email_hmac, ua_hmac, otp_hash, attempts, created_at, expires_at, used_at
		FROM challenges WHERE challenge_id = ?`,
		challengeID).
		WithContext(ctx).Scan(
		&ch.ChallengeID, &ch.EmailHMAC, &ch.UAHMAC, &ch.OTPHash, &ch.Attempts,
		&ch.CreatedAt, &ch.ExpiresAt, &usedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}
	if !usedAt.IsZero() {
		ch.UsedAt = &usedAt
	}
	return ch, nil
}

// IncrementAttempts bumps the attempt counter with a compare-and-set, so a
// concurrent increment never loses an update. Returns the new count.
func (r *challengeRepository) IncrementAttempts(ctx context.Context, challengeID string) (int, error) {
	ch, err := r.Get(ctx, challengeID)
	if err != nil {
		return 0, err
	}
	current := ch.Attempts

	for i := 0; i < attemptsCASRetries; i++ {
		var existing int
		applied, err := r.client.Session.Query(`
			UPDATE challenges SET attempts = ? WHERE challenge_id = ? IF attempts = ?`,
			current+1, challengeID, current).
			WithContext(ctx).ScanCAS(&existing)
		if err != nil {
			return 0, fmt.Errorf("failed to increment attempts: %w", err)
		}
		if applied {
			return current + 1, nil
		}
		current = existing
	}
	// Lost the race repeatedly; the counter still only ever moved up.
	return current, nil
}

// MarkUsed performs the single allowed used_at transition. Returns false if
// the challenge was already consumed by a concurrent verify.
func (r *challengeRepository) MarkUsed(ctx context.Context, challengeID string, usedAt time.Time) (bool, error) {
	var existing time.Time
	applied, err := r.client.Session.Query(`
		UPDATE challenges SET used_at = ? WHERE challenge_id = ? IF used_at = null`,
		usedAt, challengeID).
		WithContext(ctx).ScanCAS(&existing)
	if err != nil {
		return false, fmt.Errorf("failed to mark challenge used: %w", err)
	}
	return applied, nil
}
