package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carhistory/internal/audit"
	"carhistory/internal/config"
	"carhistory/internal/hashing"
	"carhistory/internal/mailer"
	"carhistory/internal/models"
	"carhistory/internal/ratelimit"
	"carhistory/internal/repository/scylla"
)

var (
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrInvalid         = errors.New("challenge invalid")
	ErrExpired         = errors.New("challenge expired")
	ErrLocked          = errors.New("challenge locked")
	ErrConsentRequired = errors.New("consent required")
	ErrSessionInvalid  = errors.New("session invalid")
)

// rate limit operation names, also the Redis key prefix
const (
	opAuthRequestEmail = "auth_request_email"
	opAuthRequestIP    = "auth_request_ip"
	opAuthVerifyIP     = "auth_verify_ip"
)

type ChallengeRequest struct {
	Email     string
	IP        string
	UserAgent string
	RequestID string
}

type ChallengeResult struct {
	ChallengeID string
	// DevOTP is set only when AUTH_DEV_EXPOSE_OTP is enabled outside
	// production.
	DevOTP string
}

type VerifyRequest struct {
	ChallengeID string
	OTP         string
	Email       string
	IP          string
	UserAgent   string
	RequestID   string
	// ConsentVersions maps accepted doc types to the version the caller
	// accepted, e.g. {"terms": "2025-01"}.
	ConsentVersions map[string]string
}

type VerifyResult struct {
	Token     string
	ExpiresAt time.Time
	Actor     models.Actor
}

// AuthService implements the OTP challenge and session lifecycle.
type AuthService struct {
	cfg        *config.Config
	hasher     *hashing.Hasher
	limiter    *ratelimit.Limiter
	users      scylla.UserRepository
	challenges scylla.ChallengeRepository
	sessions   scylla.SessionRepository
	consents   scylla.ConsentRepository
	mailer     mailer.Mailer
	trail      audit.Recorder
	logger     *zap.Logger
	now        func() time.Time
}

func NewAuthService(
	cfg *config.Config,
	hasher *hashing.Hasher,
	limiter *ratelimit.Limiter,
	users scylla.UserRepository,
	challenges scylla.ChallengeRepository,
	sessions scylla.SessionRepository,
	consents scylla.ConsentRepository,
	m mailer.Mailer,
	trail audit.Recorder,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		cfg:        cfg,
		hasher:     hasher,
		limiter:    limiter,
		users:      users,
		challenges: challenges,
		sessions:   sessions,
		consents:   consents,
		mailer:     m,
		trail:      trail,
		logger:     logger,
		now:        time.Now,
	}
}

// RequestChallenge mints an OTP challenge for an email address. The response
// shape is identical whether or not the address maps to an account and
// whether or not a limit tripped, so the endpoint cannot be used to probe
// for registered addresses. Rate-limited callers get a decoy challenge id
// that no verify can ever match.
func (s *AuthService) RequestChallenge(ctx context.Context, req ChallengeRequest) (*ChallengeResult, error) {
	normalized := hashing.NormalizeIdentity(req.Email)
	emailHMAC := s.hasher.Derive("email", normalized)
	ipHMAC := s.hasher.Derive("ip", req.IP)

	emailOK := s.limiter.Allow(ctx, opAuthRequestEmail, emailHMAC, s.cfg.Auth.RateWindow, s.cfg.Auth.RequestEmailLimit)
	ipOK := s.limiter.Allow(ctx, opAuthRequestIP, ipHMAC, s.cfg.Auth.RateWindow, s.cfg.Auth.RequestIPLimit)
	if !emailOK || !ipOK {
		_ = s.trail.Record(ctx, audit.Entry{
			Action:     models.ActionChallengeRateLimited,
			Result:     models.ResultDenied,
			ReasonCode: models.ReasonRateLimit,
			RequestID:  req.RequestID,
			Metadata:   map[string]any{"by_identity": !emailOK, "by_ip": !ipOK},
		})
		return &ChallengeResult{ChallengeID: uuid.New().String()}, nil
	}

	user, err := s.users.UpsertByEmailHash(ctx, emailHMAC)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve account: %w", err)
	}

	otp, err := hashing.RandomOTP()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	challengeID := uuid.New().String()
	ch := &models.Challenge{
		ChallengeID: challengeID,
		EmailHMAC:   emailHMAC,
		UAHMAC:      s.hasher.Derive("ua", req.UserAgent),
		OTPHash:     s.hasher.OTPHash(otp, challengeID),
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.Auth.OTPTTL),
	}
	if err := s.challenges.Create(ctx, ch); err != nil {
		return nil, fmt.Errorf("failed to create challenge: %w", err)
	}

	_ = s.trail.Record(ctx, audit.Entry{
		Action:      models.ActionChallengeCreated,
		Result:      models.ResultSuccess,
		ActorUserID: user.UserID,
		TargetID:    ch.ChallengeID,
		RequestID:   req.RequestID,
	})

	// Delivery happens after the challenge is durable. A mail outage must
	// not roll back the challenge or distinguish the response.
	if err := s.mailer.SendOTP(req.Email, otp); err != nil {
		_ = s.trail.Record(ctx, audit.Entry{
			Action:      models.ActionChallengeDeliveryFailed,
			Result:      models.ResultError,
			ActorUserID: user.UserID,
			TargetID:    ch.ChallengeID,
			ReasonCode:  models.ReasonDeliveryFailed,
			RequestID:   req.RequestID,
		})
	}

	result := &ChallengeResult{ChallengeID: ch.ChallengeID}
	if s.cfg.Auth.DevExposeOTP {
		result.DevOTP = otp
	}
	return result, nil
}

// VerifyChallenge checks an OTP against a challenge and, when everything
// holds, consumes the challenge and mints a bearer session. Checks run
// cheapest-reject first; the attempt counter moves only on a hash mismatch.
func (s *AuthService) VerifyChallenge(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	ipHMAC := s.hasher.Derive("ip", req.IP)
	if !s.limiter.Allow(ctx, opAuthVerifyIP, ipHMAC, s.cfg.Auth.RateWindow, s.cfg.Auth.VerifyIPLimit) {
		s.auditVerifyFailed(ctx, req, "", models.ReasonRateLimit)
		return nil, ErrRateLimited
	}

	normalized := hashing.NormalizeIdentity(req.Email)
	emailHMAC := s.hasher.Derive("email", normalized)
	user, err := s.users.GetByEmailHash(ctx, emailHMAC)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			s.auditVerifyFailed(ctx, req, "", models.ReasonInvalid)
			return nil, ErrInvalid
		}
		return nil, err
	}
	if user.Status != models.UserStatusActive {
		s.auditVerifyFailed(ctx, req, user.UserID, models.ReasonInvalid)
		return nil, ErrInvalid
	}

	ch, err := s.challenges.Get(ctx, req.ChallengeID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			s.auditVerifyFailed(ctx, req, user.UserID, models.ReasonInvalid)
			return nil, ErrInvalid
		}
		return nil, err
	}
	// The challenge is bound to the identity it was minted for.
	if ch.EmailHMAC != emailHMAC {
		s.auditVerifyFailed(ctx, req, user.UserID, models.ReasonInvalid)
		return nil, ErrInvalid
	}
	if ch.Used() {
		s.auditVerifyFailed(ctx, req, user.UserID, models.ReasonInvalid)
		return nil, ErrInvalid
	}
	now := s.now().UTC()
	if ch.Expired(now) {
		s.auditVerifyFailed(ctx, req, user.UserID, models.ReasonExpired)
		return nil, ErrExpired
	}
	if ch.Attempts >= s.cfg.Auth.MaxOTPAttempts {
		s.auditVerifyFailed(ctx, req, user.UserID, models.ReasonLocked)
		return nil, ErrLocked
	}

	if !s.hasher.VerifyOTPHash(req.OTP, ch.ChallengeID, ch.OTPHash) {
		attempts, incErr := s.challenges.IncrementAttempts(ctx, ch.ChallengeID)
		if incErr != nil {
			s.logger.Error("failed to increment challenge attempts",
				zap.String("challenge_id", ch.ChallengeID), zap.Error(incErr))
		}
		reason := models.ReasonInvalid
		if attempts >= s.cfg.Auth.MaxOTPAttempts {
			reason = models.ReasonLocked
		}
		s.auditVerifyFailed(ctx, req, user.UserID, reason)
		return nil, ErrInvalid
	}

	// The OTP is correct but a session only exists behind current consent.
	for docType, required := range s.cfg.Consent.RequiredVersions {
		accepted, ok := req.ConsentVersions[docType]
		if !ok {
			s.auditVerifyFailed(ctx, req, user.UserID, models.ReasonConsentMissing)
			return nil, ErrConsentRequired
		}
		if accepted != required {
			s.auditVerifyFailed(ctx, req, user.UserID, models.ReasonConsentVersionMismatch)
			return nil, ErrConsentRequired
		}
	}
	for docType, required := range s.cfg.Consent.RequiredVersions {
		consent := &models.Consent{
			UserID:     user.UserID,
			DocType:    docType,
			Version:    required,
			IPHMAC:     ipHMAC,
			UAHMAC:     s.hasher.Derive("ua", req.UserAgent),
			AcceptedAt: now,
		}
		if err := s.consents.Record(ctx, consent); err != nil {
			return nil, fmt.Errorf("failed to record consent: %w", err)
		}
	}

	applied, err := s.challenges.MarkUsed(ctx, ch.ChallengeID, now)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Lost a replay race; the concurrent verify got the session.
		s.auditVerifyFailed(ctx, req, user.UserID, models.ReasonInvalid)
		return nil, ErrInvalid
	}

	token, err := hashing.RandomToken()
	if err != nil {
		return nil, err
	}
	session := &models.Session{
		TokenHash: s.hasher.Derive("session", token),
		SessionID: uuid.New().String(),
		UserID:    user.UserID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.Auth.SessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	_ = s.trail.Record(ctx, audit.Entry{
		Action:      models.ActionSessionCreated,
		Result:      models.ResultSuccess,
		ActorUserID: user.UserID,
		TargetID:    session.SessionID,
		RequestID:   req.RequestID,
		Metadata:    map[string]any{"challenge_id": ch.ChallengeID},
	})

	return &VerifyResult{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
		Actor:     models.Actor{UserID: user.UserID, Role: user.Role},
	}, nil
}

// ResolveSession maps a bearer token to the acting identity. The role is
// re-read from the account on every call so a role change takes effect on
// the next request, not at the next login.
func (s *AuthService) ResolveSession(ctx context.Context, token string) (*models.Actor, error) {
	session, err := s.sessions.GetByTokenHash(ctx, s.hasher.Derive("session", token))
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, err
	}
	if !session.Valid(s.now().UTC()) {
		return nil, ErrSessionInvalid
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, err
	}
	if user.Status != models.UserStatusActive {
		return nil, ErrSessionInvalid
	}
	return &models.Actor{UserID: user.UserID, Role: user.Role}, nil
}

// Logout revokes the session behind the token. Revoking an unknown or
// already revoked token succeeds; logout is idempotent.
func (s *AuthService) Logout(ctx context.Context, token, requestID string) error {
	tokenHash := s.hasher.Derive("session", token)
	session, err := s.sessions.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil
		}
		return err
	}

	applied, err := s.sessions.Revoke(ctx, tokenHash, s.now().UTC())
	if err != nil {
		return err
	}
	if applied {
		_ = s.trail.Record(ctx, audit.Entry{
			Action:      models.ActionSessionRevoked,
			Result:      models.ResultSuccess,
			ActorUserID: session.UserID,
			TargetID:    session.SessionID,
			RequestID:   requestID,
		})
	}
	return nil
}

func (s *AuthService) auditVerifyFailed(ctx context.Context, req VerifyRequest, actorUserID, reason string) {
	_ = s.trail.Record(ctx, audit.Entry{
		Action:      models.ActionChallengeVerifyFailed,
		Result:      models.ResultDenied,
		ActorUserID: actorUserID,
		TargetID:    req.ChallengeID,
		ReasonCode:  reason,
		RequestID:   req.RequestID,
	})
}
