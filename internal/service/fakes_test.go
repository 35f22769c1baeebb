package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"carhistory/internal/audit"
	"carhistory/internal/config"
	"carhistory/internal/models"
	"carhistory/internal/repository/scylla"
)

// In-memory repository fakes with the same conditional-update semantics as
// the Scylla implementations.

type fakeUserRepo struct {
	mu      sync.Mutex
	byID    map[string]*models.User
	byEmail map[string]string
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: map[string]*models.User{}, byEmail: map[string]string{}}
}

func (f *fakeUserRepo) UpsertByEmailHash(ctx context.Context, emailHMAC string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.byEmail[emailHMAC]; ok {
		u := *f.byID[id]
		return &u, nil
	}
	u := &models.User{
		UserID:    uuid.New().String(),
		EmailHMAC: emailHMAC,
		Role:      models.RoleUser,
		Status:    models.UserStatusActive,
	}
	f.byID[u.UserID] = u
	f.byEmail[emailHMAC] = u.UserID
	out := *u
	return &out, nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, userID string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return nil, scylla.ErrNotFound
	}
	out := *u
	return &out, nil
}

func (f *fakeUserRepo) GetByEmailHash(ctx context.Context, emailHMAC string) (*models.User, error) {
	f.mu.Lock()
	id, ok := f.byEmail[emailHMAC]
	f.mu.Unlock()
	if !ok {
		return nil, scylla.ErrNotFound
	}
	return f.GetByID(ctx, id)
}

func (f *fakeUserRepo) UpdateRole(ctx context.Context, userID, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return scylla.ErrNotFound
	}
	u.Role = role
	return nil
}

type fakeChallengeRepo struct {
	mu         sync.Mutex
	challenges map[string]*models.Challenge
}

func newFakeChallengeRepo() *fakeChallengeRepo {
	return &fakeChallengeRepo{challenges: map[string]*models.Challenge{}}
}

func (f *fakeChallengeRepo) Create(ctx context.Context, ch *models.Challenge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *ch
	f.challenges[ch.ChallengeID] = &cp
	return nil
}

func (f *fakeChallengeRepo) Get(ctx context.Context, challengeID string) (*models.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.challenges[challengeID]
	if !ok {
		return nil, scylla.ErrNotFound
	}
	cp := *ch
	return &cp, nil
}

func (f *fakeChallengeRepo) IncrementAttempts(ctx context.Context, challengeID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.challenges[challengeID]
	if !ok {
		return 0, scylla.ErrNotFound
	}
	ch.Attempts++
	return ch.Attempts, nil
}

func (f *fakeChallengeRepo) MarkUsed(ctx context.Context, challengeID string, usedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.challenges[challengeID]
	if !ok {
		return false, scylla.ErrNotFound
	}
	if ch.UsedAt != nil {
		return false, nil
	}
	ch.UsedAt = &usedAt
	return true, nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[string]*models.Session{}}
}

func (f *fakeSessionRepo) Create(ctx context.Context, s *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[s.TokenHash]; ok {
		return errors.New("token collision")
	}
	cp := *s
	f.sessions[s.TokenHash] = &cp
	return nil
}

func (f *fakeSessionRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[tokenHash]
	if !ok {
		return nil, scylla.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionRepo) Revoke(ctx context.Context, tokenHash string, revokedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[tokenHash]
	if !ok {
		return false, scylla.ErrNotFound
	}
	if s.RevokedAt != nil {
		return false, nil
	}
	s.RevokedAt = &revokedAt
	return true, nil
}

type fakeConsentRepo struct {
	mu       sync.Mutex
	consents []*models.Consent
}

func newFakeConsentRepo() *fakeConsentRepo { return &fakeConsentRepo{} }

func (f *fakeConsentRepo) Record(ctx context.Context, c *models.Consent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.consents = append(f.consents, &cp)
	return nil
}

type fakeGrantRepo struct {
	mu     sync.Mutex
	grants map[string]*models.ExportGrant
}

func newFakeGrantRepo() *fakeGrantRepo {
	return &fakeGrantRepo{grants: map[string]*models.ExportGrant{}}
}

func grantKey(resourceType, resourceID, tokenHMAC string) string {
	return resourceType + "|" + resourceID + "|" + tokenHMAC
}

func (f *fakeGrantRepo) Create(ctx context.Context, g *models.ExportGrant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *g
	f.grants[grantKey(g.ResourceType, g.ResourceID, g.TokenHMAC)] = &cp
	return nil
}

func (f *fakeGrantRepo) GetByToken(ctx context.Context, resourceType, resourceID, tokenHMAC string) (*models.ExportGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.grants[grantKey(resourceType, resourceID, tokenHMAC)]
	if !ok {
		return nil, scylla.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (f *fakeGrantRepo) ConsumeUse(ctx context.Context, g *models.ExportGrant) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.grants[grantKey(g.ResourceType, g.ResourceID, g.TokenHMAC)]
	if !ok {
		return false, scylla.ErrNotFound
	}
	if stored.RemainingUses <= 0 {
		return false, nil
	}
	stored.RemainingUses--
	return true, nil
}

type fakeVehicleRepo struct {
	mu       sync.Mutex
	vehicles map[string]*models.Vehicle
}

func newFakeVehicleRepo() *fakeVehicleRepo {
	return &fakeVehicleRepo{vehicles: map[string]*models.Vehicle{}}
}

func (f *fakeVehicleRepo) Get(ctx context.Context, vehicleID string) (*models.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vehicles[vehicleID]
	if !ok {
		return nil, scylla.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (f *fakeVehicleRepo) Put(ctx context.Context, v *models.Vehicle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *v
	f.vehicles[v.VehicleID] = &cp
	return nil
}

// fakeCounterStore is a window-aware in-memory counter, same contract as the
// Redis implementation.
type fakeCounterStore struct {
	mu       sync.Mutex
	counts   map[string]int64
	failWith error
}

func newFakeCounterStore() *fakeCounterStore {
	return &fakeCounterStore{counts: map[string]int64{}}
}

func (f *fakeCounterStore) Increment(ctx context.Context, operation, hashedIdent string, window time.Duration) (int64, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := operation + ":" + hashedIdent
	f.counts[key]++
	return f.counts[key], nil
}

type fakeTrail struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (f *fakeTrail) Record(ctx context.Context, e audit.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeTrail) lastAction() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.entries) == 0 {
		return ""
	}
	return f.entries[len(f.entries)-1].Action
}

func (f *fakeTrail) count(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.entries {
		if e.Action == action {
			n++
		}
	}
	return n
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeMailer) SendOTP(email, otp string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, otp)
	return nil
}

func (f *fakeMailer) lastOTP() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Secret:      "0123456789abcdef0123456789abcdef",
		Auth: config.AuthConfig{
			OTPTTL:            10 * time.Minute,
			SessionTTL:        24 * time.Hour,
			MaxOTPAttempts:    5,
			RateWindow:        time.Minute,
			RequestEmailLimit: 5,
			RequestIPLimit:    20,
			VerifyIPLimit:     30,
		},
		Export: config.ExportConfig{
			DefaultTTL: 10 * time.Minute,
			MinTTL:     time.Minute,
			MaxTTL:     time.Hour,
			MaxUses:    3,
		},
		Consent: config.ConsentConfig{
			RequiredVersions: map[string]string{
				"terms":   "2025-01",
				"privacy": "2025-01",
			},
		},
	}
}
