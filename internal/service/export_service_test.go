package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"carhistory/internal/encryption"
	"carhistory/internal/hashing"
	"carhistory/internal/models"
	"carhistory/internal/redact"
)

type exportFixture struct {
	svc      *ExportService
	grants   *fakeGrantRepo
	vehicles *fakeVehicleRepo
	trail    *fakeTrail
	clock    *time.Time
	enc      *encryption.EncryptionManager
}

func newExportFixture(t *testing.T) *exportFixture {
	t.Helper()
	cfg := testConfig()
	hasher := hashing.NewHasher(cfg.Secret)

	f := &exportFixture{
		grants:   newFakeGrantRepo(),
		vehicles: newFakeVehicleRepo(),
		trail:    &fakeTrail{},
		enc:      encryption.NewEncryptionManager(cfg, nil),
	}
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	f.clock = &now

	f.svc = NewExportService(cfg, hasher, f.grants, f.vehicles,
		f.enc, redact.NewRedactor(hasher), f.trail, zap.NewNop())
	f.svc.now = func() time.Time { return *f.clock }

	f.vehicles.Put(context.Background(), &models.Vehicle{
		VehicleID:    "veh-1",
		VIN:          "1HGBH41JXMN109186",
		Plate:        "AB-123-CD",
		Make:         "Honda",
		Model:        "Civic",
		Year:         2019,
		MileageKM:    84000,
		OwnerEmail:   "owner@example.com",
		ServiceNotes: "timing belt replaced",
	})
	return f
}

var dealer = models.Actor{UserID: "dealer-1", Role: models.RoleDealer}

func TestIssueGrantClampsPolicy(t *testing.T) {
	f := newExportFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		ttl      time.Duration
		uses     int
		wantTTL  time.Duration
		wantUses int
	}{
		{"defaults", 0, 0, 10 * time.Minute, 1},
		{"below minimum ttl", 5 * time.Second, 1, time.Minute, 1},
		{"above maximum ttl", 48 * time.Hour, 1, time.Hour, 1},
		{"too many uses", 10 * time.Minute, 50, 10 * time.Minute, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := f.svc.IssueGrant(ctx, dealer, ResourceTypeVehicle, "veh-1", tt.ttl, tt.uses, "")
			if err != nil {
				t.Fatalf("IssueGrant: %v", err)
			}
			if got := g.ExpiresAt.Sub(*f.clock); got != tt.wantTTL {
				t.Errorf("ttl = %v, want %v", got, tt.wantTTL)
			}
			if g.RemainingUses != tt.wantUses {
				t.Errorf("uses = %d, want %d", g.RemainingUses, tt.wantUses)
			}
		})
	}
}

func TestIssueGrantUnknownResource(t *testing.T) {
	f := newExportFixture(t)
	if _, err := f.svc.IssueGrant(context.Background(), dealer, ResourceTypeVehicle, "veh-404", 0, 1, ""); !errors.Is(err, ErrResourceNotFound) {
		t.Fatalf("err = %v, want ErrResourceNotFound", err)
	}
}

func TestConsumeFullExportRoundTrip(t *testing.T) {
	f := newExportFixture(t)
	ctx := context.Background()
	g, err := f.svc.IssueGrant(ctx, dealer, ResourceTypeVehicle, "veh-1", 0, 1, "")
	if err != nil {
		t.Fatal(err)
	}

	payload, err := f.svc.ConsumeFullExport(ctx, dealer, ResourceTypeVehicle, "veh-1", g.Token, "")
	if err != nil {
		t.Fatalf("ConsumeFullExport: %v", err)
	}
	if strings.Contains(payload.Ciphertext, "owner@example.com") {
		t.Error("plaintext owner email in ciphertext")
	}

	plaintext, err := f.enc.DecryptExport(ctx, payload)
	if err != nil {
		t.Fatalf("DecryptExport: %v", err)
	}
	var row map[string]any
	if err := json.Unmarshal(plaintext, &row); err != nil {
		t.Fatal(err)
	}
	if row["owner_email"] != "owner@example.com" {
		t.Errorf("owner_email = %v, full export must carry the raw value", row["owner_email"])
	}
	if row["vin"] != "1HGBH41JXMN109186" {
		t.Errorf("vin = %v, full export must carry the raw value", row["vin"])
	}
}

func TestConsumeFullExportTokenFailures(t *testing.T) {
	f := newExportFixture(t)
	ctx := context.Background()
	g, err := f.svc.IssueGrant(ctx, dealer, ResourceTypeVehicle, "veh-1", 0, 1, "")
	if err != nil {
		t.Fatal(err)
	}

	t.Run("unknown token", func(t *testing.T) {
		if _, err := f.svc.ConsumeFullExport(ctx, dealer, ResourceTypeVehicle, "veh-1", "bogus-token", ""); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("err = %v, want ErrTokenInvalid", err)
		}
	})

	t.Run("exhausted token", func(t *testing.T) {
		if _, err := f.svc.ConsumeFullExport(ctx, dealer, ResourceTypeVehicle, "veh-1", g.Token, ""); err != nil {
			t.Fatalf("first consume: %v", err)
		}
		if _, err := f.svc.ConsumeFullExport(ctx, dealer, ResourceTypeVehicle, "veh-1", g.Token, ""); !errors.Is(err, ErrTokenUsed) {
			t.Fatalf("err = %v, want ErrTokenUsed", err)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		g2, err := f.svc.IssueGrant(ctx, dealer, ResourceTypeVehicle, "veh-1", time.Minute, 1, "")
		if err != nil {
			t.Fatal(err)
		}
		f.advanceClock(2 * time.Minute)
		if _, err := f.svc.ConsumeFullExport(ctx, dealer, ResourceTypeVehicle, "veh-1", g2.Token, ""); !errors.Is(err, ErrTokenExpired) {
			t.Fatalf("err = %v, want ErrTokenExpired", err)
		}
	})
}

func (f *exportFixture) advanceClock(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func TestConsumeFullExportFailureKeepsUse(t *testing.T) {
	f := newExportFixture(t)
	ctx := context.Background()
	g, err := f.svc.IssueGrant(ctx, dealer, ResourceTypeVehicle, "veh-1", 0, 1, "")
	if err != nil {
		t.Fatal(err)
	}

	f.vehicles.mu.Lock()
	row := f.vehicles.vehicles["veh-1"]
	delete(f.vehicles.vehicles, "veh-1")
	f.vehicles.mu.Unlock()

	if _, err := f.svc.ConsumeFullExport(ctx, dealer, ResourceTypeVehicle, "veh-1", g.Token, ""); !errors.Is(err, ErrResourceNotFound) {
		t.Fatalf("err = %v, want ErrResourceNotFound", err)
	}

	// The failed export must not have spent the use.
	f.vehicles.Put(ctx, row)
	if _, err := f.svc.ConsumeFullExport(ctx, dealer, ResourceTypeVehicle, "veh-1", g.Token, ""); err != nil {
		t.Fatalf("consume after restore: %v", err)
	}
}

func TestConsumeFullExportLastUseRace(t *testing.T) {
	f := newExportFixture(t)
	ctx := context.Background()
	g, err := f.svc.IssueGrant(ctx, dealer, ResourceTypeVehicle, "veh-1", 0, 1, "")
	if err != nil {
		t.Fatal(err)
	}

	const racers = 8
	var wg sync.WaitGroup
	results := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ConsumeFullExport(ctx, dealer, ResourceTypeVehicle, "veh-1", g.Token, "")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins int
	for err := range results {
		if err == nil {
			wins++
		} else if !errors.Is(err, ErrTokenUsed) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("winners = %d, want exactly 1", wins)
	}
}

func TestRedactedExport(t *testing.T) {
	f := newExportFixture(t)
	row, err := f.svc.RedactedExport(context.Background(), "veh-1")
	if err != nil {
		t.Fatalf("RedactedExport: %v", err)
	}

	if _, ok := row["owner_email"]; ok {
		t.Error("owner_email present in redacted export")
	}
	if row["vin"] == "1HGBH41JXMN109186" {
		t.Error("raw vin in redacted export")
	}
	if row["vin"] == nil || row["vin"] == "" {
		t.Error("vin dropped instead of pseudonymized")
	}
	if row[redact.MarkerKey] != true {
		t.Error("redaction marker missing")
	}
	if row["make"] != "Honda" {
		t.Errorf("make = %v, non-identifying fields must survive", row["make"])
	}
}
