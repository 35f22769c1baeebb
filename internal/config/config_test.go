package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Environment: "development",
		Secret:      strings.Repeat("s", 48),
		Auth: AuthConfig{
			OTPTTL:         10 * time.Minute,
			SessionTTL:     24 * time.Hour,
			MaxOTPAttempts: 5,
		},
		Export: ExportConfig{
			DefaultTTL: 10 * time.Minute,
			MinTTL:     time.Minute,
			MaxTTL:     time.Hour,
			MaxUses:    1,
		},
		Consent: ConsentConfig{
			RequiredVersions: map[string]string{"terms": "2025-01", "privacy": "2025-01"},
		},
		Mailer: MailerConfig{Mode: "null"},
	}
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidate_ShortSecret(t *testing.T) {
	cfg := validConfig()
	cfg.Secret = "short"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestValidate_DevOTPRefusedInProduction(t *testing.T) {
	cfg := validConfig()
	cfg.Environment = "production"
	cfg.Auth.DevExposeOTP = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error: dev OTP echo must not boot in production")
	}

	cfg.Environment = "development"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("dev OTP echo should be allowed outside production: %v", err)
	}
}

func TestValidate_SMTPRequiresHost(t *testing.T) {
	cfg := validConfig()
	cfg.Mailer.Mode = "smtp"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for smtp mode without host")
	}
	cfg.Mailer.SMTPHost = "mail.example.com"
	cfg.Mailer.From = "no-reply@example.com"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("smtp mode with host should validate: %v", err)
	}
}

func TestValidate_UnknownMailerMode(t *testing.T) {
	cfg := validConfig()
	cfg.Mailer.Mode = "carrier-pigeon"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown mailer mode")
	}
}

func TestValidate_ExportBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Export.MaxUses = 4
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for max uses out of range")
	}

	cfg = validConfig()
	cfg.Export.MaxTTL = time.Second
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for max TTL below min TTL")
	}
}
