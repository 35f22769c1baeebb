package config

import (
	"fmt"
	"strings"
	"time"

	"carhistory/internal/util"

	"github.com/joho/godotenv"
)

const minSecretLength = 32

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ClickhouseConfig struct {
	Enabled  bool
	Addr     string
	Database string
	Username string
	Password string
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type AuthConfig struct {
	OTPTTL            time.Duration
	SessionTTL        time.Duration
	MaxOTPAttempts    int
	RateWindow        time.Duration
	RequestEmailLimit int
	RequestIPLimit    int
	VerifyIPLimit     int
	// DevExposeOTP echoes the OTP in /auth/request responses. Local testing
	// only; Validate refuses to start with it set in production.
	DevExposeOTP bool
}

type ExportConfig struct {
	DefaultTTL time.Duration
	MinTTL     time.Duration
	MaxTTL     time.Duration
	MaxUses    int
}

type ConsentConfig struct {
	// Required document type -> currently required version.
	RequiredVersions map[string]string
}

type MailerConfig struct {
	Mode     string // "null" or "smtp"
	SMTPHost string
	SMTPPort int
	Username string
	Password string
	From     string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type BucketingConfig struct {
	UserBuckets  int
	EventBuckets int
}

type Config struct {
	Environment string
	Secret      string
	Server      ServerConfig
	Scylla      ScyllaConfig
	Redis       RedisConfig
	Clickhouse  ClickhouseConfig
	Kafka       KafkaConfig
	KMS         KMSConfig
	Auth        AuthConfig
	Export      ExportConfig
	Consent     ConsentConfig
	Mailer      MailerConfig
	Logging     LoggingConfig
	Bucketing   BucketingConfig
}

// LoadConfig reads configuration from the environment. A .env file is loaded
// first when present so local development does not need exported variables.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Environment: util.GetEnv("ENVIRONMENT", "development"),
		Secret:      util.GetEnv("APP_SECRET", ""),
		Server: ServerConfig{
			Port:         util.GetEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  util.GetEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: util.GetEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  util.GetEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Scylla: ScyllaConfig{
			Nodes:    util.GetEnvSlice("SCYLLA_NODES", []string{"127.0.0.1:9042"}),
			Keyspace: util.GetEnv("SCYLLA_KEYSPACE", "carhistory"),
			Username: util.GetEnv("SCYLLA_USERNAME", ""),
			Password: util.GetEnv("SCYLLA_PASSWORD", ""),
		},
		Redis: RedisConfig{
			Addr:     util.GetEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: util.GetEnv("REDIS_PASSWORD", ""),
			DB:       util.GetEnvInt("REDIS_DB", 0),
		},
		Clickhouse: ClickhouseConfig{
			Enabled:  util.GetEnvBool("CLICKHOUSE_ENABLED", false),
			Addr:     util.GetEnv("CLICKHOUSE_ADDR", "127.0.0.1:9000"),
			Database: util.GetEnv("CLICKHOUSE_DATABASE", "carhistory"),
			Username: util.GetEnv("CLICKHOUSE_USERNAME", "default"),
			Password: util.GetEnv("CLICKHOUSE_PASSWORD", ""),
		},
		Kafka: KafkaConfig{
			Enabled: util.GetEnvBool("KAFKA_ENABLED", false),
			Brokers: util.GetEnvSlice("KAFKA_BROKERS", []string{"127.0.0.1:9092"}),
			Topic:   util.GetEnv("KAFKA_AUDIT_TOPIC", "audit-events"),
		},
		KMS: KMSConfig{
			Enabled: util.GetEnvBool("KMS_ENABLED", false),
			KeyID:   util.GetEnv("KMS_KEY_ID", ""),
			Region:  util.GetEnv("KMS_REGION", "us-east-1"),
		},
		Auth: AuthConfig{
			OTPTTL:            util.GetEnvDuration("AUTH_OTP_TTL", 10*time.Minute),
			SessionTTL:        util.GetEnvDuration("AUTH_SESSION_TTL", 24*time.Hour),
			MaxOTPAttempts:    util.GetEnvInt("AUTH_MAX_OTP_ATTEMPTS", 5),
			RateWindow:        util.GetEnvDuration("AUTH_RATE_WINDOW", time.Minute),
			RequestEmailLimit: util.GetEnvInt("AUTH_REQUEST_EMAIL_LIMIT", 5),
			RequestIPLimit:    util.GetEnvInt("AUTH_REQUEST_IP_LIMIT", 20),
			VerifyIPLimit:     util.GetEnvInt("AUTH_VERIFY_IP_LIMIT", 30),
			DevExposeOTP:      util.GetEnvBool("AUTH_DEV_EXPOSE_OTP", false),
		},
		Export: ExportConfig{
			DefaultTTL: util.GetEnvDuration("EXPORT_DEFAULT_TTL", 10*time.Minute),
			MinTTL:     util.GetEnvDuration("EXPORT_MIN_TTL", time.Minute),
			MaxTTL:     util.GetEnvDuration("EXPORT_MAX_TTL", time.Hour),
			MaxUses:    util.GetEnvInt("EXPORT_MAX_USES", 3),
		},
		Consent: ConsentConfig{
			RequiredVersions: map[string]string{
				"terms":   util.GetEnv("CONSENT_TERMS_VERSION", "2025-01"),
				"privacy": util.GetEnv("CONSENT_PRIVACY_VERSION", "2025-01"),
			},
		},
		Mailer: MailerConfig{
			Mode:     util.GetEnv("MAILER_MODE", "null"),
			SMTPHost: util.GetEnv("MAILER_SMTP_HOST", ""),
			SMTPPort: util.GetEnvInt("MAILER_SMTP_PORT", 587),
			Username: util.GetEnv("MAILER_SMTP_USERNAME", ""),
			Password: util.GetEnv("MAILER_SMTP_PASSWORD", ""),
			From:     util.GetEnv("MAILER_FROM", "no-reply@carhistory.local"),
		},
		Logging: LoggingConfig{
			Level:  util.GetEnv("LOG_LEVEL", "info"),
			Format: util.GetEnv("LOG_FORMAT", "json"),
		},
		Bucketing: BucketingConfig{
			UserBuckets:  util.GetEnvInt("BUCKETING_USER_BUCKETS", 64),
			EventBuckets: util.GetEnvInt("BUCKETING_EVENT_BUCKETS", 16),
		},
	}
}

// Validate enforces the startup invariants. The process refuses to boot on
// any violation instead of degrading.
func (c *Config) Validate() error {
	if len(c.Secret) < minSecretLength {
		return fmt.Errorf("APP_SECRET must be at least %d bytes, got %d", minSecretLength, len(c.Secret))
	}
	if c.IsProduction() && c.Auth.DevExposeOTP {
		return fmt.Errorf("AUTH_DEV_EXPOSE_OTP must not be enabled in production")
	}
	switch c.Mailer.Mode {
	case "null":
	case "smtp":
		if c.Mailer.SMTPHost == "" {
			return fmt.Errorf("MAILER_SMTP_HOST is required when MAILER_MODE=smtp")
		}
		if c.Mailer.From == "" {
			return fmt.Errorf("MAILER_FROM is required when MAILER_MODE=smtp")
		}
	default:
		return fmt.Errorf("unknown MAILER_MODE %q", c.Mailer.Mode)
	}
	if c.KMS.Enabled && c.KMS.KeyID == "" {
		return fmt.Errorf("KMS_KEY_ID is required when KMS_ENABLED=true")
	}
	if c.Export.MinTTL <= 0 || c.Export.MaxTTL < c.Export.MinTTL {
		return fmt.Errorf("invalid export TTL bounds: min=%s max=%s", c.Export.MinTTL, c.Export.MaxTTL)
	}
	if c.Export.MaxUses < 1 || c.Export.MaxUses > 3 {
		return fmt.Errorf("EXPORT_MAX_USES must be within [1,3], got %d", c.Export.MaxUses)
	}
	for doc, version := range c.Consent.RequiredVersions {
		if strings.TrimSpace(version) == "" {
			return fmt.Errorf("consent version for %q must not be empty", doc)
		}
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
