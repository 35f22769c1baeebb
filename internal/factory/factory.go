package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"carhistory/internal/audit"
	"carhistory/internal/bucketing"
	"carhistory/internal/client"
	"carhistory/internal/config"
	"carhistory/internal/encryption"
	"carhistory/internal/handler"
	"carhistory/internal/hashing"
	"carhistory/internal/mailer"
	"carhistory/internal/ratelimit"
	"carhistory/internal/redact"
	"carhistory/internal/repository/redis"
	"carhistory/internal/repository/scylla"
	"carhistory/internal/service"
	"carhistory/internal/util"
)

// Factory builds and owns every application dependency. Redis and Scylla are
// required; ClickHouse, Kafka and KMS are optional and degrade to log-only
// warnings when absent.
type Factory struct {
	config *config.Config

	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	clickhouseClient *client.ClickHouseClient
	kmsClient        *kms.Client

	hasher            *hashing.Hasher
	encryptionManager *encryption.EncryptionManager
	bucketingManager  *bucketing.BucketingManager
	redactor          *redact.Redactor
	trail             *audit.Trail

	authService   *service.AuthService
	roleService   *service.RoleService
	exportService *service.ExportService

	closeOnce sync.Once
}

// NewFactory loads configuration, initializes clients and wires services.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	f := &Factory{config: cfg}

	if err := f.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	f.initializeManagers()
	f.initializeServices()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
		util.Bool("clickhouse_available", f.clickhouseClient != nil),
		util.Bool("kafka_available", f.kafkaProducer != nil),
	)
	return f, nil
}

// initializeClients connects the required stores and, best-effort, the
// optional ones. Required client health checks run in parallel.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	redisClient, err := client.NewRedisClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	f.redisClient = redisClient

	scyllaClient, err := scylla.NewScyllaClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("scylla: %w", err)
	}
	f.scyllaClient = scyllaClient

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := f.redisClient.HealthCheck(gctx); err != nil {
			return fmt.Errorf("redis health check: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := f.scyllaClient.HealthCheck(gctx); err != nil {
			return fmt.Errorf("scylla health check: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := f.scyllaClient.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("scylla schema: %w", err)
	}

	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
			util.Warn("Kafka producer initialization failed, audit publishing disabled", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
		}
	}

	if f.config.Clickhouse.Enabled {
		if chClient, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
			util.Warn("ClickHouse initialization failed, audit sink disabled", util.ErrorField(err))
		} else {
			f.clickhouseClient = chClient
		}
	}

	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			return fmt.Errorf("aws config: %w", err)
		}
		f.kmsClient = kms.NewFromConfig(awsCfg)
		util.Info("KMS client initialized", util.String("region", f.config.KMS.Region))
	}

	return nil
}

func (f *Factory) initializeManagers() {
	f.hasher = hashing.NewHasher(f.config.Secret)
	f.encryptionManager = encryption.NewEncryptionManager(f.config, f.kmsClient)
	f.bucketingManager = bucketing.NewBucketingManager(f.config)
	f.redactor = redact.NewRedactor(f.hasher)

	var sink audit.Sink
	if f.clickhouseClient != nil {
		sink = audit.NewClickHouseSink(f.clickhouseClient, "audit_events")
	}
	var publisher audit.Publisher
	if f.kafkaProducer != nil {
		publisher = audit.NewKafkaPublisher(f.kafkaProducer)
	}
	f.trail = audit.NewTrail(
		scylla.NewAuditEventRepository(f.scyllaClient),
		f.bucketingManager, sink, publisher, util.Get())
}

func (f *Factory) initializeServices() {
	users := scylla.NewUserRepository(f.scyllaClient, f.bucketingManager)
	challenges := scylla.NewChallengeRepository(f.scyllaClient)
	sessions := scylla.NewSessionRepository(f.scyllaClient)
	consents := scylla.NewConsentRepository(f.scyllaClient)
	grants := scylla.NewGrantRepository(f.scyllaClient)
	vehicles := scylla.NewVehicleRepository(f.scyllaClient)

	limiter := ratelimit.NewLimiter(redis.NewRateLimitCache(f.redisClient, f.bucketingManager), util.Get())

	f.authService = service.NewAuthService(f.config, f.hasher, limiter,
		users, challenges, sessions, consents,
		mailer.New(&f.config.Mailer), f.trail, util.Get())
	f.roleService = service.NewRoleService(users, f.trail, util.Get())
	f.exportService = service.NewExportService(f.config, f.hasher,
		grants, vehicles, f.encryptionManager, f.redactor, f.trail, util.Get())
}

// Router builds the fully guarded HTTP router.
func (f *Factory) Router() chi.Router {
	guard := handler.NewGuard(f.authService, f.trail, util.Get())
	return handler.NewRouter(guard,
		handler.NewAuthHandler(f.authService, util.Get()),
		handler.NewAdminHandler(f.roleService, util.Get()),
		handler.NewExportHandler(f.exportService, util.Get()),
		util.Get())
}

func (f *Factory) Config() *config.Config {
	return f.config
}

// Close releases client connections. Safe to call more than once.
func (f *Factory) Close() {
	f.closeOnce.Do(func() {
		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Warn("Kafka producer close failed", util.ErrorField(err))
			}
		}
		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Warn("ClickHouse close failed", util.ErrorField(err))
			}
		}
		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Warn("Redis close failed", util.ErrorField(err))
			}
		}
		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}
		util.Info("Factory closed")
	})
}
