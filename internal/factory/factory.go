package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"incident-console/internal/audit"
	"incident-console/internal/bucketing"
	"incident-console/internal/client"
	"incident-console/internal/config"
	"incident-console/internal/encryption"
	"incident-console/internal/identity"
	"incident-console/internal/listener"
	"incident-console/internal/repository/redis"
	"incident-console/internal/repository/scylla"
	"incident-console/internal/service"
	"incident-console/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config *config.Config

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	incidentConsumer *client.KafkaConsumer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient
	identityClient   *identity.KeycloakClient

	// Managers
	encryptionManager *encryption.Manager
	bucketingManager  *bucketing.Manager

	// Repositories and services
	operatorRepository scylla.OperatorRepository
	incidentRepository scylla.IncidentRepository
	auditRepository    scylla.AuditRepository
	rateLimitCache     *redis.RateLimitCache
	auditLogger        *audit.Logger
	auditSearch        *audit.Search
	serviceFactory     *service.ServiceFactory
	incidentListener   *listener.IncidentListener

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	if err := factory.initializeManagers(); err != nil {
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health checks
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// Redis
	if redisClient, err := client.NewRedisClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = redisClient
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			util.Info("Redis client initialized and healthy")
		}
	}

	// ScyllaDB
	if scyllaClient, err := scylla.NewScyllaClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
	} else {
		f.scyllaClient = scyllaClient
		if err := f.scyllaClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		} else {
			util.Info("ScyllaDB client initialized and healthy")
		}
	}

	// Kafka producer for the audit fan-out
	if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
		util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
	} else {
		f.kafkaProducer = producer
		util.Info("Kafka producer initialized")
	}

	// Kafka consumer for the incident change feed
	if consumer, err := client.NewKafkaConsumer(f.config, f.config.Kafka.IncidentTopic, f.config.Kafka.ListenerGroupID, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("kafka consumer: %w", err))
	} else {
		f.incidentConsumer = consumer
		util.Info("Incident feed consumer initialized",
			util.String("topic", f.config.Kafka.IncidentTopic))
	}

	// Elasticsearch
	if esClient, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
	} else {
		f.esClient = esClient
		if err := f.esClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch health check: %w", err))
		} else {
			util.Info("Elasticsearch client initialized and healthy")
		}
	}

	// ClickHouse
	if chClient, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
	} else {
		f.clickhouseClient = chClient
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
		} else {
			util.Info("ClickHouse client initialized and healthy")
		}
	}

	// Keycloak
	f.identityClient = identity.NewKeycloakClient(f.config, util.Get())
	util.Info("Keycloak client initialized",
		util.String("realm", f.config.Keycloak.Realm))

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers initializes encryption and bucketing managers
func (f *Factory) initializeManagers() error {
	var kmsClient *kms.Client
	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			return fmt.Errorf("failed to load AWS config for KMS: %w", err)
		}
		kmsClient = kms.NewFromConfig(awsCfg)
	}

	f.encryptionManager = encryption.NewManager(f.config, kmsClient)
	f.bucketingManager = bucketing.NewManager(f.config)

	util.Info("Managers initialized successfully",
		util.Bool("encryption_initialized", f.encryptionManager != nil),
		util.Bool("bucketing_initialized", f.bucketingManager != nil),
	)
	return nil
}

// ==============================
// Repository Initialization
// ==============================

func (f *Factory) OperatorRepository() scylla.OperatorRepository {
	if f.operatorRepository == nil {
		f.operatorRepository = scylla.NewOperatorRepository(
			f.ScyllaClient(),
			f.EncryptionManager(),
			util.Get(),
		)
	}
	return f.operatorRepository
}

func (f *Factory) IncidentRepository() scylla.IncidentRepository {
	if f.incidentRepository == nil {
		f.incidentRepository = scylla.NewIncidentRepository(f.ScyllaClient(), util.Get())
	}
	return f.incidentRepository
}

func (f *Factory) AuditRepository() scylla.AuditRepository {
	if f.auditRepository == nil {
		f.auditRepository = scylla.NewAuditRepository(
			f.ScyllaClient(),
			f.BucketingManager(),
			util.Get(),
		)
	}
	return f.auditRepository
}

func (f *Factory) RateLimitCache() *redis.RateLimitCache {
	if f.rateLimitCache == nil {
		f.rateLimitCache = redis.NewRateLimitCache(f.redisClient)
	}
	return f.rateLimitCache
}

// ==============================
// Audit Fan-Out
// ==============================

// AuditLogger assembles the fan-out over every configured sink. Sinks
// whose backing client failed to initialize are simply left out.
func (f *Factory) AuditLogger() *audit.Logger {
	if f.auditLogger == nil {
		sinks := []audit.Sink{audit.NewStoreSink(f.AuditRepository())}
		if f.kafkaProducer != nil {
			sinks = append(sinks, audit.NewKafkaSink(f.kafkaProducer, f.config.Kafka.AuditTopic))
		}
		if f.clickhouseClient != nil {
			sinks = append(sinks, audit.NewClickHouseSink(f.clickhouseClient))
		}
		if f.esClient != nil {
			sinks = append(sinks, audit.NewElasticSink(f.esClient, f.config.Elastic.AuditIndex))
		}
		f.auditLogger = audit.NewLogger(util.Get(), sinks...)
	}
	return f.auditLogger
}

func (f *Factory) AuditSearch() *audit.Search {
	if f.auditSearch == nil {
		f.auditSearch = audit.NewSearch(f.esClient, f.config.Elastic.AuditIndex)
	}
	return f.auditSearch
}

// ==============================
// Service Factory
// ==============================

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		f.serviceFactory = service.NewServiceFactory(
			f.IdentityClient(),
			f.OperatorRepository(),
			f.IncidentRepository(),
			f.AuditLogger(),
			f.RateLimitCache(),
			f.config,
			util.Get(),
		)
	}
	return f.serviceFactory
}

// IncidentListener wires the change feed consumer to the escalation
// service.
func (f *Factory) IncidentListener() *listener.IncidentListener {
	if f.incidentListener == nil {
		f.incidentListener = listener.NewIncidentListener(
			f.incidentConsumer,
			f.ServiceFactory().EscalationService(),
			util.Get(),
		)
	}
	return f.incidentListener
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	} else {
		healthErrors["redis"] = fmt.Errorf("redis client not initialized")
	}

	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(); err != nil {
			healthErrors["scylla"] = err
		}
	} else {
		healthErrors["scylla"] = fmt.Errorf("scylla client not initialized")
	}

	if f.esClient != nil {
		if err := f.esClient.HealthCheck(); err != nil {
			healthErrors["elasticsearch"] = err
		}
	} else {
		healthErrors["elasticsearch"] = fmt.Errorf("elasticsearch client not initialized")
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	} else {
		healthErrors["clickhouse"] = fmt.Errorf("clickhouse client not initialized")
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	if f.encryptionManager == nil {
		healthErrors["encryption"] = fmt.Errorf("encryption manager not initialized")
	}
	if f.bucketingManager == nil {
		healthErrors["bucketing"] = fmt.Errorf("bucketing manager not initialized")
	}

	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.incidentConsumer != nil {
			if err := f.incidentConsumer.Close(); err != nil {
				util.Error("Failed to close incident consumer", util.ErrorField(err))
			} else {
				util.Info("Incident consumer closed")
			}
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
			util.Info("Elasticsearch client closed")
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
			util.Info("Encryption manager cache cleared")
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) ScyllaClient() *scylla.ScyllaClient {
	return f.scyllaClient
}

func (f *Factory) IdentityClient() identity.Client {
	return f.identityClient
}

func (f *Factory) EncryptionManager() *encryption.Manager {
	return f.encryptionManager
}

func (f *Factory) BucketingManager() *bucketing.Manager {
	return f.bucketingManager
}
