package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Logging     LoggingConfig
	Keycloak    KeycloakConfig
	Scylla      ScyllaConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Clickhouse  ClickhouseConfig
	Elastic     ElasticConfig
	KMS         KMSConfig
	Bucketing   BucketingConfig
	Provision   ProvisionConfig
	Escalation  EscalationConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

type KeycloakConfig struct {
	BaseURL       string
	Realm         string
	AdminUser     string
	AdminPassword string
	AdminRealm    string
	Timeout       time.Duration
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type KafkaConfig struct {
	Brokers         []string
	IncidentTopic   string
	AuditTopic      string
	ListenerGroupID string
}

type ClickhouseConfig struct {
	URL      string
	Database string
	Username string
	Password string
}

type ElasticConfig struct {
	URL        string
	Username   string
	Password   string
	AuditIndex string
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type BucketingConfig struct {
	LogBuckets int
}

// ProvisionConfig carries the saga's retry budget and the provisioning
// rate limit. Defaults match the documented behaviour: three attempts,
// 500ms linear backoff, retry only on transient identity-provider
// timeouts. An admin who trips the rate limit is locked out of
// provisioning for LockoutDuration.
type ProvisionConfig struct {
	MaxCreateAttempts int
	BackoffStep       time.Duration
	RateLimitWindow   time.Duration
	RateLimitMax      int
	LockoutDuration   time.Duration
}

// EscalationConfig is the single override point for the escalation
// rule thresholds.
type EscalationConfig struct {
	MaxWarningAge    time.Duration
	MinConfidence    float64
	MinConfirmations int
}

// LoadConfig reads configuration from the environment, falling back to
// a local .env file in development.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Keycloak: KeycloakConfig{
			BaseURL:       getEnv("KEYCLOAK_URL", "http://localhost:8081"),
			Realm:         getEnv("KEYCLOAK_REALM", "console"),
			AdminUser:     getEnv("KEYCLOAK_ADMIN_USER", "admin"),
			AdminPassword: getEnv("KEYCLOAK_ADMIN_PASSWORD", ""),
			AdminRealm:    getEnv("KEYCLOAK_ADMIN_REALM", "master"),
			Timeout:       getEnvDuration("KEYCLOAK_TIMEOUT", 15*time.Second),
		},
		Scylla: ScyllaConfig{
			Nodes:    getEnvList("SCYLLA_NODES", "127.0.0.1:9042"),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "console"),
			Username: getEnv("SCYLLA_USERNAME", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
		},
		Kafka: KafkaConfig{
			Brokers:         getEnvList("KAFKA_BROKERS", "localhost:9092"),
			IncidentTopic:   getEnv("KAFKA_INCIDENT_TOPIC", "incident-writes"),
			AuditTopic:      getEnv("KAFKA_AUDIT_TOPIC", "operator-activity"),
			ListenerGroupID: getEnv("KAFKA_LISTENER_GROUP", "escalation-engine"),
		},
		Clickhouse: ClickhouseConfig{
			URL:      getEnv("CLICKHOUSE_URL", "localhost:9000"),
			Database: getEnv("CLICKHOUSE_DATABASE", "console_analytics"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
		},
		Elastic: ElasticConfig{
			URL:        getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Username:   getEnv("ELASTICSEARCH_USERNAME", ""),
			Password:   getEnv("ELASTICSEARCH_PASSWORD", ""),
			AuditIndex: getEnv("ELASTICSEARCH_AUDIT_INDEX", "operator-logs"),
		},
		KMS: KMSConfig{
			Enabled: getEnvBool("KMS_ENABLED", false),
			KeyID:   getEnv("KMS_KEY_ID", ""),
			Region:  getEnv("KMS_REGION", "eu-central-1"),
		},
		Bucketing: BucketingConfig{
			LogBuckets: getEnvInt("LOG_BUCKETS", 16),
		},
		Provision: ProvisionConfig{
			MaxCreateAttempts: getEnvInt("PROVISION_MAX_CREATE_ATTEMPTS", 3),
			BackoffStep:       getEnvDuration("PROVISION_BACKOFF_STEP", 500*time.Millisecond),
			RateLimitWindow:   getEnvDuration("PROVISION_RATE_LIMIT_WINDOW", time.Minute),
			RateLimitMax:      getEnvInt("PROVISION_RATE_LIMIT_MAX", 10),
			LockoutDuration:   getEnvDuration("PROVISION_LOCKOUT_DURATION", 5*time.Minute),
		},
		Escalation: EscalationConfig{
			MaxWarningAge:    getEnvDuration("ESCALATION_MAX_WARNING_AGE", 10*time.Minute),
			MinConfidence:    getEnvFloat("ESCALATION_MIN_CONFIDENCE", 0.85),
			MinConfirmations: getEnvInt("ESCALATION_MIN_CONFIRMATIONS", 2),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
