package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Stripe     StripeConfig
	Auth       AuthConfig
	Ledger     LedgerConfig
	Migrations MigrationsConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

type DatabaseConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	ConnRetries  int
}

type RedisConfig struct {
	Addr       string
	LockTTL    time.Duration
	LockWait   time.Duration
	SessionTTL time.Duration
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Topics  TopicConfig
	Enabled bool
}

type TopicConfig struct {
	OrderPaid       string
	PaymentRecorded string
	RefundIssued    string
	CartExpired     string
	ItemTransferred string
	TxnConfirmed    string
	CheckReceived   string
}

// All lists every topic the service produces or consumes.
func (t TopicConfig) All() []string {
	return []string{t.OrderPaid, t.PaymentRecorded, t.RefundIssued, t.CartExpired, t.ItemTransferred, t.TxnConfirmed, t.CheckReceived}
}

type StripeConfig struct {
	SecretKey string
}

type AuthConfig struct {
	OIDCIssuer string
	// DevMode trusts the token subject without verifying the signature.
	DevMode bool

	// client credentials for calls to the event service
	KeycloakURL     string
	KeycloakRealm   string
	ClientID        string
	ClientSecret    string
	EventServiceURL string
}

type LedgerConfig struct {
	OrderCodeRetries   int
	DefaultCartTimeout time.Duration
	SweepInterval      time.Duration
	QRSecret           string
	FakeProcessor      bool
	// ProcessorTimeout bounds one charge or refund call. It must stay below
	// Redis.LockTTL so a checkout never outlives its order lock.
	ProcessorTimeout time.Duration
}

type MigrationsConfig struct {
	Dir      string
	Auto     bool
	SeedData bool
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", ":8084"),
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
			CORSOrigins:     getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			DSN:          getEnv("POSTGRES_DSN", ""),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			ConnRetries:  getEnvInt("DB_CONN_RETRIES", 5),
		},
		Redis: RedisConfig{
			Addr:       getEnv("REDIS_ADDR", "localhost:6379"),
			LockTTL:    getEnvDuration("LOCK_TTL", 30*time.Second),
			LockWait:   getEnvDuration("LOCK_WAIT", 5*time.Second),
			SessionTTL: getEnvDuration("SESSION_TTL", 30*24*time.Hour),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_ADDR", []string{"localhost:9092"}),
			GroupID: getEnv("KAFKA_GROUP_ID", "ledger-service"),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				OrderPaid:       getEnv("KAFKA_TOPIC_ORDER_PAID", "ledger.order.paid"),
				PaymentRecorded: getEnv("KAFKA_TOPIC_PAYMENT_RECORDED", "ledger.payment.recorded"),
				RefundIssued:    getEnv("KAFKA_TOPIC_REFUNDED", "ledger.transaction.refunded"),
				CartExpired:     getEnv("KAFKA_TOPIC_CART_EXPIRED", "ledger.cart.expired"),
				ItemTransferred: getEnv("KAFKA_TOPIC_TRANSFERRED", "ledger.item.transferred"),
				TxnConfirmed:    getEnv("KAFKA_TOPIC_CONFIRMED", "ledger.transaction.confirmed"),
				CheckReceived:   getEnv("KAFKA_TOPIC_CHECK_RECEIVED", "ledger.check.received"),
			},
		},
		Stripe: StripeConfig{
			SecretKey: getEnv("STRIPE_SECRET_KEY", ""),
		},
		Auth: AuthConfig{
			OIDCIssuer: getEnv("OIDC_ISSUER", ""),
			DevMode:    getEnvBool("AUTH_DEV_MODE", false),

			KeycloakURL:     getEnv("KEYCLOAK_URL", ""),
			KeycloakRealm:   getEnv("KEYCLOAK_REALM", ""),
			ClientID:        getEnv("LEDGER_CLIENT_ID", ""),
			ClientSecret:    getEnv("LEDGER_CLIENT_SECRET", ""),
			EventServiceURL: getEnv("EVENT_SERVICE_URL", ""),
		},
		Ledger: LedgerConfig{
			OrderCodeRetries:   getEnvInt("ORDER_CODE_RETRIES", 10),
			DefaultCartTimeout: time.Duration(getEnvInt("CART_TIMEOUT_MINUTES", 15)) * time.Minute,
			SweepInterval:      getEnvDuration("CART_SWEEP_INTERVAL", time.Minute),
			QRSecret:           getEnv("QR_SECRET", "change-me"),
			FakeProcessor:      getEnvBool("FAKE_PROCESSOR_ENABLED", false),
			ProcessorTimeout:   getEnvDuration("PROCESSOR_TIMEOUT", 20*time.Second),
		},
		Migrations: MigrationsConfig{
			Dir:      getEnv("MIGRATIONS_DIR", "./migrations"),
			Auto:     getEnvBool("AUTO_MIGRATE", true),
			SeedData: getEnvBool("SEED_DATA", false),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
