package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	Payments      PaymentsConfig
	PayOS         PayOSConfig
	Maps          MapsConfig
	GCP           GCPConfig
	GCS           GCSConfig
	Evidence      EvidenceConfig
	PubSub        PubSubConfig
	BigQuery      BigQueryConfig
	Outbox        OutboxConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"OTODEALZ_APP_ENV" required:"true"`
	Port         string `envconfig:"OTODEALZ_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"OTODEALZ_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"OTODEALZ_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"OTODEALZ_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"OTODEALZ_DB_DSN"`
	Driver string `envconfig:"OTODEALZ_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"OTODEALZ_DB_HOST"`
	LegacyPort     int    `envconfig:"OTODEALZ_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"OTODEALZ_DB_USER"`
	LegacyPassword string `envconfig:"OTODEALZ_DB_PASSWORD"`
	LegacyName     string `envconfig:"OTODEALZ_DB_NAME"`
	LegacySSLMode  string `envconfig:"OTODEALZ_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"OTODEALZ_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"OTODEALZ_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"OTODEALZ_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"OTODEALZ_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"OTODEALZ_REDIS_URL" required:"true"`
	Address      string        `envconfig:"OTODEALZ_REDIS_ADDR"`
	Password     string        `envconfig:"OTODEALZ_REDIS_PASSWORD"`
	DB           int           `envconfig:"OTODEALZ_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"OTODEALZ_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"OTODEALZ_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"OTODEALZ_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"OTODEALZ_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"OTODEALZ_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"OTODEALZ_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"OTODEALZ_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"OTODEALZ_JWT_EXPIRATION_MINUTES" default:"60"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"OTODEALZ_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"OTODEALZ_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"OTODEALZ_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"OTODEALZ_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"OTODEALZ_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"OTODEALZ_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"OTODEALZ_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"OTODEALZ_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"OTODEALZ_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"OTODEALZ_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"OTODEALZ_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate      bool `envconfig:"OTODEALZ_AUTO_MIGRATE" default:"false"`
	SettlementPoller bool `envconfig:"OTODEALZ_FEATURE_SETTLEMENT_POLLER" default:"true"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"OTODEALZ_EVENTING_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
	OutboxIdempotencyTTL  time.Duration `envconfig:"OTODEALZ_EVENTING_OUTBOX_IDEMPOTENCY_TTL" default:"720h"`
}

// PaymentsConfig carries the money policy knobs for the transaction core.
type PaymentsConfig struct {
	// DepositRatePercent is the hold-vehicle deposit as a percentage of the
	// vehicle price. 10 means 10%.
	DepositRatePercent int64 `envconfig:"OTODEALZ_PAYMENTS_DEPOSIT_RATE_PERCENT" default:"10"`
	// SettlementGrace is how long an intent stays untouched before the
	// fallback poller starts asking the gateway about it.
	SettlementGrace time.Duration `envconfig:"OTODEALZ_PAYMENTS_SETTLEMENT_GRACE" default:"2m"`
}

type PayOSConfig struct {
	ClientID    string        `envconfig:"OTODEALZ_PAYOS_CLIENT_ID" required:"true"`
	APIKey      string        `envconfig:"OTODEALZ_PAYOS_API_KEY" required:"true"`
	ChecksumKey string        `envconfig:"OTODEALZ_PAYOS_CHECKSUM_KEY" required:"true"`
	BaseURL     string        `envconfig:"OTODEALZ_PAYOS_BASE_URL" default:"https://api-merchant.payos.vn"`
	ReturnURL   string        `envconfig:"OTODEALZ_PAYOS_RETURN_URL"`
	CancelURL   string        `envconfig:"OTODEALZ_PAYOS_CANCEL_URL"`
	HTTPTimeout time.Duration `envconfig:"OTODEALZ_PAYOS_HTTP_TIMEOUT" default:"10s"`
	StatusRetry bool          `envconfig:"OTODEALZ_PAYOS_STATUS_RETRY" default:"true"`
}

type MapsConfig struct {
	APIKey string `envconfig:"OTODEALZ_MAPS_API_KEY"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"OTODEALZ_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"OTODEALZ_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"OTODEALZ_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName        string        `envconfig:"OTODEALZ_GCS_BUCKET_NAME" required:"true"`
	UploadURLExpiry   time.Duration `envconfig:"OTODEALZ_GCS_UPLOAD_URL_EXPIRY" default:"15m"`
	DownloadURLExpiry time.Duration `envconfig:"OTODEALZ_GCS_DOWNLOAD_URL_EXPIRY" default:"24h"`
}

type EvidenceConfig struct {
	MaxUploadMB int `envconfig:"OTODEALZ_EVIDENCE_MAX_UPLOAD_MB" default:"20"`
}

type PubSubConfig struct {
	DomainTopic           string `envconfig:"OTODEALZ_PUBSUB_DOMAIN_TOPIC" required:"true"`
	DomainSubscription    string `envconfig:"OTODEALZ_PUBSUB_DOMAIN_SUBSCRIPTION" required:"true"`
	PayoutTopic           string `envconfig:"OTODEALZ_PUBSUB_PAYOUT_TOPIC" required:"true"`
	PayoutSubscription    string `envconfig:"OTODEALZ_PUBSUB_PAYOUT_SUBSCRIPTION" required:"true"`
	AnalyticsTopic        string `envconfig:"OTODEALZ_PUBSUB_ANALYTICS_TOPIC" required:"true"`
	AnalyticsSubscription string `envconfig:"OTODEALZ_PUBSUB_ANALYTICS_SUBSCRIPTION" required:"true"`
}

type BigQueryConfig struct {
	Dataset           string `envconfig:"OTODEALZ_BIGQUERY_DATASET" default:"otodealz"`
	RevenueTable      string `envconfig:"OTODEALZ_BIGQUERY_REVENUE_TABLE" default:"revenue_events"`
	TransactionsTable string `envconfig:"OTODEALZ_BIGQUERY_TRANSACTIONS_TABLE" default:"transaction_events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"OTODEALZ_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"OTODEALZ_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"OTODEALZ_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval    time.Duration `envconfig:"OTODEALZ_CRON_INTERVAL" default:"1m"`
	LockTTL     time.Duration `envconfig:"OTODEALZ_CRON_LOCK_TTL" default:"5m"`
	MetricsPort string        `envconfig:"OTODEALZ_CRON_METRICS_PORT" default:"9090"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
