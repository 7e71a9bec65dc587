package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	AlpineIQ     AlpineIQConfig
	Sales        SalesConfig
	Loyalty      LoyaltyConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CANOPY_APP_ENV" required:"true"`
	Port         string `envconfig:"CANOPY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CANOPY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CANOPY_LOG_WARN_STACK" default:"false"`
	CORSOrigins  string `envconfig:"CANOPY_CORS_ALLOWED_ORIGINS" default:"*"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(a.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

type ServiceConfig struct {
	Kind string `envconfig:"CANOPY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CANOPY_DB_DSN"`
	Driver string `envconfig:"CANOPY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CANOPY_DB_HOST"`
	LegacyPort     int    `envconfig:"CANOPY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CANOPY_DB_USER"`
	LegacyPassword string `envconfig:"CANOPY_DB_PASSWORD"`
	LegacyName     string `envconfig:"CANOPY_DB_NAME"`
	LegacySSLMode  string `envconfig:"CANOPY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CANOPY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CANOPY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CANOPY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CANOPY_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"CANOPY_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CANOPY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CANOPY_REDIS_ADDR"`
	Password     string        `envconfig:"CANOPY_REDIS_PASSWORD"`
	DB           int           `envconfig:"CANOPY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CANOPY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CANOPY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CANOPY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CANOPY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CANOPY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CANOPY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CANOPY_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CANOPY_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CANOPY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CANOPY_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"CANOPY_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	IdempotencyKeyTTL    time.Duration `envconfig:"CANOPY_HTTP_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CANOPY_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"CANOPY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CANOPY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic             string `envconfig:"CANOPY_PUBSUB_DOMAIN_TOPIC" default:"canopy-domain-events"`
	LoyaltySyncTopic        string `envconfig:"CANOPY_PUBSUB_LOYALTY_SYNC_TOPIC" default:"canopy-loyalty-sync"`
	LoyaltySyncSubscription string `envconfig:"CANOPY_PUBSUB_LOYALTY_SYNC_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"CANOPY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"CANOPY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"CANOPY_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"CANOPY_OUTBOX_RETENTION" default:"720h"`
}

type AlpineIQConfig struct {
	BaseURL string        `envconfig:"CANOPY_ALPINEIQ_BASE_URL" default:"https://lab.alpineiq.com/api/v1.1"`
	APIKey  string        `envconfig:"CANOPY_ALPINEIQ_API_KEY"`
	UID     string        `envconfig:"CANOPY_ALPINEIQ_UID"`
	Timeout time.Duration `envconfig:"CANOPY_ALPINEIQ_TIMEOUT" default:"10s"`
}

// Enabled reports whether credentials for the loyalty platform are present.
func (a AlpineIQConfig) Enabled() bool {
	return strings.TrimSpace(a.APIKey) != "" && strings.TrimSpace(a.UID) != ""
}

type SalesConfig struct {
	DefaultTaxRate decimal.Decimal `envconfig:"CANOPY_SALES_DEFAULT_TAX_RATE" default:"0"`
}

type LoyaltyConfig struct {
	DefaultPointsPerDollar decimal.Decimal `envconfig:"CANOPY_LOYALTY_POINTS_PER_DOLLAR" default:"1"`
}

func (db *DBConfig) ensureDSN(sqlite bool) error {
	if db.DSN != "" {
		return nil
	}
	if sqlite {
		db.DSN = "file:canopy.db?cache=shared"
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
