package config

const (
	EnvPrefix = "CANOPY"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "CANOPY_APP_ENV"
	EnvPort     = "CANOPY_APP_PORT"
	EnvLogLevel = "CANOPY_LOG_LEVEL"

	EnvDBDSN  = "CANOPY_DB_DSN"
	EnvDBHost = "CANOPY_DB_HOST"
	EnvDBUser = "CANOPY_DB_USER"
	EnvDBName = "CANOPY_DB_NAME"

	EnvRedisURL = "CANOPY_REDIS_URL"

	EnvJWTSecret = "CANOPY_JWT_SECRET"
	EnvJWTIssuer = "CANOPY_JWT_ISSUER"

	EnvUseSQLite = "CANOPY_USE_SQLITE"

	EnvGCPProjectID                  = "CANOPY_GCP_PROJECT_ID"
	EnvPubSubLoyaltySyncSubscription = "CANOPY_PUBSUB_LOYALTY_SYNC_SUBSCRIPTION"

	EnvAlpineIQAPIKey = "CANOPY_ALPINEIQ_API_KEY"
	EnvAlpineIQUID    = "CANOPY_ALPINEIQ_UID"

	EnvSalesDefaultTaxRate = "CANOPY_SALES_DEFAULT_TAX_RATE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
