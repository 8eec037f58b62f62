package config

const (
	EnvPrefix = "RAMP"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	GatewayModeLive      = "live"
	GatewayModeSimulated = "simulated"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
	DefaultSQLiteDSN = "file:ramp.db?_busy_timeout=5000&_foreign_keys=on"

	StrategyReal      = "real"
	StrategySimulated = "simulated"
)

const (
	EnvAppEnv             = "RAMP_APP_ENV"
	EnvPort               = "RAMP_APP_PORT"
	EnvDBDSN              = "RAMP_DB_DSN"
	EnvDBHost             = "RAMP_DB_HOST"
	EnvDBUser             = "RAMP_DB_USER"
	EnvDBName             = "RAMP_DB_NAME"
	EnvRedisURL           = "RAMP_REDIS_URL"
	EnvJWTSecret          = "RAMP_JWT_SECRET"
	EnvJWTIssuer          = "RAMP_JWT_ISSUER"
	EnvGatewayMode        = "RAMP_GATEWAY_MODE"
	EnvGatewayKeySecret   = "RAMP_GATEWAY_KEY_SECRET"
	EnvAssetsOnRampRates  = "RAMP_ASSETS_ONRAMP_RATES"
	EnvAssetsStrategies   = "RAMP_ASSETS_STRATEGIES"
	EnvOffRampAllowDemo   = "RAMP_OFFRAMP_ALLOW_UNVERIFIED_DEPOSITS"
	EnvLedgerConfirmation = "RAMP_LEDGER_CONFIRMATIONS"
	EnvUseSQLite          = "RAMP_USE_SQLITE"
	EnvLedgerSignerKey    = "RAMP_LEDGER_SIGNER_PRIVATE_KEY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
