package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Gateway      GatewayConfig
	Ledger       LedgerConfig
	Faucet       FaucetConfig
	Assets       AssetsConfig
	Pricing      PricingConfig
	OffRamp      OffRampConfig
	Transfer     TransferConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
	Idempotency  IdempotencyConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.useSQLite()
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Gateway.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"RAMP_APP_ENV" required:"true"`
	Port         string `envconfig:"RAMP_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"RAMP_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"RAMP_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"RAMP_LOG_WARN_STACK" default:"false"`

	CORSOrigins     []string      `envconfig:"RAMP_CORS_ORIGINS" default:"http://localhost:3000"`
	ShutdownTimeout time.Duration `envconfig:"RAMP_SHUTDOWN_TIMEOUT" default:"15s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"RAMP_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"RAMP_DB_DSN"`
	Driver string `envconfig:"RAMP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"RAMP_DB_HOST"`
	LegacyPort     int    `envconfig:"RAMP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"RAMP_DB_USER"`
	LegacyPassword string `envconfig:"RAMP_DB_PASSWORD"`
	LegacyName     string `envconfig:"RAMP_DB_NAME"`
	LegacySSLMode  string `envconfig:"RAMP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"RAMP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RAMP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RAMP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RAMP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"RAMP_REDIS_URL" required:"true"`
	Address      string        `envconfig:"RAMP_REDIS_ADDR"`
	Password     string        `envconfig:"RAMP_REDIS_PASSWORD"`
	DB           int           `envconfig:"RAMP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RAMP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RAMP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RAMP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RAMP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RAMP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string        `envconfig:"RAMP_JWT_SECRET" required:"true"`
	Issuer string        `envconfig:"RAMP_JWT_ISSUER" required:"true"`
	TTL    time.Duration `envconfig:"RAMP_JWT_TTL" default:"1h"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"RAMP_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"RAMP_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"RAMP_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"RAMP_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"RAMP_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	SettlementsTopic        string `envconfig:"RAMP_PUBSUB_SETTLEMENTS_TOPIC" default:"ramp-settlement-events"`
	SettlementsSubscription string `envconfig:"RAMP_PUBSUB_SETTLEMENTS_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"RAMP_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"RAMP_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"RAMP_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// GatewayConfig configures the card/UPI payment gateway used for on-ramp checkout.
type GatewayConfig struct {
	Mode          string        `envconfig:"RAMP_GATEWAY_MODE" default:"simulated"`
	BaseURL       string        `envconfig:"RAMP_GATEWAY_BASE_URL" default:"https://api.razorpay.com/v1"`
	KeyID         string        `envconfig:"RAMP_GATEWAY_KEY_ID" default:"rzp_test_ramp"`
	KeySecret     string        `envconfig:"RAMP_GATEWAY_KEY_SECRET" required:"true"`
	WebhookSecret string        `envconfig:"RAMP_GATEWAY_WEBHOOK_SECRET"`
	Currency      string        `envconfig:"RAMP_GATEWAY_CURRENCY" default:"INR"`
	FeeRate       string        `envconfig:"RAMP_GATEWAY_FEE_RATE" default:"0.02"`
	Timeout       time.Duration `envconfig:"RAMP_GATEWAY_TIMEOUT" default:"10s"`
}

func (g GatewayConfig) IsLive() bool {
	return strings.EqualFold(strings.TrimSpace(g.Mode), GatewayModeLive)
}

func (g GatewayConfig) validate() error {
	mode := strings.ToLower(strings.TrimSpace(g.Mode))
	if mode != GatewayModeLive && mode != GatewayModeSimulated {
		return fmt.Errorf("%s must be %q or %q", EnvGatewayMode, GatewayModeLive, GatewayModeSimulated)
	}
	return nil
}

type LedgerConfig struct {
	RPCURL           string        `envconfig:"RAMP_LEDGER_RPC_URL" default:"http://127.0.0.1:8545"`
	ChainID          int64         `envconfig:"RAMP_LEDGER_CHAIN_ID" default:"11155111"`
	SignerPrivateKey string        `envconfig:"RAMP_LEDGER_SIGNER_PRIVATE_KEY"`
	ExplorerTemplate string        `envconfig:"RAMP_LEDGER_EXPLORER_TEMPLATE" default:"https://sepolia.etherscan.io/tx/%s"`
	Confirmations    uint64        `envconfig:"RAMP_LEDGER_CONFIRMATIONS" default:"1"`
	PollInterval     time.Duration `envconfig:"RAMP_LEDGER_POLL_INTERVAL" default:"2s"`
	StepTimeout      time.Duration `envconfig:"RAMP_LEDGER_STEP_TIMEOUT" default:"15s"`
	FinalityTimeout  time.Duration `envconfig:"RAMP_LEDGER_FINALITY_TIMEOUT" default:"2m"`
	NativeGasLimit   uint64        `envconfig:"RAMP_LEDGER_NATIVE_GAS_LIMIT" default:"21000"`
	TokenGasLimit    uint64        `envconfig:"RAMP_LEDGER_TOKEN_GAS_LIMIT" default:"65000"`
	QueueSize        int           `envconfig:"RAMP_LEDGER_SIGNER_QUEUE_SIZE" default:"32"`
}

type FaucetConfig struct {
	URL               string        `envconfig:"RAMP_FAUCET_URL"`
	MinTopUp          string        `envconfig:"RAMP_FAUCET_MIN_TOP_UP" default:"10"`
	SettleDelay       time.Duration `envconfig:"RAMP_FAUCET_SETTLE_DELAY" default:"3s"`
	RequestsPerMinute int           `envconfig:"RAMP_FAUCET_REQUESTS_PER_MINUTE" default:"6"`
	Timeout           time.Duration `envconfig:"RAMP_FAUCET_TIMEOUT" default:"30s"`
}

// AssetsConfig holds per-asset settings as "ASSET:value" maps, e.g. "ETH:0.1,USDC:0.012".
type AssetsConfig struct {
	OnRampRates    map[string]string `envconfig:"RAMP_ASSETS_ONRAMP_RATES" default:"ETH:0.1,USDC:0.012"`
	OffRampRates   map[string]string `envconfig:"RAMP_ASSETS_OFFRAMP_RATES" default:"ETH:10"`
	Strategies     map[string]string `envconfig:"RAMP_ASSETS_STRATEGIES" default:"ETH:real,USDC:simulated"`
	TokenContracts map[string]string `envconfig:"RAMP_ASSETS_TOKEN_CONTRACTS"`
	Decimals       map[string]string `envconfig:"RAMP_ASSETS_DECIMALS" default:"ETH:18,USDC:6"`
}

type PricingConfig struct {
	OnRampMinFiat       string `envconfig:"RAMP_PRICING_ONRAMP_MIN_FIAT" default:"10"`
	OnRampMaxFiat       string `envconfig:"RAMP_PRICING_ONRAMP_MAX_FIAT" default:"100000"`
	OnRampFeeRate       string `envconfig:"RAMP_PRICING_ONRAMP_FEE_RATE" default:"0.005"`
	OnRampFeeMin        string `envconfig:"RAMP_PRICING_ONRAMP_FEE_MIN" default:"1"`
	OnRampFeeMax        string `envconfig:"RAMP_PRICING_ONRAMP_FEE_MAX" default:"100"`
	OffRampMinToken     string `envconfig:"RAMP_PRICING_OFFRAMP_MIN_TOKEN" default:"0.01"`
	OffRampMaxToken     string `envconfig:"RAMP_PRICING_OFFRAMP_MAX_TOKEN" default:"1000"`
	OffRampFeeRate      string `envconfig:"RAMP_PRICING_OFFRAMP_FEE_RATE" default:"0.025"`
	OffRampFeeMin       string `envconfig:"RAMP_PRICING_OFFRAMP_FEE_MIN" default:"5"`
	OffRampFeeMax       string `envconfig:"RAMP_PRICING_OFFRAMP_FEE_MAX" default:"500"`
	OffRampMinNetPayout string `envconfig:"RAMP_PRICING_OFFRAMP_MIN_NET_PAYOUT" default:"5"`
}

type OffRampConfig struct {
	DepositAddress          string        `envconfig:"RAMP_OFFRAMP_DEPOSIT_ADDRESS"`
	AllowUnverifiedDeposits bool          `envconfig:"RAMP_OFFRAMP_ALLOW_UNVERIFIED_DEPOSITS" default:"false"`
	PayoutDelay             time.Duration `envconfig:"RAMP_OFFRAMP_PAYOUT_DELAY" default:"30s"`
	DepositLookupTimeout    time.Duration `envconfig:"RAMP_OFFRAMP_DEPOSIT_LOOKUP_TIMEOUT" default:"10s"`
}

type TransferConfig struct {
	SimulatedDelayMin time.Duration `envconfig:"RAMP_TRANSFER_SIMULATED_DELAY_MIN" default:"2s"`
	SimulatedDelayMax time.Duration `envconfig:"RAMP_TRANSFER_SIMULATED_DELAY_MAX" default:"3s"`
	ClaimLockTTL      time.Duration `envconfig:"RAMP_TRANSFER_CLAIM_LOCK_TTL" default:"5m"`
	Timeout           time.Duration `envconfig:"RAMP_TRANSFER_TIMEOUT" default:"3m"`
}

type CronConfig struct {
	Interval         time.Duration `envconfig:"RAMP_CRON_INTERVAL" default:"1m"`
	OrderTTL         time.Duration `envconfig:"RAMP_CRON_ORDER_TTL" default:"24h"`
	StaleTransferAge time.Duration `envconfig:"RAMP_CRON_STALE_TRANSFER_AGE" default:"10m"`
	OutboxRetention  time.Duration `envconfig:"RAMP_CRON_OUTBOX_RETENTION" default:"720h"`
}

// RateLimitConfig bounds requests per client within a fixed window.
type RateLimitConfig struct {
	Window        time.Duration `envconfig:"RAMP_RATE_LIMIT_WINDOW" default:"1m"`
	MutationLimit int           `envconfig:"RAMP_RATE_LIMIT_MUTATIONS" default:"30"`
	WebhookLimit  int           `envconfig:"RAMP_RATE_LIMIT_WEBHOOKS" default:"300"`
}

type IdempotencyConfig struct {
	DefaultTTL  time.Duration `envconfig:"RAMP_IDEMPOTENCY_DEFAULT_TTL" default:"24h"`
	CriticalTTL time.Duration `envconfig:"RAMP_IDEMPOTENCY_CRITICAL_TTL" default:"168h"`
	WebhookTTL  time.Duration `envconfig:"RAMP_IDEMPOTENCY_WEBHOOK_TTL" default:"72h"`
}

// useSQLite switches to the single-node sqlite driver, defaulting to a local file.
func (db *DBConfig) useSQLite() {
	db.Driver = DBDriverSQLite
	if db.DSN == "" {
		db.DSN = DefaultSQLiteDSN
	}
	// sqlite serialises writers; one connection avoids SQLITE_BUSY under load
	db.MaxOpenConns = 1
	db.MaxIdleConns = 1
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
