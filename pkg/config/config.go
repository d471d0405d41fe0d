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
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Auction      AuctionConfig
	Scheduler    SchedulerConfig
	LiveFeed     LiveFeedConfig
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
	Env          string `envconfig:"AUCTIONHOUSE_APP_ENV" required:"true"`
	Port         string `envconfig:"AUCTIONHOUSE_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"AUCTIONHOUSE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"AUCTIONHOUSE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"AUCTIONHOUSE_SERVICE_KIND" default:"cron-worker"`
}

type DBConfig struct {
	DSN    string `envconfig:"AUCTIONHOUSE_DB_DSN"`
	Driver string `envconfig:"AUCTIONHOUSE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"AUCTIONHOUSE_DB_HOST"`
	LegacyPort     int    `envconfig:"AUCTIONHOUSE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"AUCTIONHOUSE_DB_USER"`
	LegacyPassword string `envconfig:"AUCTIONHOUSE_DB_PASSWORD"`
	LegacyName     string `envconfig:"AUCTIONHOUSE_DB_NAME"`
	LegacySSLMode  string `envconfig:"AUCTIONHOUSE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"AUCTIONHOUSE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"AUCTIONHOUSE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"AUCTIONHOUSE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"AUCTIONHOUSE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"AUCTIONHOUSE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"AUCTIONHOUSE_REDIS_ADDR"`
	Password     string        `envconfig:"AUCTIONHOUSE_REDIS_PASSWORD"`
	DB           int           `envconfig:"AUCTIONHOUSE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"AUCTIONHOUSE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"AUCTIONHOUSE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"AUCTIONHOUSE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"AUCTIONHOUSE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"AUCTIONHOUSE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool   `envconfig:"AUCTIONHOUSE_USE_SQLITE" default:"false"`
	SQLitePath  string `envconfig:"AUCTIONHOUSE_SQLITE_PATH" default:"auctionhouse.db"`
	AutoMigrate bool   `envconfig:"AUCTIONHOUSE_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"AUCTIONHOUSE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"AUCTIONHOUSE_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"AUCTIONHOUSE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"AUCTIONHOUSE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	AuctionTopic          string `envconfig:"AUCTIONHOUSE_PUBSUB_AUCTION_TOPIC" required:"true"`
	AuctionSubscription   string `envconfig:"AUCTIONHOUSE_PUBSUB_AUCTION_SUBSCRIPTION"`
	OrdersTopic           string `envconfig:"AUCTIONHOUSE_PUBSUB_ORDERS_TOPIC" required:"true"`
	OrdersSubscription    string `envconfig:"AUCTIONHOUSE_PUBSUB_ORDERS_SUBSCRIPTION"`
	LiveFeedSubscription  string `envconfig:"AUCTIONHOUSE_PUBSUB_LIVEFEED_SUBSCRIPTION" required:"true"`
	ReceiveMaxOutstanding int    `envconfig:"AUCTIONHOUSE_PUBSUB_RECEIVE_MAX_OUTSTANDING" default:"100"`
}

type OutboxConfig struct {
	BatchSize        int           `envconfig:"AUCTIONHOUSE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS   int           `envconfig:"AUCTIONHOUSE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts      int           `envconfig:"AUCTIONHOUSE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays    int           `envconfig:"AUCTIONHOUSE_OUTBOX_RETENTION_DAYS" default:"30"`
	DLQRetentionDays int           `envconfig:"AUCTIONHOUSE_OUTBOX_DLQ_RETENTION_DAYS" default:"90"`
	PublishTimeout   time.Duration `envconfig:"AUCTIONHOUSE_OUTBOX_PUBLISH_TIMEOUT" default:"15s"`
	MaxBackoff       time.Duration `envconfig:"AUCTIONHOUSE_OUTBOX_MAX_BACKOFF" default:"10s"`
	// OpsPort serves /health and /metrics for the publisher. Empty disables it.
	OpsPort string `envconfig:"AUCTIONHOUSE_OUTBOX_OPS_PORT" default:"9091"`
}

// AuctionConfig tunes the bidding engine.
type AuctionConfig struct {
	MaxAttempts      int           `envconfig:"AUCTIONHOUSE_AUCTION_MAX_ATTEMPTS" default:"3"`
	RetryBaseBackoff time.Duration `envconfig:"AUCTIONHOUSE_AUCTION_RETRY_BACKOFF" default:"25ms"`
	TxTimeout        time.Duration `envconfig:"AUCTIONHOUSE_AUCTION_TX_TIMEOUT" default:"5s"`
	HistoryTailSize  int           `envconfig:"AUCTIONHOUSE_AUCTION_HISTORY_TAIL" default:"20"`
}

// SchedulerConfig drives the cron worker sweeps. Schedule takes precedence over Interval.
type SchedulerConfig struct {
	Interval   time.Duration `envconfig:"AUCTIONHOUSE_SCHEDULER_INTERVAL" default:"30s"`
	Schedule   string        `envconfig:"AUCTIONHOUSE_SCHEDULER_SCHEDULE"`
	BatchSize  int           `envconfig:"AUCTIONHOUSE_SCHEDULER_BATCH_SIZE" default:"100"`
	PoolSize   int           `envconfig:"AUCTIONHOUSE_SCHEDULER_POOL_SIZE" default:"8"`
	LockTTL    time.Duration `envconfig:"AUCTIONHOUSE_SCHEDULER_LOCK_TTL" default:"5m"`
	JobTimeout time.Duration `envconfig:"AUCTIONHOUSE_SCHEDULER_JOB_TIMEOUT" default:"2m"`
	// OpsPort serves /health and /metrics for the cron worker. Empty disables it.
	OpsPort string `envconfig:"AUCTIONHOUSE_SCHEDULER_OPS_PORT" default:"9092"`
}

type LiveFeedConfig struct {
	Port             string        `envconfig:"AUCTIONHOUSE_LIVEFEED_PORT" default:"8090"`
	WriteTimeout     time.Duration `envconfig:"AUCTIONHOUSE_LIVEFEED_WRITE_TIMEOUT" default:"10s"`
	PongTimeout      time.Duration `envconfig:"AUCTIONHOUSE_LIVEFEED_PONG_TIMEOUT" default:"60s"`
	SendBuffer       int           `envconfig:"AUCTIONHOUSE_LIVEFEED_SEND_BUFFER" default:"32"`
	InboundRate      float64       `envconfig:"AUCTIONHOUSE_LIVEFEED_INBOUND_RATE" default:"1"`
	InboundBurst     int           `envconfig:"AUCTIONHOUSE_LIVEFEED_INBOUND_BURST" default:"3"`
	ConnectLimit     int64         `envconfig:"AUCTIONHOUSE_LIVEFEED_CONNECT_LIMIT" default:"30"`
	ConnectWindow    time.Duration `envconfig:"AUCTIONHOUSE_LIVEFEED_CONNECT_WINDOW" default:"1m"`
	AllowedOriginCSV string        `envconfig:"AUCTIONHOUSE_LIVEFEED_ALLOWED_ORIGINS"`
}

// AllowedOrigins returns the trimmed origin allow-list; empty means any origin.
func (l LiveFeedConfig) AllowedOrigins() []string {
	origins := []string{}
	for _, origin := range strings.Split(l.AllowedOriginCSV, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
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
