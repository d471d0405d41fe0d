package config

const (
	EnvPrefix = "AUCTIONHOUSE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "AUCTIONHOUSE_APP_ENV"
	EnvPort     = "AUCTIONHOUSE_APP_PORT"
	EnvLogLevel = "AUCTIONHOUSE_LOG_LEVEL"

	EnvDBDSN  = "AUCTIONHOUSE_DB_DSN"
	EnvDBHost = "AUCTIONHOUSE_DB_HOST"
	EnvDBUser = "AUCTIONHOUSE_DB_USER"
	EnvDBName = "AUCTIONHOUSE_DB_NAME"

	EnvUseSQLite = "AUCTIONHOUSE_USE_SQLITE"

	EnvRedisURL = "AUCTIONHOUSE_REDIS_URL"

	EnvGCPProjectID = "AUCTIONHOUSE_GCP_PROJECT_ID"

	EnvPubSubAuctionTopic   = "AUCTIONHOUSE_PUBSUB_AUCTION_TOPIC"
	EnvPubSubOrdersTopic    = "AUCTIONHOUSE_PUBSUB_ORDERS_TOPIC"
	EnvPubSubLiveFeedSub    = "AUCTIONHOUSE_PUBSUB_LIVEFEED_SUBSCRIPTION"
	EnvAuctionMaxAttempts   = "AUCTIONHOUSE_AUCTION_MAX_ATTEMPTS"
	EnvSchedulerInterval    = "AUCTIONHOUSE_SCHEDULER_INTERVAL"
	EnvLiveFeedAllowOrigins = "AUCTIONHOUSE_LIVEFEED_ALLOWED_ORIGINS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
