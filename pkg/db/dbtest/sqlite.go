// Package dbtest opens throwaway sqlite databases carrying the auction schema.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/auctionhouse-backend/pkg/db"
)

// Money columns use NUMERIC affinity so ORDER BY compares values, not strings.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  display_name TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  seller_id TEXT NOT NULL,
  title TEXT NOT NULL,
  start_price NUMERIC NOT NULL,
  current_price NUMERIC,
  buy_now_price NUMERIC,
  bid_increment NUMERIC NOT NULL,
  start_time DATETIME NOT NULL,
  end_time DATETIME NOT NULL,
  auto_extend BOOLEAN NOT NULL DEFAULT 1,
  status TEXT NOT NULL DEFAULT 'scheduled',
  leading_bidder_id TEXT,
  bid_count INTEGER NOT NULL DEFAULT 0,
  version INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS bids (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  bidder_id TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  is_auto_bid BOOLEAN NOT NULL DEFAULT 0,
  sequence INTEGER NOT NULL,
  created_at DATETIME,
  UNIQUE (product_id, sequence)
);`,
	`CREATE TABLE IF NOT EXISTS auto_bid_configs (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  bidder_id TEXT NOT NULL,
  max_price NUMERIC NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS auction_rules (
  id TEXT PRIMARY KEY,
  time_threshold_minutes INTEGER NOT NULL,
  extension_minutes INTEGER NOT NULL,
  active BOOLEAN NOT NULL DEFAULT 1,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL UNIQUE,
  buyer_id TEXT NOT NULL,
  seller_id TEXT NOT NULL,
  final_price NUMERIC NOT NULL,
  winning_bid_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending_payment',
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS bidder_exclusions (
  product_id TEXT NOT NULL,
  bidder_id TEXT NOT NULL,
  reason TEXT,
  created_at DATETIME,
  PRIMARY KEY (product_id, bidder_id)
);`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload BLOB NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json BLOB NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`,
}

// Open returns a private in-memory database with every auction table created.
// Each call gets its own database so tests never share rows.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
		NowFunc:                db.NowUTC,
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

// Client wraps Open in a *db.Client.
func Client(t *testing.T) *db.Client {
	t.Helper()
	return db.NewFromConn(Open(t))
}
