package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/auctionhouse-backend/pkg/config"
)

type ledgerRow struct {
	ID     int
	Amount int
}

func openClient(t *testing.T) *Client {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&ledgerRow{}))
	client := NewFromConn(conn)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func countRows(t *testing.T, c *Client) int64 {
	t.Helper()
	var n int64
	require.NoError(t, c.DB().Model(&ledgerRow{}).Count(&n).Error)
	return n
}

func TestWithTxCommits(t *testing.T) {
	c := openClient(t)
	err := c.WithTx(context.Background(), func(tx *gorm.DB) error {
		return tx.Create(&ledgerRow{Amount: 100}).Error
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, countRows(t, c))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	c := openClient(t)
	boom := errors.New("boom")
	err := c.WithTx(context.Background(), func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(&ledgerRow{Amount: 100}).Error)
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Zero(t, countRows(t, c))
}

func TestWithTxRollsBackAndRepanics(t *testing.T) {
	c := openClient(t)
	assert.PanicsWithValue(t, "kaboom", func() {
		_ = c.WithTx(context.Background(), func(tx *gorm.DB) error {
			require.NoError(t, tx.Create(&ledgerRow{Amount: 100}).Error)
			panic("kaboom")
		})
	})
	assert.Zero(t, countRows(t, c))
}

func TestPing(t *testing.T) {
	require.NoError(t, openClient(t).Ping(context.Background()))
}

func TestDialectorFor(t *testing.T) {
	_, err := dialectorFor(config.DBConfig{}, config.FeatureFlagsConfig{})
	require.Error(t, err)

	_, err = dialectorFor(config.DBConfig{}, config.FeatureFlagsConfig{UseSQLite: true})
	require.Error(t, err)

	d, err := dialectorFor(config.DBConfig{}, config.FeatureFlagsConfig{UseSQLite: true, SQLitePath: "file::memory:"})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())

	d, err = dialectorFor(config.DBConfig{DSN: "postgres://localhost/auctionhouse"}, config.FeatureFlagsConfig{})
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())
}

func TestNewOpensSQLiteWithSingleWriter(t *testing.T) {
	c, err := New(context.Background(),
		config.DBConfig{MaxOpenConns: 20, ConnMaxLifetime: time.Hour},
		config.FeatureFlagsConfig{UseSQLite: true, SQLitePath: "file:new_single_writer?mode=memory&cache=shared"},
		nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	sqlDB, err := c.DB().DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
	assert.True(t, NowUTC().Location() == time.UTC)
}
