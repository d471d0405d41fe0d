package migrate_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/auctionhouse-backend/pkg/db/dbtest"
	"github.com/angelmondragon/auctionhouse-backend/pkg/migrate"
)

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	sqlDB, err := dbtest.Open(t).DB()
	require.NoError(t, err)

	embedded, err := migrate.New(sqlDB, "")
	require.NoError(t, err)
	disk, err := migrate.New(sqlDB, "migrations")
	require.NoError(t, err)

	versions := embedded.Versions()
	require.NotEmpty(t, versions)
	assert.Equal(t, disk.Versions(), versions)
	assert.EqualValues(t, 20260105090000, versions[0])
	for i := 1; i < len(versions); i++ {
		assert.Less(t, versions[i-1], versions[i])
	}
}

func TestNewRejectsMissingInputs(t *testing.T) {
	_, err := migrate.New(nil, "")
	require.Error(t, err)

	sqlDB, err := dbtest.Open(t).DB()
	require.NoError(t, err)
	_, err = migrate.New(sqlDB, t.TempDir()+"/missing")
	require.Error(t, err)

	broken := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(broken, "20260301000000_no_down.sql"), []byte("-- +goose Up\nSELECT 1;\n"), 0o644))
	_, err = migrate.New(sqlDB, broken)
	assert.ErrorContains(t, err, "20260301000000_no_down.sql")
}

func TestParseVersion(t *testing.T) {
	v, err := migrate.ParseVersion("20260105090200")
	require.NoError(t, err)
	assert.EqualValues(t, 20260105090200, v)

	v, err = migrate.ParseVersion("0")
	require.NoError(t, err)
	assert.Zero(t, v)

	for _, bad := range []string{"", "abc", "2026", "-20260105090200"} {
		_, err := migrate.ParseVersion(bad)
		assert.Error(t, err, bad)
	}
}
