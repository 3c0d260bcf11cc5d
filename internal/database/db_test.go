package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanhub/internal/config"
	"scanhub/internal/models"
	"scanhub/pkg/logger"
)

func TestConnectSQLiteMigratesSchema(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver:         "sqlite",
		Path:           filepath.Join(t.TempDir(), "scanhub.db"),
		ConnectTimeout: time.Second,
	}

	db, err := Connect(cfg, logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	for _, model := range models.All() {
		assert.True(t, db.Migrator().HasTable(model))
	}
}

func TestDialectorRejectsUnknownDriver(t *testing.T) {
	_, err := Dialector(config.DatabaseConfig{Driver: "mysql"})
	assert.Error(t, err)

	d, err := Dialector(config.DatabaseConfig{Driver: "postgres", Host: "db", Name: "scanhub"})
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())
}
