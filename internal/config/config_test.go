package config

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestAppConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *AppConfig)
		errMsg string
	}{
		{
			name:   "defaults are valid",
			modify: func(*AppConfig) {},
		},
		{
			name:   "zero shards",
			modify: func(c *AppConfig) { c.Autoshard.Shards = 0 },
			errMsg: "AUTOSHARD_SHARDS",
		},
		{
			name:   "unknown dialect",
			modify: func(c *AppConfig) { c.Database.Dialect = "oracle" },
			errMsg: "unknown dialect",
		},
		{
			name:   "template without placeholders",
			modify: func(c *AppConfig) { c.Reconcile.DropTemplate = "ALTER TABLE x" },
			errMsg: "must contain",
		},
		{
			name:   "empty target table",
			modify: func(c *AppConfig) { c.Reconcile.TargetTable = "" },
			errMsg: "RECONCILE_TARGET_TABLE",
		},
		{
			name:   "bad parallelism",
			modify: func(c *AppConfig) { c.Reconcile.Parallelism = 0 },
			errMsg: "RECONCILE_PARALLELISM",
		},
		{
			name:   "bad schedule",
			modify: func(c *AppConfig) { c.Reconcile.Schedule = "every tuesday" },
			errMsg: "RECONCILE_SCHEDULE",
		},
		{
			name:   "descriptor schedule",
			modify: func(c *AppConfig) { c.Reconcile.Schedule = "@every 30m" },
		},
		{
			name:   "journal without path",
			modify: func(c *AppConfig) { c.Journal.Path = "" },
			errMsg: "JOURNAL_PATH",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestAppConfig_DialectOverride(t *testing.T) {
	cfg := Default()
	cfg.Reconcile.DropTemplate = "ALTER TABLE {table} DROP CONSTRAINT {name}"

	d, err := cfg.Dialect()
	require.NoError(t, err)
	assert.Equal(t, "ALTER TABLE orders DROP CONSTRAINT fk", d.DropForeignKeySQL("orders", "fk"))
}

func TestPrimaryDSN(t *testing.T) {
	db := DatabaseConfig{Host: "db.local", Port: "3306", User: "app", Password: "secret", Name: "main"}

	assert.Equal(t, "app:secret@tcp(db.local:3306)/main?parseTime=true", PrimaryDSN("mysql", db))

	db.Port = "5432"
	assert.Equal(t, "host=db.local port=5432 dbname=main sslmode=disable user=app password=secret", PrimaryDSN("postgres", db))
}

func TestInitDatabases(t *testing.T) {
	cfg := Default()
	cfg.Database.ShardDSNs = []string{"root@tcp(shard0)/app", " root@tcp(shard1)/app "}

	var opened []string
	open := func(_ context.Context, driverName, dsn string) (*sql.DB, error) {
		assert.Equal(t, "mysql", driverName)
		opened = append(opened, dsn)
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		mock.ExpectClose()
		return db, nil
	}

	targets, err := initDatabases(context.Background(), cfg, zaptest.NewLogger(t), open)
	require.NoError(t, err)
	defer CloseTargets(targets)

	require.Len(t, targets, 3)
	assert.Equal(t, []string{"default", "shard_0", "shard_1"}, []string{targets[0].Name, targets[1].Name, targets[2].Name})
	assert.Equal(t, "root@tcp(shard1)/app", opened[2])
}

func TestInitDatabases_ClosesOnFailure(t *testing.T) {
	cfg := Default()
	cfg.Database.ShardDSNs = []string{"broken"}

	primary, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	open := func(_ context.Context, _, dsn string) (*sql.DB, error) {
		if dsn == "broken" {
			return nil, errors.New("connection refused")
		}
		return primary, nil
	}

	_, err = initDatabases(context.Background(), cfg, nil, open)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shard_0")
	assert.NoError(t, mock.ExpectationsWereMet(), "primary handle should be closed")
}

func TestSettings(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	assert.Panics(t, func() { Settings() })

	cfg := Default()
	cfg.Autoshard.Shards = 16
	require.NoError(t, Init(cfg))
	assert.Equal(t, 16, Settings().Autoshard.Shards)

	assert.ErrorIs(t, Init(Default()), ErrAlreadyInitialized)
}

func TestInit_RejectsInvalid(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	cfg := Default()
	cfg.Autoshard.Shards = -1
	assert.Error(t, Init(cfg))
	assert.Panics(t, func() { Settings() })
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "autoshard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sharded:\n  - orders\n  - payments\nshard_related:\n  - order_notes\n"), 0o600))

	t.Run("file only", func(t *testing.T) {
		m, err := LoadManifest(path, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"orders", "payments"}, m.Sharded)
		assert.Equal(t, []string{"order_notes"}, m.ShardRelated)
	})

	t.Run("env overrides file lists", func(t *testing.T) {
		t.Setenv("AUTOSHARD_MANIFEST_SHARDED", "invoices, refunds")
		m, err := LoadManifest(path, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"invoices", "refunds"}, m.Sharded)
	})

	t.Run("flags merge with file", func(t *testing.T) {
		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		fs.StringSlice("sharded", nil, "")
		fs.StringSlice("shard-related", nil, "")
		require.NoError(t, fs.Parse([]string{"--sharded", "ORDERS,carts", "--shard-related", "cart_items"}))

		m, err := LoadManifest(path, fs)
		require.NoError(t, err)
		assert.Equal(t, []string{"carts", "orders", "payments"}, m.Sharded)
		assert.Equal(t, []string{"cart_items", "order_notes"}, m.ShardRelated)
	})

	t.Run("missing default file is fine", func(t *testing.T) {
		m, err := LoadManifest(DefaultManifestFile, nil)
		require.NoError(t, err)
		assert.Empty(t, m.Sharded)
	})

	t.Run("missing explicit file fails", func(t *testing.T) {
		_, err := LoadManifest(filepath.Join(dir, "nope.yaml"), nil)
		assert.Error(t, err)
	})
}
