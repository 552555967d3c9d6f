package config

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strings"
	"time"

	"autoshard/internal/dialect"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// PrimaryDatabase is the name given to the database described by DB_HOST & co.
const PrimaryDatabase = "default"

// Target is one database the reconciler runs against.
type Target struct {
	Name    string
	Dialect *dialect.Dialect
	DB      *sql.DB
}

// Opener opens and verifies a database handle.
type Opener func(ctx context.Context, driverName, dsn string) (*sql.DB, error)

func openAndPing(ctx context.Context, driverName, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	return db, nil
}

// InitDatabases connects to the primary database and every shard DSN.
func InitDatabases(ctx context.Context, cfg *AppConfig, logger *zap.Logger) ([]Target, error) {
	return initDatabases(ctx, cfg, logger, openAndPing)
}

func initDatabases(ctx context.Context, cfg *AppConfig, logger *zap.Logger, open Opener) ([]Target, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	d, err := cfg.Dialect()
	if err != nil {
		return nil, err
	}

	dsns := []struct{ name, dsn string }{{PrimaryDatabase, PrimaryDSN(d.Name, cfg.Database)}}
	for i, dsn := range cfg.Database.ShardDSNs {
		dsns = append(dsns, struct{ name, dsn string }{fmt.Sprintf("shard_%d", i), strings.TrimSpace(dsn)})
	}

	if n := len(cfg.Database.ShardDSNs); n > 0 && n != cfg.Autoshard.Shards {
		logger.Warn("shard DSN count does not match AUTOSHARD_SHARDS",
			zap.Int("dsns", n), zap.Int("shards", cfg.Autoshard.Shards))
	}

	targets := make([]Target, 0, len(dsns))
	for _, entry := range dsns {
		db, err := open(ctx, d.DriverName, entry.dsn)
		if err != nil {
			CloseTargets(targets)
			return nil, fmt.Errorf("database %s: %w", entry.name, err)
		}
		logger.Info("connected to database", zap.String("database", entry.name), zap.String("dialect", d.Name))
		targets = append(targets, Target{Name: entry.name, Dialect: d, DB: db})
	}

	return targets, nil
}

// CloseTargets closes every handle in targets.
func CloseTargets(targets []Target) {
	for _, t := range targets {
		if t.DB != nil {
			_ = t.DB.Close()
		}
	}
}

// PrimaryDSN builds the driver DSN for the primary database.
func PrimaryDSN(dialectName string, db DatabaseConfig) string {
	switch dialectName {
	case dialect.Postgres:
		dsn := fmt.Sprintf("host=%s port=%s dbname=%s sslmode=disable", db.Host, db.Port, db.Name)
		if db.User != "" {
			dsn += fmt.Sprintf(" user=%s", db.User)
		}
		if db.Password != "" {
			dsn += fmt.Sprintf(" password=%s", db.Password)
		}
		return dsn
	default:
		mc := mysql.NewConfig()
		mc.User = db.User
		mc.Passwd = db.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(db.Host, db.Port)
		mc.DBName = db.Name
		mc.ParseTime = true
		return mc.FormatDSN()
	}
}
