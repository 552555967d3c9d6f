package config

import (
	"fmt"

	"autoshard/internal/dialect"

	"github.com/robfig/cron/v3"
)

type AppConfig struct {
	Autoshard AutoshardConfig `envPrefix:"AUTOSHARD_"`
	Database  DatabaseConfig  `envPrefix:"DB_"`
	Reconcile ReconcileConfig `envPrefix:"RECONCILE_"`
	Server    ServerConfig    `envPrefix:"SERVER_"`
	Journal   JournalConfig   `envPrefix:"JOURNAL_"`
	Log       LogConfig       `envPrefix:"LOG_"`
}

type AutoshardConfig struct {
	// Shards is the number of shard databases rows are distributed across.
	Shards int `env:"SHARDS" envDefault:"10"`
}

type DatabaseConfig struct {
	Dialect  string `env:"DIALECT" envDefault:"mysql"`
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     string `env:"PORT" envDefault:"3306"`
	User     string `env:"USER" envDefault:"root"`
	Password string `env:"PASSWORD" envDefault:"password"`
	Name     string `env:"NAME" envDefault:"app"`

	// ShardDSNs are reconciled alongside the primary database, in order.
	ShardDSNs []string `env:"SHARD_DSNS" envSeparator:","`
}

type ReconcileConfig struct {
	TargetTable string `env:"TARGET_TABLE" envDefault:"auth_user"`

	// DropTemplate overrides the dialect's drop statement. It must contain
	// {table} and {name}.
	DropTemplate string `env:"DROP_TEMPLATE"`

	Parallelism int `env:"PARALLELISM" envDefault:"4"`

	Schedule string `env:"SCHEDULE" envDefault:"0 * * * *"`

	// ScheduledDryRun makes scheduled runs list statements instead of executing them.
	ScheduledDryRun bool `env:"SCHEDULED_DRY_RUN" envDefault:"true"`
}

type ServerConfig struct {
	Port string `env:"PORT" envDefault:"3000"`
}

type JournalConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"true"`
	Path    string `env:"PATH" envDefault:".autoshard/journal.db"`
}

type LogConfig struct {
	Level string `env:"LEVEL" envDefault:"info"`
}

// Validate checks values that the env tags cannot express.
func (c *AppConfig) Validate() error {
	if c.Autoshard.Shards < 1 {
		return fmt.Errorf("AUTOSHARD_SHARDS must be at least 1, got %d", c.Autoshard.Shards)
	}

	d, err := dialect.Get(c.Database.Dialect)
	if err != nil {
		return err
	}
	if _, err := d.WithTemplate(c.Reconcile.DropTemplate); err != nil {
		return err
	}

	if c.Reconcile.TargetTable == "" {
		return fmt.Errorf("RECONCILE_TARGET_TABLE is required")
	}
	if c.Reconcile.Parallelism < 1 {
		return fmt.Errorf("RECONCILE_PARALLELISM must be at least 1, got %d", c.Reconcile.Parallelism)
	}
	if _, err := cron.ParseStandard(c.Reconcile.Schedule); err != nil {
		return fmt.Errorf("invalid RECONCILE_SCHEDULE %q: %w", c.Reconcile.Schedule, err)
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("JOURNAL_PATH is required when the journal is enabled")
	}

	return nil
}

// Dialect returns the configured dialect with any template override applied.
func (c *AppConfig) Dialect() (*dialect.Dialect, error) {
	d, err := dialect.Get(c.Database.Dialect)
	if err != nil {
		return nil, err
	}
	return d.WithTemplate(c.Reconcile.DropTemplate)
}

// Default returns a config populated with the documented defaults.
func Default() *AppConfig {
	return &AppConfig{
		Autoshard: AutoshardConfig{Shards: 10},
		Database: DatabaseConfig{
			Dialect:  dialect.MySQL,
			Host:     "localhost",
			Port:     "3306",
			User:     "root",
			Password: "password",
			Name:     "app",
		},
		Reconcile: ReconcileConfig{
			TargetTable:     "auth_user",
			Parallelism:     4,
			Schedule:        "0 * * * *",
			ScheduledDryRun: true,
		},
		Server:  ServerConfig{Port: "3000"},
		Journal: JournalConfig{Enabled: true, Path: ".autoshard/journal.db"},
		Log:     LogConfig{Level: "info"},
	}
}
