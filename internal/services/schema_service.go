package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"autoshard/internal/dialect"
	"autoshard/internal/models"

	"github.com/stephenafamo/scan"
	"github.com/stephenafamo/scan/stdscan"
	"go.uber.org/zap"
)

const (
	introspectionTimeout = 10 * time.Second
	ddlTimeout           = 30 * time.Second
)

// querier is satisfied by both *sql.DB and *sql.Conn.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SchemaService reads constraint metadata from a live database and runs DDL
// against it. A service returned by Session is pinned to one connection.
type SchemaService struct {
	db      *sql.DB
	conn    *sql.Conn
	q       querier
	dialect *dialect.Dialect
	logger  *zap.Logger
}

func NewSchemaService(db *sql.DB, d *dialect.Dialect, logger *zap.Logger) *SchemaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemaService{
		db:      db,
		q:       db,
		dialect: d,
		logger:  logger,
	}
}

// Session checks out a single connection from the pool. Every call on the
// returned service runs on that connection until Close.
func (s *SchemaService) Session(ctx context.Context) (SchemaSession, error) {
	if s.conn != nil {
		return nil, fmt.Errorf("schema service is already a session")
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &SchemaService{
		db:      s.db,
		conn:    conn,
		q:       conn,
		dialect: s.dialect,
		logger:  s.logger,
	}, nil
}

// Close returns a session's connection to the pool. It is a no-op on the
// pool-backed service.
func (s *SchemaService) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

const mysqlTablesQuery = `SELECT TABLE_NAME
	          FROM information_schema.TABLES
	          WHERE TABLE_SCHEMA = DATABASE()
	          AND TABLE_TYPE = 'BASE TABLE'
	          ORDER BY TABLE_NAME`

const postgresTablesQuery = `SELECT table_name
	          FROM information_schema.tables
	          WHERE table_schema = current_schema()
	          AND table_type = 'BASE TABLE'
	          ORDER BY table_name`

// ListTables returns the base tables of the current schema.
func (s *SchemaService) ListTables(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, introspectionTimeout)
	defer cancel()

	query := mysqlTablesQuery
	if s.dialect.Name == dialect.Postgres {
		query = postgresTablesQuery
	}

	tables, err := stdscan.All(ctx, s.q, scan.SingleColumnMapper[string], query)
	if err != nil {
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}
	return tables, nil
}

const mysqlConstraintsQuery = `SELECT
	            tc.CONSTRAINT_NAME AS name,
	            tc.CONSTRAINT_TYPE AS type,
	            kcu.REFERENCED_TABLE_NAME AS referenced_table,
	            kcu.COLUMN_NAME AS column_name
	          FROM information_schema.TABLE_CONSTRAINTS tc
	          LEFT JOIN information_schema.KEY_COLUMN_USAGE kcu
	            ON kcu.CONSTRAINT_SCHEMA = tc.CONSTRAINT_SCHEMA
	            AND kcu.TABLE_NAME = tc.TABLE_NAME
	            AND kcu.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
	          WHERE tc.TABLE_SCHEMA = DATABASE()
	          AND tc.TABLE_NAME = ?
	          ORDER BY tc.CONSTRAINT_NAME, kcu.ORDINAL_POSITION`

const postgresConstraintsQuery = `SELECT
	            con.conname AS name,
	            con.contype::text AS type,
	            ref.relname AS referenced_table,
	            att.attname AS column_name
	          FROM pg_catalog.pg_constraint con
	          INNER JOIN pg_catalog.pg_class rel
	            ON rel.oid = con.conrelid
	          INNER JOIN pg_catalog.pg_namespace nsp
	            ON nsp.oid = rel.relnamespace
	          LEFT JOIN pg_catalog.pg_class ref
	            ON ref.oid = con.confrelid
	          LEFT JOIN pg_catalog.pg_attribute att
	            ON att.attrelid = con.conrelid
	            AND att.attnum = ANY(con.conkey)
	          WHERE nsp.nspname = current_schema()
	          AND rel.relname = $1
	          ORDER BY con.conname, att.attnum`

type constraintRow struct {
	Name            string         `db:"name"`
	Type            string         `db:"type"`
	ReferencedTable sql.NullString `db:"referenced_table"`
	ColumnName      sql.NullString `db:"column_name"`
}

// GetConstraints returns the constraints of tableName keyed by name. A
// multi-column constraint yields a single descriptor.
func (s *SchemaService) GetConstraints(ctx context.Context, tableName string) (map[string]models.ConstraintDescriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, introspectionTimeout)
	defer cancel()

	query := mysqlConstraintsQuery
	if s.dialect.Name == dialect.Postgres {
		query = postgresConstraintsQuery
	}

	rows, err := stdscan.All(ctx, s.q, scan.StructMapper[constraintRow](), query, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to get constraints: %w", err)
	}

	constraints := make(map[string]models.ConstraintDescriptor)
	for _, row := range rows {
		c, ok := constraints[row.Name]
		if !ok {
			c = models.ConstraintDescriptor{Name: row.Name, Kind: s.constraintKind(row.Type)}
		}
		if c.Kind == models.ForeignKey && row.ReferencedTable.Valid {
			c.ReferencedTable = row.ReferencedTable.String
		}
		if row.ColumnName.Valid {
			c.Columns = append(c.Columns, row.ColumnName.String)
		}
		constraints[row.Name] = c
	}

	return constraints, nil
}

func (s *SchemaService) constraintKind(raw string) models.ConstraintKind {
	switch {
	case s.dialect.Name == dialect.Postgres && raw == "f":
		return models.ForeignKey
	case raw == "FOREIGN KEY":
		return models.ForeignKey
	default:
		return models.Other
	}
}

// Exec runs a single DDL statement. A driver timeout fails only this
// statement.
func (s *SchemaService) Exec(ctx context.Context, stmt string) error {
	ctx, cancel := context.WithTimeout(ctx, ddlTimeout)
	defer cancel()

	s.logger.Debug("executing statement", zap.String("statement", stmt))
	if _, err := s.q.ExecContext(ctx, stmt); err != nil {
		return err
	}
	return nil
}
