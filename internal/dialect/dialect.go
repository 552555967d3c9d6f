// Package dialect holds the per-database DDL templates used to drop
// foreign-key constraints.
package dialect

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/lib/pq"
)

const (
	MySQL    = "mysql"
	Postgres = "postgres"
)

// Template placeholders.
const (
	TablePlaceholder = "{table}"
	NamePlaceholder  = "{name}"
)

var (
	mysqlBare    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	postgresBare = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
)

// Dialect describes how to talk to one database engine.
type Dialect struct {
	Name string
	// DriverName is the database/sql driver registered for this dialect.
	DriverName string
	// DropForeignKey is the statement template with {table} and {name} placeholders.
	DropForeignKey string
	quote          func(string) string
	// bare matches identifiers the server reads back unchanged without quotes.
	bare     *regexp.Regexp
	reserved map[string]struct{}
}

var registry = map[string]*Dialect{
	MySQL: {
		Name:           MySQL,
		DriverName:     "mysql",
		DropForeignKey: "ALTER TABLE {table} DROP FOREIGN KEY {name}",
		quote: func(s string) string {
			return "`" + strings.ReplaceAll(s, "`", "``") + "`"
		},
		bare:     mysqlBare,
		reserved: mysqlReserved,
	},
	Postgres: {
		Name:           Postgres,
		DriverName:     "pgx",
		DropForeignKey: "ALTER TABLE {table} DROP CONSTRAINT {name}",
		quote:          pq.QuoteIdentifier,
		bare:           postgresBare,
		reserved:       postgresReserved,
	},
}

// Get returns the dialect registered under name.
func Get(name string) (*Dialect, error) {
	d, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, &UnknownDialectError{Name: name, Available: Available()}
	}
	return d, nil
}

// Available returns the registered dialect names, sorted.
func Available() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithTemplate returns a copy of d that renders tmpl instead of the built-in
// drop template. An empty tmpl returns d unchanged.
func (d *Dialect) WithTemplate(tmpl string) (*Dialect, error) {
	if tmpl == "" {
		return d, nil
	}
	if err := ValidateTemplate(tmpl); err != nil {
		return nil, err
	}
	cp := *d
	cp.DropForeignKey = tmpl
	return &cp, nil
}

// ValidateTemplate checks that tmpl carries both placeholders.
func ValidateTemplate(tmpl string) error {
	if !strings.Contains(tmpl, TablePlaceholder) || !strings.Contains(tmpl, NamePlaceholder) {
		return fmt.Errorf("drop template %q must contain %s and %s", tmpl, TablePlaceholder, NamePlaceholder)
	}
	return nil
}

// QuoteIdent quotes an identifier unless it is a bare name that is not a
// reserved word. Postgres folds unquoted names to lower case, so any upper
// case letter forces quoting there.
func (d *Dialect) QuoteIdent(ident string) string {
	if d.bare.MatchString(ident) {
		if _, ok := d.reserved[strings.ToLower(ident)]; !ok {
			return ident
		}
	}
	return d.quote(ident)
}

// DropForeignKeySQL renders the drop statement for constraint name on table.
func (d *Dialect) DropForeignKeySQL(table, name string) string {
	r := strings.NewReplacer(
		TablePlaceholder, d.QuoteIdent(table),
		NamePlaceholder, d.QuoteIdent(name),
	)
	return r.Replace(d.DropForeignKey)
}

type UnknownDialectError struct {
	Name      string
	Available []string
}

func (e *UnknownDialectError) Error() string {
	return fmt.Sprintf("unknown dialect %q (available: %s)", e.Name, strings.Join(e.Available, ", "))
}
