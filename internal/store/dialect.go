package store

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
)

// Dialect selects the SQL flavour spoken by the backing database. Queries are
// written once with $N placeholders and rebound per dialect.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

func ParseDialect(value string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unknown store dialect %q", value)
	}
}

var placeholderPattern = regexp.MustCompile(`\$(\d+)`)

// Rebind rewrites $N placeholders into the dialect's own form.
func (d Dialect) Rebind(query string) string {
	if d == DialectSQLite {
		return placeholderPattern.ReplaceAllString(query, "?$1")
	}
	return query
}

// orderColumn is the column that records insertion order for table alias.
func (d Dialect) orderColumn(alias string) string {
	column := "seq"
	if d == DialectSQLite {
		column = "rowid"
	}
	if alias == "" {
		return column
	}
	return alias + "." + column
}

func (d Dialect) lockClause() string {
	if d == DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

func (d Dialect) snapshotTxOptions() *sql.TxOptions {
	if d == DialectPostgres {
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	return nil
}
