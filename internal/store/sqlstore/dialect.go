package sqlstore

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"relquery/internal/planner"
	"relquery/internal/sqlutil"
)

// Dialect selects identifier quoting, placeholders and NULL ordering.
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// ParseDialect accepts the dialect names used in configuration, plus the
// database/sql driver names that map onto them.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mysql", "tidb", "mariadb":
		return MySQL, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unsupported SQL dialect %q", name)
	}
}

// DriverName returns the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	switch d {
	case Postgres:
		return "pgx"
	case SQLite:
		return "sqlite3"
	default:
		return "mysql"
	}
}

// Quote quotes an identifier.
func (d Dialect) Quote(name string) string {
	if d == MySQL {
		return sqlutil.QuoteIdentifier(name)
	}
	return sqlutil.QuoteIdentifierANSI(name)
}

func (d Dialect) placeholders() sq.PlaceholderFormat {
	if d == Postgres {
		return sq.Dollar
	}
	return sq.Question
}

// orderBy renders one ORDER BY term. NULL sorts first ascending and last
// descending; MySQL and SQLite already behave that way, PostgreSQL does the
// opposite and needs it spelled out.
func (d Dialect) orderBy(term planner.OrderTerm) string {
	clause := d.Quote(term.Column) + " " + term.Direction()
	if d == Postgres {
		if term.Desc {
			clause += " NULLS LAST"
		} else {
			clause += " NULLS FIRST"
		}
	}
	return clause
}
