package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// DefaultPort returns the conventional port for the dialect, or 0 when the
// dialect has no network endpoint.
func (d *DatabaseConfig) DefaultPort() int {
	switch d.Dialect {
	case DialectPostgres:
		return 5432
	case DialectSQLite, DialectMemory:
		return 0
	default:
		return 3306
	}
}

func (d *DatabaseConfig) effectivePort() int {
	if d.Port > 0 {
		return d.Port
	}
	return d.DefaultPort()
}

// DSN returns the driver data source name for the configured dialect. An
// explicit ConnectionString is passed through, with MySQL time parsing forced
// on so DATETIME columns scan into time.Time.
func (d *DatabaseConfig) DSN() (string, error) {
	switch d.Dialect {
	case DialectPostgres:
		return d.postgresDSN(), nil
	case DialectSQLite:
		return d.sqliteDSN(), nil
	case DialectMemory:
		return "", nil
	default:
		return d.mysqlDSN()
	}
}

func (d *DatabaseConfig) mysqlDSN() (string, error) {
	var cfg *mysql.Config
	if d.ConnectionString != "" {
		parsed, err := mysql.ParseDSN(d.ConnectionString)
		if err != nil {
			return "", fmt.Errorf("database.dsn is invalid: %w", err)
		}
		cfg = parsed
	} else {
		cfg = mysql.NewConfig()
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.effectivePort()))
		cfg.DBName = d.Database
		cfg.Loc = time.UTC
	}
	cfg.ParseTime = true
	switch d.TLSMode {
	case "off":
		cfg.TLSConfig = "false"
	case "skip-verify":
		cfg.TLSConfig = "skip-verify"
	case "verify-full":
		cfg.TLSConfig = "true"
	}
	return cfg.FormatDSN(), nil
}

func (d *DatabaseConfig) postgresDSN() string {
	if d.ConnectionString != "" {
		return d.ConnectionString
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.effectivePort())),
		Path:   "/" + d.Database,
	}
	q := url.Values{}
	switch d.TLSMode {
	case "off":
		q.Set("sslmode", "disable")
	case "skip-verify":
		q.Set("sslmode", "require")
	case "verify-full":
		q.Set("sslmode", "verify-full")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (d *DatabaseConfig) sqliteDSN() string {
	if d.ConnectionString != "" {
		return d.ConnectionString
	}
	return "file:" + d.Path + "?mode=ro&_foreign_keys=on"
}

// SchemaName returns the catalog schema introspection reads. For MySQL it
// is the database name, taken from the DSN when database.database is empty.
// Other dialects return "" and use their own default (public for Postgres).
func (d *DatabaseConfig) SchemaName() string {
	if d.Dialect != DialectMySQL && d.Dialect != "" {
		return ""
	}
	if d.Database != "" || d.ConnectionString == "" {
		return d.Database
	}
	parsed, err := mysql.ParseDSN(d.ConnectionString)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(parsed.DBName)
}
