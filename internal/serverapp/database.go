package serverapp

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"time"

	"relquery/internal/config"
	"relquery/internal/dbexec"
	"relquery/internal/logging"
	"relquery/internal/sakila"
	"relquery/internal/schema"
	"relquery/internal/store"
	"relquery/internal/store/memstore"
	"relquery/internal/store/sqlstore"

	"github.com/XSAM/otelsql"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
	sqldblogger "github.com/simukti/sqldb-logger"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const maxRetryInterval = 30 * time.Second

// dsnConnector adapts a driver and DSN to driver.Connector so a wrapped
// driver can be opened without registering it by name.
type dsnConnector struct {
	dsn    string
	driver driver.Driver
}

func (c dsnConnector) Connect(_ context.Context) (driver.Conn, error) {
	return c.driver.Open(c.dsn)
}

func (c dsnConnector) Driver() driver.Driver {
	return c.driver
}

func driverFor(dialect sqlstore.Dialect) (driver.Driver, attribute.KeyValue) {
	switch dialect {
	case sqlstore.Postgres:
		return stdlib.GetDefaultDriver(), semconv.DBSystemPostgreSQL
	case sqlstore.SQLite:
		return &sqlite3.SQLiteDriver{}, semconv.DBSystemSqlite
	default:
		return &mysql.MySQLDriver{}, semconv.DBSystemMySQL
	}
}

// connectDB opens the configured database. The driver is wrapped with
// otelsql when metrics or tracing is on, and with the statement logger when
// query_log is set.
func connectDB(cfg *config.Config, logger *logging.Logger) (*sql.DB, interface{ Unregister() error }, error) {
	dialect, err := sqlstore.ParseDialect(cfg.Database.Dialect)
	if err != nil {
		return nil, nil, err
	}
	dsn, err := cfg.Database.DSN()
	if err != nil {
		return nil, nil, err
	}

	drv, system := driverFor(dialect)
	instrumented := cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled
	if instrumented {
		opts := []otelsql.Option{otelsql.WithAttributes(system)}
		if cfg.Observability.TracingEnabled {
			opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}))
		}
		drv = otelsql.WrapDriver(drv, opts...)
	}

	var db *sql.DB
	if cfg.Database.QueryLog {
		db = sqldblogger.OpenDriver(dsn, drv, queryLogger{},
			sqldblogger.WithMinimumLevel(sqldblogger.LevelDebug),
			sqldblogger.WithSQLQueryAsMessage(true),
		)
	} else {
		db = sql.OpenDB(dsnConnector{dsn: dsn, driver: drv})
	}

	var statsReg interface{ Unregister() error }
	if cfg.Observability.MetricsEnabled {
		reg, err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(system))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		} else {
			statsReg = reg
		}
	}

	logger.Info("database driver ready",
		slog.String("dialect", string(dialect)),
		slog.Bool("instrumented", instrumented),
		slog.Bool("query_log", cfg.Database.QueryLog),
	)
	return db, statsReg, nil
}

// queryLogger sends statement logs to the request logger in ctx.
type queryLogger struct{}

func (queryLogger) Log(ctx context.Context, level sqldblogger.Level, msg string, data map[string]interface{}) {
	attrs := make([]any, 0, len(data)+1)
	attrs = append(attrs, slog.String("component", "sql"))
	for k, v := range data {
		attrs = append(attrs, slog.Any(k, v))
	}

	logger := logging.FromContext(ctx)
	switch level {
	case sqldblogger.LevelError:
		logger.ErrorContext(ctx, msg, attrs...)
	default:
		logger.DebugContext(ctx, msg, attrs...)
	}
}

func configureDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db.SetMaxOpenConns(cfg.Database.Pool.MaxOpen)
	db.SetMaxIdleConns(cfg.Database.Pool.MaxIdle)
	db.SetConnMaxLifetime(cfg.Database.Pool.MaxLifetime)

	if err := waitForDatabase(ctx, cfg, logger, db); err != nil {
		return err
	}

	logger.Info("connected to database",
		slog.String("dialect", cfg.Database.Dialect),
		slog.String("database", cfg.Database.SchemaName()),
		slog.Int("pool_max_open", cfg.Database.Pool.MaxOpen),
		slog.Int("pool_max_idle", cfg.Database.Pool.MaxIdle),
		slog.Duration("pool_max_lifetime", cfg.Database.Pool.MaxLifetime),
	)
	return nil
}

// waitForDatabase pings until the database answers. A zero connection
// timeout means a single attempt. Retries back off exponentially.
func waitForDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) error {
	timeout := cfg.Database.ConnectionTimeout
	interval := cfg.Database.ConnectionRetryInterval

	if timeout == 0 {
		return db.PingContext(ctx)
	}
	if interval <= 0 {
		interval = time.Second
	}

	deadline := time.Now().Add(timeout)
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempt++
		err := db.PingContext(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("database connection established", slog.Int("attempts", attempt))
			}
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("database not available after %v: %w", timeout, err)
		}

		logger.Warn("database not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		interval = min(interval*2, maxRetryInterval)
	}
}

func buildExecutor(cfg *config.Config, db *sql.DB) dbexec.QueryExecutor {
	if cfg.Database.ReadOnlyTx {
		return dbexec.NewReadOnlyExecutor(dbexec.ReadOnlyExecutorConfig{DB: db})
	}
	return dbexec.NewStandardExecutor(db)
}

func buildStore(cfg *config.Config, db *sql.DB) (store.Store, error) {
	dialect, err := sqlstore.ParseDialect(cfg.Database.Dialect)
	if err != nil {
		return nil, err
	}
	return sqlstore.New(buildExecutor(cfg, db), dialect, sqlstore.WithMaxInClause(cfg.Database.MaxInClause)), nil
}

// demoStore serves the built-in Sakila sample from memory.
func demoStore(logger *logging.Logger) (store.Store, *schema.Schema) {
	logger.Info("serving the in-memory Sakila demo dataset")
	return memstore.New(sakila.Tables()), sakila.Schema()
}
