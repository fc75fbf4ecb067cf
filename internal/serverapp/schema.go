package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"relquery/internal/config"
	"relquery/internal/introspection"
	"relquery/internal/logging"
	"relquery/internal/naming"
	"relquery/internal/sakila"
	"relquery/internal/schema"
	"relquery/internal/store/sqlstore"
)

// loadSchema reads the entity model from schema.file when set, otherwise
// from the database catalog. Either way the include/exclude filter applies.
func loadSchema(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) (*schema.Schema, error) {
	filter := schema.Filter{Include: cfg.Schema.Include, Exclude: cfg.Schema.Exclude}
	namer := naming.New(cfg.Naming, logger.Logger)

	if cfg.Schema.File != "" {
		sch, err := schema.LoadFile(cfg.Schema.File)
		if err != nil {
			return nil, err
		}
		sch.Apply(filter, logger.Logger)
		if err := sch.Finalize(namer); err != nil {
			return nil, fmt.Errorf("invalid schema file %s: %w", cfg.Schema.File, err)
		}
		logger.Info("schema loaded from file",
			slog.String("path", cfg.Schema.File),
			slog.Int("entities", len(sch.Entities)),
		)
		return sch, nil
	}

	dialect, err := sqlstore.ParseDialect(cfg.Database.Dialect)
	if err != nil {
		return nil, err
	}
	return introspection.Introspect(ctx, db, introspection.Options{
		Dialect:  dialect,
		Database: cfg.Database.SchemaName(),
		Filter:   filter,
		Namer:    namer,
		Logger:   logger.Logger,
	})
}

// DumpSchema resolves the entity model exactly as the server would and
// writes it to w as YAML, suitable for schema.file.
func DumpSchema(ctx context.Context, cfg *config.Config, logger *logging.Logger, w io.Writer) error {
	if cfg.Database.Dialect == config.DialectMemory {
		return sakila.Schema().WriteYAML(w)
	}

	db, _, err := connectDB(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := configureDatabase(ctx, cfg, logger, db); err != nil {
		return fmt.Errorf("failed to verify database connection: %w", err)
	}

	sch, err := loadSchema(ctx, cfg, logger, db)
	if err != nil {
		return err
	}
	return sch.WriteYAML(w)
}
