package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"relquery/internal/config"
	"relquery/internal/engine"
	"relquery/internal/gqlschema"
	"relquery/internal/planner"
	"relquery/internal/schema"
	"relquery/internal/store"
)

// Init initializes all runtime resources. It is idempotent. On failure every
// resource acquired so far is released.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push("logger provider", func(shutdownCtx context.Context) error {
			return a.loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	meterProvider, queryMetrics, graphqlMetrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		cleanup.push("meter provider", func(shutdownCtx context.Context) error {
			return meterProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push("tracer provider", func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	var (
		db  *sql.DB
		st  store.Store
		sch *schema.Schema
	)
	if a.cfg.Database.Dialect == config.DialectMemory {
		st, sch = demoStore(a.logger)
	} else {
		var statsReg interface{ Unregister() error }
		db, statsReg, err = connectDB(a.cfg, a.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		cleanup.push("database", func(_ context.Context) error {
			if statsReg != nil {
				if err := statsReg.Unregister(); err != nil {
					a.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
				}
			}
			return db.Close()
		})

		if err := configureDatabase(ctx, a.cfg, a.logger, db); err != nil {
			return fmt.Errorf("failed to verify database connection: %w", err)
		}

		st, err = buildStore(a.cfg, db)
		if err != nil {
			return err
		}
		sch, err = loadSchema(ctx, a.cfg, a.logger, db)
		if err != nil {
			return fmt.Errorf("failed to load schema: %w", err)
		}
	}

	eng := engine.New(sch, st, engine.Options{
		Limits: planner.Limits{
			Default: a.cfg.Server.DefaultLimit,
			Max:     a.cfg.Server.MaxLimit,
		},
		BatchConcurrency: a.cfg.Server.BatchConcurrency,
		Metrics:          queryMetrics,
	})
	gqlSchema, err := gqlschema.Build(eng)
	if err != nil {
		return fmt.Errorf("failed to build GraphQL schema: %w", err)
	}
	a.logger.Info("GraphQL schema built",
		slog.Int("entities", len(sch.Entities)),
		slog.Any("tables", sch.TableNames()),
	)

	mux := buildRouter(a.cfg, a.logger, db, buildGraphQLHandler(a.cfg, a.logger, &gqlSchema, graphqlMetrics), meterProvider)
	handler := wrapHTTPHandler(a.cfg, a.logger, mux)

	serverAddr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv := buildServer(a.cfg, handler, serverAddr)
	cleanup.push("HTTP server", func(shutdownCtx context.Context) error {
		return srv.Shutdown(shutdownCtx)
	})

	a.stateMu.Lock()
	a.meterProvider = meterProvider
	a.tracerProvider = tracerProvider
	a.queryMetrics = queryMetrics
	a.graphqlMetrics = graphqlMetrics
	a.db = db
	a.store = st
	a.schema = sch
	a.engine = eng
	a.handler = handler
	a.serverAddr = serverAddr
	a.srv = srv
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}
