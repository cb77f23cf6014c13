package telemetry

import (
	"strings"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled bool
	// System is the db.system.name attribute, e.g. "postgresql" or "sqlite"
	System string
	// DBName is the logical database the refund tables live in
	DBName string
	// WithQueryVariables puts bound values into the db.statement attribute.
	// Refund amounts and order ids end up in traces, so keep it off in production.
	WithQueryVariables bool
	// TracerProvider overrides the global provider
	TracerProvider trace.TracerProvider
}

// RegisterDBTracing installs the otelgorm plugin on db, so every statement of the
// refund store becomes a child span of the request or service span that issued it.
// otelgorm also reports connection pool metrics through the global meter provider.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if !cfg.Enabled {
		log.Debug("Database tracing disabled")
		return nil
	}
	if cfg.System == "" {
		cfg.System = "postgresql"
	}

	opts := []otelgorm.Option{
		otelgorm.WithAttributes(attribute.String("db.system.name", cfg.System)),
		otelgorm.WithQueryFormatter(compactSQL),
	}
	if cfg.DBName != "" {
		opts = append(opts, otelgorm.WithDBName(cfg.DBName))
	}
	if !cfg.WithQueryVariables {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if cfg.TracerProvider != nil {
		opts = append(opts, otelgorm.WithTracerProvider(cfg.TracerProvider))
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	log.Info("Database tracing enabled",
		zap.String("db_system", cfg.System),
		zap.Bool("query_variables", cfg.WithQueryVariables),
	)
	return nil
}

// compactSQL folds the whitespace of multi-line statements onto one line
func compactSQL(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
