package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type tracedRow struct {
	ID      uint
	OrderID string
}

func openTracedDB(t *testing.T, cfg DBTracingConfig) (*gorm.DB, *tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&tracedRow{}))

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	cfg.TracerProvider = tp
	require.NoError(t, RegisterDBTracing(db, cfg, zap.NewNop()))
	return db, sr, tp
}

func TestRegisterDBTracing_StatementSpans(t *testing.T) {
	db, sr, tp := openTracedDB(t, DBTracingConfig{Enabled: true, System: "sqlite"})

	ctx, parent := tp.Tracer("test").Start(context.Background(), "recompute")
	require.NoError(t, db.WithContext(ctx).Create(&tracedRow{OrderID: "ORD-1"}).Error)
	var rows []tracedRow
	require.NoError(t, db.WithContext(ctx).Where("order_id = ?", "ORD-1").Find(&rows).Error)
	parent.End()

	var statements []sdktrace.ReadOnlySpan
	for _, s := range sr.Ended() {
		if s.Parent().SpanID() == parent.SpanContext().SpanID() {
			statements = append(statements, s)
		}
	}
	require.Len(t, statements, 2)

	attrs := map[string]string{}
	for _, kv := range statements[1].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "sqlite", attrs["db.system.name"])
	assert.NotContains(t, attrs["db.statement"], "ORD-1", "query variables stay out of spans by default")
}

func TestRegisterDBTracing_Disabled(t *testing.T) {
	db, sr, _ := openTracedDB(t, DBTracingConfig{Enabled: false})

	require.NoError(t, db.Create(&tracedRow{OrderID: "ORD-1"}).Error)
	assert.Empty(t, sr.Ended())
}

func TestCompactSQL(t *testing.T) {
	assert.Equal(t, "SELECT * FROM orders WHERE order_id = ?",
		compactSQL("SELECT *\n\tFROM orders\n   WHERE order_id = ?"))
}
