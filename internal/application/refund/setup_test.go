package refund

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/erp/refundtracker/internal/domain/refund"
	"github.com/erp/refundtracker/internal/infrastructure/cache"
	"github.com/erp/refundtracker/internal/infrastructure/config"
	"github.com/erp/refundtracker/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

// testEnv wires every service over a private in-memory SQLite database
type testEnv struct {
	db    *gorm.DB
	store *persistence.GormStore
	cache *cache.InMemorySnapshotCache
	logs  *observer.ObservedLogs

	snapshots       *SnapshotService
	refunds         *RefundService
	returns         *ReturnService
	reconciliations *ReconciliationService
	ingestion       *IngestionService
	reports         *ReportService
	orders          *OrderService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	database, err := persistence.NewDatabase(&config.DatabaseConfig{
		Driver:       config.DriverSQLite,
		Path:         fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     "silent",
	}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate())
	t.Cleanup(func() { _ = database.Close() })

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	store := persistence.NewGormStore(database.DB, persistence.StoreOptions{QueryChunkSize: 2, WriteBatchSize: 2})
	snapshotCache := cache.NewInMemorySnapshotCache(time.Minute, time.Minute)
	t.Cleanup(func() { _ = snapshotCache.Close() })

	settings := DefaultSettings()
	snapshots := NewSnapshotService(store, snapshotCache, settings, logger)
	return &testEnv{
		db:              database.DB,
		store:           store,
		cache:           snapshotCache,
		logs:            logs,
		snapshots:       snapshots,
		refunds:         NewRefundService(store, snapshots, settings, logger),
		returns:         NewReturnService(store, snapshots, logger),
		reconciliations: NewReconciliationService(store, snapshots, logger),
		ingestion:       NewIngestionService(store, snapshots, settings, logger),
		reports:         NewReportService(store),
		orders:          NewOrderService(store),
	}
}

func (e *testEnv) seedOrder(t *testing.T, orderID, buyerRefund string) {
	t.Helper()
	require.NoError(t, e.store.Orders().UpsertIngestion(context.Background(), []*refund.Order{{
		OrderID:           orderID,
		StoreName:         "Main Store",
		BuyerRefundAmount: decimal.RequireFromString(buyerRefund),
	}}))
}

func (e *testEnv) initiate(t *testing.T, orderID string, refundType refund.RefundType, amount string) *RefundDetailResponse {
	t.Helper()
	resp, err := e.refunds.Initiate(context.Background(), InitiateRefundRequest{
		OrderID:      orderID,
		RefundType:   string(refundType),
		RefundAmount: amountPtr(amount),
		CreatedBy:    "tester",
	})
	require.NoError(t, err)
	return resp
}

func (e *testEnv) storedAccount(t *testing.T, orderID string) refund.RefundAccount {
	t.Helper()
	o, err := e.store.Orders().FindByID(context.Background(), orderID)
	require.NoError(t, err)
	return o.RefundAccount
}

func amountPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// MockRecomputer is a mock implementation of Recomputer
type MockRecomputer struct {
	mock.Mock
}

func (m *MockRecomputer) RecomputeAndWriteOrderRefundSnapshot(ctx context.Context, orderID string) (*SnapshotResponse, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*SnapshotResponse), args.Error(1)
}

func (m *MockRecomputer) RecomputeMany(ctx context.Context, orderIDs []string) (*RecomputeReport, error) {
	args := m.Called(ctx, orderIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RecomputeReport), args.Error(1)
}

// MockMetrics is a mock implementation of Metrics
type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) SnapshotRecomputed(ctx context.Context, accountStatus string, d time.Duration) {
	m.Called(ctx, accountStatus, d)
}

func (m *MockMetrics) EvidenceWarning(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockMetrics) CorrectionCreated(ctx context.Context, negative bool) {
	m.Called(ctx, negative)
}

func (m *MockMetrics) CacheLookup(ctx context.Context, hit bool) {
	m.Called(ctx, hit)
}
