//go:build integration

package persistence

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/erp/refundtracker/internal/domain/refund"
	"github.com/erp/refundtracker/internal/domain/shared"
	"github.com/erp/refundtracker/internal/infrastructure/migration"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newPostgresStore starts a postgres container, applies the shipped migrations
// and returns a store over it. Run with: go test -tags integration ./...
func newPostgresStore(t *testing.T, opts StoreOptions) (*GormStore, *migration.Migrator) {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("refunds_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(5)
	t.Cleanup(func() { _ = sqlDB.Close() })

	migrationsPath, err := filepath.Abs(filepath.Join("..", "..", "..", "migrations"))
	require.NoError(t, err)
	m, err := migration.New(sqlDB, migrationsPath, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, m.Up())

	return NewGormStore(db, opts), m
}

func TestPostgres_MigrationsRoundTrip(t *testing.T) {
	_, m := newPostgresStore(t, StoreOptions{})

	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	require.NoError(t, m.Steps(-1))
	version, _, err = m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	status, err := m.Status()
	require.NoError(t, err)
	require.Len(t, status.Pending, 1)
	assert.Equal(t, uint(2), status.Pending[0].Version)

	require.NoError(t, m.Up())
	// A second Up is a no-op
	require.NoError(t, m.Up())
	status, err = m.Status()
	require.NoError(t, err)
	assert.Empty(t, status.Pending)
}

func TestPostgres_DetailLifecycle(t *testing.T) {
	store, _ := newPostgresStore(t, StoreOptions{QueryChunkSize: 2, WriteBatchSize: 2})
	ctx := context.Background()
	seedOrder(t, store, "ORD-1", "300")

	now := time.Now()
	var details []*refund.RefundDetail
	for i := 0; i < 3; i++ {
		details = append(details, newDetail(t, "ORD-1", "100", now.Add(time.Duration(i)*time.Millisecond)))
	}
	require.NoError(t, store.Details().CreateBatch(ctx, details))

	byOrder, err := store.Details().FindByOrderID(ctx, "ORD-1")
	require.NoError(t, err)
	require.Len(t, byOrder, 3)
	assert.True(t, refund.TotalRefundAmount(byOrder).Equal(decimal.NewFromInt(300)))

	rec, err := refund.NewReconciliation(refund.ReconcileInput{
		RefundDetailID: details[0].ID,
		ExpectedValue:  decimal.NewFromInt(100),
		ActualValue:    decimal.NewFromInt(100),
		Status:         refund.ReconciliationMatched,
	}, now)
	require.NoError(t, err)
	require.NoError(t, store.Reconciliations().Append(ctx, rec))

	// The ledger keeps records of deleted details
	require.NoError(t, store.Details().Delete(ctx, details[0].ID))
	_, err = store.Details().FindByID(ctx, details[0].ID)
	assert.True(t, shared.IsNotFound(err))
	recs, err := store.Reconciliations().FindByRefundDetailID(ctx, details[0].ID)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestPostgres_NegativeAmountOnlyForOthers(t *testing.T) {
	store, _ := newPostgresStore(t, StoreOptions{})
	ctx := context.Background()
	seedOrder(t, store, "ORD-1", "100")

	correction := newDetail(t, "ORD-1", "0", time.Now())
	correction.RefundType = refund.RefundTypeOthers
	correction.RefundAmount = decimal.NewFromInt(-20)
	require.NoError(t, store.Details().Create(ctx, correction))

	invalid := newDetail(t, "ORD-1", "0", time.Now())
	invalid.RefundAmount = decimal.NewFromInt(-20)
	assert.Error(t, store.Details().Create(ctx, invalid))
}

func TestPostgres_OrderLockSerializesWriters(t *testing.T) {
	store, _ := newPostgresStore(t, StoreOptions{})
	ctx := context.Background()
	seedOrder(t, store, "ORD-1", "100")

	// Each writer reads the accounted amount under the row lock and adds 10
	const writers = 5
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.Transaction(ctx, func(tx refund.Repositories) error {
				order, err := tx.Orders().FindByIDForUpdate(ctx, "ORD-1")
				if err != nil {
					return err
				}
				account := order.RefundAccount
				account.AccountedRefundAmount = account.AccountedRefundAmount.Add(decimal.NewFromInt(10))
				account.AccountStatus = refund.AccountPartiallyAccounted
				return tx.Orders().WriteRefundAccount(ctx, "ORD-1", account)
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	order, err := store.Orders().FindByID(ctx, "ORD-1")
	require.NoError(t, err)
	assert.True(t, order.RefundAccount.AccountedRefundAmount.Equal(decimal.NewFromInt(50)),
		"got %s", order.RefundAccount.AccountedRefundAmount)
}
