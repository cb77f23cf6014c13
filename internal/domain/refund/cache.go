package refund

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CachedSnapshot is the accounting pair kept by a SnapshotCache
type CachedSnapshot struct {
	OrderID               string             `json:"orderId"`
	AccountedRefundAmount decimal.Decimal    `json:"accountedRefundAmount"`
	AccountStatus         OrderAccountStatus `json:"accountStatus"`
	ComputedAt            time.Time          `json:"computedAt"`
}

// SnapshotCache keeps recently computed snapshots per order for a bounded time.
// Implementations decide the TTL; a miss is reported with ok=false and no error.
type SnapshotCache interface {
	Get(ctx context.Context, orderID string) (snap CachedSnapshot, ok bool, err error)
	Set(ctx context.Context, snap CachedSnapshot) error
	Invalidate(ctx context.Context, orderID string) error
	Close() error
}

// NoopSnapshotCache never stores anything
type NoopSnapshotCache struct{}

func (NoopSnapshotCache) Get(context.Context, string) (CachedSnapshot, bool, error) {
	return CachedSnapshot{}, false, nil
}
func (NoopSnapshotCache) Set(context.Context, CachedSnapshot) error { return nil }
func (NoopSnapshotCache) Invalidate(context.Context, string) error  { return nil }
func (NoopSnapshotCache) Close() error                              { return nil }

var _ SnapshotCache = NoopSnapshotCache{}
