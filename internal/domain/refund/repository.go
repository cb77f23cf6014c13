package refund

import (
	"context"

	"github.com/erp/refundtracker/internal/domain/shared"
	"github.com/google/uuid"
)

// OrderFilter narrows order listings
type OrderFilter struct {
	shared.Filter
	AccountStatus OrderAccountStatus
}

// DetailFilter narrows refund detail listings
type DetailFilter struct {
	shared.Filter
	OrderID          string
	RefundType       RefundType
	Status           Status
	AccountingStatus AccountingStatus
}

// ReturnFilter narrows return index listings
type ReturnFilter struct {
	shared.Filter
	OrderID        string
	RefundDetailID uuid.UUID
	ReturnStatus   ReturnStatus
}

// OrderRepository persists orders. Lookups of missing orders return a NOT_FOUND DomainError.
type OrderRepository interface {
	FindByID(ctx context.Context, orderID string) (*Order, error)
	// FindByIDForUpdate locks the order row for the rest of the transaction
	FindByIDForUpdate(ctx context.Context, orderID string) (*Order, error)
	List(ctx context.Context, filter OrderFilter) ([]*Order, int64, error)
	FindAll(ctx context.Context) ([]*Order, error)
	// UpsertIngestion inserts orders or merges their ingestion fields; the refund account is never written
	UpsertIngestion(ctx context.Context, orders []*Order) error
	// InsertNew inserts orders whose id is not stored yet, leaves existing rows untouched
	// and reports how many rows were inserted
	InsertNew(ctx context.Context, orders []*Order) (int64, error)
	WriteRefundAccount(ctx context.Context, orderID string, account RefundAccount) error
}

// RefundDetailRepository persists refund details
type RefundDetailRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*RefundDetail, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*RefundDetail, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*RefundDetail, error)
	FindByOrderID(ctx context.Context, orderID string) ([]*RefundDetail, error)
	FindByType(ctx context.Context, refundType RefundType) ([]*RefundDetail, error)
	FindByAccountingStatus(ctx context.Context, status AccountingStatus) ([]*RefundDetail, error)
	FindAll(ctx context.Context) ([]*RefundDetail, error)
	List(ctx context.Context, filter DetailFilter) ([]*RefundDetail, int64, error)
	Create(ctx context.Context, detail *RefundDetail) error
	CreateBatch(ctx context.Context, details []*RefundDetail) error
	Save(ctx context.Context, detail *RefundDetail) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ReconciliationRepository persists the append-only reconciliation ledger
type ReconciliationRepository interface {
	Append(ctx context.Context, rec *Reconciliation) error
	FindByRefundDetailID(ctx context.Context, refundDetailID uuid.UUID) ([]*Reconciliation, error)
	// FindByRefundDetailIDs groups records by refund detail id, in ledger order
	FindByRefundDetailIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]*Reconciliation, error)
	FindByStatus(ctx context.Context, status ReconciliationStatus) ([]*Reconciliation, error)
}

// ReturnIndexRepository persists the flat return lookup rows
type ReturnIndexRepository interface {
	FindByID(ctx context.Context, id string) (*ReturnIndexEntry, error)
	Save(ctx context.Context, entry ReturnIndexEntry) error
	// ReplaceForDetail drops the detail's rows and writes entries in their place
	ReplaceForDetail(ctx context.Context, refundDetailID uuid.UUID, entries []ReturnIndexEntry) error
	DeleteByRefundDetailID(ctx context.Context, refundDetailID uuid.UUID) error
	List(ctx context.Context, filter ReturnFilter) ([]ReturnIndexEntry, int64, error)
}

// Repositories groups the repositories bound to one connection or transaction
type Repositories interface {
	Orders() OrderRepository
	Details() RefundDetailRepository
	Reconciliations() ReconciliationRepository
	ReturnIndex() ReturnIndexRepository
}

// Store offers the repositories and an atomic unit of work over them
type Store interface {
	Repositories
	// Transaction runs fn with repositories bound to a single transaction.
	// An error returned by fn rolls every write back.
	Transaction(ctx context.Context, fn func(tx Repositories) error) error
}
