package persistence

import (
	"context"

	"github.com/erp/refundtracker/internal/domain/refund"
	"gorm.io/gorm"
)

// StoreOptions sizes the chunked reads and batched writes of a GormStore
type StoreOptions struct {
	QueryChunkSize int
	WriteBatchSize int
}

// GormStore implements refund.Store on a GORM connection
type GormStore struct {
	db   *gorm.DB
	opts StoreOptions
	repos
}

type repos struct {
	orders          *GormOrderRepository
	details         *GormRefundDetailRepository
	reconciliations *GormReconciliationRepository
	returnIndex     *GormReturnIndexRepository
}

func newRepos(db *gorm.DB, opts StoreOptions) repos {
	return repos{
		orders:          NewGormOrderRepository(db, opts.WriteBatchSize),
		details:         NewGormRefundDetailRepository(db, opts.QueryChunkSize, opts.WriteBatchSize),
		reconciliations: NewGormReconciliationRepository(db, opts.QueryChunkSize),
		returnIndex:     NewGormReturnIndexRepository(db, opts.WriteBatchSize),
	}
}

func (r repos) Orders() refund.OrderRepository                   { return r.orders }
func (r repos) Details() refund.RefundDetailRepository           { return r.details }
func (r repos) Reconciliations() refund.ReconciliationRepository { return r.reconciliations }
func (r repos) ReturnIndex() refund.ReturnIndexRepository        { return r.returnIndex }

// NewGormStore creates a store over db
func NewGormStore(db *gorm.DB, opts StoreOptions) *GormStore {
	return &GormStore{db: db, opts: opts, repos: newRepos(db, opts)}
}

// Transaction runs fn inside one database transaction. Repositories handed to
// fn are bound to that transaction; an error from fn rolls it back.
func (s *GormStore) Transaction(ctx context.Context, fn func(tx refund.Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(newRepos(tx, s.opts))
	})
}

var _ refund.Store = (*GormStore)(nil)
