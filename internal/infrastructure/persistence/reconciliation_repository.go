package persistence

import (
	"context"
	"slices"

	"github.com/erp/refundtracker/internal/domain/refund"
	"github.com/erp/refundtracker/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ledgerOrder is the read order of reconciliation records. The last record of
// a refund detail in this order is the authoritative one.
const ledgerOrder = "updated_at, created_at, id"

// GormReconciliationRepository implements refund.ReconciliationRepository using GORM.
// Records are only ever inserted.
type GormReconciliationRepository struct {
	db        *gorm.DB
	chunkSize int
}

// NewGormReconciliationRepository creates a new GormReconciliationRepository
func NewGormReconciliationRepository(db *gorm.DB, chunkSize int) *GormReconciliationRepository {
	if chunkSize <= 0 {
		chunkSize = DefaultQueryChunkSize
	}
	return &GormReconciliationRepository{db: db, chunkSize: chunkSize}
}

// Append inserts a new ledger record
func (r *GormReconciliationRepository) Append(ctx context.Context, rec *refund.Reconciliation) error {
	return r.db.WithContext(ctx).Create(models.ReconciliationModelFromDomain(rec)).Error
}

// FindByRefundDetailID returns the ledger of one refund detail
func (r *GormReconciliationRepository) FindByRefundDetailID(ctx context.Context, refundDetailID uuid.UUID) ([]*refund.Reconciliation, error) {
	var recModels []models.ReconciliationModel
	if err := r.db.WithContext(ctx).
		Where("refund_detail_id = ?", refundDetailID).
		Order(ledgerOrder).
		Find(&recModels).Error; err != nil {
		return nil, err
	}
	return reconciliationsToDomain(recModels), nil
}

// FindByRefundDetailIDs loads the ledgers of many refund details, querying the ids in chunks
func (r *GormReconciliationRepository) FindByRefundDetailIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]*refund.Reconciliation, error) {
	grouped := make(map[uuid.UUID][]*refund.Reconciliation, len(ids))
	for chunk := range slices.Chunk(ids, r.chunkSize) {
		var recModels []models.ReconciliationModel
		if err := r.db.WithContext(ctx).
			Where("refund_detail_id IN ?", chunk).
			Order(ledgerOrder).
			Find(&recModels).Error; err != nil {
			return nil, err
		}
		for _, rec := range reconciliationsToDomain(recModels) {
			grouped[rec.RefundDetailID] = append(grouped[rec.RefundDetailID], rec)
		}
	}
	return grouped, nil
}

// FindByStatus returns every record with the given status
func (r *GormReconciliationRepository) FindByStatus(ctx context.Context, status refund.ReconciliationStatus) ([]*refund.Reconciliation, error) {
	var recModels []models.ReconciliationModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order(ledgerOrder).
		Find(&recModels).Error; err != nil {
		return nil, err
	}
	return reconciliationsToDomain(recModels), nil
}

func reconciliationsToDomain(recModels []models.ReconciliationModel) []*refund.Reconciliation {
	recs := make([]*refund.Reconciliation, len(recModels))
	for i := range recModels {
		recs[i] = recModels[i].ToDomain()
	}
	return recs
}
