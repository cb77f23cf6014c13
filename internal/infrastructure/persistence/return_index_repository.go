package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/refundtracker/internal/domain/refund"
	"github.com/erp/refundtracker/internal/domain/shared"
	"github.com/erp/refundtracker/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormReturnIndexRepository implements refund.ReturnIndexRepository using GORM
type GormReturnIndexRepository struct {
	db        *gorm.DB
	batchSize int
}

// NewGormReturnIndexRepository creates a new GormReturnIndexRepository
func NewGormReturnIndexRepository(db *gorm.DB, batchSize int) *GormReturnIndexRepository {
	if batchSize <= 0 {
		batchSize = DefaultWriteBatchSize
	}
	return &GormReturnIndexRepository{db: db, batchSize: batchSize}
}

// FindByID finds an index row by return tracking id
func (r *GormReturnIndexRepository) FindByID(ctx context.Context, id string) (*refund.ReturnIndexEntry, error) {
	var model models.ReturnIndexModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("return tracking", id)
		}
		return nil, err
	}
	entry := model.ToDomain()
	return &entry, nil
}

// Save inserts an index row or updates the detail's own row. A tracking id indexed
// under another refund detail is rejected.
func (r *GormReturnIndexRepository) Save(ctx context.Context, entry refund.ReturnIndexEntry) error {
	if err := r.checkOwnership(ctx, entry.RefundDetailID, []string{entry.ID}); err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"order_id", "return_status", "total_return_value", "updated_at"}),
		}).
		Create(models.ReturnIndexModelFromDomain(entry)).Error
}

// ReplaceForDetail drops every row of the refund detail and inserts entries in their place.
// Tracking ids must be unique within entries and must not be indexed under another detail.
func (r *GormReturnIndexRepository) ReplaceForDetail(ctx context.Context, refundDetailID uuid.UUID, entries []refund.ReturnIndexEntry) error {
	if err := r.DeleteByRefundDetailID(ctx, refundDetailID); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	rows := make([]*models.ReturnIndexModel, len(entries))
	ids := make([]string, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if e.RefundDetailID != refundDetailID {
			return fmt.Errorf("index entry %s belongs to refund detail %s, not %s", e.ID, e.RefundDetailID, refundDetailID)
		}
		if _, dup := seen[e.ID]; dup {
			return shared.NewValidationError("return tracking %s appears more than once", e.ID)
		}
		seen[e.ID] = struct{}{}
		ids[i] = e.ID
		rows[i] = models.ReturnIndexModelFromDomain(e)
	}
	if err := r.checkOwnership(ctx, refundDetailID, ids); err != nil {
		return err
	}
	// Plain inserts: a row claimed concurrently by another detail fails on the primary key
	return r.db.WithContext(ctx).CreateInBatches(rows, r.batchSize).Error
}

// checkOwnership fails when any of ids is indexed under a refund detail other than refundDetailID
func (r *GormReturnIndexRepository) checkOwnership(ctx context.Context, refundDetailID uuid.UUID, ids []string) error {
	for start := 0; start < len(ids); start += r.batchSize {
		chunk := ids[start:min(start+r.batchSize, len(ids))]
		var owned models.ReturnIndexModel
		err := r.db.WithContext(ctx).
			Select("id", "refund_detail_id").
			Where("id IN ? AND refund_detail_id <> ?", chunk, refundDetailID).
			Take(&owned).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("check return tracking ownership: %w", err)
		}
		return shared.NewValidationError("return tracking %s belongs to refund detail %s", owned.ID, owned.RefundDetailID).
			WithDetail("return_tracking_id", owned.ID).
			WithDetail("refund_detail_id", owned.RefundDetailID.String())
	}
	return nil
}

// DeleteByRefundDetailID removes every row of the refund detail
func (r *GormReturnIndexRepository) DeleteByRefundDetailID(ctx context.Context, refundDetailID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("refund_detail_id = ?", refundDetailID).
		Delete(&models.ReturnIndexModel{}).Error
}

// List returns a page of index rows and the total matching count
func (r *GormReturnIndexRepository) List(ctx context.Context, filter refund.ReturnFilter) ([]refund.ReturnIndexEntry, int64, error) {
	f := filter.Normalize(MaxPageSize)
	query := r.db.WithContext(ctx).Model(&models.ReturnIndexModel{})
	if filter.OrderID != "" {
		query = query.Where("order_id = ?", filter.OrderID)
	}
	if filter.RefundDetailID != uuid.Nil {
		query = query.Where("refund_detail_id = ?", filter.RefundDetailID)
	}
	if filter.ReturnStatus != "" {
		query = query.Where("return_status = ?", filter.ReturnStatus)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.ReturnIndexModel
	if err := query.
		Order(returnIndexSortColumns.orderBy(f.OrderBy, f.OrderDir)).
		Offset(f.Offset()).
		Limit(f.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	entries := make([]refund.ReturnIndexEntry, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
	}
	return entries, total, nil
}
