package persistence

import (
	"context"
	"errors"
	"slices"

	"github.com/erp/refundtracker/internal/domain/refund"
	"github.com/erp/refundtracker/internal/domain/shared"
	"github.com/erp/refundtracker/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// DefaultQueryChunkSize bounds the number of ids in one IN query
	DefaultQueryChunkSize = 10
	// DefaultWriteBatchSize bounds the number of rows in one INSERT statement
	DefaultWriteBatchSize = 500
	// MaxPageSize caps the page size of list queries
	MaxPageSize = 100
)

// GormRefundDetailRepository implements refund.RefundDetailRepository using GORM
type GormRefundDetailRepository struct {
	db        *gorm.DB
	chunkSize int
	batchSize int
}

// NewGormRefundDetailRepository creates a new GormRefundDetailRepository
func NewGormRefundDetailRepository(db *gorm.DB, chunkSize, batchSize int) *GormRefundDetailRepository {
	if chunkSize <= 0 {
		chunkSize = DefaultQueryChunkSize
	}
	if batchSize <= 0 {
		batchSize = DefaultWriteBatchSize
	}
	return &GormRefundDetailRepository{db: db, chunkSize: chunkSize, batchSize: batchSize}
}

// FindByID finds a refund detail by ID
func (r *GormRefundDetailRepository) FindByID(ctx context.Context, id uuid.UUID) (*refund.RefundDetail, error) {
	return r.find(r.db.WithContext(ctx), id)
}

// FindByIDForUpdate finds a refund detail and locks its row
func (r *GormRefundDetailRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*refund.RefundDetail, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *GormRefundDetailRepository) find(db *gorm.DB, id uuid.UUID) (*refund.RefundDetail, error) {
	var model models.RefundDetailModel
	if err := db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("refund detail", id.String())
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDs loads the given details in chunks. Unknown ids are skipped.
func (r *GormRefundDetailRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*refund.RefundDetail, error) {
	details := make([]*refund.RefundDetail, 0, len(ids))
	for chunk := range slices.Chunk(ids, r.chunkSize) {
		var detailModels []models.RefundDetailModel
		if err := r.db.WithContext(ctx).
			Where("id IN ?", chunk).
			Order("created_at, id").
			Find(&detailModels).Error; err != nil {
			return nil, err
		}
		details = append(details, detailsToDomain(detailModels)...)
	}
	return details, nil
}

// FindByOrderID returns every detail of an order in creation order
func (r *GormRefundDetailRepository) FindByOrderID(ctx context.Context, orderID string) ([]*refund.RefundDetail, error) {
	var detailModels []models.RefundDetailModel
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at, id").
		Find(&detailModels).Error; err != nil {
		return nil, err
	}
	return detailsToDomain(detailModels), nil
}

// FindByType returns every detail of a refund type
func (r *GormRefundDetailRepository) FindByType(ctx context.Context, refundType refund.RefundType) ([]*refund.RefundDetail, error) {
	var detailModels []models.RefundDetailModel
	if err := r.db.WithContext(ctx).
		Where("refund_type = ?", refundType).
		Order("created_at, id").
		Find(&detailModels).Error; err != nil {
		return nil, err
	}
	return detailsToDomain(detailModels), nil
}

// FindByAccountingStatus returns every detail with the given accounting status
func (r *GormRefundDetailRepository) FindByAccountingStatus(ctx context.Context, status refund.AccountingStatus) ([]*refund.RefundDetail, error) {
	var detailModels []models.RefundDetailModel
	if err := r.db.WithContext(ctx).
		Where("accounting_status = ?", status).
		Order("created_at, id").
		Find(&detailModels).Error; err != nil {
		return nil, err
	}
	return detailsToDomain(detailModels), nil
}

// FindAll returns every refund detail
func (r *GormRefundDetailRepository) FindAll(ctx context.Context) ([]*refund.RefundDetail, error) {
	var detailModels []models.RefundDetailModel
	if err := r.db.WithContext(ctx).Order("created_at, id").Find(&detailModels).Error; err != nil {
		return nil, err
	}
	return detailsToDomain(detailModels), nil
}

// List returns a page of refund details and the total matching count
func (r *GormRefundDetailRepository) List(ctx context.Context, filter refund.DetailFilter) ([]*refund.RefundDetail, int64, error) {
	f := filter.Normalize(MaxPageSize)
	query := r.db.WithContext(ctx).Model(&models.RefundDetailModel{})
	if filter.OrderID != "" {
		query = query.Where("order_id = ?", filter.OrderID)
	}
	if filter.RefundType != "" {
		query = query.Where("refund_type = ?", filter.RefundType)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.AccountingStatus != "" {
		query = query.Where("accounting_status = ?", filter.AccountingStatus)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var detailModels []models.RefundDetailModel
	if err := query.
		Order(refundDetailSortColumns.orderBy(f.OrderBy, f.OrderDir)).
		Offset(f.Offset()).
		Limit(f.PageSize).
		Find(&detailModels).Error; err != nil {
		return nil, 0, err
	}
	return detailsToDomain(detailModels), total, nil
}

// Create inserts one refund detail
func (r *GormRefundDetailRepository) Create(ctx context.Context, detail *refund.RefundDetail) error {
	model, err := models.RefundDetailModelFromDomain(detail)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(model).Error
}

// CreateBatch inserts details in batches of the configured write size
func (r *GormRefundDetailRepository) CreateBatch(ctx context.Context, details []*refund.RefundDetail) error {
	if len(details) == 0 {
		return nil
	}
	detailModels := make([]*models.RefundDetailModel, len(details))
	for i, d := range details {
		model, err := models.RefundDetailModelFromDomain(d)
		if err != nil {
			return err
		}
		detailModels[i] = model
	}
	return r.db.WithContext(ctx).CreateInBatches(detailModels, r.batchSize).Error
}

// Save overwrites every column of an existing refund detail
func (r *GormRefundDetailRepository) Save(ctx context.Context, detail *refund.RefundDetail) error {
	model, err := models.RefundDetailModelFromDomain(detail)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).
		Model(&models.RefundDetailModel{}).
		Where("id = ?", detail.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError("refund detail", detail.ID.String())
	}
	return nil
}

// Delete removes a refund detail
func (r *GormRefundDetailRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.RefundDetailModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError("refund detail", id.String())
	}
	return nil
}

func detailsToDomain(detailModels []models.RefundDetailModel) []*refund.RefundDetail {
	details := make([]*refund.RefundDetail, len(detailModels))
	for i := range detailModels {
		details[i] = detailModels[i].ToDomain()
	}
	return details
}
