package persistence

import (
	"context"
	"errors"

	"github.com/erp/refundtracker/internal/domain/refund"
	"github.com/erp/refundtracker/internal/domain/shared"
	"github.com/erp/refundtracker/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOrderRepository implements refund.OrderRepository using GORM
type GormOrderRepository struct {
	db        *gorm.DB
	batchSize int
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB, batchSize int) *GormOrderRepository {
	if batchSize <= 0 {
		batchSize = DefaultWriteBatchSize
	}
	return &GormOrderRepository{db: db, batchSize: batchSize}
}

// FindByID finds an order by its external order id
func (r *GormOrderRepository) FindByID(ctx context.Context, orderID string) (*refund.Order, error) {
	return r.find(r.db.WithContext(ctx), orderID)
}

// FindByIDForUpdate finds an order and locks its row until the surrounding transaction ends
func (r *GormOrderRepository) FindByIDForUpdate(ctx context.Context, orderID string) (*refund.Order, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), orderID)
}

func (r *GormOrderRepository) find(db *gorm.DB, orderID string) (*refund.Order, error) {
	var model models.OrderModel
	if err := db.First(&model, "order_id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("order", orderID)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns a page of orders and the total matching count
func (r *GormOrderRepository) List(ctx context.Context, filter refund.OrderFilter) ([]*refund.Order, int64, error) {
	f := filter.Normalize(MaxPageSize)
	query := r.db.WithContext(ctx).Model(&models.OrderModel{})
	if filter.AccountStatus != "" {
		query = query.Where("refund_account_status = ?", filter.AccountStatus)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orderModels []models.OrderModel
	if err := query.
		Order(orderSortColumns.orderBy(f.OrderBy, f.OrderDir)).
		Offset(f.Offset()).
		Limit(f.PageSize).
		Find(&orderModels).Error; err != nil {
		return nil, 0, err
	}
	return ordersToDomain(orderModels), total, nil
}

// FindAll returns every order
func (r *GormOrderRepository) FindAll(ctx context.Context) ([]*refund.Order, error) {
	var orderModels []models.OrderModel
	if err := r.db.WithContext(ctx).Order("order_id").Find(&orderModels).Error; err != nil {
		return nil, err
	}
	return ordersToDomain(orderModels), nil
}

// UpsertIngestion inserts new orders and merges the ingestion columns of existing ones.
// The refund account columns are left as they are on conflict.
func (r *GormOrderRepository) UpsertIngestion(ctx context.Context, orders []*refund.Order) error {
	if len(orders) == 0 {
		return nil
	}
	orderModels := make([]*models.OrderModel, len(orders))
	for i, o := range orders {
		orderModels[i] = models.OrderModelFromDomain(o)
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns(models.IngestionColumns),
		}).
		CreateInBatches(orderModels, r.batchSize).Error
}

// InsertNew inserts orders that do not exist yet. Orders already stored, including
// ones inserted concurrently, are skipped and not counted.
func (r *GormOrderRepository) InsertNew(ctx context.Context, orders []*refund.Order) (int64, error) {
	if len(orders) == 0 {
		return 0, nil
	}
	orderModels := make([]*models.OrderModel, len(orders))
	for i, o := range orders {
		orderModels[i] = models.OrderModelFromDomain(o)
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoNothing: true,
		}).
		CreateInBatches(orderModels, r.batchSize)
	return result.RowsAffected, result.Error
}

// WriteRefundAccount overwrites the refund account columns of one order
func (r *GormOrderRepository) WriteRefundAccount(ctx context.Context, orderID string, account refund.RefundAccount) error {
	result := r.db.WithContext(ctx).
		Model(&models.OrderModel{}).
		Where("order_id = ?", orderID).
		Updates(map[string]any{
			"refund_account_accounted_amount": account.AccountedRefundAmount,
			"refund_account_status":           string(account.AccountStatus),
			"refund_account_computed_at":      account.ComputedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError("order", orderID)
	}
	return nil
}

func ordersToDomain(orderModels []models.OrderModel) []*refund.Order {
	orders := make([]*refund.Order, len(orderModels))
	for i := range orderModels {
		orders[i] = orderModels[i].ToDomain()
	}
	return orders
}
