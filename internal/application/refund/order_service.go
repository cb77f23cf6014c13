package refund

import (
	"context"

	"github.com/erp/refundtracker/internal/domain/refund"
	"github.com/erp/refundtracker/internal/domain/shared"
)

// OrderService reads ingested orders
type OrderService struct {
	store refund.Store
}

// NewOrderService creates a new OrderService
func NewOrderService(store refund.Store) *OrderService {
	return &OrderService{store: store}
}

// Get returns an order together with its refund details
func (s *OrderService) Get(ctx context.Context, orderID string) (*OrderResponse, error) {
	order, err := s.store.Orders().FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	details, err := s.store.Details().FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	resp := ToOrderResponse(order)
	resp.RefundDetails = ToRefundDetailResponses(details)
	return &resp, nil
}

// List returns a page of orders
func (s *OrderService) List(ctx context.Context, filter OrderListFilter) ([]OrderResponse, int64, error) {
	status := refund.OrderAccountStatus(filter.AccountStatus)
	if status != "" && !status.IsValid() {
		return nil, 0, shared.NewValidationError("invalid account status %q", filter.AccountStatus)
	}
	orders, total, err := s.store.Orders().List(ctx, refund.OrderFilter{
		Filter: shared.Filter{
			Page:     filter.Page,
			PageSize: filter.PageSize,
			OrderBy:  filter.OrderBy,
			OrderDir: filter.OrderDir,
		},
		AccountStatus: status,
	})
	if err != nil {
		return nil, 0, err
	}
	out := make([]OrderResponse, len(orders))
	for i, o := range orders {
		out[i] = ToOrderResponse(o)
	}
	return out, total, nil
}
