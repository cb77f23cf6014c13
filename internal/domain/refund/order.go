package refund

import (
	"time"

	"github.com/erp/refundtracker/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// OrderAccountStatus is the order-level accounting state derived by the snapshot engine
type OrderAccountStatus string

const (
	AccountUninitiated        OrderAccountStatus = "UNINITIATED"
	AccountPartiallyAccounted OrderAccountStatus = "PARTIALLY_ACCOUNTED"
	AccountFullyAccounted     OrderAccountStatus = "FULLY_ACCOUNTED"
)

// IsValid checks if the status is a valid OrderAccountStatus
func (s OrderAccountStatus) IsValid() bool {
	switch s {
	case AccountUninitiated, AccountPartiallyAccounted, AccountFullyAccounted:
		return true
	}
	return false
}

// String returns the string representation of OrderAccountStatus
func (s OrderAccountStatus) String() string {
	return string(s)
}

// RefundAccount is the snapshot stored on an order. Only the snapshot engine writes it.
type RefundAccount struct {
	AccountedRefundAmount decimal.Decimal
	AccountStatus         OrderAccountStatus
	ComputedAt            *time.Time
}

// OrderItem is one SKU line of an ingested order
type OrderItem struct {
	MerchantSKU string `json:"merchantSKU"`
	SalesVolume int    `json:"salesVolume"`
	IsGift      bool   `json:"isGift"`
}

// Order is an ingested marketplace order
type Order struct {
	OrderID                     string
	StoreName                   string
	OrderRevenue                decimal.Decimal
	Items                       []OrderItem
	CommodityCost               decimal.Decimal
	ProfitLoss                  decimal.Decimal
	ProfitRate                  decimal.Decimal // Percentage value, 12.5 means 12.5%
	ProductSales                decimal.Decimal
	ShippingFeePaidByBuyer      decimal.Decimal
	SubsidyForDiscountPromotion decimal.Decimal
	CommissionFee               decimal.Decimal
	TransactionFee              decimal.Decimal
	ServiceCharge               decimal.Decimal
	ShippingFeePaidBySeller     decimal.Decimal
	MarketingFees               decimal.Decimal
	OtherPlatformFees           decimal.Decimal
	BuyerRefundAmount           decimal.Decimal
	OrderTime                   *time.Time
	ConfirmTime                 *time.Time
	ReleaseTime                 *time.Time
	UpdateTime                  *time.Time
	CompletedTime               *time.Time
	OrderStatus                 string
	RefundAccount               RefundAccount
	CreatedAt                   time.Time
	UpdatedAt                   time.Time
}

// Validate checks the fields ingestion requires
func (o *Order) Validate() error {
	if o.OrderID == "" {
		return shared.NewValidationError("orderId is required")
	}
	return nil
}

// NewUninitiatedAccount returns the account of an order without refund details
func NewUninitiatedAccount() RefundAccount {
	return RefundAccount{AccountedRefundAmount: decimal.Zero, AccountStatus: AccountUninitiated}
}
