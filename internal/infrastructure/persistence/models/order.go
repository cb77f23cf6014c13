package models

import (
	"time"

	"github.com/erp/refundtracker/internal/domain/refund"
	"github.com/shopspring/decimal"
)

// OrderModel is the persistence model for ingested orders
type OrderModel struct {
	OrderID                     string             `gorm:"type:varchar(64);primaryKey"`
	StoreName                   string             `gorm:"type:varchar(200)"`
	OrderRevenue                decimal.Decimal    `gorm:"type:decimal(18,4);not null;default:0"`
	Items                       []refund.OrderItem `gorm:"type:jsonb;serializer:json"`
	CommodityCost               decimal.Decimal    `gorm:"type:decimal(18,4);not null;default:0"`
	ProfitLoss                  decimal.Decimal    `gorm:"type:decimal(18,4);not null;default:0"`
	ProfitRate                  decimal.Decimal    `gorm:"type:decimal(9,4);not null;default:0"`
	ProductSales                decimal.Decimal    `gorm:"type:decimal(18,4);not null;default:0"`
	ShippingFeePaidByBuyer      decimal.Decimal    `gorm:"type:decimal(18,4);not null;default:0"`
	SubsidyForDiscountPromotion decimal.Decimal    `gorm:"type:decimal(18,4);not null;default:0"`
	CommissionFee               decimal.Decimal    `gorm:"type:decimal(18,4);not null;default:0"`
	TransactionFee              decimal.Decimal    `gorm:"type:decimal(18,4);not null;default:0"`
	ServiceCharge               decimal.Decimal    `gorm:"type:decimal(18,4);not null;default:0"`
	ShippingFeePaidBySeller     decimal.Decimal    `gorm:"type:decimal(18,4);not null;default:0"`
	MarketingFees               decimal.Decimal    `gorm:"type:decimal(18,4);not null;default:0"`
	OtherPlatformFees           decimal.Decimal    `gorm:"type:decimal(18,4);not null;default:0"`
	BuyerRefundAmount           decimal.Decimal    `gorm:"type:decimal(18,4);not null;default:0"`
	OrderTime                   *time.Time
	ConfirmTime                 *time.Time
	ReleaseTime                 *time.Time
	UpdateTime                  *time.Time
	CompletedTime               *time.Time
	OrderStatus                 string          `gorm:"type:varchar(50)"`
	AccountedRefundAmount       decimal.Decimal `gorm:"column:refund_account_accounted_amount;type:decimal(18,4);not null;default:0"`
	AccountStatus               string          `gorm:"column:refund_account_status;type:varchar(30);not null;default:'UNINITIATED';index"`
	AccountComputedAt           *time.Time      `gorm:"column:refund_account_computed_at"`
	CreatedAt                   time.Time       `gorm:"not null"`
	UpdatedAt                   time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// IngestionColumns are the columns an ingestion upsert may overwrite
var IngestionColumns = []string{
	"store_name", "order_revenue", "items", "commodity_cost", "profit_loss", "profit_rate",
	"product_sales", "shipping_fee_paid_by_buyer", "subsidy_for_discount_promotion", "commission_fee",
	"transaction_fee", "service_charge", "shipping_fee_paid_by_seller", "marketing_fees",
	"other_platform_fees", "buyer_refund_amount", "order_time", "confirm_time", "release_time",
	"update_time", "completed_time", "order_status", "updated_at",
}

// ToDomain converts the persistence model to a domain Order
func (m *OrderModel) ToDomain() *refund.Order {
	return &refund.Order{
		OrderID:                     m.OrderID,
		StoreName:                   m.StoreName,
		OrderRevenue:                m.OrderRevenue,
		Items:                       m.Items,
		CommodityCost:               m.CommodityCost,
		ProfitLoss:                  m.ProfitLoss,
		ProfitRate:                  m.ProfitRate,
		ProductSales:                m.ProductSales,
		ShippingFeePaidByBuyer:      m.ShippingFeePaidByBuyer,
		SubsidyForDiscountPromotion: m.SubsidyForDiscountPromotion,
		CommissionFee:               m.CommissionFee,
		TransactionFee:              m.TransactionFee,
		ServiceCharge:               m.ServiceCharge,
		ShippingFeePaidBySeller:     m.ShippingFeePaidBySeller,
		MarketingFees:               m.MarketingFees,
		OtherPlatformFees:           m.OtherPlatformFees,
		BuyerRefundAmount:           m.BuyerRefundAmount,
		OrderTime:                   m.OrderTime,
		ConfirmTime:                 m.ConfirmTime,
		ReleaseTime:                 m.ReleaseTime,
		UpdateTime:                  m.UpdateTime,
		CompletedTime:               m.CompletedTime,
		OrderStatus:                 m.OrderStatus,
		RefundAccount: refund.RefundAccount{
			AccountedRefundAmount: m.AccountedRefundAmount,
			AccountStatus:         refund.OrderAccountStatus(m.AccountStatus),
			ComputedAt:            m.AccountComputedAt,
		},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// OrderModelFromDomain creates a persistence model from a domain Order.
// A new order without a computed account starts UNINITIATED.
func OrderModelFromDomain(o *refund.Order) *OrderModel {
	status := string(o.RefundAccount.AccountStatus)
	if status == "" {
		status = string(refund.AccountUninitiated)
	}
	return &OrderModel{
		OrderID:                     o.OrderID,
		StoreName:                   o.StoreName,
		OrderRevenue:                o.OrderRevenue,
		Items:                       o.Items,
		CommodityCost:               o.CommodityCost,
		ProfitLoss:                  o.ProfitLoss,
		ProfitRate:                  o.ProfitRate,
		ProductSales:                o.ProductSales,
		ShippingFeePaidByBuyer:      o.ShippingFeePaidByBuyer,
		SubsidyForDiscountPromotion: o.SubsidyForDiscountPromotion,
		CommissionFee:               o.CommissionFee,
		TransactionFee:              o.TransactionFee,
		ServiceCharge:               o.ServiceCharge,
		ShippingFeePaidBySeller:     o.ShippingFeePaidBySeller,
		MarketingFees:               o.MarketingFees,
		OtherPlatformFees:           o.OtherPlatformFees,
		BuyerRefundAmount:           o.BuyerRefundAmount,
		OrderTime:                   o.OrderTime,
		ConfirmTime:                 o.ConfirmTime,
		ReleaseTime:                 o.ReleaseTime,
		UpdateTime:                  o.UpdateTime,
		CompletedTime:               o.CompletedTime,
		OrderStatus:                 o.OrderStatus,
		AccountedRefundAmount:       o.RefundAccount.AccountedRefundAmount,
		AccountStatus:               status,
		AccountComputedAt:           o.RefundAccount.ComputedAt,
		CreatedAt:                   o.CreatedAt,
		UpdatedAt:                   o.UpdatedAt,
	}
}
