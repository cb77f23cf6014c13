package csvimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/erp/refundtracker/internal/domain/refund"
	"github.com/erp/refundtracker/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// Order sheet column headers, as exported by the marketplace
const (
	ColOrderNo                     = "Order No"
	ColStoreName                   = "BigSeller Store Name"
	ColOrderRevenue                = "Order Revenue"
	ColMerchantSKU                 = "Merchant SKU"
	ColSalesVolume                 = "Sales Volume"
	ColGift                        = "Gift"
	ColCommodityCost               = "Commodity Cost"
	ColProfitLoss                  = "Profit/Loss"
	ColProfitRate                  = "Profit Rate"
	ColProductSales                = "Product Sales"
	ColShippingFeePaidByBuyer      = "Shipping Fee Paid by Buyer"
	ColSubsidyForDiscountPromotion = "Subsidy for Discount & Promotion"
	ColCommissionFee               = "Commission Fee"
	ColTransactionFee              = "Transaction Fee"
	ColServiceCharge               = "Service Charge"
	ColShippingFeePaidBySeller     = "Shipping Fee Paid by Seller"
	ColMarketingFees               = "Marketing Fees"
	ColBuyerRefundAmount           = "Buyer Refund Amount"
	ColOtherPlatformFees           = "Other Platform Fees"
	ColOrderTime                   = "Order Time"
	ColConfirmTime                 = "Confirm Time"
	ColReleaseTime                 = "Release Time"
	ColUpdateTime                  = "Update Time"
	ColCompletedTime               = "Completed Time"
	ColOrderStatus                 = "Order Status"
)

// RequiredOrderColumns must be present in the header row
var RequiredOrderColumns = []string{ColOrderNo, ColBuyerRefundAmount}

var amountColumns = []string{
	ColOrderRevenue, ColCommodityCost, ColProfitLoss, ColProductSales,
	ColShippingFeePaidByBuyer, ColSubsidyForDiscountPromotion, ColCommissionFee,
	ColTransactionFee, ColServiceCharge, ColShippingFeePaidBySeller, ColMarketingFees,
	ColBuyerRefundAmount, ColOtherPlatformFees,
}

var dateColumns = []string{ColOrderTime, ColConfirmTime, ColReleaseTime, ColUpdateTime, ColCompletedTime}

// SheetRow is one order read from the sheet. Err is set when the row cannot be ingested.
type SheetRow struct {
	Row   int
	Order *refund.Order
	Err   error
}

// SheetResult holds the parsed rows and the cell problems found while reading.
// Warnings do not stop a row: a bad number reads as zero and a bad date as unset.
// Warnings keeps the first ones found; TotalWarnings counts all of them.
type SheetResult struct {
	Rows              []SheetRow
	Warnings          []RowError
	TotalWarnings     int
	WarningsTruncated bool
	Skipped           int
}

// OrderSheetReader reads marketplace order exports saved as CSV
type OrderSheetReader struct {
	parserOpts  []ParserOption
	maxErrors   int
	dateLayouts []string
}

// SheetOption configures an OrderSheetReader
type SheetOption func(*OrderSheetReader)

// WithParserOptions passes options to the underlying CSV parser
func WithParserOptions(opts ...ParserOption) SheetOption {
	return func(r *OrderSheetReader) {
		r.parserOpts = append(r.parserOpts, opts...)
	}
}

// WithMaxErrors caps the number of collected warnings
func WithMaxErrors(n int) SheetOption {
	return func(r *OrderSheetReader) {
		r.maxErrors = n
	}
}

// WithDateLayouts replaces the accepted timestamp layouts
func WithDateLayouts(layouts ...string) SheetOption {
	return func(r *OrderSheetReader) {
		r.dateLayouts = layouts
	}
}

// NewOrderSheetReader creates a new OrderSheetReader
func NewOrderSheetReader(opts ...SheetOption) *OrderSheetReader {
	r := &OrderSheetReader{
		maxErrors:   200,
		dateLayouts: DefaultDateLayouts,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *OrderSheetReader) rules() []columnRule {
	rules := []columnRule{
		{column: ColOrderNo, unique: true},
		{column: ColProfitRate, kind: kindPercentage},
		{column: ColSalesVolume, kind: kindIntLines},
	}
	for _, col := range amountColumns {
		rules = append(rules, columnRule{column: col, kind: kindAmount, required: col == ColBuyerRefundAmount})
	}
	for _, col := range dateColumns {
		rules = append(rules, columnRule{column: col, kind: kindDate})
	}
	return rules
}

// Read parses the whole sheet. Rows without an order number and repeated header
// rows are skipped. A missing required column fails the whole read, as does a
// sheet that is empty, not text, or over the size limit.
func (r *OrderSheetReader) Read(in io.Reader) (*SheetResult, error) {
	sc, err := newScanner(in, r.parserOpts...)
	if err != nil {
		return nil, err
	}
	if err := sc.readHeader(); err != nil {
		return nil, err
	}
	if missing := sc.missing(RequiredOrderColumns); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingHeader, strings.Join(missing, ", "))
	}

	checker := newRowChecker(r.rules(), r.dateLayouts, r.maxErrors)
	result := &SheetResult{}
	for {
		row, err := sc.next()
		if err == io.EOF {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			checker.warnings.add(RowError{Row: sc.line, Code: ErrCodeImportMalformedRow, Message: perr.Err.Error()})
			continue
		}
		if err != nil {
			return nil, err
		}

		orderNo := row.Get(ColOrderNo)
		if orderNo == "" || foldKey(orderNo) == foldKey(ColOrderNo) {
			result.Skipped++
			continue
		}

		checker.check(row)
		result.Rows = append(result.Rows, r.toOrder(row))
	}

	if len(result.Rows) == 0 && result.Skipped == 0 {
		return nil, ErrNoDataRows
	}
	result.Warnings = checker.warnings.kept
	result.TotalWarnings = checker.warnings.total
	result.WarningsTruncated = checker.warnings.truncated()
	return result, nil
}

func (r *OrderSheetReader) toOrder(row *Row) SheetRow {
	amount := func(col string) decimal.Decimal {
		d, err := valueobject.ParseAmount(row.Get(col))
		if err != nil {
			return decimal.Zero
		}
		return d
	}
	date := func(col string) *time.Time {
		t, err := ParseDate(row.Get(col), r.dateLayouts)
		if err != nil {
			return nil
		}
		return t
	}

	out := SheetRow{Row: row.Line}
	buyerRefund, err := valueobject.ParseAmount(row.Get(ColBuyerRefundAmount))
	if err != nil {
		out.Err = fmt.Errorf("column '%s': %w", ColBuyerRefundAmount, err)
	}
	profitRate, err := valueobject.ParsePercentage(row.Get(ColProfitRate))
	if err != nil {
		profitRate = decimal.Zero
	}

	out.Order = &refund.Order{
		OrderID:                     row.Get(ColOrderNo),
		StoreName:                   row.Get(ColStoreName),
		OrderRevenue:                amount(ColOrderRevenue),
		Items:                       orderItems(row.Get(ColMerchantSKU), row.Get(ColSalesVolume), row.Get(ColGift)),
		CommodityCost:               amount(ColCommodityCost),
		ProfitLoss:                  amount(ColProfitLoss),
		ProfitRate:                  profitRate,
		ProductSales:                amount(ColProductSales),
		ShippingFeePaidByBuyer:      amount(ColShippingFeePaidByBuyer),
		SubsidyForDiscountPromotion: amount(ColSubsidyForDiscountPromotion),
		CommissionFee:               amount(ColCommissionFee),
		TransactionFee:              amount(ColTransactionFee),
		ServiceCharge:               amount(ColServiceCharge),
		ShippingFeePaidBySeller:     amount(ColShippingFeePaidBySeller),
		MarketingFees:               amount(ColMarketingFees),
		OtherPlatformFees:           amount(ColOtherPlatformFees),
		BuyerRefundAmount:           buyerRefund,
		OrderTime:                   date(ColOrderTime),
		ConfirmTime:                 date(ColConfirmTime),
		ReleaseTime:                 date(ColReleaseTime),
		UpdateTime:                  date(ColUpdateTime),
		CompletedTime:               date(ColCompletedTime),
		OrderStatus:                 row.Get(ColOrderStatus),
	}
	return out
}

// orderItems pairs the lines of the SKU, volume and gift cells. Blank SKU lines are
// dropped before pairing; a missing or bad volume reads as zero.
func orderItems(skus, volumes, gifts string) []refund.OrderItem {
	var skuList []string
	for _, s := range SplitLines(skus) {
		if s != "" {
			skuList = append(skuList, s)
		}
	}
	if len(skuList) == 0 {
		return nil
	}

	volumeLines := SplitLines(volumes)
	giftLines := SplitLines(gifts)
	items := make([]refund.OrderItem, len(skuList))
	for i, sku := range skuList {
		items[i] = refund.OrderItem{MerchantSKU: sku}
		if i < len(volumeLines) {
			if d, err := valueobject.ParseAmount(volumeLines[i]); err == nil {
				items[i].SalesVolume = int(d.IntPart())
			}
		}
		if i < len(giftLines) {
			items[i].IsGift = strings.EqualFold(giftLines[i], "yes")
		}
	}
	return items
}
