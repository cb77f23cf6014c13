package refund

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/erp/refundtracker/internal/domain/refund"
	"github.com/erp/refundtracker/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func rawJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestRefundService_Initiate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedOrder(t, "ORD-1", "120")

	t.Run("applies defaults and recomputes the order", func(t *testing.T) {
		resp := env.initiate(t, "ORD-1", refund.RefundTypeFailedDelivery, "120")
		assert.Equal(t, string(refund.StatusInitiated), resp.Status)
		assert.Equal(t, string(refund.AccountingUnaccounted), resp.AccountingStatus)
		assert.False(t, resp.RefundDate.IsZero())

		account := env.storedAccount(t, "ORD-1")
		assert.Equal(t, refund.AccountPartiallyAccounted, account.AccountStatus)
		assert.True(t, account.AccountedRefundAmount.IsZero())
	})

	t.Run("rejects negative amounts except on OTHERS", func(t *testing.T) {
		_, err := env.refunds.Initiate(ctx, InitiateRefundRequest{
			OrderID:      "ORD-1",
			RefundType:   string(refund.RefundTypeCustomerChangedMind),
			RefundAmount: amountPtr("-10"),
		})
		assert.True(t, shared.IsValidation(err))

		resp, err := env.refunds.Initiate(ctx, InitiateRefundRequest{
			OrderID:      "ORD-1",
			RefundType:   string(refund.RefundTypeOthers),
			RefundAmount: amountPtr("-10"),
		})
		require.NoError(t, err)
		assert.True(t, dec("-10").Equal(resp.RefundAmount))
	})

	t.Run("requires an amount", func(t *testing.T) {
		_, err := env.refunds.Initiate(ctx, InitiateRefundRequest{
			OrderID:    "ORD-1",
			RefundType: string(refund.RefundTypeOthers),
		})
		assert.True(t, shared.IsValidation(err))
	})

	t.Run("unknown order", func(t *testing.T) {
		_, err := env.refunds.Initiate(ctx, InitiateRefundRequest{
			OrderID:      "ORD-404",
			RefundType:   string(refund.RefundTypeOthers),
			RefundAmount: amountPtr("1"),
		})
		assert.True(t, shared.IsNotFound(err))
	})

	t.Run("indexes embedded return trackings", func(t *testing.T) {
		resp, err := env.refunds.Initiate(ctx, InitiateRefundRequest{
			OrderID:      "ORD-1",
			RefundType:   string(refund.RefundTypeCustomerChangedMind),
			RefundAmount: amountPtr("30"),
			ReturnTrackings: []refund.ReturnTracking{{
				ReturnItems: []refund.ReturnItem{{SKUName: "CUP", Quantity: dec("3"), UnitPrice: dec("10"), Condition: refund.ConditionGood}},
			}},
		})
		require.NoError(t, err)
		require.Len(t, resp.ReturnTrackings, 1)
		tracking := resp.ReturnTrackings[0]
		assert.NotEmpty(t, tracking.ID)
		assert.Equal(t, refund.ReturnStatusPending, tracking.ReturnStatus)
		assert.True(t, dec("30").Equal(tracking.TotalReturnValue))

		entry, err := env.store.ReturnIndex().FindByID(ctx, tracking.ID)
		require.NoError(t, err)
		assert.Equal(t, resp.ID, entry.RefundDetailID)
	})
}

func TestRefundService_Split(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedOrder(t, "ORD-1", "900")
	original := env.initiate(t, "ORD-1", refund.RefundTypeCustomerChangedMind, "900")
	ret, err := env.returns.InitiateReturn(ctx, InitiateReturnRequest{
		RefundDetailID: original.ID,
		ReturnItems:    []refund.ReturnItem{{SKUName: "LAMP", Quantity: dec("1"), UnitPrice: dec("400"), Condition: refund.ConditionGood}},
	})
	require.NoError(t, err)

	packing := string(refund.RefundTypeIncorrectPacking)
	parts, err := env.refunds.Split(ctx, original.ID, SplitRefundRequest{Splits: []SplitEntryInput{
		{RefundAmount: amountPtr("400")},
		{RefundAmount: amountPtr("500"), RefundType: &packing},
	}})
	require.NoError(t, err)
	require.Len(t, parts, 2)

	assert.True(t, dec("400").Equal(parts[0].RefundAmount))
	assert.Equal(t, string(refund.RefundTypeCustomerChangedMind), parts[0].RefundType)
	assert.True(t, dec("500").Equal(parts[1].RefundAmount))
	assert.Equal(t, packing, parts[1].RefundType)
	assert.NotEqual(t, original.ID, parts[0].ID)

	// The tracking moves to the first part only
	require.Len(t, parts[0].ReturnTrackings, 1)
	assert.Empty(t, parts[1].ReturnTrackings)
	entry, err := env.store.ReturnIndex().FindByID(ctx, ret.ID)
	require.NoError(t, err)
	assert.Equal(t, parts[0].ID, entry.RefundDetailID)

	_, err = env.refunds.Get(ctx, original.ID)
	assert.True(t, shared.IsNotFound(err))

	sum, err := env.snapshots.ValidateRefundDetailsSumEqualsOrder(ctx, "ORD-1", 0)
	require.NoError(t, err)
	assert.True(t, sum.Valid)

	t.Run("rejects moving to another order", func(t *testing.T) {
		other := "ORD-2"
		_, err := env.refunds.Split(ctx, parts[1].ID, SplitRefundRequest{Splits: []SplitEntryInput{{OrderID: &other}}})
		assert.True(t, shared.IsValidation(err))
	})

	t.Run("invalid entry reports its index and keeps the original", func(t *testing.T) {
		_, err := env.refunds.Split(ctx, parts[1].ID, SplitRefundRequest{Splits: []SplitEntryInput{
			{RefundAmount: amountPtr("200")},
			{RefundAmount: amountPtr("-300")},
		}})
		var de *shared.DomainError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, 1, de.Details["splitIndex"])

		_, err = env.refunds.Get(ctx, parts[1].ID)
		assert.NoError(t, err)
	})
}

func TestRefundService_UpdateStatusAndTypeData(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedOrder(t, "ORD-1", "50")
	d := env.initiate(t, "ORD-1", refund.RefundTypeOrderCancelled, "50")

	_, err := env.refunds.UpdateStatus(ctx, d.ID, UpdateRefundStatusRequest{Status: "SHIPPED"})
	assert.True(t, shared.IsValidation(err))

	updated, err := env.refunds.UpdateStatus(ctx, d.ID, UpdateRefundStatusRequest{Status: "COMPLETED"})
	require.NoError(t, err)
	assert.Equal(t, string(refund.StatusCompleted), updated.Status)

	_, err = env.refunds.UpdateTypeData(ctx, d.ID, refund.Changes{"refundAmount": rawJSON(t, "10")})
	assert.True(t, shared.IsValidation(err))

	updated, err = env.refunds.UpdateTypeData(ctx, d.ID, refund.Changes{
		"accountingStatus": rawJSON(t, "FULLY_ACCOUNTED"),
		"returnTrackings": rawJSON(t, []map[string]any{{
			"id":          "RT-9",
			"returnItems": []map[string]any{{"skuName": "BOX", "quantity": 1, "unitPrice": "20", "condition": "GOOD"}},
		}}),
	})
	require.NoError(t, err)
	assert.Equal(t, string(refund.AccountingFullyAccounted), updated.AccountingStatus)
	require.Len(t, updated.ReturnTrackings, 1)

	entry, err := env.store.ReturnIndex().FindByID(ctx, "RT-9")
	require.NoError(t, err)
	assert.True(t, dec("20").Equal(entry.TotalReturnValue))

	account := env.storedAccount(t, "ORD-1")
	assert.Equal(t, refund.AccountFullyAccounted, account.AccountStatus)
	assert.True(t, dec("20").Equal(account.AccountedRefundAmount))
}

func TestRefundService_BulkUpdate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedOrder(t, "ORD-1", "100")
	env.seedOrder(t, "ORD-2", "100")
	a := env.initiate(t, "ORD-1", refund.RefundTypeOthers, "100")
	b := env.initiate(t, "ORD-2", refund.RefundTypeOthers, "100")

	t.Run("stale item rolls the whole batch back", func(t *testing.T) {
		stale := a.UpdatedAt.Add(-time.Hour)
		_, err := env.refunds.BulkUpdate(ctx, BulkUpdateRequest{Updates: []BulkUpdateItem{
			{ID: b.ID, Changes: refund.Changes{"status": rawJSON(t, "COMPLETED")}, LastUpdatedAt: &b.UpdatedAt},
			{ID: a.ID, Changes: refund.Changes{"status": rawJSON(t, "COMPLETED")}, LastUpdatedAt: &stale},
		}})
		require.True(t, shared.IsConflict(err))
		var de *shared.DomainError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, a.ID.String(), de.Details["id"])

		for _, id := range []uuid.UUID{a.ID, b.ID} {
			got, err := env.refunds.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, string(refund.StatusInitiated), got.Status)
		}
	})

	t.Run("missing id fails the batch", func(t *testing.T) {
		_, err := env.refunds.BulkUpdate(ctx, BulkUpdateRequest{Updates: []BulkUpdateItem{
			{ID: a.ID, Changes: refund.Changes{"status": rawJSON(t, "COMPLETED")}},
			{ID: uuid.New(), Changes: refund.Changes{"status": rawJSON(t, "COMPLETED")}},
		}})
		assert.True(t, shared.IsNotFound(err))
	})

	t.Run("duplicate ids are rejected", func(t *testing.T) {
		_, err := env.refunds.BulkUpdate(ctx, BulkUpdateRequest{Updates: []BulkUpdateItem{
			{ID: a.ID, Changes: refund.Changes{"status": rawJSON(t, "COMPLETED")}},
			{ID: a.ID, Changes: refund.Changes{"status": rawJSON(t, "CANCELLED")}},
		}})
		assert.True(t, shared.IsValidation(err))
	})

	t.Run("applies every change and recomputes each order", func(t *testing.T) {
		out, err := env.refunds.BulkUpdate(ctx, BulkUpdateRequest{Updates: []BulkUpdateItem{
			{ID: a.ID, Changes: refund.Changes{"accountingStatus": rawJSON(t, "FULLY_ACCOUNTED")}, LastUpdatedAt: &a.UpdatedAt},
			{ID: b.ID, Changes: refund.Changes{"refundAmount": rawJSON(t, "80"), "status": rawJSON(t, "PROCESSING")}},
		}})
		require.NoError(t, err)
		require.Len(t, out, 2)

		assert.Equal(t, refund.AccountFullyAccounted, env.storedAccount(t, "ORD-1").AccountStatus)
		got, err := env.refunds.Get(ctx, b.ID)
		require.NoError(t, err)
		assert.True(t, dec("80").Equal(got.RefundAmount))
		assert.Equal(t, string(refund.StatusProcessing), got.Status)
	})
}

func TestRefundService_Delete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedOrder(t, "ORD-1", "10")
	d := env.initiate(t, "ORD-1", refund.RefundTypeOthers, "10")
	ret, err := env.returns.InitiateReturn(ctx, InitiateReturnRequest{RefundDetailID: d.ID})
	require.NoError(t, err)

	require.NoError(t, env.refunds.Delete(ctx, d.ID))

	_, err = env.store.ReturnIndex().FindByID(ctx, ret.ID)
	assert.True(t, shared.IsNotFound(err))
	assert.Equal(t, refund.AccountUninitiated, env.storedAccount(t, "ORD-1").AccountStatus)
	assert.True(t, shared.IsNotFound(env.refunds.Delete(ctx, d.ID)))
}

func TestRefundService_List(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedOrder(t, "ORD-1", "30")
	env.seedOrder(t, "ORD-2", "30")
	env.initiate(t, "ORD-1", refund.RefundTypeOthers, "10")
	env.initiate(t, "ORD-1", refund.RefundTypeFailedDelivery, "20")
	env.initiate(t, "ORD-2", refund.RefundTypeOthers, "30")

	items, total, err := env.refunds.List(ctx, RefundListFilter{OrderID: "ORD-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, items, 2)

	items, total, err = env.refunds.List(ctx, RefundListFilter{RefundType: string(refund.RefundTypeOthers)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, items, 2)
}

func TestRefundService_RecomputeFailureIsReported(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedOrder(t, "ORD-1", "10")

	recomputer := new(MockRecomputer)
	recomputer.On("RecomputeAndWriteOrderRefundSnapshot", mock.Anything, "ORD-1").
		Return(nil, errors.New("connection reset")).Once()
	svc := NewRefundService(env.store, recomputer, DefaultSettings(), zap.NewNop())

	_, err := svc.Initiate(ctx, InitiateRefundRequest{
		OrderID:      "ORD-1",
		RefundType:   string(refund.RefundTypeOthers),
		RefundAmount: amountPtr("10"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recompute snapshot of order ORD-1")
	recomputer.AssertExpectations(t)

	// The write itself committed; a retry of the recompute repairs the snapshot
	details, err := env.store.Details().FindByOrderID(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Len(t, details, 1)
}
