package refund

import (
	"context"
	"testing"

	"github.com/erp/refundtracker/internal/domain/refund"
	"github.com/erp/refundtracker/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReturnService_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedOrder(t, "ORD-1", "90")
	d := env.initiate(t, "ORD-1", refund.RefundTypeCustomerChangedMind, "90")

	ret, err := env.returns.InitiateReturn(ctx, InitiateReturnRequest{
		RefundDetailID: d.ID,
		Reason:         "buyer changed mind",
		ReturnItems: []refund.ReturnItem{
			{SKUName: "KETTLE", Quantity: dec("1"), UnitPrice: dec("90"), Condition: refund.ConditionGood},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, refund.ReturnStatusPending, ret.ReturnStatus)
	assert.Equal(t, "ORD-1", ret.OrderID)
	require.NotNil(t, ret.ReturnInitiatedDate)

	steps := []struct {
		mark func(context.Context, string) (*ReturnResponse, error)
		want refund.ReturnStatus
	}{
		{env.returns.MarkInTransit, refund.ReturnStatusInTransit},
		{env.returns.MarkReceived, refund.ReturnStatusReceived},
		{env.returns.MarkInspecting, refund.ReturnStatusInspecting},
		{env.returns.MarkRestocked, refund.ReturnStatusRestocked},
	}
	for _, step := range steps {
		got, err := step.mark(ctx, ret.ID)
		require.NoError(t, err)
		assert.Equal(t, step.want, got.ReturnStatus)

		// The index row and the embedded tracking never disagree
		entry, err := env.store.ReturnIndex().FindByID(ctx, ret.ID)
		require.NoError(t, err)
		assert.Equal(t, step.want, entry.ReturnStatus)
		detail, err := env.refunds.Get(ctx, d.ID)
		require.NoError(t, err)
		require.Len(t, detail.ReturnTrackings, 1)
		assert.Equal(t, step.want, detail.ReturnTrackings[0].ReturnStatus)
	}

	detail, err := env.refunds.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.NotNil(t, detail.ReturnTrackings[0].ActualReturnDate)
}

func TestReturnService_AnyTransitionIsAllowed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedOrder(t, "ORD-1", "10")
	d := env.initiate(t, "ORD-1", refund.RefundTypeFailedDelivery, "10")
	ret, err := env.returns.InitiateReturn(ctx, InitiateReturnRequest{RefundDetailID: d.ID})
	require.NoError(t, err)

	got, err := env.returns.MarkLostByCourier(ctx, ret.ID)
	require.NoError(t, err)
	assert.Equal(t, refund.ReturnStatusLostByCourier, got.ReturnStatus)

	got, err = env.returns.MarkPaidByCourier(ctx, ret.ID)
	require.NoError(t, err)
	assert.Equal(t, refund.ReturnStatusPaidByCourier, got.ReturnStatus)

	got, err = env.returns.MarkDiscrepancyFound(ctx, ret.ID)
	require.NoError(t, err)
	assert.Equal(t, refund.ReturnStatusDiscrepancyFound, got.ReturnStatus)

	got, err = env.returns.UpdateReturnStatus(ctx, ret.ID, UpdateReturnStatusRequest{ReturnStatus: "PENDING"})
	require.NoError(t, err)
	assert.Equal(t, refund.ReturnStatusPending, got.ReturnStatus)

	_, err = env.returns.UpdateReturnStatus(ctx, ret.ID, UpdateReturnStatusRequest{ReturnStatus: "TELEPORTED"})
	assert.True(t, shared.IsValidation(err))
}

func TestReturnService_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedOrder(t, "ORD-1", "10")
	d := env.initiate(t, "ORD-1", refund.RefundTypeFailedDelivery, "10")

	_, err := env.returns.MarkReceived(ctx, "RT-404")
	assert.True(t, shared.IsNotFound(err))

	_, err = env.returns.InitiateReturn(ctx, InitiateReturnRequest{RefundDetailID: uuid.New()})
	assert.True(t, shared.IsNotFound(err))

	_, err = env.returns.InitiateReturn(ctx, InitiateReturnRequest{
		RefundDetailID: d.ID,
		ReturnItems:    []refund.ReturnItem{{SKUName: "X", Quantity: dec("1"), UnitPrice: dec("1"), Condition: "SHINY"}},
	})
	assert.True(t, shared.IsValidation(err))
}

func TestReturnService_List(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedOrder(t, "ORD-1", "20")
	env.seedOrder(t, "ORD-2", "20")
	a := env.initiate(t, "ORD-1", refund.RefundTypeFailedDelivery, "20")
	b := env.initiate(t, "ORD-2", refund.RefundTypeFailedDelivery, "20")
	for _, id := range []uuid.UUID{a.ID, a.ID, b.ID} {
		_, err := env.returns.InitiateReturn(ctx, InitiateReturnRequest{RefundDetailID: id})
		require.NoError(t, err)
	}

	items, total, err := env.returns.List(ctx, ReturnListFilter{OrderID: "ORD-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, items, 2)

	items, total, err = env.returns.List(ctx, ReturnListFilter{RefundDetailID: b.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	assert.Equal(t, "ORD-2", items[0].OrderID)

	_, _, err = env.returns.List(ctx, ReturnListFilter{RefundDetailID: "not-a-uuid"})
	assert.True(t, shared.IsValidation(err))
}

func TestReturnService_TrackingIDStaysWithItsDetail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedOrder(t, "ORD-1", "150")
	owner := env.initiate(t, "ORD-1", refund.RefundTypeCustomerChangedMind, "100")
	other := env.initiate(t, "ORD-1", refund.RefundTypeOthers, "50")

	ret, err := env.returns.InitiateReturn(ctx, InitiateReturnRequest{RefundDetailID: owner.ID})
	require.NoError(t, err)

	_, err = env.refunds.UpdateTypeData(ctx, other.ID, refund.Changes{
		"returnTrackings": rawJSON(t, []map[string]any{{"id": ret.ID}}),
	})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))

	_, err = env.refunds.BulkUpdate(ctx, BulkUpdateRequest{Updates: []BulkUpdateItem{{
		ID:      other.ID,
		Changes: refund.Changes{"returnTrackings": rawJSON(t, []map[string]any{{"id": ret.ID}})},
	}}})
	assert.True(t, shared.IsValidation(err))

	// Nothing moved: the index row and the embedded copy still belong to the owner
	entry, err := env.store.ReturnIndex().FindByID(ctx, ret.ID)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, entry.RefundDetailID)
	otherDetail, err := env.refunds.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, otherDetail.ReturnTrackings)

	require.NoError(t, env.refunds.Delete(ctx, other.ID))
	got, err := env.returns.MarkReceived(ctx, ret.ID)
	require.NoError(t, err)
	assert.Equal(t, refund.ReturnStatusReceived, got.ReturnStatus)
	ownerDetail, err := env.refunds.Get(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, ownerDetail.ReturnTrackings, 1)
	assert.Equal(t, refund.ReturnStatusReceived, ownerDetail.ReturnTrackings[0].ReturnStatus)
}

func TestReturnService_DuplicateTrackingIDsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedOrder(t, "ORD-1", "100")
	d := env.initiate(t, "ORD-1", refund.RefundTypeCustomerChangedMind, "100")

	_, err := env.refunds.UpdateTypeData(ctx, d.ID, refund.Changes{
		"returnTrackings": rawJSON(t, []map[string]any{{"id": "RT-1"}, {"id": "RT-1"}}),
	})
	assert.True(t, shared.IsValidation(err))

	returns, total, err := env.returns.List(ctx, ReturnListFilter{})
	require.NoError(t, err)
	assert.Empty(t, returns)
	assert.Zero(t, total)
}
