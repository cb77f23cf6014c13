package refund_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/erp/refundtracker/internal/domain/refund"
	"github.com/erp/refundtracker/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func changes(t *testing.T, raw string) refund.Changes {
	t.Helper()
	var c refund.Changes
	require.NoError(t, json.Unmarshal([]byte(raw), &c))
	return c
}

func TestParseChanges_TypeDataWhitelist(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"status", `{"status":"PROCESSING"}`, false},
		{"accounting status", `{"accountingStatus":"FULLY_ACCOUNTED"}`, false},
		{"trackings", `{"returnTrackings":[{"id":"rt-1","returnStatus":"PENDING","returnItems":[]}]}`, false},
		{"refund amount rejected", `{"refundAmount":10}`, true},
		{"mixed rejected", `{"status":"PROCESSING","orderId":"ORD-2"}`, true},
		{"empty rejected", `{}`, true},
		{"bad value", `{"returnTrackings":"nope"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := refund.ParseChanges(changes(t, tt.raw), refund.TypeDataFields)
			if tt.wantErr {
				assert.True(t, shared.IsValidation(err), "err = %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestApplyPatch_ReplacesTrackings(t *testing.T) {
	d := newDetail("700", refund.AccountingUnaccounted)
	p, err := refund.ParseChanges(changes(t, `{
		"status": "PROCESSING",
		"returnTrackings": [{
			"id": "R-1",
			"returnStatus": "PENDING",
			"returnItems": [{"skuName": "SKU-H", "quantity": 3, "unitPrice": 100, "condition": "GOOD"}]
		}]
	}`), refund.BulkFields)
	require.NoError(t, err)

	replaced, err := d.ApplyPatch(p, time.Now())
	require.NoError(t, err)

	assert.True(t, replaced)
	assert.Equal(t, refund.StatusProcessing, d.Status)
	require.Len(t, d.ReturnTrackings, 1)
	assert.True(t, d.ReturnTrackings[0].TotalReturnValue.Equal(dec("300")))
}

func TestApplyPatch_AmountPolicy(t *testing.T) {
	d := newDetail("700", refund.AccountingUnaccounted)
	p, err := refund.ParseChanges(changes(t, `{"refundAmount": -5}`), refund.BulkFields)
	require.NoError(t, err)

	_, err = d.ApplyPatch(p, time.Now())
	assert.True(t, shared.IsValidation(err))
}

func TestApplyPatch_InvalidStatus(t *testing.T) {
	d := newDetail("700", refund.AccountingUnaccounted)
	p, err := refund.ParseChanges(changes(t, `{"status": "DONE"}`), refund.TypeDataFields)
	require.NoError(t, err)

	_, err = d.ApplyPatch(p, time.Now())
	assert.True(t, shared.IsValidation(err))
}
