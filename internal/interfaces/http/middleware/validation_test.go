package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erp/refundtracker/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reconcileBody struct {
	RefundDetailID string   `json:"refundDetailId" binding:"required,uuid"`
	Status         string   `json:"status" binding:"required,reconciliation_status"`
	RefundType     string   `json:"refundType" binding:"omitempty,refund_type"`
	ReturnStatus   string   `json:"returnStatus" binding:"omitempty,return_status"`
	Notes          string   `json:"notes" binding:"max=5"`
	OrderIDs       []string `json:"orderIds" binding:"omitempty,min=2"`
}

func postValidated(t *testing.T, body string) (int, dto.Response) {
	t.Helper()
	SetupValidator()

	r := gin.New()
	r.POST("/reconcile", func(c *gin.Context) {
		var req reconcileBody
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.NewSuccessResponse(req.Status))
	})

	req := httptest.NewRequest(http.MethodPost, "/reconcile", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func fieldMessages(resp dto.Response) map[string]string {
	out := map[string]string{}
	if resp.Error == nil {
		return out
	}
	for _, f := range resp.Error.Fields {
		out[f.Field] = f.Message
	}
	return out
}

func TestSetupValidator_EnumTags(t *testing.T) {
	valid := `{"refundDetailId":"8f14e45f-ceea-467f-a0e6-5b8a0c9e6d2a","status":"MATCHED","refundType":"OTHERS","returnStatus":"IN_TRANSIT"}`
	status, resp := postValidated(t, valid)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)

	status, resp = postValidated(t,
		`{"refundDetailId":"8f14e45f-ceea-467f-a0e6-5b8a0c9e6d2a","status":"DONE","refundType":"LOST_PARCEL","returnStatus":"shipped"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	fields := fieldMessages(resp)
	assert.Equal(t, `Unknown reconciliation status "DONE"`, fields["status"])
	assert.Equal(t, `Unknown refund type "LOST_PARCEL"`, fields["refundType"])
	assert.Equal(t, `Unknown return status "shipped"`, fields["returnStatus"])
}

func TestHandleValidationError(t *testing.T) {
	status, resp := postValidated(t, `{"refundDetailId":"nope","notes":"too long","orderIds":["ORD-1"]}`)

	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "Request validation failed", resp.Error.Message)
	assert.Equal(t, "req-42", resp.Error.RequestID)

	// Fields are named by their json tag
	fields := fieldMessages(resp)
	assert.Equal(t, "Invalid UUID format", fields["refundDetailId"])
	assert.Equal(t, "This field is required", fields["status"])
	assert.Equal(t, "Must be at most 5 characters", fields["notes"])
	assert.Equal(t, "Must contain at least 2 entries", fields["orderIds"])
}

func TestFormatValidationErrors_NonValidatorError(t *testing.T) {
	resp := FormatValidationErrors(assert.AnError, "req-1")

	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	assert.Empty(t, resp.Error.Fields)
}
