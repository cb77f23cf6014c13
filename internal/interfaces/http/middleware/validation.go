package middleware

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/erp/refundtracker/internal/domain/refund"
	"github.com/erp/refundtracker/internal/infrastructure/logger"
	"github.com/erp/refundtracker/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RequestIDKey is the context key for request ID
const RequestIDKey = "request_id"

// enumTags maps binding tags to the refund enums they check
var enumTags = map[string]func(string) bool{
	"refund_type":           func(s string) bool { return refund.RefundType(s).IsValid() },
	"refund_status":         func(s string) bool { return refund.Status(s).IsValid() },
	"accounting_status":     func(s string) bool { return refund.AccountingStatus(s).IsValid() },
	"return_status":         func(s string) bool { return refund.ReturnStatus(s).IsValid() },
	"reconciliation_status": func(s string) bool { return refund.ReconciliationStatus(s).IsValid() },
	"account_status":        func(s string) bool { return refund.OrderAccountStatus(s).IsValid() },
}

// SetupValidator names fields by their json (or form) tag and registers the refund enum tags.
// It must run before the first request is bound.
func SetupValidator() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		return name
	})
	for tag, valid := range enumTags {
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return valid(fl.Field().String())
		})
	}
}

// FormatValidationErrors turns binding errors into a validation response with one entry per field
func FormatValidationErrors(err error, requestID string) dto.Response {
	var details []dto.ValidationDetail
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrors {
			details = append(details, dto.ValidationDetail{
				Field:   e.Field(),
				Message: validationMessage(e),
			})
		}
	}
	return dto.NewValidationErrorResponse("Request validation failed", requestID, details)
}

// HandleValidationError writes a 400 validation response
func HandleValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, FormatValidationErrors(err, requestIDFromContext(c)))
}

// requestIDFromContext prefers the id assigned by logger.RequestID. Header values
// are truncated to MaxRequestIDLength.
func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(RequestIDKey); id != "" {
		return id
	}
	id := c.GetHeader(logger.RequestIDHeader)
	if len(id) > MaxRequestIDLength {
		return id[:MaxRequestIDLength]
	}
	return id
}

func validationMessage(e validator.FieldError) string {
	if _, ok := enumTags[e.Tag()]; ok {
		return "Unknown " + strings.ReplaceAll(e.Tag(), "_", " ") + " " + quote(e.Value())
	}
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "min":
		if e.Kind() == reflect.Slice {
			return "Must contain at least " + e.Param() + " entries"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "uuid":
		return "Invalid UUID format"
	case "oneof":
		return "Must be one of: " + e.Param()
	default:
		return "Invalid value"
	}
}

func quote(v any) string {
	s, _ := v.(string)
	return `"` + s + `"`
}
