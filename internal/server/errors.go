package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/comanda/internal/cache"
	catalogdomain "github.com/smallbiznis/comanda/internal/catalog/domain"
	"github.com/smallbiznis/comanda/internal/checkout"
	comandadomain "github.com/smallbiznis/comanda/internal/comanda/domain"
	customerdomain "github.com/smallbiznis/comanda/internal/customer/domain"
	orderdomain "github.com/smallbiznis/comanda/internal/order/domain"
	"github.com/smallbiznis/comanda/internal/providers/webhook"
	"github.com/smallbiznis/comanda/internal/report"
	"github.com/smallbiznis/comanda/internal/tablesession"
	waiterdomain "github.com/smallbiznis/comanda/internal/waiter/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrConflict             = errors.New("conflict")
	ErrInternal             = errors.New("internal_error")
	ErrNotFound             = errors.New("not_found")
	ErrInvalidRequest       = errors.New("invalid_request")
	ErrServiceUnavailable   = errors.New("service_unavailable")
	ErrRateLimited          = errors.New("rate_limited")
	ErrUnsupportedMediaType = errors.New("unsupported_media_type")
	ErrUpstream             = errors.New("upstream_failure")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	var upstream *webhook.UpstreamError
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case errors.Is(err, ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType, errorPayload{
			Type:    "unsupported_media_type",
			Message: "content type must be application/json",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrUpstream), errors.As(err, &upstream):
		return http.StatusBadGateway, errorPayload{
			Type:    "upstream_error",
			Message: "upstream request failed",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, webhook.ErrNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger the same taxonomy the client sees.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationErrors = []error{
	ErrInvalidRequest,
	catalogdomain.ErrInvalidName,
	catalogdomain.ErrInvalidPrice,
	catalogdomain.ErrInvalidCategory,
	catalogdomain.ErrInvalidID,
	customerdomain.ErrInvalidName,
	customerdomain.ErrInvalidEmail,
	customerdomain.ErrInvalidID,
	waiterdomain.ErrInvalidName,
	waiterdomain.ErrInvalidID,
	comandadomain.ErrInvalidTable,
	comandadomain.ErrInvalidID,
	comandadomain.ErrInvalidItem,
	orderdomain.ErrInvalidID,
	orderdomain.ErrInvalidItems,
	orderdomain.ErrInvalidPaymentMethod,
	orderdomain.ErrInvalidSource,
	orderdomain.ErrInvalidStatus,
	orderdomain.ErrInvalidEmail,
	tablesession.ErrEmptyCart,
	tablesession.ErrCustomerRequired,
	checkout.ErrEmptyCart,
	checkout.ErrNameRequired,
	checkout.ErrInvalidPhone,
	checkout.ErrAddressRequired,
	checkout.ErrInvalidDeliveryType,
	checkout.ErrInvalidChange,
	report.ErrInvalidDate,
	report.ErrInvalidRange,
}

func isValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, catalogdomain.ErrNotFound),
		errors.Is(err, customerdomain.ErrNotFound),
		errors.Is(err, waiterdomain.ErrNotFound),
		errors.Is(err, comandadomain.ErrNotFound),
		errors.Is(err, orderdomain.ErrNotFound),
		errors.Is(err, tablesession.ErrNoOpenTab),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, comandadomain.ErrTabAlreadyOpen),
		errors.Is(err, comandadomain.ErrTabNotOpen),
		errors.Is(err, comandadomain.ErrInvalidItemTransition),
		errors.Is(err, orderdomain.ErrInvalidTransition),
		errors.Is(err, customerdomain.ErrEmailTaken),
		errors.Is(err, waiterdomain.ErrInactive),
		errors.Is(err, catalogdomain.ErrProductUnavailable),
		errors.Is(err, tablesession.ErrTableBusy),
		errors.Is(err, cache.ErrInFlight):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	if errors.Is(err, ErrConflict) {
		return "conflict"
	}
	return strings.ReplaceAll(err.Error(), "_", " ")
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}

var validationFields = map[string]string{
	"empty_cart":        "items",
	"invalid_items":     "items",
	"invalid_item":      "items",
	"customer_required": "customer_id",
	"name_required":     "name",
	"address_required":  "address",
	"invalid_change":    "change_for",
	"invalid_request":   "request",
}

func validationErrorField(code string) string {
	if field, ok := validationFields[code]; ok {
		return field
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "empty_cart":
		return "cart is empty"
	case "customer_required":
		return "customer is required"
	case "name_required":
		return "name is required"
	case "address_required":
		return "address is required for delivery"
	case "invalid_phone":
		return "phone must have 10 or 11 digits"
	case "invalid_change":
		return "change must cover the total"
	default:
		return "invalid value"
	}
}
