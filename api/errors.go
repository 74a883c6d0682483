package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Domenick1991/transkenya/internal/domain"
	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// respondError maps domain errors to HTTP responses. Provider payloads only reach the log.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(c.Request.Context(), "request failed",
			slog.String("request_id", GetRequestID(c)),
			slog.String("code", code),
			slog.Any("error", err))
	}
	c.JSON(status, errorResponse{Error: message, Code: code, RequestID: GetRequestID(c)})
}

func classify(err error) (int, string, string) {
	var orphan domain.OrphanedPushError
	switch {
	case errors.As(err, &orphan):
		return http.StatusInternalServerError, "payment_unrecorded",
			"the payment request reached your phone but could not be recorded; do not pay again, contact support with reference " + orphan.PaymentID
	case domain.IsValidation(err):
		return http.StatusBadRequest, "validation_error", validationMessage(err)
	case domain.IsSeatConflict(err):
		return http.StatusConflict, "seat_taken", "this seat has just been booked, please choose another"
	case domain.IsConflict(err):
		var conflict domain.ConflictError
		errors.As(err, &conflict)
		return http.StatusConflict, "conflict", conflict.Msg
	case domain.IsNotFound(err):
		return http.StatusNotFound, "not_found", "not found"
	case domain.IsAuth(err):
		return http.StatusBadGateway, "gateway_auth_failed", "the payment service is temporarily unavailable"
	case domain.IsGateway(err):
		return http.StatusBadGateway, "gateway_rejected", "the payment provider rejected the request, please try again"
	case domain.IsNetwork(err):
		return http.StatusBadGateway, "gateway_unreachable", "the payment provider could not be reached, please try again"
	case domain.IsTimeout(err):
		return http.StatusGatewayTimeout, "timeout", "the request timed out, please try again"
	case domain.IsStoreUnavailable(err):
		return http.StatusServiceUnavailable, "store_unavailable", "the service is temporarily unavailable"
	default:
		return http.StatusInternalServerError, "internal_error", "internal error"
	}
}

func validationMessage(err error) string {
	var verr domain.ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}
	return err.Error()
}
