package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/Domenick1991/transkenya/internal/domain"
	"github.com/Domenick1991/transkenya/internal/mpesa"
	"github.com/Domenick1991/transkenya/internal/service/payment"
	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	service payment.PaymentUseCase
	logger  *slog.Logger
}

type callbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

func NewPaymentHandler(service payment.PaymentUseCase, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{service: service, logger: logger}
}

// Register mounts the payment routes. The callback is mounted separately because the
// gateway does not send bearer tokens.
func (h *PaymentHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.initiate)
}

func (h *PaymentHandler) RegisterCallback(router *gin.RouterGroup) {
	router.POST("/callback", h.callback)
}

func (h *PaymentHandler) initiate(c *gin.Context) {
	var req payment.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, domain.ValidationError{Msg: "request body must be a JSON payment request", Err: err})
		return
	}
	if !ownedBy(c, req.UserID) {
		abortJSON(c, http.StatusForbidden, "forbidden", "userId does not match the signed-in user")
		return
	}

	result, err := h.service.InitiatePayment(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// callback acknowledges every well-formed delivery so the gateway stops resending; a store
// outage is answered with 503 and left to the reconciliation sweep.
func (h *PaymentHandler) callback(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, callbackAck{ResultCode: 1, ResultDesc: "Rejected"})
		return
	}
	cb, err := mpesa.ParseCallback(body)
	if err != nil {
		h.logger.WarnContext(c.Request.Context(), "malformed payment callback",
			slog.String("request_id", GetRequestID(c)),
			slog.Any("error", err))
		c.JSON(http.StatusBadRequest, callbackAck{ResultCode: 1, ResultDesc: "Rejected"})
		return
	}

	_, err = h.service.HandleCallback(c.Request.Context(), payment.Callback{
		MerchantRequestID: cb.MerchantRequestID,
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
		ReceiptNumber:     cb.ReceiptNumber(),
	})
	if err != nil && (domain.IsStoreUnavailable(err) || domain.IsTimeout(err)) {
		h.logger.ErrorContext(c.Request.Context(), "payment callback not processed",
			slog.String("request_id", GetRequestID(c)),
			slog.String("checkout_request_id", cb.CheckoutRequestID),
			slog.Any("error", err))
		c.JSON(http.StatusServiceUnavailable, callbackAck{ResultCode: 1, ResultDesc: "Rejected"})
		return
	}
	c.JSON(http.StatusOK, callbackAck{ResultCode: 0, ResultDesc: "Accepted"})
}
