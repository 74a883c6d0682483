package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Domenick1991/transkenya/internal/domain"
	"github.com/Domenick1991/transkenya/internal/service/booking"
	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	service booking.BookingUseCase
	logger  *slog.Logger
}

type bookingResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"userId"`
	RouteFrom  string `json:"routeFrom"`
	RouteTo    string `json:"routeTo"`
	SeatNumber int    `json:"seatNumber"`
	Date       string `json:"date"`
	Price      int64  `json:"price"`
	Status     string `json:"status"`
	CreatedAt  string `json:"createdAt"`
}

func NewBookingHandler(service booking.BookingUseCase, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{service: service, logger: logger}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.GET("/bookings", h.list)
	router.GET("/stats", h.stats)
	router.POST("/bookings/:bookingId/cancel", h.cancel)
}

func (h *BookingHandler) list(c *gin.Context) {
	bookings, err := h.service.ListForUser(c.Request.Context(), c.Param("userId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	out := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toBookingResponse(b))
	}
	c.JSON(http.StatusOK, out)
}

func (h *BookingHandler) stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context(), c.Param("userId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *BookingHandler) cancel(c *gin.Context) {
	updated, err := h.service.CancelBooking(c.Request.Context(), c.Param("userId"), c.Param("bookingId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(*updated))
}

func toBookingResponse(b domain.Booking) bookingResponse {
	return bookingResponse{
		ID:         b.ID,
		UserID:     b.UserID,
		RouteFrom:  b.RouteFrom,
		RouteTo:    b.RouteTo,
		SeatNumber: b.SeatNumber,
		Date:       b.Date.Format(domain.DateLayout),
		Price:      b.Price,
		Status:     string(b.Status),
		CreatedAt:  b.CreatedAt.Format(time.RFC3339),
	}
}
