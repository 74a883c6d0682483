package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Domenick1991/transkenya/internal/domain"
	"github.com/Domenick1991/transkenya/internal/service/routes"
	"github.com/Domenick1991/transkenya/internal/service/seats"
	"github.com/gin-gonic/gin"
)

type RouteHandler struct {
	routes routes.RouteUseCase
	seats  seats.SeatUseCase
	logger *slog.Logger
}

func NewRouteHandler(routes routes.RouteUseCase, seats seats.SeatUseCase, logger *slog.Logger) *RouteHandler {
	return &RouteHandler{routes: routes, seats: seats, logger: logger}
}

func (h *RouteHandler) Register(router *gin.RouterGroup) {
	router.GET("", h.list)
	router.GET("/:index", h.get)
	router.GET("/:index/seats", h.seatMap)
}

func (h *RouteHandler) list(c *gin.Context) {
	c.JSON(http.StatusOK, h.routes.List())
}

func (h *RouteHandler) get(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		respondError(c, h.logger, domain.ValidationError{Field: "index", Msg: "must be a number"})
		return
	}
	route, err := h.routes.Get(index)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, route)
}

// seatMap answers 503 with seatSelectionEnabled=false when booked seats cannot be read,
// so clients disable seat selection instead of offering taken seats.
func (h *RouteHandler) seatMap(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		respondError(c, h.logger, domain.ValidationError{Field: "index", Msg: "must be a number"})
		return
	}
	date, err := domain.ParseDate(c.Query("date"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	availability, err := h.seats.Availability(c.Request.Context(), index, date)
	if err != nil {
		if domain.IsStoreUnavailable(err) || domain.IsTimeout(err) {
			h.logger.ErrorContext(c.Request.Context(), "booked seats unavailable",
				slog.String("request_id", GetRequestID(c)),
				slog.Int("route_index", index),
				slog.Any("error", err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":                "seat availability is temporarily unavailable",
				"seatSelectionEnabled": false,
				"requestId":            GetRequestID(c),
			})
			return
		}
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"route":                availability.Route,
		"date":                 availability.Date,
		"bookedSeats":          availability.Booked,
		"availableSeats":       availability.Available,
		"seatSelectionEnabled": true,
	})
}
