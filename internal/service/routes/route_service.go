package routes

import (
	"strconv"
	"strings"

	"github.com/Domenick1991/transkenya/internal/domain"
)

type RouteUseCase interface {
	List() []domain.IndexedRoute
	Get(index int) (*domain.IndexedRoute, error)
	Find(origin, destination string) []domain.IndexedRoute
}

// Catalog is the fixed route table, loaded once at process start.
type Catalog struct {
	routes []domain.Route
}

// DefaultRoutes is the timetable operated by the company.
func DefaultRoutes() []domain.Route {
	return []domain.Route{
		{Origin: "Nairobi", Destination: "Mombasa", Price: 2000, DepartureTime: "08:00", ArrivalTime: "16:00"},
		{Origin: "Nairobi", Destination: "Kisumu", Price: 1500, DepartureTime: "07:00", ArrivalTime: "13:00"},
		{Origin: "Mombasa", Destination: "Malindi", Price: 800, DepartureTime: "09:00", ArrivalTime: "11:00"},
		{Origin: "Nairobi", Destination: "Nakuru", Price: 700, DepartureTime: "10:00", ArrivalTime: "12:30"},
		{Origin: "Nairobi", Destination: "Mombasa", Price: 2000, DepartureTime: "21:00", ArrivalTime: "05:00"},
	}
}

// NewCatalog copies routes into a catalog; an empty slice selects DefaultRoutes.
func NewCatalog(routes []domain.Route) *Catalog {
	if len(routes) == 0 {
		routes = DefaultRoutes()
	}
	table := make([]domain.Route, len(routes))
	copy(table, routes)
	for i := range table {
		if table[i].TotalSeats <= 0 {
			table[i].TotalSeats = domain.DefaultTotalSeats
		}
	}
	return &Catalog{routes: table}
}

func (c *Catalog) Len() int {
	return len(c.routes)
}

func (c *Catalog) List() []domain.IndexedRoute {
	out := make([]domain.IndexedRoute, len(c.routes))
	for i, r := range c.routes {
		out[i] = domain.IndexedRoute{Index: i, Route: r}
	}
	return out
}

func (c *Catalog) Get(index int) (*domain.IndexedRoute, error) {
	if index < 0 || index >= len(c.routes) {
		return nil, domain.NotFoundError{Resource: "route", ID: strconv.Itoa(index)}
	}
	return &domain.IndexedRoute{Index: index, Route: c.routes[index]}, nil
}

// Find returns every route serving origin to destination, compared case-insensitively.
func (c *Catalog) Find(origin, destination string) []domain.IndexedRoute {
	var out []domain.IndexedRoute
	for i, r := range c.routes {
		if strings.EqualFold(r.Origin, strings.TrimSpace(origin)) && strings.EqualFold(r.Destination, strings.TrimSpace(destination)) {
			out = append(out, domain.IndexedRoute{Index: i, Route: r})
		}
	}
	return out
}

var _ RouteUseCase = (*Catalog)(nil)
