package domain

// DefaultTotalSeats is the seat count of the standard coach used on every route.
const DefaultTotalSeats = 44

type Route struct {
	Origin        string `json:"from" yaml:"from"`
	Destination   string `json:"to" yaml:"to"`
	Price         int64  `json:"price" yaml:"price"`
	DepartureTime string `json:"departureTime" yaml:"departure_time"`
	ArrivalTime   string `json:"arrivalTime" yaml:"arrival_time"`
	TotalSeats    int    `json:"totalSeats" yaml:"total_seats"`
}

// IndexedRoute pairs a route with its position in the catalog, which is the only stable
// identifier: the same origin/destination pair may appear several times.
type IndexedRoute struct {
	Index int `json:"index"`
	Route
}
