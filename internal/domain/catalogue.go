package domain

// Coordinates is a WGS 84 point in degrees
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// StopID is a stable handle into the catalogue's stop storage
type StopID int

// BusID is a stable handle into the catalogue's bus storage
type BusID int

// Stop represents a named point of the network
type Stop struct {
	ID          StopID      `json:"-"`
	Name        string      `json:"name"`
	Coordinates Coordinates `json:"coordinates"`
}

// Bus represents a named route over previously registered stops.
//
// A round-trip path already contains its closing stop ("A > B > C > A").
// An out-and-back path lists the forward leg only; the return leg retraces it.
type Bus struct {
	ID          BusID    `json:"-"`
	Name        string   `json:"name"`
	Stops       []StopID `json:"-"`
	IsRoundtrip bool     `json:"is_roundtrip"`
}

// BusInfo holds the derived statistics of a bus route
type BusInfo struct {
	Name             string  `json:"name"`
	StopsCount       int     `json:"stops_count"`
	UniqueStopsCount int     `json:"unique_stops_count"`
	RouteLength      float64 `json:"route_length"`
	GeoRouteLength   float64 `json:"geo_route_length"`
	Curvature        float64 `json:"curvature"`
}

// StopBuses is a stop together with the sorted names of the buses serving it
type StopBuses struct {
	Stop    Stop     `json:"stop"`
	Geohash string   `json:"geohash"`
	Buses   []string `json:"buses"`
}
