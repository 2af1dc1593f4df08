package analyzer

import (
	"transitcat/internal/domain"
	"transitcat/internal/geo"
)

// Catalogue is the read side of the store the analyzer works on
type Catalogue interface {
	FindBus(name string) (*domain.Bus, bool)
	Stop(id domain.StopID) domain.Stop
	Distance(from, to domain.StopID) int
}

// Analyzer derives route statistics from catalogue contents on every call
type Analyzer struct {
	catalogue Catalogue
}

func New(catalogue Catalogue) *Analyzer {
	return &Analyzer{catalogue: catalogue}
}

// GetBusInfo computes the statistics of a bus route. The second result is
// false when no bus has that name.
func (a *Analyzer) GetBusInfo(name string) (domain.BusInfo, bool) {
	bus, ok := a.catalogue.FindBus(name)
	if !ok {
		return domain.BusInfo{}, false
	}

	path := bus.Stops
	info := domain.BusInfo{
		Name:             bus.Name,
		StopsCount:       stopsCount(len(path), bus.IsRoundtrip),
		UniqueStopsCount: uniqueStops(path),
	}

	var routeLength int
	for i := 1; i < len(path); i++ {
		routeLength += a.catalogue.Distance(path[i-1], path[i])
		info.GeoRouteLength += geo.ComputeDistance(
			a.catalogue.Stop(path[i-1]).Coordinates,
			a.catalogue.Stop(path[i]).Coordinates,
		)
	}

	// the return leg may use different measured distances
	if !bus.IsRoundtrip {
		for i := len(path) - 1; i > 0; i-- {
			routeLength += a.catalogue.Distance(path[i], path[i-1])
		}
		info.GeoRouteLength *= 2
	}

	info.RouteLength = float64(routeLength)
	info.Curvature = 1.0
	if info.GeoRouteLength > 0 {
		info.Curvature = info.RouteLength / info.GeoRouteLength
	}

	return info, true
}

// RouteCoordinates returns the points a bus passes in travel order, including
// the return leg of an out-and-back route.
func (a *Analyzer) RouteCoordinates(name string) ([]domain.Coordinates, bool) {
	bus, ok := a.catalogue.FindBus(name)
	if !ok {
		return nil, false
	}

	path := bus.Stops
	coords := make([]domain.Coordinates, 0, stopsCount(len(path), bus.IsRoundtrip))
	for _, id := range path {
		coords = append(coords, a.catalogue.Stop(id).Coordinates)
	}
	if !bus.IsRoundtrip {
		for i := len(path) - 2; i >= 0; i-- {
			coords = append(coords, a.catalogue.Stop(path[i]).Coordinates)
		}
	}
	return coords, true
}

func stopsCount(pathLen int, isRoundtrip bool) int {
	if isRoundtrip || pathLen == 0 {
		return pathLen
	}
	return 2*pathLen - 1
}

func uniqueStops(path []domain.StopID) int {
	seen := make(map[domain.StopID]struct{}, len(path))
	for _, id := range path {
		seen[id] = struct{}{}
	}
	return len(seen)
}
