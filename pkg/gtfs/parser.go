package gtfs

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	staticgtfs "github.com/jamespfennell/gtfs"

	"transitcat/internal/domain"
)

type Parser struct {
	logger *slog.Logger
}

func NewParser(logger *slog.Logger) *Parser {
	return &Parser{
		logger: logger.With("component", "gtfs_parser"),
	}
}

// Parse converts a static GTFS archive into a catalogue batch
func (p *Parser) Parse(data []byte) (domain.Batch, error) {
	totalStart := time.Now()
	p.logger.Info("starting GTFS parsing", "size_bytes", len(data))

	static, err := staticgtfs.ParseStatic(data, staticgtfs.ParseStaticOptions{})
	if err != nil {
		return domain.Batch{}, fmt.Errorf("parse static gtfs: %w", err)
	}

	p.logger.Debug("parsed GTFS archive",
		"routes", len(static.Routes),
		"stops", len(static.Stops),
		"trips", len(static.Trips),
		"duration_ms", time.Since(totalStart).Milliseconds(),
	)

	batch := p.Convert(static)

	p.logger.Info("GTFS parsing completed",
		"total_duration_ms", time.Since(totalStart).Milliseconds(),
		"stops", len(batch.Stops),
		"buses", len(batch.Buses),
	)

	return batch, nil
}

// Convert maps parsed GTFS entities onto catalogue records.
//
// Every stop with coordinates becomes a catalogue stop; names shared by several
// GTFS stops are suffixed with the stop id. Every route becomes a bus following
// its longest trip, a round trip when that trip ends where it started.
func (p *Parser) Convert(static *staticgtfs.Static) domain.Batch {
	stopNames := buildStopNames(static.Stops)

	var batch domain.Batch
	for _, s := range static.Stops {
		if s.Latitude == nil || s.Longitude == nil {
			continue
		}
		batch.Stops = append(batch.Stops, domain.StopRecord{
			Name:        stopNames[s.Id],
			Coordinates: domain.Coordinates{Lat: *s.Latitude, Lng: *s.Longitude},
		})
	}

	longest := longestTrips(static.Trips)
	busNames := buildBusNames(static.Routes)

	for _, r := range static.Routes {
		trip, ok := longest[r.Id]
		if !ok {
			p.logger.Debug("route has no trips", "route_id", r.Id)
			continue
		}

		stopTimes := make([]staticgtfs.ScheduledStopTime, len(trip.StopTimes))
		copy(stopTimes, trip.StopTimes)
		sort.Slice(stopTimes, func(i, j int) bool {
			return stopTimes[i].StopSequence < stopTimes[j].StopSequence
		})

		stops := make([]string, 0, len(stopTimes))
		for _, st := range stopTimes {
			if st.Stop == nil {
				continue
			}
			stops = append(stops, stopNames[st.Stop.Id])
		}

		batch.Buses = append(batch.Buses, domain.BusRecord{
			Name:        busNames[r.Id],
			Stops:       stops,
			IsRoundtrip: len(stops) > 1 && stops[0] == stops[len(stops)-1],
		})
	}

	return batch
}

func buildStopNames(stops []staticgtfs.Stop) map[string]string {
	counts := make(map[string]int, len(stops))
	for _, s := range stops {
		counts[s.Name]++
	}

	names := make(map[string]string, len(stops))
	for _, s := range stops {
		name := s.Name
		if name == "" || counts[name] > 1 {
			name = fmt.Sprintf("%s (%s)", s.Name, s.Id)
		}
		names[s.Id] = name
	}
	return names
}

func buildBusNames(routes []staticgtfs.Route) map[string]string {
	counts := make(map[string]int, len(routes))
	for _, r := range routes {
		counts[routeLabel(r)]++
	}

	names := make(map[string]string, len(routes))
	for _, r := range routes {
		name := routeLabel(r)
		if counts[name] > 1 {
			name = fmt.Sprintf("%s (%s)", name, r.Id)
		}
		names[r.Id] = name
	}
	return names
}

func routeLabel(r staticgtfs.Route) string {
	if r.ShortName != "" {
		return r.ShortName
	}
	if r.LongName != "" {
		return r.LongName
	}
	return r.Id
}

// longestTrips picks, per route id, the trip with the most stop times. Ties go
// to the smallest trip id so the result does not depend on feed order.
func longestTrips(trips []staticgtfs.ScheduledTrip) map[string]*staticgtfs.ScheduledTrip {
	result := make(map[string]*staticgtfs.ScheduledTrip)
	for i := range trips {
		trip := &trips[i]
		if trip.Route == nil {
			continue
		}

		current, ok := result[trip.Route.Id]
		if !ok ||
			len(trip.StopTimes) > len(current.StopTimes) ||
			(len(trip.StopTimes) == len(current.StopTimes) && trip.ID < current.ID) {
			result[trip.Route.Id] = trip
		}
	}
	return result
}
