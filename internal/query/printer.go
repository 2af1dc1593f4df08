package query

import (
	"fmt"
	"io"
	"strings"

	"transitcat/internal/domain"
)

// StopIndex answers stop lookups
type StopIndex interface {
	HasStop(name string) bool
	GetBusesForStop(name string) []string
}

// BusInfoSource computes bus statistics
type BusInfoSource interface {
	GetBusInfo(name string) (domain.BusInfo, bool)
}

// Printer renders stat requests ("Bus X", "Stop Y") as response lines
type Printer struct {
	stops StopIndex
	buses BusInfoSource
}

func NewPrinter(stops StopIndex, buses BusInfoSource) *Printer {
	return &Printer{stops: stops, buses: buses}
}

// Answer returns the response line for one stat request, without a newline
func (p *Printer) Answer(request string) string {
	verb, name, found := strings.Cut(request, " ")
	if !found {
		return "Invalid request format"
	}
	name = strings.Trim(name, " ")

	switch verb {
	case "Bus":
		info, ok := p.buses.GetBusInfo(name)
		if !ok {
			return fmt.Sprintf("Bus %s: not found", name)
		}
		return FormatBusInfo(info)

	case "Stop":
		if !p.stops.HasStop(name) {
			return fmt.Sprintf("Stop %s: not found", name)
		}
		buses := p.stops.GetBusesForStop(name)
		if len(buses) == 0 {
			return fmt.Sprintf("Stop %s: no buses", name)
		}
		return fmt.Sprintf("Stop %s: buses %s", name, strings.Join(buses, " "))

	default:
		return "Unknown command: " + verb
	}
}

// Print writes the answer to request followed by a newline
func (p *Printer) Print(w io.Writer, request string) error {
	_, err := io.WriteString(w, p.Answer(request)+"\n")
	return err
}

// Run answers requests in order
func (p *Printer) Run(w io.Writer, requests []string) error {
	for _, request := range requests {
		if err := p.Print(w, request); err != nil {
			return fmt.Errorf("write answer: %w", err)
		}
	}
	return nil
}

func FormatBusInfo(info domain.BusInfo) string {
	return fmt.Sprintf("Bus %s: %d stops on route, %d unique stops, %.6f route length, %.6f curvature",
		info.Name,
		info.StopsCount,
		info.UniqueStopsCount,
		info.RouteLength,
		info.Curvature,
	)
}
