package textcmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"transitcat/internal/domain"
)

const (
	VerbStop = "Stop"
	VerbBus  = "Bus"
)

const (
	roundtripSeparator  = ">"
	outAndBackSeparator = "-"
	listSeparator       = ","
	distanceUnitAndTo   = "m to "
)

var (
	ErrMalformedCommand     = errors.New("malformed command")
	ErrMalformedCoordinates = errors.New("malformed coordinates")
	ErrMalformedDistance    = errors.New("malformed distance")
)

// Command is one base request line: "<Verb> <ID>: <Description>"
type Command struct {
	Verb        string
	ID          string
	Description string
}

// ParseLine splits a base request into verb, id and description
func ParseLine(line string) (Command, error) {
	colon := strings.Index(line, ":")
	if colon < 0 {
		return Command{}, fmt.Errorf("%w: missing ':' in %q", ErrMalformedCommand, line)
	}

	head := strings.TrimSpace(line[:colon])
	space := strings.Index(head, " ")
	if space < 0 {
		return Command{}, fmt.Errorf("%w: missing id in %q", ErrMalformedCommand, line)
	}

	cmd := Command{
		Verb:        head[:space],
		ID:          strings.TrimSpace(head[space+1:]),
		Description: strings.TrimSpace(line[colon+1:]),
	}
	if cmd.ID == "" {
		return Command{}, fmt.Errorf("%w: empty id in %q", ErrMalformedCommand, line)
	}
	return cmd, nil
}

// ParseCoordinates reads "<lat>, <lng>" from the start of a stop description
func ParseCoordinates(description string) (domain.Coordinates, error) {
	parts := splitList(description)
	if len(parts) < 2 {
		return domain.Coordinates{}, fmt.Errorf("%w: %q", ErrMalformedCoordinates, description)
	}

	lat, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("%w: latitude %q: %v", ErrMalformedCoordinates, parts[0], err)
	}
	lng, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("%w: longitude %q: %v", ErrMalformedCoordinates, parts[1], err)
	}

	return domain.Coordinates{Lat: lat, Lng: lng}, nil
}

// ParseDistances reads the "<N>m to <Stop>" items that follow the coordinates
// of a stop description. Well-formed items are returned even when others fail.
func ParseDistances(description string) (map[string]int, error) {
	parts := splitList(description)
	distances := make(map[string]int)
	if len(parts) <= 2 {
		return distances, nil
	}

	var errs []error
	for _, part := range parts[2:] {
		meters, stop, found := strings.Cut(part, distanceUnitAndTo)
		if !found {
			errs = append(errs, fmt.Errorf("%w: %q", ErrMalformedDistance, part))
			continue
		}

		d, err := strconv.Atoi(strings.TrimSpace(meters))
		if err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("%w: %q", ErrMalformedDistance, part))
			continue
		}

		stop = strings.TrimSpace(stop)
		if stop == "" {
			errs = append(errs, fmt.Errorf("%w: missing stop in %q", ErrMalformedDistance, part))
			continue
		}
		distances[stop] = d
	}

	return distances, errors.Join(errs...)
}

// IsRoundtrip reports whether a bus description uses the round-trip separator
func IsRoundtrip(description string) bool {
	return strings.Contains(description, roundtripSeparator)
}

// ParseRoute splits a bus description into stop names. A description
// containing ">" is split on ">" only, otherwise on "-".
func ParseRoute(description string) []string {
	sep := outAndBackSeparator
	if IsRoundtrip(description) {
		sep = roundtripSeparator
	}

	var stops []string
	for _, name := range strings.Split(description, sep) {
		name = strings.TrimSpace(name)
		if name != "" {
			stops = append(stops, name)
		}
	}
	return stops
}

func splitList(s string) []string {
	raw := strings.Split(s, listSeparator)
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		parts = append(parts, strings.TrimSpace(p))
	}
	return parts
}
