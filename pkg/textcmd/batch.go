package textcmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"transitcat/internal/domain"
)

var ErrUnknownVerb = errors.New("unknown verb")

// ReadBlock reads a request block: a line holding the number of requests
// followed by that many lines.
func ReadBlock(r *bufio.Reader) ([]string, error) {
	header, err := readLine(r)
	if err != nil {
		return nil, fmt.Errorf("read request count: %w", err)
	}

	count, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || count < 0 {
		return nil, fmt.Errorf("%w: request count %q", ErrMalformedCommand, header)
	}

	lines := make([]string, 0, count)
	for len(lines) < count {
		line, err := readLine(r)
		if err != nil {
			return lines, fmt.Errorf("read request %d of %d: %w", len(lines)+1, count, err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// BuildBatch parses base request lines into a batch. Lines that cannot be
// parsed are left out and reported in the returned errors.
func BuildBatch(lines []string) (domain.Batch, []error) {
	var batch domain.Batch
	var errs []error

	for n, line := range lines {
		cmd, err := ParseLine(line)
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", n+1, err))
			continue
		}

		switch cmd.Verb {
		case VerbStop:
			coords, err := ParseCoordinates(cmd.Description)
			if err != nil {
				errs = append(errs, fmt.Errorf("line %d: stop %q: %w", n+1, cmd.ID, err))
				continue
			}
			distances, err := ParseDistances(cmd.Description)
			if err != nil {
				errs = append(errs, fmt.Errorf("line %d: stop %q: %w", n+1, cmd.ID, err))
			}
			batch.Stops = append(batch.Stops, domain.StopRecord{
				Name:        cmd.ID,
				Coordinates: coords,
				Distances:   distances,
			})

		case VerbBus:
			batch.Buses = append(batch.Buses, domain.BusRecord{
				Name:        cmd.ID,
				Stops:       ParseRoute(cmd.Description),
				IsRoundtrip: IsRoundtrip(cmd.Description),
			})

		default:
			errs = append(errs, fmt.Errorf("line %d: %w %q", n+1, ErrUnknownVerb, cmd.Verb))
		}
	}

	return batch, errs
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
