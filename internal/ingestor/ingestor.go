package ingestor

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"transitcat/internal/domain"
	"transitcat/internal/store"
	"transitcat/pkg/gtfs"
	"transitcat/pkg/textcmd"
)

// ApplyResult summarises one batch applied to the catalogue
type ApplyResult struct {
	StopsAdded      int
	BusesAdded      int
	DuplicateStops  int
	DuplicateBuses  int
	DistanceEntries int
	UnresolvedStops int
	SkippedRequests int
}

// Listener is told about every applied batch
type Listener func(fingerprint string, result ApplyResult)

// Ingestor fills a catalogue from base requests: all stops first, then the
// distances and buses that refer to them. Batches may be applied repeatedly;
// each one extends the catalogue.
type Ingestor struct {
	catalogue *store.Catalogue
	logger    *slog.Logger

	applyMu   sync.Mutex
	listeners []Listener

	fingerprint string
	ready       bool
	readyMu     sync.RWMutex
}

func New(catalogue *store.Catalogue, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		catalogue: catalogue,
		logger:    logger.With("component", "ingestor"),
	}
}

// LoadText reads one block of base requests and applies it
func (i *Ingestor) LoadText(r *bufio.Reader) (ApplyResult, error) {
	lines, err := textcmd.ReadBlock(r)
	if err != nil {
		return ApplyResult{}, err
	}
	return i.ApplyLines(lines), nil
}

// ApplyLines parses base request lines and applies what could be parsed
func (i *Ingestor) ApplyLines(lines []string) ApplyResult {
	batch, errs := textcmd.BuildBatch(lines)
	for _, err := range errs {
		i.logger.Warn("skipping malformed request", "error", err)
	}

	return i.apply(batch, DataFingerprint([]byte(strings.Join(lines, "\n"))), countSkippedLines(errs))
}

// LoadGTFS fetches and converts a static GTFS feed, then applies it
func (i *Ingestor) LoadGTFS(ctx context.Context, source string) (ApplyResult, error) {
	start := time.Now()

	data, err := gtfs.NewDownloader(source, i.logger).Fetch(ctx)
	if err != nil {
		return ApplyResult{}, err
	}

	batch, err := gtfs.NewParser(i.logger).Parse(data)
	if err != nil {
		return ApplyResult{}, err
	}

	result := i.Apply(batch, DataFingerprint(data))
	i.logger.Info("GTFS feed loaded",
		"source", source,
		"total_duration", time.Since(start),
	)
	return result, nil
}

// OnApply registers a listener run after each batch
func (i *Ingestor) OnApply(l Listener) {
	i.applyMu.Lock()
	defer i.applyMu.Unlock()
	i.listeners = append(i.listeners, l)
}

// Apply inserts a batch into the catalogue and marks the ingestor ready. The
// first batch's fingerprint is kept as is; later ones are chained onto it so
// the fingerprint identifies everything applied so far.
func (i *Ingestor) Apply(batch domain.Batch, fingerprint string) ApplyResult {
	return i.apply(batch, fingerprint, 0)
}

func (i *Ingestor) apply(batch domain.Batch, fingerprint string, skipped int) ApplyResult {
	i.applyMu.Lock()
	defer i.applyMu.Unlock()

	start := time.Now()
	result := ApplyResult{SkippedRequests: skipped}

	added := make([]bool, len(batch.Stops))
	for n, s := range batch.Stops {
		if err := i.catalogue.AddStop(s.Name, s.Coordinates); err != nil {
			if errors.Is(err, store.ErrDuplicateStop) {
				result.DuplicateStops++
			}
			i.logger.Warn("stop not added", "stop", s.Name, "error", err)
			continue
		}
		added[n] = true
		result.StopsAdded++
	}

	// a rejected duplicate keeps the first definition, distances included
	for n, s := range batch.Stops {
		if !added[n] || len(s.Distances) == 0 {
			continue
		}
		for to := range s.Distances {
			if !i.catalogue.HasStop(to) {
				result.UnresolvedStops++
				i.logger.Debug("distance to unknown stop dropped", "from", s.Name, "to", to)
				continue
			}
			result.DistanceEntries++
		}
		i.catalogue.AddStopDistance(s.Name, s.Distances)
	}

	for _, b := range batch.Buses {
		for _, name := range b.Stops {
			if !i.catalogue.HasStop(name) {
				result.UnresolvedStops++
				i.logger.Debug("unknown stop dropped from route", "bus", b.Name, "stop", name)
			}
		}

		if err := i.catalogue.AddBus(b.Name, b.Stops, b.IsRoundtrip); err != nil {
			if errors.Is(err, store.ErrDuplicateBus) {
				result.DuplicateBuses++
			}
			i.logger.Warn("bus not added", "bus", b.Name, "error", err)
			continue
		}
		result.BusesAdded++
	}

	i.readyMu.Lock()
	if i.fingerprint != "" {
		fingerprint = DataFingerprint([]byte(i.fingerprint + fingerprint))
	}
	i.fingerprint = fingerprint
	i.ready = true
	i.readyMu.Unlock()

	i.logger.Info("catalogue batch applied",
		"stops_added", result.StopsAdded,
		"buses_added", result.BusesAdded,
		"distance_entries", result.DistanceEntries,
		"duplicate_stops", result.DuplicateStops,
		"duplicate_buses", result.DuplicateBuses,
		"unresolved_stops", result.UnresolvedStops,
		"skipped_requests", result.SkippedRequests,
		"fingerprint", fingerprint,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	for _, l := range i.listeners {
		l(fingerprint, result)
	}

	return result
}

func (i *Ingestor) IsReady() bool {
	i.readyMu.RLock()
	defer i.readyMu.RUnlock()
	return i.ready
}

// Fingerprint identifies the data most recently applied; empty before the first batch
func (i *Ingestor) Fingerprint() string {
	i.readyMu.RLock()
	defer i.readyMu.RUnlock()
	return i.fingerprint
}

// DataFingerprint is the hex SHA-256 of the raw input
func DataFingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// countSkippedLines counts requests dropped entirely; a stop kept with some
// bad distance items is not one of them.
func countSkippedLines(errs []error) int {
	skipped := 0
	for _, err := range errs {
		if errors.Is(err, textcmd.ErrMalformedDistance) {
			continue
		}
		skipped++
	}
	return skipped
}
