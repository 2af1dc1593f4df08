package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"transitcat/internal/analyzer"
	"transitcat/internal/domain"
	"transitcat/internal/geo"
	"transitcat/internal/ingestor"
	"transitcat/internal/query"
	"transitcat/internal/store"
)

// maxRequestBody bounds plain-text request bodies
const maxRequestBody = 1 << 20

// BusInfoCache stores computed bus statistics
type BusInfoCache interface {
	GetBusInfo(ctx context.Context, version, bus string) (domain.BusInfo, bool, error)
	SetBusInfo(ctx context.Context, version string, info domain.BusInfo, ttl time.Duration) error
}

type Options struct {
	CacheTTL     time.Duration
	AllowUpdates bool
}

type HTTPHandler struct {
	catalogue *store.Catalogue
	analyzer  *analyzer.Analyzer
	printer   *query.Printer
	ingestor  *ingestor.Ingestor
	cache     BusInfoCache
	opts      Options
	logger    *slog.Logger
}

// NewHTTPHandler builds the catalogue endpoints. busCache may be nil.
func NewHTTPHandler(catalogue *store.Catalogue, an *analyzer.Analyzer, ing *ingestor.Ingestor, busCache BusInfoCache, opts Options, logger *slog.Logger) *HTTPHandler {
	return &HTTPHandler{
		catalogue: catalogue,
		analyzer:  an,
		printer:   query.NewPrinter(catalogue, an),
		ingestor:  ing,
		cache:     busCache,
		opts:      opts,
		logger:    logger.With("handler", "catalogue"),
	}
}

type BusesResponse struct {
	Buses      []string  `json:"buses"`
	Count      int       `json:"count"`
	ServerTime time.Time `json:"server_time"`
}

func (h *HTTPHandler) ListBuses(w http.ResponseWriter, r *http.Request) {
	names := h.catalogue.BusNames()

	respondJSON(w, http.StatusOK, BusesResponse{
		Buses:      names,
		Count:      len(names),
		ServerTime: time.Now(),
	})
}

func (h *HTTPHandler) GetBus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := r.PathValue("name")

	version := h.ingestor.Fingerprint()
	info, cacheHit := h.tryGetFromCache(r.Context(), version, name)

	if !cacheHit {
		var ok bool
		info, ok = h.analyzer.GetBusInfo(name)
		if !ok {
			h.logger.Debug("GetBus bus not found", "bus", name)
			respondError(w, http.StatusNotFound, "bus not found")
			return
		}
		h.storeInCache(r.Context(), version, info)
	}

	h.logger.Debug("GetBus response",
		"bus", name,
		"cache_hit", cacheHit,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	respondJSON(w, http.StatusOK, info)
}

type ShapeResponse struct {
	Name     string `json:"name"`
	Polyline string `json:"polyline"`
	Points   int    `json:"points"`
}

func (h *HTTPHandler) GetBusShape(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	coords, ok := h.analyzer.RouteCoordinates(name)
	if !ok {
		respondError(w, http.StatusNotFound, "bus not found")
		return
	}

	respondJSON(w, http.StatusOK, ShapeResponse{
		Name:     name,
		Polyline: geo.EncodePolyline(coords),
		Points:   len(coords),
	})
}

type StopResponse struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Geohash string  `json:"geohash"`
}

type StopsResponse struct {
	Stops      []StopResponse `json:"stops"`
	Count      int            `json:"count"`
	ServerTime time.Time      `json:"server_time"`
}

// ListStops returns all stops, optionally only those whose geohash starts
// with the "geohash" query parameter.
func (h *HTTPHandler) ListStops(w http.ResponseWriter, r *http.Request) {
	prefix := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("geohash")))
	if len(prefix) > geo.GeohashPrecision {
		respondError(w, http.StatusBadRequest, "geohash prefix is longer than the stored precision")
		return
	}

	stops := h.catalogue.Stops()
	result := make([]StopResponse, 0, len(stops))
	for _, s := range stops {
		hash := geo.Geohash(s.Coordinates)
		if !strings.HasPrefix(hash, prefix) {
			continue
		}
		result = append(result, StopResponse{
			Name:    s.Name,
			Lat:     s.Coordinates.Lat,
			Lng:     s.Coordinates.Lng,
			Geohash: hash,
		})
	}

	respondJSON(w, http.StatusOK, StopsResponse{
		Stops:      result,
		Count:      len(result),
		ServerTime: time.Now(),
	})
}

func (h *HTTPHandler) GetStop(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	stop, ok := h.catalogue.FindStop(name)
	if !ok {
		respondError(w, http.StatusNotFound, "stop not found")
		return
	}

	respondJSON(w, http.StatusOK, domain.StopBuses{
		Stop:    *stop,
		Geohash: geo.Geohash(stop.Coordinates),
		Buses:   h.catalogue.GetBusesForStop(name),
	})
}

// PostStat answers a plain-text body of stat requests, one per line
func (h *HTTPHandler) PostStat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	requests, err := readLines(w, r)
	if err != nil {
		respondBodyError(w, err)
		return
	}

	ServerStats.AddStatRequests(len(requests))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := h.printer.Run(w, requests); err != nil {
		h.logger.Debug("PostStat write failed", "error", err)
		return
	}

	h.logger.Debug("PostStat response",
		"requests", len(requests),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

type BaseResponse struct {
	StopsAdded      int    `json:"stops_added"`
	BusesAdded      int    `json:"buses_added"`
	DuplicateStops  int    `json:"duplicate_stops"`
	DuplicateBuses  int    `json:"duplicate_buses"`
	DistanceEntries int    `json:"distance_entries"`
	UnresolvedStops int    `json:"unresolved_stops"`
	SkippedRequests int    `json:"skipped_requests"`
	Fingerprint     string `json:"fingerprint"`
}

// PostBase extends the live catalogue with a plain-text body of base requests
func (h *HTTPHandler) PostBase(w http.ResponseWriter, r *http.Request) {
	if !h.opts.AllowUpdates {
		respondError(w, http.StatusForbidden, "catalogue updates are disabled")
		return
	}

	lines, err := readLines(w, r)
	if err != nil {
		respondBodyError(w, err)
		return
	}

	result := h.ingestor.ApplyLines(lines)

	respondJSON(w, http.StatusOK, BaseResponse{
		StopsAdded:      result.StopsAdded,
		BusesAdded:      result.BusesAdded,
		DuplicateStops:  result.DuplicateStops,
		DuplicateBuses:  result.DuplicateBuses,
		DistanceEntries: result.DistanceEntries,
		UnresolvedStops: result.UnresolvedStops,
		SkippedRequests: result.SkippedRequests,
		Fingerprint:     h.ingestor.Fingerprint(),
	})
}

// readLines splits the request body into its non-blank lines. A body over
// maxRequestBody fails as a whole so no truncated line is ever returned.
func readLines(w http.ResponseWriter, r *http.Request) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(http.MaxBytesReader(w, r.Body, maxRequestBody))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

func (h *HTTPHandler) tryGetFromCache(ctx context.Context, version, bus string) (domain.BusInfo, bool) {
	if h.cache == nil {
		return domain.BusInfo{}, false
	}
	info, found, err := h.cache.GetBusInfo(ctx, version, bus)
	if err != nil || !found {
		ServerStats.IncCacheMisses()
		return domain.BusInfo{}, false
	}
	ServerStats.IncCacheHits()
	return info, true
}

func (h *HTTPHandler) storeInCache(ctx context.Context, version string, info domain.BusInfo) {
	if h.cache == nil {
		return
	}
	if err := h.cache.SetBusInfo(ctx, version, info, h.opts.CacheTTL); err != nil {
		h.logger.Debug("failed to cache bus info", "bus", info.Name, "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

func respondBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return
	}
	respondError(w, http.StatusBadRequest, "failed to read request body")
}
