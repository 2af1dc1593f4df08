package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"transitcat/internal/store"
)

// Readiness reports whether the catalogue has been loaded
type Readiness interface {
	IsReady() bool
	Fingerprint() string
}

type HealthHandler struct {
	readiness Readiness
	catalogue *store.Catalogue
}

func NewHealthHandler(readiness Readiness, catalogue *store.Catalogue) *HealthHandler {
	return &HealthHandler{
		readiness: readiness,
		catalogue: catalogue,
	}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready       bool      `json:"ready"`
	StopCount   int       `json:"stopCount"`
	BusCount    int       `json:"busCount"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	ServerTime  time.Time `json:"serverTime"`
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ready := h.readiness.IsReady()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	stats := h.catalogue.GetStats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ReadyResponse{
		Ready:       ready,
		StopCount:   stats.StopsCount,
		BusCount:    stats.BusesCount,
		Fingerprint: h.readiness.Fingerprint(),
		ServerTime:  time.Now(),
	})
}
