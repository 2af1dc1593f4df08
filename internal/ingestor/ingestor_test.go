package ingestor

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transitcat/internal/domain"
	"transitcat/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestApplyResolvesForwardReferences(t *testing.T) {
	catalogue := store.NewCatalogue()
	ing := New(catalogue, testLogger())
	assert.False(t, ing.IsReady())

	result := ing.ApplyLines([]string{
		"Bus 1: A - B",
		"Stop A: 55.6, 37.2, 100m to B",
		"Stop B: 55.7, 37.3",
	})

	assert.Equal(t, 2, result.StopsAdded)
	assert.Equal(t, 1, result.BusesAdded)
	assert.Equal(t, 1, result.DistanceEntries)
	assert.True(t, ing.IsReady())
	assert.NotEmpty(t, ing.Fingerprint())

	bus, ok := catalogue.FindBus("1")
	require.True(t, ok)
	assert.Len(t, bus.Stops, 2)

	a, _ := catalogue.FindStop("A")
	b, _ := catalogue.FindStop("B")
	assert.Equal(t, 100, catalogue.Distance(a.ID, b.ID))
	assert.Equal(t, 100, catalogue.Distance(b.ID, a.ID))
}

func TestApplyCountsRejectedRecords(t *testing.T) {
	catalogue := store.NewCatalogue()
	ing := New(catalogue, testLogger())

	result := ing.Apply(domain.Batch{
		Stops: []domain.StopRecord{
			{Name: "A", Coordinates: domain.Coordinates{Lat: 1, Lng: 1}, Distances: map[string]int{"Ghost": 5}},
			{Name: "A", Coordinates: domain.Coordinates{Lat: 2, Lng: 2}, Distances: map[string]int{"A": 9}},
		},
		Buses: []domain.BusRecord{
			{Name: "7", Stops: []string{"A", "Nowhere"}},
			{Name: "7", Stops: []string{"A"}},
		},
	}, "abc")

	assert.Equal(t, ApplyResult{
		StopsAdded:      1,
		BusesAdded:      1,
		DuplicateStops:  1,
		DuplicateBuses:  1,
		UnresolvedStops: 2,
	}, result)
	assert.Equal(t, "abc", ing.Fingerprint())

	stop, _ := catalogue.FindStop("A")
	assert.Equal(t, domain.Coordinates{Lat: 1, Lng: 1}, stop.Coordinates)
	assert.Equal(t, 0, catalogue.Distance(stop.ID, stop.ID))
}

func TestApplyLinesSkipsMalformed(t *testing.T) {
	ing := New(store.NewCatalogue(), testLogger())

	result := ing.ApplyLines([]string{
		"Stop A: 1, 2, xm to B",
		"Stop B: north, south",
		"nonsense",
	})

	assert.Equal(t, 1, result.StopsAdded)
	assert.Equal(t, 2, result.SkippedRequests)
}

func TestLoadText(t *testing.T) {
	catalogue := store.NewCatalogue()
	ing := New(catalogue, testLogger())

	r := bufio.NewReader(strings.NewReader("1\nStop A: 1, 2\n1\nStop A\n"))
	result, err := ing.LoadText(r)
	require.NoError(t, err)
	assert.Equal(t, 1, result.StopsAdded)
	assert.True(t, catalogue.HasStop("A"))

	_, err = ing.LoadText(bufio.NewReader(strings.NewReader("")))
	assert.Error(t, err)
}

func TestLoadGTFSMissingSource(t *testing.T) {
	ing := New(store.NewCatalogue(), testLogger())

	_, err := ing.LoadGTFS(context.Background(), filepath.Join(t.TempDir(), "missing.zip"))
	assert.Error(t, err)
	assert.False(t, ing.IsReady())
}

func TestDataFingerprint(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		DataFingerprint(nil),
	)
	assert.NotEqual(t, DataFingerprint([]byte("a")), DataFingerprint([]byte("b")))
}

func TestApplyChainsFingerprintAndNotifies(t *testing.T) {
	ing := New(store.NewCatalogue(), testLogger())

	var seen []string
	var results []ApplyResult
	ing.OnApply(func(fingerprint string, result ApplyResult) {
		seen = append(seen, fingerprint)
		results = append(results, result)
	})

	ing.Apply(domain.Batch{Stops: []domain.StopRecord{{Name: "A"}}}, "first")
	assert.Equal(t, "first", ing.Fingerprint())

	ing.ApplyLines([]string{"Stop B: 1, 1", "junk"})
	chained := ing.Fingerprint()
	assert.NotEqual(t, "first", chained)
	assert.Len(t, chained, 64)

	assert.Equal(t, []string{"first", chained}, seen)
	assert.Equal(t, 1, results[1].StopsAdded)
	assert.Equal(t, 1, results[1].SkippedRequests)
}
