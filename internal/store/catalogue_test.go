package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transitcat/internal/domain"
	"transitcat/internal/geo"
)

var (
	tolstopaltsevo = domain.Coordinates{Lat: 55.611087, Lng: 37.20829}
	marushkino     = domain.Coordinates{Lat: 55.595884, Lng: 37.209755}
	rasskazovka    = domain.Coordinates{Lat: 55.632761, Lng: 37.333324}
)

func newTestCatalogue(t *testing.T) *Catalogue {
	t.Helper()

	c := NewCatalogue()
	require.NoError(t, c.AddStop("Tolstopaltsevo", tolstopaltsevo))
	require.NoError(t, c.AddStop("Marushkino", marushkino))
	require.NoError(t, c.AddStop("Rasskazovka", rasskazovka))
	return c
}

func stopID(t *testing.T, c *Catalogue, name string) domain.StopID {
	t.Helper()

	stop, ok := c.FindStop(name)
	require.True(t, ok, "stop %q not found", name)
	return stop.ID
}

func TestAddStopAndFind(t *testing.T) {
	c := newTestCatalogue(t)

	stop, ok := c.FindStop("Marushkino")
	require.True(t, ok)
	assert.Equal(t, "Marushkino", stop.Name)
	assert.Equal(t, marushkino, stop.Coordinates)

	_, ok = c.FindStop("Unknown")
	assert.False(t, ok)

	assert.True(t, c.HasStop("Rasskazovka"))
	assert.False(t, c.HasStop("Unknown"))
}

func TestAddStopRejectsDuplicate(t *testing.T) {
	c := newTestCatalogue(t)

	err := c.AddStop("Marushkino", domain.Coordinates{Lat: 1, Lng: 1})
	assert.ErrorIs(t, err, ErrDuplicateStop)

	stop, ok := c.FindStop("Marushkino")
	require.True(t, ok)
	assert.Equal(t, marushkino, stop.Coordinates, "first definition must be kept")
}

func TestStopHandlesSurviveInsertion(t *testing.T) {
	c := NewCatalogue()
	require.NoError(t, c.AddStop("A", domain.Coordinates{Lat: 1, Lng: 1}))
	first := stopID(t, c, "A")

	for i := 0; i < 1000; i++ {
		require.NoError(t, c.AddStop(fmt.Sprintf("S%d", i), domain.Coordinates{}))
	}

	stop := c.Stop(first)
	assert.Equal(t, "A", stop.Name)
	assert.Equal(t, domain.Coordinates{Lat: 1, Lng: 1}, stop.Coordinates)
}

func TestAddBusSkipsUnknownStops(t *testing.T) {
	c := newTestCatalogue(t)

	require.NoError(t, c.AddBus("750", []string{"Tolstopaltsevo", "Nowhere", "Marushkino", "Rasskazovka"}, false))

	bus, ok := c.FindBus("750")
	require.True(t, ok)
	assert.Equal(t, "750", bus.Name)
	assert.False(t, bus.IsRoundtrip)
	assert.Equal(t, []domain.StopID{
		stopID(t, c, "Tolstopaltsevo"),
		stopID(t, c, "Marushkino"),
		stopID(t, c, "Rasskazovka"),
	}, bus.Stops)

	_, ok = c.FindBus("751")
	assert.False(t, ok)
}

func TestAddBusRejectsDuplicate(t *testing.T) {
	c := newTestCatalogue(t)

	require.NoError(t, c.AddBus("750", []string{"Tolstopaltsevo", "Marushkino"}, false))
	err := c.AddBus("750", []string{"Rasskazovka"}, true)
	assert.ErrorIs(t, err, ErrDuplicateBus)

	bus, ok := c.FindBus("750")
	require.True(t, ok)
	assert.Len(t, bus.Stops, 2)
	assert.Empty(t, c.GetBusesForStop("Rasskazovka"))
}

func TestFindBusReturnsCopy(t *testing.T) {
	c := newTestCatalogue(t)
	require.NoError(t, c.AddBus("750", []string{"Tolstopaltsevo", "Marushkino"}, false))

	bus, ok := c.FindBus("750")
	require.True(t, ok)
	bus.Stops[0] = domain.StopID(99)

	again, ok := c.FindBus("750")
	require.True(t, ok)
	assert.Equal(t, stopID(t, c, "Tolstopaltsevo"), again.Stops[0])
}

func TestGetBusesForStop(t *testing.T) {
	c := newTestCatalogue(t)
	require.NoError(t, c.AddBus("828", []string{"Tolstopaltsevo", "Marushkino", "Tolstopaltsevo"}, true))
	require.NoError(t, c.AddBus("256", []string{"Marushkino", "Rasskazovka"}, false))
	require.NoError(t, c.AddBus("750", []string{"Marushkino"}, false))

	t.Run("sorted without duplicates", func(t *testing.T) {
		assert.Equal(t, []string{"256", "750", "828"}, c.GetBusesForStop("Marushkino"))
		assert.Equal(t, []string{"828"}, c.GetBusesForStop("Tolstopaltsevo"))
	})

	t.Run("known stop without buses", func(t *testing.T) {
		require.NoError(t, c.AddStop("Biryulyovo", domain.Coordinates{Lat: 55.574371, Lng: 37.6517}))
		assert.True(t, c.HasStop("Biryulyovo"))
		assert.Empty(t, c.GetBusesForStop("Biryulyovo"))
	})

	t.Run("unknown stop", func(t *testing.T) {
		assert.False(t, c.HasStop("Unknown"))
		buses := c.GetBusesForStop("Unknown")
		assert.NotNil(t, buses)
		assert.Empty(t, buses)
	})
}

func TestDistance(t *testing.T) {
	t.Run("forward entry wins over reverse entry", func(t *testing.T) {
		c := newTestCatalogue(t)
		c.AddStopDistance("Tolstopaltsevo", map[string]int{"Marushkino": 3900})
		c.AddStopDistance("Marushkino", map[string]int{"Tolstopaltsevo": 4100})

		a, b := stopID(t, c, "Tolstopaltsevo"), stopID(t, c, "Marushkino")
		assert.Equal(t, 3900, c.Distance(a, b))
		assert.Equal(t, 4100, c.Distance(b, a))
	})

	t.Run("reverse entry used when forward is missing", func(t *testing.T) {
		c := newTestCatalogue(t)
		c.AddStopDistance("Marushkino", map[string]int{"Rasskazovka": 9900})

		a, b := stopID(t, c, "Rasskazovka"), stopID(t, c, "Marushkino")
		assert.Equal(t, 9900, c.Distance(a, b))
	})

	t.Run("falls back to rounded great-circle distance", func(t *testing.T) {
		c := newTestCatalogue(t)

		a, b := stopID(t, c, "Tolstopaltsevo"), stopID(t, c, "Rasskazovka")
		assert.Equal(t, geo.RoundedDistance(tolstopaltsevo, rasskazovka), c.Distance(a, b))
		assert.Equal(t, c.Distance(a, b), c.Distance(b, a))
	})

	t.Run("later entry overwrites", func(t *testing.T) {
		c := newTestCatalogue(t)
		c.AddStopDistance("Tolstopaltsevo", map[string]int{"Marushkino": 3900})
		c.AddStopDistance("Tolstopaltsevo", map[string]int{"Marushkino": 4000})

		assert.Equal(t, 4000, c.Distance(stopID(t, c, "Tolstopaltsevo"), stopID(t, c, "Marushkino")))
	})
}

func TestAddStopDistanceDropsUnknownStops(t *testing.T) {
	c := newTestCatalogue(t)

	c.AddStopDistance("Unknown", map[string]int{"Marushkino": 100})
	c.AddStopDistance("Marushkino", map[string]int{"Unknown": 200, "Rasskazovka": 300})

	assert.Equal(t, 1, c.GetStats().DistancesCount)
}

func TestBusNamesAndStops(t *testing.T) {
	c := newTestCatalogue(t)
	require.NoError(t, c.AddBus("828", []string{"Tolstopaltsevo"}, true))
	require.NoError(t, c.AddBus("256", []string{"Marushkino"}, true))

	assert.Equal(t, []string{"256", "828"}, c.BusNames())

	stops := c.Stops()
	require.Len(t, stops, 3)
	assert.Equal(t, "Tolstopaltsevo", stops[0].Name)
	assert.Equal(t, "Rasskazovka", stops[2].Name)
}

func TestGetStats(t *testing.T) {
	c := NewCatalogue()
	assert.False(t, c.GetStats().IsLoaded)

	require.NoError(t, c.AddStop("A", domain.Coordinates{}))
	require.NoError(t, c.AddStop("B", domain.Coordinates{}))
	c.AddStopDistance("A", map[string]int{"B": 10})
	require.NoError(t, c.AddBus("1", []string{"A", "B"}, false))

	stats := c.GetStats()
	assert.Equal(t, 2, stats.StopsCount)
	assert.Equal(t, 1, stats.BusesCount)
	assert.Equal(t, 1, stats.DistancesCount)
	assert.True(t, stats.IsLoaded)
	assert.False(t, stats.LastUpdate.IsZero())
}
