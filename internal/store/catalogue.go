package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"transitcat/internal/domain"
	"transitcat/internal/geo"
)

var (
	ErrDuplicateStop = errors.New("stop already exists")
	ErrDuplicateBus  = errors.New("bus already exists")
)

type stopPair struct {
	from domain.StopID
	to   domain.StopID
}

// Catalogue owns stops, buses and the directed distance table.
// Records are append-only and addressed by index, so handles stay valid for the
// lifetime of the catalogue.
type Catalogue struct {
	mu          sync.RWMutex
	stops       []domain.Stop
	buses       []domain.Bus
	stopsByName map[string]domain.StopID
	busesByName map[string]domain.BusID
	stopBuses   map[domain.StopID]map[string]struct{}
	distances   map[stopPair]int

	lastUpdate time.Time
}

func NewCatalogue() *Catalogue {
	return &Catalogue{
		stopsByName: make(map[string]domain.StopID),
		busesByName: make(map[string]domain.BusID),
		stopBuses:   make(map[domain.StopID]map[string]struct{}),
		distances:   make(map[stopPair]int),
	}
}

func (c *Catalogue) AddStop(name string, coords domain.Coordinates) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.stopsByName[name]; exists {
		return ErrDuplicateStop
	}

	id := domain.StopID(len(c.stops))
	c.stops = append(c.stops, domain.Stop{
		ID:          id,
		Name:        name,
		Coordinates: coords,
	})
	c.stopsByName[name] = id
	c.lastUpdate = time.Now()
	return nil
}

// AddBus registers a bus over the named stops. Names that do not resolve to a
// known stop are left out of the path.
func (c *Catalogue) AddBus(name string, stopNames []string, isRoundtrip bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.busesByName[name]; exists {
		return ErrDuplicateBus
	}

	path := make([]domain.StopID, 0, len(stopNames))
	for _, stopName := range stopNames {
		id, ok := c.stopsByName[stopName]
		if !ok {
			continue
		}
		path = append(path, id)

		if c.stopBuses[id] == nil {
			c.stopBuses[id] = make(map[string]struct{})
		}
		c.stopBuses[id][name] = struct{}{}
	}

	id := domain.BusID(len(c.buses))
	c.buses = append(c.buses, domain.Bus{
		ID:          id,
		Name:        name,
		Stops:       path,
		IsRoundtrip: isRoundtrip,
	})
	c.busesByName[name] = id
	c.lastUpdate = time.Now()
	return nil
}

// AddStopDistance records measured distances from one stop to its neighbours.
// Entries naming unknown stops are dropped.
func (c *Catalogue) AddStopDistance(from string, distances map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fromID, ok := c.stopsByName[from]
	if !ok {
		return
	}

	for to, meters := range distances {
		toID, ok := c.stopsByName[to]
		if !ok {
			continue
		}
		c.distances[stopPair{from: fromID, to: toID}] = meters
	}
	c.lastUpdate = time.Now()
}

func (c *Catalogue) FindStop(name string) (*domain.Stop, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.stopsByName[name]
	if !ok {
		return nil, false
	}
	copy := c.stops[id]
	return &copy, true
}

func (c *Catalogue) FindBus(name string) (*domain.Bus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.busesByName[name]
	if !ok {
		return nil, false
	}
	bus := c.buses[id]
	busCopy := &domain.Bus{
		ID:          bus.ID,
		Name:        bus.Name,
		Stops:       make([]domain.StopID, len(bus.Stops)),
		IsRoundtrip: bus.IsRoundtrip,
	}
	copy(busCopy.Stops, bus.Stops)
	return busCopy, true
}

func (c *Catalogue) HasStop(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.stopsByName[name]
	return ok
}

// GetBusesForStop returns the sorted names of buses serving a stop. Unknown
// stops and stops without buses both yield an empty slice; use HasStop to tell
// them apart.
func (c *Catalogue) GetBusesForStop(name string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.stopsByName[name]
	if !ok {
		return []string{}
	}

	names := make([]string, 0, len(c.stopBuses[id]))
	for bus := range c.stopBuses[id] {
		names = append(names, bus)
	}
	sort.Strings(names)
	return names
}

// Stop returns the stop behind a handle issued by this catalogue
func (c *Catalogue) Stop(id domain.StopID) domain.Stop {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stops[id]
}

// Distance resolves the road distance between two stops: the forward entry
// first, then the reverse entry, then the rounded great-circle distance.
func (c *Catalogue) Distance(from, to domain.StopID) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if d, ok := c.distances[stopPair{from: from, to: to}]; ok {
		return d
	}
	if d, ok := c.distances[stopPair{from: to, to: from}]; ok {
		return d
	}
	return geo.RoundedDistance(c.stops[from].Coordinates, c.stops[to].Coordinates)
}

// Stops returns copies of all stops in insertion order
func (c *Catalogue) Stops() []domain.Stop {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]domain.Stop, len(c.stops))
	copy(result, c.stops)
	return result
}

func (c *Catalogue) BusNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.busesByName))
	for name := range c.busesByName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type CatalogueStats struct {
	StopsCount     int       `json:"stops_count"`
	BusesCount     int       `json:"buses_count"`
	DistancesCount int       `json:"distances_count"`
	LastUpdate     time.Time `json:"last_update"`
	IsLoaded       bool      `json:"is_loaded"`
}

func (c *Catalogue) GetStats() CatalogueStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return CatalogueStats{
		StopsCount:     len(c.stops),
		BusesCount:     len(c.buses),
		DistancesCount: len(c.distances),
		LastUpdate:     c.lastUpdate,
		IsLoaded:       !c.lastUpdate.IsZero(),
	}
}
