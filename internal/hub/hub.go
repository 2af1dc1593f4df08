package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"transitcat/internal/domain"
)

// BusInfoSource computes the statistics pushed to subscribers
type BusInfoSource interface {
	GetBusInfo(name string) (domain.BusInfo, bool)
}

type Client struct {
	ID    string
	Send  chan []byte
	buses map[string]struct{}
	mu    sync.RWMutex

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(id string, bufferSize int) *Client {
	return &Client{
		ID:    id,
		Send:  make(chan []byte, bufferSize),
		buses: make(map[string]struct{}),
		done:  make(chan struct{}),
	}
}

// Done is closed once the hub drops the client
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) HasBus(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.buses[name]
	return ok
}

func (c *Client) addBuses(names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range names {
		c.buses[name] = struct{}{}
	}
}

func (c *Client) removeBuses(names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range names {
		delete(c.buses, name)
	}
}

func (c *Client) GetBuses() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.buses))
	for name := range c.buses {
		names = append(names, name)
	}
	return names
}

// Update announces that a batch was applied to the catalogue
type Update struct {
	Fingerprint string `json:"fingerprint"`
	StopsCount  int    `json:"stops_count"`
	BusesCount  int    `json:"buses_count"`
}

// Hub fans catalogue updates out to websocket clients. Every client hears
// about each update; clients subscribed to a bus also get its fresh statistics.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	busClients map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan Update

	source BusInfoSource
	logger *slog.Logger
}

func NewHub(source BusInfoSource, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		busClients: make(map[string]map[*Client]struct{}),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan Update, 16),
		source:     source,
		logger:     logger.With("component", "hub"),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			if client.closed() {
				continue
			}
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.ID, "total", total)

		case client := <-h.unregister:
			h.removeClient(client)

		case update := <-h.broadcast:
			h.fanout(update)
		}
	}
}

func (h *Hub) Subscribe(client *Client, buses []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.addBuses(buses)

	for _, name := range buses {
		if h.busClients[name] == nil {
			h.busClients[name] = make(map[*Client]struct{})
		}
		h.busClients[name][client] = struct{}{}
	}
}

func (h *Hub) Unsubscribe(client *Client, buses []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.removeBuses(buses)
	h.dropBusClient(client, buses)
}

// Publish queues an update without blocking the caller
func (h *Hub) Publish(update Update) {
	select {
	case h.broadcast <- update:
	default:
		h.logger.Warn("broadcast channel full, dropping update", "fingerprint", update.Fingerprint)
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-client.Done():
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type UpdateMessage struct {
	Type    string `json:"type"`
	Payload Update `json:"payload"`
}

type BusMessage struct {
	Type    string         `json:"type"`
	Payload domain.BusInfo `json:"payload"`
}

// SendSnapshot pushes the current statistics of the named buses to one client.
// Unknown buses are skipped.
func (h *Hub) SendSnapshot(client *Client, buses []string) {
	for _, name := range buses {
		info, ok := h.source.GetBusInfo(name)
		if !ok {
			continue
		}
		h.send(client, BusMessage{Type: "bus", Payload: info})
	}
}

func (h *Hub) fanout(update Update) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		h.send(client, UpdateMessage{Type: "catalogue", Payload: update})
	}

	for name, clients := range h.busClients {
		info, ok := h.source.GetBusInfo(name)
		if !ok {
			continue
		}
		for client := range clients {
			h.send(client, BusMessage{Type: "bus", Payload: info})
		}
	}
}

func (h *Hub) send(client *Client, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	select {
	case client.Send <- data:
	default:
		h.logger.Debug("client send buffer full", "client_id", client.ID)
	}
}

func (h *Hub) dropBusClient(client *Client, buses []string) {
	for _, name := range buses {
		if h.busClients[name] != nil {
			delete(h.busClients[name], client)
			if len(h.busClients[name]) == 0 {
				delete(h.busClients, name)
			}
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// an unregister can overtake its register; closing the client makes Run
	// skip the late registration
	h.dropBusClient(client, client.GetBuses())
	delete(h.clients, client)
	client.close()
	h.logger.Debug("client unregistered", "client_id", client.ID, "total", len(h.clients))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.close()
	}
	h.clients = make(map[*Client]struct{})
	h.busClients = make(map[string]map[*Client]struct{})
}
