// Package realtime pushes change-feed rows to connected websocket clients.
package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/cribnosh/cribnosh-backend/internal/changes"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/metrics"
	"github.com/google/uuid"
)

// broadcastRoom holds operator clients, who receive every change.
const broadcastRoom = "broadcast"

var errHubStopped = errors.New("realtime hub stopped")

// Event is the frame written to clients.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub tracks clients by room. All room state is owned by the Run goroutine.
type Hub struct {
	rooms      map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	deliver    chan changes.ChangeDTO
	done       chan struct{}
	metrics    *metrics.RealtimeMetrics
	logg       *logger.Logger
}

func NewHub(m *metrics.RealtimeMetrics, logg *logger.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan changes.ChangeDTO, 256),
		done:       make(chan struct{}),
		metrics:    m,
		logg:       logg,
	}
}

// Run processes registrations and deliveries until ctx is canceled, then
// closes every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case client := <-h.register:
			for _, room := range client.rooms() {
				if h.rooms[room] == nil {
					h.rooms[room] = make(map[*Client]struct{})
				}
				h.rooms[room][client] = struct{}{}
			}
			h.metrics.ClientConnected()
		case client := <-h.unregister:
			h.remove(client)
		case change := <-h.deliver:
			h.fanout(change)
		}
	}
}

// Publish queues a change for delivery. It blocks while the queue is full.
func (h *Hub) Publish(ctx context.Context, change changes.ChangeDTO) error {
	select {
	case h.deliver <- change:
		return nil
	case <-h.done:
		return errHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) join(client *Client) error {
	select {
	case h.register <- client:
		return nil
	case <-h.done:
		return errHubStopped
	}
}

func (h *Hub) fanout(change changes.ChangeDTO) {
	payload, err := json.Marshal(change)
	if err != nil {
		h.logg.Error(context.Background(), "failed to encode change", err)
		return
	}
	frame, err := json.Marshal(Event{Type: string(change.Type), Payload: payload})
	if err != nil {
		h.logg.Error(context.Background(), "failed to encode frame", err)
		return
	}
	for client := range h.recipients(change.Audience) {
		select {
		case client.send <- frame:
			h.metrics.Delivered()
		default:
			h.metrics.Dropped()
			h.remove(client)
		}
	}
}

// recipients resolves an audience to clients. An empty audience reaches everyone;
// operators in the broadcast room see every change.
func (h *Hub) recipients(audience []uuid.UUID) map[*Client]struct{} {
	out := make(map[*Client]struct{})
	if len(audience) == 0 {
		for _, clients := range h.rooms {
			for c := range clients {
				out[c] = struct{}{}
			}
		}
		return out
	}
	for _, id := range audience {
		for c := range h.rooms[id.String()] {
			out[c] = struct{}{}
		}
	}
	for c := range h.rooms[broadcastRoom] {
		out[c] = struct{}{}
	}
	return out
}

func (h *Hub) remove(client *Client) {
	found := false
	for _, room := range client.rooms() {
		clients, ok := h.rooms[room]
		if !ok {
			continue
		}
		if _, ok := clients[client]; ok {
			found = true
			delete(clients, client)
		}
		if len(clients) == 0 {
			delete(h.rooms, room)
		}
	}
	if found {
		close(client.send)
		h.metrics.ClientDisconnected()
	}
}

func (h *Hub) closeAll() {
	seen := make(map[*Client]struct{})
	for _, clients := range h.rooms {
		for c := range clients {
			seen[c] = struct{}{}
		}
	}
	for c := range seen {
		h.remove(c)
	}
}
