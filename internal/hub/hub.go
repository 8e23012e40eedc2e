package hub

import (
	"errors"
	"sync"

	"github.com/weiawesome/wes-io-live/collab-service/internal/domain"
	"github.com/weiawesome/wes-io-live/collab-service/internal/metrics"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/log"
)

var (
	ErrNotRegistered = errors.New("client not registered")
	ErrHubStopped    = errors.New("hub stopped")
)

// Hooks are called outside the hub lock, from whichever goroutine changed
// the membership. They must not block on the hub.
type Hooks struct {
	RoomOpened  func(roomID string)
	RoomEmptied func(roomID string)
}

// Hub owns room membership and fans messages out to room members. All
// broadcasts go through one FIFO queue drained by Run, so every member of a
// room observes messages in the order they were queued.
type Hub struct {
	clients   map[string]*Client            // clientID -> client
	rooms     map[string]map[string]*Client // roomID -> clientID -> client
	roomOf    map[string]string             // clientID -> roomID
	broadcast chan *RoomMessage
	done      chan struct{}
	stopOnce  sync.Once
	hooks     Hooks
	mu        sync.RWMutex
}

// RoomMessage is one queued fan-out.
type RoomMessage struct {
	RoomID  string
	Message []byte
	Exclude string // Client ID to exclude
}

// NewHub creates a hub. queueSize bounds the broadcast queue.
func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Hub{
		clients:   make(map[string]*Client),
		rooms:     make(map[string]map[string]*Client),
		roomOf:    make(map[string]string),
		broadcast: make(chan *RoomMessage, queueSize),
		done:      make(chan struct{}),
	}
}

// SetHooks installs membership hooks. Call before Run.
func (h *Hub) SetHooks(hooks Hooks) {
	h.mu.Lock()
	h.hooks = hooks
	h.mu.Unlock()
}

// Run drains the broadcast queue until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return
		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg *RoomMessage) {
	var slow []*Client

	h.mu.RLock()
	for clientID, client := range h.rooms[msg.RoomID] {
		if clientID == msg.Exclude || client.evicted.Load() {
			continue
		}
		select {
		case client.send <- msg.Message:
		default:
			if client.evicted.CompareAndSwap(false, true) {
				slow = append(slow, client)
			}
		}
	}
	h.mu.RUnlock()

	// Eviction may empty the room, and room hooks must never run on the
	// broadcast loop.
	for _, client := range slow {
		l := log.L()
		l.Warn().Str(log.FieldConnectionID, client.ID).Str(log.FieldRoomID, msg.RoomID).Msg("send buffer full, dropping client")
		metrics.SlowClientsDropped.Inc()
		go h.Unregister(client)
	}
}

// Register makes a client known to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; ok {
		return
	}
	h.clients[client.ID] = client
	metrics.ConnectionsActive.Inc()
	l := log.L()
	l.Debug().Str(log.FieldConnectionID, client.ID).Msg("client registered")
}

// Unregister removes a client from its room and the hub and closes its send
// channel. It is idempotent.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	roomID, emptied := h.leaveLocked(client.ID)
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		metrics.ConnectionsActive.Dec()
	}
	if !client.closed {
		client.closed = true
		close(client.send)
	}
	hooks := h.hooks
	h.mu.Unlock()

	if emptied && hooks.RoomEmptied != nil {
		hooks.RoomEmptied(roomID)
	}
	l := log.L()
	l.Debug().Str(log.FieldConnectionID, client.ID).Msg("client unregistered")
}

// Join adds a registered client to roomID, moving it out of any other room.
// It reports whether the room was created by this join.
func (h *Hub) Join(client *Client, roomID string) (bool, error) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; !ok {
		h.mu.Unlock()
		return false, ErrNotRegistered
	}

	var oldRoom string
	var oldEmptied bool
	if current, ok := h.roomOf[client.ID]; ok {
		if current == roomID {
			h.mu.Unlock()
			return false, nil
		}
		oldRoom, oldEmptied = h.leaveLocked(client.ID)
	}

	members, exists := h.rooms[roomID]
	if !exists {
		members = make(map[string]*Client)
		h.rooms[roomID] = members
		metrics.RoomsActive.Inc()
	}
	members[client.ID] = client
	h.roomOf[client.ID] = roomID
	hooks := h.hooks
	h.mu.Unlock()

	if oldEmptied && hooks.RoomEmptied != nil {
		hooks.RoomEmptied(oldRoom)
	}
	if !exists && hooks.RoomOpened != nil {
		hooks.RoomOpened(roomID)
	}

	l := log.L()
	l.Info().Str(log.FieldConnectionID, client.ID).Str(log.FieldRoomID, roomID).Msg("client joined room")
	return !exists, nil
}

// Leave removes a client from its room. It returns the room it left and
// whether that room is now empty. Leaving when not in a room is a no-op.
func (h *Hub) Leave(clientID string) (string, bool) {
	h.mu.Lock()
	roomID, emptied := h.leaveLocked(clientID)
	hooks := h.hooks
	h.mu.Unlock()

	if emptied && hooks.RoomEmptied != nil {
		hooks.RoomEmptied(roomID)
	}
	return roomID, emptied
}

func (h *Hub) leaveLocked(clientID string) (string, bool) {
	roomID, ok := h.roomOf[clientID]
	if !ok {
		return "", false
	}
	delete(h.roomOf, clientID)

	members := h.rooms[roomID]
	delete(members, clientID)
	if len(members) > 0 {
		return roomID, false
	}
	delete(h.rooms, roomID)
	metrics.RoomsActive.Dec()
	return roomID, true
}

// Broadcast queues data for every member of roomID except exclude. The member
// set is read when the message is delivered.
func (h *Hub) Broadcast(roomID string, data []byte, exclude string) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}

	select {
	case h.broadcast <- &RoomMessage{RoomID: roomID, Message: data, Exclude: exclude}:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

// SendTo queues data for a single client, bypassing the room queue. It
// returns false when the client is gone or its buffer is full.
func (h *Hub) SendTo(clientID string, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[clientID]
	if !ok || client.closed {
		return false
	}
	select {
	case client.send <- data:
		return true
	default:
		return false
	}
}

// Members returns the ids of the clients in roomID, except exclude.
func (h *Hub) Members(roomID, exclude string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.rooms[roomID]))
	for id := range h.rooms[roomID] {
		if id != exclude {
			ids = append(ids, id)
		}
	}
	return ids
}

// RoomSize returns the number of clients in roomID.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// RoomOf returns the room a client is in.
func (h *Hub) RoomOf(clientID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	roomID, ok := h.roomOf[clientID]
	return roomID, ok
}

// Rooms returns the ids of all non-empty rooms.
func (h *Hub) Rooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	return ids
}

// Context returns the connection context of a registered client.
func (h *Hub) Context(clientID string) (domain.ConnContext, bool) {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return domain.ConnContext{}, false
	}
	return client.Conn.Context()
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop ends Run and closes every client's send channel, which makes each
// write pump send a close frame.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		defer h.mu.Unlock()
		for id, client := range h.clients {
			if !client.closed {
				client.closed = true
				close(client.send)
			}
			delete(h.clients, id)
			metrics.ConnectionsActive.Dec()
		}
		metrics.RoomsActive.Sub(float64(len(h.rooms)))
		h.rooms = make(map[string]map[string]*Client)
		h.roomOf = make(map[string]string)
	})
}
