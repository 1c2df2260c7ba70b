package ws

import (
	"hash/fnv"
	"sync"
)

const userLockStripes = 64

// Hub is the room membership index. Each room has its own lock so unrelated
// livestreams never contend; the hub lock only guards the room table.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*room

	// userLocks serialize membership+presence updates for one (room, user)
	// pair across that user's connections.
	userLocks [userLockStripes]sync.Mutex
}

type room struct {
	mu     sync.RWMutex
	conns  map[string]*Client
	users  map[string]map[string]struct{}
	closed bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]*room)}
}

func (h *Hub) room(roomID string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[roomID]
}

func (h *Hub) getOrCreate(roomID string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[roomID]
	if !ok {
		r = &room{
			conns: make(map[string]*Client),
			users: make(map[string]map[string]struct{}),
		}
		h.rooms[roomID] = r
	}
	return r
}

// drop unlinks an emptied room. Callers have already marked it closed.
func (h *Hub) drop(roomID string, r *room) {
	h.mu.Lock()
	if h.rooms[roomID] == r {
		delete(h.rooms, roomID)
	}
	h.mu.Unlock()
}

// Join adds c to the room. It reports whether c is the user's first
// connection there.
func (h *Hub) Join(roomID string, c *Client) bool {
	for {
		r := h.getOrCreate(roomID)
		r.mu.Lock()
		if r.closed {
			// Lost a race with the last Leave; the room is being unlinked.
			r.mu.Unlock()
			continue
		}
		r.conns[c.ID()] = c
		set, ok := r.users[c.UserID()]
		if !ok {
			set = make(map[string]struct{})
			r.users[c.UserID()] = set
		}
		set[c.ID()] = struct{}{}
		first := len(set) == 1
		r.mu.Unlock()
		return first
	}
}

// Leave removes c from the room. removed is false when c was not a member;
// last is true when c was the user's final connection in the room.
func (h *Hub) Leave(roomID string, c *Client) (removed, last bool) {
	r := h.room(roomID)
	if r == nil {
		return false, false
	}

	r.mu.Lock()
	if _, ok := r.conns[c.ID()]; !ok {
		r.mu.Unlock()
		return false, false
	}
	delete(r.conns, c.ID())
	set := r.users[c.UserID()]
	delete(set, c.ID())
	if len(set) == 0 {
		delete(r.users, c.UserID())
		last = true
	}
	empty := r.markClosedIfEmpty()
	r.mu.Unlock()

	if empty {
		h.drop(roomID, r)
	}
	return true, last
}

// EvictUser removes every connection of userID from the room and returns them.
func (h *Hub) EvictUser(roomID, userID string) []*Client {
	r := h.room(roomID)
	if r == nil {
		return nil
	}

	r.mu.Lock()
	set := r.users[userID]
	evicted := make([]*Client, 0, len(set))
	for connID := range set {
		if c, ok := r.conns[connID]; ok {
			evicted = append(evicted, c)
			delete(r.conns, connID)
		}
	}
	delete(r.users, userID)
	empty := r.markClosedIfEmpty()
	r.mu.Unlock()

	if empty {
		h.drop(roomID, r)
	}
	return evicted
}

func (r *room) markClosedIfEmpty() bool {
	if len(r.conns) == 0 {
		r.closed = true
	}
	return r.closed
}

// ConnectionsForUser returns the user's connections in the room.
func (h *Hub) ConnectionsForUser(roomID, userID string) []*Client {
	r := h.room(roomID)
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.users[userID]))
	for connID := range r.users[userID] {
		if c, ok := r.conns[connID]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Members returns a snapshot of the room's connections.
func (h *Hub) Members(roomID string) []*Client {
	r := h.room(roomID)
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Broadcast queues frame on every connection in the room and returns how
// many accepted it.
func (h *Hub) Broadcast(roomID string, frame []byte) int {
	delivered := 0
	for _, c := range h.Members(roomID) {
		if c.Enqueue(frame) {
			delivered++
		}
	}
	return delivered
}

// Rooms returns the ids of rooms with at least one connection.
func (h *Hub) Rooms() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		out = append(out, id)
	}
	return out
}

// RoomCount returns the number of rooms with at least one connection.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// lockUser serializes membership changes for one user in one room.
func (h *Hub) lockUser(roomID, userID string) func() {
	f := fnv.New32a()
	_, _ = f.Write([]byte(roomID))
	_, _ = f.Write([]byte{0})
	_, _ = f.Write([]byte(userID))
	m := &h.userLocks[f.Sum32()%userLockStripes]
	m.Lock()
	return m.Unlock
}
