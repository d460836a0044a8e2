package realtime

import (
	"sync"
)

// Rooms tracks which connections subscribed to which conversation and fans
// events out to them. Membership is transient: it lives exactly as long as
// the connection, and is keyed by connection so a participant with two tabs
// open holds two independent memberships.
type Rooms struct {
	metrics *Metrics

	mu           sync.RWMutex
	rooms        map[string]map[string]*Connection // conversationID -> connID -> connection
	byConnection map[string]map[string]struct{}    // connID -> set of conversationIDs
}

// NewRooms constructs an initialized Rooms. metrics may be nil.
func NewRooms(metrics *Metrics) *Rooms {
	return &Rooms{
		metrics:      metrics,
		rooms:        make(map[string]map[string]*Connection),
		byConnection: make(map[string]map[string]struct{}),
	}
}

// Join subscribes the connection to a conversation. Joining a room the
// connection is already in is a no-op: one membership per connection.
func (r *Rooms) Join(conversationID string, conn *Connection) {
	if conversationID == "" || conn == nil {
		return
	}
	r.mu.Lock()
	room := r.rooms[conversationID]
	if room == nil {
		room = make(map[string]*Connection)
		r.rooms[conversationID] = room
	}
	room[conn.ID] = conn

	memberships := r.byConnection[conn.ID]
	if memberships == nil {
		memberships = make(map[string]struct{})
		r.byConnection[conn.ID] = memberships
	}
	memberships[conversationID] = struct{}{}
	r.mu.Unlock()
}

// Leave unsubscribes the connection. Unknown rooms and non-members are
// no-ops. Empty rooms are dropped.
func (r *Rooms) Leave(conversationID, connID string) {
	r.mu.Lock()
	r.leaveLocked(conversationID, connID)
	r.mu.Unlock()
}

// LeaveAll removes the connection from every room it joined. Used on
// disconnect; safe to call repeatedly.
func (r *Rooms) LeaveAll(connID string) {
	r.mu.Lock()
	for conversationID := range r.byConnection[connID] {
		r.leaveLocked(conversationID, connID)
	}
	delete(r.byConnection, connID)
	r.mu.Unlock()
}

// Contains reports whether the connection is a member of the conversation.
func (r *Rooms) Contains(conversationID, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[conversationID][connID]
	return ok
}

// MemberCount returns the number of connections in the conversation.
func (r *Rooms) MemberCount(conversationID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[conversationID])
}

// Broadcast writes payload to every member of the conversation except
// excludeConnID (empty string excludes nobody). Holding the lock across the
// sends keeps per-room delivery order equal to broadcast-call order; Send
// itself never blocks. Returns the number of connections reached.
func (r *Rooms) Broadcast(conversationID string, payload []byte, excludeConnID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[conversationID]
	if len(room) == 0 {
		return 0
	}
	delivered := 0
	for _, conn := range room {
		if excludeConnID != "" && conn.ID == excludeConnID {
			continue
		}
		if err := conn.Send(payload); err != nil {
			r.metrics.RecordBroadcastDrop()
			continue
		}
		delivered++
	}
	return delivered
}

func (r *Rooms) leaveLocked(conversationID, connID string) {
	if connID == "" {
		return
	}
	room := r.rooms[conversationID]
	if room == nil {
		return
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(r.rooms, conversationID)
	}
	if memberships, ok := r.byConnection[connID]; ok {
		delete(memberships, conversationID)
		if len(memberships) == 0 {
			delete(r.byConnection, connID)
		}
	}
}
