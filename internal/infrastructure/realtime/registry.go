package realtime

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Registry tracks every live connection and its authenticated participant.
// A participant may hold several connections at once (one per tab or
// device); each is attached and detached independently.
type Registry struct {
	log     *logrus.Logger
	rooms   *Rooms
	metrics *Metrics

	mu            sync.RWMutex
	connections   map[string]*Connection         // connID -> connection
	byParticipant map[string]map[string]struct{} // participantID -> set of connIDs
}

// NewRegistry constructs a Registry that cleans the given Rooms on detach.
// metrics may be nil.
func NewRegistry(rooms *Rooms, metrics *Metrics, log *logrus.Logger) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{
		log:           log,
		rooms:         rooms,
		metrics:       metrics,
		connections:   make(map[string]*Connection),
		byParticipant: make(map[string]map[string]struct{}),
	}
}

// Attach registers an authenticated connection and starts its write loop.
func (r *Registry) Attach(conn *Connection) {
	r.mu.Lock()
	r.connections[conn.ID] = conn
	set := r.byParticipant[conn.Participant.ParticipantID]
	if set == nil {
		set = make(map[string]struct{})
		r.byParticipant[conn.Participant.ParticipantID] = set
	}
	set[conn.ID] = struct{}{}
	total := len(r.connections)
	r.mu.Unlock()

	conn.Start()
	r.metrics.SetConnections(total)

	r.log.WithFields(logrus.Fields{
		"connection_id":  conn.ID,
		"participant_id": conn.Participant.ParticipantID,
		"role":           conn.Participant.Role,
	}).Info("chat connection attached")
}

// Detach removes the connection, leaves all its rooms and closes the socket.
// Unknown ids are a no-op, so disconnect paths can call it unconditionally.
func (r *Registry) Detach(connID string) {
	r.mu.Lock()
	conn, ok := r.connections[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.connections, connID)
	if set, ok := r.byParticipant[conn.Participant.ParticipantID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.byParticipant, conn.Participant.ParticipantID)
		}
	}
	total := len(r.connections)
	r.mu.Unlock()

	r.rooms.LeaveAll(connID)
	conn.Close(1000, "detached")
	r.metrics.SetConnections(total)

	r.log.WithFields(logrus.Fields{
		"connection_id":  connID,
		"participant_id": conn.Participant.ParticipantID,
	}).Info("chat connection detached")
}

// Get returns the connection for id, or nil.
func (r *Registry) Get(connID string) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connections[connID]
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// NotifyParticipant delivers payload to every live connection of the given
// participant. Returns how many connections were reached.
func (r *Registry) NotifyParticipant(participantID string, payload []byte) int {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.byParticipant[participantID]))
	for connID := range r.byParticipant[participantID] {
		if conn := r.connections[connID]; conn != nil {
			conns = append(conns, conn)
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, conn := range conns {
		if conn.Send(payload) == nil {
			delivered++
		}
	}
	return delivered
}

// Close terminates every tracked connection and clears all state.
func (r *Registry) Close() {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	r.connections = make(map[string]*Connection)
	r.byParticipant = make(map[string]map[string]struct{})
	r.mu.Unlock()

	for _, conn := range conns {
		r.rooms.LeaveAll(conn.ID)
		conn.Close(1001, "server shutdown")
	}
	r.metrics.SetConnections(0)
}
