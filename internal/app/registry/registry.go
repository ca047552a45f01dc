package registry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/core/contracts"
	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/core/domain"
)

// Registry owns every shared connection/session/room map behind one
// lock. Nothing outside this package touches the maps directly.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]contracts.Client            // conn_id → client
	sessions    map[string]*domain.Session             // user_id → session
	roomOf      map[string]string                      // conn_id → room
	members     map[string]map[string]contracts.Client // room → conn_id → client
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]contracts.Client),
		sessions:    make(map[string]*domain.Session),
		roomOf:      make(map[string]string),
		members:     make(map[string]map[string]contracts.Client),
	}
}

func (r *Registry) Attach(c contracts.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[c.ID()] = c
}

func (r *Registry) Detach(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.connections, connID)
	r.leaveLocked(connID)
}

// Bind overwrites any previous connection handle for the user:
// a reconnecting client simply steals its own identity back.
func (r *Registry) Bind(userID, connID string, ut domain.UserType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[userID] = &domain.Session{
		UserID:   userID,
		ConnID:   connID,
		UserType: ut,
		Presence: domain.PresenceOnline,
		LastSeen: time.Now(),
	}
}

// MarkOffline finds the session owning connID. Sessions are keyed by
// user, so this is a reverse scan; the entry is kept for audit with
// presence flipped.
func (r *Registry) MarkOffline(connID string) (domain.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.ConnID == connID && s.Presence == domain.PresenceOnline {
			s.Presence = domain.PresenceOffline
			s.LastSeen = time.Now()
			return *s, true
		}
	}
	return domain.Session{}, false
}

func (r *Registry) Lookup(userID string) (domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	if !ok {
		return domain.Session{}, false
	}
	return *s, true
}

// Join places a connection in a room; joining a second room overwrites
// the first (one room per connection).
func (r *Registry) Join(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.connections[connID]
	if !ok {
		return
	}
	r.leaveLocked(connID)
	r.roomOf[connID] = room
	if r.members[room] == nil {
		r.members[room] = make(map[string]contracts.Client)
	}
	r.members[room][connID] = c
}

func (r *Registry) Leave(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connID)
}

func (r *Registry) Room(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.roomOf[connID]
	return room, ok
}

// leaveLocked requires r.mu held.
func (r *Registry) leaveLocked(connID string) {
	room, ok := r.roomOf[connID]
	if !ok {
		return
	}
	delete(r.roomOf, connID)
	delete(r.members[room], connID)
	if len(r.members[room]) == 0 {
		delete(r.members, room)
	}
}

func (r *Registry) EmitToUser(ctx context.Context, userID string, frame domain.ServerFrame) bool {
	r.mu.RLock()
	s, ok := r.sessions[userID]
	var c contracts.Client
	if ok && s.Presence == domain.PresenceOnline {
		c = r.connections[s.ConnID]
	}
	r.mu.RUnlock()
	if c == nil {
		return false
	}
	data, _ := json.Marshal(frame)
	return c.Send(ctx, data) == nil
}

func (r *Registry) Broadcast(ctx context.Context, frame domain.ServerFrame) {
	data, _ := json.Marshal(frame)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.connections {
		_ = c.Send(ctx, data)
	}
}

func (r *Registry) BroadcastRoom(ctx context.Context, room string, frame domain.ServerFrame) {
	data, _ := json.Marshal(frame)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.members[room] {
		_ = c.Send(ctx, data)
	}
}
