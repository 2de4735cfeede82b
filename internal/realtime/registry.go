package realtime

import (
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SessionRegistry tracks live sessions by id and by user. A user may hold
// several sessions at once, one per connection.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[primitive.ObjectID]map[string]*Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*Session),
		byUser:   make(map[primitive.ObjectID]map[string]*Session),
	}
}

func (r *SessionRegistry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.id] = s
	if _, ok := r.byUser[s.userID]; !ok {
		r.byUser[s.userID] = make(map[string]*Session)
	}
	r.byUser[s.userID][s.id] = s
}

// Remove reports whether s was registered.
func (r *SessionRegistry) Remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.id]; !ok {
		return false
	}
	delete(r.sessions, s.id)
	if userSessions, ok := r.byUser[s.userID]; ok {
		delete(userSessions, s.id)
		if len(userSessions) == 0 {
			delete(r.byUser, s.userID)
		}
	}
	return true
}

func (r *SessionRegistry) Lookup(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Online reports whether the user has at least one live session.
func (r *SessionRegistry) Online(userID primitive.ObjectID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *SessionRegistry) all() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// roomTable is process-local room membership. A session is in at most one room.
type roomTable struct {
	mu      sync.RWMutex
	members map[string]map[*Session]struct{}
	current map[*Session]string
}

func newRoomTable() *roomTable {
	return &roomTable{
		members: make(map[string]map[*Session]struct{}),
		current: make(map[*Session]string),
	}
}

// join moves s into room, leaving its previous room. It returns the room left, if any.
func (t *roomTable) join(s *Session, room string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.leaveLocked(s)
	if _, ok := t.members[room]; !ok {
		t.members[room] = make(map[*Session]struct{})
	}
	t.members[room][s] = struct{}{}
	t.current[s] = room
	return prev
}

func (t *roomTable) leave(s *Session) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.leaveLocked(s)
}

func (t *roomTable) leaveLocked(s *Session) string {
	room, ok := t.current[s]
	if !ok {
		return ""
	}
	delete(t.current, s)
	if m, ok := t.members[room]; ok {
		delete(m, s)
		if len(m) == 0 {
			delete(t.members, room)
		}
	}
	return room
}

func (t *roomTable) roomOf(s *Session) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current[s]
}

func (t *roomTable) sessionsIn(room string) []*Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Session, 0, len(t.members[room]))
	for s := range t.members[room] {
		out = append(out, s)
	}
	return out
}
