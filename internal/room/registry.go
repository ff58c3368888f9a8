package room

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"huddle/internal/metrics"
	"huddle/pkg/types"
)

// Member is a joined connection as seen by the registry.
type Member interface {
	ID() string
	Send(payload []byte) error
}

// describer is implemented by members that can report presence details
type describer interface {
	Identity() types.Identity
}

// room holds the members of one project
// TECHNICAL DISCOVERY: Per-room lock keeps fan-out in one room from
// contending with joins, leaves and broadcasts in unrelated rooms
type room struct {
	mu       sync.RWMutex
	members  map[string]Member
	joinedAt map[string]time.Time
	closed   bool // emptied and unlinked from the registry; joiners must retry
}

func newRoom() *room {
	return &room{
		members:  make(map[string]Member),
		joinedAt: make(map[string]time.Time),
	}
}

func (rm *room) snapshot(exclude []string) []Member {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	recipients := make([]Member, 0, len(rm.members))
	for id, m := range rm.members {
		if contains(exclude, id) {
			continue
		}
		recipients = append(recipients, m)
	}
	return recipients
}

// Registry tracks which connections belong to which project room
// ARCHITECTURAL DISCOVERY: There is no registry-wide lock. Both indexes are
// sync.Maps and every mutation of a room's members happens under that
// room's own lock, so rooms never serialize against each other.
type Registry struct {
	rooms       sync.Map // roomID -> *room
	memberships sync.Map // memberID -> roomID
	connections atomic.Int64
	logger      zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		logger: logger.With().Str("component", "room_registry").Logger(),
	}
}

// lookup returns the live room for roomID, if any.
func (r *Registry) lookup(roomID string) (*room, bool) {
	v, ok := r.rooms.Load(roomID)
	if !ok {
		return nil, false
	}
	return v.(*room), true
}

// Join registers m under roomID. Joining the same room twice is a no-op;
// joining a second room returns ErrAlreadyInRoom.
func (r *Registry) Join(roomID string, m Member) error {
	if m == nil {
		return ErrNilMember
	}
	if roomID == "" {
		return ErrEmptyRoomID
	}

	id := m.ID()
	if current, loaded := r.memberships.LoadOrStore(id, roomID); loaded {
		if current.(string) == roomID {
			return nil
		}
		return ErrAlreadyInRoom
	}

	for {
		rm, ok := r.lookup(roomID)
		if !ok {
			v, _ := r.rooms.LoadOrStore(roomID, newRoom())
			rm = v.(*room)
		}

		rm.mu.Lock()
		if rm.closed {
			// the last member left between Load and Lock
			rm.mu.Unlock()
			continue
		}
		rm.members[id] = m
		rm.joinedAt[id] = time.Now()
		rm.mu.Unlock()
		break
	}

	r.connections.Add(1)
	metrics.ActiveConnections.Inc()
	return nil
}

// Leave removes m from its room. Calling it for an absent member is a no-op.
func (r *Registry) Leave(m Member) {
	if m == nil {
		return
	}
	id := m.ID()

	v, loaded := r.memberships.LoadAndDelete(id)
	if !loaded {
		return
	}
	roomID := v.(string)

	rm, ok := r.lookup(roomID)
	if !ok {
		return
	}

	rm.mu.Lock()
	_, present := rm.members[id]
	delete(rm.members, id)
	delete(rm.joinedAt, id)
	// TECHNICAL DISCOVERY: Clean up empty rooms to prevent memory leaks
	if len(rm.members) == 0 {
		rm.closed = true
		r.rooms.CompareAndDelete(roomID, rm)
	}
	rm.mu.Unlock()

	if present {
		r.connections.Add(-1)
		metrics.ActiveConnections.Dec()
	}
}

// Broadcast delivers payload to every member of roomID except the ids in
// exclude and returns how many deliveries succeeded. A failed delivery is
// logged and does not stop delivery to the remaining members.
func (r *Registry) Broadcast(roomID string, payload []byte, exclude ...string) int {
	rm, ok := r.lookup(roomID)
	if !ok {
		return 0
	}

	delivered := 0
	for _, m := range rm.snapshot(exclude) {
		if err := m.Send(payload); err != nil {
			metrics.DeliveryFailures.Inc()
			r.logger.Warn().
				Err(err).
				Str("room_id", roomID).
				Str("connection_id", m.ID()).
				Msg("delivery to room member failed")
			continue
		}
		delivered++
	}
	return delivered
}

// RoomOf returns the room a member is joined to.
func (r *Registry) RoomOf(memberID string) (string, bool) {
	v, ok := r.memberships.Load(memberID)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// RoomSize returns the number of members currently in roomID.
func (r *Registry) RoomSize(roomID string) int {
	rm, ok := r.lookup(roomID)
	if !ok {
		return 0
	}

	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.members)
}

// Members returns presence descriptors for roomID.
func (r *Registry) Members(roomID string) []types.MemberInfo {
	rm, ok := r.lookup(roomID)
	if !ok {
		return []types.MemberInfo{}
	}

	rm.mu.RLock()
	defer rm.mu.RUnlock()

	infos := make([]types.MemberInfo, 0, len(rm.members))
	for id, m := range rm.members {
		info := types.MemberInfo{ConnectionID: id, JoinedAt: rm.joinedAt[id]}
		if d, ok := m.(describer); ok {
			identity := d.Identity()
			info.UserID = identity.UserID
			info.Email = identity.Email
		}
		infos = append(infos, info)
	}
	return infos
}

// RoomIDs lists rooms with at least one member.
func (r *Registry) RoomIDs() []string {
	ids := []string{}
	r.rooms.Range(func(key, value any) bool {
		if r.RoomSize(key.(string)) > 0 {
			ids = append(ids, key.(string))
		}
		return true
	})
	return ids
}

// GetStats returns registry statistics for monitoring and debugging
func (r *Registry) GetStats() map[string]int {
	return map[string]int{
		"total_connections": int(r.connections.Load()),
		"active_rooms":      len(r.RoomIDs()),
	}
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
