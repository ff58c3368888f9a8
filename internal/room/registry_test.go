package room

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle/pkg/types"
)

type fakeMember struct {
	id       string
	identity types.Identity
	fail     bool

	mu       sync.Mutex
	received [][]byte
}

func newFakeMember(id string) *fakeMember {
	return &fakeMember{id: id, identity: types.Identity{UserID: "user-" + id, Email: id + "@example.com"}}
}

func (m *fakeMember) ID() string { return m.id }

func (m *fakeMember) Identity() types.Identity { return m.identity }

func (m *fakeMember) Send(payload []byte) error {
	if m.fail {
		return errors.New("connection closed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, payload)
	return nil
}

func (m *fakeMember) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.received)
}

func newTestRegistry() *Registry {
	return NewRegistry(zerolog.Nop())
}

func TestRegistry_NewRegistryInitialization(t *testing.T) {
	registry := newTestRegistry()

	stats := registry.GetStats()
	assert.Equal(t, 0, stats["total_connections"])
	assert.Equal(t, 0, stats["active_rooms"])
	assert.Empty(t, registry.RoomIDs())
}

func TestRegistry_JoinValidation(t *testing.T) {
	registry := newTestRegistry()

	assert.ErrorIs(t, registry.Join("room", nil), ErrNilMember)
	assert.ErrorIs(t, registry.Join("", newFakeMember("a")), ErrEmptyRoomID)
}

func TestRegistry_JoinIsIdempotentPerRoom(t *testing.T) {
	registry := newTestRegistry()
	a := newFakeMember("a")

	require.NoError(t, registry.Join("room-1", a))
	require.NoError(t, registry.Join("room-1", a))
	assert.Equal(t, 1, registry.RoomSize("room-1"))

	err := registry.Join("room-2", a)
	assert.ErrorIs(t, err, ErrAlreadyInRoom)
	assert.Equal(t, 0, registry.RoomSize("room-2"))

	roomID, ok := registry.RoomOf("a")
	assert.True(t, ok)
	assert.Equal(t, "room-1", roomID)
}

func TestRegistry_LeaveRemovesEmptyRooms(t *testing.T) {
	registry := newTestRegistry()
	a, b := newFakeMember("a"), newFakeMember("b")

	require.NoError(t, registry.Join("room-1", a))
	require.NoError(t, registry.Join("room-1", b))

	registry.Leave(a)
	assert.Equal(t, 1, registry.RoomSize("room-1"))

	registry.Leave(b)
	assert.Equal(t, 0, registry.RoomSize("room-1"))
	assert.Empty(t, registry.RoomIDs())

	// second leave and unknown members are no-ops
	registry.Leave(b)
	registry.Leave(newFakeMember("ghost"))
	registry.Leave(nil)
	assert.Equal(t, 0, registry.GetStats()["total_connections"])
}

func TestRegistry_BroadcastExcludesSender(t *testing.T) {
	registry := newTestRegistry()
	a, b, c := newFakeMember("a"), newFakeMember("b"), newFakeMember("c")
	for _, m := range []*fakeMember{a, b, c} {
		require.NoError(t, registry.Join("room-1", m))
	}

	delivered := registry.Broadcast("room-1", []byte(`{"message":"hi"}`), "a")

	assert.Equal(t, 2, delivered)
	assert.Equal(t, 0, a.count())
	assert.Equal(t, 1, b.count())
	assert.Equal(t, 1, c.count())
}

func TestRegistry_BroadcastToWholeRoom(t *testing.T) {
	registry := newTestRegistry()
	a, b := newFakeMember("a"), newFakeMember("b")
	require.NoError(t, registry.Join("room-1", a))
	require.NoError(t, registry.Join("room-1", b))

	assert.Equal(t, 2, registry.Broadcast("room-1", []byte("x")))
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
}

func TestRegistry_BroadcastIsolatesRooms(t *testing.T) {
	registry := newTestRegistry()
	a, b := newFakeMember("a"), newFakeMember("b")
	require.NoError(t, registry.Join("room-1", a))
	require.NoError(t, registry.Join("room-2", b))

	registry.Broadcast("room-1", []byte("only room one"))

	assert.Equal(t, 1, a.count())
	assert.Equal(t, 0, b.count())
	assert.Equal(t, 0, registry.Broadcast("room-unknown", []byte("nobody")))
}

func TestRegistry_BroadcastContinuesPastFailures(t *testing.T) {
	registry := newTestRegistry()
	broken := newFakeMember("broken")
	broken.fail = true
	ok := newFakeMember("ok")
	require.NoError(t, registry.Join("room-1", broken))
	require.NoError(t, registry.Join("room-1", ok))

	delivered := registry.Broadcast("room-1", []byte("x"))

	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, ok.count())
	// failed members stay registered until their own disconnect
	assert.Equal(t, 2, registry.RoomSize("room-1"))
}

func TestRegistry_Members(t *testing.T) {
	registry := newTestRegistry()
	a, b := newFakeMember("a"), newFakeMember("b")
	require.NoError(t, registry.Join("room-1", a))
	require.NoError(t, registry.Join("room-1", b))

	members := registry.Members("room-1")
	require.Len(t, members, 2)
	sort.Slice(members, func(i, j int) bool { return members[i].ConnectionID < members[j].ConnectionID })

	assert.Equal(t, "a", members[0].ConnectionID)
	assert.Equal(t, "user-a", members[0].UserID)
	assert.Equal(t, "a@example.com", members[0].Email)
	assert.False(t, members[0].JoinedAt.IsZero())

	assert.Empty(t, registry.Members("room-unknown"))
}

func TestRegistry_ConcurrentJoinBroadcastLeave(t *testing.T) {
	registry := newTestRegistry()
	const rooms, perRoom = 5, 20

	var wg sync.WaitGroup
	members := make([]*fakeMember, 0, rooms*perRoom)
	for r := 0; r < rooms; r++ {
		for i := 0; i < perRoom; i++ {
			members = append(members, newFakeMember(fmt.Sprintf("r%d-m%d", r, i)))
		}
	}

	for idx, m := range members {
		wg.Add(1)
		go func(roomID string, m *fakeMember) {
			defer wg.Done()
			assert.NoError(t, registry.Join(roomID, m))
			registry.Broadcast(roomID, []byte("ping"), m.ID())
		}(fmt.Sprintf("room-%d", idx/perRoom), m)
	}
	wg.Wait()

	stats := registry.GetStats()
	assert.Equal(t, rooms*perRoom, stats["total_connections"])
	assert.Equal(t, rooms, stats["active_rooms"])

	for _, m := range members {
		wg.Add(1)
		go func(m *fakeMember) {
			defer wg.Done()
			registry.Leave(m)
		}(m)
	}
	wg.Wait()

	assert.Equal(t, 0, registry.GetStats()["total_connections"])
	assert.Equal(t, 0, registry.GetStats()["active_rooms"])
}

func TestRegistry_BusyRoomDoesNotBlockOtherRooms(t *testing.T) {
	registry := newTestRegistry()
	a, b := newFakeMember("a"), newFakeMember("b")
	require.NoError(t, registry.Join("room-1", a))

	busy, ok := registry.lookup("room-1")
	require.True(t, ok)
	busy.mu.Lock()
	defer busy.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, registry.Join("room-2", b))
		assert.Equal(t, 0, registry.Broadcast("room-2", []byte("hi"), "b"))
		assert.Equal(t, 1, registry.RoomSize("room-2"))
		registry.Leave(b)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("room-2 operations waited on room-1")
	}
}

func TestRegistry_JoinRacingLastLeaveIsNeverLost(t *testing.T) {
	registry := newTestRegistry()

	for i := 0; i < 200; i++ {
		leaver := newFakeMember(fmt.Sprintf("leaver-%d", i))
		joiner := newFakeMember(fmt.Sprintf("joiner-%d", i))
		require.NoError(t, registry.Join("room", leaver))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); registry.Leave(leaver) }()
		go func() { defer wg.Done(); assert.NoError(t, registry.Join("room", joiner)) }()
		wg.Wait()

		require.Equal(t, 1, registry.RoomSize("room"), "iteration %d", i)
		require.Equal(t, 1, registry.Broadcast("room", []byte("ping")))
		registry.Leave(joiner)
	}

	assert.Equal(t, 0, registry.GetStats()["total_connections"])
	assert.Empty(t, registry.RoomIDs())
}
