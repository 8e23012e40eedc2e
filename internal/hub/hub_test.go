package hub

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/collab-service/internal/config"
	"github.com/weiawesome/wes-io-live/collab-service/internal/domain"
)

func newTestClient(t *testing.T, h *Hub, id, roomID string, buffer int) *Client {
	t.Helper()
	conn := domain.NewConnection(id)
	require.NoError(t, conn.Authenticate(domain.NewConnContext(domain.Principal{ID: "user-" + id}, roomID)))

	c := NewClient(conn, nil, config.WebSocketConfig{SendBuffer: buffer})
	h.Register(c)
	_, err := h.Join(c, roomID)
	require.NoError(t, err)
	return c
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(64)
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

func recv(t *testing.T, c *Client) string {
	t.Helper()
	select {
	case msg := <-c.send:
		return string(msg)
	case <-time.After(time.Second):
		t.Fatalf("client %s received nothing", c.ID)
		return ""
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("client %s unexpectedly received %q", c.ID, msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestJoinLeaveMembership(t *testing.T) {
	h := startHub(t)

	var opened, emptied []string
	var mu sync.Mutex
	h.SetHooks(Hooks{
		RoomOpened:  func(r string) { mu.Lock(); opened = append(opened, r); mu.Unlock() },
		RoomEmptied: func(r string) { mu.Lock(); emptied = append(emptied, r); mu.Unlock() },
	})

	a := newTestClient(t, h, "a", "r1", 8)
	b := newTestClient(t, h, "b", "r1", 8)

	assert.Equal(t, 2, h.RoomSize("r1"))
	assert.ElementsMatch(t, []string{"b"}, h.Members("r1", "a"))
	assert.ElementsMatch(t, []string{"r1"}, h.Rooms())

	created, err := h.Join(a, "r1")
	require.NoError(t, err)
	assert.False(t, created, "rejoining the same room is a no-op")
	assert.Equal(t, 2, h.RoomSize("r1"))

	room, empty := h.Leave("a")
	assert.Equal(t, "r1", room)
	assert.False(t, empty)

	_, empty = h.Leave("a")
	assert.False(t, empty, "leave is idempotent")

	room, empty = h.Leave(b.ID)
	assert.Equal(t, "r1", room)
	assert.True(t, empty)
	assert.Empty(t, h.Rooms())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"r1"}, opened)
	assert.Equal(t, []string{"r1"}, emptied)
}

func TestJoinMovesBetweenRooms(t *testing.T) {
	h := startHub(t)
	a := newTestClient(t, h, "a", "r1", 8)

	created, err := h.Join(a, "r2")
	require.NoError(t, err)
	assert.True(t, created)

	assert.Equal(t, 0, h.RoomSize("r1"))
	assert.Equal(t, 1, h.RoomSize("r2"))
	room, ok := h.RoomOf("a")
	require.True(t, ok)
	assert.Equal(t, "r2", room)
}

func TestJoinRequiresRegistration(t *testing.T) {
	h := startHub(t)
	c := NewClient(domain.NewConnection("ghost"), nil, config.WebSocketConfig{SendBuffer: 1})

	_, err := h.Join(c, "r1")
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestBroadcastExcludesSenderAndOtherRooms(t *testing.T) {
	h := startHub(t)
	a := newTestClient(t, h, "a", "r1", 8)
	b := newTestClient(t, h, "b", "r1", 8)
	c := newTestClient(t, h, "c", "r2", 8)

	require.NoError(t, h.Broadcast("r1", []byte("hello"), a.ID))

	assert.Equal(t, "hello", recv(t, b))
	assertSilent(t, a)
	assertSilent(t, c)
}

func TestBroadcastPreservesQueueOrder(t *testing.T) {
	h := startHub(t)
	a := newTestClient(t, h, "a", "r1", 8)
	b := newTestClient(t, h, "b", "r1", 8)
	c := newTestClient(t, h, "c", "r1", 8)

	require.NoError(t, h.Broadcast("r1", []byte("m1"), a.ID))
	require.NoError(t, h.Broadcast("r1", []byte("m2"), b.ID))
	require.NoError(t, h.Broadcast("r1", []byte("m3"), a.ID))

	assert.Equal(t, "m1", recv(t, c))
	assert.Equal(t, "m2", recv(t, c))
	assert.Equal(t, "m3", recv(t, c))

	assert.Equal(t, "m1", recv(t, b))
	assert.Equal(t, "m3", recv(t, b))

	assert.Equal(t, "m2", recv(t, a))
}

func TestSlowClientIsDropped(t *testing.T) {
	h := startHub(t)
	emptied := make(chan string, 1)
	h.SetHooks(Hooks{RoomEmptied: func(r string) { emptied <- r }})

	sender := newTestClient(t, h, "sender", "r1", 8)
	slow := newTestClient(t, h, "slow", "r1", 1)

	for i := 0; i < 3; i++ {
		require.NoError(t, h.Broadcast("r1", []byte(fmt.Sprintf("m%d", i)), sender.ID))
	}

	require.Eventually(t, func() bool { return h.RoomSize("r1") == 1 }, time.Second, 5*time.Millisecond)

	// The buffered message is still readable, then the channel is closed.
	assert.Equal(t, "m0", string(<-slow.send))
	_, open := <-slow.send
	assert.False(t, open)

	h.Unregister(sender)
	assert.Equal(t, "r1", <-emptied)
	assert.Equal(t, 0, h.ClientCount())
}

func TestSendToAndContext(t *testing.T) {
	h := startHub(t)
	a := newTestClient(t, h, "a", "r1", 1)

	cc, ok := h.Context("a")
	require.True(t, ok)
	assert.Equal(t, "r1", cc.RoomID)
	assert.Equal(t, "user-a", cc.Principal.ID)

	assert.True(t, h.SendTo("a", []byte("pong")))
	assert.False(t, h.SendTo("a", []byte("overflow")))
	assert.Equal(t, "pong", recv(t, a))

	h.Unregister(a)
	h.Unregister(a)
	assert.False(t, h.SendTo("a", []byte("late")))
	_, ok = h.Context("a")
	assert.False(t, ok)
}

func TestStopClosesClients(t *testing.T) {
	h := NewHub(8)
	go h.Run()
	a := newTestClient(t, h, "a", "r1", 8)

	h.Stop()
	h.Stop()

	_, open := <-a.send
	assert.False(t, open)
	assert.ErrorIs(t, h.Broadcast("r1", []byte("x"), ""), ErrHubStopped)
	assert.Equal(t, 0, h.ClientCount())
	assert.Empty(t, h.Rooms())
}

func TestEvictionDoesNotStallOtherRooms(t *testing.T) {
	h := startHub(t)
	release := make(chan struct{})
	emptied := make(chan string, 1)
	h.SetHooks(Hooks{RoomEmptied: func(r string) {
		<-release
		emptied <- r
	}})
	defer close(release)

	slow := newTestClient(t, h, "slow", "room-x", 1)
	a := newTestClient(t, h, "a", "room-y", 8)
	b := newTestClient(t, h, "b", "room-y", 8)

	for i := 0; i < 3; i++ {
		require.NoError(t, h.Broadcast("room-x", []byte(fmt.Sprintf("x%d", i)), ""))
	}
	require.NoError(t, h.Broadcast("room-y", []byte("y0"), ""))

	// The room-x hook is still held, yet room-y is served.
	assert.Equal(t, "y0", recv(t, a))
	assert.Equal(t, "y0", recv(t, b))
	assert.Equal(t, "x0", recv(t, slow))

	release <- struct{}{}
	assert.Equal(t, "room-x", <-emptied)
}
