package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/collab-service/internal/audit"
	"github.com/weiawesome/wes-io-live/collab-service/internal/config"
	"github.com/weiawesome/wes-io-live/collab-service/internal/domain"
	"github.com/weiawesome/wes-io-live/collab-service/internal/hub"
	"github.com/weiawesome/wes-io-live/collab-service/internal/registry"
	"github.com/weiawesome/wes-io-live/collab-service/internal/supervisor"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/log"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/pubsub"
)

type recordingRegistry struct {
	registry.Noop
	mu           sync.Mutex
	registered   []string
	deregistered []string
	entered      chan struct{}
	held         chan struct{} // when set, Deregister waits for it
}

func (r *recordingRegistry) Register(_ context.Context, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = append(r.registered, roomID)
	return nil
}

func (r *recordingRegistry) Deregister(_ context.Context, roomID string) error {
	if r.held != nil {
		r.entered <- struct{}{}
		<-r.held
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deregistered = append(r.deregistered, roomID)
	return nil
}

func (r *recordingRegistry) snapshot() ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.registered...), append([]string(nil), r.deregistered...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events map[string][]string // channel -> event types
	closed bool
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, event *pubsub.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.events == nil {
		p.events = make(map[string][]string)
	}
	p.events[channel] = append(p.events[channel], event.Type)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) types(channel string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events[channel]...)
}

type fixture struct {
	svc CollabService
	hub *hub.Hub
	reg *recordingRegistry
	pub *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	h := hub.NewHub(16)
	go h.Run()

	reg := &recordingRegistry{}
	pub := &recordingPublisher{}
	svc := NewCollabService(Options{
		Hub:        h,
		Supervisor: supervisor.New(),
		Registry:   reg,
		Publisher:  pub,
	})
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, svc.Stop(ctx))
	})
	return &fixture{svc: svc, hub: h, reg: reg, pub: pub}
}

func newClient(t *testing.T, id, userID, projectID string) *hub.Client {
	t.Helper()
	conn := domain.NewConnection(id)
	require.NoError(t, conn.Authenticate(domain.NewConnContext(domain.Principal{ID: userID}, projectID)))
	return hub.NewClient(conn, nil, config.WebSocketConfig{SendBuffer: 8})
}

func TestConnectJoinsProjectRoom(t *testing.T) {
	f := newFixture(t)
	c := newClient(t, "c1", "u1", "proj-42")

	require.NoError(t, f.svc.HandleConnect(context.Background(), c))

	assert.Equal(t, domain.StateJoined, c.Conn.State())
	assert.Equal(t, 1, f.svc.Presence("proj-42"))
	roomID, ok := f.hub.RoomOf("c1")
	require.True(t, ok)
	assert.Equal(t, "proj-42", roomID)
}

func TestConnectRequiresAuthentication(t *testing.T) {
	f := newFixture(t)
	c := hub.NewClient(domain.NewConnection("c1"), nil, config.WebSocketConfig{SendBuffer: 8})

	err := f.svc.HandleConnect(context.Background(), c)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, 0, f.hub.ClientCount())
}

func (r *recordingRegistry) counts() (int, int) {
	registered, deregistered := r.snapshot()
	return len(registered), len(deregistered)
}

func TestRoomLifecycleDrivesRegistryAndEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	channel := pubsub.RoomEventsChannel(pubsub.DefaultChannelPrefix, "proj-42")

	c1 := newClient(t, "c1", "u1", "proj-42")
	c2 := newClient(t, "c2", "u2", "proj-42")
	require.NoError(t, f.svc.HandleConnect(ctx, c1))
	require.NoError(t, f.svc.HandleConnect(ctx, c2))

	require.Eventually(t, func() bool { r, _ := f.reg.counts(); return r == 1 }, time.Second, 5*time.Millisecond)

	f.svc.HandleDisconnect(ctx, c1)
	f.svc.HandleDisconnect(ctx, c2)
	assert.Equal(t, 0, f.svc.Presence("proj-42"))

	require.Eventually(t, func() bool { _, d := f.reg.counts(); return d == 1 }, time.Second, 5*time.Millisecond)
	registered, deregistered := f.reg.snapshot()
	assert.Equal(t, []string{"proj-42"}, registered, "only the first join opens the room")
	assert.Equal(t, []string{"proj-42"}, deregistered)

	require.Eventually(t, func() bool { return len(f.pub.types(channel)) == 2 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{pubsub.EventRoomOpened, pubsub.EventRoomClosed}, f.pub.types(channel))
}

func TestSlowDeregisterDoesNotBlockOrUndoReopen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.reg.entered = make(chan struct{}, 1)
	f.reg.held = make(chan struct{})

	c1 := newClient(t, "c1", "u1", "proj-42")
	require.NoError(t, f.svc.HandleConnect(ctx, c1))
	require.Eventually(t, func() bool { r, _ := f.reg.counts(); return r == 1 }, time.Second, 5*time.Millisecond)

	disconnected := make(chan struct{})
	go func() {
		f.svc.HandleDisconnect(ctx, c1)
		close(disconnected)
	}()
	waitFor(t, disconnected, "disconnect waited on the registry")
	waitFor(t, f.reg.entered, "room was never deregistered")

	// The deregistration is still held, and the next join does not wait
	// for it.
	c2 := newClient(t, "c2", "u2", "proj-42")
	joined := make(chan struct{})
	go func() {
		assert.NoError(t, f.svc.HandleConnect(ctx, c2))
		close(joined)
	}()
	waitFor(t, joined, "join waited on the registry")

	close(f.reg.held)

	// The room is live again, so it ends up registered once more.
	require.Eventually(t, func() bool { r, _ := f.reg.counts(); return r == 2 }, time.Second, 5*time.Millisecond)
	registered, deregistered := f.reg.snapshot()
	assert.Len(t, deregistered, 1)
	assert.Len(t, registered, 2)
	assert.Equal(t, 1, f.svc.Presence("proj-42"))
}

func waitFor(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal(msg)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := newClient(t, "c1", "u1", "proj-42")
	require.NoError(t, f.svc.HandleConnect(ctx, c))
	require.Eventually(t, func() bool { r, _ := f.reg.counts(); return r == 1 }, time.Second, 5*time.Millisecond)

	f.svc.HandleDisconnect(ctx, c)
	f.svc.HandleDisconnect(ctx, c)

	assert.Equal(t, domain.StateClosed, c.Conn.State())
	assert.Equal(t, 0, f.hub.ClientCount())
	require.Eventually(t, func() bool { _, d := f.reg.counts(); return d == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	_, deregistered := f.reg.snapshot()
	assert.Len(t, deregistered, 1)
}

func TestDisconnectAfterEvictionAuditsLeave(t *testing.T) {
	f := newFixture(t)
	c := newClient(t, "c1", "u1", "proj-42")
	require.NoError(t, f.svc.HandleConnect(context.Background(), c))

	// The hub drops a slow client before its read pump notices.
	f.hub.Unregister(c)

	var buf bytes.Buffer
	ctx := log.WithLogger(context.Background(), log.New(log.Config{Level: "info", Output: &buf}))
	f.svc.HandleDisconnect(ctx, c)

	out := buf.String()
	assert.Contains(t, out, `"action":"`+audit.ActionLeaveRoom+`"`)
	assert.Contains(t, out, `"target_id":"proj-42"`)
	assert.Contains(t, out, `"action":"`+audit.ActionDisconnect+`"`)
}

func TestHandleMessageErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	joined := newClient(t, "c1", "u1", "proj-42")
	require.NoError(t, f.svc.HandleConnect(ctx, joined))
	pending := newClient(t, "c2", "u2", "proj-42")

	tests := []struct {
		name   string
		client *hub.Client
		frame  string
		want   error
	}{
		{"not json", joined, `{"event":`, ErrMalformedFrame},
		{"unknown event", joined, `{"event":"draw-shape","data":{}}`, ErrUnknownEvent},
		{"missing data", joined, `{"event":"project-message"}`, ErrMalformedFrame},
		{"wrong data type", joined, `{"event":"project-message","data":{"message":42}}`, ErrMalformedFrame},
		{"not joined", pending, `{"event":"project-message","data":{"message":"hi"}}`, ErrNotJoined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.HandleMessage(ctx, tt.client, []byte(tt.frame))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var mhe *domain.MessageHandlingError
			require.True(t, errors.As(err, &mhe))
			assert.Equal(t, tt.client.ID, mhe.ConnectionID)
		})
	}

	assert.Equal(t, domain.StateJoined, joined.Conn.State(), "errors never close the connection")
}

func TestProjectMessagePublishesEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	channel := pubsub.RoomEventsChannel(pubsub.DefaultChannelPrefix, "proj-42")

	c := newClient(t, "c1", "u1", "proj-42")
	require.NoError(t, f.svc.HandleConnect(ctx, c))
	require.NoError(t, f.svc.HandleMessage(ctx, c, []byte(`{"event":"project-message","data":{"message":"@ai hi"}}`)))

	require.Eventually(t, func() bool { return len(f.pub.types(channel)) == 2 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{pubsub.EventRoomOpened, pubsub.EventProjectMessage}, f.pub.types(channel))
}

func TestStopClosesPublisher(t *testing.T) {
	h := hub.NewHub(4)
	go h.Run()
	pub := &recordingPublisher{}
	svc := NewCollabService(Options{Hub: h, Supervisor: supervisor.New(), Publisher: pub})
	require.NoError(t, svc.Start(context.Background()))

	require.NoError(t, svc.Stop(context.Background()))
	assert.True(t, pub.closed)
}
