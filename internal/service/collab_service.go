package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/weiawesome/wes-io-live/collab-service/internal/assistant"
	"github.com/weiawesome/wes-io-live/collab-service/internal/audit"
	"github.com/weiawesome/wes-io-live/collab-service/internal/domain"
	"github.com/weiawesome/wes-io-live/collab-service/internal/hub"
	"github.com/weiawesome/wes-io-live/collab-service/internal/metrics"
	"github.com/weiawesome/wes-io-live/collab-service/internal/registry"
	"github.com/weiawesome/wes-io-live/collab-service/internal/supervisor"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/log"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/pubsub"
)

var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrMalformedFrame = errors.New("malformed frame")
	ErrNotJoined      = errors.New("connection has not joined a room")
)

const registryTimeout = 3 * time.Second

// Options wires a collabService. Completer may be nil, in which case AI
// triggers are ignored.
type Options struct {
	Hub           *hub.Hub
	Supervisor    *supervisor.Supervisor
	Registry      registry.Registry
	Publisher     pubsub.Publisher
	ChannelPrefix string
	NodeAddress   string
	Completer     assistant.Completer
	AITimeout     time.Duration
	TriggerMarker string
}

type collabService struct {
	hub           *hub.Hub
	sup           *supervisor.Supervisor
	registry      registry.Registry
	publisher     pubsub.Publisher
	channelPrefix string
	nodeAddress   string
	invoker       *assistant.Invoker
	marker        string

	roomsMu sync.Mutex
	rooms   map[string]*roomState

	stopHeartbeat context.CancelFunc
}

func NewCollabService(opts Options) CollabService {
	s := &collabService{
		hub:           opts.Hub,
		sup:           opts.Supervisor,
		registry:      opts.Registry,
		publisher:     opts.Publisher,
		channelPrefix: opts.ChannelPrefix,
		nodeAddress:   opts.NodeAddress,
		marker:        opts.TriggerMarker,
		rooms:         make(map[string]*roomState),
	}
	if s.registry == nil {
		s.registry = registry.Noop{}
	}
	if s.publisher == nil {
		s.publisher = pubsub.NoopPublisher{}
	}
	if s.channelPrefix == "" {
		s.channelPrefix = pubsub.DefaultChannelPrefix
	}
	if s.marker == "" {
		s.marker = assistant.DefaultMarker
	}
	if opts.Completer != nil {
		s.invoker = assistant.NewInvoker(opts.Completer, s.deliverAI, s.sup, opts.AITimeout)
	}

	s.hub.SetHooks(hub.Hooks{
		RoomOpened:  s.roomChanged,
		RoomEmptied: s.roomChanged,
	})
	return s
}

func (s *collabService) HandleConnect(ctx context.Context, c *hub.Client) error {
	cc, ok := c.Conn.Context()
	if !ok {
		return domain.ErrInvalidTransition
	}

	s.hub.Register(c)
	if _, err := s.hub.Join(c, cc.RoomID); err != nil {
		s.hub.Unregister(c)
		return fmt.Errorf("failed to join room: %w", err)
	}
	if err := c.Conn.MarkJoined(); err != nil {
		s.hub.Unregister(c)
		return err
	}

	audit.Log(ctx, audit.ActionConnect, cc.Principal.ID, c.ID, "connection established")
	audit.Log(ctx, audit.ActionJoinRoom, cc.Principal.ID, cc.RoomID, fmt.Sprintf("%s joined project %s", cc.Principal.Label(), cc.ProjectID))
	return nil
}

func (s *collabService) HandleMessage(ctx context.Context, c *hub.Client, data []byte) error {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return s.messageError(c, "", fmt.Errorf("%w: %w", ErrMalformedFrame, err))
	}

	switch env.Event {
	case domain.EventPing:
		frame, err := domain.EncodeEnvelope(domain.EventPong, nil)
		if err != nil {
			return s.messageError(c, env.Event, err)
		}
		s.hub.SendTo(c.ID, frame)
		return nil

	case domain.EventProjectMessage:
		if err := s.handleProjectMessage(ctx, c, env.Data); err != nil {
			return s.messageError(c, env.Event, err)
		}
		return nil

	default:
		return s.messageError(c, env.Event, ErrUnknownEvent)
	}
}

func (s *collabService) handleProjectMessage(ctx context.Context, c *hub.Client, data json.RawMessage) error {
	if c.Conn.State() != domain.StateJoined {
		return ErrNotJoined
	}
	cc, ok := c.Conn.Context()
	if !ok {
		return ErrNotJoined
	}

	var in domain.ProjectMessageIn
	if len(data) == 0 {
		return ErrMalformedFrame
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}

	msg := domain.Message{RoomID: cc.RoomID, Sender: cc.Principal.Sender(), Body: in.Message}
	frame, err := msg.Frame()
	if err != nil {
		return err
	}
	if err := s.hub.Broadcast(cc.RoomID, frame, c.ID); err != nil {
		return fmt.Errorf("failed to broadcast message: %w", err)
	}
	metrics.MessagesBroadcast.WithLabelValues(metrics.KindHuman).Inc()
	s.publish(ctx, pubsub.EventProjectMessage, msg)

	if s.invoker != nil && assistant.HasTrigger(in.Message, s.marker) {
		id, started := s.invoker.Invoke(ctx, cc.RoomID, c.ID, assistant.ExtractPrompt(in.Message, s.marker))
		if started {
			audit.Log(ctx, audit.ActionAIInvocation, cc.Principal.ID, cc.RoomID, "ai invocation "+id)
		}
	}
	return nil
}

// deliverAI broadcasts an assistant reply to every current member of the
// room, including the requester.
func (s *collabService) deliverAI(ctx context.Context, roomID, reply string) error {
	msg := domain.Message{RoomID: roomID, Sender: domain.AISender, Body: reply}
	frame, err := msg.Frame()
	if err != nil {
		return err
	}
	if err := s.hub.Broadcast(roomID, frame, ""); err != nil {
		return err
	}
	metrics.MessagesBroadcast.WithLabelValues(metrics.KindAI).Inc()
	s.publish(ctx, pubsub.EventAIMessage, msg)
	return nil
}

func (s *collabService) messageError(c *hub.Client, event string, err error) error {
	label := event
	if label == "" {
		label = "unknown"
	}
	metrics.MessageErrors.WithLabelValues(label).Inc()
	return &domain.MessageHandlingError{ConnectionID: c.ID, Event: event, Err: err}
}

func (s *collabService) HandleDisconnect(ctx context.Context, c *hub.Client) {
	// The hub may already have dropped a slow client, so the room comes from
	// the connection context rather than from hub membership.
	joined := c.Conn.State() == domain.StateJoined
	first := c.Conn.Close()
	s.hub.Unregister(c)
	if !first {
		return
	}

	var userID string
	if cc, ok := c.Conn.Context(); ok {
		userID = cc.Principal.ID
		if joined {
			audit.Log(ctx, audit.ActionLeaveRoom, userID, cc.RoomID, fmt.Sprintf("%s left project %s", cc.Principal.Label(), cc.ProjectID))
		}
	}
	audit.Log(ctx, audit.ActionDisconnect, userID, c.ID, "connection closed")
}

func (s *collabService) Presence(roomID string) int {
	return s.hub.RoomSize(roomID)
}

// roomChanged runs on whichever goroutine opened or emptied the room. The
// registry and event work is reconciled in the background against the
// room's membership at that time, so a late task cannot undo a newer one.
func (s *collabService) roomChanged(roomID string) {
	s.sup.Go(context.Background(), "room_lifecycle", func(ctx context.Context) error {
		s.reconcileRoom(ctx, roomID)
		return nil
	})
}

type roomState struct {
	mu         sync.Mutex
	registered bool
	refs       int // guarded by collabService.roomsMu
}

func (s *collabService) reconcileRoom(ctx context.Context, roomID string) {
	st := s.acquireRoom(roomID)
	defer s.releaseRoom(roomID, st)

	st.mu.Lock()
	defer st.mu.Unlock()

	l := log.Ctx(ctx)
	active := s.hub.RoomSize(roomID) > 0
	if active == st.registered {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, registryTimeout)
	defer cancel()

	if active {
		if err := s.registry.Register(ctx, roomID); err != nil {
			l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to register room")
		}
		st.registered = true
		s.publish(ctx, pubsub.EventRoomOpened, pubsub.RoomLifecyclePayload{RoomID: roomID, NodeAddr: s.nodeAddress})
		return
	}

	if s.invoker != nil {
		if n := s.invoker.CancelRoom(roomID); n > 0 {
			l.Info().Str(log.FieldRoomID, roomID).Int("canceled", n).Msg("canceled ai invocations for empty room")
		}
	}
	if err := s.registry.Deregister(ctx, roomID); err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to deregister room")
	}
	st.registered = false
	s.publish(ctx, pubsub.EventRoomClosed, pubsub.RoomLifecyclePayload{RoomID: roomID, NodeAddr: s.nodeAddress})
}

func (s *collabService) acquireRoom(roomID string) *roomState {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()

	st, ok := s.rooms[roomID]
	if !ok {
		st = &roomState{}
		s.rooms[roomID] = st
	}
	st.refs++
	return st
}

func (s *collabService) releaseRoom(roomID string, st *roomState) {
	s.roomsMu.Lock()
	defer s.roomsMu.Unlock()

	st.refs--
	if st.refs == 0 && !st.registered {
		delete(s.rooms, roomID)
	}
}

// publish emits a room event in the background. Publishing never delays
// delivery to connected clients.
func (s *collabService) publish(ctx context.Context, eventType string, payload interface{}) {
	roomID := ""
	switch p := payload.(type) {
	case domain.Message:
		roomID = p.RoomID
		payload = pubsub.MessagePayload{RoomID: p.RoomID, SenderID: p.Sender.ID, SenderLabel: p.Sender.Label, Message: p.Body}
	case pubsub.RoomLifecyclePayload:
		roomID = p.RoomID
	}

	event, err := pubsub.NewEvent(eventType, roomID, payload)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldEvent, eventType).Msg("failed to encode room event")
		return
	}

	channel := pubsub.RoomEventsChannel(s.channelPrefix, roomID)
	taskCtx := log.WithLogger(context.Background(), log.Ctx(ctx))
	s.sup.Go(taskCtx, "publish_event", func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, registryTimeout)
		defer cancel()
		if err := s.publisher.Publish(ctx, channel, event); err != nil {
			metrics.EventsPublishFailures.Inc()
			return fmt.Errorf("failed to publish %s: %w", eventType, err)
		}
		return nil
	})
}

func (s *collabService) Start(ctx context.Context) error {
	hbCtx, cancel := context.WithCancel(ctx)
	s.stopHeartbeat = cancel
	if !s.sup.Go(hbCtx, "registry_heartbeat", s.registry.Run) {
		cancel()
		return errors.New("supervisor is shutting down")
	}

	l := log.Ctx(ctx)
	l.Info().Bool("ai_enabled", s.invoker != nil).Str("trigger_marker", s.marker).Msg("collab service started")
	return nil
}

// Stop cancels outstanding AI calls, closes every connection and waits for
// background tasks before releasing the registry and publisher.
func (s *collabService) Stop(ctx context.Context) error {
	l := log.Ctx(ctx)

	if s.invoker != nil {
		s.invoker.Shutdown()
	}
	if s.stopHeartbeat != nil {
		s.stopHeartbeat()
	}
	s.hub.Stop()

	var errs []error
	if err := s.sup.Wait(ctx); err != nil {
		l.Warn().Err(err).Msg("background tasks did not finish before shutdown deadline")
		errs = append(errs, err)
	}
	if err := s.registry.DeregisterAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to deregister rooms: %w", err))
	}
	if err := s.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close publisher: %w", err))
	}

	l.Info().Msg("collab service stopped")
	return errors.Join(errs...)
}
