package assistant

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/weiawesome/wes-io-live/collab-service/internal/domain"
	"github.com/weiawesome/wes-io-live/collab-service/internal/metrics"
	"github.com/weiawesome/wes-io-live/collab-service/internal/supervisor"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/log"
)

const taskName = "ai_invocation"

// Completer produces a reply for a prompt. internal/llm clients satisfy it.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Deliverer hands a finished reply to the room.
type Deliverer func(ctx context.Context, roomID, reply string) error

type invocation struct {
	id     string
	roomID string
	connID string
	cancel context.CancelFunc
}

// Invoker runs AI completions in the background and delivers the replies to
// the room that asked. A failed completion is logged and dropped; it never
// affects the requesting connection or the room.
type Invoker struct {
	completer Completer
	deliver   Deliverer
	sup       *supervisor.Supervisor
	timeout   time.Duration

	base     context.Context
	stop     context.CancelFunc
	mu       sync.Mutex
	inflight map[string]*invocation
	byRoom   map[string]map[string]struct{}
}

// NewInvoker creates an Invoker. timeout bounds each completion.
func NewInvoker(completer Completer, deliver Deliverer, sup *supervisor.Supervisor, timeout time.Duration) *Invoker {
	base, stop := context.WithCancel(context.Background())
	return &Invoker{
		completer: completer,
		deliver:   deliver,
		sup:       sup,
		timeout:   timeout,
		base:      base,
		stop:      stop,
		inflight:  make(map[string]*invocation),
		byRoom:    make(map[string]map[string]struct{}),
	}
}

// Invoke starts a completion for prompt and returns its invocation id
// without waiting for it. Empty prompts are skipped. ctx only supplies the
// logger; the completion outlives the requesting connection.
func (i *Invoker) Invoke(ctx context.Context, roomID, connID, prompt string) (string, bool) {
	l := log.Ctx(ctx)

	if prompt == "" {
		metrics.AIInvocations.WithLabelValues(metrics.AIResultSkipped).Inc()
		l.Info().Str(log.FieldRoomID, roomID).Msg("ai trigger without prompt, skipping")
		return "", false
	}

	id := ulid.Make().String()
	il := l.With().Str(log.FieldInvocationID, id).Str(log.FieldRoomID, roomID).Logger()

	var invCtx context.Context
	var cancel context.CancelFunc
	if i.timeout > 0 {
		invCtx, cancel = context.WithTimeout(i.base, i.timeout)
	} else {
		invCtx, cancel = context.WithCancel(i.base)
	}
	invCtx = log.WithLogger(invCtx, il)

	inv := &invocation{id: id, roomID: roomID, connID: connID, cancel: cancel}
	i.track(inv)

	started := i.sup.Go(invCtx, taskName, func(ctx context.Context) error {
		defer i.untrack(inv)
		return i.run(ctx, inv, prompt)
	})
	if !started {
		i.untrack(inv)
		metrics.AIInvocations.WithLabelValues(metrics.AIResultCanceled).Inc()
		il.Warn().Msg("gateway shutting down, ai invocation not started")
		return "", false
	}

	il.Debug().Str(log.FieldConnectionID, connID).Msg("ai invocation started")
	return id, true
}

func (i *Invoker) run(ctx context.Context, inv *invocation, prompt string) error {
	l := log.Ctx(ctx)
	start := time.Now()

	reply, err := i.completer.Complete(ctx, prompt)
	metrics.AILatency.Observe(time.Since(start).Seconds())

	if err != nil {
		switch {
		case errors.Is(ctx.Err(), context.Canceled):
			metrics.AIInvocations.WithLabelValues(metrics.AIResultCanceled).Inc()
			l.Debug().Msg("ai invocation canceled")
			return nil
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			metrics.AIInvocations.WithLabelValues(metrics.AIResultTimeout).Inc()
		default:
			metrics.AIInvocations.WithLabelValues(metrics.AIResultError).Inc()
		}
		return &domain.AIInvocationError{InvocationID: inv.id, RoomID: inv.roomID, Err: err}
	}

	// A reply that arrives after the room emptied reaches no one.
	if err := i.deliver(ctx, inv.roomID, reply); err != nil {
		metrics.AIInvocations.WithLabelValues(metrics.AIResultError).Inc()
		return &domain.AIInvocationError{InvocationID: inv.id, RoomID: inv.roomID, Err: err}
	}

	metrics.AIInvocations.WithLabelValues(metrics.AIResultSuccess).Inc()
	l.Info().Dur("latency", time.Since(start)).Msg("ai reply delivered")
	return nil
}

func (i *Invoker) track(inv *invocation) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.inflight[inv.id] = inv
	room, ok := i.byRoom[inv.roomID]
	if !ok {
		room = make(map[string]struct{})
		i.byRoom[inv.roomID] = room
	}
	room[inv.id] = struct{}{}
	metrics.AIInFlight.Inc()
}

func (i *Invoker) untrack(inv *invocation) {
	inv.cancel()

	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.inflight[inv.id]; !ok {
		return
	}
	delete(i.inflight, inv.id)
	if room, ok := i.byRoom[inv.roomID]; ok {
		delete(room, inv.id)
		if len(room) == 0 {
			delete(i.byRoom, inv.roomID)
		}
	}
	metrics.AIInFlight.Dec()
}

// CancelRoom cancels every outstanding invocation for roomID and returns how
// many were canceled.
func (i *Invoker) CancelRoom(roomID string) int {
	i.mu.Lock()
	var cancels []context.CancelFunc
	for id := range i.byRoom[roomID] {
		cancels = append(cancels, i.inflight[id].cancel)
	}
	i.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	return len(cancels)
}

// InFlight returns the number of running invocations.
func (i *Invoker) InFlight() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.inflight)
}

// Shutdown cancels every outstanding invocation.
func (i *Invoker) Shutdown() {
	i.stop()
}
