package domain

import (
	"errors"
	"sync/atomic"
	"time"
)

// ConnState is the lifecycle state of a gateway connection.
type ConnState int32

const (
	StatePending ConnState = iota
	StateAuthenticated
	StateJoined
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAuthenticated:
		return "authenticated"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrInvalidTransition is returned when a state change would skip a step or
// move backwards.
var ErrInvalidTransition = errors.New("invalid connection state transition")

// Principal is the identity proven by a verified credential.
type Principal struct {
	ID       string   `json:"id"`
	Email    string   `json:"email,omitempty"`
	Username string   `json:"username,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// Label is the display name used as the sender label: username, then email,
// then id.
func (p Principal) Label() string {
	switch {
	case p.Username != "":
		return p.Username
	case p.Email != "":
		return p.Email
	default:
		return p.ID
	}
}

// Sender returns the wire descriptor for messages sent by p.
func (p Principal) Sender() Sender {
	return Sender{ID: p.ID, Label: p.Label()}
}

// ConnContext is produced once a connection is authenticated and is never
// modified afterwards. The room id is always the project id.
type ConnContext struct {
	Principal Principal
	ProjectID string
	RoomID    string
}

// NewConnContext binds a principal to the room of projectID.
func NewConnContext(p Principal, projectID string) ConnContext {
	return ConnContext{
		Principal: p,
		ProjectID: projectID,
		RoomID:    projectID,
	}
}

// Connection tracks one client connection through
// Pending -> Authenticated -> Joined -> Closed. Closed is reachable from any
// state and is terminal.
type Connection struct {
	ID        string
	CreatedAt time.Time

	state    atomic.Int32
	cc       atomic.Pointer[ConnContext]
	lastSeen atomic.Int64
}

// NewConnection creates a connection in the Pending state.
func NewConnection(id string) *Connection {
	now := time.Now()
	c := &Connection{ID: id, CreatedAt: now}
	c.lastSeen.Store(now.UnixNano())
	return c
}

// State returns the current lifecycle state.
func (c *Connection) State() ConnState {
	return ConnState(c.state.Load())
}

// Authenticate attaches the connection context and moves Pending to
// Authenticated. It succeeds at most once.
func (c *Connection) Authenticate(cc ConnContext) error {
	if !c.state.CompareAndSwap(int32(StatePending), int32(StateAuthenticated)) {
		return ErrInvalidTransition
	}
	c.cc.Store(&cc)
	return nil
}

// MarkJoined moves Authenticated to Joined.
func (c *Connection) MarkJoined() error {
	if !c.state.CompareAndSwap(int32(StateAuthenticated), int32(StateJoined)) {
		return ErrInvalidTransition
	}
	return nil
}

// Close moves the connection to Closed and reports whether this call did it.
func (c *Connection) Close() bool {
	return ConnState(c.state.Swap(int32(StateClosed))) != StateClosed
}

// Context returns the connection context once the connection is
// authenticated.
func (c *Connection) Context() (ConnContext, bool) {
	cc := c.cc.Load()
	if cc == nil {
		return ConnContext{}, false
	}
	return *cc, true
}

// Touch records inbound activity.
func (c *Connection) Touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

// LastSeen returns the time of the last inbound frame.
func (c *Connection) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}
