package registry

import (
	"context"
	"errors"
)

var ErrRoomNotRegistered = errors.New("room not registered")

// Registry records which gateway node currently serves a room, so that a
// future router can send a project's connections to the node that already
// holds its room.
type Registry interface {
	Register(ctx context.Context, roomID string) error
	Deregister(ctx context.Context, roomID string) error
	Lookup(ctx context.Context, roomID string) (string, error)
	// Run refreshes the TTL of registered rooms until ctx is done.
	Run(ctx context.Context) error
	// DeregisterAll removes every room this node registered.
	DeregisterAll(ctx context.Context) error
}

// Noop is used when Redis is disabled.
type Noop struct{}

func (Noop) Register(context.Context, string) error   { return nil }
func (Noop) Deregister(context.Context, string) error { return nil }
func (Noop) Lookup(context.Context, string) (string, error) {
	return "", ErrRoomNotRegistered
}
func (Noop) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}
func (Noop) DeregisterAll(context.Context) error { return nil }
