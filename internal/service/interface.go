package service

import (
	"context"

	"github.com/weiawesome/wes-io-live/collab-service/internal/hub"
)

// CollabService drives authenticated connections through their project room.
type CollabService interface {
	// HandleConnect registers an authenticated client and joins it to its
	// project room.
	HandleConnect(ctx context.Context, client *hub.Client) error
	// HandleMessage processes one inbound frame. It is a hub.MessageHandler.
	HandleMessage(ctx context.Context, client *hub.Client, data []byte) error
	// HandleDisconnect closes the connection and releases its membership.
	HandleDisconnect(ctx context.Context, client *hub.Client)
	// Presence returns the number of connections in a room.
	Presence(roomID string) int
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
