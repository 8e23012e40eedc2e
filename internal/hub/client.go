package hub

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-live/collab-service/internal/config"
	"github.com/weiawesome/wes-io-live/collab-service/internal/domain"
	"github.com/weiawesome/wes-io-live/collab-service/internal/supervisor"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/log"
)

// MessageHandler processes one inbound frame. A returned error is logged and
// the connection stays open.
type MessageHandler func(ctx context.Context, c *Client, data []byte) error

type Client struct {
	ID   string
	Conn *domain.Connection

	ws     *websocket.Conn
	send    chan []byte
	closed  bool // guarded by Hub.mu
	evicted atomic.Bool
	config  config.WebSocketConfig
}

// NewClient wraps an upgraded WebSocket. The client id is the connection id.
func NewClient(conn *domain.Connection, ws *websocket.Conn, cfg config.WebSocketConfig) *Client {
	size := cfg.SendBuffer
	if size <= 0 {
		size = 256
	}
	return &Client{
		ID:     conn.ID,
		Conn:   conn,
		ws:     ws,
		send:   make(chan []byte, size),
		config: cfg,
	}
}

// ReadPump reads frames until the peer goes away or the connection breaks.
// Each frame is handled behind a recover boundary. The returned error is nil
// for a normal close.
func (c *Client) ReadPump(ctx context.Context, handler MessageHandler) error {
	defer c.ws.Close()
	l := log.Ctx(ctx)

	c.ws.SetReadLimit(c.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.ws.SetPongHandler(func(string) error {
		c.Conn.Touch()
		c.ws.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				l.Warn().Err(err).Msg("websocket protocol error")
				return err
			}
			l.Debug().Err(err).Msg("websocket closed")
			return nil
		}

		c.Conn.Touch()

		err = supervisor.Safely("handle_message", func() error {
			return handler(ctx, c, message)
		})
		if err != nil {
			var sf *domain.SupervisionFailure
			if errors.As(err, &sf) {
				supervisor.Report(ctx, sf.Task, sf)
				continue
			}
			l.Warn().Err(err).Msg("failed to handle message")
		}
	}
}

// WritePump drains the send channel onto the socket and keeps the connection
// alive with pings. It exits when the hub closes the send channel or a write
// fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}

			w, err := c.ws.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
