package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-live/collab-service/internal/audit"
	"github.com/weiawesome/wes-io-live/collab-service/internal/auth"
	"github.com/weiawesome/wes-io-live/collab-service/internal/config"
	"github.com/weiawesome/wes-io-live/collab-service/internal/domain"
	"github.com/weiawesome/wes-io-live/collab-service/internal/hub"
	"github.com/weiawesome/wes-io-live/collab-service/internal/metrics"
	"github.com/weiawesome/wes-io-live/collab-service/internal/service"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/log"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/response"
)

const CodeStoreUnavailable = "STORE_UNAVAILABLE"

type WSHandler struct {
	auth     *auth.Authenticator
	service  service.CollabService
	wsCfg    config.WebSocketConfig
	upgrader websocket.Upgrader
}

func NewWSHandler(authenticator *auth.Authenticator, svc service.CollabService, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		auth:    authenticator,
		service: svc,
		wsCfg:   wsCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: wsCfg.HandshakeTimeout,
			CheckOrigin:      originChecker(wsCfg.AllowedOrigins),
		},
	}
}

// originChecker accepts requests without an Origin header (non-browser
// clients) and browser requests from an allowed origin.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// HandleWebSocket authenticates the handshake and only then upgrades. The
// handler returns when the connection is gone.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	ctx := c.Request.Context()
	hs := auth.HandshakeFromRequest(c.Request)

	cc, err := h.auth.Authenticate(ctx, hs)
	if err != nil {
		h.reject(c, hs, err)
		return
	}

	conn := domain.NewConnection(uuid.New().String())
	if err := conn.Authenticate(cc); err != nil {
		response.InternalError(c, "failed to establish connection")
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the error response.
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldProjectID, cc.ProjectID).Msg("websocket upgrade failed")
		return
	}

	// The connection outlives the upgrade request.
	connCtx := log.WithConnection(context.WithoutCancel(ctx), conn.ID, cc.ProjectID, cc.Principal.ID)
	l := log.Ctx(connCtx)

	client := hub.NewClient(conn, ws, h.wsCfg)
	if err := h.service.HandleConnect(connCtx, client); err != nil {
		l.Error().Err(err).Msg("failed to join project room")
		ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, ""))
		ws.Close()
		return
	}
	l.Info().Str(log.FieldUsername, cc.Principal.Label()).Msg("user connected")

	go client.WritePump()
	if err := client.ReadPump(connCtx, h.service.HandleMessage); err != nil {
		l.Warn().Err(err).Msg("connection closed by protocol error")
	}

	h.service.HandleDisconnect(connCtx, client)
	l.Info().Str(log.FieldUsername, cc.Principal.Label()).Msg("user disconnected")
}

func (h *WSHandler) reject(c *gin.Context, hs auth.Handshake, err error) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	if reason, ok := domain.AuthReasonOf(err); ok {
		metrics.AuthRejections.WithLabelValues(string(reason)).Inc()
		audit.LogWithDetail(ctx, audit.ActionAuthFailed, "", hs.ProjectID, reason.Code(), "connection rejected")
		response.Error(c, StatusForReason(reason), reason.Code(), reason.Message())
		return
	}

	if errors.Is(err, domain.ErrStoreUnavailable) {
		metrics.AuthRejections.WithLabelValues(CodeStoreUnavailable).Inc()
		l.Error().Err(err).Str(log.FieldProjectID, hs.ProjectID).Msg("project store unavailable during handshake")
		response.ServiceUnavailable(c, CodeStoreUnavailable, "project store unavailable")
		return
	}

	l.Error().Err(err).Str(log.FieldProjectID, hs.ProjectID).Msg("handshake failed")
	response.InternalError(c, "internal server error")
}

// StatusForReason maps a rejection reason to its HTTP status.
func StatusForReason(reason domain.AuthReason) int {
	switch reason {
	case domain.ReasonInvalidProjectID:
		return http.StatusBadRequest
	case domain.ReasonProjectNotFound:
		return http.StatusNotFound
	default:
		return http.StatusUnauthorized
	}
}
