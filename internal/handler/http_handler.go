package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-io-live/collab-service/internal/metrics"
	"github.com/weiawesome/wes-io-live/collab-service/internal/service"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/log"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/middleware"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/response"
)

// PresenceResponse is the body of the presence endpoint.
type PresenceResponse struct {
	ProjectID   string `json:"project_id"`
	Connections int    `json:"connections"`
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Logger         zerolog.Logger
	WS             *WSHandler
	Service        service.CollabService
	Validator      middleware.TokenValidator
	AllowedOrigins []string
}

// NewRouter builds the HTTP surface: the WebSocket endpoint, health, metrics
// and the presence API, behind CORS.
func NewRouter(opts RouterOptions) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(log.GinMiddleware(opts.Logger, "/health", "/metrics"))
	r.Use(metrics.GinMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", opts.WS.HandleWebSocket)

	api := r.Group("/api/v1")
	api.Use(middleware.RequireAuth(opts.Validator))
	api.GET("/projects/:id/presence", presenceHandler(opts.Service))

	return cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})(r)
}

func presenceHandler(svc service.CollabService) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.Param("id")
		if projectID == "" {
			response.BadRequest(c, "project id required")
			return
		}
		response.Success(c, PresenceResponse{
			ProjectID:   projectID,
			Connections: svc.Presence(projectID),
		})
	}
}
