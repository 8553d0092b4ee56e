package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/quangtran/chatchit-server/internal/auth"
	"github.com/quangtran/chatchit-server/internal/config"
	"github.com/quangtran/chatchit-server/internal/core"
	"github.com/quangtran/chatchit-server/internal/store"
)

// Deps bundles the collaborators the HTTP layer exposes.
type Deps struct {
	Store    store.Store
	Log      *core.MessageLog
	Tracker  *core.ReadTracker
	Registry *core.Registry
	JWT      *auth.JWTConfig
	Logger   *zerolog.Logger
}

// NewServer builds the HTTP server with REST and WebSocket routes.
func NewServer(deps Deps, cfg config.Config) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(deps.Logger))

	router.GET("/health", healthHandler)
	router.GET("/ws", NewWSHandler(deps.Registry, deps.Tracker, deps.JWT, deps.Logger).Handle)

	rooms := NewRoomHandlers(deps.Store, deps.Registry, deps.Logger)
	messages := NewMessageHandlers(deps.Log, deps.Logger)
	reads := NewReadHandlers(deps.Tracker, deps.Logger)

	api := router.Group("/api")
	api.Use(AuthMiddleware(deps.JWT, deps.Logger))
	{
		api.GET("/rooms", rooms.ListRooms)
		api.GET("/rooms/:id/members", rooms.RoomMembers)
		api.GET("/rooms/:id/messages", messages.History)
		api.POST("/messages", messages.Append)
		api.GET("/unread", reads.UnreadSummary)
		api.PUT("/read", reads.MarkRead)
		api.GET("/rooms/:id/read-states", reads.RoomReadStates)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
