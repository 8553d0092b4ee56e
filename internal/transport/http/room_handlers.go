package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/quangtran/chatchit-server/internal/core"
	"github.com/quangtran/chatchit-server/internal/store"
)

// RoomHandlers provides HTTP handlers for room endpoints.
type RoomHandlers struct {
	store    store.Store
	registry *core.Registry
	log      *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(st store.Store, registry *core.Registry, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{store: st, registry: registry, log: logger}
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	IsPrivate bool            `json:"is_private"`
	CreatedAt store.Timestamp `json:"created_at"`
}

// RoomMembersResponse carries the member count and live presence of a room.
type RoomMembersResponse struct {
	Room    string `json:"room"`
	Members int    `json:"members"`
	Online  int    `json:"online"`
}

// ListRooms handles listing all rooms.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	if _, ok := authedUser(c, h.log); !ok {
		return
	}

	rooms, err := h.store.ListRooms(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list rooms")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		response = append(response, RoomResponse{
			ID:        room.ID,
			Name:      room.Name,
			IsPrivate: room.IsPrivate,
			CreatedAt: room.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, response)
}

// RoomMembers reports the member count and online connections of a room.
// GET /api/rooms/:id/members
func (h *RoomHandlers) RoomMembers(c *gin.Context) {
	if _, ok := authedUser(c, h.log); !ok {
		return
	}

	roomID := c.Param("id")
	if _, err := h.store.GetRoom(c.Request.Context(), roomID); err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		h.log.Error().Err(err).Str("room", roomID).Msg("failed to load room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	members, err := h.store.CountMembers(c.Request.Context(), roomID)
	if err != nil {
		h.log.Error().Err(err).Str("room", roomID).Msg("failed to count members")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, RoomMembersResponse{
		Room:    roomID,
		Members: members,
		Online:  h.registry.Presence(roomID),
	})
}
