package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/quangtran/chatchit-server/internal/core"
	"github.com/quangtran/chatchit-server/internal/store"
)

// ReadHandlers provides HTTP handlers for read-state endpoints.
type ReadHandlers struct {
	tracker *core.ReadTracker
	log     *zerolog.Logger
}

// NewReadHandlers creates a new read-state handlers instance.
func NewReadHandlers(tracker *core.ReadTracker, logger *zerolog.Logger) *ReadHandlers {
	return &ReadHandlers{tracker: tracker, log: logger}
}

// MarkReadRequest represents the mark-read request body. A missing At uses
// the current server time.
type MarkReadRequest struct {
	Room string           `json:"room" binding:"required"`
	At   *store.Timestamp `json:"at,omitempty"`
}

// MarkReadResponse echoes the effective read position after the update.
type MarkReadResponse struct {
	Room       string          `json:"room"`
	LastReadAt store.Timestamp `json:"last_read_at"`
}

// RoomUnreadResponse represents per-room unread info in the summary.
type RoomUnreadResponse struct {
	Room       string           `json:"room"`
	Unread     int              `json:"unread"`
	LastReadAt *store.Timestamp `json:"last_read_at,omitempty"`
}

// ReadStateResponse represents one user's read position in a room.
type ReadStateResponse struct {
	User       string          `json:"user"`
	LastReadAt store.Timestamp `json:"last_read_at"`
}

// MarkRead advances the caller's read position in a room.
// PUT /api/read
func (h *ReadHandlers) MarkRead(c *gin.Context) {
	uid, ok := authedUser(c, h.log)
	if !ok {
		return
	}

	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid mark read request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	at := store.Now()
	if req.At != nil {
		at = *req.At
	}

	effective, err := h.tracker.MarkRead(c.Request.Context(), uid, req.Room, at)
	if err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		if core.IsValidation(err) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		h.log.Error().Err(err).Str("room", req.Room).Msg("failed to mark read")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, MarkReadResponse{Room: req.Room, LastReadAt: effective})
}

// UnreadSummary returns unread counts for every room, keyed by room id.
// GET /api/unread
func (h *ReadHandlers) UnreadSummary(c *gin.Context) {
	uid, ok := authedUser(c, h.log)
	if !ok {
		return
	}

	summary, err := h.tracker.UnreadSummary(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Str("user", uid).Msg("failed to build unread summary")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make(map[string]RoomUnreadResponse, len(summary))
	for roomID, ru := range summary {
		response[roomID] = RoomUnreadResponse{
			Room:       roomID,
			Unread:     ru.Unread,
			LastReadAt: ru.LastReadAt,
		}
	}

	c.JSON(http.StatusOK, response)
}

// RoomReadStates returns every recorded read position in a room.
// GET /api/rooms/:id/read-states
func (h *ReadHandlers) RoomReadStates(c *gin.Context) {
	if _, ok := authedUser(c, h.log); !ok {
		return
	}

	roomID := c.Param("id")
	states, err := h.tracker.RoomReadStates(c.Request.Context(), roomID)
	if err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		h.log.Error().Err(err).Str("room", roomID).Msg("failed to list read states")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]ReadStateResponse, 0, len(states))
	for _, st := range states {
		response = append(response, ReadStateResponse{
			User:       st.UserID,
			LastReadAt: st.LastReadAt,
		})
	}

	c.JSON(http.StatusOK, response)
}
