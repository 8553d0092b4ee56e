package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/quangtran/chatchit-server/internal/core"
	"github.com/quangtran/chatchit-server/internal/store"
)

// historyPageSize is the fixed number of messages returned per history page.
const historyPageSize = 50

// MessageHandlers provides HTTP handlers for message endpoints.
type MessageHandlers struct {
	log    *core.MessageLog
	logger *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(log *core.MessageLog, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{log: log, logger: logger}
}

// AppendRequest represents the append message request body.
type AppendRequest struct {
	Room          string             `json:"room" binding:"required"`
	Text          string             `json:"text"`
	Attachment    *store.Attachment  `json:"attachment,omitempty"`
	Attachments   []store.Attachment `json:"attachments,omitempty"`
	CorrelationID string             `json:"correlation_id,omitempty"`
}

// AppendResponse wraps the stored message echoed back to the sender along
// with the number of rows the append wrote.
type AppendResponse struct {
	InsertedCount int             `json:"inserted_count"`
	Inserted      MessageResponse `json:"inserted"`
}

// HistoryResponse represents one page of room history, oldest first.
type HistoryResponse struct {
	Room     string            `json:"room"`
	Messages []MessageResponse `json:"messages"`
}

// Append handles appending a message to a room.
// POST /api/messages
func (h *MessageHandlers) Append(c *gin.Context) {
	uid, ok := authedUser(c, h.logger)
	if !ok {
		return
	}

	var req AppendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug().Err(err).Msg("invalid append request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.log.Append(c.Request.Context(), req.Room, uid, core.Content{
		Text:          req.Text,
		Attachment:    req.Attachment,
		Attachments:   req.Attachments,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		if core.IsValidation(err) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		h.logger.Error().Err(err).Str("room", req.Room).Msg("failed to append message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, AppendResponse{InsertedCount: 1, Inserted: toMessageResponse(*msg)})
}

// History returns one page of room messages ending just before the cursor.
// GET /api/rooms/:id/messages?before=<timestamp>
func (h *MessageHandlers) History(c *gin.Context) {
	if _, ok := authedUser(c, h.logger); !ok {
		return
	}

	roomID := c.Param("id")

	var before *store.Timestamp
	if raw := c.Query("before"); raw != "" {
		ts, err := store.ParseTimestamp(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid before cursor"})
			return
		}
		before = &ts
	}

	messages, err := h.log.Page(c.Request.Context(), roomID, before, historyPageSize)
	if err != nil {
		if errors.Is(err, core.ErrMissingRoom) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		h.logger.Error().Err(err).Str("room", roomID).Msg("failed to page messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		response = append(response, toMessageResponse(msg))
	}

	c.JSON(http.StatusOK, HistoryResponse{Room: roomID, Messages: response})
}
