package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/quangtran/chatchit-server/internal/auth"
	"github.com/quangtran/chatchit-server/internal/core"
	"github.com/quangtran/chatchit-server/internal/proto"
	"github.com/quangtran/chatchit-server/internal/utils"
)

// inboundPerMinute caps how many frames a single connection may send.
const inboundPerMinute = 120

// WSHandler upgrades HTTP connections and bridges them to the registry.
type WSHandler struct {
	registry *core.Registry
	tracker  *core.ReadTracker
	jwt      *auth.JWTConfig
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(registry *core.Registry, tracker *core.ReadTracker, jwtCfg *auth.JWTConfig, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{registry: registry, tracker: tracker, jwt: jwtCfg, log: logger}
}

// Handle upgrades the request and runs the connection until it closes.
// GET /ws?token=<jwt>
func (h *WSHandler) Handle(c *gin.Context) {
	w, r := c.Writer, c.Request

	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r.Header.Get("Authorization"))
	}
	claims, err := auth.ValidateToken(h.jwt, token)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws auth failed")
		c.JSON(401, ErrorResponse{Error: "invalid token"})
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	client := core.NewConn(utils.NewID(), claims.UserID)
	h.registry.Register(client)
	defer h.registry.LeaveAll(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	limiter := newRateLimiter(inboundPerMinute)
	stop := make(chan struct{})
	defer close(stop)
	limiter.startReset(stop)

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, limiter)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Conn, limiter *rateLimiter) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		if !limiter.allow() {
			pushEvent(client, &core.Event{Kind: core.EventError, Error: &core.CoreError{
				Code:    core.ErrCodeBadRequest,
				Message: "rate limit exceeded",
			}})
			continue
		}

		if protoErr := h.dispatch(client, inbound); protoErr != nil {
			pushEvent(client, &core.Event{Kind: core.EventError, Error: &core.CoreError{
				Code:    protoErr.Code,
				Message: protoErr.Msg,
			}})
		}
	}
}

// dispatch applies one inbound frame to the registry.
func (h *WSHandler) dispatch(client *core.Conn, inbound proto.Inbound) *proto.Error {
	switch inbound.Type {
	case proto.InboundTypeJoin:
		var join proto.JoinData
		if err := json.Unmarshal(inbound.Data, &join); err != nil || join.Room == "" {
			return &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room is required"}
		}
		h.registry.Join(client, join.Room)
		return nil
	case proto.InboundTypeLeave:
		var leave proto.LeaveData
		if err := json.Unmarshal(inbound.Data, &leave); err != nil || leave.Room == "" {
			return &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room is required"}
		}
		h.registry.Leave(client, leave.Room)
		return nil
	case proto.InboundTypePresence:
		var presence proto.PresenceData
		if err := json.Unmarshal(inbound.Data, &presence); err != nil || presence.Room == "" {
			return &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room is required"}
		}
		pushEvent(client, &core.Event{
			Kind:   core.EventPresence,
			Room:   presence.Room,
			Online: h.registry.Presence(presence.Room),
		})
		return nil
	default:
		return &proto.Error{Code: "invalid_message", Msg: "unknown message type"}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Conn) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// pushEvent queues an event for one connection without blocking the reader.
func pushEvent(client *core.Conn, ev *core.Event) {
	select {
	case client.Events <- ev:
	default:
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
