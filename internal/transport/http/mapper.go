package http

import (
	"github.com/quangtran/chatchit-server/internal/core"
	"github.com/quangtran/chatchit-server/internal/proto"
	"github.com/quangtran/chatchit-server/internal/store"
)

func toMessageResponse(msg store.Message) MessageResponse {
	return MessageResponse{
		ID:            msg.ID,
		Room:          msg.RoomID,
		Author:        msg.AuthorID,
		Text:          msg.Text,
		Attachment:    msg.Attachment,
		Attachments:   msg.Attachments,
		CorrelationID: msg.CorrelationID,
		CreatedAt:     msg.CreatedAt,
	}
}

// MessageResponse represents a stored message in API responses.
type MessageResponse struct {
	ID            string             `json:"id"`
	Room          string             `json:"room"`
	Author        string             `json:"author"`
	Text          string             `json:"text,omitempty"`
	Attachment    *store.Attachment  `json:"attachment,omitempty"`
	Attachments   []store.Attachment `json:"attachments,omitempty"`
	CorrelationID string             `json:"correlation_id,omitempty"`
	CreatedAt     store.Timestamp    `json:"created_at"`
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventMessage:
		msg := event.Message
		return proto.Outbound{
			Type: proto.OutboundTypeMessage,
			Data: proto.EventMessage{
				ID:            msg.ID,
				Room:          msg.RoomID,
				Author:        msg.AuthorID,
				Text:          msg.Text,
				Attachment:    msg.Attachment,
				Attachments:   msg.Attachments,
				CorrelationID: msg.CorrelationID,
				CreatedAt:     msg.CreatedAt,
			},
		}
	case core.EventPresence:
		return proto.Outbound{
			Type: proto.OutboundTypePresence,
			Data: proto.EventPresence{
				Room:   event.Room,
				Online: event.Online,
			},
		}
	case core.EventRead:
		return proto.Outbound{
			Type: proto.OutboundTypeRead,
			Data: proto.EventRead{
				Room:       event.Room,
				User:       event.User,
				LastReadAt: event.LastReadAt,
			},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown event"}}
	}
}
