// Command chat is a terminal client for the chat server. It keeps a local
// view of the joined room, sends messages over REST, and follows the live
// feed over WebSocket.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	stdhttp "net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/quangtran/chatchit-server/internal/chatview"
	"github.com/quangtran/chatchit-server/internal/proto"
	"github.com/quangtran/chatchit-server/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Printf("chat: %v", err)
		os.Exit(1)
	}
}

type client struct {
	server string
	token  string
	user   string
	room   string
	view   *chatview.View
	http   *stdhttp.Client
}

func run() error {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	token := flag.String("token", "", "JWT bearer token")
	user := flag.String("user", "cli-user", "user id (must match the token)")
	room := flag.String("room", "general", "room to join")
	flag.Parse()

	if *token == "" {
		return errors.New("-token is required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	c := &client{
		server: strings.TrimRight(*server, "/"),
		token:  *token,
		user:   *user,
		room:   *room,
		view:   chatview.NewView(*room, *user),
		http:   stdhttp.DefaultClient,
	}

	// A failed page load is not fatal; the client starts from an empty view
	// and still follows the live feed.
	if err := c.loadHistory(ctx); err != nil {
		log.Printf("load history: %v", err)
	}
	for _, item := range c.view.Messages() {
		printItem(item)
	}
	if at, due := c.view.Open(); due {
		c.markRead(ctx, at)
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	joinPayload, err := json.Marshal(proto.JoinData{Room: c.room})
	if err != nil {
		return fmt.Errorf("marshal join: %w", err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeJoin, Data: joinPayload}); err != nil {
		return fmt.Errorf("join: %w", err)
	}

	fmt.Printf("Connected to %s as %s in room %s\n", c.server, c.user, c.room)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		c.readLoop(ctx, conn)
	}()

	c.inputLoop(ctx)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func (c *client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.server)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	u.RawQuery = "token=" + url.QueryEscape(c.token)

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	return conn, err
}

func (c *client) loadHistory(ctx context.Context) error {
	req, err := stdhttp.NewRequestWithContext(ctx, stdhttp.MethodGet,
		c.server+"/api/rooms/"+url.PathEscape(c.room)+"/messages", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	var page struct {
		Messages []proto.EventMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return err
	}
	msgs := make([]store.Message, 0, len(page.Messages))
	for _, evt := range page.Messages {
		msgs = append(msgs, toStoreMessage(evt))
	}
	c.view.ApplyHistory(msgs)
	return nil
}

func toStoreMessage(evt proto.EventMessage) store.Message {
	return store.Message{
		ID:            evt.ID,
		RoomID:        evt.Room,
		AuthorID:      evt.Author,
		Text:          evt.Text,
		Attachment:    evt.Attachment,
		Attachments:   evt.Attachments,
		CorrelationID: evt.CorrelationID,
		CreatedAt:     evt.CreatedAt,
	}
}

func (c *client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch outbound.Type {
		case proto.OutboundTypeMessage:
			var evt proto.EventMessage
			if !decodeData(outbound.Data, &evt) {
				continue
			}
			if c.view.ApplyConfirmed(toStoreMessage(evt)) && evt.Author != c.user {
				fmt.Printf("[%s] %s: %s\n", evt.Room, evt.Author, evt.Text)
				// The room stays open for the whole session, so the read
				// marker follows every message as it lands.
				c.markRead(ctx, evt.CreatedAt)
			}
		case proto.OutboundTypePresence:
			var evt proto.EventPresence
			if !decodeData(outbound.Data, &evt) {
				continue
			}
			fmt.Printf("[%s] %d online\n", evt.Room, evt.Online)
		case proto.OutboundTypeRead:
			var evt proto.EventRead
			if !decodeData(outbound.Data, &evt) {
				continue
			}
			fmt.Printf("[%s] %s read up to %s\n", evt.Room, evt.User, evt.LastReadAt.Time().Format("15:04:05"))
		case proto.OutboundTypeError:
			if outbound.Error != nil {
				fmt.Printf("server error: %s (%s)\n", outbound.Error.Msg, outbound.Error.Code)
			}
		}
	}
}

func (c *client) inputLoop(ctx context.Context) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		correlationID := c.view.Send(text, nil)
		if err := c.appendMessage(ctx, text, correlationID); err != nil {
			c.view.MarkFailed(correlationID)
			fmt.Printf("send failed: %v\n", err)
		}
	}
}

func (c *client) appendMessage(ctx context.Context, text, correlationID string) error {
	payload, err := json.Marshal(map[string]string{
		"room":           c.room,
		"text":           text,
		"correlation_id": correlationID,
	})
	if err != nil {
		return err
	}

	req, err := stdhttp.NewRequestWithContext(ctx, stdhttp.MethodPost,
		c.server+"/api/messages", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	var ack struct {
		Inserted proto.EventMessage `json:"inserted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return err
	}
	c.view.ApplyConfirmed(toStoreMessage(ack.Inserted))
	return nil
}

// markRead advances the server-side read marker for the joined room. The
// server keeps the position monotonic, so out-of-order calls are harmless.
func (c *client) markRead(ctx context.Context, at store.Timestamp) {
	payload, err := json.Marshal(struct {
		Room string          `json:"room"`
		At   store.Timestamp `json:"at"`
	}{Room: c.room, At: at})
	if err != nil {
		log.Printf("marshal mark read: %v", err)
		return
	}

	req, err := stdhttp.NewRequestWithContext(ctx, stdhttp.MethodPut,
		c.server+"/api/read", bytes.NewReader(payload))
	if err != nil {
		log.Printf("mark read: %v", err)
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("mark read: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Printf("mark read: status %d: %s", resp.StatusCode, body)
	}
}

func printItem(item chatview.Item) {
	msg := item.Message
	switch item.State {
	case chatview.StatePending:
		fmt.Printf("[%s] %s (sending): %s\n", msg.RoomID, msg.AuthorID, msg.Text)
	case chatview.StateFailed:
		fmt.Printf("[%s] %s (failed): %s\n", msg.RoomID, msg.AuthorID, msg.Text)
	default:
		fmt.Printf("[%s] %s: %s\n", msg.RoomID, msg.AuthorID, msg.Text)
	}
}

func decodeData(data any, out any) bool {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Printf("marshal outbound data: %v", err)
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		log.Printf("unmarshal event: %v", err)
		return false
	}
	return true
}
