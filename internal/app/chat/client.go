package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"roomchat/internal/app/identity"
	"roomchat/internal/pkg/errs"
	"roomchat/internal/pkg/logx"
	"roomchat/internal/pkg/randx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 32 * 1024

	// eventTimeout bounds the handling of one inbound event.
	eventTimeout = 10 * time.Second

	// sendQueueSize is the number of outbound frames buffered per connection.
	sendQueueSize = 256

	// WsCloseCodeEvicted is a custom WebSocket Close Code (4000-4999 range) used when the
	// server ends a session: replaced by a newer connection, kicked or room dissolved.
	WsCloseCodeEvicted = 4001

	// Per-connection inbound event rate.
	eventRate  = 5
	eventBurst = 10
)

var errClientClosed = errors.New("client connection closed")

// Client is one authenticated WebSocket connection. It is the presence handle the Hub
// delivers frames to.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	id        string
	principal identity.Principal

	// send queues outbound frames; it is never closed, done signals shutdown instead.
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	reason    string

	limiter *rate.Limiter

	// mu protects roomID.
	mu     sync.Mutex
	roomID string

	logger zerolog.Logger
}

// NewClient constructs a Client for an upgraded connection of p.
func NewClient(hub *Hub, conn *websocket.Conn, p identity.Principal) *Client {
	id := randx.ID()

	return &Client{
		hub:       hub,
		conn:      conn,
		id:        id,
		principal: p,
		send:      make(chan []byte, sendQueueSize),
		done:      make(chan struct{}),
		limiter:   rate.NewLimiter(rate.Limit(eventRate), eventBurst),
		logger: logx.Logger().With().
			Str("uid", p.UID).
			Str("conn_id", id).
			Logger(),
	}
}

// ID implements presence.Handle.
func (c *Client) ID() string {
	return c.id
}

// Send implements presence.Handle. It never blocks.
func (c *Client) Send(frame []byte) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	default:
		return errors.New("client send queue full")
	}
}

// Close implements presence.Handle. Queued frames are flushed before the close frame.
func (c *Client) Close(reason string) {
	c.closeOnce.Do(func() {
		c.reason = reason
		close(c.done)
	})
}

// Run starts the write loop and blocks in the read loop until the connection ends.
func (c *Client) Run() {
	go c.WritePump()
	c.ReadPump()
}

func (c *Client) currentRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

func (c *Client) setRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = roomID
}

// ReadPump reads frames until the connection fails, then leaves the current room.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			return
		}

		c.processInbound(frame)
	}
}

// cleanupOnDisconnect treats the dropped connection as a leave of its current room.
func (c *Client) cleanupOnDisconnect() {
	c.logger.Info().Msg("Client connection cleanup starting.")

	if roomID := c.currentRoom(); roomID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		c.hub.Leave(ctx, roomID, c.principal, c, false)
		cancel()
		c.setRoom("")
	}

	c.Close("")

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

func (c *Client) processInbound(frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid JSON")
		c.SendError(errs.NewError(errs.ErrInvalidJSONFormat))
		return
	}

	if env.Type != EventLeaveRoom && !c.limiter.Allow() {
		c.SendError(errs.NewError(errs.ErrRateLimitExceeded))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	var err error
	switch env.Type {
	case EventJoinRoom:
		err = c.handleJoin(ctx, env.Payload)
	case EventSendMessage:
		err = c.handleSend(ctx, env.Payload)
	case EventTypingStart, EventTypingStop:
		err = c.handleTyping(env.Type == EventTypingStart, env.Payload)
	case EventLeaveRoom:
		c.handleLeave(ctx)
	case EventGetOnlineUsers:
		err = c.handleOnlineUsers(ctx, env.Payload)
	default:
		c.logger.Warn().Str("event", string(env.Type)).Msg("Client sent unsupported event")
		err = errs.NewError(errs.ErrUnsupportedEvent)
	}

	if err != nil {
		c.SendError(err)
	}
}

func decodePayload[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, errs.NewError(errs.ErrInvalidParams)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, errs.NewError(errs.ErrInvalidJSONFormat)
	}
	return v, nil
}

func (c *Client) handleJoin(ctx context.Context, raw json.RawMessage) error {
	p, err := decodePayload[JoinRoomPayload](raw)
	if err != nil {
		return err
	}

	if prev := c.currentRoom(); prev != "" && prev != p.RoomID {
		c.hub.Leave(ctx, prev, c.principal, c, false)
		c.setRoom("")
	}

	if _, err := c.hub.Join(ctx, p.RoomID, c.principal, p.Password, c); err != nil {
		return err
	}
	c.setRoom(p.RoomID)
	return nil
}

func (c *Client) handleSend(ctx context.Context, raw json.RawMessage) error {
	p, err := decodePayload[SendMessagePayload](raw)
	if err != nil {
		return err
	}
	if p.RoomID == "" || p.RoomID != c.currentRoom() {
		return errs.NewError(errs.ErrNotInRoom)
	}

	view, err := c.hub.Send(ctx, SendRequest{
		RoomID:    p.RoomID,
		Sender:    c.principal,
		Content:   p.Content,
		ReplyToID: p.ReplyToMessageID,
	})
	if err != nil {
		return err
	}

	if p.TempID != "" {
		c.hub.sendTo(c, EventMessageAck, MessageAckPayload{TempID: p.TempID, ID: view.ID, CreatedAt: view.CreatedAt})
	}
	return nil
}

func (c *Client) handleTyping(isTyping bool, raw json.RawMessage) error {
	p, err := decodePayload[RoomPayload](raw)
	if err != nil {
		return err
	}
	if p.RoomID != c.currentRoom() {
		return errs.NewError(errs.ErrNotInRoom)
	}
	return c.hub.Typing(p.RoomID, c.principal, isTyping)
}

func (c *Client) handleLeave(ctx context.Context) {
	roomID := c.currentRoom()
	if roomID == "" {
		return
	}
	c.hub.Leave(ctx, roomID, c.principal, c, true)
	c.setRoom("")
}

func (c *Client) handleOnlineUsers(ctx context.Context, raw json.RawMessage) error {
	p, err := decodePayload[RoomPayload](raw)
	if err != nil {
		return err
	}

	list, err := c.hub.OnlineUsers(ctx, p.RoomID)
	if err != nil {
		return err
	}
	c.hub.sendTo(c, EventOnlineUsers, OnlineUsersPayload{RoomID: p.RoomID, List: list})
	return nil
}

// SendError reports err to this connection only.
func (c *Client) SendError(err error) {
	ce := errs.Wrap(err)
	c.hub.sendTo(c, EventError, errorPayload(ce))
}

// WritePump writes queued frames and heartbeats until the client is closed or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame := <-c.send:
			if !c.write(websocket.TextMessage, frame) {
				return
			}

		case <-ticker.C:
			if !c.write(websocket.PingMessage, nil) {
				return
			}

		case <-c.done:
			c.flushAndClose()
			return
		}
	}
}

// flushAndClose writes whatever is still queued, then a close frame carrying the reason.
func (c *Client) flushAndClose() {
	for {
		select {
		case frame := <-c.send:
			if !c.write(websocket.TextMessage, frame) {
				return
			}
		default:
			code := websocket.CloseNormalClosure
			if c.reason != "" {
				code = WsCloseCodeEvicted
				c.logger.Info().Int("close_code", code).Str("reason", c.reason).Msg("Closing client connection.")
			}
			c.write(websocket.CloseMessage, websocket.FormatCloseMessage(code, c.reason))
			return
		}
	}
}

// write sends one frame of the given type. Returns false if the connection is unusable.
func (c *Client) write(messageType int, data []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if err := c.conn.WriteMessage(messageType, data); err != nil {
		c.logger.Debug().Err(err).Msg("Error writing frame")
		return false
	}

	return true
}
