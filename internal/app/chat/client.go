/*
Package chat holds the persistent connections bound on this instance.

This file defines the Client struct, one authenticated WebSocket connection. The principal
is bound once at handshake and every inbound command is attributed to it.
*/
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"marketchat/internal/app/envelope"
	"marketchat/internal/pkg/auth"
	"marketchat/internal/pkg/errs"
	"marketchat/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192

	// sendBuffer is the number of outbound frames queued per connection.
	sendBuffer = 256

	// commandTimeout bounds the persistence work triggered by one inbound command.
	commandTimeout = 10 * time.Second
)

// Binding ties a connection to the principal resolved at handshake for its whole lifetime.
type Binding struct {
	ConnectionID string
	Principal    auth.Principal
	BoundAt      time.Time
}

// NewBinding creates a Binding with a fresh connection id.
func NewBinding(p auth.Principal) Binding {
	return Binding{
		ConnectionID: uuid.NewString(),
		Principal:    p,
		BoundAt:      time.Now(),
	}
}

// Client struct represents an active WebSocket connection and its bound principal.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	binding  Binding
	commands Commands

	// a buffered channel used to queue frames waiting to be sent to the client.
	send chan []byte

	// mu guards closed; send is closed exactly once.
	mu     sync.Mutex
	closed bool

	// destinations the client listens to; guarded by hub.mu.
	subscriptions map[string]struct{}

	logger zerolog.Logger
}

// NewClient constructs a Client. conn may be nil in tests that only inspect the send queue.
func NewClient(hub *Hub, conn *websocket.Conn, binding Binding, commands Commands) *Client {
	return &Client{
		hub:           hub,
		conn:          conn,
		binding:       binding,
		commands:      commands,
		send:          make(chan []byte, sendBuffer),
		subscriptions: make(map[string]struct{}),
		logger: logx.Logger().With().
			Str("connection_id", binding.ConnectionID).
			Str("subject", binding.Principal.Subject).
			Logger(),
	}
}

// Binding returns the connection's binding.
func (c *Client) Binding() Binding {
	return c.binding
}

func (c *Client) userDestination() string {
	return envelope.UserDestination(c.binding.Principal.Subject)
}

// enqueue adds frame to the send queue without blocking.
func (c *Client) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) closeConn() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

// ReadPump reads inbound frames until the connection fails, then releases the binding.
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
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			break
		}

		c.processInbound(messageBytes)
	}
}

func (c *Client) cleanupOnDisconnect() {
	c.logger.Debug().Msg("Client connection cleanup starting.")
	c.hub.Unregister(c)
	c.closeConn()
}

// WritePump writes queued frames and periodic pings until the queue is closed.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.closeConn()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.writeQueuedMessage(message, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedMessage returns false when the WritePump loop should terminate.
func (c *Client) writeQueuedMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Error().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// sendFrame marshals f and queues it for this client only.
func (c *Client) sendFrame(f envelope.Frame) {
	b, err := json.Marshal(f)
	if err != nil {
		c.logger.Error().Err(err).Str("frame_type", string(f.Type)).Msg("Error marshaling frame for client")
		return
	}
	if !c.enqueue(b) {
		c.logger.Warn().Int("queue_len", len(c.send)).Str("frame_type", string(f.Type)).Msg("Client send channel full, dropping frame")
	}
}

// ErrorPayload is the body of an ERROR frame.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	TempID  string `json:"tempId,omitempty"`
}

// SendError queues an ERROR frame describing err.
func (c *Client) SendError(err error, tempID string) {
	var customErr *errs.CustomError
	if !errors.As(err, &customErr) {
		customErr = errs.NewError(errs.ErrUnknown)
	}

	c.sendFrame(envelope.Frame{
		Type: envelope.FrameError,
		Payload: ErrorPayload{
			Code:    customErr.Code,
			Message: customErr.Message,
			TempID:  tempID,
		},
	})
}

// SendConnected queues the CONNECTED frame that opens every session.
func (c *Client) SendConnected() {
	c.sendFrame(envelope.Frame{
		Type:        envelope.FrameConnected,
		Destination: c.userDestination(),
		Payload: map[string]any{
			"connectionId": c.binding.ConnectionID,
			"subject":      c.binding.Principal.Subject,
		},
	})
}

func (c *Client) commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), commandTimeout)
}
