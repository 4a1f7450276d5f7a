// Package server manages individual WebSocket subscribers, handling the read
// pump that detects disconnects and the writes that push relayed messages.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/relay/internal/logger"
)

const (
	writeWait = 10 * time.Second

	// maxInboundSize caps frames read from subscribers. Clients publish over
	// HTTP, so anything larger than a control frame is unexpected.
	maxInboundSize = 512
)

// Client is one WebSocket subscriber. It implements Sink.
type Client struct {
	conn     *websocket.Conn
	hub      *Hub
	addr     string
	log      *slog.Logger
	pongWait time.Duration
}

// NewClient creates a Client for an upgraded connection.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, log *slog.Logger) *Client {
	if conn != nil {
		conn.SetReadLimit(maxInboundSize)
	}

	var pongWait time.Duration
	if hub.keepAlive > 0 {
		pongWait = 2 * hub.keepAlive
	}

	return &Client{
		conn:     conn,
		hub:      hub,
		addr:     addr,
		log:      log,
		pongWait: pongWait,
	}
}

// Serve streams hub messages to the connection until the stream ends and
// closes the connection.
func (c *Client) Serve(ctx context.Context) StreamEnd {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		defer cancel()
		c.readPump()
	}()

	end := c.hub.stream(ctx, c, c.log)

	switch end {
	case EndShutdown:
		c.writeClose(websocket.CloseGoingAway, "server shutting down")
	case EndClosed:
		c.writeClose(websocket.CloseNormalClosure, "")
	}
	c.closeConnection()
	<-readDone

	return end
}

// Send writes msg as a JSON text frame.
func (c *Client) Send(msg Message) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

// Ping sends a ping frame to keep the connection alive.
func (c *Client) Ping() error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *Client) setupReadConnection() {
	var deadline time.Time
	if c.pongWait > 0 {
		deadline = time.Now().Add(c.pongWait)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		c.log.Debug("error setting initial read deadline", logger.Error(err))
	}
	if c.pongWait == 0 {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
			c.log.Debug("error setting read deadline in pong handler", logger.Error(err))
		}
		return nil
	})
}

// readPump drains inbound frames so control frames are processed, and
// returns when the peer goes away.
func (c *Client) readPump() {
	c.setupReadConnection()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.handleReadError(err)
			return
		}
		c.log.Debug("ignoring inbound frame; publish over HTTP instead")
	}
}

// handleReadError logs read errors at a level matching how expected they are.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("inbound frame exceeded maximum size", slog.Int("limit", maxInboundSize))
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Debug("client disconnected", logger.Error(err))
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Debug("client connection closed", logger.Error(err))
	default:
		c.log.Warn("websocket read error", logger.Error(err))
	}
}

// writeClose sends a close frame; errors are expected when the peer is gone.
func (c *Client) writeClose(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Debug("error writing close message", logger.Error(err))
		}
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Debug("error closing connection", logger.Error(err))
		}
	}
}
