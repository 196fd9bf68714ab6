package main

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = 20 * time.Second
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 50
)

var errClientClosed = errors.New("client connection closed")

// Client binds a WebSocket connection to a world session
type Client struct {
	world      *World
	conn       *websocket.Conn
	limiter    *connLimiter
	send       chan []byte
	playerID   string
	remoteAddr string
	msgCount   int
	msgResetAt time.Time

	mu          sync.Mutex
	closed      bool
	closeReason string
	done        chan struct{}
	writeDone   chan struct{}
}

// NewClient creates a new Client
func NewClient(world *World, conn *websocket.Conn, limiter *connLimiter, remoteAddr string) *Client {
	return &Client{
		world:      world,
		conn:       conn,
		limiter:    limiter,
		send:       make(chan []byte, sendBufSize),
		remoteAddr: remoteAddr,
		done:       make(chan struct{}),
		writeDone:  make(chan struct{}),
	}
}

// ReadPump reads messages from the WebSocket connection and feeds them
// to the world. On any read error the session is unregistered.
func (c *Client) ReadPump() {
	defer func() {
		if c.limiter != nil {
			c.limiter.trackDisconnect(c.remoteAddr)
		}
		c.world.Unregister(c.playerID)
		c.markClosed()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws error: %v", err)
			}
			break
		}

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			log.Printf("rate limit exceeded for %s, disconnecting", c.remoteAddr)
			break
		}

		c.world.HandleMessage(c.playerID, message)
	}
}

// WritePump writes queued messages and keep-alive pings to the
// connection, and emits the close frame on orderly shutdown
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.markClosed()
		c.conn.Close()
		close(c.writeDone)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, c.closeReason))
			return
		}
	}
}

// Send queues a payload for delivery. A slow client drops the message;
// only a dead connection reports an error.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errClientClosed
	}
	c.mu.Unlock()

	select {
	case c.send <- data:
	default:
		// Client too slow, drop message
	}
	return nil
}

// Close asks WritePump to emit a close frame with the given reason and
// waits until the frame has been written (or the write deadline passed)
// before returning. Safe to call more than once.
func (c *Client) Close(reason string) error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		c.closeReason = reason
		close(c.done)
	}
	c.mu.Unlock()
	<-c.writeDone
	return nil
}

// markClosed flags the client dead when a pump exits on its own. The
// done channel is signalled so the other pump tears down immediately
// instead of idling until its next write.
func (c *Client) markClosed() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	c.mu.Unlock()
}
