package gateway

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a frame to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer
	maxFrameSize = 4096

	// Outbound queue depth per connection
	sendBufferSize = 256
)

// Client is one websocket transport session. It owns the read/write pumps
// and implements Sender for the dispatcher.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	closed     int32
	sendClosed int32

	wg     sync.WaitGroup
	logger *slog.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()

	return &Client{
		id:     id,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With("component", "ws_client", "connID", id),
	}
}

// ID returns the opaque connection ID, unique per connect.
func (c *Client) ID() string {
	return c.id
}

// Send queues an event for delivery. It never blocks: a full buffer means a
// slow consumer, which is torn down and reported as a delivery failure.
func (c *Client) Send(event *Event) error {
	if c.isClosed() {
		return ErrConnectionClosed
	}

	data, err := encodeEvent(event)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		c.logger.Warn("send buffer full, closing slow consumer")
		c.close()
		return ErrSendBufferFull
	}
}

// Run registers the connection with the hub, optionally authenticates with
// connect-time credentials, and blocks pumping frames until the transport
// ends. Teardown is complete when Run returns.
func (c *Client) Run(token, claimedUserID string) {
	sess := c.hub.Connect(c)

	if token != "" {
		if err := c.hub.Authenticate(c.ctx, sess, token, claimedUserID); err != nil {
			c.Send(NewErrorEvent("", CodeUnauthenticated, "invalid credentials"))
		}
	}

	c.wg.Add(1)
	go c.writePump()

	c.readPump(sess)

	c.close()
	c.hub.Disconnect(context.Background(), sess)
	c.wg.Wait()
}

func (c *Client) readPump(sess *Session) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket read error", "error", err)
			} else {
				c.logger.Debug("websocket closed", "error", err)
			}
			return
		}

		// Synchronous handling keeps this connection's events in order;
		// other connections are served by their own pumps.
		c.hub.HandleInbound(c.ctx, sess, raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.wg.Done()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("ping failed", "error", err)
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) isClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

func (c *Client) close() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		c.cancel()
		c.conn.Close()
		if atomic.CompareAndSwapInt32(&c.sendClosed, 0, 1) {
			close(c.send)
		}
	}
}
