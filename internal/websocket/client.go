package websocket

import (
	"context"
	"errors"
	"time"

	ws "github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	maxFrameBytes  = 4096
)

var errSendClosed = errors.New("send channel closed")

// MessageHandler receives every inbound frame of a client, in order, on the
// client's read goroutine.
type MessageHandler func(ctx context.Context, data []byte)

// Client is one websocket connection registered with a hub.
type Client struct {
	id        string
	hub       *Hub
	conn      *ws.Conn
	send      chan []byte
	onMessage MessageHandler
}

func NewClient(hub *Hub, conn *ws.Conn) *Client {
	return &Client{
		id:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

func (c *Client) ID() string { return c.id }

// OnMessage installs the inbound frame handler. Without one, frames are
// read and discarded.
func (c *Client) OnMessage(h MessageHandler) {
	c.onMessage = h
}

// Send queues data for this client only and reports false when the buffer
// is full. Only valid while Run is active.
func (c *Client) Send(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Run registers the client and blocks until either pump stops, then
// unregisters.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	c.conn.SetReadLimit(maxFrameBytes)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.read(ctx) })
	g.Go(func() error { return c.write(ctx) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		c.hub.logger.Debug("websocket client closed", "client", c.id, "error", err)
	}
}

func (c *Client) read(ctx context.Context) error {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return err
		}
		if c.onMessage != nil {
			c.onMessage(ctx, data)
		}
	}
}

// write drains the send channel and pings on an interval so dead peers are
// noticed.
func (c *Client) write(ctx context.Context) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return errSendClosed
			}
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return err
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
