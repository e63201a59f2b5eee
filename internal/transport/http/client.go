package http

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait         = 10 * time.Second
	defaultPongWait   = 60 * time.Second
	defaultSendBuffer = 32
	defaultMaxMessage = 4096
	defaultRateLimit  = 10
	defaultRateBurst  = 20
)

// GatewayOptions tunes connection handling. Zero values select the defaults.
type GatewayOptions struct {
	SendBuffer      int
	MaxMessageBytes int64
	PingInterval    time.Duration
	RateLimit       float64 // inbound messages per second
	RateBurst       int
	AllowedOrigins  []string
}

func (o GatewayOptions) withDefaults() GatewayOptions {
	if o.SendBuffer <= 0 {
		o.SendBuffer = defaultSendBuffer
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = defaultMaxMessage
	}
	if o.PingInterval <= 0 {
		o.PingInterval = (defaultPongWait * 9) / 10
	}
	if o.RateLimit <= 0 {
		o.RateLimit = defaultRateLimit
	}
	if o.RateBurst <= 0 {
		o.RateBurst = defaultRateBurst
	}
	return o
}

func (o GatewayOptions) pongWait() time.Duration {
	return (o.PingInterval * 10) / 9
}

// Client is one websocket connection joined to a room.
type Client struct {
	conn          *websocket.Conn
	hub           *Hub
	roomID        string
	participantID string
	moderator     bool
	opts          GatewayOptions
	limiter       *rate.Limiter
	log           *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	closeMu sync.Mutex
	closed  bool
	send    chan []byte
}

func newClient(conn *websocket.Conn, hub *Hub, roomID, participantID string, moderator bool, opts GatewayOptions, logger *zap.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:          conn,
		hub:           hub,
		roomID:        roomID,
		participantID: participantID,
		moderator:     moderator,
		opts:          opts,
		limiter:       rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst),
		log:           logger,
		ctx:           ctx,
		cancel:        cancel,
		send:          make(chan []byte, opts.SendBuffer),
	}
}

// enqueue never blocks. When the buffer is full the oldest pending message is dropped so a
// slow reader cannot stall the room.
func (c *Client) enqueue(data []byte) {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
		return
	default:
	}
	select {
	case <-c.send:
		c.hub.metrics.MessageDropped()
	default:
	}
	select {
	case c.send <- data:
	default:
		c.hub.metrics.MessageDropped()
	}
}

func (c *Client) close() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	close(c.send)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug("ws write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump blocks until the connection fails or closes, passing each permitted message
// to handle.
func (c *Client) readPump(handle func(c *Client, raw []byte)) {
	defer func() {
		c.hub.Unregister(c)
		c.close()
	}()

	pongWait := c.opts.pongWait()
	c.conn.SetReadLimit(c.opts.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("ws unexpected close", zap.Error(err))
			}
			return
		}
		if !c.limiter.Allow() {
			c.log.Debug("rate limit exceeded, dropping message")
			continue
		}
		handle(c, message)
	}
}
