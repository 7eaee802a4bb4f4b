package hub

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/weiawesome/realm-live/internal/config"
	"github.com/weiawesome/realm-live/internal/domain"
	"github.com/weiawesome/realm-live/pkg/log"
)

var (
	ErrClientClosed   = errors.New("client closed")
	ErrSendBufferFull = errors.New("client send buffer full")
)

// Conn is the subset of *websocket.Conn a client drives.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	NextWriter(messageType int) (io.WriteCloser, error)
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client is one live channel. Its send buffer is drained by WritePump and is
// closed by the hub when the client is unregistered.
type Client struct {
	ID      string
	Session *domain.Session

	conn   Conn
	config config.WebSocketConfig

	mu         sync.Mutex
	send       chan []byte
	sendClosed bool

	open      atomic.Bool
	closeOnce sync.Once
}

func NewClient(id string, conn Conn, cfg config.WebSocketConfig) *Client {
	size := cfg.SendBufferSize
	if size <= 0 {
		size = 256
	}
	c := &Client{
		ID:      id,
		Session: domain.NewSession(id),
		conn:    conn,
		config:  cfg,
		send:    make(chan []byte, size),
	}
	c.open.Store(true)
	return c
}

// IsOpen reports whether the transport is still usable.
func (c *Client) IsOpen() bool {
	return c.open.Load()
}

// Enqueue queues a frame without blocking.
func (c *Client) Enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sendClosed || !c.IsOpen() {
		return ErrClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// SendMessage encodes and queues a push message.
func (c *Client) SendMessage(m domain.PushMessage) error {
	data, err := domain.EncodePush(m)
	if err != nil {
		return err
	}
	return c.Enqueue(data)
}

// Outbound exposes the send buffer.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

// Close marks the client closed and closes the transport, which ends ReadPump.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

// ReadPump reads frames until the transport fails, handing each one to
// onMessage in order. onClose runs once after the client is marked closed.
func (c *Client) ReadPump(onMessage func(*Client, []byte), onClose func(*Client)) {
	defer func() {
		c.Close()
		onClose(c)
	}()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.Session.UpdateActivity()
		return c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Debug().Err(err).Str(log.FieldClientID, c.ID).Msg("websocket read error")
			}
			return
		}

		c.Session.UpdateActivity()
		onMessage(c, message)
	}
}

// WritePump drains the send buffer and sends keepalive pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
