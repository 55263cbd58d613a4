package ws

import (
	"net/http"
	"sync"
	"time"

	"ironflex/backend/internal/auth"
	"ironflex/backend/pkg/logger"
	wsproto "ironflex/backend/pkg/ws"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Clients only send pings, so frames stay small
	maxMessageSize = 4 * 1024

	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
}

// Client is one live feed subscriber
type Client struct {
	ID     string
	UserID string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	log    *logger.Logger

	mu     sync.Mutex
	closed bool
}

// close is called by the hub only
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.LogError(err, "websocket read failed", "client_id", c.ID)
			}
			return
		}

		msg, err := wsproto.Decode(data)
		if err != nil {
			c.log.Debug("malformed frame", "client_id", c.ID, "error", err.Error())
			continue
		}

		switch msg.Type {
		case wsproto.TypePing:
			c.queue(wsproto.TypePong, nil)
		default:
			// The feed is read-only over the socket; sends go through the HTTP API
			c.queue(wsproto.TypeError, wsproto.ErrorContent{Message: "unsupported message type: " + msg.Type})
		}
	}
}

// queue encodes and enqueues a frame for this client only. Drops it when the
// buffer is full rather than blocking the read loop.
func (c *Client) queue(messageType string, content any) {
	data, err := wsproto.Encode(messageType, content)
	if err != nil {
		c.log.LogError(err, "encode frame", "type", messageType)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.log.Warn("dropping frame for slow client", "client_id", c.ID, "type", messageType)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
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
		}
	}
}

// ServeWs upgrades the request and subscribes the connection to the feed.
// Anonymous readers are allowed.
func ServeWs(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.FromGin(c)

		clientID := c.Query("clientId")
		if clientID == "" {
			clientID = uuid.NewString()
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.LogError(err, "websocket upgrade failed")
			return
		}

		client := &Client{
			ID:   clientID,
			conn: conn,
			send: make(chan []byte, sendBuffer),
			hub:  hub,
			log:  log,
		}
		if user := auth.FromGin(c); user != nil {
			client.UserID = user.ID
		}

		client.queue(wsproto.TypeHello, wsproto.Hello{ClientID: clientID})
		if !hub.add(client) {
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}
