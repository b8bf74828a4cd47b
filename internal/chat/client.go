package chat

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second
	// Ping period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Outbound channel buffer per connection.
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: restrict origins once the web client's deploy origin is fixed.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one websocket connection of an authenticated user.
type Client struct {
	h *Handler

	userID   string
	username string
	connID   string

	conn *websocket.Conn
	send chan []byte
}

// readPump pumps frames from the websocket into the handler's dispatch. It
// owns read deadlines and pong handling, and tears the connection down when
// the peer goes away.
func (c *Client) readPump() {
	defer func() {
		c.h.dropClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.h.maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, payload, err := c.conn.ReadMessage()
		if err != nil {
			// An oversized frame gets a structured reject before the
			// connection closes.
			if errors.Is(err, websocket.ErrReadLimit) {
				c.trySend(errInvalidMessageLength("frame exceeds size limit"))
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.h.log.Debug().Err(err).Str("userId", c.userID).Msg("websocket read error")
			}
			return
		}
		c.h.dispatch(c, messageType, payload)
	}
}

// writePump pumps frames from the send channel to the websocket and keeps
// the connection alive with periodic pings. One frame per websocket message;
// every frame is a standalone JSON envelope.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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

// trySend offers a frame to the outbound channel without blocking.
func (c *Client) trySend(frame []byte) {
	select {
	case c.send <- frame:
	default:
	}
}
