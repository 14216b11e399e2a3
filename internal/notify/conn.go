package notify

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

// Conn is one live delivery channel: a websocket plus a bounded outbound
// queue drained by a single write pump, so pushes from the consumer loop
// never write to the socket directly.
type Conn struct {
	userID    int64
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	registry  *Registry
	logger    *zap.Logger
}

func newConn(userID int64, ws *websocket.Conn, registry *Registry, logger *zap.Logger) *Conn {
	return &Conn{
		userID:   userID,
		ws:       ws,
		send:     make(chan []byte, sendQueueSize),
		done:     make(chan struct{}),
		registry: registry,
		logger:   logger,
	}
}

// Enqueue hands a frame to the write pump without blocking. When the
// queue is full the oldest pending frame is dropped: a stalled client
// loses its most stale notification, not global delivery.
func (c *Conn) Enqueue(frame []byte) {
	select {
	case c.send <- frame:
		return
	default:
	}

	select {
	case <-c.send:
		c.logger.Warn("Dropped oldest pending frame for slow client",
			zap.Int64("user_id", c.userID),
		)
	default:
	}

	select {
	case c.send <- frame:
	default:
	}
}

// writePump drains the queue onto the socket. A write failure closes the
// connection; the read loop then unregisters it.
func (c *Conn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Warn("Live channel write failed",
					zap.Int64("user_id", c.userID),
					zap.Error(err),
				)
				c.close()
				return
			}
		}
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		c.registry.Remove(c.userID, c)
		close(c.done)
		_ = c.ws.Close()
	})
}
