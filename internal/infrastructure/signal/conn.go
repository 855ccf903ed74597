package signal

import (
	"fmt"
	"sync"
	"time"

	"voicebridge/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const sendQueueSize = 32

type connOptions struct {
	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration
	readLimit    int64
	limiter      *rate.Limiter
	logger       *zap.SugaredLogger
}

// Conn wraps one peer's websocket connection. Every outbound envelope goes
// through the send queue; the write pump is the only goroutine that touches
// the socket for writes, so Send is safe from any goroutine.
type Conn struct {
	id  domain.PeerID
	ws  *websocket.Conn
	opt connOptions

	send chan domain.Envelope
	done chan struct{}
	once sync.Once
}

func newConn(id domain.PeerID, ws *websocket.Conn, opt connOptions) *Conn {
	return &Conn{
		id:   id,
		ws:   ws,
		opt:  opt,
		send: make(chan domain.Envelope, sendQueueSize),
		done: make(chan struct{}),
	}
}

func (c *Conn) ID() domain.PeerID {
	return c.id
}

// Send queues an envelope for delivery. It never blocks: a full queue means
// the peer is not draining its socket, and the message is dropped with an
// error rather than stalling the caller.
func (c *Conn) Send(env domain.Envelope) error {
	select {
	case <-c.done:
		return fmt.Errorf("%w: %s", domain.ErrPeerOffline, c.id)
	default:
	}

	select {
	case c.send <- env:
		return nil
	case <-c.done:
		return fmt.Errorf("%w: %s", domain.ErrPeerOffline, c.id)
	default:
		return fmt.Errorf("send queue full for peer %s", c.id)
	}
}

// Close shuts the connection down. Safe to call more than once.
func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opt.pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case env := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.opt.writeTimeout))
			if err := c.ws.WriteJSON(env); err != nil {
				c.opt.logger.Debugw("write failed", "peer_id", c.id, "type", env.Type, "error", err)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.opt.writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.opt.logger.Debugw("ping failed", "peer_id", c.id, "error", err)
				return
			}

		case <-c.done:
			return
		}
	}
}

// readPump reads envelopes until the connection drops and hands each one to
// onMessage. It runs on the caller's goroutine and returns on disconnect.
func (c *Conn) readPump(onMessage func(domain.Envelope)) {
	defer c.Close()

	if c.opt.readLimit > 0 {
		c.ws.SetReadLimit(c.opt.readLimit)
	}
	c.ws.SetReadDeadline(time.Now().Add(c.opt.pongTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.opt.pongTimeout))
		return nil
	})

	for {
		var env domain.Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.opt.logger.Infow("read failed", "peer_id", c.id, "error", err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(c.opt.pongTimeout))

		if c.opt.limiter != nil && !c.opt.limiter.Allow() {
			c.opt.logger.Warnw("message rate limit exceeded, dropping message", "peer_id", c.id, "type", env.Type)
			continue
		}

		onMessage(env)
	}
}
