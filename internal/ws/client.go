package ws

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/manpreetbhatti/scribble/internal/presence"
	"github.com/manpreetbhatti/scribble/internal/protocol"
	"github.com/manpreetbhatti/scribble/internal/ratelimit"
	"github.com/manpreetbhatti/scribble/internal/session"
)

type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	handle      presence.Handle
	send        chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	session     *session.Session
	rateLimiter *ratelimit.Limiter
	opts        Options
	logger      *slog.Logger
}

// kick stops the write loop, which closes the connection and with it the
// read loop. Safe to call from any goroutine, any number of times.
func (c *Client) kick() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) readPump() {
	defer func() {
		c.session.Disconnect()
		c.hub.unregister(c)
		c.kick()
		c.conn.Close()
		c.hub.loops.Done()
	}()

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		return nil
	})

	violations := 0

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		if !c.rateLimiter.Allow() {
			violations++
			if violations%100 == 1 {
				c.logger.Warn("rate limit exceeded", "violations", violations)
			}
			if violations > c.opts.MaxViolations {
				c.logger.Warn("disconnecting client for excessive rate limit violations", "violations", violations)
				return
			}
			continue
		}

		if msgType != websocket.TextMessage {
			c.logger.Debug("ignoring non-text frame", "type", msgType)
			continue
		}

		env, err := protocol.Decode(message)
		if err != nil {
			c.logger.Debug("dropping unparseable frame", "error", err)
			continue
		}
		c.session.Dispatch(env)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logWriteError(err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logWriteError(err)
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}

func (c *Client) logWriteError(err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	c.logger.Debug("websocket write failed", "error", err)
}
