package server

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/herizador/Proxy-Audio-share/internal/metrics"
	"github.com/herizador/Proxy-Audio-share/internal/protocol"
	"github.com/herizador/Proxy-Audio-share/internal/relay"
)

var (
	// ErrSendQueueFull is returned when a peer is not draining its frames
	ErrSendQueueFull = errors.New("send queue full")
	// ErrConnectionClosed is returned by Send after Close
	ErrConnectionClosed = errors.New("connection closed")
)

// connOptions are the per-connection transport limits
type connOptions struct {
	pingInterval   time.Duration
	pongWait       time.Duration
	writeWait      time.Duration
	maxMessageSize int64
	sendQueueSize  int
}

// wsConn adapts a gorilla websocket to relay.Connection. Writes go through a
// bounded queue drained by writePump so Send never blocks the room.
type wsConn struct {
	id      string
	ws      *websocket.Conn
	opts    connOptions
	logger  *slog.Logger
	metrics *metrics.Metrics

	send      chan protocol.Frame
	done      chan struct{}
	closeOnce sync.Once
	closeMsg  []byte
	alive     atomic.Bool
}

func newWSConn(id string, ws *websocket.Conn, opts connOptions, logger *slog.Logger, m *metrics.Metrics) *wsConn {
	c := &wsConn{
		id:      id,
		ws:      ws,
		opts:    opts,
		logger:  logger.With(slog.String("conn_id", id)),
		metrics: m,
		send:    make(chan protocol.Frame, opts.sendQueueSize),
		done:    make(chan struct{}),
	}
	c.alive.Store(true)
	return c
}

// ID implements relay.Connection
func (c *wsConn) ID() string { return c.id }

// Alive implements relay.Connection
func (c *wsConn) Alive() bool { return c.alive.Load() }

// Send implements relay.Connection
func (c *wsConn) Send(frame protocol.Frame) error {
	if !c.alive.Load() {
		return ErrConnectionClosed
	}

	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close implements relay.Connection. The close frame is written by writePump,
// which then tears the socket down.
func (c *wsConn) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		c.alive.Store(false)
		c.closeMsg = websocket.FormatCloseMessage(code, reason)
		close(c.done)
	})
	return nil
}

// writePump drains the send queue and keeps the connection alive with pings
func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.opts.pingInterval)
	defer func() {
		ticker.Stop()
		c.alive.Store(false)
		c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				c.logger.Debug("Write failed", slog.String("error", err.Error()))
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.opts.writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.flush()
			c.ws.WriteControl(websocket.CloseMessage, c.closeMsg, time.Now().Add(c.opts.writeWait))
			return
		}
	}
}

// flush writes whatever was queued before Close
func (c *wsConn) flush() {
	for {
		select {
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsConn) write(frame protocol.Frame) error {
	messageType := websocket.TextMessage
	if frame.IsAudio() {
		messageType = websocket.BinaryMessage
	}

	c.ws.SetWriteDeadline(time.Now().Add(c.opts.writeWait))
	return c.ws.WriteMessage(messageType, frame.Data)
}

// readPump feeds inbound messages to the session until the socket fails,
// then detaches the connection from its room
func (c *wsConn) readPump(session *relay.Session) {
	defer func() {
		session.Leave()
		c.Close(protocol.CloseNormal, protocol.ReasonRemoved)
	}()

	c.ws.SetReadLimit(c.opts.maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.opts.pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.opts.pongWait))
		return nil
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Warn("Read error", slog.String("error", err.Error()))
			}
			return
		}

		var frame protocol.Frame
		switch messageType {
		case websocket.BinaryMessage:
			frame = protocol.NewAudioFrame(data)
		case websocket.TextMessage:
			frame, err = protocol.ParseControlFrame(data)
			if err != nil {
				c.metrics.RecordMalformedFrame()
				c.logger.Debug("Discarding malformed message", slog.String("error", err.Error()))
				continue
			}
		default:
			continue
		}

		if !session.Deliver(frame) {
			return
		}
	}
}
