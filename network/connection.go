// network/connection.go
package network

import (
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection abstracts one client socket; the engine and handler only ever
// see this interface, never *websocket.Conn directly.
type Connection interface {
	Send(frame Frame) error
	Close() error
	RemoteAddr() net.Addr
	SetHeartbeat(interval time.Duration)
	ReadFrame() (*Frame, error)
}

type WSConnection struct {
	conn      *websocket.Conn
	sendMutex sync.Mutex
	heartbeat time.Duration
	stopPing  chan struct{}
}

func NewWSConnection(conn *websocket.Conn) *WSConnection {
	return &WSConnection{conn: conn}
}

// Send writes one JSON frame as a text message.
func (c *WSConnection) Send(frame Frame) error {
	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()
	return c.conn.WriteJSON(frame)
}

// ReadFrame reads and decodes the next JSON envelope from the socket.
// Liveness is tracked separately via ping/pong, so a client that goes
// quiet between game actions but still answers pings is never dropped.
func (c *WSConnection) ReadFrame() (*Frame, error) {
	var frame Frame
	if err := c.conn.ReadJSON(&frame); err != nil {
		return nil, err
	}
	return &frame, nil
}

// SetHeartbeat arms the read deadline and starts a background ticker that
// pings the client every interval; the client's pong response pushes the
// deadline back out. A connection that stops answering pings is dropped
// after roughly two missed intervals.
func (c *WSConnection) SetHeartbeat(interval time.Duration) {
	c.heartbeat = interval
	c.conn.SetReadDeadline(time.Now().Add(interval * 2))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(interval * 2))
		return nil
	})

	if interval <= 0 {
		return
	}
	c.stopPing = make(chan struct{})
	go c.pingLoop(interval, c.stopPing)
}

func (c *WSConnection) pingLoop(interval time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sendMutex.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(interval))
			c.sendMutex.Unlock()
			if err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

func (c *WSConnection) Close() error {
	if c.stopPing != nil {
		close(c.stopPing)
	}
	return c.conn.Close()
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
