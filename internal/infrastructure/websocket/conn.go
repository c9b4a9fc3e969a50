package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	// Allowed silence between pongs, relative to the ping interval.
	pongWaitFactor = 2
)

// Conn is the part of *websocket.Conn the manager depends on.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, *http.Response, error)
}

type GorillaDialer struct {
	dialer *websocket.Dialer
}

func NewGorillaDialer(handshakeTimeout time.Duration) *GorillaDialer {
	return &GorillaDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

func (d *GorillaDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, *http.Response, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, resp, err
	}
	return conn, resp, nil
}

// readLoop feeds frames to the handler until the transport fails.
func (cm *ConnectionManager) readLoop(conn Conn, gen uint64) {
	done := make(chan struct{})
	defer close(done)

	pongWait := cm.opts.PingInterval * pongWaitFactor
	if cm.opts.PingInterval > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		go cm.pingLoop(conn, done)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			cm.onTransportLoss(gen, err)
			return
		}
		if cm.opts.PingInterval > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		}
		cm.handler.HandleMessage(data)
	}
}

func (cm *ConnectionManager) pingLoop(conn Conn, done <-chan struct{}) {
	ticker := cm.clock.NewTicker(cm.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.Chan():
			cm.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			cm.writeMu.Unlock()
			if err != nil {
				cm.log.Debug("Ping failed", "error", err)
				return
			}
		}
	}
}
