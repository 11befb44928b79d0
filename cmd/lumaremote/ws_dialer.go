package main

// Websocket client transport for the ConnectionManager:
// - TCP keepalive on the dialer
// - ping ticker
// - pong watchdog (read deadline, also extended by server pings)
//
// Reading happens in the manager's reader goroutine, which is also what
// processes control frames.

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	clientPingEvery = 15 * time.Second
	clientReadLimit = 1 << 16
)

type wsDialer struct {
	url              string
	handshakeTimeout time.Duration
}

func newWSDialer(url string, handshakeTimeout time.Duration) *wsDialer {
	return &wsDialer{url: url, handshakeTimeout: handshakeTimeout}
}

func (d *wsDialer) Dial(ctx context.Context) (ActionConn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.handshakeTimeout,
		NetDialContext: (&net.Dialer{
			Timeout:   d.handshakeTimeout,
			KeepAlive: 15 * time.Second,
		}).DialContext,
	}

	conn, _, err := dialer.DialContext(ctx, d.url, nil)
	if err != nil {
		return nil, err
	}

	w := &wsConn{conn: conn, done: make(chan struct{})}

	conn.SetReadLimit(clientReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	go w.pingLoop()
	return w, nil
}

type wsConn struct {
	conn *websocket.Conn

	once sync.Once
	done chan struct{}
}

// ReadMessage returns the next data frame.
func (w *wsConn) ReadMessage() ([]byte, error) {
	_, b, err := w.conn.ReadMessage()
	return b, err
}

func (w *wsConn) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = w.conn.Close()
	})
	return err
}

func (w *wsConn) pingLoop() {
	t := time.NewTicker(clientPingEvery)
	defer t.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-t.C:
			// WriteControl is safe alongside the reader.
			if err := w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
