package hub

import (
	"time"

	"github.com/gofiber/contrib/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Viewers send nothing but control frames.
	viewerReadLimit = 512
)

// viewer is one websocket connection receiving broadcasts.
type viewer struct {
	conn *websocket.Conn
	send chan Message
}

// Serve attaches conn to the hub and blocks until the connection closes or
// the hub stops. Call it from the websocket handler.
func (h *Hub) Serve(conn *websocket.Conn) {
	v := &viewer{conn: conn, send: make(chan Message, h.buffer)}
	if !h.attach(v) {
		conn.Close()
		return
	}
	go v.writeLoop()
	v.drain()
	h.detach(v)
	conn.Close()
}

// attach registers v. It reports false once the hub has stopped.
func (h *Hub) attach(v *viewer) bool {
	select {
	case h.register <- v:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) detach(v *viewer) {
	select {
	case h.unregister <- v:
	case <-h.done:
	}
}

// drain reads until the peer goes away so pongs and close frames are handled.
func (v *viewer) drain() {
	v.conn.SetReadLimit(viewerReadLimit)
	v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop owns all writes to the connection. It exits when the hub closes
// send or a write fails.
func (v *viewer) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		v.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-v.send:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				v.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := v.conn.WriteMessage(msg.frameType(), msg.Data); err != nil {
				return
			}
		case <-ping.C:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
