// Package hub fans dashboard updates out to websocket viewers. Viewers only
// receive; a viewer that falls behind is disconnected instead of slowing the
// publisher.
package hub

import "github.com/gofiber/contrib/websocket"

// Message is one payload sent to every viewer.
type Message struct {
	Data   []byte
	Binary bool
}

// Text wraps pre-encoded JSON.
func Text(data []byte) Message { return Message{Data: data} }

// Binary wraps raw bytes such as a JPEG preview.
func Binary(data []byte) Message { return Message{Data: data, Binary: true} }

func (m Message) frameType() int {
	if m.Binary {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}
