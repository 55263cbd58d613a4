package ws

import (
	"encoding/json"
)

// Message types exchanged over the live feed socket
const (
	TypeFeed  = "feed"
	TypeHello = "hello"
	TypePing  = "ping"
	TypePong  = "pong"
	TypeError = "error"
)

// Message is the envelope for every websocket frame
type Message struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

// Hello is sent once after the upgrade so clients know the connection is live
type Hello struct {
	ClientID string `json:"clientId"`
}

// ErrorContent is the payload of an error frame
type ErrorContent struct {
	Message string `json:"message"`
}

// Encode wraps content in an envelope of the given type
func Encode(messageType string, content any) ([]byte, error) {
	msg := Message{Type: messageType}
	if content != nil {
		raw, err := json.Marshal(content)
		if err != nil {
			return nil, err
		}
		msg.Content = raw
	}
	return json.Marshal(msg)
}

// Decode parses an envelope
func Decode(data []byte) (Message, error) {
	var msg Message
	err := json.Unmarshal(data, &msg)
	return msg, err
}
