// Package hub fans state snapshots out to websocket subscribers using a
// channel-based register/unregister/broadcast loop.
package hub

import "encoding/json"

// Message is one pre-encoded JSON payload.
type Message struct {
	Data []byte
}

// EncodeJSON marshals v into a Message.
func EncodeJSON(v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return Message{Data: data}, nil
}
