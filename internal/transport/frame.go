// Package transport multiplexes correlated request/response pairs and server
// push events over one websocket connection that reconnects on its own.
package transport

import (
	"encoding/json"
	"fmt"
)

// MessageType names a frame. The set is closed: see Requests and Pushes.
type MessageType string

// Requests (client -> server). The reply echoes the request id and carries the same type.
const (
	TypePing      MessageType = "ping"
	TypeDMSend    MessageType = "dmSend"
	TypeDMEdit    MessageType = "dmEdit"
	TypeDMDelete  MessageType = "dmDelete"
	TypeDMReact   MessageType = "dmReact"
	TypeDMHistory MessageType = "dmHistory"
)

// Pushes (server -> client, no id).
const (
	TypeDMNew       MessageType = "dmNew"
	TypeDMEdited    MessageType = "dmEdited"
	TypeDMDeleted   MessageType = "dmDeleted"
	TypeDMReaction  MessageType = "dmReaction"
	TypeUserDeleted MessageType = "userDeleted"
)

// TypeCallSignal travels both ways: as a request it is relayed to the peer,
// who receives it as a push.
const TypeCallSignal MessageType = "callSignal"

// IsRequest reports whether a client may send t as a request.
func (t MessageType) IsRequest() bool {
	switch t {
	case TypePing, TypeDMSend, TypeDMEdit, TypeDMDelete, TypeDMReact, TypeDMHistory, TypeCallSignal:
		return true
	}
	return false
}

// IsPush reports whether the server may push t.
func (t MessageType) IsPush() bool {
	switch t {
	case TypeDMNew, TypeDMEdited, TypeDMDeleted, TypeDMReaction, TypeUserDeleted, TypeCallSignal:
		return true
	}
	return false
}

// SchemeBearer is the only credential scheme in use.
const SchemeBearer = "Bearer"

// Credentials accompany every authenticated request frame.
type Credentials struct {
	Scheme      string `json:"scheme"`
	Credentials string `json:"credentials"`
}

// Frame is the JSON object exchanged on the socket in both directions.
type Frame struct {
	Type        MessageType     `json:"type"`
	ID          string          `json:"id,omitempty"`
	Credentials *Credentials    `json:"credentials,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	Error       *RemoteError    `json:"error,omitempty"`
}

// NewFrame builds a frame with data encoded as JSON. A nil data leaves Data empty.
func NewFrame(t MessageType, id string, data any) (*Frame, error) {
	f := &Frame{Type: t, ID: id}
	if data == nil {
		return f, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t, err)
	}
	f.Data = raw
	return f, nil
}

// Decode unmarshals Data into v. Empty data leaves v untouched.
func (f *Frame) Decode(v any) error {
	if len(f.Data) == 0 || v == nil {
		return nil
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", f.Type, err)
	}
	return nil
}

// RemoteError is the error object carried by a reply the server rejected.
type RemoteError struct {
	Code   int    `json:"code"`
	Detail string `json:"detail"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Detail)
}
