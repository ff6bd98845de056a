package transport

import (
	"encoding/json"
	"time"
)

// FilePayload is one attachment. Data is already encrypted by the sender (iv || ciphertext).
type FilePayload struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// Reaction on a direct message.
type Reaction struct {
	UserID int64  `json:"userId"`
	Emoji  string `json:"emoji"`
}

// DMSend is the data of a dmSend request. Envelope is opaque to the transport and the server.
type DMSend struct {
	RecipientID int64           `json:"recipientId"`
	Envelope    json.RawMessage `json:"envelope"`
	ReplyTo     *int64          `json:"replyTo,omitempty"`
	Files       []FilePayload   `json:"files,omitempty"`
}

// DMEdit replaces the envelope of message ID wholesale.
type DMEdit struct {
	ID       int64           `json:"id"`
	Envelope json.RawMessage `json:"envelope"`
}

// DMDelete removes message ID.
type DMDelete struct {
	ID int64 `json:"id"`
}

// DMReact toggles Emoji of the caller on message ID.
type DMReact struct {
	ID    int64  `json:"id"`
	Emoji string `json:"emoji"`
}

// DMHistory asks for the conversation with PeerID, newest first.
type DMHistory struct {
	PeerID   int64 `json:"peerId"`
	Limit    int   `json:"limit,omitempty"`
	BeforeID int64 `json:"beforeId,omitempty"`
}

// DMHistoryResult is the reply to dmHistory.
type DMHistoryResult struct {
	Messages []DMRecord `json:"messages"`
}

// DMRecord is a stored direct message as the server returns it.
type DMRecord struct {
	ID          int64           `json:"id"`
	SenderID    int64           `json:"senderId"`
	RecipientID int64           `json:"recipientId"`
	Envelope    json.RawMessage `json:"envelope"`
	ReplyTo     *int64          `json:"replyTo,omitempty"`
	Files       []FilePayload   `json:"files,omitempty"`
	Reactions   []Reaction      `json:"reactions,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	EditedAt    *time.Time      `json:"editedAt,omitempty"`
}

// Push is a decoded server push. The concrete types form a closed set:
// DMNew, DMEdited, DMDeleted, DMReaction, UserDeleted, CallSignal.
type Push interface {
	PushType() MessageType
}

// DMNew is pushed to both parties when a message is stored.
type DMNew struct{ DMRecord }

// DMEdited is pushed when a message envelope was replaced.
type DMEdited struct{ DMRecord }

// DMDeleted is pushed when a message was removed.
type DMDeleted struct {
	ID          int64 `json:"id"`
	SenderID    int64 `json:"senderId"`
	RecipientID int64 `json:"recipientId"`
}

// DMReaction is the reply to dmReact and the push sent to the peer.
type DMReaction struct {
	MessageID int64  `json:"messageId"`
	UserID    int64  `json:"userId"`
	Emoji     string `json:"emoji"`
	Removed   bool   `json:"removed"`
}

// UserDeleted announces an account removal.
type UserDeleted struct {
	UserID int64 `json:"userId"`
}

// CallSignal carries opaque call negotiation data between two users.
type CallSignal struct {
	FromID  int64           `json:"fromId,omitempty"`
	ToID    int64           `json:"toId"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (DMNew) PushType() MessageType       { return TypeDMNew }
func (DMEdited) PushType() MessageType    { return TypeDMEdited }
func (DMDeleted) PushType() MessageType   { return TypeDMDeleted }
func (DMReaction) PushType() MessageType  { return TypeDMReaction }
func (UserDeleted) PushType() MessageType { return TypeUserDeleted }
func (CallSignal) PushType() MessageType  { return TypeCallSignal }

// DecodePush turns a push frame into its typed form.
func DecodePush(f *Frame) (Push, error) {
	var p Push
	switch f.Type {
	case TypeDMNew:
		p = &DMNew{}
	case TypeDMEdited:
		p = &DMEdited{}
	case TypeDMDeleted:
		p = &DMDeleted{}
	case TypeDMReaction:
		p = &DMReaction{}
	case TypeUserDeleted:
		p = &UserDeleted{}
	case TypeCallSignal:
		p = &CallSignal{}
	default:
		return nil, &UnknownTypeError{Type: f.Type}
	}
	if err := f.Decode(p); err != nil {
		return nil, err
	}
	return p, nil
}

// UnknownTypeError reports a frame type outside the closed set.
type UnknownTypeError struct {
	Type MessageType
}

func (e *UnknownTypeError) Error() string {
	return "unknown message type " + string(e.Type)
}
