package models

// MessageKind classifies a protocol message.
type MessageKind string

const (
	KindRequest      MessageKind = "request"
	KindResponse     MessageKind = "response"
	KindNotification MessageKind = "notification"
)

// Valid reports whether the kind is one of the protocol's message kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case KindRequest, KindResponse, KindNotification:
		return true
	}
	return false
}

// Message is a protocol message exchanged between agents. The engine assigns
// ID and CreatedAt at send time; messages are immutable once persisted.
type Message struct {
	ID        string         `json:"id"` // UUID
	Kind      MessageKind    `json:"kind"`
	Sender    string         `json:"sender"`
	Recipient string         `json:"recipient"`
	CreatedAt int64          `json:"created_at"` // Unix ms
	Payload   map[string]any `json:"payload"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
