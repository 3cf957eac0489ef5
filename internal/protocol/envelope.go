package protocol

import "time"

// MessageType enumerates the event names carried on the wire.
type MessageType string

const (
	// Inbound events.
	MessageTypeGoOnline    MessageType = "goOnline"
	MessageTypeGoOffline   MessageType = "goOffline"
	MessageTypeSendMessage MessageType = "sendMessage"

	// Outbound events.
	MessageTypeMatched        MessageType = "matched"
	MessageTypeReceiveMessage MessageType = "receiveMessage"
	MessageTypeUserList       MessageType = "userList"
)

// Envelope wraps every payload sent over the wire.
type Envelope struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// SendMessageRequest is the payload of a sendMessage event.
type SendMessageRequest struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Message  string `json:"message"`
}

// ReceivedMessage is the payload of a receiveMessage event.
type ReceivedMessage struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}
