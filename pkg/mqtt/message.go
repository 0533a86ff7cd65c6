package mqtt

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageType represents the type of message being sent.
type MessageType string

const (
	// MessageTypeCall represents a remote method invocation
	MessageTypeCall MessageType = "call"
	// MessageTypeEvent represents an event message
	MessageTypeEvent MessageType = "event"
	// MessageTypeResponse represents a response to a call
	MessageTypeResponse MessageType = "response"
	// MessageTypeStatus represents a status update
	MessageTypeStatus MessageType = "status"
	// MessageTypeSpec describes a module's callable surface
	MessageTypeSpec MessageType = "spec"
)

// Message is the envelope structure for all hub messages.
type Message struct {
	// ID is a unique identifier for this message
	ID string `json:"id"`
	// Type indicates the message type
	Type MessageType `json:"type"`
	// Source identifies the sender (e.g., "actor:copter-1/drone")
	Source string `json:"source"`
	// Timestamp when the message was created
	Timestamp time.Time `json:"timestamp"`
	// CorrelationID links a response to its call
	CorrelationID string `json:"correlation_id,omitempty"`
	// Payload contains the actual message data as JSON
	Payload json.RawMessage `json:"payload"`
}

// NewMessage creates a new message with the given parameters.
func NewMessage(msgType MessageType, source string, payload interface{}) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		ID:        GenerateMessageID(),
		Type:      msgType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Payload:   payloadBytes,
	}, nil
}

// NewResponse creates a response correlated with call.
func NewResponse(call *Message, source string, payload interface{}) (*Message, error) {
	msg, err := NewMessage(MessageTypeResponse, source, payload)
	if err != nil {
		return nil, err
	}
	if call != nil {
		msg.CorrelationID = call.ID
	}
	return msg, nil
}

// UnmarshalPayload deserializes the payload into the provided structure.
func (m *Message) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}

// CallMessage invokes a module method with positional parameters.
type CallMessage struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params,omitempty"`
}

// EventMessage represents an event notification. Data is a mapping, a scalar or nil.
type EventMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// ResponseMessage represents a response to a call.
type ResponseMessage struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// SpecMessage advertises a module's methods and events.
type SpecMessage struct {
	Module  string   `json:"module"`
	Version int      `json:"version"`
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// GenerateMessageID generates a unique message ID.
func GenerateMessageID() string {
	return uuid.NewString()
}
