package model

import "time"

// Message represents a message stored in a queue.
// The queue assigns ID on send; messages are read back in ascending ID order (FIFO).
//
// A message published to several queues is stored once per queue. All copies share
// the CorrelationID generated by the publisher, and a copy forwarded to an error queue
// keeps it as well.
type Message struct {
	ID            int64     `json:"id" db:"id"`                        // Queue-assigned message ID
	QueuePath     string    `json:"queuePath" db:"queue_path"`         // Path of the owning queue
	Label         string    `json:"label" db:"label"`                  // Optional label
	CorrelationID string    `json:"correlationID" db:"correlation_id"` // Shared by fan-out copies
	Body          []byte    `json:"body" db:"body"`                    // Encoded payload
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`         // Enqueue time
}

// TableName returns the database table name for Message.
func (m Message) TableName() string {
	return tablePrefix + "message"
}

// NewMessage creates a message with the given label and encoded body.
// QueuePath and ID are assigned by the transport on send.
func NewMessage(label string, body []byte) Message {
	return Message{
		Label:     label,
		Body:      body,
		CreatedAt: time.Now(),
	}
}

// Copy returns a message with the same label, correlation ID and a private copy of
// the body. ID and QueuePath are cleared so the copy can be sent to another queue.
func (m Message) Copy() Message {
	body := make([]byte, len(m.Body))
	copy(body, m.Body)

	return Message{
		Label:         m.Label,
		CorrelationID: m.CorrelationID,
		Body:          body,
		CreatedAt:     time.Now(),
	}
}

// Size returns the body size in bytes.
func (m Message) Size() int {
	return len(m.Body)
}

// IsEmpty reports whether the message carries no body.
func (m Message) IsEmpty() bool {
	return len(m.Body) == 0
}
