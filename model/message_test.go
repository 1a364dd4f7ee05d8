package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMessage_TableName(t *testing.T) {
	msg := Message{}
	assert.Equal(t, "servicebus_message", msg.TableName())
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("order-created", []byte(`{"id":1}`))

	assert.Equal(t, int64(0), msg.ID)
	assert.Empty(t, msg.QueuePath)
	assert.Equal(t, "order-created", msg.Label)
	assert.Equal(t, []byte(`{"id":1}`), msg.Body)
	assert.WithinDuration(t, time.Now(), msg.CreatedAt, time.Second)
}

func TestMessage_Copy(t *testing.T) {
	original := Message{
		ID:            42,
		QueuePath:     `.\private$\orders`,
		Label:         "label",
		CorrelationID: "corr-1",
		Body:          []byte("payload"),
	}

	cp := original.Copy()

	assert.Equal(t, int64(0), cp.ID)
	assert.Empty(t, cp.QueuePath)
	assert.Equal(t, "label", cp.Label)
	assert.Equal(t, "corr-1", cp.CorrelationID)
	assert.Equal(t, []byte("payload"), cp.Body)

	// Body must not alias the original
	cp.Body[0] = 'X'
	assert.Equal(t, []byte("payload"), original.Body)
}

func TestMessage_SizeAndEmpty(t *testing.T) {
	assert.True(t, Message{}.IsEmpty())
	assert.Equal(t, 0, Message{}.Size())

	msg := NewMessage("", []byte("abc"))
	assert.False(t, msg.IsEmpty())
	assert.Equal(t, 3, msg.Size())
}
