package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/servicebus"
	"github.com/coregx/servicebus/model"
)

const ordersPath = `.\private$\orders`

func newQueue(t *testing.T, tr *Transport, path string, transactional bool) *servicebus.QueueHandle {
	t.Helper()

	_, err := tr.Create(context.Background(), path, transactional)
	require.NoError(t, err)

	h, err := tr.Open(context.Background(), path, false, false)
	require.NoError(t, err)
	return h
}

func TestTransport_CreateAndExists(t *testing.T) {
	ctx := context.Background()
	tr := New()

	exists, err := tr.Exists(ctx, ordersPath)
	require.NoError(t, err)
	assert.False(t, exists)

	h, err := tr.Create(ctx, ordersPath, true)
	require.NoError(t, err)
	assert.Equal(t, "orders", h.Name)
	assert.True(t, h.Transactional)

	exists, err = tr.Exists(ctx, `.\PRIVATE$\Orders`)
	require.NoError(t, err)
	assert.True(t, exists, "paths are case-insensitive")

	_, err = tr.Create(ctx, ordersPath, false)
	assert.True(t, servicebus.HasCode(err, servicebus.ErrCodeQueueExists))
}

func TestTransport_OpenMissing(t *testing.T) {
	_, err := New().Open(context.Background(), ordersPath, false, false)
	assert.True(t, servicebus.HasCode(err, servicebus.ErrCodeQueueNotFound))
}

func TestTransport_ExclusiveRead(t *testing.T) {
	ctx := context.Background()
	tr := New()
	_, err := tr.Create(ctx, ordersPath, false)
	require.NoError(t, err)

	first, err := tr.Open(ctx, ordersPath, true, false)
	require.NoError(t, err)

	_, err = tr.Open(ctx, ordersPath, true, false)
	assert.True(t, servicebus.HasCode(err, servicebus.ErrCodeQueueLocked))

	shared, err := tr.Open(ctx, ordersPath, false, false)
	require.NoError(t, err, "shared opens are not blocked by the exclusive reader")
	require.NoError(t, tr.Close(ctx, shared))

	require.NoError(t, tr.Close(ctx, first))

	_, err = tr.Open(ctx, ordersPath, true, false)
	assert.NoError(t, err)
}

func TestTransport_SendReceiveFIFO(t *testing.T) {
	ctx := context.Background()
	tr := New()
	h := newQueue(t, tr, ordersPath, false)

	for _, body := range []string{"1", "2", "3"} {
		require.NoError(t, tr.Send(ctx, h, model.NewMessage("", []byte(body)), servicebus.TransactionNone))
	}
	assert.Equal(t, 3, tr.Len(ordersPath))

	for _, want := range []string{"1", "2", "3"} {
		msg, err := tr.Receive(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, want, string(msg.Body))
		assert.Equal(t, ordersPath, msg.QueuePath)
		assert.NotZero(t, msg.ID)
	}

	_, err := tr.Receive(ctx, h)
	assert.True(t, servicebus.IsNoData(err))
}

func TestTransport_PeekIsNonDestructive(t *testing.T) {
	ctx := context.Background()
	tr := New()
	h := newQueue(t, tr, ordersPath, false)

	require.NoError(t, tr.Send(ctx, h, model.NewMessage("label", []byte("x")), servicebus.TransactionNone))

	first, err := tr.Peek(ctx, h)
	require.NoError(t, err)
	second, err := tr.Peek(ctx, h)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "label", first.Label)
	assert.Equal(t, 1, tr.Len(ordersPath))
}

func TestTransport_PeekBlocksUntilSend(t *testing.T) {
	ctx := context.Background()
	tr := New()
	h := newQueue(t, tr, ordersPath, false)

	result := make(chan model.Message, 1)
	go func() {
		msg, err := tr.Peek(ctx, h)
		if err == nil {
			result <- msg
		}
	}()

	select {
	case <-result:
		t.Fatal("peek returned before a message was sent")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, tr.Send(ctx, h, model.NewMessage("", []byte("late")), servicebus.TransactionNone))

	select {
	case msg := <-result:
		assert.Equal(t, "late", string(msg.Body))
	case <-time.After(time.Second):
		t.Fatal("peek did not observe the send")
	}
}

func TestTransport_PeekHonoursCancellation(t *testing.T) {
	tr := New()
	h := newQueue(t, tr, ordersPath, false)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := tr.Peek(ctx, h)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTransport_MaxQueueSize(t *testing.T) {
	ctx := context.Background()
	tr := New()
	h := newQueue(t, tr, ordersPath, false)

	require.NoError(t, tr.Configure(ctx, h, servicebus.QueueProperties{Label: "Orders", MaxSizeKB: 1}))
	assert.Equal(t, int64(1), h.MaxSizeKB)
	assert.Equal(t, "Orders", h.Label)

	require.NoError(t, tr.Send(ctx, h, model.NewMessage("", make([]byte, 1000)), servicebus.TransactionNone))

	err := tr.Send(ctx, h, model.NewMessage("", make([]byte, 100)), servicebus.TransactionNone)
	assert.True(t, servicebus.HasCode(err, servicebus.ErrCodeQueueFull))

	_, err = tr.Receive(ctx, h)
	require.NoError(t, err)
	assert.NoError(t, tr.Send(ctx, h, model.NewMessage("", make([]byte, 100)), servicebus.TransactionNone))
}

func TestTransport_Permissions(t *testing.T) {
	ctx := context.Background()
	tr := New()
	h := newQueue(t, tr, ordersPath, false)

	require.NoError(t, tr.SetPermissions(ctx, h, "Everyone", model.RightGenericRead|model.RightGenericWrite))

	perms := tr.Permissions(ordersPath)
	require.Len(t, perms, 1)
	assert.Equal(t, "Everyone", perms[0].Principal)
	assert.True(t, perms[0].Rights.Has(model.RightGenericWrite))
}

func TestTransport_Refresh(t *testing.T) {
	ctx := context.Background()
	tr := New()
	h := newQueue(t, tr, ordersPath, false)
	other, err := tr.Open(ctx, ordersPath, false, false)
	require.NoError(t, err)

	require.NoError(t, tr.Configure(ctx, other, servicebus.QueueProperties{Label: "renamed"}))
	assert.Empty(t, h.Label)

	require.NoError(t, tr.Refresh(ctx, h))
	assert.Equal(t, "renamed", h.Label)

	require.NoError(t, tr.Delete(ctx, ordersPath))
	assert.True(t, servicebus.HasCode(tr.Refresh(ctx, h), servicebus.ErrCodeQueueNotFound))
}

func TestTransport_BodyIsCopied(t *testing.T) {
	ctx := context.Background()
	tr := New()
	h := newQueue(t, tr, ordersPath, false)

	body := []byte("original")
	require.NoError(t, tr.Send(ctx, h, model.NewMessage("", body), servicebus.TransactionNone))
	body[0] = 'X'

	msg, err := tr.Peek(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, "original", string(msg.Body))
}

func TestTransport_ConcurrentSends(t *testing.T) {
	ctx := context.Background()
	tr := New()
	h := newQueue(t, tr, ordersPath, false)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = tr.Send(ctx, h, model.NewMessage("", []byte("x")), servicebus.TransactionSingle)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, tr.Len(ordersPath))
}

func TestTransport_DepthAndQueues(t *testing.T) {
	ctx := context.Background()
	tr := New()
	h := newQueue(t, tr, ordersPath, false)
	newQueue(t, tr, `.\private$\billing`, true)

	require.NoError(t, tr.Send(ctx, h, model.NewMessage("", []byte("x")), servicebus.TransactionNone))

	depth, err := tr.Depth(ctx, ordersPath)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)

	_, err = tr.Depth(ctx, `.\private$\missing`)
	assert.True(t, servicebus.HasCode(err, servicebus.ErrCodeQueueNotFound))

	queues, err := tr.Queues(ctx)
	require.NoError(t, err)
	require.Len(t, queues, 2)
	assert.Equal(t, `.\private$\billing`, queues[0].Path)
	assert.True(t, queues[0].Transactional)
}
