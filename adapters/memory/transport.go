// Package memory provides an in-process implementation of servicebus.Transport.
//
// Queues live in memory for the lifetime of the Transport. Sends are atomic, so every
// transaction mode behaves the same. The package is used by tests and examples, and by
// applications that need the publisher and subscriber engines without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/coregx/servicebus"
	"github.com/coregx/servicebus/model"
)

var _ servicebus.Transport = (*Transport)(nil)

// Transport implements servicebus.Transport in memory.
//
// Thread safety: Safe for concurrent use.
type Transport struct {
	mu     sync.Mutex
	queues map[string]*queue
	nextID int64
}

type queue struct {
	info        model.Queue
	messages    []model.Message
	usedBytes   int64
	permissions []model.Permission
	locked      bool
	notify      chan struct{} // closed and replaced on every send
}

// New creates an empty in-memory transport.
func New() *Transport {
	return &Transport{
		queues: make(map[string]*queue),
	}
}

// Queue paths are case-insensitive.
func key(path string) string {
	return strings.ToLower(path)
}

func (t *Transport) find(path string) (*queue, error) {
	q, ok := t.queues[key(path)]
	if !ok {
		return nil, servicebus.NewError(servicebus.ErrCodeQueueNotFound, fmt.Sprintf("unable to locate queue: %s", path))
	}
	return q, nil
}

func handleFor(q *queue, exclusiveRead, cacheConnection bool) *servicebus.QueueHandle {
	return &servicebus.QueueHandle{
		Path:            q.info.Path,
		Name:            q.info.Name,
		Transactional:   q.info.Transactional,
		ExclusiveRead:   exclusiveRead,
		CacheConnection: cacheConnection,
		Label:           q.info.Label,
		MaxSizeKB:       q.info.MaxSizeKB,
	}
}

// Exists implements servicebus.Transport.Exists.
func (t *Transport) Exists(_ context.Context, path string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.queues[key(path)]
	return ok, nil
}

// Create implements servicebus.Transport.Create.
func (t *Transport) Create(_ context.Context, path string, transactional bool) (*servicebus.QueueHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.queues[key(path)]; ok {
		return nil, servicebus.NewError(servicebus.ErrCodeQueueExists, fmt.Sprintf("queue already exists: %s", path))
	}

	q := &queue{
		info:   model.NewQueue(path, servicebus.QueueNameFromPath(path), transactional),
		notify: make(chan struct{}),
	}
	t.nextID++
	q.info.ID = t.nextID
	t.queues[key(path)] = q

	return handleFor(q, false, false), nil
}

// SetPermissions implements servicebus.Transport.SetPermissions.
func (t *Transport) SetPermissions(_ context.Context, h *servicebus.QueueHandle, principal string, rights model.AccessRights) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	q, err := t.find(h.Path)
	if err != nil {
		return err
	}

	q.permissions = append(q.permissions, model.NewPermission(q.info.Path, principal, rights))
	return nil
}

// Open implements servicebus.Transport.Open.
func (t *Transport) Open(_ context.Context, path string, exclusiveRead, cacheConnection bool) (*servicebus.QueueHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	q, err := t.find(path)
	if err != nil {
		return nil, err
	}

	if exclusiveRead {
		if q.locked {
			return nil, servicebus.NewError(servicebus.ErrCodeQueueLocked,
				fmt.Sprintf("queue %s is already opened for exclusive read", path))
		}
		q.locked = true
	}

	return handleFor(q, exclusiveRead, cacheConnection), nil
}

// Configure implements servicebus.Transport.Configure.
func (t *Transport) Configure(_ context.Context, h *servicebus.QueueHandle, props servicebus.QueueProperties) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	q, err := t.find(h.Path)
	if err != nil {
		return err
	}

	q.info.Label = props.Label
	q.info.MaxSizeKB = props.MaxSizeKB
	q.info.Touch()

	h.Label = q.info.Label
	h.MaxSizeKB = q.info.MaxSizeKB
	return nil
}

// Peek implements servicebus.Transport.Peek.
// Blocks until the queue has a head message or ctx is done.
func (t *Transport) Peek(ctx context.Context, h *servicebus.QueueHandle) (model.Message, error) {
	for {
		t.mu.Lock()
		q, err := t.find(h.Path)
		if err != nil {
			t.mu.Unlock()
			return model.Message{}, err
		}
		if len(q.messages) > 0 {
			head := copyMessage(q.messages[0])
			t.mu.Unlock()
			return head, nil
		}
		notify := q.notify
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return model.Message{}, ctx.Err()
		case <-notify:
		}
	}
}

// Receive implements servicebus.Transport.Receive.
// Returns servicebus.ErrNoData if the queue is empty.
func (t *Transport) Receive(_ context.Context, h *servicebus.QueueHandle) (model.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	q, err := t.find(h.Path)
	if err != nil {
		return model.Message{}, err
	}
	if len(q.messages) == 0 {
		return model.Message{}, servicebus.ErrNoData
	}

	head := q.messages[0]
	q.messages[0] = model.Message{}
	q.messages = q.messages[1:]
	q.usedBytes -= int64(head.Size())

	return head, nil
}

// Send implements servicebus.Transport.Send.
// Sends are atomic, so the transaction mode is accepted but has no further effect.
func (t *Transport) Send(_ context.Context, h *servicebus.QueueHandle, msg model.Message, _ servicebus.TransactionMode) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	q, err := t.find(h.Path)
	if err != nil {
		return err
	}

	if !q.info.CanAccept(q.usedBytes, int64(msg.Size())) {
		return servicebus.NewErrorWithCause(servicebus.ErrCodeQueueFull,
			fmt.Sprintf("queue %s cannot accept %d bytes", q.info.Path, msg.Size()), model.ErrQueueFull)
	}

	stored := copyMessage(msg)
	t.nextID++
	stored.ID = t.nextID
	stored.QueuePath = q.info.Path

	q.messages = append(q.messages, stored)
	q.usedBytes += int64(stored.Size())

	close(q.notify)
	q.notify = make(chan struct{})
	return nil
}

// Refresh implements servicebus.Transport.Refresh.
func (t *Transport) Refresh(_ context.Context, h *servicebus.QueueHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	q, err := t.find(h.Path)
	if err != nil {
		return err
	}

	h.Name = q.info.Name
	h.Transactional = q.info.Transactional
	h.Label = q.info.Label
	h.MaxSizeKB = q.info.MaxSizeKB
	return nil
}

// Close implements servicebus.Transport.Close.
// Releases the exclusive-read lock held by h.
func (t *Transport) Close(_ context.Context, h *servicebus.QueueHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !h.ExclusiveRead {
		return nil
	}

	if q, ok := t.queues[key(h.Path)]; ok {
		q.locked = false
	}
	h.ExclusiveRead = false
	return nil
}

// Delete removes a queue and its messages.
func (t *Transport) Delete(_ context.Context, path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	q, err := t.find(path)
	if err != nil {
		return err
	}

	close(q.notify)
	delete(t.queues, key(path))
	return nil
}

// Len returns the number of messages stored in the queue at path.
func (t *Transport) Len(path string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	q, err := t.find(path)
	if err != nil {
		return 0
	}
	return len(q.messages)
}

// Messages returns a snapshot of the messages stored in the queue at path, head first.
func (t *Transport) Messages(path string) []model.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	q, err := t.find(path)
	if err != nil {
		return nil
	}

	out := make([]model.Message, len(q.messages))
	for i, m := range q.messages {
		out[i] = copyMessage(m)
	}
	return out
}

// Permissions returns the access control entries of the queue at path.
func (t *Transport) Permissions(path string) []model.Permission {
	t.mu.Lock()
	defer t.mu.Unlock()

	q, err := t.find(path)
	if err != nil {
		return nil
	}
	return append([]model.Permission(nil), q.permissions...)
}

func copyMessage(m model.Message) model.Message {
	out := m
	out.Body = append([]byte(nil), m.Body...)
	return out
}

// Depth returns the number of messages stored in the queue at path.
func (t *Transport) Depth(_ context.Context, path string) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	q, err := t.find(path)
	if err != nil {
		return 0, err
	}
	return int64(len(q.messages)), nil
}

// Queues returns every registered queue ordered by path.
func (t *Transport) Queues(_ context.Context) ([]model.Queue, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	queues := make([]model.Queue, 0, len(t.queues))
	for _, q := range t.queues {
		queues = append(queues, q.info)
	}
	sort.Slice(queues, func(i, j int) bool { return queues[i].Path < queues[j].Path })
	return queues, nil
}
