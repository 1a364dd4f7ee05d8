package servicebus_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coregx/servicebus"
	"github.com/coregx/servicebus/adapters/memory"
	"github.com/coregx/servicebus/model"
)

// sendRecord is one Send observed by recordingTransport.
type sendRecord struct {
	Path  string
	Label string
	Mode  servicebus.TransactionMode
	Msg   model.Message
}

// recordingTransport wraps the memory transport, records sends and injects failures.
type recordingTransport struct {
	*memory.Transport

	mu          sync.Mutex
	sends       []sendRecord
	peeks       int
	sendErr     map[string]error
	peekErr     error
	peekErrLeft int
	refreshErr  error
	receiveErr  error
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{
		Transport: memory.New(),
		sendErr:   map[string]error{},
	}
}

func (r *recordingTransport) Send(ctx context.Context, h *servicebus.QueueHandle, msg model.Message, mode servicebus.TransactionMode) error {
	r.mu.Lock()
	err := r.sendErr[h.Name]
	if err == nil {
		r.sends = append(r.sends, sendRecord{Path: h.Path, Label: msg.Label, Mode: mode, Msg: msg})
	}
	r.mu.Unlock()

	if err != nil {
		return err
	}
	return r.Transport.Send(ctx, h, msg, mode)
}

func (r *recordingTransport) Peek(ctx context.Context, h *servicebus.QueueHandle) (model.Message, error) {
	r.mu.Lock()
	r.peeks++
	if r.peekErrLeft > 0 {
		r.peekErrLeft--
		err := r.peekErr
		r.mu.Unlock()
		return model.Message{}, err
	}
	r.mu.Unlock()

	return r.Transport.Peek(ctx, h)
}

func (r *recordingTransport) Receive(ctx context.Context, h *servicebus.QueueHandle) (model.Message, error) {
	r.mu.Lock()
	err := r.receiveErr
	r.mu.Unlock()

	if err != nil {
		return model.Message{}, err
	}
	return r.Transport.Receive(ctx, h)
}

func (r *recordingTransport) Refresh(ctx context.Context, h *servicebus.QueueHandle) error {
	r.mu.Lock()
	err := r.refreshErr
	r.mu.Unlock()

	if err != nil {
		return err
	}
	return r.Transport.Refresh(ctx, h)
}

func (r *recordingTransport) failSends(queueName string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendErr[queueName] = err
}

func (r *recordingTransport) failPeeks(n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peekErrLeft = n
	r.peekErr = err
}

func (r *recordingTransport) failRefresh(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshErr = err
}

func (r *recordingTransport) recorded() []sendRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sendRecord(nil), r.sends...)
}

func (r *recordingTransport) peekCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peeks
}

func (r *recordingTransport) sentTo(path string) []sendRecord {
	var out []sendRecord
	for _, s := range r.recorded() {
		if s.Path == path {
			out = append(out, s)
		}
	}
	return out
}

// createQueues creates private queues on the transport.
func createQueues(t *testing.T, tr servicebus.Transport, transactional bool, names ...string) {
	t.Helper()

	for _, name := range names {
		var opts []servicebus.QueueOption
		if transactional {
			opts = append(opts, servicebus.AsTransactional())
		}
		h, err := servicebus.CreateQueue(context.Background(), tr, name, opts...)
		require.NoError(t, err)
		require.NoError(t, tr.Close(context.Background(), h))
	}
}

// enqueue sends a JSON-encoded value to the named queue.
func enqueue(t *testing.T, tr servicebus.Transport, name string, v any) {
	t.Helper()

	ctx := context.Background()
	h, err := servicebus.RetrieveQueue(ctx, tr, name)
	require.NoError(t, err)

	msg := model.NewMessage("", nil)
	require.NoError(t, servicebus.JSONCodec{}.Write(&msg, v))
	require.NoError(t, tr.Send(ctx, h, msg, servicebus.TransactionNone))
	require.NoError(t, tr.Close(ctx, h))
}

// path returns the local private path of a queue name.
func path(name string) string {
	return servicebus.FormatPath(name)
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, cond func() bool, msgAndArgs ...interface{}) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msgAndArgs...)
}

// memLogger collects log lines for assertions.
type memLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *memLogger) add(level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+fmt.Sprintf(format, args...))
}

func (l *memLogger) Tracef(format string, args ...interface{}) { l.add("TRACE", format, args...) }
func (l *memLogger) Debugf(format string, args ...interface{}) { l.add("DEBUG", format, args...) }
func (l *memLogger) Infof(format string, args ...interface{})  { l.add("INFO", format, args...) }
func (l *memLogger) Warnf(format string, args ...interface{})  { l.add("WARN", format, args...) }
func (l *memLogger) Errorf(format string, args ...interface{}) { l.add("ERROR", format, args...) }
func (l *memLogger) Info(message string)                       { l.add("INFO", "%s", message) }

func (l *memLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, line := range l.lines {
		if len(line) > len(level) && line[:len(level)+1] == level+" " {
			n++
		}
	}
	return n
}

var errBoom = errors.New("boom")
