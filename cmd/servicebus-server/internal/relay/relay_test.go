package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/servicebus"
	"github.com/coregx/servicebus/adapters/memory"
)

func TestWebhook_Handle(t *testing.T) {
	var (
		gotBody        []byte
		gotContentType string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, time.Second, nil)
	require.NoError(t, w.Handle(context.Background(), json.RawMessage(`{"id":1}`)))

	assert.JSONEq(t, `{"id":1}`, string(gotBody))
	assert.Equal(t, "application/json", gotContentType)
}

func TestWebhook_NonSuccessStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"Redirect", http.StatusFound},
		{"Client error", http.StatusBadRequest},
		{"Server error", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			w := NewWebhook(srv.URL, time.Second, nil)
			err := w.Handle(context.Background(), json.RawMessage(`{}`))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "status")
		})
	}
}

func TestWebhook_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	w := NewWebhook(url, 200*time.Millisecond, nil)
	assert.Error(t, w.Handle(context.Background(), json.RawMessage(`{}`)))
}

func TestNewSubscriber_RelaysAndDeadLetters(t *testing.T) {
	ctx := context.Background()

	var (
		mu    sync.Mutex
		calls int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		calls++
		mu.Unlock()
		if string(body) == `{"fail":true}` {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := memory.New()
	sub, err := NewSubscriber(ctx, tr, Config{
		Queue:       "orders",
		WebhookURL:  srv.URL,
		ErrorQueue:  "orders.failed",
		MaxAttempts: 2,
		Timeout:     time.Second,
		AutoCreate:  true,
	}, &servicebus.NoopLogger{})
	require.NoError(t, err)
	defer sub.Close(ctx)

	pub, err := servicebus.NewPublisher[json.RawMessage](ctx, tr, "orders")
	require.NoError(t, err)
	defer pub.Close(ctx)

	require.NoError(t, pub.Send(ctx, json.RawMessage(`{"fail":true}`)))
	require.NoError(t, pub.Send(ctx, json.RawMessage(`{"ok":true}`)))
	require.NoError(t, sub.Start(ctx))

	require.Eventually(t, func() bool {
		return tr.Len(`.\private$\orders`) == 0 && tr.Len(`.\private$\orders.failed`) == 1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, calls, "two attempts for the failing message, one for the other")
}

func TestNewSubscriber_InvalidConfig(t *testing.T) {
	_, err := NewSubscriber(context.Background(), memory.New(), Config{
		Queue:       "orders",
		WebhookURL:  "http://localhost",
		ErrorQueue:  "orders.failed",
		Pause:       time.Second,
		MaxAttempts: 1,
		AutoCreate:  true,
	}, &servicebus.NoopLogger{})
	require.Error(t, err)
	assert.True(t, servicebus.HasCode(err, servicebus.ErrCodeConfiguration))
}
