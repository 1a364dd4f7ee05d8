package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/servicebus"
	"github.com/coregx/servicebus/adapters/memory"
)

type testServer struct {
	router    http.Handler
	transport *memory.Transport
	manager   *servicebus.SubscriptionManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	tr := memory.New()
	for _, name := range []string{"orders", "billing", "shipping"} {
		h, err := servicebus.CreateQueue(ctx, tr, name)
		require.NoError(t, err)
		require.NoError(t, tr.Close(ctx, h))
	}

	pub, err := servicebus.NewPublisher[json.RawMessage](ctx, tr, "orders",
		servicebus.WithExtraQueues("billing", "shipping"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close(ctx) })

	manager, err := servicebus.NewSubscriptionManager()
	require.NoError(t, err)

	sub, err := servicebus.NewSubscriber(ctx, tr, "shipping", func(context.Context, json.RawMessage) error {
		return nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close(ctx) })
	require.NoError(t, manager.Register("shipping", sub))

	logger := &servicebus.NoopLogger{}
	handler := NewHandler(pub, tr, manager, logger, "test")

	return &testServer{
		router:    NewRouter(handler, logger),
		transport: tr,
		manager:   manager,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestHandlePublish(t *testing.T) {
	s := newTestServer(t)

	rec, resp := s.do(t, http.MethodPost, "/api/v1/publish", map[string]interface{}{
		"pattern": "*ing",
		"label":   "order.created",
		"data":    map[string]int{"id": 7},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, true, resp["success"])

	data := resp["data"].(map[string]interface{})
	assert.ElementsMatch(t, []interface{}{"billing", "shipping"}, data["queues"])

	assert.Equal(t, 0, s.transport.Len(`.\private$\orders`))
	require.Equal(t, 1, s.transport.Len(`.\private$\billing`))
	msg := s.transport.Messages(`.\private$\billing`)[0]
	assert.Equal(t, "order.created", msg.Label)
	assert.JSONEq(t, `{"id":7}`, string(msg.Body))
}

func TestHandlePublish_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		body   interface{}
		status int
		code   string
	}{
		{"Invalid JSON", "{", http.StatusBadRequest, "INVALID_JSON"},
		{"Missing data", map[string]string{"pattern": "*"}, http.StatusBadRequest, servicebus.ErrCodeValidation},
		{"No matching queue", map[string]interface{}{"pattern": "refunds", "data": 1}, http.StatusUnprocessableEntity, servicebus.ErrCodePatternMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := s.do(t, http.MethodPost, "/api/v1/publish", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, resp["code"])
		})
	}
}

func TestHandleQueues(t *testing.T) {
	s := newTestServer(t)

	rec, resp := s.do(t, http.MethodPost, "/api/v1/queues", CreateQueueRequest{
		Name:          "ledger",
		Transactional: true,
		Description:   "Ledger entries",
		MaxSizeKB:     64,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	data := resp["data"].(map[string]interface{})
	assert.Equal(t, `.\private$\ledger`, data["path"])
	assert.Equal(t, true, data["transactional"])
	assert.Equal(t, "Ledger entries", data["label"])
	assert.Equal(t, float64(64), data["maxSizeKB"])

	rec, resp = s.do(t, http.MethodPost, "/api/v1/queues", CreateQueueRequest{Name: "ledger"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, servicebus.ErrCodeQueueExists, resp["code"])

	rec, _ = s.do(t, http.MethodPost, "/api/v1/queues", CreateQueueRequest{Name: "", MaxSizeKB: -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = s.do(t, http.MethodGet, "/api/v1/queues/billing", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "billing", resp["data"].(map[string]interface{})["name"])

	rec, resp = s.do(t, http.MethodGet, "/api/v1/queues/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, servicebus.ErrCodeQueueNotFound, resp["code"])
}

func TestHandleQueues_Depth(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodPost, "/api/v1/publish", map[string]interface{}{"pattern": "orders", "data": "x"})
	require.Equal(t, http.StatusCreated, rec.Code)

	_, resp := s.do(t, http.MethodGet, "/api/v1/queues/orders", nil)
	assert.Equal(t, float64(1), resp["data"].(map[string]interface{})["depth"])
}

func TestHandleSubscribers(t *testing.T) {
	s := newTestServer(t)

	rec, resp := s.do(t, http.MethodGet, "/api/v1/subscribers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := resp["data"].([]interface{})
	require.Len(t, list, 1)
	assert.Equal(t, "stopped", list[0].(map[string]interface{})["status"])

	rec, resp = s.do(t, http.MethodPost, "/api/v1/subscribers/shipping/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "started", resp["data"].(map[string]interface{})["status"])

	rec, resp = s.do(t, http.MethodPost, "/api/v1/subscribers/shipping/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, servicebus.ErrCodeInvalidState, resp["code"])

	rec, _ = s.do(t, http.MethodPost, "/api/v1/publish", map[string]interface{}{"pattern": "shipping", "data": 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Eventually(t, func() bool {
		return s.transport.Len(`.\private$\shipping`) == 0
	}, 2*time.Second, 5*time.Millisecond, "the started subscriber consumes")

	rec, resp = s.do(t, http.MethodPost, "/api/v1/subscribers/shipping/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stopped", resp["data"].(map[string]interface{})["status"])

	rec, resp = s.do(t, http.MethodPost, "/api/v1/subscribers/missing/start", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, servicebus.ErrCodeNoData, resp["code"])
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)

	rec, resp := s.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "healthy", data["status"])
	assert.Equal(t, "test", data["version"])
	assert.Equal(t, map[string]interface{}{"shipping": "stopped"}, data["subscribers"])
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(t, http.MethodGet, "/api/v1/publish", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{servicebus.NewError(servicebus.ErrCodeValidation, "x"), http.StatusBadRequest},
		{servicebus.NewError(servicebus.ErrCodeQueueNotFound, "x"), http.StatusNotFound},
		{servicebus.NewError(servicebus.ErrCodeQueueLocked, "x"), http.StatusConflict},
		{servicebus.NewError(servicebus.ErrCodePatternMismatch, "x"), http.StatusUnprocessableEntity},
		{servicebus.NewError(servicebus.ErrCodeQueueFull, "x"), http.StatusInsufficientStorage},
		{servicebus.NewError(servicebus.ErrCodeDatabase, "x"), http.StatusInternalServerError},
		{assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		status, _ := statusFor(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}
