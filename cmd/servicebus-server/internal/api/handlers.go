// Package api provides HTTP handlers for the servicebus server REST API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/samber/lo"

	"github.com/coregx/servicebus"
)

// Publisher is the publishing side of the API.
type Publisher interface {
	SendTo(ctx context.Context, msg json.RawMessage, label, pattern string) error
	Resolve(pattern string) []*servicebus.QueueHandle
}

// Transport is a servicebus.Transport that reports queue depth.
type Transport interface {
	servicebus.Transport
	Depth(ctx context.Context, path string) (int64, error)
}

// Handler holds dependencies for API handlers.
type Handler struct {
	publisher Publisher
	transport Transport
	manager   *servicebus.SubscriptionManager
	logger    servicebus.Logger
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(
	publisher Publisher,
	transport Transport,
	manager *servicebus.SubscriptionManager,
	logger servicebus.Logger,
	version string,
) *Handler {
	return &Handler{
		publisher: publisher,
		transport: transport,
		manager:   manager,
		logger:    logger,
		version:   version,
	}
}

// PublishRequest represents a publish message request.
// An empty pattern publishes to every destination.
type PublishRequest struct {
	Pattern string          `json:"pattern"`
	Label   string          `json:"label"`
	Data    json.RawMessage `json:"data"`
}

// Validate checks the publish request.
func (r PublishRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Pattern, validation.Length(0, servicebus.MaxPathLength)),
		validation.Field(&r.Label, validation.Length(0, 250)),
		validation.Field(&r.Data, validation.Required),
	)
}

// PublishResponse lists the queues a message was published to.
type PublishResponse struct {
	Queues []string `json:"queues"`
}

// CreateQueueRequest represents a queue creation request.
type CreateQueueRequest struct {
	Name          string `json:"name"`
	Transactional bool   `json:"transactional"`
	Description   string `json:"description"`
	MaxSizeKB     int64  `json:"maxSizeKB"`
}

// Validate checks the queue creation request.
func (r CreateQueueRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, servicebus.MaxPathLength)),
		validation.Field(&r.MaxSizeKB, validation.Min(int64(0))),
	)
}

// QueueResponse describes a queue.
type QueueResponse struct {
	Path          string `json:"path"`
	Name          string `json:"name"`
	Transactional bool   `json:"transactional"`
	Label         string `json:"label"`
	MaxSizeKB     int64  `json:"maxSizeKB"`
	Depth         int64  `json:"depth"`
}

// SubscriberResponse describes a registered subscriber.
type SubscriberResponse struct {
	Name     string `json:"name"`
	Queue    string `json:"queue"`
	Status   string `json:"status"`
	Failures int    `json:"failures"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse represents a success response.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// HandlePublish handles POST /api/v1/publish
func (h *Handler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), servicebus.ErrCodeValidation)
		return
	}

	if err := h.publisher.SendTo(r.Context(), req.Data, req.Label, req.Pattern); err != nil {
		h.logger.Errorf("Failed to publish message: %v", err)
		h.respondServiceError(w, err, "Failed to publish message")
		return
	}

	queues := lo.Map(h.publisher.Resolve(req.Pattern), func(q *servicebus.QueueHandle, _ int) string {
		return q.Name
	})
	h.respondSuccess(w, http.StatusCreated, PublishResponse{Queues: queues}, "Message published successfully")
}

// HandleCreateQueue handles POST /api/v1/queues
func (h *Handler) HandleCreateQueue(w http.ResponseWriter, r *http.Request) {
	var req CreateQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), servicebus.ErrCodeValidation)
		return
	}

	var opts []servicebus.QueueOption
	if req.Transactional {
		opts = append(opts, servicebus.AsTransactional())
	}
	if req.Description != "" {
		opts = append(opts, servicebus.WithDescription(req.Description))
	}
	if req.MaxSizeKB > 0 {
		opts = append(opts, servicebus.WithMaxQueueSize(req.MaxSizeKB))
	}

	queue, err := servicebus.CreateQueue(r.Context(), h.transport, req.Name, opts...)
	if err != nil {
		h.logger.Errorf("Failed to create queue %s: %v", req.Name, err)
		h.respondServiceError(w, err, "Failed to create queue")
		return
	}
	defer h.closeQueue(r.Context(), queue)

	h.respondSuccess(w, http.StatusCreated, h.describe(r.Context(), queue), "Queue created successfully")
}

// HandleGetQueue handles GET /api/v1/queues/{name}
func (h *Handler) HandleGetQueue(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	queue, err := servicebus.RetrieveQueue(r.Context(), h.transport, name)
	if err != nil {
		h.respondServiceError(w, err, "Failed to retrieve queue")
		return
	}
	defer h.closeQueue(r.Context(), queue)

	h.respondSuccess(w, http.StatusOK, h.describe(r.Context(), queue), "")
}

// HandleListSubscribers handles GET /api/v1/subscribers
func (h *Handler) HandleListSubscribers(w http.ResponseWriter, _ *http.Request) {
	subscribers := make([]SubscriberResponse, 0)
	for _, name := range h.manager.Names() {
		s, err := h.manager.Get(name)
		if err != nil {
			continue
		}
		subscribers = append(subscribers, subscriberResponse(name, s))
	}

	h.respondSuccess(w, http.StatusOK, subscribers, "")
}

// HandleStartSubscriber handles POST /api/v1/subscribers/{name}/start
func (h *Handler) HandleStartSubscriber(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	s, err := h.manager.Get(name)
	if err != nil {
		h.respondServiceError(w, err, "Subscriber not found")
		return
	}

	if err := s.Start(context.WithoutCancel(r.Context())); err != nil {
		h.logger.Errorf("Failed to start subscriber %s: %v", name, err)
		h.respondServiceError(w, err, "Failed to start subscriber")
		return
	}

	h.respondSuccess(w, http.StatusOK, subscriberResponse(name, s), "Subscriber started")
}

// HandleStopSubscriber handles POST /api/v1/subscribers/{name}/stop
func (h *Handler) HandleStopSubscriber(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	s, err := h.manager.Get(name)
	if err != nil {
		h.respondServiceError(w, err, "Subscriber not found")
		return
	}

	if err := s.Stop(); err != nil {
		h.logger.Errorf("Failed to stop subscriber %s: %v", name, err)
		h.respondServiceError(w, err, "Failed to stop subscriber")
		return
	}

	h.respondSuccess(w, http.StatusOK, subscriberResponse(name, s), "Subscriber stopped")
}

// HandleHealth handles GET /api/v1/health
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	statuses := lo.MapValues(h.manager.Statuses(), func(s servicebus.Status, _ string) string {
		return s.String()
	})

	health := map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().UTC(),
		"version":     h.version,
		"subscribers": statuses,
	}

	h.respondSuccess(w, http.StatusOK, health, "")
}

func (h *Handler) describe(ctx context.Context, q *servicebus.QueueHandle) QueueResponse {
	depth, err := h.transport.Depth(ctx, q.Path)
	if err != nil {
		h.logger.Warnf("Failed to read depth of queue %s: %v", q.Path, err)
	}

	return QueueResponse{
		Path:          q.Path,
		Name:          q.Name,
		Transactional: q.Transactional,
		Label:         q.Label,
		MaxSizeKB:     q.MaxSizeKB,
		Depth:         depth,
	}
}

func (h *Handler) closeQueue(ctx context.Context, q *servicebus.QueueHandle) {
	if err := h.transport.Close(ctx, q); err != nil {
		h.logger.Warnf("Failed to close queue %s: %v", q.Path, err)
	}
}

func subscriberResponse(name string, s *servicebus.Subscriber) SubscriberResponse {
	return SubscriberResponse{
		Name:     name,
		Queue:    s.QueuePath(),
		Status:   s.Status().String(),
		Failures: s.Failures(),
	}
}

// statusFor maps a servicebus error code to an HTTP status.
func statusFor(err error) (int, string) {
	var sbErr *servicebus.Error
	if !errors.As(err, &sbErr) {
		return http.StatusInternalServerError, ""
	}

	switch sbErr.Code {
	case servicebus.ErrCodeValidation, servicebus.ErrCodeConfiguration:
		return http.StatusBadRequest, sbErr.Code
	case servicebus.ErrCodeNoData, servicebus.ErrCodeQueueNotFound:
		return http.StatusNotFound, sbErr.Code
	case servicebus.ErrCodeQueueExists, servicebus.ErrCodeQueueConflict,
		servicebus.ErrCodeQueueLocked, servicebus.ErrCodeInvalidState:
		return http.StatusConflict, sbErr.Code
	case servicebus.ErrCodePatternMismatch:
		return http.StatusUnprocessableEntity, sbErr.Code
	case servicebus.ErrCodeQueueFull:
		return http.StatusInsufficientStorage, sbErr.Code
	default:
		return http.StatusInternalServerError, sbErr.Code
	}
}

// respondServiceError sends an error response for a servicebus error.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error, fallback string) {
	status, code := statusFor(err)
	message := fallback
	if status != http.StatusInternalServerError {
		message = err.Error()
	}
	h.respondError(w, status, message, code)
}

// respondError sends an error response.
func (h *Handler) respondError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   message,
		Code:    code,
		Message: message,
	})
}

// respondSuccess sends a success response.
func (h *Handler) respondSuccess(w http.ResponseWriter, status int, data interface{}, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}
