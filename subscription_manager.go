package servicebus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"
)

// SubscriptionManager handles the lifecycle of a set of named subscribers.
// It provides high-level operations for registering subscribers and starting,
// stopping and inspecting them together.
//
// Key operations:
//   - Register: Add a subscriber under a unique name
//   - Unregister: Stop and remove a subscriber
//   - StartAll / StopAll: Drive every registered subscriber
//   - Statuses: Snapshot of every subscriber's state
//
// Thread safety: Safe for concurrent use.
type SubscriptionManager struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	logger      Logger
}

// SubscriptionManagerOption is a function that configures a SubscriptionManager.
// Used with the Options Pattern for flexible service construction.
type SubscriptionManagerOption func(*SubscriptionManager) error

// NewSubscriptionManager creates a new SubscriptionManager with the provided options.
//
// Example:
//
//	manager, err := servicebus.NewSubscriptionManager(
//	    servicebus.WithSubscriptionManagerLogger(logger),
//	)
func NewSubscriptionManager(opts ...SubscriptionManagerOption) (*SubscriptionManager, error) {
	sm := &SubscriptionManager{
		subscribers: make(map[string]*Subscriber),
		logger:      &NoopLogger{},
	}

	for _, opt := range opts {
		if err := opt(sm); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply subscription manager option", err)
		}
	}

	return sm, nil
}

// WithSubscriptionManagerLogger sets the logger instance for the subscription manager.
func WithSubscriptionManagerLogger(logger Logger) SubscriptionManagerOption {
	return func(sm *SubscriptionManager) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		sm.logger = logger
		return nil
	}
}

// Register adds a subscriber under name.
// Returns ErrCodeValidation if the name is blank or already registered.
func (sm *SubscriptionManager) Register(name string, s *Subscriber) error {
	if strings.TrimSpace(name) == "" {
		return NewError(ErrCodeValidation, "subscriber name is required")
	}
	if s == nil {
		return NewError(ErrCodeValidation, "subscriber is required")
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, ok := sm.subscribers[name]; ok {
		return NewError(ErrCodeValidation, fmt.Sprintf("subscriber already registered: %s", name))
	}

	sm.subscribers[name] = s
	sm.logger.Infof("Subscriber registered: name=%s, queue=%s", name, s.QueuePath())
	return nil
}

// Unregister stops the named subscriber and removes it from the manager.
// The subscriber's queue handles stay open; call Close on it to release them.
func (sm *SubscriptionManager) Unregister(name string) error {
	sm.mu.Lock()
	s, ok := sm.subscribers[name]
	delete(sm.subscribers, name)
	sm.mu.Unlock()

	if !ok {
		return NewError(ErrCodeNoData, fmt.Sprintf("subscriber not found: %s", name))
	}

	if err := s.Stop(); err != nil {
		return err
	}

	sm.logger.Infof("Subscriber unregistered: name=%s", name)
	return nil
}

// Get returns the named subscriber.
func (sm *SubscriptionManager) Get(name string) (*Subscriber, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	s, ok := sm.subscribers[name]
	if !ok {
		return nil, NewError(ErrCodeNoData, fmt.Sprintf("subscriber not found: %s", name))
	}
	return s, nil
}

// Names returns the registered subscriber names in sorted order.
func (sm *SubscriptionManager) Names() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	names := lo.Keys(sm.subscribers)
	sort.Strings(names)
	return names
}

// StartAll starts every stopped or paused subscriber.
// Subscribers already running are skipped. Errors are joined.
func (sm *SubscriptionManager) StartAll(ctx context.Context) error {
	var errs []error

	for _, name := range sm.Names() {
		s, err := sm.Get(name)
		if err != nil {
			continue
		}

		switch s.Status() {
		case StatusStopped, StatusPaused:
		default:
			continue
		}

		if err := s.Start(ctx); err != nil {
			sm.logger.Errorf("Failed to start subscriber %s: %v", name, err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

// StopAll stops every registered subscriber, waiting for in-flight messages.
func (sm *SubscriptionManager) StopAll() error {
	var errs []error

	for _, name := range sm.Names() {
		s, err := sm.Get(name)
		if err != nil {
			continue
		}
		if err := s.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

// Statuses returns the current status of every registered subscriber.
func (sm *SubscriptionManager) Statuses() map[string]Status {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return lo.MapValues(sm.subscribers, func(s *Subscriber, _ string) Status {
		return s.Status()
	})
}
