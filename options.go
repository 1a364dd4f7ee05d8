package servicebus

import (
	"fmt"
	"strings"
	"time"

	"github.com/coregx/servicebus/retry"
)

// PublisherOption configures a Publisher.
//
// Example:
//
//	publisher, err := servicebus.NewPublisher[OrderPlaced](ctx, transport, "orders",
//	    servicebus.WithExtraQueues("orders.audit", "billing"),
//	    servicebus.WithRoutingErrorQueue("orders.unrouted"),
//	    servicebus.WithPublisherLogger(logger),
//	)
type PublisherOption func(*PublisherSettings) error

// WithExtraQueues adds destination queues evaluated after the main queue, in order.
func WithExtraQueues(names ...string) PublisherOption {
	return func(s *PublisherSettings) error {
		for _, name := range names {
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("extra queue name cannot be empty")
			}
		}
		s.ExtraQueues = append(s.ExtraQueues, names...)
		return nil
	}
}

// WithRoutingErrorQueue sets the queue that receives messages no destination matched.
// Cannot be combined with WithIgnorePatternMismatch.
func WithRoutingErrorQueue(name string) PublisherOption {
	return func(s *PublisherSettings) error {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("routing error queue name cannot be empty")
		}
		s.RoutingErrorQueue = name
		return nil
	}
}

// WithIgnorePatternMismatch drops messages no destination matched instead of failing the send.
// Cannot be combined with WithRoutingErrorQueue.
func WithIgnorePatternMismatch() PublisherOption {
	return func(s *PublisherSettings) error {
		s.IgnorePatternMismatch = true
		return nil
	}
}

// WithAmbientTransactions enlists sends to transactional queues in the transaction
// carried by the context (see WithTransaction).
func WithAmbientTransactions() PublisherOption {
	return func(s *PublisherSettings) error {
		s.UseAmbientTransactions = true
		return nil
	}
}

// WithPublisherAutoCreateLocalQueues creates missing private queues instead of failing.
func WithPublisherAutoCreateLocalQueues() PublisherOption {
	return func(s *PublisherSettings) error {
		s.AutoCreateLocalQueues = true
		return nil
	}
}

// WithPublisherLogger sets the logger instance.
func WithPublisherLogger(logger Logger) PublisherOption {
	return func(s *PublisherSettings) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		s.Logger = logger
		return nil
	}
}

// WithPublisherCodec sets the message body codec. Default: JSONCodec.
func WithPublisherCodec(codec Codec) PublisherOption {
	return func(s *PublisherSettings) error {
		if codec == nil {
			return fmt.Errorf("codec cannot be nil")
		}
		s.Codec = codec
		return nil
	}
}

// SubscriberOption configures a Subscriber.
//
// Example:
//
//	subscriber, err := servicebus.NewSubscriber(ctx, transport, "orders", handleOrder,
//	    servicebus.WithMaxAttempts(3),
//	    servicebus.WithErrorQueue("orders.failed"),
//	    servicebus.WithLogger(logger),
//	)
type SubscriberOption func(*SubscriptionSettings) error

// WithErrorQueue sets the dead-letter queue for messages that exhausted their attempts.
// Cannot be combined with WithPauseOnError.
func WithErrorQueue(name string) SubscriberOption {
	return func(s *SubscriptionSettings) error {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("error queue name cannot be empty")
		}
		s.ErrorQueue = name
		return nil
	}
}

// WithMaxAttempts sets how many consecutive handling failures of the same message are
// tolerated before the terminal action. Default: 1 (no retry tolerance).
func WithMaxAttempts(attempts int) SubscriberOption {
	return func(s *SubscriptionSettings) error {
		if attempts < 1 {
			return fmt.Errorf("max attempts must be at least 1, got %d", attempts)
		}
		s.MaxAttempts = attempts
		return nil
	}
}

// WithPauseOnError pauses consumption for d after a terminal failure instead of
// stopping. Cannot be combined with WithErrorQueue.
func WithPauseOnError(d time.Duration) SubscriberOption {
	return func(s *SubscriptionSettings) error {
		if d <= 0 {
			return fmt.Errorf("pause duration must be positive, got %v", d)
		}
		s.PauseOnError = d
		return nil
	}
}

// WithDequeueBeforeHandling removes each message from the queue before the handler runs.
// A failed message is then not presented again.
func WithDequeueBeforeHandling() SubscriberOption {
	return func(s *SubscriptionSettings) error {
		s.DequeueBeforeHandling = true
		return nil
	}
}

// WithAutoCreateLocalQueues creates missing private queues instead of failing.
func WithAutoCreateLocalQueues() SubscriberOption {
	return func(s *SubscriptionSettings) error {
		s.AutoCreateLocalQueues = true
		return nil
	}
}

// WithLogger sets the logger instance for the subscriber.
//
// Use NoopLogger for silent operation or the logging package to integrate zap.
func WithLogger(logger Logger) SubscriberOption {
	return func(s *SubscriptionSettings) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		s.Logger = logger
		return nil
	}
}

// WithCodec sets the message body codec. Default: JSONCodec.
func WithCodec(codec Codec) SubscriberOption {
	return func(s *SubscriptionSettings) error {
		if codec == nil {
			return fmt.Errorf("codec cannot be nil")
		}
		s.Codec = codec
		return nil
	}
}

// WithPeekBackoff sets the delay schedule used when the transport fails to peek.
// Default: retry.DefaultBackoff().
func WithPeekBackoff(backoff retry.Backoff) SubscriberOption {
	return func(s *SubscriptionSettings) error {
		if backoff.BaseDelay < 0 || backoff.MaxDelay < 0 {
			return fmt.Errorf("backoff delays cannot be negative")
		}
		s.PeekBackoff = backoff
		return nil
	}
}
