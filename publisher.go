package servicebus

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/coregx/servicebus/model"
)

// Publisher routes messages of type T to its main queue and extra queues.
//
// A send carries an optional label and an optional destination pattern. The pattern
// MatchAll (also used when the pattern is blank) selects the main queue and every extra
// queue. Any other pattern is matched against each queue's short name, main queue first,
// then extra queues in configured order; every match receives a copy of the message.
//
// When nothing matches, the MismatchPolicy decides: route the message to the routing
// error queue, drop it with a warning, or fail with ErrCodePatternMismatch.
//
// Thread safety: Safe for concurrent use. The publisher holds no per-send state.
type Publisher[T any] struct {
	transport    Transport
	settings     PublisherSettings
	mismatch     MismatchPolicy
	main         *QueueHandle
	extras       []*QueueHandle
	routingError *QueueHandle
	logger       Logger
	codec        Codec
	closed       atomic.Bool
}

// NewPublisher creates a Publisher bound to queueName and opens every queue it routes to.
//
// Parameters:
//   - ctx: Context for opening (and optionally creating) the queues
//   - t: Queue transport (required)
//   - queueName: Main queue name or path (required)
//   - opts: Publisher options
//
// Returns ErrCodeConfiguration when the options are invalid or conflicting, and the
// provisioning error when a queue cannot be opened.
//
// Example:
//
//	publisher, err := servicebus.NewPublisher[OrderPlaced](ctx, transport, "orders",
//	    servicebus.WithExtraQueues("orders.audit"),
//	    servicebus.WithIgnorePatternMismatch(),
//	)
func NewPublisher[T any](ctx context.Context, t Transport, queueName string, opts ...PublisherOption) (*Publisher[T], error) {
	if t == nil {
		return nil, NewError(ErrCodeConfiguration, "Transport is required")
	}

	settings := defaultPublisherSettings(queueName)
	for _, opt := range opts {
		if err := opt(&settings); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply publisher option", err)
		}
	}

	if err := settings.Validate(); err != nil {
		return nil, NewErrorWithCause(ErrCodeConfiguration, "invalid publisher settings", err)
	}

	p := &Publisher[T]{
		transport: t,
		settings:  settings,
		mismatch:  settings.MismatchPolicy(),
		logger:    settings.Logger,
		codec:     settings.Codec,
	}

	if err := p.open(ctx); err != nil {
		_ = p.Close(ctx)
		return nil, err
	}

	p.logger.Debugf("Publisher created: queue=%s, extra=%d, mismatch=%s",
		p.main.Path, len(p.extras), p.mismatch)

	return p, nil
}

func (p *Publisher[T]) open(ctx context.Context) error {
	var err error

	p.main, err = acquireQueue(ctx, p.transport, p.settings.QueueName, p.settings.AutoCreateLocalQueues)
	if err != nil {
		return err
	}

	for _, name := range p.settings.ExtraQueues {
		h, err := acquireQueue(ctx, p.transport, name, p.settings.AutoCreateLocalQueues)
		if err != nil {
			return err
		}
		p.extras = append(p.extras, h)
	}

	if p.mismatch == MismatchRoute {
		p.routingError, err = acquireQueue(ctx, p.transport, p.settings.RoutingErrorQueue, p.settings.AutoCreateLocalQueues)
		if err != nil {
			return err
		}
	}

	return nil
}

// Send sends msg to the main queue and every extra queue.
func (p *Publisher[T]) Send(ctx context.Context, msg T) error {
	return p.SendTo(ctx, msg, "", MatchAll)
}

// SendWithLabel sends a labelled msg to the main queue and every extra queue.
func (p *Publisher[T]) SendWithLabel(ctx context.Context, msg T, label string) error {
	return p.SendTo(ctx, msg, label, MatchAll)
}

// SendTo sends msg to every queue whose short name matches pattern.
//
// A blank pattern means MatchAll. Transport send errors are returned unmodified; queues
// earlier in the routing order may already have received the message.
func (p *Publisher[T]) SendTo(ctx context.Context, msg T, label, pattern string) error {
	if p.closed.Load() {
		return NewError(ErrCodeInvalidState, "publisher is closed")
	}

	pattern = normalizePattern(pattern)

	envelope := model.NewMessage("", nil)
	if strings.TrimSpace(label) != "" {
		envelope.Label = label
	}
	if err := p.codec.Write(&envelope, msg); err != nil {
		return err
	}
	envelope.CorrelationID = uuid.NewString()

	targets := p.Resolve(pattern)
	if len(targets) > 0 {
		for _, h := range targets {
			if err := p.send(ctx, envelope.Copy(), h); err != nil {
				return err
			}
		}
		return nil
	}

	switch p.mismatch {
	case MismatchRoute:
		p.logger.Warnf("Pattern %s didn't match any queue. Moving message to routing error queue: %s",
			pattern, p.routingError.Name)
		return p.send(ctx, envelope.Copy(), p.routingError)
	case MismatchIgnore:
		p.logger.Warnf("Pattern %s didn't match any queue. Pattern mismatches are ignored, message %s is dropped",
			pattern, envelope.CorrelationID)
		return nil
	default:
		return NewError(ErrCodePatternMismatch,
			fmt.Sprintf("unable to match pattern %s to an existing queue", pattern))
	}
}

// Resolve returns the destination queues of pattern in routing order.
// The result is empty when nothing matches.
func (p *Publisher[T]) Resolve(pattern string) []*QueueHandle {
	pattern = normalizePattern(pattern)

	candidates := make([]*QueueHandle, 0, 1+len(p.extras))
	candidates = append(candidates, p.main)
	candidates = append(candidates, p.extras...)

	if pattern == MatchAll {
		return candidates
	}

	compiled, err := CompilePattern(pattern)
	if err != nil {
		p.logger.Warnf("Invalid pattern %s: %v", pattern, err)
		return nil
	}

	return lo.Filter(candidates, func(h *QueueHandle, _ int) bool {
		return compiled.Match(h.Name)
	})
}

// MismatchPolicy returns the no-match policy resolved at build time.
func (p *Publisher[T]) MismatchPolicy() MismatchPolicy {
	return p.mismatch
}

// Settings returns the settings the publisher was built with.
func (p *Publisher[T]) Settings() PublisherSettings {
	return p.settings
}

// Close releases every queue handle of the publisher. Sends after Close fail with
// ErrCodeInvalidState; closing again is a no-op.
func (p *Publisher[T]) Close(ctx context.Context) error {
	if p.closed.Swap(true) {
		return nil
	}
	handles := append([]*QueueHandle{p.main, p.routingError}, p.extras...)
	return closeHandles(ctx, p.transport, handles...)
}

// send delivers one copy of the message with the transaction mode the queue requires.
func (p *Publisher[T]) send(ctx context.Context, msg model.Message, h *QueueHandle) error {
	mode := transactionModeFor(ctx, h, p.settings.UseAmbientTransactions)

	p.logger.Tracef("Sending to queue: %s. Transaction: %s. Label: %s. Correlation: %s",
		h.Path, mode, msg.Label, msg.CorrelationID)

	return p.transport.Send(ctx, h, msg, mode)
}
