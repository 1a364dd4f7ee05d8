package servicebus

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/coregx/servicebus/retry"
)

// notBlank rejects strings made only of whitespace.
var notBlank = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if s != "" && strings.TrimSpace(s) == "" {
		return errors.New("cannot be blank")
	}
	return nil
})

// MismatchPolicy is what a publisher does when no destination matches a send pattern.
type MismatchPolicy int

const (
	// MismatchFail fails the send with ErrCodePatternMismatch.
	MismatchFail MismatchPolicy = iota

	// MismatchIgnore drops the message after logging a warning.
	MismatchIgnore

	// MismatchRoute forwards the message to the routing error queue.
	MismatchRoute
)

func (p MismatchPolicy) String() string {
	switch p {
	case MismatchFail:
		return "fail"
	case MismatchIgnore:
		return "ignore"
	case MismatchRoute:
		return "route"
	default:
		return "unknown"
	}
}

// PublisherSettings is the validated configuration of a Publisher.
// Populated by PublisherOption functions and fixed once the publisher is built.
type PublisherSettings struct {
	QueueName              string   `json:"queueName"`
	ExtraQueues            []string `json:"extraQueues"`
	RoutingErrorQueue      string   `json:"routingErrorQueue"`
	IgnorePatternMismatch  bool     `json:"ignorePatternMismatch"`
	AutoCreateLocalQueues  bool     `json:"autoCreateLocalQueues"`
	UseAmbientTransactions bool     `json:"useAmbientTransactions"`
	Logger                 Logger   `json:"-"`
	Codec                  Codec    `json:"-"`
}

// Validate checks the publisher settings.
func (s PublisherSettings) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.QueueName, validation.Required, notBlank, validation.Length(1, MaxPathLength)),
		validation.Field(&s.ExtraQueues, validation.Each(validation.Required, notBlank, validation.Length(1, MaxPathLength))),
		validation.Field(&s.RoutingErrorQueue,
			notBlank,
			validation.Length(0, MaxPathLength),
			validation.When(s.IgnorePatternMismatch,
				validation.Empty.Error("cannot be combined with ignoring pattern mismatches")),
		),
		validation.Field(&s.Logger, validation.Required),
		validation.Field(&s.Codec, validation.Required),
	)
}

// MismatchPolicy resolves the no-match behavior from the settings.
func (s PublisherSettings) MismatchPolicy() MismatchPolicy {
	switch {
	case s.RoutingErrorQueue != "":
		return MismatchRoute
	case s.IgnorePatternMismatch:
		return MismatchIgnore
	default:
		return MismatchFail
	}
}

func defaultPublisherSettings(queueName string) PublisherSettings {
	return PublisherSettings{
		QueueName: queueName,
		Logger:    &NoopLogger{},
		Codec:     JSONCodec{},
	}
}

// SubscriptionSettings is the validated configuration of a Subscriber.
// Populated by SubscriberOption functions and fixed once the subscriber is built.
type SubscriptionSettings struct {
	QueueName             string        `json:"queueName"`
	ErrorQueue            string        `json:"errorQueue"`
	MaxAttempts           int           `json:"maxAttempts"`
	PauseOnError          time.Duration `json:"pauseOnError"`
	DequeueBeforeHandling bool          `json:"dequeueBeforeHandling"`
	AutoCreateLocalQueues bool          `json:"autoCreateLocalQueues"`
	PeekBackoff           retry.Backoff `json:"-"`
	Logger                Logger        `json:"-"`
	Codec                 Codec         `json:"-"`
}

// Validate checks the subscription settings.
//
// Rules:
//   - QueueName is required
//   - MaxAttempts must be at least 1
//   - PauseOnError cannot be negative and cannot be combined with ErrorQueue
//   - DequeueBeforeHandling cannot be combined with MaxAttempts > 1, because a dequeued
//     message is not presented again
func (s SubscriptionSettings) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.QueueName, validation.Required, notBlank, validation.Length(1, MaxPathLength)),
		validation.Field(&s.ErrorQueue,
			notBlank,
			validation.Length(0, MaxPathLength),
			validation.When(s.PauseOnError > 0,
				validation.Empty.Error("cannot be combined with pause on error")),
		),
		validation.Field(&s.MaxAttempts,
			validation.Min(1),
			validation.When(s.DequeueBeforeHandling,
				validation.Max(1).Error("must be 1 when messages are dequeued before handling")),
		),
		validation.Field(&s.PauseOnError, validation.Min(time.Duration(0))),
		validation.Field(&s.Logger, validation.Required),
		validation.Field(&s.Codec, validation.Required),
	)
}

// Policy resolves the failure policy from the settings.
func (s SubscriptionSettings) Policy() (retry.Policy, error) {
	return retry.NewPolicy(s.MaxAttempts, s.PauseOnError, s.ErrorQueue != "")
}

func defaultSubscriptionSettings(queueName string) SubscriptionSettings {
	return SubscriptionSettings{
		QueueName:   queueName,
		MaxAttempts: 1,
		PeekBackoff: retry.DefaultBackoff(),
		Logger:      &NoopLogger{},
		Codec:       JSONCodec{},
	}
}
