package servicebus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coregx/servicebus/model"
	"github.com/coregx/servicebus/retry"
)

// Status is the lifecycle state of a Subscriber.
type Status int

const (
	// StatusStopped means no peeks are issued. Initial state.
	StatusStopped Status = iota

	// StatusStarting means Start is in progress.
	StatusStarting

	// StatusStarted means the subscriber consumes messages.
	StatusStarted

	// StatusStopping means Stop is waiting for the current message.
	StatusStopping

	// StatusPaused means consumption is suspended until the pause timer elapses.
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusStarting:
		return "starting"
	case StatusStarted:
		return "started"
	case StatusStopping:
		return "stopping"
	case StatusPaused:
		return "paused"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// HandlerFunc handles one decoded message. A returned error (or a panic) is a
// handling failure.
type HandlerFunc[T any] func(ctx context.Context, msg T) error

// peekResult is the outcome of one peek, delivered to the consume loop.
type peekResult struct {
	msg model.Message
	err error
}

// Subscriber consumes one queue and dispatches each message to a handler.
//
// Processing cycle (one message at a time):
//  1. Peek the head message (on a background goroutine, at most one outstanding)
//  2. Receive it first when dequeue-before-handling is set
//  3. Decode the body and run the handler
//  4. On success receive the message (unless already received) and reset the failure count
//  5. On failure apply the retry.Policy: retry, pause, dead-letter or stop
//  6. Refresh the queue and peek again while started and not paused
//
// Handler errors never escape the cycle. They surface only as state changes (see Status)
// and log output.
//
// Handlers run with a context that Stop does not cancel and there is no handler timeout:
// Stop waits for a running handler to return. Calling Stop from inside a handler deadlocks.
//
// Thread safety: Start, Stop, Status and Failures are safe for concurrent use.
type Subscriber struct {
	transport  Transport
	settings   SubscriptionSettings
	policy     retry.Policy
	readQueue  *QueueHandle
	errorQueue *QueueHandle
	handle     func(ctx context.Context, msg model.Message) error
	logger     Logger

	mu          sync.Mutex
	status      Status
	failures    int
	peekErrors  int
	registered  bool
	peekPending bool
	cancelPeek  context.CancelFunc
	pauseTimer  *time.Timer
	runCtx      context.Context

	quit        chan struct{}
	loopDone    chan struct{}
	completions chan peekResult
	resumeCh    chan struct{}
	peeks       sync.WaitGroup
}

// NewSubscriber creates a Subscriber for queueName that decodes each message into T and
// passes it to handler. The read queue is opened with exclusive read access.
//
// Parameters:
//   - ctx: Context for opening (and optionally creating) the queues
//   - t: Queue transport (required)
//   - queueName: Read queue name or path (required)
//   - handler: Message handler (required)
//   - opts: Subscriber options
//
// The subscriber starts in StatusStopped; call Start to begin consuming.
//
// Example:
//
//	subscriber, err := servicebus.NewSubscriber(ctx, transport, "orders",
//	    func(ctx context.Context, o OrderPlaced) error {
//	        return billing.Charge(ctx, o)
//	    },
//	    servicebus.WithMaxAttempts(3),
//	    servicebus.WithErrorQueue("orders.failed"),
//	)
func NewSubscriber[T any](ctx context.Context, t Transport, queueName string, handler HandlerFunc[T], opts ...SubscriberOption) (*Subscriber, error) {
	if t == nil {
		return nil, NewError(ErrCodeConfiguration, "Transport is required")
	}
	if handler == nil {
		return nil, NewError(ErrCodeConfiguration, "message handler is required")
	}

	settings := defaultSubscriptionSettings(queueName)
	for _, opt := range opts {
		if err := opt(&settings); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply subscriber option", err)
		}
	}

	if err := settings.Validate(); err != nil {
		return nil, NewErrorWithCause(ErrCodeConfiguration, "invalid subscription settings", err)
	}

	policy, err := settings.Policy()
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeConfiguration, "invalid failure policy", err)
	}

	codec := settings.Codec
	s := &Subscriber{
		transport: t,
		settings:  settings,
		policy:    policy,
		logger:    settings.Logger,
		status:    StatusStopped,
		handle: func(ctx context.Context, msg model.Message) error {
			var v T
			if err := codec.Read(msg, &v); err != nil {
				return err
			}
			return handler(ctx, v)
		},
		completions: make(chan peekResult, 1),
		resumeCh:    make(chan struct{}, 1),
	}

	s.readQueue, err = acquireQueue(ctx, t, settings.QueueName, settings.AutoCreateLocalQueues, WithExclusiveReadAccess())
	if err != nil {
		return nil, err
	}

	if settings.ErrorQueue != "" {
		s.errorQueue, err = acquireQueue(ctx, t, settings.ErrorQueue, settings.AutoCreateLocalQueues)
		if err != nil {
			_ = closeHandles(ctx, t, s.readQueue)
			return nil, err
		}
	}

	s.logger.Debugf("Subscriber created: queue=%s, attempts=%d, terminal=%s",
		s.readQueue.Path, policy.MaxAttempts, policy.Terminal)

	return s, nil
}

// Status returns the current lifecycle state.
func (s *Subscriber) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Failures returns the consecutive handling failures of the current message.
func (s *Subscriber) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// QueuePath returns the path of the read queue.
func (s *Subscriber) QueuePath() string {
	return s.readQueue.Path
}

// Policy returns the failure policy resolved at build time.
func (s *Subscriber) Policy() retry.Policy {
	return s.policy
}

// Start begins (or resumes) consuming the read queue.
//
// Legal only from StatusStopped or StatusPaused; otherwise returns ErrCodeInvalidState.
// Starting from StatusPaused disarms the pause timer. The read queue is refreshed before
// the first peek; if that fails the subscriber reverts to StatusStopped and the error is
// returned.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Infof("Attempting to start subscriber for queue: %s", s.readQueue.Path)

	if s.status != StatusStopped && s.status != StatusPaused {
		s.logger.Errorf("Subscriber %s cannot be started, current status is %s", s.readQueue.Path, s.status)
		return NewError(ErrCodeInvalidState,
			fmt.Sprintf("subscriber cannot be started, current status is %s", s.status))
	}

	s.status = StatusStarting
	s.disarmPauseLocked()

	if err := s.transport.Refresh(ctx, s.readQueue); err != nil {
		s.status = StatusStopped
		s.logger.Errorf("Error while attempting to start subscriber %s: %v", s.readQueue.Path, err)
		return err
	}

	s.runCtx = context.WithoutCancel(ctx)

	if !s.registered {
		s.quit = make(chan struct{})
		s.loopDone = make(chan struct{})
		s.registered = true
		go s.consume(s.quit, s.loopDone)
	} else {
		s.logger.Tracef("Consume loop of %s already running", s.readQueue.Path)
	}

	s.status = StatusStarted
	s.beginPeekLocked(0)

	s.logger.Infof("Subscriber %s started", s.readQueue.Path)
	return nil
}

// Stop stops consuming. If a message is being handled, Stop blocks until that
// processing cycle completes. Stopping a stopped subscriber is a no-op.
func (s *Subscriber) Stop() error {
	s.mu.Lock()
	if s.status == StatusStopped && !s.registered {
		s.mu.Unlock()
		return nil
	}

	s.logger.Infof("Attempting to stop subscriber for queue: %s", s.readQueue.Path)

	s.status = StatusStopping
	s.disarmPauseLocked()
	if s.cancelPeek != nil {
		s.cancelPeek()
		s.cancelPeek = nil
	}

	loopDone := s.loopDone
	if s.registered {
		close(s.quit)
		s.registered = false
	}
	s.mu.Unlock()

	if loopDone != nil {
		<-loopDone
	}
	s.peeks.Wait()

	s.mu.Lock()
	s.drainLocked()
	s.peekPending = false
	s.status = StatusStopped
	s.mu.Unlock()

	s.logger.Infof("Subscriber %s stopped", s.readQueue.Path)
	return nil
}

// Close stops the subscriber and releases its queue handles.
func (s *Subscriber) Close(ctx context.Context) error {
	if err := s.Stop(); err != nil {
		return err
	}
	return closeHandles(ctx, s.transport, s.readQueue, s.errorQueue)
}

// consume is the single goroutine that runs processing cycles and pause resumes.
func (s *Subscriber) consume(quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-quit:
			return
		case res := <-s.completions:
			s.onMessageAvailable(res)
		case <-s.resumeCh:
			s.onPauseElapsed()
		}
	}
}

// beginPeekLocked issues the next peek after delay. No-op while a peek is outstanding.
func (s *Subscriber) beginPeekLocked(delay time.Duration) {
	if s.peekPending {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelPeek = cancel
	s.peekPending = true

	s.peeks.Add(1)
	go func() {
		defer s.peeks.Done()

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		msg, err := s.transport.Peek(ctx, s.readQueue)
		if ctx.Err() != nil {
			return
		}

		select {
		case s.completions <- peekResult{msg: msg, err: err}:
		case <-ctx.Done():
		}
	}()
}

// onMessageAvailable runs one processing cycle for a completed peek.
func (s *Subscriber) onMessageAvailable(res peekResult) {
	s.mu.Lock()
	s.peekPending = false
	if s.cancelPeek != nil {
		s.cancelPeek()
		s.cancelPeek = nil
	}

	if s.status != StatusStarted {
		s.mu.Unlock()
		s.logger.Tracef("Peek of %s completed without processing, status is %s", s.readQueue.Path, s.status)
		return
	}

	if res.err != nil {
		s.peekErrors++
		delay := s.settings.PeekBackoff.Delay(s.peekErrors)
		s.logger.Errorf("Error peeking queue %s (attempt %d), retrying in %v: %v",
			s.readQueue.Path, s.peekErrors, delay, res.err)
		s.beginPeekLocked(delay)
		s.mu.Unlock()
		return
	}

	s.peekErrors = 0
	ctx := s.runCtx
	s.mu.Unlock()

	s.process(ctx, res.msg)

	if err := s.transport.Refresh(ctx, s.readQueue); err != nil {
		s.logger.Errorf("Error refreshing queue %s: %v", s.readQueue.Path, err)
	}

	s.mu.Lock()
	if s.status == StatusStarted && s.pauseTimer == nil {
		s.beginPeekLocked(0)
	}
	s.mu.Unlock()
}

// process retrieves, handles and settles one message.
func (s *Subscriber) process(ctx context.Context, peeked model.Message) {
	msg := peeked
	received := false

	err := func() error {
		if s.settings.DequeueBeforeHandling {
			got, err := s.transport.Receive(ctx, s.readQueue)
			if err != nil {
				return fmt.Errorf("dequeue message %d: %w", peeked.ID, err)
			}
			msg, received = got, true
		}

		s.logger.Tracef("Executing handler on message id: %d - label: %s", msg.ID, msg.Label)

		if err := s.invoke(ctx, msg); err != nil {
			return err
		}

		s.logger.Tracef("Handler execution complete for message id: %d", msg.ID)

		if !received {
			if err := s.acknowledge(ctx, msg); err != nil {
				return err
			}
		}
		return nil
	}()

	if err == nil {
		s.mu.Lock()
		s.failures = 0
		s.mu.Unlock()
		return
	}

	s.onFailure(ctx, msg, received, err)
}

// invoke runs the handler and turns a panic into a handling failure.
func (s *Subscriber) invoke(ctx context.Context, msg model.Message) (err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			err = fmt.Errorf("handler panic: %v", rvr)
		}
	}()

	return s.handle(ctx, msg)
}

// acknowledge removes the handled message from the read queue.
func (s *Subscriber) acknowledge(ctx context.Context, msg model.Message) error {
	s.logger.Tracef("Removing message from queue: %d - label: %s", msg.ID, msg.Label)

	got, err := s.transport.Receive(ctx, s.readQueue)
	if err != nil {
		return fmt.Errorf("remove message %d: %w", msg.ID, err)
	}
	if got.ID != msg.ID {
		s.logger.Warnf("Removed message %d from %s but handled message %d", got.ID, s.readQueue.Path, msg.ID)
	}
	return nil
}

// onFailure counts a handling failure and applies the failure policy.
func (s *Subscriber) onFailure(ctx context.Context, msg model.Message, received bool, cause error) {
	s.mu.Lock()
	s.failures++
	failures := s.failures
	action := s.policy.Decide(failures)

	switch action {
	case retry.ActionRetry:
		s.mu.Unlock()
		s.logger.Warnf("Error processing message. Attempt %d/%d. Error: %v", failures, s.policy.MaxAttempts, cause)
		return

	case retry.ActionPause:
		s.logger.Warnf("Subscriber %s will pause message processing for %v. Error: %v",
			s.readQueue.Path, s.policy.PauseFor, cause)
		s.status = StatusPaused
		s.armPauseLocked(s.policy.PauseFor)
		s.failures = 0
		s.mu.Unlock()
		return

	case retry.ActionStop:
		s.logger.Errorf("Error processing message. %d/%d failed attempts. Error: %v",
			failures, s.policy.MaxAttempts, cause)
		s.logger.Warnf("Error queue is not set. Message can't be moved out of queue. Stopping subscriber %s", s.readQueue.Path)
		s.status = StatusStopped
		s.failures = 0
		s.mu.Unlock()
		return
	}

	s.failures = 0
	s.mu.Unlock()

	s.logger.Errorf("Error processing message. %d/%d failed attempts. Error: %v",
		failures, s.policy.MaxAttempts, cause)
	s.moveToErrorQueue(ctx, msg, received)
}

// moveToErrorQueue forwards msg to the error queue and removes it from the read queue.
// A failed forward is logged and leaves the message in the read queue.
func (s *Subscriber) moveToErrorQueue(ctx context.Context, msg model.Message, received bool) {
	if s.errorQueue == nil {
		return
	}

	forward := msg.Copy()
	if strings.TrimSpace(msg.Label) == "" {
		forward.Label = ""
	}

	mode := TransactionNone
	if s.errorQueue.Transactional {
		mode = TransactionSingle
	}

	s.logger.Tracef("Moving message %d to error queue %s", msg.ID, s.errorQueue.Path)

	if err := s.transport.Send(ctx, s.errorQueue, forward, mode); err != nil {
		s.logger.Errorf("Unable to move message id: %d - label: %s, to error queue %s. Error: %v",
			msg.ID, msg.Label, s.errorQueue.Path, err)
		return
	}

	if received {
		return
	}

	if err := s.acknowledge(ctx, msg); err != nil {
		s.logger.Errorf("Unable to remove message id: %d from %s after moving it to the error queue. Error: %v",
			msg.ID, s.readQueue.Path, err)
	}
}

// onPauseElapsed resumes consumption after a pause.
func (s *Subscriber) onPauseElapsed() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusPaused {
		return
	}

	s.pauseTimer = nil
	s.status = StatusStarted
	s.beginPeekLocked(0)

	s.logger.Infof("Subscriber %s resumed after pause", s.readQueue.Path)
}

// armPauseLocked arms the single pause timer. Any armed timer is disarmed first.
func (s *Subscriber) armPauseLocked(d time.Duration) {
	s.disarmPauseLocked()

	resume := s.resumeCh
	s.pauseTimer = time.AfterFunc(d, func() {
		select {
		case resume <- struct{}{}:
		default:
		}
	})
}

// disarmPauseLocked stops the pause timer and discards a resume it already posted.
func (s *Subscriber) disarmPauseLocked() {
	if s.pauseTimer == nil {
		return
	}
	s.pauseTimer.Stop()
	s.pauseTimer = nil

	select {
	case <-s.resumeCh:
	default:
	}
}

// drainLocked discards completions and resumes left over after the loop exited.
func (s *Subscriber) drainLocked() {
	for {
		select {
		case <-s.completions:
		case <-s.resumeCh:
		default:
			return
		}
	}
}
