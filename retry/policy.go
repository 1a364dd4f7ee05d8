// Package retry provides the failure policy of subscribers and the backoff used when
// the queue transport itself fails.
//
// A Policy decides, after each handling failure of the current message, whether the
// subscriber tolerates the failure (ActionRetry) or takes its terminal action: pause,
// forward to a dead-letter queue, or stop. The terminal action is chosen once when the
// subscription is built, so conflicting combinations cannot be represented.
package retry

import (
	"fmt"
	"time"
)

// Action is what a subscriber does after a handling failure.
type Action int

const (
	// ActionRetry leaves the message for another attempt.
	ActionRetry Action = iota

	// ActionPause suspends consumption for Policy.PauseFor.
	ActionPause

	// ActionDeadLetter forwards the message to the error queue.
	ActionDeadLetter

	// ActionStop stops the subscriber rather than lose or endlessly retry the message.
	ActionStop
)

func (a Action) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionPause:
		return "pause"
	case ActionDeadLetter:
		return "dead-letter"
	case ActionStop:
		return "stop"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// IsTerminal reports whether the action ends the failure streak of the current message.
func (a Action) IsTerminal() bool {
	return a != ActionRetry
}

// Policy is the failure policy of one subscription.
//
// Example:
//
//	policy := retry.Policy{MaxAttempts: 3, Terminal: retry.ActionDeadLetter}
//	policy.Decide(1) // ActionRetry
//	policy.Decide(3) // ActionDeadLetter
type Policy struct {
	MaxAttempts int           // Consecutive failures tolerated before the terminal action (>= 1)
	Terminal    Action        // ActionPause, ActionDeadLetter or ActionStop
	PauseFor    time.Duration // Pause duration when Terminal is ActionPause
}

// DefaultPolicy returns a policy without retry tolerance that stops the subscriber.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 1,
		Terminal:    ActionStop,
	}
}

// NewPolicy resolves the terminal action from the subscription settings.
//
// Parameters:
//   - maxAttempts: Consecutive failures before the terminal action (values < 1 mean 1)
//   - pauseFor: Pause duration; > 0 selects ActionPause
//   - deadLetter: Whether an error queue is configured; selects ActionDeadLetter
//
// Returns an error when both a pause and a dead-letter queue are requested.
func NewPolicy(maxAttempts int, pauseFor time.Duration, deadLetter bool) (Policy, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	p := Policy{MaxAttempts: maxAttempts, Terminal: ActionStop}

	switch {
	case pauseFor > 0 && deadLetter:
		return Policy{}, fmt.Errorf("pause on error and error queue are mutually exclusive")
	case pauseFor > 0:
		p.Terminal = ActionPause
		p.PauseFor = pauseFor
	case deadLetter:
		p.Terminal = ActionDeadLetter
	}

	return p, nil
}

// Decide returns the action for the given number of consecutive failures of the
// current message. Failures are tolerated only while MaxAttempts > 1 and the
// count is still below it.
func (p Policy) Decide(failures int) Action {
	if p.MaxAttempts > 1 && failures < p.MaxAttempts {
		return ActionRetry
	}
	return p.Terminal
}

// Describe returns a human-readable description of the policy.
//
// Example output:
//
//	Failure Policy:
//	  Attempt 1: retry
//	  Attempt 2: retry
//	  Attempt 3: pause for 30s
func (p Policy) Describe() string {
	schedule := "Failure Policy:\n"
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	for i := 1; i <= attempts; i++ {
		action := p.Decide(i)
		if action == ActionPause {
			schedule += fmt.Sprintf("  Attempt %d: %s for %v\n", i, action, p.PauseFor)
			continue
		}
		schedule += fmt.Sprintf("  Attempt %d: %s\n", i, action)
	}
	return schedule
}
