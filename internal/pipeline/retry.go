package pipeline

import (
	"context"
	"time"
)

// RetryPolicy bounds insight generation attempts.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy makes exactly three attempts with a fixed five second
// pause between them.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Delay: 5 * time.Second}

// AttemptState is the state of a generation call.
type AttemptState int

const (
	StatePending AttemptState = iota
	StateAttempted
	StateValidated
	StateExhausted
)

func (s AttemptState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAttempted:
		return "attempted"
	case StateValidated:
		return "validated"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// attemptMachine tracks Pending -> Attempted(n) -> Validated | Exhausted.
// Validated and Exhausted are terminal.
type attemptMachine struct {
	policy      RetryPolicy
	state       AttemptState
	attempts    int
	lastRawText string
	lastErr     error
}

func newAttemptMachine(policy RetryPolicy) *attemptMachine {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &attemptMachine{policy: policy, state: StatePending}
}

// begin moves into Attempted and returns the 1-based attempt number.
func (m *attemptMachine) begin() int {
	m.attempts++
	m.state = StateAttempted
	return m.attempts
}

func (m *attemptMachine) succeed() {
	m.state = StateValidated
	m.lastErr = nil
}

// fail records a failed attempt and reports whether another attempt is allowed.
func (m *attemptMachine) fail(rawText string, err error) bool {
	if rawText != "" {
		m.lastRawText = rawText
	}
	m.lastErr = err
	if m.attempts >= m.policy.MaxAttempts {
		m.state = StateExhausted
		return false
	}
	return true
}

// abort ends the machine early, e.g. when the context is cancelled.
func (m *attemptMachine) abort(err error) {
	m.lastErr = err
	m.state = StateExhausted
}

func (m *attemptMachine) failure() *GenerationFailure {
	return &GenerationFailure{
		Attempts:    m.attempts,
		LastRawText: m.lastRawText,
		LastErr:     m.lastErr,
	}
}
