package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAttemptMachine_Transitions(t *testing.T) {
	m := newAttemptMachine(RetryPolicy{MaxAttempts: 3, Delay: time.Second})
	assert.Equal(t, StatePending, m.state)

	errBad := &ValidationError{Path: "$", Reason: "bad"}

	assert.Equal(t, 1, m.begin())
	assert.Equal(t, StateAttempted, m.state)
	assert.True(t, m.fail("first", errBad))

	assert.Equal(t, 2, m.begin())
	assert.True(t, m.fail("", errors.New("network")))

	assert.Equal(t, 3, m.begin())
	assert.False(t, m.fail("third", errBad))
	assert.Equal(t, StateExhausted, m.state)

	failure := m.failure()
	assert.Equal(t, 3, failure.Attempts)
	assert.Equal(t, "third", failure.LastRawText)
	assert.Equal(t, errBad, failure.LastErr)
}

func TestAttemptMachine_Validated(t *testing.T) {
	m := newAttemptMachine(DefaultRetryPolicy)
	m.begin()
	m.fail("x", errors.New("boom"))
	m.begin()
	m.succeed()

	assert.Equal(t, StateValidated, m.state)
	assert.Equal(t, 2, m.attempts)
	assert.NoError(t, m.lastErr)
}

func TestAttemptMachine_AtLeastOneAttempt(t *testing.T) {
	m := newAttemptMachine(RetryPolicy{})
	m.begin()
	assert.False(t, m.fail("", errors.New("boom")))
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
