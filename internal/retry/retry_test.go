package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transientErr struct{}

func (transientErr) Error() string   { return "transient" }
func (transientErr) Transient() bool { return true }

func fastPolicy() Policy {
	p := Default()
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientErrors(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return transientErr{}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("bad input")
	calls := 0
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		return fatal
	})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		return transientErr{}
	})
	assert.Error(t, err)
	assert.Equal(t, 5, calls)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := Default()
	calls := 0
	err := p.Do(ctx, func() error {
		calls++
		return transientErr{}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDelaySchedule(t *testing.T) {
	p := Default()
	assert.Equal(t, 2*time.Second, p.delay(0))
	assert.Equal(t, 4*time.Second, p.delay(1))
	assert.Equal(t, 8*time.Second, p.delay(2))
	assert.Equal(t, 60*time.Second, p.delay(10))
}

func TestTransientPredicate(t *testing.T) {
	assert.True(t, Transient(transientErr{}))
	assert.False(t, Transient(errors.New("plain")))
	assert.True(t, Transient(errors.Join(errors.New("wrap"), transientErr{})))
}
