package retryutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAttemptBudget(t *testing.T) {
	p := Policy{MaxAttempts: 3, Interval: time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), "always-fails", func() error {
		calls++
		return fmt.Errorf("nope")
	})
	require.Error(t, err)
	require.Equal(t, 3, calls)
}

func TestSucceedsOnThirdAttempt(t *testing.T) {
	p := Policy{MaxAttempts: 3, Interval: time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), "flaky", func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestPermanentStopsEarly(t *testing.T) {
	p := Policy{MaxAttempts: 5, Interval: time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), "fatal", func() error {
		calls++
		return Permanent(fmt.Errorf("unrecoverable"))
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestDoValue(t *testing.T) {
	p := Policy{MaxAttempts: 2, Interval: time.Millisecond}

	calls := 0
	out, err := DoValue(context.Background(), p, "value", func() (string, error) {
		calls++
		if calls == 1 {
			return "", fmt.Errorf("first try fails")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", out)
}

func TestContextCancellation(t *testing.T) {
	p := Policy{MaxAttempts: 100, Interval: 50 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err := p.Do(ctx, "cancelled", func() error {
		return fmt.Errorf("keep going")
	})
	require.Error(t, err)
}
