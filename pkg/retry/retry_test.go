package retry

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/kgraph/errors"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		attempts++
		if attempts < 3 {
			return errors.WrapTransient(stderrors.New("connection refused"), "graphdb", "Connect", "dial")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoExhaustsAttempts(t *testing.T) {
	boom := stderrors.New("still down")
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		attempts++
		return boom
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.ErrorIs(t, err, boom)
}

func TestDoStopsOnPermanentErrors(t *testing.T) {
	for name, permanent := range map[string]error{
		"fatal":   errors.WrapFatal(stderrors.New("corrupt state"), "graphdb", "Connect", "verify"),
		"invalid": errors.WrapInvalid(stderrors.New("bad config"), "graphdb", "Connect", "no endpoints configured"),
	} {
		t.Run(name, func(t *testing.T) {
			attempts := 0
			err := Do(context.Background(), fastConfig(5), func() error {
				attempts++
				return permanent
			})

			require.Error(t, err)
			assert.Equal(t, 1, attempts)
			assert.ErrorIs(t, err, permanent)
		})
	}
}

func TestDoStopsDuringBackoffOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := fastConfig(10)
	cfg.InitialDelay = time.Minute
	cfg.MaxDelay = time.Minute

	attempts := 0
	err := Do(ctx, cfg, func() error {
		attempts++
		cancel()
		return stderrors.New("transient")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoJitterStaysBounded(t *testing.T) {
	cfg := fastConfig(4)
	cfg.Jitter = true

	start := time.Now()
	err := Do(context.Background(), cfg, func() error {
		return stderrors.New("transient")
	})

	require.Error(t, err)
	// 1ms + 2ms + 4ms with up to 25% jitter each.
	assert.Less(t, time.Since(start), time.Second)
}

func TestDoWithResultReturnsValue(t *testing.T) {
	attempts := 0
	got, err := DoWithResult(context.Background(), fastConfig(3), func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", stderrors.New("transient")
		}
		return "connected", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "connected", got)
}

func TestConfigDefaultsApplied(t *testing.T) {
	cfg := Config{}.withDefaults()

	assert.Equal(t, 1, cfg.MaxAttempts)
	assert.Positive(t, cfg.InitialDelay)
	assert.GreaterOrEqual(t, cfg.MaxDelay, cfg.InitialDelay)
	assert.GreaterOrEqual(t, cfg.Multiplier, 1.0)
}
