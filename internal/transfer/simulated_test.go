package transfer

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/ramp-settlement/pkg/enums"
)

var hashPattern = regexp.MustCompile(`^0x[0-9a-f]{64}$`)

func TestSimulatedStrategyReturnsFixedLengthHash(t *testing.T) {
	s := NewSimulatedStrategy(0, 0)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		var hooked string
		result, err := s.Execute(context.Background(), ethRequest("1"), Hooks{OnSubmitted: func(_ context.Context, hash string) error {
			hooked = hash
			return nil
		}})
		require.NoError(t, err)
		require.True(t, result.Simulated)
		require.Equal(t, enums.TransferStrategySimulated, result.Strategy)
		require.Len(t, result.Hash, 66)
		require.Regexp(t, hashPattern, result.Hash)
		require.Equal(t, result.Hash, hooked)
		require.Empty(t, result.ExplorerReference)
		require.False(t, seen[result.Hash])
		seen[result.Hash] = true
	}
}

func TestSimulatedStrategyDelayWithinBounds(t *testing.T) {
	s := NewSimulatedStrategy(2*time.Second, 3*time.Second)
	var slept time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		slept = d
		return nil
	}

	for i := 0; i < 20; i++ {
		_, err := s.Execute(context.Background(), ethRequest("1"), Hooks{})
		require.NoError(t, err)
		require.GreaterOrEqual(t, slept, 2*time.Second)
		require.Less(t, slept, 3*time.Second)
	}
}

func TestSimulatedStrategyHonoursContext(t *testing.T) {
	s := NewSimulatedStrategy(time.Minute, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.Execute(ctx, ethRequest("1"), Hooks{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, enums.FailureTimeout, Classify(err).Code)
}
