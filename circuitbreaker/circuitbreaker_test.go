package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		RecoveryTimeout:  50 * time.Millisecond,
		OperationTimeout: time.Second,
	}
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	b := New("Y", testConfig())
	failing := errors.New("boom")

	for i := 0; i < 3; i++ {
		res := b.Execute(context.Background(), func(context.Context) error { return failing })
		require.True(t, res.Executed)
		require.False(t, res.Rejected)
	}
	require.Equal(t, Open, b.Stats().State)

	res := b.Execute(context.Background(), func(context.Context) error {
		t.Fatal("op must not be invoked while OPEN")
		return nil
	})
	require.False(t, res.Executed)
	require.True(t, res.Rejected)
	require.Equal(t, Open, res.State)
	require.ErrorContains(t, res.Err, "circuit breaker is OPEN for Y")

	stats := b.Stats()
	require.Equal(t, int64(3), stats.Failed)
	require.Equal(t, int64(1), stats.Rejected)
}

func TestSuccessResetsFailureCountInClosed(t *testing.T) {
	b := New("Z", testConfig())
	b.Execute(context.Background(), func(context.Context) error { return errors.New("e") })
	b.Execute(context.Background(), func(context.Context) error { return nil })
	require.Equal(t, 0, b.Stats().FailureCount)
	require.Equal(t, Closed, b.Stats().State)
}

func TestRecoveryTimeoutGatesHalfOpen(t *testing.T) {
	cfg := testConfig()
	b := New("svc", cfg)
	for i := 0; i < cfg.FailureThreshold; i++ {
		b.Execute(context.Background(), func(context.Context) error { return errors.New("e") })
	}
	require.Equal(t, Open, b.Stats().State)

	res := b.Execute(context.Background(), func(context.Context) error { return nil })
	require.True(t, res.Rejected, "call before recoveryTimeout elapses must be rejected")

	time.Sleep(cfg.RecoveryTimeout + 10*time.Millisecond)

	res = b.Execute(context.Background(), func(context.Context) error { return nil })
	require.True(t, res.Executed, "call after recoveryTimeout elapses transitions to HALF_OPEN and executes")
	require.False(t, res.Rejected)
}

func TestHalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	cfg := testConfig()
	b := New("svc", cfg)
	for i := 0; i < cfg.FailureThreshold; i++ {
		b.Execute(context.Background(), func(context.Context) error { return errors.New("e") })
	}
	time.Sleep(cfg.RecoveryTimeout + 10*time.Millisecond)

	for i := 0; i < cfg.SuccessThreshold; i++ {
		res := b.Execute(context.Background(), func(context.Context) error { return nil })
		require.True(t, res.Executed)
	}
	require.Equal(t, Closed, b.Stats().State)
}

func TestHalfOpenFailureReturnsToOpen(t *testing.T) {
	cfg := testConfig()
	b := New("svc", cfg)
	for i := 0; i < cfg.FailureThreshold; i++ {
		b.Execute(context.Background(), func(context.Context) error { return errors.New("e") })
	}
	time.Sleep(cfg.RecoveryTimeout + 10*time.Millisecond)

	res := b.Execute(context.Background(), func(context.Context) error { return errors.New("still failing") })
	require.True(t, res.Executed)
	require.Equal(t, Open, res.State)

	before := b.Stats().NextAttempt
	require.True(t, before.After(time.Now().Add(-time.Second)))
}

func TestOperationTimeoutCountsAsFailure(t *testing.T) {
	cfg := testConfig()
	cfg.OperationTimeout = 10 * time.Millisecond
	b := New("slow", cfg)

	res := b.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.True(t, res.Executed)
	require.Error(t, res.Err)
	require.Equal(t, 1, b.Stats().FailureCount)
}

func TestStateChangeCallbackFires(t *testing.T) {
	type transition struct{ from, to State }
	var transitions []transition

	cfg := testConfig()
	b := New("watched", cfg, WithOnStateChange(func(name string, from, to State) {
		transitions = append(transitions, transition{from, to})
	}))

	for i := 0; i < cfg.FailureThreshold; i++ {
		b.Execute(context.Background(), func(context.Context) error { return errors.New("e") })
	}
	require.Len(t, transitions, 1)
	require.Equal(t, Closed, transitions[0].from)
	require.Equal(t, Open, transitions[0].to)
}
