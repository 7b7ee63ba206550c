package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aq2208/orders-service/internal/apperr"
)

func testPipeline(cfg Config) *Pipeline {
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = time.Millisecond
	}
	return NewPipeline("remote", cfg, slog.Default())
}

func TestExecute_RetriesServerErrors(t *testing.T) {
	p := testPipeline(Config{MaxRetries: 2})

	attempts := 0
	err := p.Execute(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return StatusErr(500)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestExecute_DoesNotRetryClientErrors(t *testing.T) {
	p := testPipeline(Config{MaxRetries: 2})

	attempts := 0
	err := p.Execute(context.Background(), func(context.Context) error {
		attempts++
		return StatusErr(400)
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts, "a 400 is the caller's bug, retrying cannot fix it")
	assert.Equal(t, apperr.KindUnexpected, apperr.KindOf(err))
}

func TestExecute_RetriesNotFoundThenClassifiesIt(t *testing.T) {
	// 404 is retried because a read replica may simply not have caught up.
	p := testPipeline(Config{MaxRetries: 2})

	attempts := 0
	err := p.Execute(context.Background(), func(context.Context) error {
		attempts++
		return StatusErr(404)
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestExecute_NetworkErrorsAreRetriedAndClassified(t *testing.T) {
	p := testPipeline(Config{MaxRetries: 1})

	attempts := 0
	err := p.Execute(context.Background(), func(context.Context) error {
		attempts++
		return errors.New("connection refused")
	})
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, apperr.KindNetworkError, apperr.KindOf(err))
}

func TestExecute_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	p := testPipeline(Config{MaxRetries: 2, BreakerThreshold: 3, BreakerCooldown: time.Minute})

	attempts := 0
	err := p.Execute(context.Background(), func(context.Context) error {
		attempts++
		return errors.New("connection refused")
	})
	require.Error(t, err)
	require.Equal(t, 3, attempts, "threshold reached within the first call's retries")

	// The circuit is open now; the operation must not run again.
	err = p.Execute(context.Background(), func(context.Context) error {
		attempts++
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindServiceUnavailable, apperr.KindOf(err))
	assert.Equal(t, 3, attempts)
}

func TestExecute_HalfOpenTrialClosesTheBreaker(t *testing.T) {
	p := testPipeline(Config{MaxRetries: 2, BreakerThreshold: 3, BreakerCooldown: 30 * time.Millisecond})

	_ = p.Execute(context.Background(), func(context.Context) error {
		return errors.New("connection refused")
	})

	time.Sleep(50 * time.Millisecond)

	// Cooldown elapsed: exactly one trial call goes through.
	attempts := 0
	err := p.Execute(context.Background(), func(context.Context) error {
		attempts++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)

	// And the breaker is closed again.
	err = p.Execute(context.Background(), func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestExecute_ClientErrorsDoNotOpenTheBreaker(t *testing.T) {
	p := testPipeline(Config{BreakerThreshold: 2, BreakerCooldown: time.Minute})

	for i := 0; i < 5; i++ {
		err := p.Execute(context.Background(), func(context.Context) error {
			return StatusErr(400)
		})
		require.Error(t, err)
	}

	err := p.Execute(context.Background(), func(context.Context) error { return nil })
	assert.NoError(t, err, "a burst of client errors must not trip the circuit")
}

func TestExecute_BulkheadRejectsWhenSaturated(t *testing.T) {
	p := testPipeline(Config{MaxParallel: 1, MaxQueued: 1})

	release := make(chan struct{})
	entered := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Execute(context.Background(), func(context.Context) error {
				entered <- struct{}{}
				<-release
				return nil
			})
		}()
	}

	// One call running, one parked in the queue.
	<-entered
	time.Sleep(20 * time.Millisecond)

	err := p.Execute(context.Background(), func(context.Context) error { return nil })
	require.Error(t, err)
	assert.Equal(t, apperr.KindServiceOverloaded, apperr.KindOf(err))

	close(release)
	<-entered
	wg.Wait()
}

func TestExecute_CallTimeoutIsClassifiedAndNotRetried(t *testing.T) {
	p := testPipeline(Config{MaxRetries: 2, CallTimeout: 20 * time.Millisecond})

	attempts := 0
	err := p.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindTimeout, apperr.KindOf(err))
	assert.Equal(t, 1, attempts, "a timed-out remote is given no further load")
}
