package resilience

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/semaphore"

	"github.com/aq2208/orders-service/internal/apperr"
)

// Config tunes one pipeline. Zero values fall back to the defaults below.
type Config struct {
	MaxParallel      int
	MaxQueued        int
	MaxRetries       uint64
	RetryBaseDelay   time.Duration
	BreakerThreshold uint32
	BreakerCooldown  time.Duration
	CallTimeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxParallel <= 0 {
		c.MaxParallel = 5
	}
	if c.MaxQueued < 0 {
		c.MaxQueued = 0
	} else if c.MaxQueued == 0 {
		c.MaxQueued = 10
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 200 * time.Millisecond
	}
	if c.BreakerThreshold == 0 {
		c.BreakerThreshold = 3
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 10 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 15 * time.Second
	}
	return c
}

// Operation performs one remote call attempt under the ctx deadline.
// It returns nil on success, a *StatusError for a non-2xx response, or the
// raw transport error. Classification into failure kinds happens here, not
// in the caller.
type Operation func(ctx context.Context) error

// Pipeline wraps an Operation with the four outbound-call policies, applied
// outermost to innermost: bulkhead, retry, circuit breaker, timeout.
//
// One Pipeline is built per remote service at process start and shared by
// every caller of that service; all state (semaphores, breaker) is safe for
// concurrent use.
type Pipeline struct {
	name    string
	cfg     Config
	log     *slog.Logger
	total   *semaphore.Weighted // parallel + queued
	slots   *semaphore.Weighted // parallel
	breaker *gobreaker.CircuitBreaker[struct{}]
}

func NewPipeline(name string, cfg Config, log *slog.Logger) *Pipeline {
	cfg = cfg.withDefaults()
	p := &Pipeline{
		name:  name,
		cfg:   cfg,
		log:   log.With("remote", name),
		total: semaphore.NewWeighted(int64(cfg.MaxParallel + cfg.MaxQueued)),
		slots: semaphore.NewWeighted(int64(cfg.MaxParallel)),
	}
	p.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // one trial call while half-open
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerThreshold
		},
		// Only transient outcomes count against the breaker; a burst of
		// client errors must not open it.
		IsSuccessful: func(err error) bool {
			return err == nil || !transientErr(err)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			switch to {
			case gobreaker.StateOpen:
				p.log.Error("circuit breaker opened", "cooldown", cfg.BreakerCooldown.String())
			case gobreaker.StateHalfOpen:
				p.log.Info("circuit breaker half-open, testing connection")
			case gobreaker.StateClosed:
				p.log.Info("circuit breaker reset, requests are flowing again", "from", from.String())
			}
		},
	})
	return p
}

// Execute runs op under the full policy set and returns a classified error.
func (p *Pipeline) Execute(ctx context.Context, op Operation) error {
	// Bulkhead: fail fast once parallel and queue capacity are both taken.
	if !p.total.TryAcquire(1) {
		p.log.Warn("bulkhead saturated, rejecting call",
			"max_parallel", p.cfg.MaxParallel, "max_queued", p.cfg.MaxQueued)
		return apperr.Newf(apperr.KindServiceOverloaded,
			"%s is overloaded, call rejected", p.name)
	}
	defer p.total.Release(1)

	if err := p.slots.Acquire(ctx, 1); err != nil {
		return apperr.Wrap(apperr.KindTimeout, "gave up waiting for a call slot", err)
	}
	defer p.slots.Release(1)

	return p.retry(ctx, op)
}

func (p *Pipeline) retry(ctx context.Context, op Operation) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.RetryBaseDelay
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0

	attempt := 0
	return backoff.Retry(func() error {
		err := p.attempt(ctx, op)
		if err == nil {
			return nil
		}
		if !transientErr(err) {
			return backoff.Permanent(p.classify(err))
		}
		attempt++
		p.log.Warn("transient failure, will retry",
			"attempt", attempt, "error", err.Error())
		// classify() is applied on the way out so exhausted retries still
		// surface the right kind.
		return classifiedRetryable{p.classify(err)}
	}, backoff.WithContext(backoff.WithMaxRetries(bo, p.cfg.MaxRetries), ctx))
}

// classifiedRetryable keeps the classified error while signalling backoff
// that another attempt is allowed.
type classifiedRetryable struct{ error }

func (e classifiedRetryable) Unwrap() error { return e.error }

func (p *Pipeline) attempt(parent context.Context, op Operation) error {
	_, err := p.breaker.Execute(func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(parent, p.cfg.CallTimeout)
		defer cancel()

		err := op(ctx)
		if err != nil && errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
			// The per-call deadline fired, not the caller's.
			return struct{}{}, apperr.Wrap(apperr.KindTimeout,
				p.name+" call exceeded its deadline", err)
		}
		return struct{}{}, err
	})
	return err
}

// transientErr mirrors the retry policy: network failures, 5xx, 408 and 404
// are worth another attempt. Timeouts, open circuits and the remaining 4xx
// are not.
func transientErr(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return transientStatus(se.Status)
	}
	switch apperr.KindOf(err) {
	case apperr.KindTimeout, apperr.KindServiceUnavailable, apperr.KindServiceOverloaded:
		return false
	case apperr.KindNetworkError:
		return true
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	// Raw transport error from the operation.
	var ae *apperr.Error
	return !errors.As(err, &ae)
}

// classify maps a terminal attempt error to its inspectable failure kind.
func (p *Pipeline) classify(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperr.Wrap(apperr.KindServiceUnavailable,
			p.name+" is temporarily unavailable (circuit open)", err)
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Status == http.StatusNotFound:
			return apperr.Wrap(apperr.KindNotFound, p.name+" reported not found", err)
		default:
			return apperr.Wrap(apperr.KindUnexpected,
				p.name+" returned an unexpected status", err)
		}
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Wrap(apperr.KindNetworkError, "unable to reach "+p.name, err)
}
