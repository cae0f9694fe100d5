package reconcile

import (
	"context"
	"time"

	"github.com/googleapis/gax-go/v2"

	"gtasksync/internal/config"
	"gtasksync/internal/service"
)

// RetryPolicy bounds how often one remote operation is attempted within a
// pass. Only transient failures are retried.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     gax.Backoff
	// Sleep waits between attempts; nil uses gax.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy is three attempts with a 500ms..5s doubling backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff: gax.Backoff{
			Initial:    500 * time.Millisecond,
			Max:        5 * time.Second,
			Multiplier: 2,
		},
	}
}

// RetryPolicyFrom builds a policy from settings.
func RetryPolicyFrom(s config.RetrySettings) RetryPolicy {
	p := DefaultRetryPolicy()
	if s.MaxAttempts > 0 {
		p.MaxAttempts = s.MaxAttempts
	}
	if s.InitialBackoff > 0 {
		p.Backoff.Initial = s.InitialBackoff
	}
	if s.MaxBackoff > 0 {
		p.Backoff.Max = s.MaxBackoff
	}
	return p
}

// Do runs op until it succeeds, fails with a non-transient error, or the
// attempts are exhausted. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = gax.Sleep
	}
	bo := p.Backoff

	var err error
	for i := 0; i < attempts; i++ {
		if err = op(ctx); err == nil || !service.IsTransient(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		if serr := sleep(ctx, bo.Pause()); serr != nil {
			return err
		}
	}
	return err
}
