package retry

import (
	"context"
	"time"
)

// Policy bounds how often and how fast an operation is retried.
type Policy struct {
	// Attempts is the total number of calls, the first one included.
	Attempts int `yaml:"attempts" mapstructure:"attempts"`
	// Delay is the pause between two consecutive calls.
	Delay time.Duration `yaml:"delay" mapstructure:"delay"`
}

// Do calls fn until it succeeds, fails with an error retryable rejects,
// or the attempts run out. It returns the number of calls made and the
// last error. A nil retryable retries every error.
func (p Policy) Do(ctx context.Context, fn func(attempt int) error, retryable func(error) bool) (int, error) {
	attempts := max(p.Attempts, 1)

	var err error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if waitErr := p.wait(ctx); waitErr != nil {
				return attempt - 1, waitErr
			}
		}

		if err = fn(attempt); err == nil {
			return attempt, nil
		}

		if retryable != nil && !retryable(err) {
			return attempt, err
		}
	}

	return attempts, err
}

func (p Policy) wait(ctx context.Context) error {
	if p.Delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(p.Delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
