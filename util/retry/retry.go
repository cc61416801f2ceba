package retry

import (
	"context"
	"time"
)

// Logger is the subset of ulogger.Logger retry needs; kept minimal so this
// package has no import-cycle risk back onto ulogger's own dependents.
type Logger interface {
	Debugf(format string, args ...interface{})
}

// Do calls fn until it succeeds, ctx is done, or the configured retry budget
// (RetryCount, or forever under InfiniteRetry) is exhausted. The wait between
// attempts starts at BackoffDurationType and is multiplied after each attempt
// by BackoffMultiplier (uncapped) by default, or by BackoffFactor (capped at
// MaxBackoff) under ExponentialBackoff.
func Do(ctx context.Context, fn func() error, opts ...Options) error {
	o := NewSetOptions(opts...)

	wait := o.BackoffDurationType
	var err error

	for attempt := 0; o.InfiniteRetry || attempt < o.RetryCount; attempt++ {
		if err = fn(); err == nil {
			return nil
		}

		if log, ok := logFromOptions(o); ok {
			log.Debugf("%sattempt %d failed: %v", o.Message, attempt+1, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		if o.ExponentialBackoff {
			wait = time.Duration(float64(wait) * o.BackoffFactor)
			if o.MaxBackoff > 0 && wait > o.MaxBackoff {
				wait = o.MaxBackoff
			}
		} else {
			wait = wait * time.Duration(o.BackoffMultiplier)
		}
	}

	return err
}

func logFromOptions(o *SetOptions) (Logger, bool) {
	if o.Logger == nil {
		return nil, false
	}
	return o.Logger, true
}
