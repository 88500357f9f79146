package address

import (
	"context"
	"time"
)

// DefaultMinLoading is the shortest time a loading state stays visible.
const DefaultMinLoading = 800 * time.Millisecond

// Hold runs fn and returns once both fn finished and min has elapsed since
// the call, whichever is later. A cancelled ctx cuts the remaining wait short.
func Hold(ctx context.Context, min time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	remaining := min - time.Since(start)
	if remaining <= 0 {
		return err
	}
	t := time.NewTimer(remaining)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}
