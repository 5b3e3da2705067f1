package engine

import (
	"context"
	"time"
)

// Delay pauses for d or until ctx is done, whichever comes first. It returns
// the context's cancellation cause when interrupted.
func Delay(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return context.Cause(ctx)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.C:
		return nil
	}
}
