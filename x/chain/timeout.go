package chain

import (
	"context"
	"time"
)

// withTimeout bounds ctx by d; zero leaves ctx unbounded.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
