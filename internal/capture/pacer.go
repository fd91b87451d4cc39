package capture

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// pacer enforces the minimum interval between frames of one stream
type pacer struct {
	limiter *rate.Limiter
}

func newPacer(interval time.Duration) *pacer {
	if interval <= 0 {
		return &pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &pacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next frame is due. It only fails with ctx.Err(),
// even when the ctx deadline is earlier than the next frame.
func (p *pacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r := p.limiter.Reserve()
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}
