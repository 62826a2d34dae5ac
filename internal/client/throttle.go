package client

import (
	"context"
	"math"
	"os"
	"time"

	"github.com/juju/ratelimit"
)

// throttle is a token bucket of bytesPerSec with one second of burst. A
// frame larger than the burst waits for the deficit instead of being split.
type throttle struct {
	bucket *ratelimit.Bucket
}

func newThrottle(bytesPerSec int64) *throttle {
	if bytesPerSec <= 0 {
		return nil
	}
	return &throttle{bucket: ratelimit.NewBucketWithRate(float64(bytesPerSec), bytesPerSec)}
}

// wait reserves n bytes and sleeps until they are available. Tokens are only
// taken when the wait fits before deadline; ctx cancellation ends the sleep.
func (t *throttle) wait(ctx context.Context, n int, deadline time.Time) error {
	if t == nil {
		return nil
	}
	maxWait := time.Duration(math.MaxInt64)
	if !deadline.IsZero() {
		maxWait = max(time.Until(deadline), 0)
	}
	d, ok := t.bucket.TakeMaxDuration(int64(n), maxWait)
	if !ok {
		return os.ErrDeadlineExceeded
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
