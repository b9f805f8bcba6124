// Package clocktest drives quartz mock clocks across several timers.
package clocktest

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"
)

// Advance moves mock forward by d, stopping at every timer on the way and
// waiting for its callback before moving on. quartz refuses to jump past a
// pending event in one step.
func Advance(t testing.TB, mock *quartz.Mock, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for d > 0 {
		step := d
		if next, ok := mock.Peek(); ok && next < d {
			step = next
		}
		if step <= 0 {
			// an event is due now
			_, w := mock.AdvanceNext()
			w.MustWait(ctx)
			continue
		}
		mock.Advance(step).MustWait(ctx)
		d -= step
	}
}
