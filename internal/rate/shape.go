package rate

import (
	"context"
	"time"
)

// Ramp paces items from in according to spec. Before an item is passed on,
// the pacer is set to the ramp's rate at the current elapsed time and the
// item waits for its slot. After the ramp the stream stays paced at
// TargetRPS.
//
// The returned channel is unbuffered and closed when in is closed or ctx is
// done, so a slow consumer holds back the producer.
func Ramp[T any](ctx context.Context, spec RampSpec, in <-chan T) <-chan T {
	out := make(chan T)

	go func() {
		defer close(out)

		start := time.Now()
		pacer := NewPacer(spec.StartRPS)

		for {
			item, ok := receive(ctx, in)
			if !ok {
				return
			}

			if r := spec.RateAt(time.Since(start)); r != pacer.Rate() {
				pacer.SetRate(r)
			}
			if err := pacer.Wait(ctx); err != nil {
				return
			}

			if !send(ctx, out, item) {
				return
			}
		}
	}()

	return out
}

// Throttle releases at most one item per spec.Interval(), so no window of
// spec.Window length sees more than spec.RPS items. Nothing is dropped:
// excess demand waits upstream.
func Throttle[T any](ctx context.Context, spec ThrottleSpec, in <-chan T) <-chan T {
	out := make(chan T)

	go func() {
		defer close(out)

		interval := spec.Interval()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		first := true

		for {
			item, ok := receive(ctx, in)
			if !ok {
				return
			}

			if !first {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
			first = false

			if !send(ctx, out, item) {
				return
			}
			// Measure the next interval from this release.
			ticker.Reset(interval)
		}
	}()

	return out
}

// Shape applies the configured transforms: ramp first, then throttle. Nil
// specs are skipped; with neither, in is returned unchanged.
func Shape[T any](ctx context.Context, ramp *RampSpec, throttle *ThrottleSpec, in <-chan T) <-chan T {
	out := in
	if ramp != nil {
		out = Ramp(ctx, *ramp, out)
	}
	if throttle != nil {
		out = Throttle(ctx, *throttle, out)
	}
	return out
}

func receive[T any](ctx context.Context, in <-chan T) (T, bool) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, false
	case item, ok := <-in:
		return item, ok
	}
}

func send[T any](ctx context.Context, out chan<- T, item T) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- item:
		return true
	}
}
