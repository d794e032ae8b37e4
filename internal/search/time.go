package search

import "time"

// TimeProvider carries the two clocks a search request needs: an absolute
// start (epoch millis, for date-math resolution) and a relative monotonic
// start (for elapsed-time measurement). The two must never mix: elapsed time
// is derived only from the monotonic delta so that wall-clock adjustments can
// never skew or negate a reported took-time.
//
// A TimeProvider is immutable for the life of its request.
type TimeProvider struct {
	absoluteStartMillis int64
	relativeStartNanos  int64
	nowNanos            func() int64
}

// NewTimeProvider builds a provider from an absolute start, a relative start,
// and a monotonic now supplier. Tests inject a controllable supplier here.
func NewTimeProvider(absoluteStartMillis, relativeStartNanos int64, nowNanos func() int64) *TimeProvider {
	return &TimeProvider{
		absoluteStartMillis: absoluteStartMillis,
		relativeStartNanos:  relativeStartNanos,
		nowNanos:            nowNanos,
	}
}

// SystemTimeProvider captures the current wall clock and the runtime's
// monotonic clock for a request starting now.
func SystemTimeProvider() *TimeProvider {
	start := time.Now()
	return &TimeProvider{
		absoluteStartMillis: start.UnixMilli(),
		relativeStartNanos:  start.UnixNano(),
		nowNanos: func() int64 {
			// time.Since reads the monotonic reading embedded in start.
			return start.UnixNano() + int64(time.Since(start))
		},
	}
}

// AbsoluteStartMillis returns the wall-clock start of the request in epoch
// milliseconds. Use only for date-math, never for durations.
func (p *TimeProvider) AbsoluteStartMillis() int64 {
	return p.absoluteStartMillis
}

// TookMillis returns the elapsed request time in milliseconds, derived solely
// from the monotonic delta and clamped at zero.
func (p *TimeProvider) TookMillis() int64 {
	elapsed := p.nowNanos() - p.relativeStartNanos
	if elapsed < 0 {
		return 0
	}
	return elapsed / int64(time.Millisecond)
}
