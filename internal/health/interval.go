package health

import "time"

// Interval returns the delay before the next probe of an endpoint that has
// failed failures times in a row. A single failure is retried sooner; from
// the third on the delay doubles up to max.
func Interval(failures int, base, max time.Duration) time.Duration {
	switch {
	case failures <= 0:
		return base
	case failures == 1:
		return base / 2
	case failures == 2:
		return base
	}
	d := base
	for i := 2; i < failures; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	return d
}
