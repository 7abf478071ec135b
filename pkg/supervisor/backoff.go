package supervisor

import "time"

// BackoffDelay computes the delay before restart attempt number `attempt`
// (1-based). The delay doubles with each attempt and saturates at cap:
// base, 2*base, 4*base, ...
func BackoffDelay(base, cap time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		return 0
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if cap > 0 && delay > cap {
		return cap
	}
	return delay
}
