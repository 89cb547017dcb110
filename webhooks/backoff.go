package webhooks

import "time"

type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialRetryPolicy waits Base * 2^attempt, capped at Max. With the
// default one second base the wait after attempt n is 2^n seconds.
type ExponentialRetryPolicy struct {
	Base time.Duration
	Max  time.Duration
}

func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = time.Second
	}
	maximum := p.Max
	if maximum <= 0 {
		maximum = time.Hour
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= maximum || delay <= 0 {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}
