package changedetect

import (
	"net/http"
	"strconv"
	"time"
)

// ParseRetryAfter parses an HTTP Retry-After header value, which is
// either a number of seconds or an HTTP-date. Zero, past, or
// unparseable values clamp to the 1000ms minimum this cascade requires
// before a 429 retry.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	const minimum = time.Second
	if value == "" {
		return minimum
	}
	if secs, err := strconv.Atoi(value); err == nil {
		d := time.Duration(secs) * time.Second
		if d < minimum {
			return minimum
		}
		return d
	}
	if when, err := http.ParseTime(value); err == nil {
		d := when.Sub(now)
		if d < minimum {
			return minimum
		}
		return d
	}
	return minimum
}
