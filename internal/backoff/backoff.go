package backoff

import (
	"math"
	"time"

	"github.com/kode4food/cadence/pkg/api"
)

type calculator func(base time.Duration, attempt int) time.Duration

var calculators = map[string]calculator{
	api.BackoffTypeFixed: func(base time.Duration, _ int) time.Duration {
		return base
	},
	api.BackoffTypeLinear: func(base time.Duration, attempt int) time.Duration {
		return base * time.Duration(attempt+1)
	},
	api.BackoffTypeExponential: func(
		base time.Duration, attempt int,
	) time.Duration {
		multiplier := math.Pow(2, float64(attempt))
		return time.Duration(float64(base) * multiplier)
	},
}

// Delay returns the wait before retry number attempt (zero-based), never
// exceeding max. Unknown backoff types fall back to fixed
func Delay(typ string, base, max time.Duration, attempt int) time.Duration {
	calc, ok := calculators[typ]
	if !ok {
		calc = calculators[api.BackoffTypeFixed]
	}
	if attempt < 0 {
		attempt = 0
	}

	d := calc(base, attempt)
	if max > 0 && (d > max || d < 0) {
		return max
	}
	return d
}

// IsValidType reports whether typ names a known backoff strategy
func IsValidType(typ string) bool {
	_, ok := calculators[typ]
	return ok
}
