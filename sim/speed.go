package sim

import (
	"math"
	"time"
)

const (
	// MaxSpeed is the highest speed setting. At MaxSpeed the act loop does not
	// wait between cycles.
	MaxSpeed = 100

	// MinDelay is the delay between cycles at speed MaxSpeed-1.
	MinDelay = 30 * time.Microsecond

	// MaxDelay is the delay between cycles at speed 0.
	MaxDelay = 10 * time.Second
)

// delayBase is the ratio between the delays of two adjacent speed settings.
var delayBase = math.Pow(
	float64(MaxDelay)/float64(MinDelay),
	1.0/float64(MaxSpeed-1),
)

// ClampSpeed limits a speed setting to [0, MaxSpeed].
func ClampSpeed(speed int) int {
	if speed < 0 {
		return 0
	}

	if speed > MaxSpeed {
		return MaxSpeed
	}

	return speed
}

// Delay returns the time the act loop waits between two cycles at the given
// speed. The delay grows exponentially as the speed goes down, from 0 at
// MaxSpeed to MaxDelay at speed 0.
func Delay(speed int) time.Duration {
	raw := MaxSpeed - ClampSpeed(speed)
	if raw <= 0 {
		return 0
	}

	d := math.Pow(delayBase, float64(raw-1)) * float64(MinDelay)
	if d > float64(MaxDelay) {
		return MaxDelay
	}

	return time.Duration(d)
}
