package device

import (
	"time"

	"gopkg.in/retry.v1"
)

// steppedDelay is a retry.Strategy whose delay grows in steps: Delays[i] is
// used until attempt Until[i], the last delay after that.
type steppedDelay struct {
	Until  []int
	Delays []time.Duration
}

func (s steppedDelay) NewTimer(time.Time) retry.Timer {
	return &steppedTimer{s: s}
}

type steppedTimer struct {
	s    steppedDelay
	sent int
}

func (t *steppedTimer) NextSleep(time.Time) (time.Duration, bool) {
	t.sent++
	for i, until := range t.s.Until {
		if t.sent <= until {
			return t.s.Delays[i], true
		}
	}
	return t.s.Delays[len(t.s.Delays)-1], true
}

// Volume lock attempts: 100ms for the first six, 200ms up to the sixteenth,
// 500ms after, 30 in total.
var lockStrategy = retry.LimitCount(30, steppedDelay{
	Until:  []int{6, 16},
	Delays: []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 500 * time.Millisecond},
})

var unlockStrategy = retry.LimitCount(5, retry.Regular{
	Total: 500 * time.Millisecond,
	Delay: 100 * time.Millisecond,
	Min:   5,
})

var dismountStrategy = retry.LimitCount(5, retry.Regular{
	Total: time.Second,
	Delay: 200 * time.Millisecond,
	Min:   5,
})

// Locking a volume before dismounting it: 20 attempts 100ms apart.
var volumeLockStrategy = retry.LimitCount(20, retry.Regular{
	Total: 2 * time.Second,
	Delay: 100 * time.Millisecond,
	Min:   20,
})

// openStrategy retries one access mode of the open ladder.
func openStrategy(opts Options) retry.Strategy {
	return retry.LimitCount(opts.Attempts, retry.Regular{
		Total: time.Duration(opts.Attempts) * opts.Delay,
		Delay: opts.Delay,
		Min:   opts.Attempts,
	})
}
