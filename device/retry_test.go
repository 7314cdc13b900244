package device

import (
	"testing"
	"time"
)

func TestSteppedDelay(t *testing.T) {
	s := steppedDelay{
		Until:  []int{6, 16},
		Delays: []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 500 * time.Millisecond},
	}
	timer := s.NewTimer(time.Now())
	for i := 1; i <= 30; i++ {
		d, ok := timer.NextSleep(time.Now())
		if !ok {
			t.Fatalf("timer stopped at attempt %d", i)
		}
		expected := 500 * time.Millisecond
		switch {
		case i <= 6:
			expected = 100 * time.Millisecond
		case i <= 16:
			expected = 200 * time.Millisecond
		}
		if d != expected {
			t.Errorf("sleep %d was %v instead of %v", i, d, expected)
		}
	}
}
