package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// MicroClock is a busy-waiting microsecond clock backed by the monotonic
// time source. It satisfies dht22.Clock on hosts without a hardware timer.
type MicroClock struct {
	ref time.Time
}

// NewMicroClock returns a clock whose reference point is now.
func NewMicroClock() *MicroClock { return &MicroClock{ref: time.Now()} }

// DelayMicros spins for at least us microseconds.
func (c *MicroClock) DelayMicros(us uint32) {
	start := time.Now()
	d := time.Duration(us) * time.Microsecond
	for time.Since(start) < d {
	}
}

func (c *MicroClock) ResetReference() { c.ref = time.Now() }

// ElapsedMicros saturates at the uint32 maximum (~71 minutes).
func (c *MicroClock) ElapsedMicros() uint32 {
	us := time.Since(c.ref) / time.Microsecond
	if us > 1<<32-1 {
		return 1<<32 - 1
	}
	return uint32(us)
}
