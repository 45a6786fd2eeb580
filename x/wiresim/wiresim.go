// Package wiresim simulates a DHT22 on its data wire together with a virtual
// microsecond clock. A *Sensor satisfies both dht22.Line and dht22.Clock, so
// the protocol state machine can run against it unchanged.
//
// Time only moves when the host delays or samples the line (each Get costs
// Timing.ReadCost), which keeps every busy loop finite and deterministic.
package wiresim

import (
	"math"
	"sync"

	"sensorcode-go/drivers/dht22"
)

// Timing describes the simulated sensor's waveform in microseconds.
type Timing struct {
	StartMin uint32 // minimum host low pulse that wakes the sensor
	Response uint32 // delay from host release to ACK low
	AckLow   uint32
	AckHigh  uint32
	BitLow   uint32
	ZeroHigh uint32
	OneHigh  uint32
	ReadCost uint32 // virtual time consumed by one Get
}

// DefaultTiming returns nominal datasheet timings.
func DefaultTiming() Timing {
	return Timing{
		StartMin: 800,
		Response: 20,
		AckLow:   80,
		AckHigh:  80,
		BitLow:   50,
		ZeroHigh: 26,
		OneHigh:  70,
		ReadCost: 1,
	}
}

const forever = math.MaxUint64

type segment struct {
	until uint64
	high  bool
}

// Sensor is a simulated sensor wired to a simulated pin.
type Sensor struct {
	mu sync.Mutex

	t   Timing
	now uint64
	ref uint64

	output   bool
	driven   bool
	lowSince uint64
	lastLow  uint64

	segs []segment

	connected bool
	stuckBit  int
	stuckHigh bool

	frames []dht22.Frame
	source func() dht22.Frame
	starts int
}

// New returns a connected sensor with default timing, idling high.
func New() *Sensor {
	return &Sensor{
		t:         DefaultTiming(),
		driven:    true,
		connected: true,
		stuckBit:  -1,
	}
}

// SetTiming replaces the waveform timing for subsequent transactions.
func (s *Sensor) SetTiming(t Timing) {
	s.mu.Lock()
	s.t = t
	s.mu.Unlock()
}

// Timing returns the current waveform timing.
func (s *Sensor) Timing() Timing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t
}

// SetConnected attaches or detaches the sensor. A detached sensor never
// answers; the pull-up keeps the line high.
func (s *Sensor) SetConnected(on bool) {
	s.mu.Lock()
	s.connected = on
	s.mu.Unlock()
}

// FailAfterBits makes subsequent transactions stop after n data bits, leaving
// the line stuck at the given level. n < 0 clears the fault.
func (s *Sensor) FailAfterBits(n int, high bool) {
	s.mu.Lock()
	s.stuckBit = n
	s.stuckHigh = high
	s.mu.Unlock()
}

// Queue appends frames to transmit. The last queued frame is repeated once
// the queue would otherwise run empty.
func (s *Sensor) Queue(frames ...dht22.Frame) {
	s.mu.Lock()
	s.frames = append(s.frames, frames...)
	s.mu.Unlock()
}

// SetSource installs a generator consulted when no frame is queued.
func (s *Sensor) SetSource(fn func() dht22.Frame) {
	s.mu.Lock()
	s.source = fn
	s.mu.Unlock()
}

// Starts returns how many valid start signals the sensor has answered.
func (s *Sensor) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// Now returns the virtual time in microseconds.
func (s *Sensor) Now() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// ---- dht22.Line ----

func (s *Sensor) ConfigureOutput() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.output {
		s.output = true
		s.driven = true
	}
	s.segs = nil
	return nil
}

func (s *Sensor) ConfigureInputPullup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.output && s.connected && s.lastLow >= uint64(s.t.StartMin) {
		s.respond()
	}
	s.output = false
	s.lastLow = 0
	return nil
}

func (s *Sensor) Set(high bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.output {
		return
	}
	switch {
	case !high && s.driven:
		s.lowSince = s.now
	case high && !s.driven:
		s.lastLow = s.now - s.lowSince
	}
	s.driven = high
}

func (s *Sensor) Get() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now += uint64(s.t.ReadCost)
	if s.output {
		return s.driven
	}
	return s.levelAt(s.now)
}

// ---- dht22.Clock ----

func (s *Sensor) DelayMicros(us uint32) {
	s.mu.Lock()
	s.now += uint64(us)
	s.mu.Unlock()
}

func (s *Sensor) ResetReference() {
	s.mu.Lock()
	s.ref = s.now
	s.mu.Unlock()
}

func (s *Sensor) ElapsedMicros() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.now - s.ref
	if d > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(d)
}

// ---- waveform ----

func (s *Sensor) levelAt(t uint64) bool {
	for _, sg := range s.segs {
		if t < sg.until {
			return sg.high
		}
	}
	return true
}

// respond lays out the ACK and the 40 data bits starting now.
func (s *Sensor) respond() {
	s.starts++
	f := s.nextFrame()

	at := s.now
	s.segs = s.segs[:0]
	add := func(d uint32, high bool) {
		at += uint64(d)
		s.segs = append(s.segs, segment{until: at, high: high})
	}
	add(s.t.Response, true)
	add(s.t.AckLow, false)
	add(s.t.AckHigh, true)
	for i := 0; i < 40; i++ {
		if i == s.stuckBit {
			s.segs = append(s.segs, segment{until: forever, high: s.stuckHigh})
			return
		}
		add(s.t.BitLow, false)
		if f[i/8]&(1<<(7-i%8)) != 0 {
			add(s.t.OneHigh, true)
		} else {
			add(s.t.ZeroHigh, true)
		}
	}
	add(s.t.BitLow, false)
}

func (s *Sensor) nextFrame() dht22.Frame {
	switch {
	case len(s.frames) > 1:
		f := s.frames[0]
		s.frames = s.frames[1:]
		return f
	case len(s.frames) == 1:
		return s.frames[0]
	case s.source != nil:
		return s.source()
	default:
		return dht22.NewFrame(0, 0)
	}
}

var (
	_ dht22.Line  = (*Sensor)(nil)
	_ dht22.Clock = (*Sensor)(nil)
)
