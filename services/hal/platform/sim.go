// services/hal/platform/sim.go
package platform

import (
	"math/rand"
	"sync"
	"time"

	"sensorcode-go/drivers/dht22"
	"sensorcode-go/x/mathx"
	"sensorcode-go/x/wiresim"
)

// Sim is an in-process platform: every pin has a simulated DHT22 that also
// serves as that line's clock.
type Sim struct {
	mu      sync.Mutex
	sensors map[int]*wiresim.Sensor
}

// NewSim creates simulated sensors on pins. Each produces a slow random walk
// around 21.0°C and 45.0%RH.
func NewSim(pins ...int) *Sim {
	s := &Sim{sensors: make(map[int]*wiresim.Sensor, len(pins))}
	for _, p := range pins {
		ws := wiresim.New()
		ws.SetSource(randomWalk(int64(p)))
		s.sensors[p] = ws
	}
	return s
}

// Sensor exposes the simulated device on pin for tests and fault injection.
func (s *Sim) Sensor(pin int) (*wiresim.Sensor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.sensors[pin]
	return ws, ok
}

func (s *Sim) Line(pin int) (dht22.Line, bool) {
	ws, ok := s.Sensor(pin)
	if !ok {
		return nil, false
	}
	return ws, true
}

func (s *Sim) Clock(pin int) dht22.Clock {
	ws, _ := s.Sensor(pin)
	return ws
}

// Critical runs fn directly; simulated time does not drift.
func (s *Sim) Critical(fn func()) { fn() }

const (
	simTempMin = 0
	simTempMax = 500
)

func randomWalk(seed int64) func() dht22.Frame {
	r := rand.New(rand.NewSource(seed ^ time.Now().UnixNano()))
	temp, hum := 210, 450
	return func() dht22.Frame {
		// Temperature stays within 0..50.0°C so unsigned decoding never wraps.
		temp = mathx.Clamp(temp+r.Intn(5)-2, simTempMin, simTempMax)
		hum = mathx.Clamp(hum+r.Intn(9)-4, 0, 1000)
		return dht22.NewFrame(uint16(hum), uint16(temp))
	}
}
