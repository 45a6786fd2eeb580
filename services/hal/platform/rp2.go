// services/hal/platform/rp2.go
//go:build rp2040 || rp2350

package platform

import (
	"machine"
	"runtime/interrupt"

	"sensorcode-go/drivers/dht22"
	"sensorcode-go/x/timex"
)

// RP2 drives sensors on RP2040/RP2350 GPIO. The microsecond timer is read
// through time.Now, which TinyGo backs with the hardware timer.
type RP2 struct {
	clock *timex.MicroClock
	lines map[int]*rp2Line
}

func NewRP2() *RP2 {
	return &RP2{clock: timex.NewMicroClock(), lines: map[int]*rp2Line{}}
}

func (p *RP2) Line(pin int) (dht22.Line, bool) {
	if pin < 0 || pin >= int(machine.NoPin) {
		return nil, false
	}
	if l, ok := p.lines[pin]; ok {
		return l, true
	}
	l := &rp2Line{p: machine.Pin(pin)}
	p.lines[pin] = l
	return l, true
}

func (p *RP2) Clock(int) dht22.Clock { return p.clock }

// Critical runs fn with interrupts disabled.
func (p *RP2) Critical(fn func()) {
	st := interrupt.Disable()
	defer interrupt.Restore(st)
	fn()
}

type rp2Line struct{ p machine.Pin }

func (l *rp2Line) ConfigureOutput() error {
	l.p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return nil
}

func (l *rp2Line) ConfigureInputPullup() error {
	l.p.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	return nil
}

func (l *rp2Line) Set(high bool) { l.p.Set(high) }
func (l *rp2Line) Get() bool     { return l.p.Get() }
