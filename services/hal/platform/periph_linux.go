// services/hal/platform/periph_linux.go
//go:build linux && !(rp2040 || rp2350)

package platform

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"sensorcode-go/drivers/dht22"
	"sensorcode-go/errcode"
	"sensorcode-go/x/timex"
)

// Periph drives sensors on Linux GPIO through periph.io. Pin n is looked up
// as "GPIO<n>".
type Periph struct {
	clock *timex.MicroClock

	mu    sync.Mutex
	lines map[int]*periphLine
}

// NewPeriph initialises the periph host drivers.
func NewPeriph() (*Periph, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return &Periph{clock: timex.NewMicroClock(), lines: map[int]*periphLine{}}, nil
}

func (p *Periph) Line(pin int) (dht22.Line, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.lines[pin]; ok {
		return l, true
	}
	gp := gpioreg.ByName("GPIO" + strconv.Itoa(pin))
	if gp == nil {
		return nil, false
	}
	l := &periphLine{pin: gp}
	p.lines[pin] = l
	return l, true
}

// Clock is shared by every line; the line worker serialises its use.
func (p *Periph) Clock(int) dht22.Clock { return p.clock }

// Critical pins the goroutine to its thread and pauses the garbage
// collector while fn runs.
func (p *Periph) Critical(fn func()) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	gc := debug.SetGCPercent(-1)
	defer debug.SetGCPercent(gc)
	fn()
}

type periphLine struct {
	pin   gpio.PinIO
	level gpio.Level
	out   bool
}

func (l *periphLine) ConfigureOutput() error {
	l.out = true
	if err := l.pin.Out(l.level); err != nil {
		return &errcode.E{C: errcode.IOError, Op: "configure", Msg: l.pin.Name() + " output", Err: err}
	}
	return nil
}

func (l *periphLine) ConfigureInputPullup() error {
	l.out = false
	if err := l.pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return &errcode.E{C: errcode.IOError, Op: "configure", Msg: l.pin.Name() + " input", Err: err}
	}
	return nil
}

func (l *periphLine) Set(high bool) {
	l.level = gpio.Level(high)
	if l.out {
		_ = l.pin.Out(l.level)
	}
}

func (l *periphLine) Get() bool { return bool(l.pin.Read()) }
