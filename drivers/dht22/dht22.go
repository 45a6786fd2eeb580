// Package dht22 provides a driver for the DHT22 / AM2302 single-wire
// temperature/humidity sensor.
//
// The sensor has no clock line: the host wakes it with a long low pulse, the
// sensor acknowledges with a low/high pulse pair and then sends 40 bits, each
// a 50µs low followed by a high whose width encodes the bit (~26µs = 0,
// ~70µs = 1). The five bytes are humidity hi/lo, temperature hi/lo and an
// 8-bit checksum.
//
//	d := dht22.New(line, clock)
//	d.Configure()
//	err := d.Read()          // start signal + 40 bits + checksum
//	t, h := d.Temperature(), d.Humidity()
//
// The first Read after the sensor (re)appears returns nil without committing
// data (see Recovered); the caller is expected to read again on its next
// poll, at least 2 seconds later.
//
// All waits are busy loops bounded by the injected Clock. A Device is not
// safe for concurrent use and a read cannot be interrupted once started.
package dht22

import (
	"errors"
	"time"
)

// Errors returned by the driver.
var (
	ErrTimeout  = errors.New("dht22: timeout")
	ErrProtocol = errors.New("dht22: protocol error")
	ErrChecksum = errors.New("dht22: checksum mismatch")
)

// Protocol timings (datasheet values; StartLow carries margin over the
// required 800µs minimum).
const (
	DefaultStartLow  = 1200 * time.Microsecond
	DefaultRelease   = 40 * time.Microsecond
	DefaultAckCheck  = 80 * time.Microsecond
	DefaultSettle    = 20 * time.Microsecond
	DefaultBitSample = 40 * time.Microsecond
	DefaultTimeout   = 1 * time.Millisecond

	// MinInterval is the datasheet spacing between two reads. It is not
	// enforced by the driver.
	MinInterval = 2 * time.Second
)

// Config controls protocol timing. All fields are optional.
type Config struct {
	// StartLow is how long the host holds the line low to wake the sensor.
	StartLow time.Duration
	// Release is the wait after releasing the line before the ACK is sampled.
	Release time.Duration
	// AckCheck is the wait after a low ACK sample; a line still low after it
	// is a malformed handshake.
	AckCheck time.Duration
	// Settle is applied after the handshake, before the first bit.
	Settle time.Duration
	// BitSample is the delay from a bit's rising edge to its sample point.
	BitSample time.Duration
	// Timeout bounds every edge wait.
	Timeout time.Duration
	// SignedTemperature decodes the temperature top bit as a sign flag.
	// Off by default: the raw 16-bit value is converted as unsigned, which
	// reads sub-zero temperatures as values above 3276.8.
	SignedTemperature bool
}

func (c Config) withDefaults() Config {
	if c.StartLow <= 0 {
		c.StartLow = DefaultStartLow
	}
	if c.Release <= 0 {
		c.Release = DefaultRelease
	}
	if c.AckCheck <= 0 {
		c.AckCheck = DefaultAckCheck
	}
	if c.Settle <= 0 {
		c.Settle = DefaultSettle
	}
	if c.BitSample <= 0 {
		c.BitSample = DefaultBitSample
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// timing is Config resolved to clock ticks (µs).
type timing struct {
	startLow, release, ackCheck, settle, bitSample, timeout uint32
}

func micros(d time.Duration) uint32 { return uint32(d / time.Microsecond) }

// Device is one sensor bound to one line.
type Device struct {
	line  Line
	clock Clock

	cfg Config
	tm  timing

	present   bool
	recovered bool

	rawHumidity uint16
	rawTemp     uint16
	humidity    float32
	temperature float32
}

// New creates a Device on the given line and clock. It does not touch the
// line; call Configure before the first Read.
func New(line Line, clock Clock) Device {
	return Device{line: line, clock: clock}
}

// Configure applies optional timing config. It may be called with no cfg.
// The line is left as a pulled-up input so it idles high.
func (d *Device) Configure(cfgs ...Config) error {
	var c Config
	if len(cfgs) > 0 {
		c = cfgs[0]
	}
	d.apply(c)
	return d.line.ConfigureInputPullup()
}

func (d *Device) apply(c Config) {
	d.cfg = c.withDefaults()
	d.tm = timing{
		startLow:  micros(d.cfg.StartLow),
		release:   micros(d.cfg.Release),
		ackCheck:  micros(d.cfg.AckCheck),
		settle:    micros(d.cfg.Settle),
		bitSample: micros(d.cfg.BitSample),
		timeout:   micros(d.cfg.Timeout),
	}
}

// Read performs one full transaction and commits the reading on a matching
// checksum. A failed read leaves previously committed values untouched.
func (d *Device) Read() error {
	d.recovered = false
	f, ok, err := d.ReadFrame()
	if err != nil {
		return err
	}
	if !ok {
		d.recovered = true
		return nil
	}
	return d.commit(f)
}

// commit validates f and stores the converted reading.
func (d *Device) commit(f Frame) error {
	if !f.Valid() {
		return ErrChecksum
	}
	d.rawHumidity = f.RawHumidity()
	d.rawTemp = f.RawTemperature()
	d.humidity = float32(f.DeciRelHumidity()) / 10
	d.temperature = float32(f.DeciCelsius(d.cfg.SignedTemperature)) / 10
	return nil
}

// Recovered reports whether the last Read returned nil because the sensor had
// just come back and its first frame was discarded.
func (d *Device) Recovered() bool { return d.recovered }

// Present reports whether the sensor answered the most recent start signal
// and has not failed since.
func (d *Device) Present() bool { return d.present }

// Temperature returns the last committed temperature in °C.
func (d *Device) Temperature() float32 { return d.temperature }

// Humidity returns the last committed relative humidity in %RH.
func (d *Device) Humidity() float32 { return d.humidity }

func (d *Device) RawHumidity() uint16    { return d.rawHumidity }
func (d *Device) RawTemperature() uint16 { return d.rawTemp }

// DeciRelHumidity returns tenths of %RH.
func (d *Device) DeciRelHumidity() int32 { return int32(d.rawHumidity) }

// DeciCelsius returns tenths of °C, honouring SignedTemperature.
func (d *Device) DeciCelsius() int32 {
	return deciCelsius(d.rawTemp, d.cfg.SignedTemperature)
}
