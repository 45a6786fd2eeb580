// services/hal/devices/dht22/builder.go
package dht22dev

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"sensorcode-go/drivers/dht22"
	"sensorcode-go/errcode"
	"sensorcode-go/services/hal"
	"sensorcode-go/types"
	"sensorcode-go/x/mathx"
)

func init() { hal.RegisterBuilder("dht22", builder{}) }

// minReadGap is the shortest spacing between two read starts.
var minReadGap = dht22.MinInterval

type builder struct{}

func (builder) Build(ctx context.Context, in hal.BuilderInput) (hal.Device, error) {
	var p types.DHT22Params
	switch v := in.Params.(type) {
	case types.DHT22Params:
		p = v
	case *types.DHT22Params:
		if v == nil {
			return nil, errcode.InvalidParams
		}
		p = *v
	default:
		return nil, errcode.InvalidParams
	}
	if p.Pin < 0 {
		return nil, errcode.InvalidParams
	}
	own, err := in.Res.Reg.ClaimLine(in.ID, p.Pin)
	if err != nil {
		return nil, err
	}
	d := &Device{
		id:     in.ID,
		params: p,
		line:   own,
		pub:    in.Res.Pub,
		reg:    in.Res.Reg,
		drv:    dht22.New(own.Line(), own.Clock()),
	}
	d.jobRead = &readJob{d: d}
	return d, nil
}

type Device struct {
	id     string
	params types.DHT22Params

	line hal.LineOwner
	pub  hal.EventEmitter
	reg  hal.ResourceRegistry

	drv     dht22.Device
	jobRead *readJob

	// queued is set while jobRead sits in the worker queue or runs.
	queued atomic.Bool

	mu       sync.Mutex
	lastRead time.Time

	addrTemp hal.CapAddr
	addrHum  hal.CapAddr
}

func (d *Device) ID() string { return d.id }

func (d *Device) Capabilities() []hal.CapabilitySpec {
	return []hal.CapabilitySpec{
		{
			Domain: types.DomainEnv,
			Kind:   types.KindTemperature,
			Name:   d.id,
			Info: types.Info{
				SchemaVersion: 1, Driver: "dht22",
				Detail: types.TemperatureInfo{Sensor: "dht22", Pin: d.params.Pin},
			},
		},
		{
			Domain: types.DomainEnv,
			Kind:   types.KindHumidity,
			Name:   d.id,
			Info: types.Info{
				SchemaVersion: 1, Driver: "dht22",
				Detail: types.HumidityInfo{Sensor: "dht22", Pin: d.params.Pin},
			},
		},
	}
}

// Init sets up addresses and the line's idle state. It does not start a
// transaction; the first read happens from the worker.
func (d *Device) Init(ctx context.Context) error {
	d.addrTemp = hal.CapAddr{Domain: types.DomainEnv, Kind: string(types.KindTemperature), Name: d.id}
	d.addrHum = hal.CapAddr{Domain: types.DomainEnv, Kind: string(types.KindHumidity), Name: d.id}
	return d.drv.Configure(dht22.Config{
		Timeout:           time.Duration(d.params.TimeoutUs) * time.Microsecond,
		SignedTemperature: d.params.SignedTemperature,
	})
}

func (d *Device) Close() error {
	if d.reg != nil {
		d.reg.ReleaseLine(d.id, d.params.Pin)
	}
	return nil
}

func (d *Device) Control(_ hal.CapAddr, method string, _ any) (hal.EnqueueResult, error) {
	switch method {
	case "read":
		if !d.queued.CompareAndSwap(false, true) {
			return hal.EnqueueResult{OK: false, Error: errcode.Busy}, nil
		}
		d.mu.Lock()
		tooSoon := !d.lastRead.IsZero() && time.Since(d.lastRead) < minReadGap
		d.mu.Unlock()
		if tooSoon || !d.line.TryEnqueueJob(d.jobRead) {
			d.queued.Store(false)
			return hal.EnqueueResult{OK: false, Error: errcode.Busy}, nil
		}
		return hal.EnqueueResult{OK: true}, nil
	default:
		return hal.EnqueueResult{OK: false, Error: errcode.Unsupported}, nil
	}
}

var _ hal.LineJob = (*readJob)(nil)

// readJob is reusable; one instance per device.
type readJob struct{ d *Device }

func (j *readJob) Run() {
	d := j.d
	defer d.queued.Store(false)

	start := time.Now()
	d.mu.Lock()
	d.lastRead = start
	d.mu.Unlock()

	if err := d.drv.Read(); err != nil {
		d.emitErr(string(errcode.MapDriverErr(err)), start.UnixMilli())
		return
	}
	if d.drv.Recovered() {
		// Sensor just came back; its first frame is not trusted.
		return
	}

	ts := time.Now().UnixMilli()
	d.pub.Emit(hal.Event{
		Addr:    d.addrTemp,
		Payload: types.TemperatureValue{DeciC: d.drv.DeciCelsius()},
		TSms:    ts,
	})
	d.pub.Emit(hal.Event{
		Addr:    d.addrHum,
		Payload: types.HumidityValue{RHx100: mathx.SatU16(d.drv.DeciRelHumidity() * 10)},
		TSms:    ts,
	})
}

func (d *Device) emitErr(code string, ts int64) {
	d.pub.Emit(hal.Event{Addr: d.addrTemp, Err: code, TSms: ts})
	d.pub.Emit(hal.Event{Addr: d.addrHum, Err: code, TSms: ts})
}
