package dht22dev

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"sensorcode-go/bus"
	"sensorcode-go/drivers/dht22"
	"sensorcode-go/errcode"
	"sensorcode-go/services/hal"
	"sensorcode-go/services/hal/platform"
	"sensorcode-go/types"
)

var (
	tempAddr = hal.CapAddr{Domain: types.DomainEnv, Kind: string(types.KindTemperature), Name: "dht0"}
	humAddr  = hal.CapAddr{Domain: types.DomainEnv, Kind: string(types.KindHumidity), Name: "dht0"}
)

func startSim(t *testing.T, gap time.Duration, devs ...types.HALDevice) (*bus.Connection, *platform.Sim) {
	t.Helper()
	old := minReadGap
	minReadGap = gap
	t.Cleanup(func() { minReadGap = old })

	sim := platform.NewSim(4, 5)
	b := bus.NewBus(64)
	conn := b.NewConnection("test")
	h := hal.New(b.NewConnection("hal"), sim, zerolog.Nop())

	state := conn.Subscribe(bus.T("hal", "state"))
	defer conn.Unsubscribe(state)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)

	conn.Publish(conn.NewMessage(bus.T("config", "hal"), types.HALConfig{Devices: devs}, true))
	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-state.Channel():
			if st, ok := m.Payload.(types.HALState); ok && st.Level == "ready" {
				return conn, sim
			}
		case <-deadline:
			t.Fatal("HAL never became ready")
		}
	}
}

func dht0() types.HALDevice {
	return types.HALDevice{ID: "dht0", Type: "dht22", Params: types.DHT22Params{Pin: 4}}
}

func read(t *testing.T, conn *bus.Connection, addr hal.CapAddr) any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m, err := conn.RequestWait(ctx, conn.NewMessage(hal.CapControl(addr, "read"), nil, false))
	require.NoError(t, err)
	return m.Payload
}

// readUntil issues reads until sub delivers a message accepted by match.
func readUntil(t *testing.T, conn *bus.Connection, sub *bus.Subscription, match func(*bus.Message) bool) *bus.Message {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		read(t, conn, tempAddr)
		select {
		case m := <-sub.Channel():
			if match(m) {
				return m
			}
		case <-time.After(20 * time.Millisecond):
		}
	}
	t.Fatalf("no matching message on %s", sub.Topic())
	return nil
}

func TestDHT22_EndToEnd(t *testing.T) {
	conn, sim := startSim(t, 0, dht0())
	ws, ok := sim.Sensor(4)
	require.True(t, ok)
	ws.Queue(dht22.Frame{0x01, 0x90, 0x00, 0xC8, 0x59})

	info := <-conn.Subscribe(hal.CapInfo(tempAddr)).Channel()
	require.Equal(t, types.TemperatureInfo{Sensor: "dht22", Pin: 4}, info.Payload.(types.Info).Detail)

	temp := conn.Subscribe(hal.CapValue(tempAddr))
	m := readUntil(t, conn, temp, func(*bus.Message) bool { return true })
	require.Equal(t, types.TemperatureValue{DeciC: 200}, m.Payload)
	require.True(t, m.Retained)

	hum := <-conn.Subscribe(hal.CapValue(humAddr)).Channel()
	require.Equal(t, types.HumidityValue{RHx100: 4000}, hum.Payload)

	// The first transaction after boot is a discard, so at least two starts.
	require.GreaterOrEqual(t, ws.Starts(), 2)
}

func TestDHT22_UnsignedTemperatureNotSaturated(t *testing.T) {
	conn, sim := startSim(t, 0, dht0())
	ws, _ := sim.Sensor(4)
	ws.Queue(dht22.NewFrame(400, 0x8065))

	temp := conn.Subscribe(hal.CapValue(tempAddr))
	m := readUntil(t, conn, temp, func(*bus.Message) bool { return true })
	// 0x8065 read unsigned is 3286.9°C, published as-is.
	require.Equal(t, types.TemperatureValue{DeciC: 0x8065}, m.Payload)
}

func TestDHT22_TimeoutDegradesStatus(t *testing.T) {
	conn, sim := startSim(t, 0, dht0())
	ws, _ := sim.Sensor(4)
	ws.Queue(dht22.NewFrame(450, 215))

	temp := conn.Subscribe(hal.CapValue(tempAddr))
	readUntil(t, conn, temp, func(*bus.Message) bool { return true })

	ws.FailAfterBits(10, false)
	status := conn.Subscribe(hal.CapStatus(tempAddr))
	m := readUntil(t, conn, status, func(m *bus.Message) bool {
		return m.Payload.(types.CapabilityStatus).Link == types.LinkDegraded
	})
	require.Equal(t, string(errcode.Timeout), m.Payload.(types.CapabilityStatus).Error)

	// Recovery: the next frame is discarded, then data flows again.
	ws.FailAfterBits(-1, false)
	m = readUntil(t, conn, status, func(m *bus.Message) bool {
		return m.Payload.(types.CapabilityStatus).Link == types.LinkUp
	})
	require.Empty(t, m.Payload.(types.CapabilityStatus).Error)
}

func TestDHT22_NoSensor(t *testing.T) {
	conn, sim := startSim(t, 0, dht0())
	ws, _ := sim.Sensor(4)
	ws.SetConnected(false)

	status := conn.Subscribe(hal.CapStatus(humAddr))
	m := readUntil(t, conn, status, func(m *bus.Message) bool {
		return m.Payload.(types.CapabilityStatus).Link == types.LinkDegraded
	})
	require.Equal(t, string(errcode.Timeout), m.Payload.(types.CapabilityStatus).Error)
}

func TestDHT22_ReadsTooCloseAreBusy(t *testing.T) {
	conn, _ := startSim(t, time.Hour, dht0())

	require.Equal(t, types.OKReply{OK: true}, read(t, conn, tempAddr))
	// Either still queued or inside the minimum gap.
	require.Equal(t, types.ErrorReply{Error: string(errcode.Busy)}, read(t, conn, tempAddr))
	require.Equal(t, types.ErrorReply{Error: string(errcode.Busy)}, read(t, conn, humAddr))
}

func TestDHT22_UnsupportedVerb(t *testing.T) {
	conn, _ := startSim(t, 0, dht0())
	require.Equal(t, types.ErrorReply{Error: string(errcode.Unsupported)}, control(t, conn, "calibrate"))
}

func control(t *testing.T, conn *bus.Connection, verb string) any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m, err := conn.RequestWait(ctx, conn.NewMessage(hal.CapControl(tempAddr, verb), nil, false))
	require.NoError(t, err)
	return m.Payload
}

func TestBuild_Params(t *testing.T) {
	sim := platform.NewSim(4)
	var reg fakeReg
	reg.plat = sim
	in := hal.BuilderInput{ID: "dht0", Type: "dht22", Res: hal.Resources{Reg: &reg}}

	in.Params = map[string]any{"pin": 4}
	_, err := builder{}.Build(context.Background(), in)
	require.ErrorIs(t, err, errcode.InvalidParams)

	in.Params = types.DHT22Params{Pin: -1}
	_, err = builder{}.Build(context.Background(), in)
	require.ErrorIs(t, err, errcode.InvalidParams)

	in.Params = &types.DHT22Params{Pin: 4, TimeoutUs: 2000}
	dev, err := builder{}.Build(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, "dht0", dev.ID())
	require.Len(t, dev.Capabilities(), 2)
	require.NoError(t, dev.Init(context.Background()))
	require.NoError(t, dev.Close())
	require.Equal(t, []int{4}, reg.released)
}

func TestBuild_PinInUse(t *testing.T) {
	conn, _ := startSim(t, 0,
		dht0(),
		types.HALDevice{ID: "dht1", Type: "dht22", Params: types.DHT22Params{Pin: 4}},
	)
	dht1 := hal.CapAddr{Domain: types.DomainEnv, Kind: string(types.KindTemperature), Name: "dht1"}
	require.Equal(t, types.ErrorReply{Error: string(errcode.UnknownCapability)}, read(t, conn, dht1))
}

type fakeReg struct {
	plat     hal.Platform
	released []int
}

type fakeOwner struct {
	pin  int
	plat hal.Platform
}

func (o fakeOwner) Pin() int { return o.pin }
func (o fakeOwner) Line() dht22.Line {
	l, _ := o.plat.Line(o.pin)
	return l
}
func (o fakeOwner) Clock() dht22.Clock             { return o.plat.Clock(o.pin) }
func (o fakeOwner) TryEnqueueJob(hal.LineJob) bool { return false }

func (r *fakeReg) ClaimLine(_ string, pin int) (hal.LineOwner, error) {
	return fakeOwner{pin: pin, plat: r.plat}, nil
}
func (r *fakeReg) ReleaseLine(_ string, pin int) { r.released = append(r.released, pin) }
