package dht22_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"tinygo.org/x/drivers"

	"sensorcode-go/drivers/dht22"
	"sensorcode-go/x/wiresim"
)

// newPresent returns a configured device that has already gone through its
// post-recovery discard, so the next Read decodes data.
func newPresent(t *testing.T, sim *wiresim.Sensor, cfgs ...dht22.Config) *dht22.Device {
	t.Helper()
	d := dht22.New(sim, sim)
	require.NoError(t, d.Configure(cfgs...))
	require.NoError(t, d.Read())
	require.True(t, d.Recovered())
	require.True(t, d.Present())
	return &d
}

func TestRead_Example(t *testing.T) {
	sim := wiresim.New()
	sim.Queue(dht22.Frame{0x01, 0x90, 0x00, 0xC8, 0x59})
	d := newPresent(t, sim)

	require.NoError(t, d.Read())
	require.False(t, d.Recovered())
	require.True(t, d.Present())
	require.Equal(t, uint16(400), d.RawHumidity())
	require.Equal(t, uint16(200), d.RawTemperature())
	require.InDelta(t, 40.0, d.Humidity(), 1e-6)
	require.InDelta(t, 20.0, d.Temperature(), 1e-6)
	require.Equal(t, int32(400), d.DeciRelHumidity())
	require.Equal(t, int32(200), d.DeciCelsius())
	require.Equal(t, 2, sim.Starts())
}

func TestRead_FirstReadAfterBootIsDiscarded(t *testing.T) {
	sim := wiresim.New()
	sim.Queue(dht22.NewFrame(555, 213))
	d := dht22.New(sim, sim)
	require.NoError(t, d.Configure())
	require.False(t, d.Present())

	require.NoError(t, d.Read())
	require.True(t, d.Recovered())
	require.True(t, d.Present())
	require.Zero(t, d.RawHumidity())
	require.Zero(t, d.Temperature())

	require.NoError(t, d.Read())
	require.False(t, d.Recovered())
	require.Equal(t, uint16(555), d.RawHumidity())
	require.Equal(t, uint16(213), d.RawTemperature())
}

func TestRead_ChecksumMismatchKeepsPrevious(t *testing.T) {
	sim := wiresim.New()
	sim.Queue(
		dht22.Frame{0x01, 0x90, 0x00, 0xC8, 0x59},
		dht22.Frame{0x01, 0x90, 0x00, 0xC8, 0x59},
		dht22.Frame{0x01, 0x90, 0x00, 0xC8, 0x5A},
	)
	d := newPresent(t, sim)
	require.NoError(t, d.Read())
	before := *d

	err := d.Read()
	require.ErrorIs(t, err, dht22.ErrChecksum)
	// Handshake succeeded, so presence stays.
	require.True(t, d.Present())
	require.Equal(t, before.RawHumidity(), d.RawHumidity())
	require.Equal(t, before.RawTemperature(), d.RawTemperature())
	require.Equal(t, before.Humidity(), d.Humidity())
	require.Equal(t, before.Temperature(), d.Temperature())
}

func TestRead_TimeoutMidFrame(t *testing.T) {
	cases := []struct {
		name string
		bit  int
		high bool
	}{
		{"stuck high after ack", 0, true},
		{"stuck low in humidity", 3, false},
		{"stuck high in temperature", 20, true},
		{"stuck low in checksum", 39, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sim := wiresim.New()
			sim.Queue(dht22.NewFrame(400, 200), dht22.NewFrame(400, 200), dht22.NewFrame(999, 888))
			d := newPresent(t, sim)
			require.NoError(t, d.Read())

			sim.FailAfterBits(tc.bit, tc.high)
			err := d.Read()
			require.ErrorIs(t, err, dht22.ErrTimeout)
			require.False(t, d.Present())
			require.Equal(t, uint16(400), d.RawHumidity())
			require.Equal(t, uint16(200), d.RawTemperature())
		})
	}
}

func TestRead_RecoveryAfterTimeout(t *testing.T) {
	sim := wiresim.New()
	sim.Queue(dht22.NewFrame(400, 200), dht22.NewFrame(400, 200), dht22.NewFrame(610, 245))
	d := newPresent(t, sim)
	require.NoError(t, d.Read())

	sim.SetConnected(false)
	require.ErrorIs(t, d.Read(), dht22.ErrTimeout)
	require.False(t, d.Present())

	sim.SetConnected(true)
	require.NoError(t, d.Read())
	require.True(t, d.Recovered())
	require.True(t, d.Present())
	require.Equal(t, uint16(400), d.RawHumidity())

	require.NoError(t, d.Read())
	require.False(t, d.Recovered())
	require.Equal(t, uint16(610), d.RawHumidity())
	require.Equal(t, uint16(245), d.RawTemperature())
}

func TestStartSignal_AckHeldLow(t *testing.T) {
	sim := wiresim.New()
	tm := wiresim.DefaultTiming()
	tm.AckLow = 250
	sim.SetTiming(tm)

	d := newPresentOrNot(t, sim)
	err := d.StartSignal()
	require.ErrorIs(t, err, dht22.ErrProtocol)
	require.False(t, d.Present())
}

func TestStartSignal_NoSensor(t *testing.T) {
	sim := wiresim.New()
	sim.SetConnected(false)
	d := newPresentOrNot(t, sim)

	require.ErrorIs(t, d.Read(), dht22.ErrTimeout)
	require.False(t, d.Present())
	require.False(t, d.Recovered())
	require.Zero(t, sim.Starts())
}

func TestStartSignal_SlowResponder(t *testing.T) {
	sim := wiresim.New()
	tm := wiresim.DefaultTiming()
	tm.Response = 60
	sim.SetTiming(tm)
	sim.Queue(dht22.NewFrame(512, 301))
	d := newPresent(t, sim)

	require.NoError(t, d.Read())
	require.Equal(t, uint16(512), d.RawHumidity())
	require.Equal(t, uint16(301), d.RawTemperature())
}

func TestStartSignal_ShortWakePulseIgnored(t *testing.T) {
	sim := wiresim.New()
	d := dht22.New(sim, sim)
	require.NoError(t, d.Configure(dht22.Config{StartLow: 500 * time.Microsecond}))
	require.ErrorIs(t, d.Read(), dht22.ErrTimeout)
	require.Zero(t, sim.Starts())
}

func TestReadByte_TimingMargins(t *testing.T) {
	// Skewed timings within datasheet tolerance still decode.
	tm := wiresim.DefaultTiming()
	tm.BitLow = 56
	tm.ZeroHigh = 22
	tm.OneHigh = 75
	tm.ReadCost = 2
	sim := wiresim.New()
	sim.SetTiming(tm)
	want := dht22.Frame{0xA5, 0x5A, 0xFF, 0x00, 0}
	want[4] = want.Checksum()
	sim.Queue(want)

	d := newPresent(t, sim)
	f, ok, err := d.ReadFrame()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want, f)
}

func TestSignedTemperature(t *testing.T) {
	neg := dht22.NewFrame(655, 0x8065) // -10.1 °C when decoded signed

	sim := wiresim.New()
	sim.Queue(neg)
	d := newPresent(t, sim)
	require.NoError(t, d.Read())
	require.Equal(t, int32(0x8065), d.DeciCelsius())
	require.InDelta(t, float32(0x8065)/10, d.Temperature(), 1e-3)

	sim2 := wiresim.New()
	sim2.Queue(neg)
	d2 := newPresent(t, sim2, dht22.Config{SignedTemperature: true})
	require.NoError(t, d2.Read())
	require.Equal(t, int32(-101), d2.DeciCelsius())
	require.InDelta(t, -10.1, d2.Temperature(), 1e-5)
}

func TestGettersIdempotent(t *testing.T) {
	sim := wiresim.New()
	sim.Queue(dht22.NewFrame(482, 227))
	d := newPresent(t, sim)
	require.NoError(t, d.Read())

	starts := sim.Starts()
	for i := 0; i < 3; i++ {
		require.InDelta(t, 48.2, d.Humidity(), 1e-5)
		require.InDelta(t, 22.7, d.Temperature(), 1e-5)
		require.True(t, d.Present())
	}
	require.Equal(t, starts, sim.Starts())
}

func TestUpdate(t *testing.T) {
	sim := wiresim.New()
	sim.Queue(dht22.NewFrame(300, 150))
	d := newPresent(t, sim)
	starts := sim.Starts()

	require.NoError(t, d.Update(drivers.Voltage))
	require.Equal(t, starts, sim.Starts())

	require.NoError(t, d.Update(drivers.Temperature|drivers.Humidity))
	require.Equal(t, starts+1, sim.Starts())
	require.Equal(t, uint16(300), d.RawHumidity())
}

func newPresentOrNot(t *testing.T, sim *wiresim.Sensor) *dht22.Device {
	t.Helper()
	d := dht22.New(sim, sim)
	require.NoError(t, d.Configure())
	return &d
}
