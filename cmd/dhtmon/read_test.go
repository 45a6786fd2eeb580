package main

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"sensorcode-go/drivers/dht22"
	"sensorcode-go/services/config"
	"sensorcode-go/x/wiresim"
)

func noPause(t *testing.T) {
	old := pause
	pause = func(time.Duration) {}
	t.Cleanup(func() { pause = old })
	log = zerolog.Nop()
}

func direct(fn func()) { fn() }

func TestReadOnce_DiscardsThenCommits(t *testing.T) {
	noPause(t)
	sim := wiresim.New()
	sim.Queue(dht22.NewFrame(400, 200))
	d := dht22.New(sim, sim)
	require.NoError(t, d.Configure())

	require.NoError(t, readOnce(&d, direct, 3))
	require.InDelta(t, 20.0, d.Temperature(), 1e-6)
	require.Equal(t, 2, sim.Starts())
}

func TestReadOnce_GivesUp(t *testing.T) {
	noPause(t)
	sim := wiresim.New()
	sim.SetConnected(false)
	d := dht22.New(sim, sim)
	require.NoError(t, d.Configure())

	err := readOnce(&d, direct, 2)
	require.ErrorIs(t, err, dht22.ErrTimeout)
}

func TestRunStack_Sim(t *testing.T) {
	log = zerolog.Nop()
	flagSim, flagNoColor = true, true
	t.Cleanup(func() { flagSim, flagNoColor = false, false })
	cfg = config.Default()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, runStack(ctx))
}
