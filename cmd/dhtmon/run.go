package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sensorcode-go/bus"
	"sensorcode-go/services/bridge"
	"sensorcode-go/services/config"
	"sensorcode-go/services/display"
	"sensorcode-go/services/hal"
	"sensorcode-go/services/heartbeat"

	// Device builders register with HAL.
	_ "sensorcode-go/services/hal/devices/dht22"
)

const busQueueLen = 32

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll every configured sensor until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runStack(ctx)
		},
	}
}

func runStack(ctx context.Context) error {
	plat, err := openPlatform(cfg.Pins())
	if err != nil {
		return err
	}

	b := bus.NewBus(busQueueLen)
	h := hal.New(b.NewConnection("hal"), plat, log)
	disp := display.New(display.NewConsole(os.Stdout, flagNoColor), log)
	br := bridge.New(b.NewConnection("bridge"), bridge.DialMQTT, log)

	go h.Run(ctx)
	go disp.Run(ctx, b.NewConnection("display"))
	go br.Run(ctx)
	heartbeat.New(log).Start(ctx, b.NewConnection("heartbeat"))
	config.NewConfigService(cfg, log).Start(ctx, b.NewConnection("config"))

	log.Info().Int("sensors", len(cfg.Sensors)).Bool("sim", flagSim).Msg("running")
	<-ctx.Done()
	log.Info().Msg("shutting down")
	return nil
}
