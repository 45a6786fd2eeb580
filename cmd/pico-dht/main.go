//go:build rp2040 || rp2350

// Firmware for a Pico with two DHT22 sensors and a 16x2 HD44780 display.
package main

import (
	"context"
	"machine"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"sensorcode-go/bus"
	"sensorcode-go/services/config"
	"sensorcode-go/services/display"
	"sensorcode-go/services/hal"
	"sensorcode-go/services/hal/platform"

	_ "sensorcode-go/services/hal/devices/dht22"
)

var lcdPins = display.LCDPins{
	RS: machine.GP16,
	E:  machine.GP17,
	D4: machine.GP18,
	D5: machine.GP19,
	D6: machine.GP20,
	D7: machine.GP21,
	RW: machine.NoPin,
}

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	ctx := context.Background()
	log := zerolog.New(machine.Serial).With().Timestamp().Logger()
	log.Info().Msg("boot")

	b := bus.NewBus(8)
	cfg := config.Default()

	lcd, err := display.NewLCD(lcdPins, cfg.Display.Cols, cfg.Display.Rows)
	if err != nil {
		log.Error().Err(err).Msg("lcd init failed")
	} else {
		go display.New(lcd, log).Run(ctx, b.NewConnection("display"))
	}

	go hal.New(b.NewConnection("hal"), platform.NewRP2(), log).Run(ctx)
	config.NewConfigService(cfg, log).Publish(b.NewConnection("config"))

	// Periodic stats.
	tick := time.NewTicker(10 * time.Second)
	defer tick.Stop()
	for range tick.C {
		printMem(log)
	}
}

// printMem logs a compact snapshot of TinyGo runtime memory stats.
func printMem(log zerolog.Logger) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	log.Debug().
		Uint64("alloc", ms.Alloc).
		Uint64("heap_inuse", ms.HeapInuse).
		Uint64("mallocs", ms.Mallocs).
		Uint64("frees", ms.Frees).
		Msg("mem")
}
