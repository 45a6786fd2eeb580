package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"sensorcode-go/drivers/dht22"
)

func newReadCmd() *cobra.Command {
	var attempts int
	cmd := &cobra.Command{
		Use:   "read <sensor-id>",
		Short: "Read one sensor once and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ok := cfg.Sensor(args[0])
			if !ok {
				return fmt.Errorf("unknown sensor %q", args[0])
			}
			plat, err := openPlatform([]int{s.Pin})
			if err != nil {
				return err
			}
			line, ok := plat.Line(s.Pin)
			if !ok {
				return fmt.Errorf("pin %d not available", s.Pin)
			}
			d := dht22.New(line, plat.Clock(s.Pin))
			if err := d.Configure(dht22.Config{
				Timeout:           time.Duration(s.TimeoutUs) * time.Microsecond,
				SignedTemperature: s.SignedTemperature,
			}); err != nil {
				return err
			}
			if err := readOnce(&d, plat.Critical, attempts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n",
				s.ID,
				color.GreenString("%.1fC", d.Temperature()),
				color.CyanString("%.1f%%", d.Humidity()))
			return nil
		},
	}
	cmd.Flags().IntVarP(&attempts, "attempts", "n", 3, "reads to try before giving up")
	return cmd
}

var pause = time.Sleep

// readOnce reads until a frame is committed. The first transaction after
// start-up is always discarded, so at least two are needed.
func readOnce(d *dht22.Device, critical func(func()), attempts int) error {
	var err error
	for i := 0; i < attempts+1; i++ {
		if i > 0 {
			pause(dht22.MinInterval)
		}
		critical(func() { err = d.Read() })
		switch {
		case err != nil:
			log.Debug().Err(err).Int("attempt", i).Msg("read failed")
		case d.Recovered():
			log.Debug().Int("attempt", i).Msg("sensor present; discarding first frame")
		default:
			return nil
		}
	}
	if err == nil {
		err = errors.New("no frame committed")
	}
	return fmt.Errorf("read: %w", err)
}
