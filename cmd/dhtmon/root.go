package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"sensorcode-go/services/config"
)

var (
	flagConfig   string
	flagLogLevel string
	flagNoColor  bool
	flagSim      bool

	cfg config.File
	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "dhtmon",
	Short: "DHT22 temperature/humidity monitor",
	Long: `dhtmon reads DHT22 sensors over their single-wire bus, shows the
readings and optionally forwards them to an MQTT broker.

Without --config the reference board layout is used: dht0 on GPIO14 and
dht1 on GPIO13.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagNoColor {
			color.NoColor = true
		}
		var err error
		if flagConfig != "" {
			if cfg, err = config.Load(flagConfig); err != nil {
				return err
			}
		} else {
			cfg = config.Default()
		}
		if flagLogLevel != "" {
			cfg.LogLevel = flagLogLevel
		}
		lvl, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("log level %q: %w", cfg.LogLevel, err)
		}
		log = newLogger(lvl, flagNoColor)
		return nil
	},
}

func newLogger(lvl zerolog.Level, noColor bool) zerolog.Logger {
	w := zerolog.ConsoleWriter{Out: os.Stderr, NoColor: noColor, TimeFormat: time.TimeOnly}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

func execute() error {
	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", "", "TOML configuration file")
	pf.StringVar(&flagLogLevel, "log-level", "", "override log level (trace, debug, info, warn, error)")
	pf.BoolVar(&flagNoColor, "no-color", false, "disable colored output")
	pf.BoolVar(&flagSim, "sim", false, "use simulated sensors instead of GPIO")

	rootCmd.AddCommand(newRunCmd(), newReadCmd())
}
