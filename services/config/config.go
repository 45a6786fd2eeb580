// Package config loads the TOML configuration and hands each service its
// part as a retained message on config/<service>.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"sensorcode-go/bus"
	"sensorcode-go/types"
)

const (
	configPrefix = "config"

	// MinIntervalMs is the shortest read spacing a DHT22 tolerates.
	MinIntervalMs = 2000
	DefaultCols   = 16
	DefaultRows   = 2
	defaultHBSecs = 10
)

// File is the on-disk configuration.
type File struct {
	LogLevel  string    `toml:"log_level"`
	Sensors   []Sensor  `toml:"sensor"`
	Display   Display   `toml:"display"`
	Bridge    Bridge    `toml:"bridge"`
	Heartbeat Heartbeat `toml:"heartbeat"`
}

type Sensor struct {
	ID                string `toml:"id"`
	Pin               int    `toml:"pin"`
	IntervalMs        uint32 `toml:"interval_ms"`
	JitterMs          uint16 `toml:"jitter_ms"`
	TimeoutUs         uint32 `toml:"timeout_us"`
	SignedTemperature bool   `toml:"signed_temperature"`
}

type Display struct {
	Rows    int      `toml:"rows"`
	Cols    int      `toml:"cols"`
	Sensors []string `toml:"sensors"` // defaults to every sensor in file order
}

type Bridge struct {
	Broker   string `toml:"broker"` // empty disables the bridge
	ClientID string `toml:"client_id"`
	Prefix   string `toml:"prefix"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

type Heartbeat struct {
	IntervalS int `toml:"interval_s"`
}

// Default mirrors the reference board: two sensors and a 16x2 display.
func Default() File {
	f := File{
		LogLevel: "info",
		Sensors: []Sensor{
			{ID: "dht0", Pin: 14},
			{ID: "dht1", Pin: 13},
		},
	}
	f.ApplyDefaults()
	return f
}

// Load reads and validates a TOML file. Unknown keys are an error.
func Load(path string) (File, error) {
	var f File
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return File{}, fmt.Errorf("config: %w", err)
	}
	return finish(f, md)
}

// Parse is Load for an in-memory document.
func Parse(doc string) (File, error) {
	var f File
	md, err := toml.Decode(doc, &f)
	if err != nil {
		return File{}, fmt.Errorf("config: %w", err)
	}
	return finish(f, md)
}

func finish(f File, md toml.MetaData) (File, error) {
	if und := md.Undecoded(); len(und) > 0 {
		keys := make([]string, len(und))
		for i, k := range und {
			keys[i] = k.String()
		}
		return File{}, fmt.Errorf("config: unknown keys: %s", strings.Join(keys, ", "))
	}
	f.ApplyDefaults()
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// ApplyDefaults fills zero values and raises intervals to MinIntervalMs.
func (f *File) ApplyDefaults() {
	if f.LogLevel == "" {
		f.LogLevel = "info"
	}
	for i := range f.Sensors {
		if f.Sensors[i].IntervalMs < MinIntervalMs {
			f.Sensors[i].IntervalMs = MinIntervalMs
		}
	}
	if f.Display.Rows == 0 {
		f.Display.Rows = DefaultRows
	}
	if f.Display.Cols == 0 {
		f.Display.Cols = DefaultCols
	}
	if len(f.Display.Sensors) == 0 {
		for _, s := range f.Sensors {
			f.Display.Sensors = append(f.Display.Sensors, s.ID)
		}
	}
	if f.Heartbeat.IntervalS == 0 {
		f.Heartbeat.IntervalS = defaultHBSecs
	}
}

var (
	ErrNoSensors = errors.New("config: no sensors")
	ErrBadSensor = errors.New("config: invalid sensor")
)

func (f *File) Validate() error {
	if len(f.Sensors) == 0 {
		return ErrNoSensors
	}
	if _, err := zerolog.ParseLevel(f.LogLevel); err != nil {
		return fmt.Errorf("config: log_level %q: %w", f.LogLevel, err)
	}
	ids := map[string]bool{}
	pins := map[int]string{}
	for _, s := range f.Sensors {
		switch {
		case s.ID == "" || strings.ContainsAny(s.ID, "/+#"):
			return fmt.Errorf("%w: id %q", ErrBadSensor, s.ID)
		case ids[s.ID]:
			return fmt.Errorf("%w: duplicate id %q", ErrBadSensor, s.ID)
		case s.Pin < 0:
			return fmt.Errorf("%w: %s: pin %d", ErrBadSensor, s.ID, s.Pin)
		}
		if other, taken := pins[s.Pin]; taken {
			return fmt.Errorf("%w: %s: pin %d already used by %s", ErrBadSensor, s.ID, s.Pin, other)
		}
		ids[s.ID] = true
		pins[s.Pin] = s.ID
	}
	for _, id := range f.Display.Sensors {
		if !ids[id] {
			return fmt.Errorf("config: display: unknown sensor %q", id)
		}
	}
	if f.Display.Rows < 0 || f.Display.Cols < 0 {
		return errors.New("config: display: negative size")
	}
	if strings.ContainsAny(f.Bridge.Prefix, "+#") {
		return fmt.Errorf("config: bridge: prefix %q contains a wildcard", f.Bridge.Prefix)
	}
	if f.Heartbeat.IntervalS < 0 {
		return errors.New("config: heartbeat: negative interval")
	}
	return nil
}

// Sensor returns the sensor with id.
func (f *File) Sensor(id string) (Sensor, bool) {
	for _, s := range f.Sensors {
		if s.ID == id {
			return s, true
		}
	}
	return Sensor{}, false
}

// Pins lists the sensor pins in file order.
func (f *File) Pins() []int {
	out := make([]int, len(f.Sensors))
	for i, s := range f.Sensors {
		out[i] = s.Pin
	}
	return out
}

// HAL builds the HAL configuration: one dht22 device and one read poller
// per sensor.
func (f *File) HAL() types.HALConfig {
	var cfg types.HALConfig
	for _, s := range f.Sensors {
		cfg.Devices = append(cfg.Devices, types.HALDevice{
			ID:   s.ID,
			Type: "dht22",
			Params: types.DHT22Params{
				Pin:               s.Pin,
				TimeoutUs:         s.TimeoutUs,
				SignedTemperature: s.SignedTemperature,
			},
		})
		cfg.Pollers = append(cfg.Pollers, types.PollSpec{
			Domain:     types.DomainEnv,
			Kind:       types.KindTemperature,
			Name:       s.ID,
			Verb:       "read",
			IntervalMs: s.IntervalMs,
			JitterMs:   s.JitterMs,
		})
	}
	return cfg
}

func (f *File) DisplayConfig() types.DisplayConfig {
	return types.DisplayConfig{Rows: f.Display.Rows, Cols: f.Display.Cols, Sensors: f.Display.Sensors}
}

func (f *File) BridgeConfig() types.BridgeConfig {
	return types.BridgeConfig(f.Bridge)
}

// HeartbeatConfig is published on config/heartbeat.
type HeartbeatConfig struct {
	IntervalS int `json:"interval_s"`
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type ConfigService struct {
	file File
	log  zerolog.Logger
}

func NewConfigService(f File, log zerolog.Logger) *ConfigService {
	return &ConfigService{file: f, log: log.With().Str("svc", "config").Logger()}
}

// Publish sends every service its configuration as retained messages. The
// bridge is only configured when a broker is set.
func (s *ConfigService) Publish(conn *bus.Connection) {
	pub := func(key string, v any) {
		conn.Publish(conn.NewMessage(bus.T(configPrefix, key), v, true))
		s.log.Debug().Str("key", key).Msg("published")
	}
	pub("hal", s.file.HAL())
	pub("display", s.file.DisplayConfig())
	pub("heartbeat", HeartbeatConfig{IntervalS: s.file.Heartbeat.IntervalS})
	if s.file.Bridge.Broker != "" {
		pub("bridge", s.file.BridgeConfig())
	}
}

// Start publishes the configuration in the background.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if ctx.Err() != nil {
			return
		}
		s.Publish(conn)
	}()
}
