// Package display renders the latest sensor readings to a character
// display, one row per sensor.
package display

import (
	"context"

	"github.com/rs/zerolog"

	"sensorcode-go/bus"
	"sensorcode-go/types"
	"sensorcode-go/x/conv"
)

// RowState selects how a row is drawn.
type RowState uint8

const (
	RowNoSensor RowState = iota
	RowOK
	RowError
)

// Row is one rendered line.
type Row struct {
	Text  string
	State RowState
}

// Renderer draws a full frame of rows. Rows are already cut to width.
type Renderer interface {
	Render(rows []Row) error
}

var topicConfig = bus.T("config", "display")

// sensor holds the last known readings of one device.
type sensor struct {
	deciC    int32
	rhx100   uint16
	hasTemp  bool
	hasHum   bool
	degraded bool
	errCode  string
}

type Service struct {
	r   Renderer
	log zerolog.Logger

	cfg     types.DisplayConfig
	sensors map[string]*sensor
	last    []Row
}

func New(r Renderer, log zerolog.Logger) *Service {
	return &Service{
		r:       r,
		log:     log.With().Str("svc", "display").Logger(),
		sensors: map[string]*sensor{},
	}
}

func (s *Service) Run(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfig)
	capSub := conn.Subscribe(bus.T("hal", "cap", types.DomainEnv, "+", "+", "+"))
	defer conn.Disconnect()

	for {
		select {
		case <-ctx.Done():
			return
		case m := <-cfgSub.Channel():
			if m == nil {
				continue
			}
			cfg, ok := m.Payload.(types.DisplayConfig)
			if !ok {
				s.log.Warn().Msg("ignoring non-DisplayConfig payload")
				continue
			}
			s.cfg = cfg
		case m := <-capSub.Channel():
			if m == nil || !s.apply(m) {
				continue
			}
		}
		s.redraw()
	}
}

// apply folds a hal/cap/env/<kind>/<id>/<leaf> message into the sensor
// table and reports whether anything changed.
func (s *Service) apply(m *bus.Message) bool {
	if m.Topic.Len() != 6 {
		return false
	}
	id, _ := m.Topic.At(4).(string)
	leaf, _ := m.Topic.At(5).(string)
	if id == "" {
		return false
	}
	st := s.sensors[id]
	if st == nil {
		st = &sensor{}
		s.sensors[id] = st
	}
	switch leaf {
	case "value":
		switch v := m.Payload.(type) {
		case types.TemperatureValue:
			st.deciC, st.hasTemp = v.DeciC, true
		case types.HumidityValue:
			st.rhx100, st.hasHum = v.RHx100, true
		default:
			return false
		}
	case "status":
		cs, ok := m.Payload.(types.CapabilityStatus)
		if !ok {
			return false
		}
		st.degraded = cs.Link == types.LinkDegraded
		st.errCode = cs.Error
	default:
		return false
	}
	return true
}

func (s *Service) redraw() {
	rows := s.Rows()
	if equalRows(rows, s.last) {
		return
	}
	if err := s.r.Render(rows); err != nil {
		s.log.Warn().Err(err).Msg("render failed")
		return
	}
	s.last = rows
}

// Rows formats the configured sensors in order.
func (s *Service) Rows() []Row {
	ids := s.cfg.Sensors
	if s.cfg.Rows > 0 && len(ids) > s.cfg.Rows {
		ids = ids[:s.cfg.Rows]
	}
	rows := make([]Row, 0, len(ids))
	for _, id := range ids {
		row := formatRow(id, s.sensors[id])
		if s.cfg.Cols > 0 && len(row.Text) > s.cfg.Cols {
			row.Text = row.Text[:s.cfg.Cols]
		}
		rows = append(rows, row)
	}
	return rows
}

// formatRow renders "<id> 20.0C 40.0%", "<id> no sensor" or
// "<id> err <code>". A nil sensor has never been seen.
func formatRow(id string, st *sensor) Row {
	b := make([]byte, 0, 24)
	b = append(b, id...)
	switch {
	case st == nil:
		return Row{Text: string(append(b, " no sensor"...)), State: RowNoSensor}
	case st.degraded:
		code := st.errCode
		if code == "" {
			code = "error"
		}
		return Row{Text: string(append(append(b, " err "...), code...)), State: RowError}
	case !st.hasTemp && !st.hasHum:
		return Row{Text: string(append(b, " no sensor"...)), State: RowNoSensor}
	}
	if st.hasTemp {
		b = append(b, ' ')
		b = conv.AppendDeci(b, st.deciC)
		b = append(b, 'C')
	}
	if st.hasHum {
		b = append(b, ' ')
		b = conv.AppendDeci(b, int32(st.rhx100)/10)
		b = append(b, '%')
	}
	return Row{Text: string(b), State: RowOK}
}

func equalRows(a, b []Row) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
