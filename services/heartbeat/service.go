package heartbeat

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"sensorcode-go/bus"
	"sensorcode-go/services/config"
)

var (
	topicConfigHeartbeat = bus.T("config", "heartbeat")
	topicHeartbeat       = bus.T("sys", "heartbeat")
)

const defaultInterval = 10 * time.Second

// Beat is published retained on sys/heartbeat.
type Beat struct {
	Seq    uint64 `json:"seq"`
	Uptime int64  `json:"uptime_s"`
	TS     int64  `json:"ts_ms"`
}

type Service struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Service {
	return &Service{log: log.With().Str("svc", "heartbeat").Logger()}
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Disconnect()

	start := time.Now()
	tick := time.NewTicker(defaultInterval)
	defer tick.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("heartbeat service stopping")
			return
		case t := <-tick.C:
			seq++
			conn.Publish(conn.NewMessage(topicHeartbeat, Beat{
				Seq:    seq,
				Uptime: int64(t.Sub(start) / time.Second),
				TS:     t.UnixMilli(),
			}, true))
			s.log.Debug().Uint64("seq", seq).Msg("heartbeat")
		case msg := <-cfgSub.Channel():
			if msg == nil {
				continue
			}
			if c, ok := msg.Payload.(config.HeartbeatConfig); ok && c.IntervalS > 0 {
				tick.Reset(time.Duration(c.IntervalS) * time.Second)
				s.log.Info().Int("interval_s", c.IntervalS).Msg("heartbeat interval set")
			}
		}
	}
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) {
	go s.serviceLoop(ctx, conn)
}
