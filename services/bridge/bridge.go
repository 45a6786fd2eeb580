// bridge/bridge.go
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sensorcode-go/bus"
	"sensorcode-go/types"
)

// -----------------------------------------------------------------------------
// Public entry point
// -----------------------------------------------------------------------------

// Publisher is the upstream side of the bridge.
type Publisher interface {
	Connect(ctx context.Context) error
	Publish(topic string, payload []byte, retained bool) error
	Close()
}

// Dialer builds a Publisher for a configuration.
type Dialer func(cfg types.BridgeConfig) (Publisher, error)

// Start runs the bridge until ctx is cancelled. It waits for a BridgeConfig
// on config/bridge and forwards hal/cap/# to the configured broker.
func Start(ctx context.Context, conn *bus.Connection, log zerolog.Logger) {
	New(conn, DialMQTT, log).Run(ctx)
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type Service struct {
	conn *bus.Connection
	dial Dialer
	log  zerolog.Logger

	mu     sync.Mutex
	curRun context.CancelFunc
	done   chan struct{}
}

func New(conn *bus.Connection, dial Dialer, log zerolog.Logger) *Service {
	return &Service{conn: conn, dial: dial, log: log.With().Str("svc", "bridge").Logger()}
}

var (
	topicConfig = bus.T("config", "bridge")
	topicState  = bus.T("bridge", "state")
	topicCaps   = bus.T("hal", "cap", "#")
)

// Run waits for config and supervises a single link.
func (s *Service) Run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfig)
	defer s.conn.Unsubscribe(cfgSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.publishState("error", "config_subscription_closed", nil)
				return
			}
			cfg, ok := msg.Payload.(types.BridgeConfig)
			if !ok || cfg.Broker == "" {
				s.publishState("error", "config_invalid", fmt.Errorf("unsupported config payload %T", msg.Payload))
				continue
			}
			s.reconfigure(ctx, cfg)
		}
	}
}

func (s *Service) stopCurrent() {
	s.mu.Lock()
	cancel, done := s.curRun, s.done
	s.curRun, s.done = nil, nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Service) reconfigure(parent context.Context, cfg types.BridgeConfig) {
	s.stopCurrent()
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	s.mu.Lock()
	s.curRun, s.done = cancel, done
	s.mu.Unlock()
	go func() {
		defer close(done)
		s.runLink(ctx, cfg)
	}()
}

// -----------------------------------------------------------------------------
// Link supervision
// -----------------------------------------------------------------------------

func (s *Service) runLink(ctx context.Context, cfg types.BridgeConfig) {
	pub, err := s.dial(cfg)
	if err != nil {
		s.publishState("error", "transport_init_failed", err)
		return
	}
	defer pub.Close()

	backoff := backoffSeq(backoffMin, backoffMax)
	for {
		if err := pub.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			delay := backoff()
			s.publishState("degraded", "dial_failed_retrying", fmt.Errorf("%w (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		// A live link starts the next outage from the shortest delay.
		backoff = backoffSeq(backoffMin, backoffMax)

		// Subscribe before reporting up so nothing published after "up" is missed.
		sub := s.conn.Subscribe(topicCaps)
		s.publishState("up", "link_established", nil)
		err := s.forward(ctx, pub, cfg.Prefix, sub)
		s.conn.Unsubscribe(sub)
		if err == nil {
			return
		}
		delay := backoff()
		s.publishState("degraded", "link_lost_retrying", fmt.Errorf("%w (retry in %s)", err, delay))
		if !sleep(ctx, delay) {
			return
		}
	}
}

// forward copies capability traffic upstream until ctx ends or a publish
// fails. Retained state is replayed on every (re)connect by the subscribe.
func (s *Service) forward(ctx context.Context, pub Publisher, prefix string, sub *bus.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-sub.Channel():
			if !ok {
				return errors.New("bus subscription closed")
			}
			body, err := json.Marshal(m.Payload)
			if err != nil {
				s.log.Warn().Err(err).Str("topic", m.Topic.String()).Msg("payload not encodable")
				continue
			}
			if err := pub.Publish(RemoteTopic(prefix, m.Topic), body, m.Retained); err != nil {
				return err
			}
		}
	}
}

// RemoteTopic maps a bus topic to its broker topic under prefix.
func RemoteTopic(prefix string, t bus.Topic) string {
	if prefix == "" {
		return t.String()
	}
	return prefix + "/" + t.String()
}

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

func (s *Service) publishState(level, status string, err error) {
	ev := s.log.Info()
	if err != nil {
		ev = s.log.Warn().Err(err)
	}
	ev.Str("level", level).Msg(status)

	st := State{Level: level, Status: status, TS: time.Now().UnixMilli()}
	if err != nil {
		st.Error = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(topicState, st, true))
}

// State is published retained on bridge/state.
type State struct {
	Level  string `json:"level"`  // "up", "degraded", "error", "idle"
	Status string `json:"status"` // short machine string
	TS     int64  `json:"ts_ms"`
	Error  string `json:"error,omitempty"`
}

const (
	backoffMin = 250 * time.Millisecond
	backoffMax = 5 * time.Second
)

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	var cur = min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
