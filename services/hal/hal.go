// services/hal/hal.go
package hal

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"sensorcode-go/bus"
	"sensorcode-go/errcode"
	"sensorcode-go/types"
	"sensorcode-go/x/timex"
)

const (
	eventQueueLen = 16
	pollQueueLen  = 8

	verbPollStart = "poll_start"
	verbPollStop  = "poll_stop"
	defaultVerb   = "read"

	// MinPollInterval is the shortest schedule HAL accepts. DHT22 sensors
	// need two seconds between conversions.
	MinPollInterval = 2 * time.Second
)

type HAL struct {
	conn *bus.Connection
	log  zerolog.Logger
	res  Resources

	worker *lineWorker
	poller *Poller
	pollCh chan PollReq

	// devID -> device
	dev map[string]Device
	// capability address -> devID
	capIndex map[CapAddr]string

	evCh chan Event
}

// New wires HAL to a bus connection and a platform. Call Run to start it.
func New(conn *bus.Connection, plat Platform, log zerolog.Logger) *HAL {
	w := newLineWorker(plat, defaultJobQueueLen)
	pollCh := make(chan PollReq, pollQueueLen)
	h := &HAL{
		conn:     conn,
		log:      log.With().Str("svc", "hal").Logger(),
		worker:   w,
		poller:   NewPoller(pollCh),
		pollCh:   pollCh,
		dev:      map[string]Device{},
		capIndex: map[CapAddr]string{},
		evCh:     make(chan Event, eventQueueLen),
	}
	h.res = Resources{Reg: newLineRegistry(plat, w), Pub: h}
	return h
}

func (h *HAL) Run(ctx context.Context) {
	cfgSub := h.conn.Subscribe(topicConfigHAL())
	ctrlSub := h.conn.Subscribe(ctrlWildcard())
	defer h.conn.Unsubscribe(cfgSub)
	defer h.conn.Unsubscribe(ctrlSub)

	go h.worker.run(ctx)
	go h.poller.Run(ctx)

	h.pubHALState("idle", "awaiting_config")
	ready := false
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.pubHALState("stopped", "context_cancelled")
			return
		case msg := <-cfgSub.Channel():
			if msg == nil {
				continue
			}
			cfg, ok := msg.Payload.(types.HALConfig)
			if !ok {
				h.log.Warn().Str("topic", msg.Topic.String()).Msg("ignoring non-HALConfig payload")
				continue
			}
			h.applyConfig(ctx, cfg)
			if !ready {
				ready = true
				h.pubHALState("ready", "")
			}
		case m := <-ctrlSub.Channel():
			if m == nil {
				continue
			}
			if !ready {
				h.replyErr(m, errcode.HALNotReady)
				continue
			}
			h.handleControl(m)
		case req := <-h.pollCh:
			h.handlePoll(req)
		case ev := <-h.evCh:
			// All device telemetry is published from this goroutine.
			h.handleEvent(ev)
		}
	}
}

// applyConfig is additive: devices already built are left alone.
func (h *HAL) applyConfig(ctx context.Context, cfg types.HALConfig) {
	for _, dc := range cfg.Devices {
		if _, exists := h.dev[dc.ID]; exists {
			continue
		}
		log := h.log.With().Str("dev", dc.ID).Str("type", dc.Type).Logger()
		b, ok := lookupBuilder(dc.Type)
		if !ok {
			log.Error().Msg("no builder for device type")
			continue
		}
		dev, err := b.Build(ctx, BuilderInput{ID: dc.ID, Type: dc.Type, Params: dc.Params, Res: h.res})
		if err != nil {
			log.Error().Err(err).Msg("build failed")
			continue
		}
		if err := dev.Init(ctx); err != nil {
			log.Error().Err(err).Msg("init failed")
			_ = dev.Close()
			continue
		}
		h.dev[dev.ID()] = dev

		for _, cs := range dev.Capabilities() {
			addr := CapAddr{Domain: cs.Domain, Kind: string(cs.Kind), Name: cs.Name}
			if addr.Domain == "" {
				addr.Domain = types.DomainEnv
			}
			if addr.Name == "" {
				addr.Name = dev.ID()
			}
			h.capIndex[addr] = dev.ID()

			h.conn.Publish(h.conn.NewMessage(capInfo(addr), cs.Info, true))
			h.conn.Publish(h.conn.NewMessage(
				capStatus(addr),
				types.CapabilityStatus{Link: types.LinkDown, TS: timex.NowMs()},
				true,
			))
		}
		log.Info().Msg("device ready")
	}

	for _, ps := range cfg.Pollers {
		addr := CapAddr{Domain: ps.Domain, Kind: string(ps.Kind), Name: ps.Name}
		if _, ok := h.capIndex[addr]; !ok {
			h.log.Warn().Str("cap", capBase(addr).String()).Msg("poller for unknown capability")
			continue
		}
		verb := ps.Verb
		if verb == "" {
			verb = defaultVerb
		}
		h.startPoll(addr, verb, ps.IntervalMs, ps.JitterMs)
	}
	h.log.Info().Int("devices", len(h.dev)).Int("pollers", h.poller.Len()).Msg("config applied")
}

func (h *HAL) startPoll(addr CapAddr, verb string, intervalMs uint32, jitterMs uint16) {
	every := time.Duration(intervalMs) * time.Millisecond
	if every < MinPollInterval {
		every = MinPollInterval
	}
	h.poller.Upsert(addr, verb, every, time.Duration(jitterMs)*time.Millisecond)
	h.log.Debug().Str("cap", capBase(addr).String()).Str("verb", verb).Dur("every", every).Msg("poll started")
}

func (h *HAL) handleControl(msg *bus.Message) {
	// hal/cap/<domain>/<kind>/<name>/control/<verb>
	if msg.Topic.Len() < 7 {
		h.replyErr(msg, errcode.InvalidTopic)
		return
	}
	addr, ok := AddrOf(msg.Topic)
	verb, vok := msg.Topic.At(6).(string)
	if !ok || !vok {
		h.replyErr(msg, errcode.InvalidTopic)
		return
	}
	ownerID, ok := h.capIndex[addr]
	if !ok {
		h.replyErr(msg, errcode.UnknownCapability)
		return
	}

	switch verb {
	case verbPollStart:
		p, code := As[types.PollStart](msg.Payload)
		if code != "" {
			h.replyErr(msg, code)
			return
		}
		if p.IntervalMs == 0 {
			h.replyErr(msg, errcode.InvalidParams)
			return
		}
		if p.Verb == "" {
			p.Verb = defaultVerb
		}
		h.startPoll(addr, p.Verb, p.IntervalMs, p.JitterMs)
		h.replyOK(msg)
		return
	case verbPollStop:
		p, code := As[types.PollStop](msg.Payload)
		if code != "" {
			h.replyErr(msg, code)
			return
		}
		if p.Verb == "" {
			p.Verb = defaultVerb
		}
		h.poller.Stop(addr, p.Verb)
		h.replyOK(msg)
		return
	}

	dev := h.dev[ownerID]
	if dev == nil {
		h.replyErr(msg, errcode.Error)
		return
	}
	res, err := dev.Control(addr, verb, msg.Payload)
	if err != nil {
		h.replyFromError(msg, err)
		return
	}
	if res.OK {
		h.replyOK(msg)
		return
	}
	code := res.Error
	if code == "" {
		code = errcode.Busy
	}
	h.replyErr(msg, code)
}

// handlePoll issues a scheduled control. Busy results are expected when a
// manual read overlaps a schedule and are not logged.
func (h *HAL) handlePoll(req PollReq) {
	devID, ok := h.capIndex[req.Addr]
	if !ok {
		h.poller.Stop(req.Addr, req.Verb)
		return
	}
	dev := h.dev[devID]
	if dev == nil {
		return
	}
	res, err := dev.Control(req.Addr, req.Verb, nil)
	switch {
	case err != nil:
		h.log.Warn().Err(err).Str("cap", capBase(req.Addr).String()).Dur("every", req.Every).Msg("poll control failed")
	case !res.OK && res.Error != errcode.Busy:
		h.log.Warn().Str("cap", capBase(req.Addr).String()).Dur("every", req.Every).Str("code", string(res.Error)).Msg("poll rejected")
	}
}

func (h *HAL) handleEvent(ev Event) {
	if ev.TSms == 0 {
		ev.TSms = timex.NowMs()
	}
	// Error: retained status degraded, no value.
	if ev.Err != "" {
		h.conn.Publish(h.conn.NewMessage(
			capStatus(ev.Addr),
			types.CapabilityStatus{Link: types.LinkDegraded, TS: ev.TSms, Error: ev.Err},
			true,
		))
		return
	}
	h.conn.Publish(h.conn.NewMessage(capValue(ev.Addr), ev.Payload, true))
	h.conn.Publish(h.conn.NewMessage(
		capStatus(ev.Addr),
		types.CapabilityStatus{Link: types.LinkUp, TS: ev.TSms},
		true,
	))
}

func (h *HAL) closeAll() {
	for id, d := range h.dev {
		if err := d.Close(); err != nil {
			h.log.Warn().Err(err).Str("dev", id).Msg("close failed")
		}
	}
}

func (h *HAL) pubHALState(level, status string) {
	h.conn.Publish(h.conn.NewMessage(
		topicHALState(),
		types.HALState{Level: level, Status: status, TS: timex.NowMs()},
		true,
	))
}

// Emit queues a device event for publication; false when the queue is full.
func (h *HAL) Emit(ev Event) bool {
	select {
	case h.evCh <- ev:
		return true
	default:
		h.log.Warn().Str("cap", capBase(ev.Addr).String()).Msg("event dropped")
		return false
	}
}
