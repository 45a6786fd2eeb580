// services/hal/worker.go
package hal

import (
	"context"
	"fmt"
	"sync"

	"sensorcode-go/drivers/dht22"
	"sensorcode-go/errcode"
)

const defaultJobQueueLen = 8

// lineWorker runs line jobs one at a time. Every single-wire transaction
// goes through it, so lines sharing a clock never overlap.
type lineWorker struct {
	plat Platform
	jobs chan LineJob
}

func newLineWorker(plat Platform, qlen int) *lineWorker {
	if qlen <= 0 {
		qlen = defaultJobQueueLen
	}
	return &lineWorker{plat: plat, jobs: make(chan LineJob, qlen)}
}

func (w *lineWorker) tryEnqueue(j LineJob) bool {
	select {
	case w.jobs <- j:
		return true
	default:
		return false
	}
}

func (w *lineWorker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-w.jobs:
			w.plat.Critical(j.Run)
		}
	}
}

// ---- line registry ----

type lineRegistry struct {
	mu     sync.Mutex
	plat   Platform
	worker *lineWorker
	owners map[int]string // pin -> devID
}

func newLineRegistry(plat Platform, w *lineWorker) *lineRegistry {
	return &lineRegistry{plat: plat, worker: w, owners: map[int]string{}}
}

func (r *lineRegistry) ClaimLine(devID string, pin int) (LineOwner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, taken := r.owners[pin]; taken && owner != devID {
		return nil, &errcode.E{C: errcode.PinInUse, Op: "claim", Msg: fmt.Sprintf("pin %d held by %s", pin, owner)}
	}
	line, ok := r.plat.Line(pin)
	if !ok {
		return nil, &errcode.E{C: errcode.UnknownPin, Op: "claim", Msg: fmt.Sprintf("pin %d", pin)}
	}
	r.owners[pin] = devID
	return &lineOwner{pin: pin, line: line, clock: r.plat.Clock(pin), w: r.worker}, nil
}

func (r *lineRegistry) ReleaseLine(devID string, pin int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owners[pin] == devID {
		delete(r.owners, pin)
	}
}

type lineOwner struct {
	pin   int
	line  dht22.Line
	clock dht22.Clock
	w     *lineWorker
}

func (o *lineOwner) Pin() int                     { return o.pin }
func (o *lineOwner) Line() dht22.Line             { return o.line }
func (o *lineOwner) Clock() dht22.Clock           { return o.clock }
func (o *lineOwner) TryEnqueueJob(j LineJob) bool { return o.w.tryEnqueue(j) }
