// services/hal/types.go
package hal

import (
	"context"

	"sensorcode-go/drivers/dht22"
	"sensorcode-go/errcode"
	"sensorcode-go/types"
)

// ---- Capability & device model ----

type CapabilitySpec struct {
	Domain string
	Kind   types.Kind
	Name   string // defaults to the device id
	Info   types.Info
}

// CapAddr is the public address of one capability.
type CapAddr struct {
	Domain string
	Kind   string
	Name   string
}

// EnqueueResult is the immediate answer to a control request. Work that
// completes later is reported through Events.
type EnqueueResult struct {
	OK    bool
	Error errcode.Code
}

type Device interface {
	ID() string
	Capabilities() []CapabilitySpec
	Init(ctx context.Context) error
	Control(addr CapAddr, method string, payload any) (EnqueueResult, error)
	Close() error
}

// ---- Device → HAL telemetry (single shape) ----
// A value-like update is published retained to .../value followed by
// status up. Err, when non-empty, publishes only .../status=degraded.

type Event struct {
	Addr    CapAddr
	Payload any
	TSms    int64
	Err     string
}

type EventEmitter interface {
	// Emit must not block; false indicates a drop under pressure.
	Emit(ev Event) bool
}

// ---- Single-wire lines ----

// LineJob runs with exclusive use of every line and clock.
type LineJob interface {
	Run()
}

// LineOwner is a claimed line plus the timing resource that goes with it.
type LineOwner interface {
	Pin() int
	Line() dht22.Line
	Clock() dht22.Clock
	// TryEnqueueJob queues j on the line worker; false if the queue is full.
	TryEnqueueJob(j LineJob) bool
}

// Platform supplies physical lines and clocks.
type Platform interface {
	Line(pin int) (dht22.Line, bool)
	// Clock returns the timing resource for pin. Platforms with one
	// hardware timer return the same Clock for every pin.
	Clock(pin int) dht22.Clock
	// Critical runs fn with as little interference as the platform allows
	// (interrupts off, GC paused, thread pinned).
	Critical(fn func())
}

// ---- HAL-injected resources ----

type ResourceRegistry interface {
	ClaimLine(devID string, pin int) (LineOwner, error)
	ReleaseLine(devID string, pin int)
}

type Resources struct {
	Reg ResourceRegistry
	Pub EventEmitter
}

type BuilderInput struct {
	ID, Type string
	Params   any
	Res      Resources
}

type Builder interface {
	Build(ctx context.Context, in BuilderInput) (Device, error)
}
