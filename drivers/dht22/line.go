package dht22

// Line is the single data wire. Implementations touch only the physical pin
// and keep no buffers.
type Line interface {
	// ConfigureOutput switches the pin to push-pull output.
	ConfigureOutput() error
	// ConfigureInputPullup switches the pin to input with a pull-up so the
	// line idles high.
	ConfigureInputPullup() error
	// Set drives the line; only meaningful as output.
	Set(high bool)
	// Get samples the line; only meaningful as input.
	Get() bool
}

// Clock is the microsecond timing resource used for delays and for bounding
// edge waits. One Clock may be shared by several devices as long as their
// reads are serialised.
type Clock interface {
	// DelayMicros busy-waits at least us microseconds.
	DelayMicros(us uint32)
	// ResetReference restarts the ElapsedMicros counter.
	ResetReference()
	// ElapsedMicros returns microseconds since the last ResetReference.
	ElapsedMicros() uint32
}
