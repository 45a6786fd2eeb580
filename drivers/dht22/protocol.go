package dht22

// StartSignal wakes the sensor and consumes its acknowledgement. On success
// the line is positioned at the start of the first data bit.
func (d *Device) StartSignal() error {
	if d.tm.timeout == 0 {
		d.apply(Config{})
	}
	if err := d.line.ConfigureOutput(); err != nil {
		d.present = false
		return err
	}
	d.line.Set(false)
	d.clock.DelayMicros(d.tm.startLow)
	d.line.Set(true)

	if err := d.line.ConfigureInputPullup(); err != nil {
		d.present = false
		return err
	}
	d.clock.DelayMicros(d.tm.release)

	if !d.line.Get() {
		// ACK low in progress; it must be released within AckCheck.
		d.clock.DelayMicros(d.tm.ackCheck)
		if !d.line.Get() {
			d.present = false
			return ErrProtocol
		}
	} else {
		// Slow responder: the ACK has not started yet.
		if err := d.waitFor(false); err != nil {
			return err
		}
		if err := d.waitFor(true); err != nil {
			return err
		}
	}

	// ACK high phase ends with the first bit's low pulse.
	if err := d.waitFor(false); err != nil {
		return err
	}

	d.present = true
	d.clock.DelayMicros(d.tm.settle)
	return nil
}

// ReadByte reads eight bits, most significant first.
func (d *Device) ReadByte() (byte, error) {
	var b byte
	for i := 0; i < 8; i++ {
		if err := d.waitFor(true); err != nil {
			return 0, err
		}
		d.clock.DelayMicros(d.tm.bitSample)
		if !d.line.Get() {
			continue
		}
		b |= 1 << (7 - i)
		// Long high pulse: wait for it to end before the next bit.
		if err := d.waitFor(false); err != nil {
			return 0, err
		}
	}
	return b, nil
}

// ReadFrame runs the start signal and reads the five frame bytes. ok is false
// with a nil error when the sensor has just reappeared: that frame is not
// read and the caller should retry on its next poll.
func (d *Device) ReadFrame() (f Frame, ok bool, err error) {
	wasPresent := d.present
	if err = d.StartSignal(); err != nil {
		return Frame{}, false, err
	}
	if !wasPresent {
		return Frame{}, false, nil
	}
	for i := range f {
		if f[i], err = d.ReadByte(); err != nil {
			return Frame{}, false, err
		}
	}
	return f, true, nil
}

// waitFor spins until the line reads high (or low), bounded by the timeout.
// A timeout clears presence.
func (d *Device) waitFor(high bool) error {
	d.clock.ResetReference()
	for d.line.Get() != high {
		if d.clock.ElapsedMicros() >= d.tm.timeout {
			d.present = false
			return ErrTimeout
		}
	}
	return nil
}
