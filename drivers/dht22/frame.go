package dht22

// Frame is one raw transmission: humidity hi/lo, temperature hi/lo, checksum.
type Frame [5]byte

// Checksum returns the low byte of the sum of the four data bytes.
func (f Frame) Checksum() byte {
	return byte(uint16(f[0]) + uint16(f[1]) + uint16(f[2]) + uint16(f[3]))
}

// Valid reports whether the received checksum matches.
func (f Frame) Valid() bool { return f.Checksum() == f[4] }

func (f Frame) RawHumidity() uint16    { return uint16(f[0])<<8 | uint16(f[1]) }
func (f Frame) RawTemperature() uint16 { return uint16(f[2])<<8 | uint16(f[3]) }

// DeciRelHumidity returns tenths of %RH.
func (f Frame) DeciRelHumidity() int32 { return int32(f.RawHumidity()) }

// DeciCelsius returns tenths of °C. With signed false the raw value is taken
// as-is; with signed true bit 15 is a sign flag over a 15-bit magnitude.
func (f Frame) DeciCelsius(signed bool) int32 {
	return deciCelsius(f.RawTemperature(), signed)
}

func deciCelsius(raw uint16, signed bool) int32 {
	if !signed {
		return int32(raw)
	}
	v := int32(raw & 0x7FFF)
	if raw&0x8000 != 0 {
		return -v
	}
	return v
}

// NewFrame builds a frame with a correct checksum for the given raw values.
func NewFrame(rawHumidity, rawTemp uint16) Frame {
	f := Frame{
		byte(rawHumidity >> 8), byte(rawHumidity),
		byte(rawTemp >> 8), byte(rawTemp),
	}
	f[4] = f.Checksum()
	return f
}
