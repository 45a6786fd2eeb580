// Package conv formats fixed-point readings without fmt/strconv, for MCU
// builds where both are expensive.
package conv

// Itoa writes the base-10 form of n into the tail of buf and returns the
// used slice. buf should hold at least 20 bytes.
func Itoa(buf []byte, n int64) []byte {
	i := len(buf)
	if i == 0 {
		return buf
	}
	u := uint64(n)
	if n < 0 {
		u = uint64(-n)
	}
	for {
		i--
		buf[i] = byte('0' + u%10)
		u /= 10
		if u == 0 || i == 0 {
			break
		}
	}
	if n < 0 && i > 0 {
		i--
		buf[i] = '-'
	}
	return buf[i:]
}

// Deci writes v/10 with one decimal place ("23.1", "-0.5") into the tail of
// buf and returns the used slice. buf should hold at least 22 bytes.
func Deci(buf []byte, v int32) []byte {
	if len(buf) < 3 {
		return buf[:0]
	}
	neg := v < 0
	u := int64(v)
	if neg {
		u = -u
	}
	i := len(buf)
	i--
	buf[i] = byte('0' + u%10)
	i--
	buf[i] = '.'
	whole := Itoa(buf[:i], u/10)
	i -= len(whole)
	if neg && i > 0 {
		i--
		buf[i] = '-'
	}
	return buf[i:]
}

// AppendDeci appends the Deci form of v to dst.
func AppendDeci(dst []byte, v int32) []byte {
	var b [24]byte
	return append(dst, Deci(b[:], v)...)
}
