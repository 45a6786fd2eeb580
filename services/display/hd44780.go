//go:build rp2040 || rp2350

package display

import (
	"machine"

	"tinygo.org/x/drivers/hd44780"
)

// LCDPins is the 4-bit parallel wiring of an HD44780 module. RW is usually
// tied to ground; use machine.NoPin then.
type LCDPins struct {
	D4, D5, D6, D7 machine.Pin
	E, RS, RW      machine.Pin
}

// LCD renders rows onto an HD44780 character display.
type LCD struct {
	dev  hd44780.Device
	cols int
	rows int
}

func NewLCD(p LCDPins, cols, rows int) (*LCD, error) {
	cols = min(max(cols, 1), len(blank))
	dev, err := hd44780.NewGPIO4Bit([]machine.Pin{p.D4, p.D5, p.D6, p.D7}, p.E, p.RS, p.RW)
	if err != nil {
		return nil, err
	}
	if err := dev.Configure(hd44780.Config{Width: int16(cols), Height: int16(rows)}); err != nil {
		return nil, err
	}
	dev.ClearDisplay()
	return &LCD{dev: dev, cols: cols, rows: rows}, nil
}

func (l *LCD) Render(rows []Row) error {
	var line [40]byte
	for y := 0; y < l.rows; y++ {
		n := copy(line[:l.cols], blank[:l.cols])
		if y < len(rows) {
			copy(line[:n], rows[y].Text)
		}
		l.dev.SetCursor(0, uint8(y))
		if _, err := l.dev.Write(line[:n]); err != nil {
			return err
		}
	}
	return l.dev.Display()
}

// blank pads rows so stale characters are overwritten without a clear.
var blank = [40]byte{
	' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ',
	' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ',
	' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ',
	' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ',
}
