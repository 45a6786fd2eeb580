package display

import (
	"io"

	"github.com/fatih/color"
)

// Console writes frames to a terminal, one line per row, coloured by state.
type Console struct {
	w      io.Writer
	ok     *color.Color
	noSens *color.Color
	err    *color.Color
}

// NewConsole writes to w. When noColor is set colour codes are suppressed.
func NewConsole(w io.Writer, noColor bool) *Console {
	c := &Console{
		w:      w,
		ok:     color.New(color.FgGreen),
		noSens: color.New(color.FgYellow),
		err:    color.New(color.FgRed, color.Bold),
	}
	if noColor {
		c.ok.DisableColor()
		c.noSens.DisableColor()
		c.err.DisableColor()
	}
	return c
}

func (c *Console) Render(rows []Row) error {
	for _, r := range rows {
		col := c.ok
		switch r.State {
		case RowNoSensor:
			col = c.noSens
		case RowError:
			col = c.err
		}
		if _, err := col.Fprintln(c.w, r.Text); err != nil {
			return err
		}
	}
	return nil
}
