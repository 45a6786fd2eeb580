package platform

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRandomWalk_StaysInRange(t *testing.T) {
	next := randomWalk(4)
	for i := 0; i < 20000; i++ {
		f := next()
		require.True(t, f.Valid())
		require.LessOrEqual(t, f.RawTemperature(), uint16(simTempMax), "step %d", i)
		require.LessOrEqual(t, f.RawHumidity(), uint16(1000), "step %d", i)
	}
}

func TestSim_UnknownPin(t *testing.T) {
	s := NewSim(4)
	_, ok := s.Line(4)
	require.True(t, ok)
	_, ok = s.Line(7)
	require.False(t, ok)
}
